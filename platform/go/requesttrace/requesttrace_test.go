package requesttrace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntoContextAndFromContext(t *testing.T) {
	audit := AuditInfo{ActorKind: ActorKindSystem, Source: SourceSQS, RequestID: "msg-1", InvocationID: "inv-1"}

	ctx := IntoContext(context.Background(), audit)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, audit, got)
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	audit := FromContextOrAnonymous(context.Background())
	require.Equal(t, ActorKindAnonymous, audit.ActorKind)
}

func TestAnonymous(t *testing.T) {
	audit := Anonymous(SourceHTTP, "req-anon")
	require.Equal(t, ActorKindAnonymous, audit.ActorKind)
	require.Equal(t, SourceHTTP, audit.Source)
	require.Equal(t, "req-anon", audit.RequestID)
}

func TestSystemFields(t *testing.T) {
	audit := System(SourceRabbitMQ, "")
	require.Equal(t, ActorKindSystem, audit.ActorKind)

	fields := audit.Fields()
	require.Len(t, fields, 2)
	require.Equal(t, "actor_kind", fields[0].Key)
	require.Equal(t, "source", fields[1].Key)
}

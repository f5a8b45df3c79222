package requesttrace

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	ctxAuditInfo contextKey = "CONTRACTS_REQUEST_TRACE"
)

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// Source names the entry point that produced the request.
type Source string

const (
	SourceHTTP     Source = "http"
	SourceSQS      Source = "sqs"
	SourceRabbitMQ Source = "rabbitmq"
	SourceCLI      Source = "cli"
)

// AuditInfo captures request-scoped metadata needed for traceability.
// RequestID is the HTTP request id or the queue message id; InvocationID is the Lambda request id when present.
type AuditInfo struct {
	ActorKind    ActorKind
	Source       Source
	RequestID    string
	InvocationID string
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	v := ctx.Value(ctxAuditInfo)
	if v == nil {
		return AuditInfo{}, false
	}

	audit, ok := v.(AuditInfo)
	return audit, ok
}

// FromContextOrAnonymous returns the AuditInfo stored on the context, or an anonymous record when absent.
func FromContextOrAnonymous(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return Anonymous(SourceHTTP, "")
}

// Anonymous builds an AuditInfo for unauthenticated callers.
func Anonymous(source Source, requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, Source: source, RequestID: requestID}
}

// System builds an AuditInfo for queue-driven or administrative operations.
func System(source Source, requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, Source: source, RequestID: requestID}
}

// Fields renders the audit info as log fields, omitting empty values.
func (a AuditInfo) Fields() []zap.Field {
	fields := []zap.Field{zap.String("actor_kind", string(a.ActorKind))}
	if a.Source != "" {
		fields = append(fields, zap.String("source", string(a.Source)))
	}
	if a.RequestID != "" {
		fields = append(fields, zap.String("request_id", a.RequestID))
	}
	if a.InvocationID != "" {
		fields = append(fields, zap.String("invocation_id", a.InvocationID))
	}
	return fields
}

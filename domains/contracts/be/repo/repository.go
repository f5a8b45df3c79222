package repo

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zenGate-Global/palmyra-contracts/platform/go/persistence"
)

// Repository defines the conditional-write record store used by the contracts service.
// Implementations must apply each write atomically for a single property.
type Repository interface {
	// PutIfAbsentOrTerminal inserts rec unless an item exists for its property whose status is not in replaceable.
	PutIfAbsentOrTerminal(ctx context.Context, rec persistence.ContractRecord, replaceable []string) (persistence.ContractRecord, error)
	// UpdateIfCurrentStatus applies update only when the stored status equals expected.
	UpdateIfCurrentStatus(ctx context.Context, propertyID, expected string, update persistence.StatusUpdate) (persistence.ContractRecord, error)
	// Get returns the item for propertyID or persistence.ErrContractNotFound.
	Get(ctx context.Context, propertyID string) (persistence.ContractRecord, error)
}

type contractStore interface {
	PutIfAbsentOrTerminal(ctx context.Context, rec persistence.ContractRecord, replaceable []string) (persistence.ContractRecord, error)
	UpdateIfCurrentStatus(ctx context.Context, propertyID, expected string, update persistence.StatusUpdate) (persistence.ContractRecord, error)
	GetContract(ctx context.Context, propertyID string) (persistence.ContractRecord, error)
}

type storeRepository struct {
	store  contractStore
	system string
	tracer trace.Tracer
}

// NewPostgresRepository constructs a repository backed by the Postgres contract store.
func NewPostgresRepository(store *persistence.ContractStore) Repository {
	if store == nil {
		panic("contract store is required")
	}
	return newStoreRepository(store, "postgresql")
}

// NewDynamoRepository constructs a repository backed by the DynamoDB contract store.
func NewDynamoRepository(store *persistence.DynamoContractStore) Repository {
	if store == nil {
		panic("dynamodb contract store is required")
	}
	return newStoreRepository(store, "dynamodb")
}

func newStoreRepository(store contractStore, system string) *storeRepository {
	return &storeRepository{store: store, system: system, tracer: otel.Tracer("contracts/repo")}
}

func (r *storeRepository) PutIfAbsentOrTerminal(ctx context.Context, rec persistence.ContractRecord, replaceable []string) (persistence.ContractRecord, error) {
	ctx, span := r.start(ctx, "PutIfAbsentOrTerminal", rec.PropertyID)
	defer span.End()

	out, err := r.store.PutIfAbsentOrTerminal(ctx, rec, replaceable)
	finish(span, err)
	return out, err
}

func (r *storeRepository) UpdateIfCurrentStatus(ctx context.Context, propertyID, expected string, update persistence.StatusUpdate) (persistence.ContractRecord, error) {
	ctx, span := r.start(ctx, "UpdateIfCurrentStatus", propertyID)
	defer span.End()

	out, err := r.store.UpdateIfCurrentStatus(ctx, propertyID, expected, update)
	finish(span, err)
	return out, err
}

func (r *storeRepository) Get(ctx context.Context, propertyID string) (persistence.ContractRecord, error) {
	ctx, span := r.start(ctx, "GetContract", propertyID)
	defer span.End()

	out, err := r.store.GetContract(ctx, propertyID)
	finish(span, err)
	return out, err
}

func (r *storeRepository) start(ctx context.Context, op, propertyID string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", r.system),
			attribute.String("contracts.property_id", propertyID),
		),
	)
}

// finish marks infrastructure failures on the span; condition failures and misses are expected outcomes.
func finish(span trace.Span, err error) {
	switch {
	case err == nil:
	case errors.Is(err, persistence.ErrContractConditionFailed):
		span.SetAttributes(attribute.Bool("contracts.condition_failed", true))
	case errors.Is(err, persistence.ErrContractNotFound):
		span.SetAttributes(attribute.Bool("contracts.not_found", true))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

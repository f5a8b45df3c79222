package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-contracts/domains/contracts/be/events"
	"github.com/zenGate-Global/palmyra-contracts/domains/contracts/be/repo"
	"github.com/zenGate-Global/palmyra-contracts/platform/go/instrument"
	platformlogging "github.com/zenGate-Global/palmyra-contracts/platform/go/logging"
	"github.com/zenGate-Global/palmyra-contracts/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-contracts/platform/go/requesttrace"
	"github.com/zenGate-Global/palmyra-contracts/platform/go/telemetry"
)

// Event names published after a successful write.
const (
	EventContractCreated = "Contract created"
	EventContractUpdated = "Contract updated"
)

// Metric names counted after a successful write.
const (
	MetricContractCreated = "ContractCreated"
	MetricContractUpdated = "ContractUpdated"
)

// Operation names used for spans, operation logs and "<name>Errors" counters.
const (
	OpCreate = "CreateContract"
	OpUpdate = "UpdateContract"
	OpGet    = "GetContract"
)

const tracerName = "github.com/zenGate-Global/palmyra-contracts/domains/contracts/be/service"

// Contract is the domain view of a stored contract.
type Contract struct {
	PropertyID     string    `json:"property_id"`
	ContractID     string    `json:"contract_id"`
	Address        string    `json:"address"`
	SellerName     string    `json:"seller_name"`
	Status         Status    `json:"contract_status"`
	CreatedAt      time.Time `json:"contract_created"`
	LastModifiedOn time.Time `json:"contract_last_modified_on"`
}

// CreateInput carries the fields required to open a contract for a property.
type CreateInput struct {
	PropertyID string `json:"property_id"`
	Address    string `json:"address"`
	SellerName string `json:"seller_name"`
}

// UpdateInput identifies the contract to approve.
type UpdateInput struct {
	PropertyID string `json:"property_id"`
	ContractID string `json:"contract_id"`
}

// Service defines the contract lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (Contract, error)
	Update(ctx context.Context, input UpdateInput) (Contract, error)
	Get(ctx context.Context, propertyID string) (Contract, error)
}

// Option customises the service built by New.
type Option func(*service)

// WithClock overrides the time source used for contract timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides how contract ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(s *service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithInterceptor replaces the default instrumentation chain.
func WithInterceptor(ic instrument.Interceptor) Option {
	return func(s *service) {
		s.intercept = ic
	}
}

type service struct {
	repo      repo.Repository
	publisher events.Publisher
	metrics   telemetry.Metrics
	logger    *zap.Logger
	intercept instrument.Interceptor
	now       func() time.Time
	newID     func() string
}

// New constructs the contracts Service. Every collaborator is required.
// By default each operation runs inside tracing, logging and error counting, in that order.
func New(r repo.Repository, publisher events.Publisher, metrics telemetry.Metrics, logger *zap.Logger, opts ...Option) Service {
	if r == nil {
		panic("contracts repository is required")
	}
	if publisher == nil {
		panic("event publisher is required")
	}
	if metrics == nil {
		panic("metrics recorder is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	s := &service{
		repo:      r,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	s.intercept = instrument.Chain(
		instrument.Tracing(otel.Tracer(tracerName)),
		instrument.Logging(logger),
		instrument.ErrorCount(metrics),
	)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Create(ctx context.Context, input CreateInput) (Contract, error) {
	return instrument.Call(ctx, s.intercept, OpCreate, func(ctx context.Context) (Contract, error) {
		return s.create(ctx, input)
	})
}

func (s *service) Update(ctx context.Context, input UpdateInput) (Contract, error) {
	return instrument.Call(ctx, s.intercept, OpUpdate, func(ctx context.Context) (Contract, error) {
		return s.update(ctx, input)
	})
}

func (s *service) Get(ctx context.Context, propertyID string) (Contract, error) {
	return instrument.Call(ctx, s.intercept, OpGet, func(ctx context.Context) (Contract, error) {
		propertyID = strings.TrimSpace(propertyID)
		if propertyID == "" {
			return Contract{}, newValidationError(map[string]string{"property_id": "property_id is required"})
		}

		record, err := s.repo.Get(ctx, propertyID)
		if err != nil {
			if errors.Is(err, persistence.ErrContractNotFound) {
				return Contract{}, ErrNotFound
			}
			return Contract{}, s.storeFailure(ctx, OpGet, err)
		}

		contract, err := mapContract(record)
		if err != nil {
			return Contract{}, s.storeFailure(ctx, OpGet, err)
		}
		return contract, nil
	})
}

func (s *service) create(ctx context.Context, input CreateInput) (Contract, error) {
	fieldErrors := FieldErrors{}

	propertyID := strings.TrimSpace(input.PropertyID)
	if propertyID == "" {
		fieldErrors.add("property_id", "property_id is required")
	}
	address := strings.TrimSpace(input.Address)
	if address == "" {
		fieldErrors.add("address", "address is required")
	}
	sellerName := strings.TrimSpace(input.SellerName)
	if sellerName == "" {
		fieldErrors.add("seller_name", "seller_name is required")
	}

	if len(fieldErrors) > 0 {
		return Contract{}, &ValidationError{Fields: fieldErrors}
	}

	now := s.timestamp()
	record := persistence.ContractRecord{
		PropertyID:     propertyID,
		ContractID:     s.newID(),
		Address:        address,
		SellerName:     sellerName,
		Status:         string(StatusDraft),
		CreatedAt:      now,
		LastModifiedOn: now,
	}

	stored, err := s.repo.PutIfAbsentOrTerminal(ctx, record, terminalStatuses())
	if err != nil {
		return Contract{}, s.writeFailure(ctx, OpCreate, propertyID, err)
	}

	contract, err := mapContract(stored)
	if err != nil {
		return Contract{}, s.storeFailure(ctx, OpCreate, err)
	}

	return s.committed(ctx, MetricContractCreated, EventContractCreated, "contract created", contract)
}

func (s *service) update(ctx context.Context, input UpdateInput) (Contract, error) {
	fieldErrors := FieldErrors{}

	propertyID := strings.TrimSpace(input.PropertyID)
	if propertyID == "" {
		fieldErrors.add("property_id", "property_id is required")
	}
	if strings.TrimSpace(input.ContractID) == "" {
		fieldErrors.add("contract_id", "contract_id is required")
	}

	if len(fieldErrors) > 0 {
		return Contract{}, &ValidationError{Fields: fieldErrors}
	}

	stored, err := s.repo.UpdateIfCurrentStatus(ctx, propertyID, string(StatusDraft), persistence.StatusUpdate{
		Status:         string(StatusApproved),
		LastModifiedOn: s.timestamp(),
	})
	if err != nil {
		return Contract{}, s.writeFailure(ctx, OpUpdate, propertyID, err)
	}

	contract, err := mapContract(stored)
	if err != nil {
		return Contract{}, s.storeFailure(ctx, OpUpdate, err)
	}

	return s.committed(ctx, MetricContractUpdated, EventContractUpdated, "contract updated", contract)
}

// committed runs the post-write steps. The write is already durable, so a publish
// failure is reported without undoing it.
func (s *service) committed(ctx context.Context, metric, event, message string, contract Contract) (Contract, error) {
	s.metrics.Count(ctx, metric, 1)
	s.operationLogger(ctx).Info(message, contractFields(contract)...)

	if err := s.publisher.Publish(ctx, event, contract); err != nil {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("contracts.error_kind", "publish"))
		return contract, &PublishError{Event: event, Contract: contract, Err: err}
	}
	return contract, nil
}

func (s *service) writeFailure(ctx context.Context, op, propertyID string, err error) error {
	var condErr *persistence.ConditionError
	if errors.As(err, &condErr) {
		conflict := &ConflictError{
			Operation:  op,
			PropertyID: propertyID,
			Exists:     condErr.Exists,
		}
		if status, parseErr := ParseStatus(condErr.CurrentStatus); parseErr == nil {
			conflict.CurrentStatus = status
		}
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("contracts.error_kind", "conflict"))
		return conflict
	}
	if errors.Is(err, persistence.ErrContractConditionFailed) {
		return &ConflictError{Operation: op, PropertyID: propertyID, Exists: true}
	}
	return s.storeFailure(ctx, op, err)
}

func (s *service) storeFailure(ctx context.Context, op string, err error) error {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("contracts.error_kind", "store"))
	span.RecordError(err)

	s.operationLogger(ctx).Error("record store failure", zap.String("store_operation", op), zap.Error(err))
	return &StoreError{Operation: op, Err: err}
}

func (s *service) operationLogger(ctx context.Context) *zap.Logger {
	logger := platformlogging.FromContextOr(ctx, s.logger)
	if audit, ok := requesttrace.FromContext(ctx); ok {
		logger = logger.With(audit.Fields()...)
	}
	return logger
}

func (s *service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func mapContract(record persistence.ContractRecord) (Contract, error) {
	status, err := ParseStatus(record.Status)
	if err != nil {
		return Contract{}, err
	}
	return Contract{
		PropertyID:     record.PropertyID,
		ContractID:     record.ContractID,
		Address:        record.Address,
		SellerName:     record.SellerName,
		Status:         status,
		CreatedAt:      record.CreatedAt.UTC(),
		LastModifiedOn: record.LastModifiedOn.UTC(),
	}, nil
}

func contractFields(c Contract) []zap.Field {
	return []zap.Field{
		zap.String("property_id", c.PropertyID),
		zap.String("contract_id", c.ContractID),
		zap.String("contract_status", string(c.Status)),
		zap.String("address", c.Address),
		zap.String("seller_name", c.SellerName),
		zap.Time("contract_created", c.CreatedAt),
		zap.Time("contract_last_modified_on", c.LastModifiedOn),
	}
}

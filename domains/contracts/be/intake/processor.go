package intake

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-contracts/domains/contracts/be/service"
	platformlogging "github.com/zenGate-Global/palmyra-contracts/platform/go/logging"
	"github.com/zenGate-Global/palmyra-contracts/platform/go/requesttrace"
)

//go:embed schema/contract_message.json
var messageSchema []byte

const messageSchemaURL = "memory://schemas/contracts/contract_message.json"

type payload struct {
	PropertyID string `json:"property_id"`
	Address    string `json:"address"`
	SellerName string `json:"seller_name"`
	ContractID string `json:"contract_id"`
}

// Processor drives the contract service from batches of messages.
type Processor struct {
	svc    service.Service
	logger *zap.Logger
	source requesttrace.Source
	schema *jsonschema.Schema
}

// NewProcessor compiles the message schema and binds the processor to svc.
// source tags the audit info attached to every message.
func NewProcessor(svc service.Service, logger *zap.Logger, source requesttrace.Source) (*Processor, error) {
	if svc == nil {
		return nil, errors.New("contracts service is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(messageSchemaURL, bytes.NewReader(messageSchema)); err != nil {
		return nil, fmt.Errorf("register message schema: %w", err)
	}
	schema, err := compiler.Compile(messageSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile message schema: %w", err)
	}

	return &Processor{svc: svc, logger: logger, source: source, schema: schema}, nil
}

// ProcessBatch handles messages strictly in order. The first failing message aborts the batch with a
// *BatchError; messages with an unsupported operation are logged and skipped.
func (p *Processor) ProcessBatch(ctx context.Context, messages []Message) error {
	for i, msg := range messages {
		if err := ctx.Err(); err != nil {
			return &BatchError{Index: i, MessageID: msg.ID, Err: err}
		}
		if err := p.Process(ctx, msg); err != nil {
			return &BatchError{Index: i, MessageID: msg.ID, Err: err}
		}
	}
	return nil
}

// Process handles a single message.
func (p *Processor) Process(ctx context.Context, msg Message) error {
	audit := requesttrace.System(p.source, msg.ID)
	if parent, ok := requesttrace.FromContext(ctx); ok {
		audit.InvocationID = parent.InvocationID
	}
	ctx = requesttrace.IntoContext(ctx, audit)

	logger := platformlogging.FromContextOr(ctx, p.logger).With(
		zap.String("message_id", msg.ID),
		zap.String("http_method", msg.Method()),
	)
	ctx = platformlogging.WithLogger(ctx, logger)

	var document any
	if err := json.Unmarshal([]byte(msg.Body), &document); err != nil {
		return &ParseError{MessageID: msg.ID, Err: err}
	}

	switch msg.Method() {
	case MethodCreate:
		in, err := p.decode(document, msg.Body)
		if err != nil {
			return err
		}
		_, err = p.svc.Create(ctx, service.CreateInput{
			PropertyID: in.PropertyID,
			Address:    in.Address,
			SellerName: in.SellerName,
		})
		return err
	case MethodUpdate:
		in, err := p.decode(document, msg.Body)
		if err != nil {
			return err
		}
		_, err = p.svc.Update(ctx, service.UpdateInput{
			PropertyID: in.PropertyID,
			ContractID: in.ContractID,
		})
		return err
	default:
		logger.Error("unsupported operation, message skipped")
		return nil
	}
}

func (p *Processor) decode(document any, body string) (payload, error) {
	if err := p.schema.Validate(document); err != nil {
		var schemaErr *jsonschema.ValidationError
		if errors.As(err, &schemaErr) {
			fields := service.FieldErrors{}
			collectSchemaErrors(schemaErr, fields)
			return payload{}, &service.ValidationError{Fields: fields}
		}
		return payload{}, fmt.Errorf("validate message: %w", err)
	}

	var in payload
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return payload{}, fmt.Errorf("decode message: %w", err)
	}
	return in, nil
}

func collectSchemaErrors(err *jsonschema.ValidationError, fields service.FieldErrors) {
	if len(err.Causes) == 0 {
		field := strings.TrimPrefix(err.InstanceLocation, "/")
		if field == "" {
			field = "body"
		}
		fields[field] = append(fields[field], err.Message)
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, fields)
	}
}

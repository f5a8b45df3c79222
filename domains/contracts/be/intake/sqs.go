package intake

import (
	"context"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/palmyra-contracts/platform/go/logging"
	"github.com/zenGate-Global/palmyra-contracts/platform/go/requesttrace"
)

// FromSQSEvent converts SQS records into messages, keeping string message attributes.
func FromSQSEvent(event lambdaevents.SQSEvent) []Message {
	messages := make([]Message, 0, len(event.Records))
	for _, record := range event.Records {
		attrs := make(map[string]string, len(record.MessageAttributes))
		for name, attr := range record.MessageAttributes {
			if attr.StringValue != nil {
				attrs[name] = *attr.StringValue
			}
		}
		messages = append(messages, Message{
			ID:         record.MessageId,
			Body:       record.Body,
			Attributes: attrs,
		})
	}
	return messages
}

// SQSHandler is the Lambda entry point signature for SQS-triggered invocations.
type SQSHandler func(ctx context.Context, event lambdaevents.SQSEvent) error

// SQSHandlerOption customises NewSQSHandler.
type SQSHandlerOption func(*sqsHandlerOptions)

type sqsHandlerOptions struct {
	flush func(context.Context) error
}

// WithFlush runs flush after every invocation, whether or not the batch succeeded.
// A flush failure is logged and does not fail the invocation.
func WithFlush(flush func(context.Context) error) SQSHandlerOption {
	return func(o *sqsHandlerOptions) {
		o.flush = flush
	}
}

// NewSQSHandler adapts the processor to the Lambda runtime. A returned error fails the whole
// invocation and leaves redelivery to the queue's redrive policy.
func NewSQSHandler(processor *Processor, logger *zap.Logger, opts ...SQSHandlerOption) SQSHandler {
	if processor == nil {
		panic("intake processor is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	var options sqsHandlerOptions
	for _, opt := range opts {
		opt(&options)
	}

	return func(ctx context.Context, event lambdaevents.SQSEvent) error {
		audit := requesttrace.System(requesttrace.SourceSQS, "")
		log := logger
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			audit.InvocationID = lc.AwsRequestID
			log = log.With(zap.String("aws_request_id", lc.AwsRequestID))
		}
		ctx = requesttrace.IntoContext(ctx, audit)
		ctx = platformlogging.WithLogger(ctx, log)

		if options.flush != nil {
			defer func() {
				if err := options.flush(context.WithoutCancel(ctx)); err != nil {
					log.Warn("flush telemetry", zap.Error(err))
				}
			}()
		}

		log.Info("processing sqs batch", zap.Int("records", len(event.Records)))
		if err := processor.ProcessBatch(ctx, FromSQSEvent(event)); err != nil {
			log.Error("sqs batch failed", zap.Error(err))
			return err
		}
		return nil
	}
}

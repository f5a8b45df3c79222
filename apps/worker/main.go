package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-contracts/domains/contracts/be/intake"
	"github.com/zenGate-Global/palmyra-contracts/domains/contracts/be/setup"
	platformlogging "github.com/zenGate-Global/palmyra-contracts/platform/go/logging"
	"github.com/zenGate-Global/palmyra-contracts/platform/go/requesttrace"
	"github.com/zenGate-Global/palmyra-contracts/platform/go/telemetry"
)

const (
	sourceSQS      = "sqs"
	sourceRabbitMQ = "rabbitmq"
)

type config struct {
	IntakeSource string `env:"INTAKE_SOURCE" envDefault:"sqs"`

	RabbitURL          string   `env:"RABBIT_URL"`
	RabbitExchange     string   `env:"RABBIT_INTAKE_EXCHANGE" envDefault:"contracts.requests"`
	RabbitQueue        string   `env:"RABBIT_QUEUE" envDefault:"contracts.requests"`
	RabbitBindings     []string `env:"RABBIT_BINDINGS" envSeparator:"," envDefault:"#"`
	RabbitPrefetch     int      `env:"RABBIT_PREFETCH" envDefault:"8"`
	RabbitDLX          string   `env:"RABBIT_DLX"`
	RabbitConsumerName string   `env:"RABBIT_CONSUMER_TAG" envDefault:"contracts-worker"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}
	backendCfg, err := setup.LoadConfig()
	if err != nil {
		log.Fatalf("load backend config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "contracts-worker",
		Service:   backendCfg.ServiceNamespace,
		Level:     backendCfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	backends, err := setup.Build(ctx, backendCfg, logger)
	if err != nil {
		logger.Fatal("init backends", zap.Error(err))
	}
	defer func() {
		if err := backends.Close(context.Background()); err != nil {
			logger.Error("close backends", zap.Error(err))
		}
	}()

	switch strings.ToLower(cfg.IntakeSource) {
	case sourceSQS:
		processor, err := intake.NewProcessor(backends.Service, logger, requesttrace.SourceSQS)
		if err != nil {
			logger.Fatal("init intake processor", zap.Error(err))
		}
		logger.Info("starting lambda sqs handler")
		lambda.StartWithOptions(intake.NewSQSHandler(processor, logger, intake.WithFlush(telemetry.ForceFlush)), lambda.WithContext(ctx))
	case sourceRabbitMQ:
		processor, err := intake.NewProcessor(backends.Service, logger, requesttrace.SourceRabbitMQ)
		if err != nil {
			logger.Fatal("init intake processor", zap.Error(err))
		}
		if cfg.RabbitURL == "" {
			logger.Fatal("RABBIT_URL is required when INTAKE_SOURCE=rabbitmq")
		}

		consumer := intake.NewRabbitConsumer(intake.RabbitConfig{
			URL:                cfg.RabbitURL,
			Exchange:           cfg.RabbitExchange,
			Queue:              cfg.RabbitQueue,
			Bindings:           cfg.RabbitBindings,
			Prefetch:           cfg.RabbitPrefetch,
			DeadLetterExchange: cfg.RabbitDLX,
			ConsumerTag:        cfg.RabbitConsumerName,
		}, processor, logger)
		if err := consumer.Connect(); err != nil {
			logger.Fatal("connect rabbitmq", zap.Error(err))
		}
		defer consumer.Close()

		if err := consumer.Run(ctx); err != nil {
			logger.Error("rabbitmq consumer stopped", zap.Error(err))
		}
		logger.Info("worker stopped")
	default:
		logger.Fatal("invalid INTAKE_SOURCE (use sqs or rabbitmq)", zap.String("source", cfg.IntakeSource))
	}
}

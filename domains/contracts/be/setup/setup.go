// Package setup builds the contracts service and its backends from process configuration.
// Every binary constructs these collaborators once at start-up and passes them down explicitly.
package setup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-contracts/domains/contracts/be/events"
	"github.com/zenGate-Global/palmyra-contracts/domains/contracts/be/repo"
	"github.com/zenGate-Global/palmyra-contracts/domains/contracts/be/service"
	"github.com/zenGate-Global/palmyra-contracts/platform/go/awsclient"
	"github.com/zenGate-Global/palmyra-contracts/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-contracts/platform/go/telemetry"
)

// Store backends.
const (
	StoreDynamoDB = "dynamodb"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Event backends.
const (
	EventsEventBridge = "eventbridge"
	EventsRabbitMQ    = "rabbitmq"
	EventsLog         = "log"
)

// Config is shared by every binary. Values are only checked for presence.
type Config struct {
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceNamespace string `env:"SERVICE_NAMESPACE" envDefault:"PropertyContracts"`

	StoreBackend   string        `env:"STORE_BACKEND" envDefault:"dynamodb"`
	ContractsTable string        `env:"CONTRACTS_TABLE"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	ConnectTimeout time.Duration `env:"DATABASE_CONNECT_TIMEOUT" envDefault:"5s"`

	EventBackend   string `env:"EVENT_BACKEND" envDefault:"eventbridge"`
	EventBusName   string `env:"EVENT_BUS_NAME"`
	RabbitURL      string `env:"RABBIT_URL"`
	RabbitExchange string `env:"RABBIT_EXCHANGE" envDefault:"contracts.events"`

	AWSRegion      string `env:"AWS_REGION"`
	AWSEndpointURL string `env:"AWS_ENDPOINT_URL"`

	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"false"`
}

// LoadConfig parses the environment and checks the settings each selected backend needs.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports missing settings for the selected backends.
func (c Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case StoreDynamoDB:
		if c.ContractsTable == "" {
			errs = append(errs, errors.New("CONTRACTS_TABLE is required when STORE_BACKEND=dynamodb"))
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_BACKEND=postgres"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid STORE_BACKEND %q (use dynamodb, postgres or memory)", c.StoreBackend))
	}

	switch c.EventBackend {
	case EventsEventBridge:
		if c.EventBusName == "" {
			errs = append(errs, errors.New("EVENT_BUS_NAME is required when EVENT_BACKEND=eventbridge"))
		}
	case EventsRabbitMQ:
		if c.RabbitURL == "" {
			errs = append(errs, errors.New("RABBIT_URL is required when EVENT_BACKEND=rabbitmq"))
		}
	case EventsLog:
	default:
		errs = append(errs, fmt.Errorf("invalid EVENT_BACKEND %q (use eventbridge, rabbitmq or log)", c.EventBackend))
	}

	if c.ServiceNamespace == "" {
		errs = append(errs, errors.New("SERVICE_NAMESPACE is required"))
	}

	return errors.Join(errs...)
}

// Backends holds the long-lived clients shared by every invocation of the process.
type Backends struct {
	Repository repo.Repository
	Publisher  events.Publisher
	Metrics    telemetry.Metrics
	Service    service.Service
	// Pool is set when the Postgres store is selected.
	Pool *pgxpool.Pool

	closers []func(context.Context) error
}

// Build connects the configured backends and assembles the contracts service.
// On error, anything already opened is closed.
func Build(ctx context.Context, cfg Config, logger *zap.Logger, opts ...service.Option) (_ *Backends, err error) {
	b := &Backends{}
	defer func() {
		if err != nil {
			_ = b.Close(ctx)
		}
	}()

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: cfg.ServiceNamespace,
		Endpoint:    cfg.OTelEndpoint,
		Enabled:     cfg.OTelEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	b.closers = append(b.closers, shutdown)

	b.Metrics = telemetry.NewCounterMetrics(otel.GetMeterProvider(), cfg.ServiceNamespace, func(name string, err error) {
		logger.Warn("metric dropped", zap.String("metric", name), zap.Error(err))
	})

	if needsAWS(cfg) {
		awsCfg, err := awsclient.Load(ctx, awsclient.Config{Region: cfg.AWSRegion, EndpointURL: cfg.AWSEndpointURL})
		if err != nil {
			return nil, err
		}
		if cfg.StoreBackend == StoreDynamoDB {
			store, err := persistence.NewDynamoContractStore(dynamodb.NewFromConfig(awsCfg), cfg.ContractsTable)
			if err != nil {
				return nil, fmt.Errorf("init dynamodb store: %w", err)
			}
			b.Repository = repo.NewDynamoRepository(store)
		}
		if cfg.EventBackend == EventsEventBridge {
			publisher, err := events.NewEventBridgePublisher(eventbridge.NewFromConfig(awsCfg), cfg.EventBusName, cfg.ServiceNamespace)
			if err != nil {
				return nil, fmt.Errorf("init eventbridge publisher: %w", err)
			}
			b.Publisher = publisher
		}
	}

	switch cfg.StoreBackend {
	case StorePostgres:
		pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
			ConnString:     cfg.DatabaseURL,
			ConnectTimeout: cfg.ConnectTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres pool: %w", err)
		}
		b.Pool = pool
		b.closers = append(b.closers, func(context.Context) error {
			persistence.ClosePool(pool)
			return nil
		})

		store, err := persistence.NewContractStore(pool, cfg.ContractsTable)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		b.Repository = repo.NewPostgresRepository(store)
	case StoreMemory:
		logger.Warn("using in-memory contract store; data is lost on exit")
		b.Repository = repo.NewMemoryRepository()
	}

	switch cfg.EventBackend {
	case EventsRabbitMQ:
		publisher, err := events.DialRabbitPublisher(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			return nil, fmt.Errorf("init rabbitmq publisher: %w", err)
		}
		b.Publisher = publisher
		b.closers = append(b.closers, func(context.Context) error { return publisher.Close() })
	case EventsLog:
		b.Publisher = events.NewLogPublisher(logger)
	}

	if b.Repository == nil || b.Publisher == nil {
		return nil, errors.New("store and event backends must be configured")
	}

	b.Service = service.New(b.Repository, b.Publisher, b.Metrics, logger, opts...)
	return b, nil
}

// Close releases backends in reverse order of creation.
func (b *Backends) Close(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

func needsAWS(cfg Config) bool {
	return cfg.StoreBackend == StoreDynamoDB || cfg.EventBackend == EventsEventBridge
}

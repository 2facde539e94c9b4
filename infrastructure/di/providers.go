package di

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"atelier/application/ports"
	"atelier/application/queries/handlers"
	"atelier/application/services"
	domainconfig "atelier/domain/config"
	"atelier/infrastructure/config"
	"atelier/infrastructure/generation/mock"
	"atelier/infrastructure/generation/openai"
	"atelier/infrastructure/messaging"
	"atelier/infrastructure/messaging/eventbridge"
	"atelier/infrastructure/persistence/dynamodb"
	"atelier/infrastructure/persistence/memory"
	"atelier/infrastructure/scheduler"
	"atelier/infrastructure/storage/local"
	"atelier/pkg/auth"
	pkgerrors "atelier/pkg/errors"
	"atelier/pkg/observability"
)

// developmentSecret signs tokens when JWT_SECRET is unset outside production.
const developmentSecret = "development-secret-change-in-production"

// Repositories groups the four stores so one backend switch selects them all.
type Repositories struct {
	Titles     ports.TitleRepository
	Ideas      ports.IdeaRepository
	Paintings  ports.PaintingRepository
	References ports.ReferenceRepository
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		zapCfg.Level = level
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("environment", cfg.Environment)), nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideRepositories selects the memory or DynamoDB stores.
func ProvideRepositories(awsCfg aws.Config, cfg *config.Config, logger *zap.Logger) Repositories {
	if cfg.StorageBackend == "dynamodb" {
		table := dynamodb.NewTable(awsdynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable, cfg.IndexName, logger)
		logger.Info("Using DynamoDB storage", zap.String("table", cfg.DynamoDBTable))
		return Repositories{
			Titles:     dynamodb.NewTitleRepository(table),
			Ideas:      dynamodb.NewIdeaRepository(table),
			Paintings:  dynamodb.NewPaintingRepository(table),
			References: dynamodb.NewReferenceRepository(table),
		}
	}

	logger.Info("Using in-memory storage")
	return Repositories{
		Titles:     memory.NewTitleRepository(),
		Ideas:      memory.NewIdeaRepository(),
		Paintings:  memory.NewPaintingRepository(),
		References: memory.NewReferenceRepository(),
	}
}

// ProvideEventPublisher publishes to EventBridge when events are enabled and
// to the log otherwise.
func ProvideEventPublisher(awsCfg aws.Config, cfg *config.Config, logger *zap.Logger) ports.EventPublisher {
	if cfg.EnableEvents {
		return eventbridge.NewPublisher(awseventbridge.NewFromConfig(awsCfg), cfg.EventBusName, logger)
	}
	return messaging.NewLogPublisher(logger)
}

// ProvideMetrics creates the Prometheus collector
func ProvideMetrics() *observability.Collector {
	return observability.NewCollector("atelier")
}

// ProvideTracing installs the OTLP exporter. It returns nil when tracing is
// disabled; spans then go to the global no-op provider.
func ProvideTracing(cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, error) {
	if !cfg.EnableTracing {
		return nil, nil
	}
	tp, err := observability.InitTracing(observability.TracingConfig{
		ServiceName: "atelier-api",
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Tracing enabled", zap.String("endpoint", cfg.OTLPEndpoint))
	return tp, nil
}

func ProvideDomainConfig(cfg *config.Config) *domainconfig.DomainConfig {
	dc := domainconfig.DefaultDomainConfig()
	dc.DefaultBatchQuantity = cfg.DefaultBatchQuantity
	dc.MaxBatchQuantity = cfg.MaxBatchQuantity
	return dc
}

// ProvideIdeaGenerator creates the chat-model idea generator
func ProvideIdeaGenerator(cfg *config.Config, metrics *observability.Collector, logger *zap.Logger) ports.IdeaGenerator {
	if cfg.Generator == "mock" {
		return mock.NewIdeaGenerator()
	}
	guardCfg := openai.DefaultGuardConfig("openrouter", cfg.UpstreamRPS)
	guardCfg.CallTimeout = cfg.IdeaTimeout
	guard := openai.NewGuard(guardCfg, metrics, logger)
	return openai.NewIdeaGenerator(cfg.IdeaModel, guard, logger,
		option.WithBaseURL(cfg.OpenRouterBaseURL),
		option.WithAPIKey(cfg.OpenRouterAPIKey),
	)
}

// ProvideImageGenerator creates the image generator
func ProvideImageGenerator(cfg *config.Config, metrics *observability.Collector, logger *zap.Logger) ports.ImageGenerator {
	if cfg.Generator == "mock" {
		return mock.NewImageGenerator()
	}
	guardCfg := openai.DefaultGuardConfig("openai-images", cfg.UpstreamRPS)
	guardCfg.CallTimeout = cfg.ImageTimeout
	guard := openai.NewGuard(guardCfg, metrics, logger)
	return openai.NewImageGenerator(cfg.ImageModel, guard, logger,
		option.WithAPIKey(cfg.OpenAIAPIKey),
	)
}

func ProvideImageStore(cfg *config.Config, logger *zap.Logger) (*local.ImageStore, error) {
	return local.NewImageStore(cfg.UploadDir, cfg.PublicBasePath, logger)
}

// ProvideImageScheduler creates the worker pool. The caller starts it.
func ProvideImageScheduler(cfg *config.Config, metrics *observability.Collector, logger *zap.Logger) *scheduler.ImageScheduler {
	return scheduler.NewImageScheduler(scheduler.Config{
		Workers:   cfg.ImageConcurrency,
		QueueSize: cfg.ImageQueueSize,
	}, logger, metrics)
}

func ProvideImageGenerationService(
	repos Repositories,
	generator ports.ImageGenerator,
	store ports.ImageStore,
	queue ports.ImageQueue,
	publisher ports.EventPublisher,
	metrics services.PipelineMetrics,
	logger *zap.Logger,
) *services.ImageGenerationService {
	return services.NewImageGenerationService(repos.Paintings, generator, store, queue, publisher, metrics, logger)
}

func ProvideIdeaSequencer(generator ports.IdeaGenerator, repos Repositories, logger *zap.Logger) *services.IdeaSequencer {
	return services.NewIdeaSequencer(generator, repos.Ideas, logger)
}

func ProvidePaintingService(
	repos Repositories,
	sequencer *services.IdeaSequencer,
	images *services.ImageGenerationService,
	publisher ports.EventPublisher,
	metrics services.PipelineMetrics,
	cfg *domainconfig.DomainConfig,
	logger *zap.Logger,
) *services.PaintingService {
	return services.NewPaintingService(repos.Titles, repos.References, repos.Paintings, sequencer, images, publisher, metrics, cfg, logger)
}

func ProvideRetryCoordinator(
	repos Repositories,
	sequencer *services.IdeaSequencer,
	images *services.ImageGenerationService,
	publisher ports.EventPublisher,
	cfg *domainconfig.DomainConfig,
	logger *zap.Logger,
) *services.RetryCoordinator {
	return services.NewRetryCoordinator(repos.Titles, repos.Ideas, repos.Paintings, repos.References, sequencer, images, publisher, cfg, logger)
}

func ProvideTitleService(repos Repositories, cfg *domainconfig.DomainConfig, logger *zap.Logger) *services.TitleService {
	return services.NewTitleService(repos.Titles, cfg, logger)
}

func ProvideReferenceService(repos Repositories, cfg *domainconfig.DomainConfig, logger *zap.Logger) *services.ReferenceService {
	return services.NewReferenceService(repos.Titles, repos.References, cfg, logger)
}

func ProvidePaintingStatusHandler(repos Repositories, logger *zap.Logger) *handlers.GetPaintingStatusHandler {
	return handlers.NewGetPaintingStatusHandler(repos.Titles, repos.Ideas, repos.Paintings, repos.References, logger)
}

// ProvideJWTValidator creates the token validator. Outside production a
// missing secret falls back to a fixed development secret.
func ProvideJWTValidator(cfg *config.Config, logger *zap.Logger) (*auth.JWTValidator, error) {
	secret := cfg.JWTSecret
	if secret == "" && !cfg.IsProduction() {
		logger.Warn("JWT_SECRET not set, using the development secret")
		secret = developmentSecret
	}
	return auth.NewJWTValidator(auth.JWTConfig{SecretKey: secret, Issuer: cfg.JWTIssuer})
}

func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

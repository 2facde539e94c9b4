//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"atelier/application/ports"
	"atelier/application/services"
	"atelier/infrastructure/config"
	"atelier/infrastructure/scheduler"
	"atelier/infrastructure/storage/local"
	"atelier/pkg/observability"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideRepositories,
	ProvideEventPublisher,
	ProvideMetrics,
	ProvideTracing,
	ProvideDomainConfig,
	ProvideIdeaGenerator,
	ProvideImageGenerator,
	ProvideImageStore,
	ProvideImageScheduler,
	ProvideImageGenerationService,
	ProvideIdeaSequencer,
	ProvidePaintingService,
	ProvideRetryCoordinator,
	ProvideTitleService,
	ProvideReferenceService,
	ProvidePaintingStatusHandler,
	ProvideJWTValidator,
	ProvideErrorHandler,
	wire.Bind(new(ports.ImageQueue), new(*scheduler.ImageScheduler)),
	wire.Bind(new(ports.ImageStore), new(*local.ImageStore)),
	wire.Bind(new(services.PipelineMetrics), new(*observability.Collector)),
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}

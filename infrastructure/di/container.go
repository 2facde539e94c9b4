package di

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"atelier/application/queries/handlers"
	"atelier/application/services"
	"atelier/infrastructure/config"
	"atelier/infrastructure/scheduler"
	"atelier/infrastructure/storage/local"
	"atelier/pkg/auth"
	pkgerrors "atelier/pkg/errors"
	"atelier/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *observability.Collector
	Tracing      *observability.TracerProvider
	Scheduler    *scheduler.ImageScheduler
	ImageStore   *local.ImageStore
	Titles       *services.TitleService
	References   *services.ReferenceService
	Paintings    *services.PaintingService
	Retries      *services.RetryCoordinator
	StatusQuery  *handlers.GetPaintingStatusHandler
	Validator    *auth.JWTValidator
	ErrorHandler *pkgerrors.ErrorHandler
}

// Shutdown lets the image workers drain the queue until ctx expires, then
// cancels what is still running and flushes spans.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error
	if err := c.Scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if c.Tracing != nil {
		if err := c.Tracing.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

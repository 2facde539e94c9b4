// Package messaging holds event publishers that need no external bus.
package messaging

import (
	"context"

	"go.uber.org/zap"

	"atelier/application/ports"
	"atelier/domain/events"
)

// LogPublisher writes events to the log. It is used when EventBridge
// publishing is disabled.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(ctx context.Context, domainEvents []events.DomainEvent) error {
	for _, e := range domainEvents {
		p.logger.Debug("Domain event",
			zap.String("eventType", e.GetEventType()),
			zap.String("aggregateID", e.GetAggregateID()),
			zap.Time("timestamp", e.GetTimestamp()),
		)
	}
	return nil
}

var _ ports.EventPublisher = (*LogPublisher)(nil)

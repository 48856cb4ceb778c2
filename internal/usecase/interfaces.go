package usecase

import (
	"context"

	"github.com/xavierca1/leadflow/internal/entity"
)

type EventPublisher interface {
	PublishStageChanged(ctx context.Context, ev entity.StageChangedEvent) error
}

// NopPublisher drops events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishStageChanged(context.Context, entity.StageChangedEvent) error {
	return nil
}

package store

import (
	"context"

	"farematrix/internal/models"
)

// StatusStore publishes run progress so other processes (status tooling,
// dashboards) can observe a live run without touching its checkpoint files.
type StatusStore interface {
	SetStatus(ctx context.Context, status models.ProgressMeta) error
	GetStatus(ctx context.Context, sessionID string) (models.ProgressMeta, bool, error)
}

package repository

import (
	"context"
	"errors"

	"github.com/kubilitics/kubilitics-topoview/internal/models"
)

// ErrNotFound is returned when a view has no stored layout.
var ErrNotFound = errors.New("not found")

// LayoutRepository stores the manual pins of every view.
type LayoutRepository interface {
	GetLayout(ctx context.Context, view string) (*models.Layout, error)
	// SaveLayout replaces every pin of the view.
	SaveLayout(ctx context.Context, layout *models.Layout) error
	// UpsertPins adds or moves pins without touching the others.
	UpsertPins(ctx context.Context, view string, pins []models.Pin) error
	DeletePin(ctx context.Context, view, layer, id string) error
	DeleteLayout(ctx context.Context, view string) error
	Close() error
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/edgevision/inference-api/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// CreateInference persists a new record and returns the store-assigned id.
	CreateInference(ctx context.Context, inf *models.Inference) (int64, error)
	GetInference(ctx context.Context, id int64) (*models.Inference, error)

	// MarkInferenceComplete and MarkInferenceFailed apply a terminal
	// transition only while the record is still PROCESSING. A record that
	// is missing or already terminal surfaces as ErrNotFound, which makes
	// the bus handlers no-ops under duplicate delivery.
	MarkInferenceComplete(ctx context.Context, id int64, result string) error
	MarkInferenceFailed(ctx context.Context, id int64) error

	DeleteInference(ctx context.Context, id int64) error
	DeleteAllInferences(ctx context.Context) error

	// ListInferences returns one page of matching records plus a flag
	// indicating whether a further page exists. No total count is computed.
	ListInferences(ctx context.Context, filter InferenceFilter) ([]*models.Inference, bool, error)
}

// InferenceFilter holds the optional history filters. Zero-valued fields
// impose no constraint; present fields compose conjunctively. CreatedAt is
// truncated to the top of its hour and matches the whole hour bucket.
type InferenceFilter struct {
	OwnerID   string
	Runtime   models.Runtime
	CreatedAt *time.Time
	Page      int
	Size      int
}

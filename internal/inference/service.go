package inference

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/edgevision/inference-api/internal/bus"
	"github.com/edgevision/inference-api/internal/store"
	"github.com/edgevision/inference-api/pkg/models"
)

// Service owns the inference job lifecycle: it validates submissions,
// persists records, dispatches work to the runtime workers, and applies the
// terminal transitions reported back on the bus.
type Service struct {
	store     store.Store
	publisher bus.Publisher
	timeout   time.Duration
}

// NewService creates a new Service. timeout bounds each store and publish
// call so a stuck backend surfaces as an error instead of a hang.
func NewService(st store.Store, pub bus.Publisher, timeout time.Duration) *Service {
	return &Service{store: st, publisher: pub, timeout: timeout}
}

// Result is what a client polling an inference sees. Result is set only
// once the record is COMPLETE.
type Result struct {
	ID         int64
	Processing bool
	Result     *string
}

// HistoryParams holds validated inputs for a history query.
type HistoryParams struct {
	Page      int
	Size      int
	OwnerID   string
	Runtime   models.Runtime
	CreatedAt *time.Time
}

// Submit validates the upload, persists a PROCESSING record, and publishes
// the work item to the runtime's request topic. The persist and the publish
// are not transactional: a crash in between leaves a PROCESSING record with
// no work item, which is reconciled operationally rather than rolled back.
func (s *Service) Submit(ctx context.Context, fileName string, content []byte, runtimeName, ownerID string) (int64, error) {
	runtime, ok := models.ParseRuntime(runtimeName)
	if !ok {
		return 0, ErrInvalidRuntime
	}
	if !extensionAllowed(fileName) {
		return 0, ErrDisallowedFileType
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	inf := &models.Inference{
		FileName:  fileName,
		Runtime:   runtime,
		Status:    models.StatusProcessing,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := s.store.CreateInference(ctx, inf)
	if err != nil {
		return 0, fmt.Errorf("persist inference: %w", err)
	}

	msg := bus.RequestMessage{
		ID:          id,
		FileContent: base64.StdEncoding.EncodeToString(content),
	}
	if err := s.publisher.Publish(ctx, runtime.Topic(), msg); err != nil {
		// The record stays PROCESSING with no work item in flight.
		slog.Error("work item publish failed, record orphaned",
			"inference_id", id, "runtime", runtime)
		return 0, fmt.Errorf("publish work item: %w", err)
	}

	slog.Info("inference submitted", "inference_id", id, "runtime", runtime, "owner_id", ownerID)
	return id, nil
}

// Complete applies PROCESSING -> COMPLETE. A record that is missing or
// already terminal returns ErrNotFound, so duplicate success messages
// become no-ops.
func (s *Service) Complete(ctx context.Context, id int64, result string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.MarkInferenceComplete(ctx, id, result)
}

// Fail applies PROCESSING -> FAIL with the same guard as Complete.
func (s *Service) Fail(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.MarkInferenceFailed(ctx, id)
}

// Result looks up one inference. A FAIL record surfaces as
// ErrExecutionFailed, never as a payload.
func (s *Service) Result(ctx context.Context, id int64) (*Result, error) {
	inf, err := s.store.GetInference(ctx, id)
	if err != nil {
		return nil, err
	}
	if inf.Status == models.StatusFail {
		return nil, ErrExecutionFailed
	}
	return &Result{
		ID:         inf.ID,
		Processing: inf.IsProcessing(),
		Result:     inf.Result,
	}, nil
}

// Delete removes one record after checking the requester owns it.
func (s *Service) Delete(ctx context.Context, id int64, requesterID string) error {
	inf, err := s.store.GetInference(ctx, id)
	if err != nil {
		return err
	}
	if inf.OwnerID != requesterID {
		return ErrNotOwner
	}
	return s.store.DeleteInference(ctx, id)
}

// History returns one page of records matching the optional filters plus a
// flag for whether a further page exists.
func (s *Service) History(ctx context.Context, params HistoryParams) ([]*models.Inference, bool, error) {
	return s.store.ListInferences(ctx, store.InferenceFilter{
		OwnerID:   params.OwnerID,
		Runtime:   params.Runtime,
		CreatedAt: params.CreatedAt,
		Page:      params.Page,
		Size:      params.Size,
	})
}

// PurgeHistory deletes every inference record. The cleanup scheduler invokes
// this on its cron trigger.
func (s *Service) PurgeHistory(ctx context.Context) error {
	return s.store.DeleteAllInferences(ctx)
}

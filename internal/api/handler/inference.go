package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edgevision/inference-api/internal/api/middleware"
	"github.com/edgevision/inference-api/internal/api/response"
	"github.com/edgevision/inference-api/internal/inference"
	"github.com/edgevision/inference-api/pkg/models"
)

// createdAtLayout is the local date-time format accepted by the history
// filter, e.g. 2024-10-03T23:00:00.
const createdAtLayout = "2006-01-02T15:04:05"

// Lifecycle defines the inference operations the handlers depend on.
type Lifecycle interface {
	Submit(ctx context.Context, fileName string, content []byte, runtimeName, ownerID string) (int64, error)
	Result(ctx context.Context, id int64) (*inference.Result, error)
	Delete(ctx context.Context, id int64, requesterID string) error
	History(ctx context.Context, params inference.HistoryParams) ([]*models.Inference, bool, error)
}

// NewSubmitHandler returns an http.HandlerFunc for POST /inferences.
// The request is multipart form data with an "image" file part and a
// "runtime" field; the response is 202 with the new inference id.
func NewSubmitHandler(svc Lifecycle, maxUploadSize int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := requireOwner(w, r)
		if owner == "" {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Request must be multipart form data with an image part", nil)
			return
		}

		runtime := r.FormValue("runtime")
		if runtime == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "runtime is required", nil)
			return
		}

		file, header, err := r.FormFile("image")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "image file part is required", nil)
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read image part", nil)
			return
		}

		id, err := svc.Submit(r.Context(), header.Filename, content, runtime, owner)
		if err != nil {
			switch {
			case errors.Is(err, inference.ErrInvalidRuntime):
				response.Error(w, http.StatusBadRequest, "INVALID_RUNTIME",
					"runtime must be onnx or tflite", nil)
			case errors.Is(err, inference.ErrDisallowedFileType):
				response.Error(w, http.StatusBadRequest, "NOT_ALLOWED_FILE",
					"Only jpg and png files are accepted", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Accepted(w, submitResponse{ID: id})
	}
}

type submitResponse struct {
	ID int64 `json:"id"`
}

// NewResultHandler returns an http.HandlerFunc for GET /inferences/{inferenceID}.
// Responds 202 while the inference is still processing, 200 once complete.
func NewResultHandler(svc Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := inferenceID(w, r)
		if !ok {
			return
		}

		res, err := svc.Result(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, inference.ErrNotFound):
				response.Error(w, http.StatusNotFound, "INFERENCE_NOT_FOUND",
					"No inference record with that id", nil)
			case errors.Is(err, inference.ErrExecutionFailed):
				response.Error(w, http.StatusBadGateway, "EXECUTION_FAILED",
					"An error occurred while executing the inference", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		body := resultResponse{
			ID:           res.ID,
			IsProcessing: res.Processing,
			Result:       res.Result,
		}
		if res.Processing {
			response.Accepted(w, body)
			return
		}
		response.JSON(w, body)
	}
}

type resultResponse struct {
	ID           int64   `json:"id"`
	IsProcessing bool    `json:"is_processing"`
	Result       *string `json:"result,omitempty"`
}

// NewDeleteHandler returns an http.HandlerFunc for DELETE /inferences/{inferenceID}.
func NewDeleteHandler(svc Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := requireOwner(w, r)
		if owner == "" {
			return
		}
		id, ok := inferenceID(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), id, owner); err != nil {
			switch {
			case errors.Is(err, inference.ErrNotFound):
				response.Error(w, http.StatusNotFound, "INFERENCE_NOT_FOUND",
					"No inference record with that id", nil)
			case errors.Is(err, inference.ErrNotOwner):
				response.Error(w, http.StatusForbidden, "NOT_OWNER",
					"Only the submitter may delete this inference", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.NoContent(w)
	}
}

// NewHistoryHandler returns an http.HandlerFunc for GET /inferences.
// All filters are optional; createdAt selects the whole clock hour of the
// given instant.
func NewHistoryHandler(svc Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		page := 0
		if v := q.Get("page"); v != "" {
			p, err := strconv.Atoi(v)
			if err != nil || p < 0 {
				response.Error(w, http.StatusBadRequest, "INVALID_HISTORY_FILTER",
					"page must be a non-negative integer", nil)
				return
			}
			page = p
		}

		size := 10
		if v := q.Get("size"); v != "" {
			s, err := strconv.Atoi(v)
			if err != nil || s <= 0 {
				response.Error(w, http.StatusBadRequest, "INVALID_HISTORY_FILTER",
					"size must be a positive integer", nil)
				return
			}
			size = s
		}

		params := inference.HistoryParams{
			Page:    page,
			Size:    size,
			OwnerID: q.Get("userId"),
		}

		if v := q.Get("runtime"); v != "" {
			rt, ok := models.ParseRuntime(v)
			if !ok {
				response.Error(w, http.StatusBadRequest, "INVALID_RUNTIME",
					"runtime must be onnx or tflite", nil)
				return
			}
			params.Runtime = rt
		}

		if v := q.Get("createdAt"); v != "" {
			t, err := time.Parse(createdAtLayout, v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_HISTORY_FILTER",
					"createdAt must be in yyyy-MM-ddTHH:mm:ss format", nil)
				return
			}
			params.CreatedAt = &t
		}

		items, hasMore, err := svc.History(r.Context(), params)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		history := make([]historyItem, 0, len(items))
		for _, inf := range items {
			history = append(history, historyItem{
				ID:        inf.ID,
				FileName:  inf.FileName,
				Runtime:   string(inf.Runtime),
				Status:    inf.Status,
				Result:    inf.Result,
				OwnerID:   inf.OwnerID,
				CreatedAt: inf.CreatedAt.UTC().Format(time.RFC3339),
			})
		}

		response.Collection(w, history, response.PaginationMeta{
			Page:    page,
			Size:    size,
			HasNext: hasMore,
		})
	}
}

type historyItem struct {
	ID        int64   `json:"id"`
	FileName  string  `json:"file_name"`
	Runtime   string  `json:"runtime"`
	Status    string  `json:"status"`
	Result    *string `json:"result,omitempty"`
	OwnerID   string  `json:"owner_id"`
	CreatedAt string  `json:"created_at"`
}

func requireOwner(w http.ResponseWriter, r *http.Request) string {
	owner, ok := middleware.GetOwnerID(r)
	if !ok || owner == "" {
		response.Error(w, http.StatusUnauthorized, "MISSING_OWNER", "Missing requester identity", nil)
		return ""
	}
	return owner
}

func inferenceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "inferenceID"), 10, 64)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"inferenceID must be an integer", nil)
		return 0, false
	}
	return id, true
}

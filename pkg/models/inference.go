package models

import (
	"strings"
	"time"
)

// Runtime is the inference execution backend a job is dispatched to.
type Runtime string

const (
	RuntimeONNX   Runtime = "ONNX"
	RuntimeTFLite Runtime = "TFLITE"
)

// ParseRuntime normalizes a runtime name case-insensitively.
// Returns false when the name is not a member of the enumeration.
func ParseRuntime(name string) (Runtime, bool) {
	switch Runtime(strings.ToUpper(name)) {
	case RuntimeONNX:
		return RuntimeONNX, true
	case RuntimeTFLite:
		return RuntimeTFLite, true
	}
	return "", false
}

// Topic returns the worker request topic for this runtime.
func (r Runtime) Topic() string {
	return strings.ToLower(string(r)) + "_inference_request"
}

const (
	StatusProcessing = "PROCESSING"
	StatusComplete   = "COMPLETE"
	StatusFail       = "FAIL"
)

// Inference tracks one inference request from submission to terminal state.
// The API returns the id on POST /inferences; the client polls
// GET /inferences/{id} until the record leaves PROCESSING. Result is set
// only when status is COMPLETE.
type Inference struct {
	ID        int64     `db:"id"         json:"id"`
	FileName  string    `db:"file_name"  json:"file_name"`
	Runtime   Runtime   `db:"runtime"    json:"runtime"`
	Status    string    `db:"status"     json:"status"`
	Result    *string   `db:"result"     json:"result,omitempty"`
	OwnerID   string    `db:"owner_id"   json:"owner_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsProcessing reports whether the record has not reached a terminal state.
func (i *Inference) IsProcessing() bool {
	return i.Status == StatusProcessing
}

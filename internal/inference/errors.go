package inference

import (
	"errors"

	"github.com/edgevision/inference-api/internal/store"
)

var (
	ErrDisallowedFileType = errors.New("file extension not allowed")
	ErrInvalidRuntime     = errors.New("unknown runtime")
	ErrExecutionFailed    = errors.New("inference execution failed")
	ErrNotOwner           = errors.New("requester does not own this inference")

	// ErrNotFound covers both a record that never existed and one that is
	// already terminal when a result message arrives. Sharing the store
	// sentinel keeps the bus consumer's redelivery check in one place.
	ErrNotFound = store.ErrNotFound
)

package bus

import "context"

// Publisher sends a work message to a worker-bound topic. Implementations
// must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Handler receives inference results delivered by the workers. Delivery is
// at-least-once and unordered across topics; implementations treat a record
// that is missing or already terminal as a no-op.
type Handler interface {
	Complete(ctx context.Context, id int64, result string) error
	Fail(ctx context.Context, id int64) error
}

// Worker-facing topics. Outbound request topics are derived per runtime
// (models.Runtime.Topic); results come back on these two.
const (
	TopicSuccess = "inference_success"
	TopicFail    = "inference_fail"
)

// RequestMessage is the work item published to <runtime>_inference_request.
// FileContent carries the submitted image encoded as base64.
type RequestMessage struct {
	ID          int64  `json:"id"`
	FileContent string `json:"fileContent"`
}

// SuccessMessage arrives on inference_success when a worker finishes.
type SuccessMessage struct {
	ID     int64  `json:"id"`
	Result string `json:"result"`
}

// FailMessage arrives on inference_fail when a worker gives up.
type FailMessage struct {
	ID int64 `json:"id"`
}

package handler

import (
	"net/http"
	"regexp"

	"github.com/edgevision/inference-api/internal/api/response"
	"github.com/edgevision/inference-api/internal/scheduler"
)

// cronPattern bounds each of the six fields (second minute hour day month
// weekday) before the expression reaches the scheduler.
var cronPattern = regexp.MustCompile(
	`^([0-5]?[0-9])\s([0-5]?[0-9])\s([0-1]?[0-9]|2[0-3])\s(\*|[1-9]|[12][0-9]|3[01])\s(\*|[1-9]|1[0-2])\s(\*|[0-6])$`)

// Reconfigurer swaps the cleanup schedule for a new cron expression.
type Reconfigurer interface {
	Reconfigure(expr string) error
}

// NewScheduleHandler returns an http.HandlerFunc for PUT /schedule/inference-history.
func NewScheduleHandler(cleaner Reconfigurer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expr := r.URL.Query().Get("cronExpression")
		if expr == "" {
			expr = scheduler.DefaultExpression
		}

		if !cronPattern.MatchString(expr) {
			response.Error(w, http.StatusBadRequest, "INVALID_SCHEDULE_EXPRESSION",
				"cronExpression must be in 'second minute hour day month weekday' format", nil)
			return
		}

		if err := cleaner.Reconfigure(expr); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_SCHEDULE_EXPRESSION",
				"cronExpression could not be scheduled", nil)
			return
		}

		response.JSON(w, map[string]string{"cron_expression": expr})
	}
}

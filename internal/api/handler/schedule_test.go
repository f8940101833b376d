package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

type mockReconfigurer struct {
	expr string
	err  error
}

func (m *mockReconfigurer) Reconfigure(expr string) error {
	if m.err != nil {
		return m.err
	}
	m.expr = expr
	return nil
}

func scheduleReq(expr string) *http.Request {
	target := "/schedule/inference-history"
	if expr != "" {
		target += "?cronExpression=" + url.QueryEscape(expr)
	}
	return httptest.NewRequest(http.MethodPut, target, nil)
}

func TestScheduleHandler_UpdatesSchedule(t *testing.T) {
	m := &mockReconfigurer{}
	rec := httptest.NewRecorder()
	NewScheduleHandler(m).ServeHTTP(rec, scheduleReq("0 30 9 * * 1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if m.expr != "0 30 9 * * 1" {
		t.Errorf("expected expression to reach scheduler, got %q", m.expr)
	}
}

func TestScheduleHandler_DefaultExpression(t *testing.T) {
	m := &mockReconfigurer{}
	rec := httptest.NewRecorder()
	NewScheduleHandler(m).ServeHTTP(rec, scheduleReq(""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if m.expr != "0 0 12 * * *" {
		t.Errorf("expected default expression, got %q", m.expr)
	}
}

func TestScheduleHandler_RejectsMalformedExpressions(t *testing.T) {
	for _, expr := range []string{
		"banana",
		"* * * * *",       // five fields
		"60 0 12 * * *",   // second out of range
		"0 0 24 * * *",    // hour out of range
		"0 0 12 32 * *",   // day out of range
		"0 0 12 * 13 *",   // month out of range
		"0 0 12 * * 7",    // weekday out of range
	} {
		m := &mockReconfigurer{}
		rec := httptest.NewRecorder()
		NewScheduleHandler(m).ServeHTTP(rec, scheduleReq(expr))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%q: expected 400, got %d", expr, rec.Code)
		}
		if m.expr != "" {
			t.Errorf("%q: scheduler must not be invoked on invalid input", expr)
		}
	}
}

func TestScheduleHandler_SchedulerError(t *testing.T) {
	m := &mockReconfigurer{err: errors.New("parse failed")}
	rec := httptest.NewRecorder()
	NewScheduleHandler(m).ServeHTTP(rec, scheduleReq("0 0 12 * * *"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

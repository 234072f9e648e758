package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/portal/internal/core"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBatchOutcome(t *testing.T) {
	tests := []struct {
		name    string
		summary *core.Summary
		err     error
		want    string
	}{
		{name: "committed", summary: &core.Summary{}, want: OutcomeCommitted},
		{name: "dry run", summary: &core.Summary{DryRun: true}, want: OutcomeDryRun},
		{name: "busy", err: core.ErrTooManyUploads, want: OutcomeBusy},
		{name: "malformed", err: fmt.Errorf("%w: no header row", core.ErrMalformedBatch), want: OutcomeRejected},
		{name: "empty", err: core.ErrEmptyFile, want: OutcomeRejected},
		{name: "too large", err: core.ErrFileTooLarge, want: OutcomeRejected},
		{name: "storage", err: errors.New("connection reset"), want: OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BatchOutcome(tt.summary, tt.err); got != tt.want {
				t.Errorf("BatchOutcome() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestObserveBatch(t *testing.T) {
	m := New()

	m.ObserveBatch(&core.Summary{
		Processed:       2,
		Errors:          1,
		CreatedStudents: []core.CreatedStudent{{ID: 10}},
		Remaps:          []core.Remap{{Claimed: 5, Assigned: 12}},
		Duration:        20 * time.Millisecond,
	}, nil)
	m.ObserveBatch(&core.Summary{Processed: 9, DryRun: true}, nil)
	m.ObserveBatch(nil, core.ErrEmptyFile)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"committed", testutil.ToFloat64(m.batches.WithLabelValues(OutcomeCommitted)), 1},
		{"dry run", testutil.ToFloat64(m.batches.WithLabelValues(OutcomeDryRun)), 1},
		{"rejected", testutil.ToFloat64(m.batches.WithLabelValues(OutcomeRejected)), 1},
		{"processed rows exclude dry runs", testutil.ToFloat64(m.rows.WithLabelValues("processed")), 2},
		{"error rows", testutil.ToFloat64(m.rows.WithLabelValues("error")), 1},
		{"students", testutil.ToFloat64(m.studentsCreated), 1},
		{"remaps", testutil.ToFloat64(m.remaps), 1},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			if c.got != c.want {
				t.Errorf("got %v, want %v", c.got, c.want)
			}
		})
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveLogin(true)
	m.ObserveLogin(false)
	m.ObserveRequest(http.MethodGet, http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`portal_logins_total{result="success"} 1`,
		`portal_logins_total{result="failure"} 1`,
		`portal_http_requests_total{code="200",method="GET"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

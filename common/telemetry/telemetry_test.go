package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/weeeopen/tarallo/common/logger"
)

func TestHandlerExposesRecordedMetrics(t *testing.T) {
	tel := New(0, false, logger.Discard())

	tel.RecordDuration("move_item", time.Now().Add(-10*time.Millisecond))
	tel.RecordError("move_item", "validation")
	tel.RecordRequest(http.MethodPost, "/v2/items/:code/move", http.StatusBadRequest)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, `tarallo_operation_duration_seconds_count{operation="move_item"} 1`)
	assert.Contains(t, body, `tarallo_operation_errors_total{kind="validation",operation="move_item"} 1`)
	assert.Contains(t, body, `tarallo_http_requests_total{method="POST",route="/v2/items/:code/move",status="400"} 1`)
}

func TestNilTelemetryIsNoop(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		tel.RecordDuration("x", time.Now())
		tel.RecordError("x", "y")
		tel.RecordRequest("GET", "/", 200)
		_ = tel.Start(context.Background())
	})
}

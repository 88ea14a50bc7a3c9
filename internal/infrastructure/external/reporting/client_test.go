package reporting

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupredict/risk-monitor/internal/application/report"
	"github.com/edupredict/risk-monitor/internal/domain/shared"
	"github.com/edupredict/risk-monitor/pkg/circuitbreaker"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig(srv.URL)
	cfg.Timeout = 2 * time.Second
	cfg.RateLimiter = RateLimiterConfig{RequestsPerMinute: 6000, Burst: 100, WaitTimeout: time.Second}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c
}

func TestClient_Success(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/reports/risk", r.URL.Path)
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="EduPredict_Risk_Report_2026-10-18.pdf"`)
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))

	art, err := c.Generate(context.Background(), report.KindRisk)
	require.NoError(t, err)
	assert.Equal(t, "EduPredict_Risk_Report_2026-10-18.pdf", art.Filename)
	assert.Equal(t, "application/pdf", art.ContentType)
	assert.Equal(t, []byte("%PDF-1.7"), art.Data)
}

func TestClient_NoDispositionLeavesFilenameEmpty(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF"))
	}))

	art, err := c.Generate(context.Background(), report.KindPerformance)
	require.NoError(t, err)
	assert.Empty(t, art.Filename)
}

func TestClient_ErrorBodyMessageIsExact(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no students"}`))
	}))

	_, err := c.Generate(context.Background(), report.KindRisk)
	require.Error(t, err)
	assert.Equal(t, "no students", err.Error())
	assert.ErrorIs(t, err, shared.ErrReportGenerationFailed)

	var f *report.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, http.StatusNotFound, f.StatusCode)
}

func TestClient_ErrorWithoutMessageIsGeneric(t *testing.T) {
	bodies := []string{``, `not json`, `{"error":""}`, `{"message":"x"}`}
	for _, body := range bodies {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(body))
		}))

		_, err := c.Generate(context.Background(), report.KindPerformance)
		require.Error(t, err, body)
		assert.Equal(t, "Failed to generate report", err.Error(), body)
	}
}

func TestClient_TransportErrorIsGeneric(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(DefaultClientConfig(url))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), report.KindRisk)
	require.Error(t, err)
	assert.Equal(t, report.GenericFailureMessage, err.Error())
}

func TestClient_NoRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.Generate(context.Background(), report.KindRisk)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_BreakerOpensOnServerErrorsOnly(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"error":"No high-risk students found"}`))
	}))

	for i := 0; i < 5; i++ {
		_, err := c.Generate(context.Background(), report.KindRisk)
		assert.EqualError(t, err, "No high-risk students found")
	}
	assert.Equal(t, circuitbreaker.StateClosed, c.BreakerState())

	status.Store(http.StatusInternalServerError)
	for i := 0; i < 3; i++ {
		_, _ = c.Generate(context.Background(), report.KindRisk)
	}
	assert.Equal(t, circuitbreaker.StateOpen, c.BreakerState())

	_, err := c.Generate(context.Background(), report.KindRisk)
	require.Error(t, err)
	assert.Equal(t, report.GenericFailureMessage, err.Error())
	assert.True(t, errors.Is(err, circuitbreaker.ErrCircuitOpen))
}

func TestClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient(DefaultClientConfig("localhost"))
	assert.Error(t, err)
}

func TestFilenameFromDisposition(t *testing.T) {
	tests := map[string]string{
		``:                                       "",
		`attachment`:                             "",
		`attachment; filename="report.pdf"`:      "report.pdf",
		`attachment; filename=plain.pdf`:         "plain.pdf",
		`attachment; filename="../../etc/x.pdf"`: "x.pdf",
		`inline; filename*=UTF-8''r%C3%A9sum%C3%A9.pdf`: "résumé.pdf",
		`attachment; filename="unterminated`:            "",
	}
	for header, want := range tests {
		assert.Equal(t, want, filenameFromDisposition(header), header)
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60, Burst: 2, WaitTimeout: 0})
	rl.now = func() time.Time { return now }
	rl.lastRefill = now

	assert.True(t, rl.TryAllow())
	assert.True(t, rl.TryAllow())
	assert.False(t, rl.TryAllow())

	err := rl.Allow(context.Background())
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, time.Second, rle.RetryAfter)

	now = now.Add(time.Second)
	assert.True(t, rl.TryAllow())

	now = now.Add(time.Hour)
	assert.InDelta(t, 2.0, rl.Available(), 0.001)

	rl.RecordRateLimitHit()
	assert.False(t, rl.TryAllow())
}

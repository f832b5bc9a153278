package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swaphouse/server/internal/config"
	"swaphouse/server/logging"
)

func testConfig() config.Config {
	return config.Config{
		ListenAddr:      "127.0.0.1:0",
		ShutdownTimeout: time.Second,
		Round: config.RoundConfig{
			TickInterval:  50 * time.Millisecond,
			MatchDuration: time.Minute,
			SwapInterval:  30 * time.Second,
			VoteDuration:  5 * time.Second,
			Penalty:       10 * time.Second,
			InventorySize: 2,
		},
		Logging: config.LoggingConfig{Sinks: []string{logging.SinkMemory}, MinSeverity: "info"},
		Input:   config.InputConfig{Rate: 60, Burst: 20},
	}
}

func TestNewServesHealthAndRooms(t *testing.T) {
	srv, err := New(testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { srv.shutdownLogging(context.Background()) })

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	assert.JSONEq(t, `{"rooms":[]}`, rec.Body.String())
}

func TestServeStopsOnCancel(t *testing.T) {
	srv, err := New(testConfig())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNewRejectsBadMapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"width": 10, "bogus": true}`), 0o644))

	cfg := testConfig()
	cfg.MapFile = path
	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "map file")
}

func TestNewExportsOTelMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	cfg := testConfig()
	cfg.OTelEnabled = true
	cfg.OTelExportPath = path
	cfg.OTelExportInterval = time.Hour

	srv, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, srv.meterProvider)
	srv.metrics.Add("rounds_started_total", 3)
	srv.shutdownLogging(context.Background())

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "rounds_started_total")
}

func TestNewWritesJSONEventsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	cfg := testConfig()
	cfg.Logging.Sinks = []string{logging.SinkJSON}
	cfg.Logging.JSONPath = path

	srv, err := New(cfg)
	require.NoError(t, err)
	srv.shutdownLogging(context.Background())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

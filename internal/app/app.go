package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"swaphouse/server/internal/config"
	"swaphouse/server/internal/geometry"
	servernet "swaphouse/server/internal/net"
	"swaphouse/server/internal/net/ws"
	"swaphouse/server/internal/rooms"
	"swaphouse/server/internal/telemetry"
	"swaphouse/server/logging"
	loggingSinks "swaphouse/server/logging/sinks"
)

// Server is a fully wired game server that has not started listening yet.
type Server struct {
	cfg      config.Config
	logger   telemetry.Logger
	router   *logging.Router
	closers  []io.Closer
	hub      *ws.Hub
	registry *rooms.Registry
	http     *http.Server

	metrics       telemetry.Metrics
	meterProvider *sdkmetric.MeterProvider
}

func newZerolog(cfg config.Config, w io.Writer) zerolog.Logger {
	if cfg.Logging.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// New builds the logging router, telemetry, room registry and HTTP surface
// described by cfg.
func New(cfg config.Config) (*Server, error) {
	base := newZerolog(cfg, os.Stderr)
	logger := telemetry.WrapZerolog(base)
	fallback := log.New(base, "", 0)

	s := &Server{cfg: cfg, logger: logger}

	logCfg := cfg.EventLogging()
	namedSinks, err := s.buildSinks(logCfg, base, fallback)
	if err != nil {
		s.closeFiles()
		return nil, err
	}
	router, err := logging.NewRouter(logging.SystemClock{}, logCfg, fallback, namedSinks)
	if err != nil {
		s.closeFiles()
		return nil, fmt.Errorf("failed to construct logging router: %w", err)
	}
	s.router = router

	table := geometry.Default()
	if cfg.MapFile != "" {
		table, err = loadTable(cfg.MapFile)
		if err != nil {
			s.shutdownLogging(context.Background())
			return nil, err
		}
	}

	counters := telemetry.NewCounters()
	var metrics telemetry.Metrics = counters
	if cfg.OTelEnabled {
		provider, err := s.newMeterProvider(cfg)
		if err != nil {
			s.shutdownLogging(context.Background())
			return nil, err
		}
		s.meterProvider = provider
		metrics = telemetry.Fanout(counters, telemetry.NewOTel(provider.Meter("swaphouse/server"), func(err error) {
			logger.Printf("otel instrument failed: %v", err)
		}))
	}
	s.metrics = metrics

	s.hub = ws.NewHub(ws.HubConfig{Logger: logger, Publisher: router, Metrics: metrics})
	s.registry = rooms.NewRegistry(rooms.Options{
		Table:       table,
		Round:       cfg.RoundTunables(),
		Broadcaster: s.hub,
		Publisher:   router,
		Logger:      logger,
		Metrics:     metrics,
		Seed:        cfg.Seed,
	})
	wsHandler := ws.NewHandler(s.hub, s.registry, ws.HandlerConfig{
		Logger:    logger,
		Publisher: router,
		Session: ws.SessionConfig{
			InputRate:  cfg.Input.Rate,
			InputBurst: cfg.Input.Burst,
		},
	})

	clientDir := ""
	if info, err := os.Stat(cfg.ClientDir); err == nil && info.IsDir() {
		clientDir = cfg.ClientDir
	} else if cfg.ClientDir != "" {
		logger.Printf("client directory %s not found; static files disabled", cfg.ClientDir)
	}

	handler := servernet.NewHTTPHandler(servernet.HTTPHandlerConfig{
		ClientDir:    clientDir,
		Logger:       logger,
		Rooms:        s.registry,
		WebSocket:    http.HandlerFunc(wsHandler.Handle),
		Sessions:     s.hub.Sessions,
		Counters:     counters,
		LoggingStats: router.Stats,
		TickInterval: cfg.Round.TickInterval,
	})
	s.http = &http.Server{Addr: cfg.ListenAddr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	return s, nil
}

func (s *Server) newMeterProvider(cfg config.Config) (*sdkmetric.MeterProvider, error) {
	w := io.Writer(os.Stderr)
	if cfg.OTelExportPath != "" {
		f, err := os.OpenFile(cfg.OTelExportPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open otel export %s: %w", cfg.OTelExportPath, err)
		}
		s.closers = append(s.closers, f)
		w = f
	}
	provider, err := telemetry.NewMeterProvider(telemetry.ExportConfig{Writer: w, Interval: cfg.OTelExportInterval})
	if err != nil {
		return nil, fmt.Errorf("failed to construct meter provider: %w", err)
	}
	return provider, nil
}

func loadTable(path string) (*geometry.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open map file: %w", err)
	}
	defer f.Close()
	table, err := geometry.LoadTable(f)
	if err != nil {
		return nil, fmt.Errorf("map file %s: %w", path, err)
	}
	return table, nil
}

func (s *Server) buildSinks(cfg logging.Config, base zerolog.Logger, fallback *log.Logger) ([]logging.NamedSink, error) {
	var out []logging.NamedSink
	for _, name := range cfg.EnabledSinks {
		var sink logging.Sink
		switch name {
		case logging.SinkConsole:
			sink = loggingSinks.NewConsoleSink(os.Stdout, cfg.Console)
		case logging.SinkZerolog:
			sink = loggingSinks.NewZerolog(base)
		case logging.SinkMemory:
			sink = loggingSinks.NewMemorySink()
		case logging.SinkJSON:
			w := io.Writer(os.Stdout)
			if cfg.JSON.FilePath != "" {
				f, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return nil, fmt.Errorf("open json log %s: %w", cfg.JSON.FilePath, err)
				}
				s.closers = append(s.closers, f)
				w = f
			}
			sink = loggingSinks.NewJSON(w, cfg.JSON.FlushInterval)
		case logging.SinkInflux:
			influx, err := loggingSinks.NewInflux(cfg.Influx, fallback)
			if err != nil {
				return nil, err
			}
			sink = influx
		default:
			return nil, fmt.Errorf("unknown logging sink %q", name)
		}
		out = append(out, logging.NamedSink{Name: name, Sink: sink})
	}
	return out, nil
}

// Handler exposes the HTTP surface, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// every room and flushes the logging router.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()
	s.logger.Printf("server listening on %s", ln.Addr())

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server failed: %w", err)
		}
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Printf("http shutdown: %v", err)
	}
	s.hub.CloseAll()
	if err := s.registry.Close(shutdownCtx); err != nil {
		s.logger.Printf("room shutdown: %v", err)
	}
	s.shutdownLogging(shutdownCtx)
	return serveErr
}

// shutdownLogging flushes the meter provider and the event router, then
// closes their files.
func (s *Server) shutdownLogging(ctx context.Context) {
	if s.meterProvider != nil {
		if err := s.meterProvider.Shutdown(ctx); err != nil {
			s.logger.Printf("failed to shut down meter provider: %v", err)
		}
		s.meterProvider = nil
	}
	if s.router != nil {
		if err := s.router.Close(ctx); err != nil {
			s.logger.Printf("failed to close logging router: %v", err)
		}
	}
	s.closeFiles()
}

func (s *Server) closeFiles() {
	for _, c := range s.closers {
		_ = c.Close()
	}
	s.closers = nil
}

// Run builds the server and listens on cfg.ListenAddr until ctx ends.
func Run(ctx context.Context, cfg config.Config) error {
	srv, err := New(cfg)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		srv.shutdownLogging(context.Background())
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}
	return srv.Serve(ctx, ln)
}

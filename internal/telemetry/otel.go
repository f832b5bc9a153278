package telemetry

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const instrumentationName = "swaphouse/server/internal/telemetry"

// Meter returns the process-wide meter for server instruments.
func Meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// ExportConfig controls where NewMeterProvider writes collected metrics.
type ExportConfig struct {
	Writer   io.Writer
	Interval time.Duration
}

// NewMeterProvider builds an SDK meter provider that exports every Interval
// as JSON lines on Writer. Callers must Shutdown it to flush the last
// collection.
func NewMeterProvider(cfg ExportConfig) (*sdkmetric.MeterProvider, error) {
	if cfg.Writer == nil {
		return nil, fmt.Errorf("otel export writer is required")
	}
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	var opts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		opts = append(opts, sdkmetric.WithInterval(cfg.Interval))
	}
	reader := sdkmetric.NewPeriodicReader(exporter, opts...)
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), nil
}

// OTel records Add calls on Int64Counters and Store calls on Int64Gauges,
// creating instruments on first use.
type OTel struct {
	meter    metric.Meter
	mu       sync.Mutex
	counters map[string]metric.Int64Counter
	gauges   map[string]metric.Int64Gauge
	onError  func(error)
}

// NewOTel wraps meter. onError receives instrument creation failures and may
// be nil.
func NewOTel(meter metric.Meter, onError func(error)) *OTel {
	if meter == nil {
		meter = Meter()
	}
	return &OTel{
		meter:    meter,
		counters: make(map[string]metric.Int64Counter),
		gauges:   make(map[string]metric.Int64Gauge),
		onError:  onError,
	}
}

func (o *OTel) Add(key string, delta uint64) {
	if o == nil {
		return
	}
	if counter, ok := o.counter(key); ok {
		counter.Add(context.Background(), int64(delta))
	}
}

func (o *OTel) Store(key string, value uint64) {
	if o == nil {
		return
	}
	if gauge, ok := o.gauge(key); ok {
		gauge.Record(context.Background(), int64(value))
	}
}

func (o *OTel) counter(key string) (metric.Int64Counter, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if c, ok := o.counters[key]; ok {
		return c, true
	}
	c, err := o.meter.Int64Counter(key)
	if err != nil {
		o.fail(err)
		return nil, false
	}
	o.counters[key] = c
	return c, true
}

func (o *OTel) gauge(key string) (metric.Int64Gauge, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if g, ok := o.gauges[key]; ok {
		return g, true
	}
	g, err := o.meter.Int64Gauge(key)
	if err != nil {
		o.fail(err)
		return nil, false
	}
	o.gauges[key] = g
	return g, true
}

func (o *OTel) fail(err error) {
	if o.onError != nil {
		o.onError(err)
	}
}

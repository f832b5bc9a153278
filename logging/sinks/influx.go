package sinks

import (
	"context"
	"errors"
	"log"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"swaphouse/server/logging"
	roundlog "swaphouse/server/logging/round"
	"swaphouse/server/logging/simulation"
)

// Measurements written by the influx sink.
const (
	MeasurementRoundEnd    = "round_end"
	MeasurementRoundCatch  = "round_catch"
	MeasurementRoundVote   = "round_vote"
	MeasurementTickOverrun = "tick_overrun"
	MeasurementPartInstall = "part_installed"
)

var ErrInfluxNotConfigured = errors.New("influx sink: url and bucket are required")

// pointWriter is the subset of the influx WriteAPI the sink needs.
type pointWriter interface {
	WritePoint(point *influxdb2_write.Point)
	Flush()
}

// Influx turns round outcome events into InfluxDB points. Events without a
// metric mapping are ignored.
type Influx struct {
	writer pointWriter
	client influxdb2.Client
}

// NewInflux connects a non-blocking write API for cfg.Bucket. Async write
// errors are reported to fallback.
func NewInflux(cfg logging.InfluxConfig, fallback *log.Logger) (*Influx, error) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, ErrInfluxNotConfigured
	}
	opts := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		opts = opts.SetBatchSize(cfg.BatchSize)
	}
	if cfg.FlushInterval > 0 {
		opts = opts.SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	errorsCh := writeAPI.Errors()
	go func() {
		for err := range errorsCh {
			if fallback != nil {
				fallback.Printf("influx write to %s failed: %v", cfg.Bucket, err)
			}
		}
	}()
	return &Influx{writer: writeAPI, client: client}, nil
}

func newInfluxWithWriter(w pointWriter) *Influx {
	return &Influx{writer: w}
}

func (s *Influx) Write(event logging.Event) error {
	point := PointFor(event)
	if point == nil {
		return nil
	}
	s.writer.WritePoint(point)
	return nil
}

func (s *Influx) Close(context.Context) error {
	s.writer.Flush()
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// PointFor maps an event onto a measurement, or returns nil.
func PointFor(event logging.Event) *influxdb2_write.Point {
	var point *influxdb2_write.Point
	switch payload := event.Payload.(type) {
	case roundlog.EndedPayload:
		point = influxdb2_write.NewPointWithMeasurement(MeasurementRoundEnd).
			AddTag("reason", payload.Reason).
			AddField("won", payload.Won).
			AddField("time_taken_ms", payload.TimeTakenMs).
			AddField("times_caught", payload.TimesCaught).
			AddField("items_sacrificed", payload.ItemsSacrificed)
	case roundlog.CaughtPayload:
		point = influxdb2_write.NewPointWithMeasurement(MeasurementRoundCatch).
			AddTag("demand", payload.Demand).
			AddField("has_item", payload.HasItem)
	case roundlog.VoteResolvedPayload:
		point = influxdb2_write.NewPointWithMeasurement(MeasurementRoundVote).
			AddField("give", payload.Give).
			AddField("refuse", payload.Refuse).
			AddField("gave_item", payload.GaveItem).
			AddField("time_remaining_ms", payload.TimeRemainingMs)
	case roundlog.PartInstalledPayload:
		point = influxdb2_write.NewPointWithMeasurement(MeasurementPartInstall).
			AddTag("part", payload.Part).
			AddField("count", 1)
	case simulation.TickBudgetOverrunPayload:
		point = influxdb2_write.NewPointWithMeasurement(MeasurementTickOverrun).
			AddField("duration_ms", payload.DurationMillis).
			AddField("budget_ms", payload.BudgetMillis).
			AddField("ratio", payload.Ratio).
			AddField("streak", payload.Streak)
	default:
		return nil
	}
	if event.Room != "" {
		point.AddTag("room", event.Room)
	}
	ts := event.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return point.SetTime(ts)
}

package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"swaphouse/server/logging"
)

// ConsoleSink renders one human-readable line per event.
type ConsoleSink struct {
	logger zerolog.Logger
}

func NewConsoleSink(w io.Writer, cfg logging.ConsoleConfig) *ConsoleSink {
	if w == nil {
		w = io.Discard
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: true}
	}
	return &ConsoleSink{logger: zerolog.New(w)}
}

func (s *ConsoleSink) Write(event logging.Event) error {
	e := s.logger.WithLevel(zerologLevel(event.Severity)).
		Time("time", event.Time).
		Str("actor", formatEntity(event.Actor)).
		Uint64("tick", event.Tick)
	if event.Room != "" {
		e = e.Str("room", event.Room)
	}
	if targets := formatTargets(event.Targets); targets != "" {
		e = e.Str("targets", targets)
	}
	if payload := formatPayload(event.Payload); payload != "" {
		e = e.Str("payload", payload)
	}
	e.Msg(string(event.Type))
	return nil
}

func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func formatEntity(ref logging.EntityRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
}

func formatTargets(targets []logging.EntityRef) string {
	if len(targets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(targets))
	for _, target := range targets {
		parts = append(parts, formatEntity(target))
	}
	return strings.Join(parts, ",")
}

func formatPayload(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}

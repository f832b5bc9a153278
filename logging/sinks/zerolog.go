package sinks

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"swaphouse/server/logging"
)

// Zerolog writes every event as one structured zerolog record.
type Zerolog struct {
	logger zerolog.Logger
}

// NewZerolog wraps an existing logger. The event type becomes the message.
func NewZerolog(logger zerolog.Logger) *Zerolog {
	return &Zerolog{logger: logger}
}

// NewZerologWriter builds a timestamped JSON logger over w.
func NewZerologWriter(w io.Writer) *Zerolog {
	if w == nil {
		w = io.Discard
	}
	return NewZerolog(zerolog.New(w).With().Timestamp().Logger())
}

func (s *Zerolog) Write(event logging.Event) error {
	e := s.logger.WithLevel(zerologLevel(event.Severity)).
		Str("category", event.Category).
		Uint64("tick", event.Tick).
		Str("actorKind", string(event.Actor.Kind))
	if event.Room != "" {
		e = e.Str("room", event.Room)
	}
	if event.Actor.ID != "" {
		e = e.Str("actor", event.Actor.ID)
	}
	if len(event.Targets) > 0 {
		ids := make([]string, 0, len(event.Targets))
		for _, target := range event.Targets {
			ids = append(ids, formatEntity(target))
		}
		e = e.Strs("targets", ids)
	}
	if event.Payload != nil {
		e = e.Interface("payload", event.Payload)
	}
	if len(event.Extra) > 0 {
		e = e.Fields(event.Extra)
	}
	e.Msg(string(event.Type))
	return nil
}

func (s *Zerolog) Close(context.Context) error {
	return nil
}

func zerologLevel(sev logging.Severity) zerolog.Level {
	switch sev {
	case logging.SeverityDebug:
		return zerolog.DebugLevel
	case logging.SeverityWarn:
		return zerolog.WarnLevel
	case logging.SeverityError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

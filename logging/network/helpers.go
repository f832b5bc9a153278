package network

import (
	"context"

	"swaphouse/server/logging"
)

const (
	// EventMalformedMessage is emitted when a client frame cannot be decoded.
	EventMalformedMessage logging.EventType = "network.malformed_message"
	// EventInputRateLimited is emitted when a session exceeds its input budget.
	EventInputRateLimited logging.EventType = "network.input_rate_limited"
	// EventSendDropped is emitted when a session's outbound queue is full.
	EventSendDropped logging.EventType = "network.send_dropped"
)

// MalformedPayload captures why a frame was rejected.
type MalformedPayload struct {
	Error string `json:"error"`
	Bytes int    `json:"bytes"`
}

// RateLimitedPayload captures how many frames a session has had dropped.
type RateLimitedPayload struct {
	Dropped uint64 `json:"dropped"`
}

// SendDroppedPayload names the outbound message that was discarded.
type SendDroppedPayload struct {
	MessageType string `json:"messageType"`
	Dropped     uint64 `json:"dropped"`
}

func publish(ctx context.Context, pub logging.Publisher, typ logging.EventType, sev logging.Severity, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     typ,
		Actor:    actor,
		Severity: sev,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// MalformedMessage publishes a warning for an undecodable frame.
func MalformedMessage(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload MalformedPayload, extra map[string]any) {
	publish(ctx, pub, EventMalformedMessage, logging.SeverityWarn, actor, payload, extra)
}

// InputRateLimited publishes a debug event when input frames are shed.
func InputRateLimited(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload RateLimitedPayload, extra map[string]any) {
	publish(ctx, pub, EventInputRateLimited, logging.SeverityDebug, actor, payload, extra)
}

// SendDropped publishes a warning when a slow client misses a message.
func SendDropped(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SendDroppedPayload, extra map[string]any) {
	publish(ctx, pub, EventSendDropped, logging.SeverityWarn, actor, payload, extra)
}

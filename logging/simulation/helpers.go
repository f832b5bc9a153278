package simulation

import (
	"context"

	"swaphouse/server/logging"
)

const (
	// EventTickBudgetOverrun is emitted when a room tick exceeds its interval.
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
	// EventCommandDropped is emitted when a round's command queue is full.
	EventCommandDropped logging.EventType = "simulation.command_dropped"
)

// TickBudgetOverrunPayload captures timing details for a tick budget breach.
type TickBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
}

// CommandDroppedPayload names the command kind that could not be queued.
type CommandDroppedPayload struct {
	Kind     string `json:"kind"`
	Capacity int    `json:"capacity"`
}

// TickBudgetOverrun publishes a warning when a room tick runs long.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, room string, tick uint64, payload TickBudgetOverrunPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickBudgetOverrun,
		Room:     room,
		Tick:     tick,
		Actor:    logging.RoomRef(room),
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}

// CommandDropped publishes an error when a vote or roster change is lost.
func CommandDropped(ctx context.Context, pub logging.Publisher, room string, actor logging.EntityRef, payload CommandDroppedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCommandDropped,
		Room:     room,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

package sim

import (
	"swaphouse/server/internal/telemetry"
	"swaphouse/server/logging"
)

// Deps carries shared infrastructure for a room's tick scheduler.
type Deps struct {
	Room      string
	Clock     logging.Clock
	Logger    telemetry.Logger
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
}

package round

import (
	"time"

	"swaphouse/server/internal/ai"
	"swaphouse/server/internal/sim"
)

// Config carries the gameplay tunables of a round. Speeds are in units per
// tick; timers count down by real elapsed time.
type Config struct {
	TickInterval  time.Duration
	MatchDuration time.Duration
	SwapInterval  time.Duration
	VoteDuration  time.Duration
	Penalty       time.Duration
	DashDuration  time.Duration

	PlayerSpeed    float64
	SprintSpeed    float64
	DashSpeed      float64
	AdversarySpeed float64

	PlayerRadius   float64
	PickupRadius   float64
	CatchRadius    float64
	PanelMargin    float64
	ArrivalEpsilon float64

	InventorySize int
	SpawnJitter   float64
	DropJitter    float64

	CommandCapacity int
	CatchupMaxTicks int

	Bot ai.Tuning
}

// DefaultConfig returns the stock game balance.
func DefaultConfig() Config {
	return Config{
		TickInterval:  sim.DefaultTickInterval,
		MatchDuration: 6 * time.Minute,
		SwapInterval:  90 * time.Second,
		VoteDuration:  5 * time.Second,
		Penalty:       15 * time.Second,
		DashDuration:  150 * time.Millisecond,

		PlayerSpeed:    3,
		SprintSpeed:    5,
		DashSpeed:      12,
		AdversarySpeed: 2,

		PlayerRadius:   15,
		PickupRadius:   35,
		CatchRadius:    40,
		PanelMargin:    30,
		ArrivalEpsilon: 5,

		InventorySize: 2,
		SpawnJitter:   20,
		DropJitter:    10,

		CommandCapacity: sim.DefaultCommandCapacity,
		CatchupMaxTicks: 3,

		Bot: ai.DefaultTuning(),
	}
}

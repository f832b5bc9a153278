package round

import (
	"math/rand"

	"swaphouse/server/internal/geometry"
	"swaphouse/server/internal/items"
	"swaphouse/server/internal/state"
)

// NewRoundState builds a fresh round on table: avatar and adversary at their
// starts, one item of each type at distinct eligible spawn points, full
// timers.
func NewRoundState(table *geometry.Table, cfg Config, rng *rand.Rand) *state.RoundState {
	return &state.RoundState{
		Avatar:    state.Avatar{Position: table.AvatarStart},
		Inventory: make([]state.ItemType, 0, cfg.InventorySize),
		Capacity:  cfg.InventorySize,
		Items:     items.SpawnInitial(table, rng, cfg.SpawnJitter),
		Adversary: state.Adversary{
			Position:  table.AdversaryStart.Position,
			PathIndex: table.AdversaryStart.PathIndex,
		},
		TimeRemaining: cfg.MatchDuration,
		RotationIn:    cfg.SwapInterval,
		Phase:         state.PhasePlaying,
		Votes:         make(map[string]state.VoteChoice),
	}
}

// Package ai synthesizes inputs for CPU-controlled players. Bots produce the
// same Input record a human would send and go through the same role gating.
package ai

import (
	"math"

	"swaphouse/server/internal/geometry"
	"swaphouse/server/internal/state"
)

// Tuning holds the distance thresholds the heuristics use.
type Tuning struct {
	FleeRadius   float64
	SprintRadius float64
	DashRadius   float64
	PanelMargin  float64
	PickupReach  float64
}

// DefaultTuning matches the stock game balance.
func DefaultTuning() Tuning {
	return Tuning{
		FleeRadius:   100,
		SprintRadius: 150,
		DashRadius:   80,
		PanelMargin:  40,
		PickupReach:  45,
	}
}

// Synthesize returns the input a bot holding role would send this tick.
func Synthesize(role state.Role, s *state.RoundState, table *geometry.Table, tuning Tuning) state.Input {
	var input state.Input
	if s == nil || table == nil || s.Avatar.Frozen {
		return input
	}
	switch role {
	case state.RoleMove:
		input.Direction = steer(s, table, tuning)
	case state.RoleInteract:
		input.Interact = shouldInteract(s, table, tuning)
	case state.RoleSprint:
		input.Sprint = adversaryDistance(s) < tuning.SprintRadius
	case state.RoleDash:
		input.Dash = adversaryDistance(s) < tuning.DashRadius && !s.Avatar.Dashing
	case state.RoleDrop:
		// Bots never discard items.
	}
	return input
}

func adversaryDistance(s *state.RoundState) float64 {
	return state.Distance(s.Avatar.Position, s.Adversary.Position)
}

func steer(s *state.RoundState, table *geometry.Table, tuning Tuning) state.Vec2 {
	pos := s.Avatar.Position
	if adversaryDistance(s) < tuning.FleeRadius {
		away := pos.Sub(s.Adversary.Position)
		if away.IsZero() {
			return state.Vec2{X: 1}
		}
		return away.Normalize()
	}

	if holdsNeeded(s) {
		return cardinalToward(pos, table.ExitPanel.Center())
	}

	if !s.InventoryFull() {
		if target, ok := nearestTarget(s); ok {
			return cardinalToward(pos, target)
		}
	}

	if s.Installed.All() {
		return cardinalToward(pos, table.ExitZone.Center())
	}
	return state.Vec2{}
}

func holdsNeeded(s *state.RoundState) bool {
	for _, held := range s.Inventory {
		if !s.Installed.Has(held) {
			return true
		}
	}
	return false
}

// nearestTarget prefers the closest uncollected needed item and falls back
// to the closest uncollected item of any type.
func nearestTarget(s *state.RoundState) (state.Vec2, bool) {
	var needed, fallback state.Vec2
	neededDist, anyDist := math.Inf(1), math.Inf(1)
	for _, item := range s.Items {
		if item.Collected {
			continue
		}
		d := state.Distance(s.Avatar.Position, item.Position)
		if !s.Installed.Has(item.Type) && d < neededDist {
			needed, neededDist = item.Position, d
		}
		if d < anyDist {
			fallback, anyDist = item.Position, d
		}
	}
	switch {
	case !math.IsInf(neededDist, 1):
		return needed, true
	case !math.IsInf(anyDist, 1):
		return fallback, true
	default:
		return state.Vec2{}, false
	}
}

// cardinalToward snaps the direction to the dominant axis. Exact diagonals
// keep both components.
func cardinalToward(from, to state.Vec2) state.Vec2 {
	dir := to.Sub(from).Normalize()
	ax, ay := math.Abs(dir.X), math.Abs(dir.Y)
	switch {
	case ax > ay:
		return state.Vec2{X: math.Copysign(1, dir.X)}
	case ay > ax:
		return state.Vec2{Y: math.Copysign(1, dir.Y)}
	default:
		return dir
	}
}

func shouldInteract(s *state.RoundState, table *geometry.Table, tuning Tuning) bool {
	pos := s.Avatar.Position
	if table.ExitPanel.Expand(tuning.PanelMargin).Contains(pos) && holdsNeeded(s) {
		return true
	}
	if !s.InventoryFull() {
		for _, item := range s.Items {
			if !item.Collected && state.Distance(pos, item.Position) < tuning.PickupReach {
				return true
			}
		}
	}
	return table.ExitZone.Contains(pos) && s.Installed.All()
}

// Bot is a CPU-controlled roster entry.
type Bot struct {
	ID     string
	role   state.Role
	tuning Tuning
}

// NewBot creates a bot currently holding role.
func NewBot(id string, role state.Role, tuning Tuning) *Bot {
	return &Bot{ID: id, role: role, tuning: tuning}
}

// Role returns the role the bot last acted under.
func (b *Bot) Role() state.Role {
	if b == nil {
		return state.RoleNone
	}
	return b.role
}

// UpdateRole records a role change after rotation.
func (b *Bot) UpdateRole(role state.Role) {
	if b == nil {
		return
	}
	b.role = role
}

// Input synthesizes the bot's input for the current tick.
func (b *Bot) Input(s *state.RoundState, table *geometry.Table) state.Input {
	if b == nil {
		return state.Input{}
	}
	return Synthesize(b.role, s, table, b.tuning)
}

// Vote is the ballot a bot casts when the avatar is caught: give when there
// is anything to give.
func Vote(s *state.RoundState) state.VoteChoice {
	if len(s.Inventory) > 0 {
		return state.VoteGive
	}
	return state.VoteRefuse
}

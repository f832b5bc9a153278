// Package items implements pickup, drop, install and respawn rules for the
// three exit-panel components.
package items

import (
	"math/rand"

	"swaphouse/server/internal/geometry"
	"swaphouse/server/internal/state"
	"swaphouse/server/internal/world"
)

// CanPickup reports whether the inventory has room for another item.
func CanPickup(s *state.RoundState) bool {
	return !s.InventoryFull()
}

// Nearest returns the index of the closest uncollected item strictly within
// radius of the avatar, or -1.
func Nearest(s *state.RoundState, radius float64) int {
	best := -1
	bestDist := radius
	for i, item := range s.Items {
		if item.Collected {
			continue
		}
		d := state.Distance(s.Avatar.Position, item.Position)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// Pickup moves the item at idx into the inventory. It is a no-op when the
// inventory is full or the item is already collected.
func Pickup(s *state.RoundState, idx int) bool {
	if idx < 0 || idx >= len(s.Items) || s.Items[idx].Collected || !CanPickup(s) {
		return false
	}
	s.Items[idx].Collected = true
	s.Inventory = append(s.Inventory, s.Items[idx].Type)
	return true
}

// Drop pops the most recently acquired item and places a new instance near
// the avatar.
func Drop(s *state.RoundState, rng *rand.Rand, jitter float64) (state.Item, bool) {
	if len(s.Inventory) == 0 {
		return state.Item{}, false
	}
	last := len(s.Inventory) - 1
	typ := s.Inventory[last]
	s.Inventory = s.Inventory[:last]
	item := state.Item{Type: typ, Position: world.Jitter(rng, s.Avatar.Position, jitter)}
	s.Items = append(s.Items, item)
	return item, true
}

// Has reports whether the inventory holds an item of type t.
func Has(s *state.RoundState, t state.ItemType) bool {
	return indexOf(s.Inventory, t) >= 0
}

// Remove deletes the first inventory item of type t.
func Remove(s *state.RoundState, t state.ItemType) bool {
	idx := indexOf(s.Inventory, t)
	if idx < 0 {
		return false
	}
	s.Inventory = append(s.Inventory[:idx], s.Inventory[idx+1:]...)
	return true
}

func indexOf(inventory []state.ItemType, t state.ItemType) int {
	for i, held := range inventory {
		if held == t {
			return i
		}
	}
	return -1
}

// FirstNeededHeld returns the first inventory item that is not installed yet.
func FirstNeededHeld(s *state.RoundState) (state.ItemType, bool) {
	for _, held := range s.Inventory {
		if !s.Installed.Has(held) {
			return held, true
		}
	}
	return "", false
}

// Install moves the first needed inventory item into the exit panel.
func Install(s *state.RoundState) (state.ItemType, bool) {
	typ, ok := FirstNeededHeld(s)
	if !ok {
		return "", false
	}
	Remove(s, typ)
	s.Installed.Install(typ)
	return typ, true
}

// DemandFor computes what the adversary asks for right now: a needed part
// the avatar holds, else any held item, else nothing it can be given.
func DemandFor(s *state.RoundState) state.Demand {
	if typ, ok := FirstNeededHeld(s); ok {
		return state.DemandFor(typ)
	}
	if len(s.Inventory) > 0 {
		return state.DemandAny
	}
	return state.DemandImpossible
}

// Sacrifice removes the item that satisfies demand. For DemandAny the first
// inventory slot is taken.
func Sacrifice(s *state.RoundState, demand state.Demand) (state.ItemType, bool) {
	if !demand.Satisfiable() || len(s.Inventory) == 0 {
		return "", false
	}
	typ, exact := demand.ItemType()
	if !exact {
		typ = s.Inventory[0]
	}
	if !Remove(s, typ) {
		return "", false
	}
	return typ, true
}

// Respawn appends a fresh item of type t at a random spawn point that
// allows it.
func Respawn(s *state.RoundState, table *geometry.Table, rng *rand.Rand, t state.ItemType, jitter float64) state.Item {
	pos := s.Avatar.Position
	if candidates := table.SpawnsFor(t); len(candidates) > 0 {
		pos = table.SpawnPoints[candidates[rng.Intn(len(candidates))]].Position
	}
	item := state.Item{Type: t, Position: world.Jitter(rng, pos, jitter)}
	s.Items = append(s.Items, item)
	return item
}

// SpawnInitial places one item of each type, each at a distinct spawn point
// that allows it.
func SpawnInitial(table *geometry.Table, rng *rand.Rand, jitter float64) []state.Item {
	used := make(map[int]bool, len(state.ItemTypes))
	out := make([]state.Item, 0, len(state.ItemTypes))
	for _, typ := range state.ItemTypes {
		var free []int
		for _, idx := range table.SpawnsFor(typ) {
			if !used[idx] {
				free = append(free, idx)
			}
		}
		if len(free) == 0 {
			continue
		}
		idx := free[rng.Intn(len(free))]
		used[idx] = true
		out = append(out, state.Item{
			Type:     typ,
			Position: world.Jitter(rng, table.SpawnPoints[idx].Position, jitter),
		})
	}
	return out
}

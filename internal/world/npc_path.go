package world

import (
	"swaphouse/server/internal/geometry"
	"swaphouse/server/internal/state"
)

// AdvancePatrol moves the adversary one step toward its current waypoint.
// A step that finds the adversary already within arrival of the waypoint
// only advances the index, wrapping at the end of the path.
func AdvancePatrol(adv *state.Adversary, path []state.Vec2, speed, arrival float64) {
	if adv == nil || len(path) == 0 {
		return
	}
	if adv.PathIndex < 0 || adv.PathIndex >= len(path) {
		adv.PathIndex = 0
	}
	target := path[adv.PathIndex]
	delta := target.Sub(adv.Position)
	dist := delta.Len()
	if dist < arrival {
		adv.PathIndex = (adv.PathIndex + 1) % len(path)
		return
	}
	adv.Position = adv.Position.Add(delta.Scale(speed / dist))
}

// WithinCatch reports whether the adversary is close enough to catch the
// avatar at pos.
func WithinCatch(adv state.Adversary, pos state.Vec2, radius float64) bool {
	return state.Distance(adv.Position, pos) < radius
}

// ResetAdversary returns the adversary to its configured start.
func ResetAdversary(adv *state.Adversary, start geometry.AdversaryStart) {
	if adv == nil {
		return
	}
	adv.Position = start.Position
	adv.PathIndex = start.PathIndex
}

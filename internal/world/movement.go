package world

import (
	"math"

	"swaphouse/server/internal/state"
)

// Integrate applies the avatar's per-tick velocity to its position.
// Velocities are expressed in units per tick.
func Integrate(avatar *state.Avatar) {
	if avatar == nil {
		return
	}
	avatar.Position = avatar.Position.Add(avatar.Velocity)
}

// ResolveWalls pushes the avatar out of every wall it overlaps, one wall at a
// time in table order.
func ResolveWalls(avatar *state.Avatar, walls []state.Rect, radius float64) {
	if avatar == nil {
		return
	}
	for _, wall := range walls {
		avatar.Position = resolveWallPenetration(avatar.Position, wall, radius)
	}
}

func resolveWallPenetration(pos state.Vec2, wall state.Rect, radius float64) state.Vec2 {
	closest := wall.ClosestPoint(pos)
	sep := pos.Sub(closest)
	dist := sep.Len()
	if dist >= radius {
		return pos
	}

	if dist > 0 {
		overlap := radius - dist
		return pos.Add(sep.Scale(overlap / dist))
	}

	// Center sits inside the wall. Escape through the nearer face on
	// whichever axis needs the smaller push.
	var pushX, pushY float64
	if pos.X < wall.X+wall.Width/2 {
		pushX = wall.X - radius - pos.X
	} else {
		pushX = wall.X + wall.Width + radius - pos.X
	}
	if pos.Y < wall.Y+wall.Height/2 {
		pushY = wall.Y - radius - pos.Y
	} else {
		pushY = wall.Y + wall.Height + radius - pos.Y
	}
	if math.Abs(pushX) < math.Abs(pushY) {
		pos.X += pushX
	} else {
		pos.Y += pushY
	}
	return pos
}

// SpeedTier selects the per-tick speed for the avatar.
func SpeedTier(dashing, sprinting bool, base, sprint, dash float64) float64 {
	switch {
	case dashing:
		return dash
	case sprinting:
		return sprint
	default:
		return base
	}
}

// Steer converts a raw direction into a velocity of the given speed. Diagonal
// input is normalized so it is no faster than a cardinal one.
func Steer(direction state.Vec2, speed float64) state.Vec2 {
	if direction.X != 0 && direction.Y != 0 {
		direction = direction.Normalize()
	}
	return direction.Scale(speed)
}

// Package roles maps room sizes to role sets and keeps roles rotating.
package roles

import (
	"errors"
	"fmt"
	"math/rand"

	"swaphouse/server/internal/state"
)

// ErrUnsupportedPlayerCount is returned when no role set exists for the
// number of players in a room.
var ErrUnsupportedPlayerCount = errors.New("roles: unsupported player count")

const (
	MinPlayers = 2
	MaxPlayers = 5

	maxRotateAttempts = 16
)

var roleSets = map[int][]state.Role{
	2: {state.RoleMove, state.RoleInteract},
	3: {state.RoleMove, state.RoleInteract, state.RoleDash},
	4: {state.RoleMove, state.RoleInteract, state.RoleDash, state.RoleSprint},
	5: {state.RoleMove, state.RoleInteract, state.RoleDash, state.RoleSprint, state.RoleDrop},
}

// RolesFor returns a copy of the ordered role set for count players.
func RolesFor(count int) ([]state.Role, error) {
	set, ok := roleSets[count]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedPlayerCount, count)
	}
	out := make([]state.Role, len(set))
	copy(out, set)
	return out, nil
}

// Manager assigns and rotates roles. It is not safe for concurrent use; each
// round owns one.
type Manager struct {
	rng *rand.Rand
}

// NewManager returns a manager drawing from rng.
func NewManager(rng *rand.Rand) *Manager {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Manager{rng: rng}
}

// Assign shuffles the players and hands out the role set positionally.
// players is modified in place; its order is preserved.
func (m *Manager) Assign(players []state.Player) error {
	set, err := RolesFor(len(players))
	if err != nil {
		return err
	}
	order := m.rng.Perm(len(players))
	for i, idx := range order {
		players[idx].Role = set[i]
	}
	return nil
}

// Rotate reshuffles the roles currently held so that at least one player
// ends up with a different role. A single player keeps their role.
func (m *Manager) Rotate(players []state.Player) []state.RoleAssignment {
	if len(players) <= 1 {
		return Assignments(players)
	}
	current := make([]state.Role, len(players))
	for i, p := range players {
		current[i] = p.Role
	}

	next := make([]state.Role, len(current))
	changed := false
	for attempt := 0; attempt < maxRotateAttempts && !changed; attempt++ {
		copy(next, current)
		m.rng.Shuffle(len(next), func(i, j int) { next[i], next[j] = next[j], next[i] })
		changed = differs(current, next)
	}
	if !changed {
		// Role sets hold distinct roles, so a cyclic shift always differs.
		for i := range next {
			next[i] = current[(i+1)%len(current)]
		}
	}

	for i := range players {
		players[i].Role = next[i]
	}
	return Assignments(players)
}

func differs(a, b []state.Role) bool {
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}

// RoleOf looks up the role held by id.
func RoleOf(players []state.Player, id string) (state.Role, bool) {
	for _, p := range players {
		if p.ID == id {
			return p.Role, true
		}
	}
	return state.RoleNone, false
}

// Assignments lists the id and role of every player in roster order.
func Assignments(players []state.Player) []state.RoleAssignment {
	out := make([]state.RoleAssignment, 0, len(players))
	for _, p := range players {
		out = append(out, state.RoleAssignment{ID: p.ID, Role: p.Role})
	}
	return out
}

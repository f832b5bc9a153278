package state

import "time"

// Avatar is the single character every player in a room controls jointly.
type Avatar struct {
	Position   Vec2          `json:"position"`
	Velocity   Vec2          `json:"velocity"`
	Frozen     bool          `json:"isFrozen"`
	Dashing    bool          `json:"isDashing"`
	DashEndsAt time.Duration `json:"-"`
}

// Item is a component lying in the world or already collected. Collected
// items stay in the list so respawns append new instances instead of
// reusing old ones.
type Item struct {
	Type      ItemType `json:"type"`
	Position  Vec2     `json:"position"`
	Collected bool     `json:"isCollected"`
}

// Adversary is the patrolling collector.
type Adversary struct {
	Position  Vec2 `json:"position"`
	PathIndex int  `json:"currentPathIndex"`
}

// InstalledParts tracks the exit-panel components. Each flag only ever
// moves from false to true within a round.
type InstalledParts struct {
	Battery bool `json:"battery"`
	Bulb    bool `json:"bulb"`
	Handle  bool `json:"handle"`
}

// Has reports whether the component of type t is installed.
func (p InstalledParts) Has(t ItemType) bool {
	switch t {
	case ItemBattery:
		return p.Battery
	case ItemBulb:
		return p.Bulb
	case ItemSwitchHandle:
		return p.Handle
	default:
		return false
	}
}

// Install marks t as installed. It never clears a flag.
func (p *InstalledParts) Install(t ItemType) bool {
	if p.Has(t) {
		return false
	}
	switch t {
	case ItemBattery:
		p.Battery = true
	case ItemBulb:
		p.Bulb = true
	case ItemSwitchHandle:
		p.Handle = true
	default:
		return false
	}
	return true
}

// All reports whether every component is installed.
func (p InstalledParts) All() bool {
	return p.Battery && p.Bulb && p.Handle
}

// Needed lists the components not yet installed, in ItemTypes order.
func (p InstalledParts) Needed() []ItemType {
	needed := make([]ItemType, 0, len(ItemTypes))
	for _, t := range ItemTypes {
		if !p.Has(t) {
			needed = append(needed, t)
		}
	}
	return needed
}

// Input is the fixed-shape control record a player or bot submits.
type Input struct {
	Direction Vec2 `json:"direction"`
	Sprint    bool `json:"sprint"`
	Interact  bool `json:"interact"`
	Drop      bool `json:"drop"`
	Dash      bool `json:"dash"`
}

// Sanitized clamps the direction into [-1, 1] on both axes.
func (in Input) Sanitized() Input {
	in.Direction.X = Clamp(in.Direction.X, -1, 1)
	in.Direction.Y = Clamp(in.Direction.Y, -1, 1)
	return in
}

// RoundState is the mutable aggregate of one round. Only the owning round's
// tick mutates it.
type RoundState struct {
	Avatar        Avatar
	Inventory     []ItemType
	Capacity      int
	Installed     InstalledParts
	Items         []Item
	Adversary     Adversary
	TimeRemaining time.Duration
	RotationIn    time.Duration
	Elapsed       time.Duration
	Phase         Phase

	// Populated only while Phase is PhaseVoting.
	Demand        Demand
	Votes         map[string]VoteChoice
	VoteRemaining time.Duration
}

// InventoryFull reports whether another item can be picked up.
func (s *RoundState) InventoryFull() bool {
	return len(s.Inventory) >= s.Capacity
}

// Snapshot copies the publicly visible fields for broadcast.
func (s *RoundState) Snapshot() Snapshot {
	inventory := make([]ItemType, len(s.Inventory))
	copy(inventory, s.Inventory)
	items := make([]Item, len(s.Items))
	copy(items, s.Items)
	return Snapshot{
		Avatar:          s.Avatar,
		Inventory:       inventory,
		Installed:       s.Installed,
		Items:           items,
		Adversary:       s.Adversary,
		TimeRemainingMs: nonNegativeMillis(s.TimeRemaining),
		RotationInMs:    nonNegativeMillis(s.RotationIn),
		Phase:           s.Phase,
	}
}

// Snapshot is the immutable view of a round sent to every room member.
type Snapshot struct {
	Avatar          Avatar         `json:"player"`
	Inventory       []ItemType     `json:"inventory"`
	Installed       InstalledParts `json:"installedParts"`
	Items           []Item         `json:"items"`
	Adversary       Adversary      `json:"npc"`
	TimeRemainingMs int64          `json:"timeRemaining"`
	RotationInMs    int64          `json:"swapTimer"`
	Phase           Phase          `json:"phase"`
}

func nonNegativeMillis(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

// Player is one roster entry of a room.
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Ready     bool   `json:"ready"`
	Role      Role   `json:"role,omitempty"`
	IsBot     bool   `json:"isBot"`
}

// RoleAssignment pairs a player with the role they hold.
type RoleAssignment struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

package round

import "swaphouse/server/internal/state"

// Outbound event names, shared with the wire protocol.
const (
	EventGameStarted  = "game-started"
	EventGameState    = "game-state"
	EventCaught       = "npc-caught"
	EventVoteUpdate   = "vote-update"
	EventVoteResolved = "vote-resolved"
	EventRoleSwap     = "role-swap"
	EventGameEnded    = "game-ended"
)

// End reasons.
const (
	ReasonEscaped          = "escaped"
	ReasonTimeout          = "timeout"
	ReasonNotEnoughPlayers = "not-enough-players"
)

// Event is an outbound message produced by a round.
type Event interface {
	EventName() string
}

// Broadcaster delivers round events to every member of a room. Publish must
// not block the tick.
type Broadcaster interface {
	Publish(code string, event Event)
}

// BroadcasterFunc adapts a function into a Broadcaster.
type BroadcasterFunc func(code string, event Event)

func (f BroadcasterFunc) Publish(code string, event Event) {
	if f != nil {
		f(code, event)
	}
}

// Started opens a round with the initial state and roles.
type Started struct {
	State state.Snapshot         `json:"gameState"`
	Roles []state.RoleAssignment `json:"roles"`
}

func (Started) EventName() string { return EventGameStarted }

// StateSnapshot carries the state after a tick.
type StateSnapshot struct {
	state.Snapshot
}

func (StateSnapshot) EventName() string { return EventGameState }

// Caught announces a catch and the item the adversary demands.
type Caught struct {
	Demand  state.Demand `json:"demand"`
	HasItem bool         `json:"hasItem"`
}

func (Caught) EventName() string { return EventCaught }

// VoteTally is the running count of an open vote.
type VoteTally struct {
	Give       int   `json:"giveVotes"`
	Refuse     int   `json:"refuseVotes"`
	TimeLeftMs int64 `json:"timeLeft"`
}

func (VoteTally) EventName() string { return EventVoteUpdate }

// VoteResolved reports whether an item was handed over and the clock left
// after any penalty.
type VoteResolved struct {
	GaveItem        bool  `json:"gaveItem"`
	TimeRemainingMs int64 `json:"timeRemaining"`
}

func (VoteResolved) EventName() string { return EventVoteResolved }

// RolesChanged carries the full assignment after a rotation or a roster
// change.
type RolesChanged struct {
	Roles []state.RoleAssignment `json:"roles"`
}

func (RolesChanged) EventName() string { return EventRoleSwap }

// Stats summarizes a finished round.
type Stats struct {
	TimeTakenMs     int64 `json:"timeTaken"`
	TimesCaught     int   `json:"timesCaught"`
	ItemsSacrificed int   `json:"itemsSacrificed"`
}

// Ended closes a round.
type Ended struct {
	Won    bool   `json:"won"`
	Reason string `json:"reason"`
	Stats  Stats  `json:"stats"`
}

func (Ended) EventName() string { return EventGameEnded }

package sim

import "swaphouse/server/internal/state"

// CommandType identifies the kind of staged command.
type CommandType string

const (
	// CommandVote records a catch ballot for ActorID.
	CommandVote CommandType = "vote"
	// CommandRemovePlayer drops ActorID from the round roster.
	CommandRemovePlayer CommandType = "remove_player"
	// CommandEnd force-ends the round with Reason.
	CommandEnd CommandType = "end"
)

// Command is a state change requested from outside the tick. Commands are
// staged in a CommandBuffer and applied at the start of the next tick.
type Command struct {
	Type    CommandType
	ActorID string
	Vote    state.VoteChoice
	Reason  string
}

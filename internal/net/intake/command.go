// Package intake turns decoded client messages into registry calls and the
// replies they produce.
package intake

import (
	"errors"
	"fmt"

	"swaphouse/server/internal/net/proto"
	"swaphouse/server/internal/rooms"
	"swaphouse/server/internal/state"
)

// Rooms is the registry surface the transport drives.
type Rooms interface {
	Create(hostID, name string, targetPlayers int) (rooms.View, error)
	Join(code, id, name string) (rooms.View, error)
	ToggleReady(id string) (rooms.View, error)
	Start(requesterID string) (rooms.View, error)
	Input(id string, input state.Input) error
	Vote(id string, choice state.VoteChoice) error
	Reset(requesterID string) (rooms.View, error)
	Leave(id, reason string) (rooms.LeaveResult, error)
}

// Message is one outbound frame.
type Message struct {
	Type string
	Data any
}

// Outcome lists what a handled message sends back. Reply goes to the sender
// only; Broadcast goes to every member of Room.
type Outcome struct {
	Reply     []Message
	Broadcast []Message
	// Room is the room the sender belongs to afterwards, when it changed.
	Room string
	// Left is set when the sender no longer belongs to any room.
	Left bool
}

func replyError(err error) Outcome {
	return Outcome{Reply: []Message{{Type: proto.TypeRoomError, Data: proto.RoomError{Message: ErrorMessage(err)}}}}
}

// ErrorMessage renders a registry error for players.
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, rooms.ErrGameInProgress):
		return "Game already in progress"
	case errors.Is(err, rooms.ErrRoomFull):
		return fmt.Sprintf("Room is full (max %d players)", rooms.MaxPlayers)
	case errors.Is(err, rooms.ErrPlayersNotReady):
		return "All players must be ready"
	case errors.Is(err, rooms.ErrNotHost):
		return "Only the host can do that"
	case errors.Is(err, rooms.ErrAlreadyInRoom):
		return "You are already in a room"
	case errors.Is(err, rooms.ErrNotInRoom):
		return "You are not in a room"
	case errors.Is(err, proto.ErrBadPayload):
		return "Malformed request"
	default:
		return "Request failed"
	}
}

// Stage applies msg from playerID. Unknown types return ok false. Player
// input and votes never reply; they are dropped when no round is running.
func Stage(reg Rooms, playerID string, msg proto.ClientMessage) (Outcome, bool) {
	switch msg.Type {
	case proto.TypeCreateRoom:
		req, err := proto.DecodePayload[proto.CreateRoom](msg)
		if err != nil {
			return replyError(err), true
		}
		if req.TotalPlayers == 0 {
			req.TotalPlayers = 2
		}
		view, err := reg.Create(playerID, req.PlayerName, req.TotalPlayers)
		if err != nil {
			return replyError(err), true
		}
		return Outcome{
			Reply: []Message{{Type: proto.TypeRoomCreated, Data: proto.NewRoomCreated(view, playerID)}},
			Room:  view.Code,
		}, true

	case proto.TypeJoinRoom:
		req, err := proto.DecodePayload[proto.JoinRoom](msg)
		if err != nil {
			return replyError(err), true
		}
		view, err := reg.Join(req.RoomID, playerID, req.PlayerName)
		if err != nil {
			return replyError(err), true
		}
		return Outcome{
			Reply:     []Message{{Type: proto.TypeRoomJoined, Data: proto.NewRoomCreated(view, playerID)}},
			Broadcast: []Message{playerList(view)},
			Room:      view.Code,
		}, true

	case proto.TypePlayerReady:
		view, err := reg.ToggleReady(playerID)
		if err != nil {
			return replyError(err), true
		}
		return Outcome{Broadcast: []Message{playerList(view)}}, true

	case proto.TypeStartGame:
		// The round announces itself with game-started.
		if _, err := reg.Start(playerID); err != nil {
			return replyError(err), true
		}
		return Outcome{}, true

	case proto.TypePlayerInput:
		input, err := proto.DecodePayload[proto.PlayerInput](msg)
		if err != nil {
			return Outcome{}, true
		}
		_ = reg.Input(playerID, input)
		return Outcome{}, true

	case proto.TypeVote:
		vote, err := proto.DecodePayload[proto.Vote](msg)
		if err != nil {
			return Outcome{}, true
		}
		if choice, ok := state.ParseVoteChoice(vote.Choice); ok {
			_ = reg.Vote(playerID, choice)
		}
		return Outcome{}, true

	case proto.TypePlayAgain:
		view, err := reg.Reset(playerID)
		if err != nil {
			return replyError(err), true
		}
		return Outcome{Broadcast: []Message{{
			Type: proto.TypeReturnToLobby,
			Data: proto.ReturnToLobby{Players: view.Players, HostID: view.HostID},
		}}}, true
	}
	return Outcome{}, false
}

func playerList(view rooms.View) Message {
	return Message{Type: proto.TypePlayerListUpdate, Data: proto.PlayerList{Players: view.Players, HostID: view.HostID}}
}

// Disconnect removes playerID from its room. The remaining members are told
// who left unless the room was deleted.
func Disconnect(reg Rooms, playerID, reason string) (Outcome, string, bool) {
	res, err := reg.Leave(playerID, reason)
	if err != nil {
		return Outcome{}, "", false
	}
	out := Outcome{Left: true}
	if !res.Deleted {
		out.Broadcast = []Message{{
			Type: proto.TypePlayerLeft,
			Data: proto.PlayerLeft{
				PlayerID: playerID,
				Players:  res.Players,
				HostID:   res.HostID,
				WasHost:  res.WasHost,
			},
		}}
	}
	return out, res.Code, true
}

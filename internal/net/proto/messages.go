package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"swaphouse/server/internal/rooms"
	"swaphouse/server/internal/round"
	"swaphouse/server/internal/state"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1
)

// Client message type identifiers.
const (
	TypeCreateRoom  = "create-room"
	TypeJoinRoom    = "join-room"
	TypePlayerReady = "player-ready"
	TypeStartGame   = "start-game"
	TypePlayerInput = "player-input"
	TypeVote        = "vote"
	TypePlayAgain   = "play-again"
)

// Server message type identifiers. Round events use their own names.
const (
	TypeRoomCreated      = "room-created"
	TypeRoomJoined       = "room-joined"
	TypePlayerListUpdate = "player-list-update"
	TypeRoomError        = "room-error"
	TypeReturnToLobby    = "return-to-lobby"
	TypePlayerLeft       = "player-left"

	TypeGameStarted  = round.EventGameStarted
	TypeGameState    = round.EventGameState
	TypeNPCCaught    = round.EventCaught
	TypeVoteUpdate   = round.EventVoteUpdate
	TypeVoteResolved = round.EventVoteResolved
	TypeRoleSwap     = round.EventRoleSwap
	TypeGameEnded    = round.EventGameEnded
)

var (
	ErrMissingType = errors.New("message type is required")
	ErrBadPayload  = errors.New("malformed message payload")
)

// Envelope is the frame every websocket message travels in.
type Envelope struct {
	Ver  int             `json:"ver"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ClientMessage captures an inbound websocket message from the client.
type ClientMessage = Envelope

// DecodeClientMessage converts raw websocket payloads into a structured message.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	if msg.Type == "" {
		return msg, ErrMissingType
	}
	return msg, nil
}

// DecodePayload unmarshals the data of msg into T. Absent data yields the
// zero value.
func DecodePayload[T any](msg ClientMessage) (T, error) {
	var out T
	if len(msg.Data) == 0 || bytes.Equal(msg.Data, []byte("null")) {
		return out, nil
	}
	if err := json.Unmarshal(msg.Data, &out); err != nil {
		return out, fmt.Errorf("%w: %s: %v", ErrBadPayload, msg.Type, err)
	}
	return out, nil
}

// Encode renders a server message with the current protocol version.
func Encode(typ string, data any) ([]byte, error) {
	frame := struct {
		Ver  int    `json:"ver"`
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}{
		Ver:  Version,
		Type: typ,
		Data: data,
	}
	return json.Marshal(frame)
}

// EncodeEvent renders a round event under its own name.
func EncodeEvent(event round.Event) ([]byte, error) {
	return Encode(event.EventName(), event)
}

// CreateRoom is sent by a host opening a lobby. A bare JSON string is
// accepted as the player name.
type CreateRoom struct {
	PlayerName   string `json:"playerName"`
	TotalPlayers int    `json:"totalPlayers"`
}

func (c *CreateRoom) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*c = CreateRoom{PlayerName: name}
		return nil
	}
	type plain CreateRoom
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = CreateRoom(p)
	return nil
}

// JoinRoom asks to join an existing lobby.
type JoinRoom struct {
	RoomID     string `json:"roomId"`
	PlayerName string `json:"playerName"`
}

// PlayerInput is the per-tick control record.
type PlayerInput = state.Input

// Vote carries a ballot. A bare JSON string is accepted as the choice.
type Vote struct {
	Choice string `json:"choice"`
}

func (v *Vote) UnmarshalJSON(data []byte) error {
	var choice string
	if err := json.Unmarshal(data, &choice); err == nil {
		v.Choice = choice
		return nil
	}
	type plain Vote
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*v = Vote(p)
	return nil
}

// RoomCreated answers a create-room request.
type RoomCreated struct {
	RoomID       string         `json:"roomId"`
	PlayerID     string         `json:"playerId"`
	HostID       string         `json:"hostId"`
	Players      []state.Player `json:"players"`
	TotalPlayers int            `json:"totalPlayers"`
}

// RoomJoined answers a join-room request.
type RoomJoined = RoomCreated

// NewRoomCreated builds the answer for playerID from a room view.
func NewRoomCreated(view rooms.View, playerID string) RoomCreated {
	return RoomCreated{
		RoomID:       view.Code,
		PlayerID:     playerID,
		HostID:       view.HostID,
		Players:      view.Players,
		TotalPlayers: view.TargetPlayers,
	}
}

// PlayerList is sent when the lobby roster changes.
type PlayerList struct {
	Players []state.Player `json:"players"`
	HostID  string         `json:"hostId,omitempty"`
}

// RoomError reports a refused request to its sender only.
type RoomError struct {
	Message string `json:"message"`
}

// PlayerLeft tells the remaining members who left and who hosts now.
type PlayerLeft struct {
	PlayerID string         `json:"playerId"`
	Players  []state.Player `json:"players"`
	HostID   string         `json:"hostId"`
	WasHost  bool           `json:"wasHost"`
}

// ReturnToLobby is sent after the host chooses to play again.
type ReturnToLobby struct {
	Players []state.Player `json:"players"`
	HostID  string         `json:"hostId"`
}

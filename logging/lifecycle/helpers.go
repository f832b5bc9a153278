package lifecycle

import (
	"context"

	"swaphouse/server/logging"
)

const (
	// EventRoomCreated is emitted when a host opens a new room.
	EventRoomCreated logging.EventType = "lifecycle.room_created"
	// EventRoomDeleted is emitted when the last human leaves a room.
	EventRoomDeleted logging.EventType = "lifecycle.room_deleted"
	// EventPlayerJoined is emitted when a player joins a room.
	EventPlayerJoined logging.EventType = "lifecycle.player_joined"
	// EventPlayerDisconnected is emitted when a player leaves a room.
	EventPlayerDisconnected logging.EventType = "lifecycle.player_disconnected"
	// EventHostChanged is emitted when hosting passes to another player.
	EventHostChanged logging.EventType = "lifecycle.host_changed"
)

// RoomCreatedPayload captures the room's configured size.
type RoomCreatedPayload struct {
	TargetPlayers int `json:"targetPlayers"`
}

// PlayerJoinedPayload captures the display name a player joined under.
type PlayerJoinedPayload struct {
	Name string `json:"name"`
}

// PlayerDisconnectedPayload captures the reason a player left.
type PlayerDisconnectedPayload struct {
	Reason    string `json:"reason"`
	Remaining int    `json:"remaining"`
}

// HostChangedPayload records the previous host.
type HostChangedPayload struct {
	Previous string `json:"previous"`
}

func publish(ctx context.Context, pub logging.Publisher, typ logging.EventType, room string, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     typ,
		Room:     room,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// RoomCreated publishes a room creation by its host.
func RoomCreated(ctx context.Context, pub logging.Publisher, room string, host logging.EntityRef, payload RoomCreatedPayload) {
	publish(ctx, pub, EventRoomCreated, room, host, payload, nil)
}

// RoomDeleted publishes a room removal.
func RoomDeleted(ctx context.Context, pub logging.Publisher, room string) {
	publish(ctx, pub, EventRoomDeleted, room, logging.RoomRef(room), nil, nil)
}

// PlayerJoined publishes a player join event.
func PlayerJoined(ctx context.Context, pub logging.Publisher, room string, actor logging.EntityRef, payload PlayerJoinedPayload, extra map[string]any) {
	publish(ctx, pub, EventPlayerJoined, room, actor, payload, extra)
}

// PlayerDisconnected publishes a player disconnect event.
func PlayerDisconnected(ctx context.Context, pub logging.Publisher, room string, actor logging.EntityRef, payload PlayerDisconnectedPayload, extra map[string]any) {
	publish(ctx, pub, EventPlayerDisconnected, room, actor, payload, extra)
}

// HostChanged publishes a host handover to actor.
func HostChanged(ctx context.Context, pub logging.Publisher, room string, actor logging.EntityRef, payload HostChangedPayload) {
	publish(ctx, pub, EventHostChanged, room, actor, payload, nil)
}

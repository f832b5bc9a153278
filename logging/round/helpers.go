package round

import (
	"context"

	"swaphouse/server/logging"
)

const (
	// EventStarted is emitted when a room hands its roster to a new round.
	EventStarted logging.EventType = "round.started"
	// EventCaught is emitted when the adversary catches the avatar.
	EventCaught logging.EventType = "round.caught"
	// EventVoteResolved is emitted when a catch vote is settled.
	EventVoteResolved logging.EventType = "round.vote_resolved"
	// EventRolesRotated is emitted whenever roles are reshuffled or reassigned.
	EventRolesRotated logging.EventType = "round.roles_rotated"
	// EventPartInstalled is emitted when a component goes into the exit panel.
	EventPartInstalled logging.EventType = "round.part_installed"
	// EventEnded is emitted once per round with the final statistics.
	EventEnded logging.EventType = "round.ended"
)

// StartedPayload records the roster a round starts with.
type StartedPayload struct {
	Players int `json:"players"`
	Bots    int `json:"bots"`
}

// CaughtPayload records the demand computed at a catch.
type CaughtPayload struct {
	Demand  string `json:"demand"`
	HasItem bool   `json:"hasItem"`
}

// VoteResolvedPayload records the outcome of a catch vote.
type VoteResolvedPayload struct {
	Give            int   `json:"give"`
	Refuse          int   `json:"refuse"`
	GaveItem        bool  `json:"gaveItem"`
	TimeRemainingMs int64 `json:"timeRemainingMs"`
	AdversaryReset  bool  `json:"adversaryReset"`
}

// RolesRotatedPayload records the new assignment.
type RolesRotatedPayload struct {
	Roles  map[string]string `json:"roles"`
	Reason string            `json:"reason"`
}

// PartInstalledPayload names the installed component.
type PartInstalledPayload struct {
	Part string `json:"part"`
}

// EndedPayload carries the outcome and statistics of a round.
type EndedPayload struct {
	Won             bool   `json:"won"`
	Reason          string `json:"reason"`
	TimeTakenMs     int64  `json:"timeTakenMs"`
	TimesCaught     int    `json:"timesCaught"`
	ItemsSacrificed int    `json:"itemsSacrificed"`
}

func publish(ctx context.Context, pub logging.Publisher, typ logging.EventType, sev logging.Severity, room string, tick uint64, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     typ,
		Room:     room,
		Tick:     tick,
		Actor:    actor,
		Severity: sev,
		Category: logging.CategoryRound,
		Payload:  payload,
		Extra:    extra,
	})
}

// Started publishes a round start.
func Started(ctx context.Context, pub logging.Publisher, room string, payload StartedPayload) {
	publish(ctx, pub, EventStarted, logging.SeverityInfo, room, 0, logging.RoomRef(room), payload, nil)
}

// Caught publishes a catch.
func Caught(ctx context.Context, pub logging.Publisher, room string, tick uint64, payload CaughtPayload) {
	actor := logging.EntityRef{ID: "collector", Kind: logging.EntityKindAdversary}
	publish(ctx, pub, EventCaught, logging.SeverityInfo, room, tick, actor, payload, nil)
}

// VoteResolved publishes a vote outcome.
func VoteResolved(ctx context.Context, pub logging.Publisher, room string, tick uint64, payload VoteResolvedPayload) {
	publish(ctx, pub, EventVoteResolved, logging.SeverityInfo, room, tick, logging.RoomRef(room), payload, nil)
}

// RolesRotated publishes a role reshuffle.
func RolesRotated(ctx context.Context, pub logging.Publisher, room string, tick uint64, payload RolesRotatedPayload) {
	publish(ctx, pub, EventRolesRotated, logging.SeverityDebug, room, tick, logging.RoomRef(room), payload, nil)
}

// PartInstalled publishes a component installation by the interacting player.
func PartInstalled(ctx context.Context, pub logging.Publisher, room string, tick uint64, actor logging.EntityRef, payload PartInstalledPayload) {
	publish(ctx, pub, EventPartInstalled, logging.SeverityInfo, room, tick, actor, payload, nil)
}

// Ended publishes the final outcome of a round.
func Ended(ctx context.Context, pub logging.Publisher, room string, tick uint64, payload EndedPayload) {
	sev := logging.SeverityInfo
	if payload.Reason == "not-enough-players" {
		sev = logging.SeverityWarn
	}
	publish(ctx, pub, EventEnded, sev, room, tick, logging.RoomRef(room), payload, nil)
}

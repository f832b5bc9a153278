package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"swaphouse/server/internal/net/proto"
	"swaphouse/server/internal/round"
)

// inbound lists every client message payload keyed by its envelope type.
type inbound struct {
	CreateRoom  proto.CreateRoom  `json:"create-room"`
	JoinRoom    proto.JoinRoom    `json:"join-room"`
	PlayerInput proto.PlayerInput `json:"player-input"`
	Vote        proto.Vote        `json:"vote"`
}

type outbound struct {
	RoomCreated      proto.RoomCreated   `json:"room-created"`
	RoomJoined       proto.RoomJoined    `json:"room-joined"`
	PlayerListUpdate proto.PlayerList    `json:"player-list-update"`
	RoomError        proto.RoomError     `json:"room-error"`
	ReturnToLobby    proto.ReturnToLobby `json:"return-to-lobby"`
	PlayerLeft       proto.PlayerLeft    `json:"player-left"`
	GameStarted      round.Started       `json:"game-started"`
	GameState        round.StateSnapshot `json:"game-state"`
	NPCCaught        round.Caught        `json:"npc-caught"`
	VoteUpdate       round.VoteTally     `json:"vote-update"`
	VoteResolved     round.VoteResolved  `json:"vote-resolved"`
	RoleSwap         round.RolesChanged  `json:"role-swap"`
	GameEnded        round.Ended         `json:"game-ended"`
}

// protocol is the document the schema describes. Payload-less client
// messages (player-ready, start-game, play-again) have no entry.
type protocol struct {
	Inbound  inbound  `json:"inbound"`
	Outbound outbound `json:"outbound"`
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(new(protocol))
	schema.Title = "SwapHouse Protocol"
	schema.Description = fmt.Sprintf("Payloads carried in the data field of {ver, type, data} envelopes, protocol version %d", proto.Version)
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}

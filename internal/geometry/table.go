// Package geometry holds the static floor plan a round is played on.
package geometry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"swaphouse/server/internal/state"
)

// RoomArea is a named region of the house. It is informational only.
type RoomArea struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Area state.Rect `json:"area"`
}

// Door is a gap between two rooms.
type Door struct {
	Area     state.Rect `json:"area"`
	Connects [2]string  `json:"connects"`
}

// SpawnPoint is a location items may appear at.
type SpawnPoint struct {
	Position state.Vec2       `json:"position"`
	Room     string           `json:"room"`
	Allowed  []state.ItemType `json:"allowedItems"`
}

// Allows reports whether items of type t may spawn here.
func (p SpawnPoint) Allows(t state.ItemType) bool {
	for _, allowed := range p.Allowed {
		if allowed == t {
			return true
		}
	}
	return false
}

// AdversaryStart places the adversary at round start.
type AdversaryStart struct {
	Position  state.Vec2 `json:"position"`
	PathIndex int        `json:"pathIndex"`
}

// Table is the read-only geometry handed to a round at construction time.
type Table struct {
	Width          float64        `json:"width"`
	Height         float64        `json:"height"`
	Rooms          []RoomArea     `json:"rooms"`
	Walls          []state.Rect   `json:"walls"`
	Doors          []Door         `json:"doors"`
	SpawnPoints    []SpawnPoint   `json:"spawnPoints"`
	PatrolPath     []state.Vec2   `json:"npcPath"`
	ExitZone       state.Rect     `json:"exitZone"`
	ExitPanel      state.Rect     `json:"exitPanel"`
	AvatarStart    state.Vec2     `json:"playerStart"`
	AdversaryStart AdversaryStart `json:"npcStart"`
}

var (
	ErrEmptyPatrol        = errors.New("geometry: patrol path is empty")
	ErrPatrolIndex        = errors.New("geometry: adversary start index outside patrol path")
	ErrNoSpawnForItemType = errors.New("geometry: no spawn point allows item type")
)

// Validate reports the first configuration error that would prevent a
// round from being built on t.
func (t *Table) Validate() error {
	if t == nil {
		return errors.New("geometry: nil table")
	}
	if len(t.PatrolPath) == 0 {
		return ErrEmptyPatrol
	}
	if t.AdversaryStart.PathIndex < 0 || t.AdversaryStart.PathIndex >= len(t.PatrolPath) {
		return fmt.Errorf("%w: %d of %d", ErrPatrolIndex, t.AdversaryStart.PathIndex, len(t.PatrolPath))
	}
	for _, typ := range state.ItemTypes {
		if len(t.SpawnsFor(typ)) == 0 {
			return fmt.Errorf("%w: %s", ErrNoSpawnForItemType, typ)
		}
	}
	return nil
}

// SpawnsFor returns the indices of spawn points that allow t.
func (t *Table) SpawnsFor(typ state.ItemType) []int {
	var idx []int
	for i, sp := range t.SpawnPoints {
		if sp.Allows(typ) {
			idx = append(idx, i)
		}
	}
	return idx
}

// LoadTable decodes a JSON floor plan and validates it.
func LoadTable(r io.Reader) (*Table, error) {
	var table Table
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&table); err != nil {
		return nil, fmt.Errorf("decode geometry table: %w", err)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &table, nil
}

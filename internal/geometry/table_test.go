package geometry

import (
	"errors"
	"strings"
	"testing"

	"swaphouse/server/internal/state"
)

func TestDefaultTableValidates(t *testing.T) {
	table := Default()
	if err := table.Validate(); err != nil {
		t.Fatalf("default table invalid: %v", err)
	}
	if len(table.Walls) != 24 {
		t.Fatalf("expected 24 walls, got %d", len(table.Walls))
	}
	if len(table.SpawnPoints) != 6 {
		t.Fatalf("expected 6 spawn points, got %d", len(table.SpawnPoints))
	}
	for _, typ := range state.ItemTypes {
		if len(table.SpawnsFor(typ)) < 3 {
			t.Fatalf("expected several spawn points for %s", typ)
		}
	}
}

func TestDefaultReturnsIndependentCopies(t *testing.T) {
	a := Default()
	b := Default()
	a.Walls[0].X = -1
	if b.Walls[0].X == -1 {
		t.Fatalf("default tables share wall storage")
	}
}

func TestValidateRejectsBrokenTables(t *testing.T) {
	t.Run("empty patrol", func(t *testing.T) {
		table := Default()
		table.PatrolPath = nil
		if err := table.Validate(); !errors.Is(err, ErrEmptyPatrol) {
			t.Fatalf("expected ErrEmptyPatrol, got %v", err)
		}
	})
	t.Run("start index", func(t *testing.T) {
		table := Default()
		table.AdversaryStart.PathIndex = len(table.PatrolPath)
		if err := table.Validate(); !errors.Is(err, ErrPatrolIndex) {
			t.Fatalf("expected ErrPatrolIndex, got %v", err)
		}
	})
	t.Run("missing spawn", func(t *testing.T) {
		table := Default()
		for i := range table.SpawnPoints {
			table.SpawnPoints[i].Allowed = []state.ItemType{state.ItemBulb}
		}
		if err := table.Validate(); !errors.Is(err, ErrNoSpawnForItemType) {
			t.Fatalf("expected ErrNoSpawnForItemType, got %v", err)
		}
	})
}

func TestLoadTable(t *testing.T) {
	doc := `{
		"width": 100, "height": 100,
		"walls": [{"x": 0, "y": 0, "width": 100, "height": 5}],
		"spawnPoints": [{"position": {"x": 50, "y": 50}, "room": "only", "allowedItems": ["BATTERY", "BULB", "SWITCH_HANDLE"]}],
		"npcPath": [{"x": 10, "y": 10}, {"x": 90, "y": 10}],
		"exitZone": {"x": 80, "y": 80, "width": 10, "height": 10},
		"exitPanel": {"x": 70, "y": 70, "width": 5, "height": 5},
		"playerStart": {"x": 20, "y": 50},
		"npcStart": {"position": {"x": 90, "y": 10}, "pathIndex": 1}
	}`
	table, err := LoadTable(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("load table: %v", err)
	}
	if table.AdversaryStart.PathIndex != 1 || len(table.Walls) != 1 {
		t.Fatalf("unexpected table %+v", table)
	}

	if _, err := LoadTable(strings.NewReader(`{"npcPath": []}`)); !errors.Is(err, ErrEmptyPatrol) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := LoadTable(strings.NewReader(`{"bogus": 1}`)); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}

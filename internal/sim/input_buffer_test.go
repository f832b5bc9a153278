package sim

import (
	"testing"

	"swaphouse/server/internal/state"
)

func TestInputBufferKeepsLatestPerPlayer(t *testing.T) {
	buffer := NewInputBuffer(nil)
	buffer.Set("b", state.Input{Sprint: true})
	buffer.Set("a", state.Input{Direction: state.Vec2{X: 4, Y: -0.5}})
	buffer.Set("b", state.Input{Interact: true})

	snapshot := buffer.Snapshot()
	if len(snapshot) != 2 || snapshot[0].PlayerID != "a" || snapshot[1].PlayerID != "b" {
		t.Fatalf("unexpected snapshot order %+v", snapshot)
	}
	if snapshot[0].Input.Direction != (state.Vec2{X: 1, Y: -0.5}) {
		t.Fatalf("expected direction clamped, got %+v", snapshot[0].Input.Direction)
	}
	if snapshot[1].Input.Sprint || !snapshot[1].Input.Interact {
		t.Fatalf("expected overwrite with latest input, got %+v", snapshot[1].Input)
	}
}

func TestInputBufferConsumeClearsOneShotFlags(t *testing.T) {
	buffer := NewInputBuffer(nil)
	buffer.Set("p", state.Input{Interact: true, Drop: true, Sprint: true})
	entry, _ := buffer.Get("p")

	if !buffer.Consume("p", state.InputInteract, entry.Seq) {
		t.Fatalf("expected interact consumed")
	}
	if buffer.Consume("p", state.InputSprint, entry.Seq) {
		t.Fatalf("sprint is held and must not be consumed")
	}
	got, _ := buffer.Get("p")
	if got.Input.Interact || !got.Input.Drop || !got.Input.Sprint {
		t.Fatalf("unexpected input after consume %+v", got.Input)
	}
}

func TestInputBufferConsumeSkipsNewerInput(t *testing.T) {
	buffer := NewInputBuffer(nil)
	buffer.Set("p", state.Input{Dash: true})
	stale, _ := buffer.Get("p")
	buffer.Set("p", state.Input{Dash: true})

	if buffer.Consume("p", state.InputDash, stale.Seq) {
		t.Fatalf("a newer press must survive consumption of the older one")
	}
	if got, _ := buffer.Get("p"); !got.Input.Dash {
		t.Fatalf("expected newer dash kept")
	}
	buffer.Delete("p")
	if buffer.Len() != 0 {
		t.Fatalf("expected empty buffer after delete")
	}
}

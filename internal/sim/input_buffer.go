package sim

import (
	"sort"
	"sync"

	"swaphouse/server/internal/state"
	"swaphouse/server/internal/telemetry"
)

const (
	inputBufferWritesMetricKey  = "round_input_writes_total"
	inputBufferPlayersMetricKey = "round_input_buffer_players"
)

// BufferedInput is the latest input a player sent, tagged with the write
// sequence it arrived under.
type BufferedInput struct {
	PlayerID string
	Input    state.Input
	Seq      uint64
}

// InputBuffer keeps the latest input per player. Writers overwrite; the tick
// reads a snapshot and consumes one-shot flags after acting on them.
type InputBuffer struct {
	mu      sync.Mutex
	entries map[string]BufferedInput
	seq     uint64
	metrics telemetry.Metrics
}

func NewInputBuffer(metrics telemetry.Metrics) *InputBuffer {
	return &InputBuffer{entries: make(map[string]BufferedInput), metrics: metrics}
}

// Set overwrites the buffered input for id.
func (b *InputBuffer) Set(id string, input state.Input) {
	if b == nil || id == "" {
		return
	}
	b.mu.Lock()
	b.seq++
	b.entries[id] = BufferedInput{PlayerID: id, Input: input.Sanitized(), Seq: b.seq}
	players := len(b.entries)
	b.mu.Unlock()
	if b.metrics != nil {
		b.metrics.Add(inputBufferWritesMetricKey, 1)
		b.metrics.Store(inputBufferPlayersMetricKey, uint64(players))
	}
}

// Snapshot copies every buffered input ordered by player id.
func (b *InputBuffer) Snapshot() []BufferedInput {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	out := make([]BufferedInput, 0, len(b.entries))
	for _, entry := range b.entries {
		out = append(out, entry)
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// Get returns the buffered input for id.
func (b *InputBuffer) Get(id string) (BufferedInput, bool) {
	if b == nil {
		return BufferedInput{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[id]
	return entry, ok
}

// Consume clears the one-shot flag for kind on id's input, provided no newer
// input has replaced the one observed at seq. Movement and sprint are held
// inputs and are never consumed.
func (b *InputBuffer) Consume(id string, kind state.InputKind, seq uint64) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[id]
	if !ok || entry.Seq != seq {
		return false
	}
	switch kind {
	case state.InputInteract:
		entry.Input.Interact = false
	case state.InputDrop:
		entry.Input.Drop = false
	case state.InputDash:
		entry.Input.Dash = false
	default:
		return false
	}
	b.entries[id] = entry
	return true
}

// Delete forgets id's input.
func (b *InputBuffer) Delete(id string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	delete(b.entries, id)
	players := len(b.entries)
	b.mu.Unlock()
	if b.metrics != nil {
		b.metrics.Store(inputBufferPlayersMetricKey, uint64(players))
	}
}

// Len reports how many players have buffered input.
func (b *InputBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

package rooms

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swaphouse/server/internal/round"
	"swaphouse/server/internal/state"
	"swaphouse/server/internal/telemetry"
	"swaphouse/server/logging"
	"swaphouse/server/logging/lifecycle"
	"swaphouse/server/logging/sinks"
)

type broadcasts struct {
	mu     sync.Mutex
	events map[string][]round.Event
}

func (b *broadcasts) Publish(code string, event round.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events == nil {
		b.events = make(map[string][]round.Event)
	}
	b.events[code] = append(b.events[code], event)
}

func (b *broadcasts) names(code string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events[code]))
	for _, e := range b.events[code] {
		out = append(out, e.EventName())
	}
	return out
}

func (b *broadcasts) named(code, name string) []round.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []round.Event
	for _, e := range b.events[code] {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	reg     *Registry
	events  *broadcasts
	memory  *sinks.MemorySink
	metrics *telemetry.Counters
}

// newFixture builds a registry whose rounds never tick unless mutate
// shortens the interval.
func newFixture(t *testing.T, mutate func(*round.Config)) *fixture {
	t.Helper()
	cfg := round.DefaultConfig()
	cfg.TickInterval = time.Hour
	if mutate != nil {
		mutate(&cfg)
	}
	f := &fixture{events: &broadcasts{}, memory: sinks.NewMemorySink(), metrics: telemetry.NewCounters()}
	f.reg = NewRegistry(Options{
		Round:       cfg,
		Broadcaster: f.events,
		Publisher: logging.PublisherFunc(func(_ context.Context, event logging.Event) {
			_ = f.memory.Write(event)
		}),
		Metrics: f.metrics,
		Seed:    "test",
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.reg.Close(ctx)
	})
	return f
}

func TestCreateAndJoin(t *testing.T) {
	f := newFixture(t, nil)

	created, err := f.reg.Create("host", "Alice", 3)
	require.NoError(t, err)
	assert.Len(t, created.Code, codeLength)
	assert.Equal(t, "host", created.HostID)
	assert.Equal(t, state.PhaseLobby, created.Phase)
	assert.Equal(t, 3, created.TargetPlayers)

	joined, err := f.reg.Join(" "+strings.ToLower(created.Code)+" ", "p2", "alice")
	require.NoError(t, err, "codes are case-insensitive")
	require.Len(t, joined.Players, 2)
	assert.Equal(t, "alice2", joined.Players[1].Name)

	_, err = f.reg.Join(created.Code, "p3", "")
	require.NoError(t, err)
	view, ok := f.reg.Get(created.Code)
	require.True(t, ok)
	assert.Equal(t, "Player 3", view.Players[2].Name)

	code, ok := f.reg.RoomOf("p2")
	require.True(t, ok)
	assert.Equal(t, created.Code, code)

	assert.Len(t, f.memory.OfType(lifecycle.EventRoomCreated), 1)
	assert.Len(t, f.memory.OfType(lifecycle.EventPlayerJoined), 2)
	assert.Equal(t, uint64(1), f.metrics.Snapshot()[metricRoomsActive])
}

func TestJoinErrors(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.reg.Join("ZZZZZ", "p1", "x")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	room, err := f.reg.Create("host", "h", 2)
	require.NoError(t, err)
	_, err = f.reg.Join(room.Code, "host", "again")
	assert.ErrorIs(t, err, ErrAlreadyInRoom)

	for i := 2; i <= MaxPlayers; i++ {
		_, err := f.reg.Join(room.Code, "p"+string(rune('0'+i)), "")
		require.NoError(t, err)
	}
	_, err = f.reg.Join(room.Code, "late", "")
	assert.ErrorIs(t, err, ErrRoomFull)

	other, err := f.reg.Create("host2", "h2", 2)
	require.NoError(t, err)
	_, err = f.reg.ToggleReady("host2")
	require.NoError(t, err)
	_, err = f.reg.Start("host2")
	require.NoError(t, err)
	_, err = f.reg.Join(other.Code, "late", "")
	assert.ErrorIs(t, err, ErrGameInProgress)
}

func TestStartRequiresHostAndReadyPlayers(t *testing.T) {
	f := newFixture(t, nil)
	room, err := f.reg.Create("host", "h", 2)
	require.NoError(t, err)
	_, err = f.reg.Join(room.Code, "guest", "g")
	require.NoError(t, err)

	_, err = f.reg.Start("guest")
	assert.ErrorIs(t, err, ErrNotHost)

	_, err = f.reg.ToggleReady("host")
	require.NoError(t, err)
	_, err = f.reg.Start("host")
	assert.ErrorIs(t, err, ErrPlayersNotReady)

	view, err := f.reg.ToggleReady("guest")
	require.NoError(t, err)
	assert.True(t, view.Players[1].Ready)

	_, err = f.reg.Start("nobody")
	assert.ErrorIs(t, err, ErrNotInRoom)
}

func TestStartFillsBotsAndAssignsRoles(t *testing.T) {
	f := newFixture(t, nil)
	room, err := f.reg.Create("host", "h", 4)
	require.NoError(t, err)
	_, err = f.reg.ToggleReady("host")
	require.NoError(t, err)

	view, err := f.reg.Start("host")
	require.NoError(t, err)
	assert.Equal(t, state.PhasePlaying, view.Phase)
	require.Len(t, view.Players, 4)

	held := map[state.Role]int{}
	bots := 0
	for _, p := range view.Players {
		held[p.Role]++
		if p.IsBot {
			bots++
			assert.True(t, p.Ready)
		}
	}
	assert.Equal(t, 3, bots)
	assert.Equal(t, map[state.Role]int{
		state.RoleMove:     1,
		state.RoleInteract: 1,
		state.RoleDash:     1,
		state.RoleSprint:   1,
	}, held)

	assert.Contains(t, f.events.names(room.Code), round.EventGameStarted)
	_, ok := f.reg.Snapshot(room.Code)
	assert.True(t, ok)

	_, err = f.reg.Start("host")
	assert.ErrorIs(t, err, ErrGameInProgress)
}

// rosterRoles reads the room roster and the round's live assignment under
// one lock.
func (f *fixture) rosterRoles(code string) (map[string]state.Role, map[string]state.Role) {
	f.reg.mu.RLock()
	defer f.reg.mu.RUnlock()
	rm := f.reg.rooms[code]
	roster := make(map[string]state.Role, len(rm.players))
	for _, p := range rm.players {
		roster[p.ID] = p.Role
	}
	live := make(map[string]state.Role)
	if rm.orch != nil {
		for _, a := range rm.orch.Roles() {
			live[a.ID] = a.Role
		}
	}
	return roster, live
}

func TestRosterFollowsRoundRoles(t *testing.T) {
	f := newFixture(t, func(cfg *round.Config) {
		cfg.TickInterval = 5 * time.Millisecond
		cfg.SwapInterval = 40 * time.Millisecond
	})
	room, err := f.reg.Create("host", "h", 4)
	require.NoError(t, err)
	for _, id := range []string{"guest1", "guest2"} {
		_, err = f.reg.Join(room.Code, id, id)
		require.NoError(t, err)
	}
	for _, id := range []string{"host", "guest1", "guest2"} {
		_, err = f.reg.ToggleReady(id)
		require.NoError(t, err)
	}
	_, err = f.reg.Start("host")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.events.named(room.Code, round.EventRoleSwap)) > 0
	}, 2*time.Second, 5*time.Millisecond, "expected a rotation")
	require.Eventually(t, func() bool {
		roster, live := f.rosterRoles(room.Code)
		return assert.ObjectsAreEqual(live, roster)
	}, 2*time.Second, 5*time.Millisecond, "roster should carry the rotated roles")

	_, err = f.reg.Leave("guest1", "disconnect")
	require.NoError(t, err)

	want := map[state.Role]int{state.RoleMove: 1, state.RoleInteract: 1, state.RoleDash: 1}
	require.Eventually(t, func() bool {
		roster, live := f.rosterRoles(room.Code)
		held := map[state.Role]int{}
		for _, role := range roster {
			held[role]++
		}
		return len(roster) == 3 && assert.ObjectsAreEqual(live, roster) && assert.ObjectsAreEqual(want, held)
	}, 2*time.Second, 5*time.Millisecond, "roster should carry the reassigned roles")
}

func TestInputAndVoteNeedARound(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.reg.Create("host", "h", 2)
	require.NoError(t, err)

	assert.ErrorIs(t, f.reg.Input("host", state.Input{}), ErrNoActiveRound)
	assert.ErrorIs(t, f.reg.Vote("host", state.VoteGive), ErrNoActiveRound)
	assert.ErrorIs(t, f.reg.Input("stranger", state.Input{}), ErrNotInRoom)

	_, err = f.reg.ToggleReady("host")
	require.NoError(t, err)
	_, err = f.reg.Start("host")
	require.NoError(t, err)
	assert.NoError(t, f.reg.Input("host", state.Input{Direction: state.Vec2{X: 1}}))
	assert.NoError(t, f.reg.Vote("host", state.VoteRefuse))
}

func TestLeaveReassignsHostAndDeletesEmptyRooms(t *testing.T) {
	f := newFixture(t, nil)
	room, err := f.reg.Create("host", "h", 2)
	require.NoError(t, err)
	_, err = f.reg.Join(room.Code, "guest", "g")
	require.NoError(t, err)

	res, err := f.reg.Leave("host", "disconnect")
	require.NoError(t, err)
	assert.True(t, res.WasHost)
	assert.False(t, res.Deleted)
	assert.Equal(t, "guest", res.HostID)
	assert.Len(t, f.memory.OfType(lifecycle.EventHostChanged), 1)

	res, err = f.reg.Leave("guest", "disconnect")
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	_, ok := f.reg.Get(room.Code)
	assert.False(t, ok)
	assert.Len(t, f.memory.OfType(lifecycle.EventRoomDeleted), 1)
	assert.Equal(t, uint64(0), f.metrics.Snapshot()[metricRoomsActive])

	_, err = f.reg.Leave("guest", "disconnect")
	assert.ErrorIs(t, err, ErrNotInRoom)
}

func TestLeaveSkipsBotsWhenPickingHost(t *testing.T) {
	f := newFixture(t, nil)
	room, err := f.reg.Create("host", "h", 4)
	require.NoError(t, err)
	_, err = f.reg.Join(room.Code, "guest", "g")
	require.NoError(t, err)
	_, err = f.reg.ToggleReady("host")
	require.NoError(t, err)
	_, err = f.reg.ToggleReady("guest")
	require.NoError(t, err)
	_, err = f.reg.Start("host")
	require.NoError(t, err)

	res, err := f.reg.Leave("host", "disconnect")
	require.NoError(t, err)
	assert.Equal(t, "guest", res.HostID)
	assert.Len(t, res.Players, 3)

	res, err = f.reg.Leave("guest", "disconnect")
	require.NoError(t, err)
	assert.True(t, res.Deleted, "a room of bots is deleted")
}

func TestRoundEndReleasesRoomAndResetReturnsToLobby(t *testing.T) {
	f := newFixture(t, func(cfg *round.Config) {
		cfg.TickInterval = 2 * time.Millisecond
		cfg.MatchDuration = 10 * time.Millisecond
	})
	room, err := f.reg.Create("host", "h", 3)
	require.NoError(t, err)
	_, err = f.reg.ToggleReady("host")
	require.NoError(t, err)
	_, err = f.reg.Start("host")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		view, ok := f.reg.Get(room.Code)
		return ok && view.Phase == state.PhaseEnded
	}, 2*time.Second, 5*time.Millisecond)

	view, _ := f.reg.Get(room.Code)
	require.NotNil(t, view.LastResult)
	assert.Equal(t, round.ReasonTimeout, view.LastResult.Reason)
	assert.ErrorIs(t, f.reg.Input("host", state.Input{}), ErrNoActiveRound)

	_, err = f.reg.Reset("host")
	require.NoError(t, err)
	view, _ = f.reg.Get(room.Code)
	assert.Equal(t, state.PhaseLobby, view.Phase)
	require.Len(t, view.Players, 1, "bots are removed on reset")
	assert.False(t, view.Players[0].Ready)
	assert.Equal(t, state.RoleNone, view.Players[0].Role)
}

func TestResetRequiresHostAndFinishedRound(t *testing.T) {
	f := newFixture(t, nil)
	room, err := f.reg.Create("host", "h", 2)
	require.NoError(t, err)
	_, err = f.reg.Join(room.Code, "guest", "g")
	require.NoError(t, err)

	_, err = f.reg.Reset("guest")
	assert.ErrorIs(t, err, ErrNotHost)

	_, err = f.reg.ToggleReady("host")
	require.NoError(t, err)
	_, err = f.reg.ToggleReady("guest")
	require.NoError(t, err)
	_, err = f.reg.Start("host")
	require.NoError(t, err)
	_, err = f.reg.Reset("host")
	assert.ErrorIs(t, err, ErrGameInProgress)
}

func TestListAndDelete(t *testing.T) {
	f := newFixture(t, nil)
	a, err := f.reg.Create("a", "a", 2)
	require.NoError(t, err)
	b, err := f.reg.Create("b", "b", 2)
	require.NoError(t, err)

	list := f.reg.List()
	require.Len(t, list, 2)
	assert.True(t, list[0].Code < list[1].Code)

	assert.True(t, f.reg.Delete(strings.ToLower(a.Code)))
	assert.False(t, f.reg.Delete(a.Code))
	_, ok := f.reg.RoomOf("a")
	assert.False(t, ok)

	list = f.reg.List()
	require.Len(t, list, 1)
	assert.Equal(t, b.Code, list[0].Code)
}

func TestViewsAreCopies(t *testing.T) {
	f := newFixture(t, nil)
	room, err := f.reg.Create("host", "h", 2)
	require.NoError(t, err)
	room.Players[0].Name = "mutated"

	view, _ := f.reg.Get(room.Code)
	assert.Equal(t, "h", view.Players[0].Name)
}

func TestCodesUseAlphabet(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 20; i++ {
		view, err := f.reg.Create("host"+string(rune('a'+i)), "", 2)
		require.NoError(t, err)
		for _, c := range view.Code {
			assert.Contains(t, codeAlphabet, string(c))
		}
	}
}

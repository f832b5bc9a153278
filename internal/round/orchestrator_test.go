package round

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"swaphouse/server/internal/geometry"
	"swaphouse/server/internal/roles"
	"swaphouse/server/internal/state"
	"swaphouse/server/internal/telemetry"
	"swaphouse/server/logging"
	roundlog "swaphouse/server/logging/round"
	"swaphouse/server/logging/sinks"
)

const tick = 50 * time.Millisecond

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(code string, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) named(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) last(name string) (Event, bool) {
	events := r.named(name)
	if len(events) == 0 {
		return nil, false
	}
	return events[len(events)-1], true
}

// openTable has no walls, parks the adversary in a far corner and keeps
// spawn points away from the avatar.
func openTable() *geometry.Table {
	all := []state.ItemType{state.ItemBattery, state.ItemBulb, state.ItemSwitchHandle}
	return &geometry.Table{
		Width:  1000,
		Height: 1000,
		SpawnPoints: []geometry.SpawnPoint{
			{Position: state.Vec2{X: 800, Y: 100}, Allowed: all},
			{Position: state.Vec2{X: 800, Y: 200}, Allowed: all},
			{Position: state.Vec2{X: 800, Y: 300}, Allowed: all},
		},
		PatrolPath:     []state.Vec2{{X: 900, Y: 900}},
		ExitZone:       state.Rect{X: 500, Y: 500, Width: 80, Height: 60},
		ExitPanel:      state.Rect{X: 300, Y: 500, Width: 40, Height: 80},
		AvatarStart:    state.Vec2{X: 100, Y: 100},
		AdversaryStart: geometry.AdversaryStart{Position: state.Vec2{X: 900, Y: 900}},
	}
}

type harness struct {
	orch   *Orchestrator
	state  *state.RoundState
	table  *geometry.Table
	events *recorder
	memory *sinks.MemorySink
	ended  []Result
	synced [][]state.RoleAssignment
}

func humans(roles ...state.Role) []state.Player {
	out := make([]state.Player, len(roles))
	for i, role := range roles {
		out[i] = state.Player{ID: "p" + string(rune('1'+i)), Role: role, Connected: true}
	}
	return out
}

func newHarness(t *testing.T, roster []state.Player, mutate func(*Config, *state.RoundState)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	table := openTable()
	rng := rand.New(rand.NewSource(3))
	s := NewRoundState(table, cfg, rng)
	if mutate != nil {
		mutate(&cfg, s)
	}
	h := &harness{state: s, table: table, events: &recorder{}, memory: sinks.NewMemorySink()}
	orch, err := NewOrchestrator(Options{
		Code:        "TESTR",
		Roster:      roster,
		State:       s,
		Table:       table,
		Config:      cfg,
		RNG:         rng,
		Broadcaster: h.events,
		Publisher: logging.PublisherFunc(func(_ context.Context, event logging.Event) {
			_ = h.memory.Write(event)
		}),
		Metrics: telemetry.NewCounters(),
		OnEnd:   func(r Result) { h.ended = append(h.ended, r) },
		OnRolesChanged: func(a []state.RoleAssignment) {
			h.synced = append(h.synced, a)
		},
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	h.orch = orch
	return h
}

func (h *harness) steps(n int) {
	for i := 0; i < n; i++ {
		h.orch.Step(tick)
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNewOrchestratorValidates(t *testing.T) {
	table := openTable()
	s := NewRoundState(table, DefaultConfig(), rand.New(rand.NewSource(1)))
	if _, err := NewOrchestrator(Options{Roster: humans(state.RoleMove, state.RoleInteract)}); !errors.Is(err, ErrMissingState) {
		t.Fatalf("expected ErrMissingState, got %v", err)
	}
	if _, err := NewOrchestrator(Options{Roster: humans(state.RoleMove), State: s, Table: table}); !errors.Is(err, ErrInvalidRoster) {
		t.Fatalf("expected ErrInvalidRoster, got %v", err)
	}
}

func TestNewOrchestratorRejectsDuplicateRoles(t *testing.T) {
	table := openTable()
	s := NewRoundState(table, DefaultConfig(), rand.New(rand.NewSource(1)))
	for _, roster := range [][]state.Player{
		humans(state.RoleMove, state.RoleMove, state.RoleInteract),
		humans(state.RoleMove, state.RoleInteract, state.RoleDrop),
	} {
		_, err := NewOrchestrator(Options{Roster: roster, State: s, Table: table})
		if !errors.Is(err, ErrInvalidRoster) {
			t.Fatalf("expected ErrInvalidRoster for %+v, got %v", roster, err)
		}
	}
}

func TestNewOrchestratorAssignsMissingRoles(t *testing.T) {
	roster := []state.Player{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	h := newHarness(t, roster, nil)
	got := make([]string, 0, 3)
	for _, a := range h.orch.Roles() {
		got = append(got, string(a.Role))
	}
	sort.Strings(got)
	want := []string{"DASH", "INTERACT", "MOVE"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected role set (-want +got):\n%s", diff)
	}
}

func TestNewRoundStatePlacesItemsAndTimers(t *testing.T) {
	cfg := DefaultConfig()
	table := geometry.Default()
	s := NewRoundState(table, cfg, rand.New(rand.NewSource(9)))
	if len(s.Items) != 3 || s.Capacity != 2 || s.Phase != state.PhasePlaying {
		t.Fatalf("unexpected round state %+v", s)
	}
	if s.TimeRemaining != cfg.MatchDuration || s.RotationIn != cfg.SwapInterval {
		t.Fatalf("unexpected timers %s %s", s.TimeRemaining, s.RotationIn)
	}
	if s.Avatar.Position != table.AvatarStart || s.Adversary.Position != table.AdversaryStart.Position {
		t.Fatalf("unexpected starts %+v %+v", s.Avatar, s.Adversary)
	}
}

func TestMoveTenTicksThenWallPushesOut(t *testing.T) {
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract), nil)
	h.orch.HandleInput("p1", state.Input{Direction: state.Vec2{X: 1}})
	h.steps(10)

	cfg := DefaultConfig()
	pos := h.state.Avatar.Position
	if !near(pos.X, 100+10*cfg.PlayerSpeed) || !near(pos.Y, 100) {
		t.Fatalf("expected avatar at x=%v, got %+v", 100+10*cfg.PlayerSpeed, pos)
	}
	if snap := h.orch.Snapshot(); snap.Avatar.Position != pos {
		t.Fatalf("published snapshot lags state: %+v vs %+v", snap.Avatar.Position, pos)
	}

	wall := state.Rect{X: pos.X - 5, Y: pos.Y - 10, Width: 20, Height: 20}
	h.table.Walls = []state.Rect{wall}
	h.orch.HandleInput("p1", state.Input{})
	h.steps(1)

	after := h.state.Avatar.Position
	if wall.Contains(after) {
		t.Fatalf("avatar still inside wall at %+v", after)
	}
	if d := state.Distance(after, wall.ClosestPoint(after)); d < cfg.PlayerRadius-1e-9 {
		t.Fatalf("avatar only %v from wall, want >= %v", d, cfg.PlayerRadius)
	}
}

func TestInputsAreRoleGated(t *testing.T) {
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract), func(_ *Config, s *state.RoundState) {
		s.Items = []state.Item{{Type: state.ItemBulb, Position: s.Avatar.Position}}
	})
	h.orch.HandleInput("p2", state.Input{Direction: state.Vec2{X: 1}})
	h.orch.HandleInput("p1", state.Input{Interact: true})
	h.steps(1)
	if h.state.Avatar.Position != (state.Vec2{X: 100, Y: 100}) {
		t.Fatalf("INTERACT holder must not move the avatar, got %+v", h.state.Avatar.Position)
	}
	if len(h.state.Inventory) != 0 {
		t.Fatalf("MOVE holder must not pick up, got %v", h.state.Inventory)
	}
}

func TestDiagonalMovementIsNormalized(t *testing.T) {
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract), nil)
	h.orch.HandleInput("p1", state.Input{Direction: state.Vec2{X: 1, Y: 1}})
	h.steps(1)
	if speed := h.state.Avatar.Velocity.Len(); !near(speed, DefaultConfig().PlayerSpeed) {
		t.Fatalf("expected diagonal speed %v, got %v", DefaultConfig().PlayerSpeed, speed)
	}
}

func TestSprintUsesSprintTier(t *testing.T) {
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract, state.RoleDash, state.RoleSprint), nil)
	h.orch.HandleInput("p1", state.Input{Direction: state.Vec2{Y: 1}})
	h.orch.HandleInput("p4", state.Input{Sprint: true})
	h.steps(1)
	if !near(h.state.Avatar.Velocity.Y, DefaultConfig().SprintSpeed) {
		t.Fatalf("expected sprint speed, got %+v", h.state.Avatar.Velocity)
	}
}

func TestDashLastsItsDurationAndCannotRetrigger(t *testing.T) {
	cfg := DefaultConfig()
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract, state.RoleDash), nil)
	h.orch.HandleInput("p1", state.Input{Direction: state.Vec2{X: 1}})
	h.orch.HandleInput("p3", state.Input{Dash: true})

	h.steps(1)
	if !h.state.Avatar.Dashing || !near(h.state.Avatar.Velocity.X, cfg.DashSpeed) {
		t.Fatalf("expected dash started, got %+v", h.state.Avatar)
	}
	triggeredAt := h.state.Elapsed
	endsAt := h.state.Avatar.DashEndsAt
	if endsAt-triggeredAt != cfg.DashDuration {
		t.Fatalf("expected dash window %s, got %s", cfg.DashDuration, endsAt-triggeredAt)
	}

	h.orch.HandleInput("p3", state.Input{Dash: true})
	h.steps(1)
	if h.state.Avatar.DashEndsAt != endsAt {
		t.Fatalf("dash re-triggered while dashing: %s -> %s", endsAt, h.state.Avatar.DashEndsAt)
	}

	h.steps(1)
	if !h.state.Avatar.Dashing {
		t.Fatalf("dash ended early at %s", h.state.Elapsed-triggeredAt)
	}
	h.steps(1)
	if h.state.Avatar.Dashing {
		t.Fatalf("dash still active %s after trigger", h.state.Elapsed-triggeredAt)
	}
	if h.state.Elapsed-triggeredAt != cfg.DashDuration {
		t.Fatalf("expected dash cleared exactly %s after trigger, got %s", cfg.DashDuration, h.state.Elapsed-triggeredAt)
	}
	if !near(h.state.Avatar.Velocity.X, cfg.PlayerSpeed) {
		t.Fatalf("expected base speed after dash, got %+v", h.state.Avatar.Velocity)
	}
}

func TestPickupConsumesInteractAndRespectsCapacity(t *testing.T) {
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract), func(_ *Config, s *state.RoundState) {
		s.Items = []state.Item{
			{Type: state.ItemBattery, Position: s.Avatar.Position},
			{Type: state.ItemBulb, Position: s.Avatar.Position},
			{Type: state.ItemSwitchHandle, Position: s.Avatar.Position},
		}
	})
	h.orch.HandleInput("p2", state.Input{Interact: true})
	h.steps(1)
	if len(h.state.Inventory) != 1 {
		t.Fatalf("expected one pickup, got %v", h.state.Inventory)
	}
	h.steps(1)
	if len(h.state.Inventory) != 1 {
		t.Fatalf("held interact must not repeat-fire, got %v", h.state.Inventory)
	}

	for i := 0; i < 5; i++ {
		h.orch.HandleInput("p2", state.Input{Interact: true})
		h.steps(1)
		if len(h.state.Inventory) > h.state.Capacity {
			t.Fatalf("inventory exceeded capacity: %v", h.state.Inventory)
		}
	}
	if len(h.state.Inventory) != 2 {
		t.Fatalf("expected full inventory, got %v", h.state.Inventory)
	}
}

func TestInstallAtPanelIsMonotonic(t *testing.T) {
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract), func(_ *Config, s *state.RoundState) {
		s.Avatar.Position = state.Vec2{X: 290, Y: 540}
		s.Inventory = []state.ItemType{state.ItemBulb}
	})
	h.orch.HandleInput("p2", state.Input{Interact: true})
	h.steps(1)
	if !h.state.Installed.Bulb || len(h.state.Inventory) != 0 {
		t.Fatalf("expected bulb installed, got %+v %v", h.state.Installed, h.state.Inventory)
	}
	if len(h.memory.OfType(roundlog.EventPartInstalled)) != 1 {
		t.Fatalf("expected part installed event")
	}
	for i := 0; i < 3; i++ {
		h.orch.HandleInput("p2", state.Input{Interact: true})
		h.steps(1)
		if !h.state.Installed.Bulb {
			t.Fatalf("installed part reverted")
		}
	}
}

func TestDropReturnsLastItemToWorld(t *testing.T) {
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract, state.RoleDash, state.RoleSprint, state.RoleDrop), func(_ *Config, s *state.RoundState) {
		s.Inventory = []state.ItemType{state.ItemBattery, state.ItemBulb}
	})
	before := len(h.state.Items)
	h.orch.HandleInput("p5", state.Input{Drop: true})
	h.steps(2)
	if len(h.state.Inventory) != 1 || h.state.Inventory[0] != state.ItemBattery {
		t.Fatalf("expected bulb dropped once, got %v", h.state.Inventory)
	}
	if len(h.state.Items) != before+1 || h.state.Items[before].Type != state.ItemBulb {
		t.Fatalf("expected dropped bulb in world, got %+v", h.state.Items)
	}
}

func catchSetup(inventory []state.ItemType, installed state.InstalledParts) func(*Config, *state.RoundState) {
	return func(_ *Config, s *state.RoundState) {
		s.Inventory = inventory
		s.Installed = installed
		s.Adversary.Position = s.Avatar.Position.Add(state.Vec2{X: 10})
	}
}

func TestCatchDemandsHeldNeededPart(t *testing.T) {
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract), catchSetup([]state.ItemType{state.ItemBattery}, state.InstalledParts{}))
	h.steps(1)

	if h.state.Phase != state.PhaseVoting || !h.state.Avatar.Frozen {
		t.Fatalf("expected voting with frozen avatar, got %s frozen=%v", h.state.Phase, h.state.Avatar.Frozen)
	}
	event, ok := h.events.last(EventCaught)
	if !ok {
		t.Fatalf("expected catch event")
	}
	caught := event.(Caught)
	if caught.Demand != state.DemandFor(state.ItemBattery) || !caught.HasItem {
		t.Fatalf("unexpected catch %+v", caught)
	}
}

func TestCatchDemandsAnyOrImpossible(t *testing.T) {
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract), catchSetup([]state.ItemType{state.ItemBattery}, state.InstalledParts{Battery: true}))
	h.steps(1)
	if h.state.Demand != state.DemandAny {
		t.Fatalf("expected ANY, got %q", h.state.Demand)
	}

	h = newHarness(t, humans(state.RoleMove, state.RoleInteract), catchSetup(nil, state.InstalledParts{}))
	h.steps(1)
	event, _ := h.events.last(EventCaught)
	if caught := event.(Caught); caught.Demand != state.DemandImpossible || caught.HasItem {
		t.Fatalf("unexpected catch %+v", caught)
	}
}

func TestImpossibleDemandGiveAppliesPenalty(t *testing.T) {
	cfg := DefaultConfig()
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract), catchSetup(nil, state.InstalledParts{}))
	h.steps(1)
	before := h.state.TimeRemaining

	h.orch.HandleVote("p1", state.VoteGive)
	h.orch.HandleVote("p2", state.VoteGive)
	h.steps(1)

	if h.state.Phase != state.PhasePlaying || h.state.Avatar.Frozen {
		t.Fatalf("expected play resumed, got %s frozen=%v", h.state.Phase, h.state.Avatar.Frozen)
	}
	if h.state.TimeRemaining != before-cfg.Penalty {
		t.Fatalf("expected penalty applied, got %s from %s", h.state.TimeRemaining, before)
	}
	event, ok := h.events.last(EventVoteResolved)
	if !ok || event.(VoteResolved).GaveItem {
		t.Fatalf("expected resolution without an item, got %+v", event)
	}
	if h.state.Demand != state.DemandNone || len(h.state.Votes) != 0 {
		t.Fatalf("vote state not cleared: %q %v", h.state.Demand, h.state.Votes)
	}
	logged := h.memory.OfType(roundlog.EventVoteResolved)
	if len(logged) != 1 {
		t.Fatalf("expected one vote resolved log event, got %d", len(logged))
	}
	payload, ok := logged[0].Payload.(roundlog.VoteResolvedPayload)
	if !ok || !payload.AdversaryReset || payload.GaveItem {
		t.Fatalf("unexpected vote resolved payload: %+v", logged[0].Payload)
	}
}

func TestGiveVoteSacrificesDemandedItem(t *testing.T) {
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract), catchSetup(
		[]state.ItemType{state.ItemBattery, state.ItemBulb},
		state.InstalledParts{Battery: true},
	))
	h.steps(1)
	if h.state.Demand != state.DemandFor(state.ItemBulb) {
		t.Fatalf("expected BULB demand, got %q", h.state.Demand)
	}
	itemsBefore := len(h.state.Items)
	timeBefore := h.state.TimeRemaining

	h.orch.HandleVote("p1", state.VoteGive)
	h.orch.HandleVote("p2", state.VoteRefuse)
	h.steps(1)

	if diff := cmp.Diff([]state.ItemType{state.ItemBattery}, h.state.Inventory); diff != "" {
		t.Fatalf("unexpected inventory (-want +got):\n%s", diff)
	}
	if len(h.state.Items) != itemsBefore+1 || h.state.Items[itemsBefore].Type != state.ItemBulb {
		t.Fatalf("expected bulb respawned, got %+v", h.state.Items)
	}
	if h.state.TimeRemaining != timeBefore {
		t.Fatalf("give must not cost time")
	}
	if h.state.Adversary.Position != h.table.AdversaryStart.Position {
		t.Fatalf("expected adversary back at its start, got %+v", h.state.Adversary.Position)
	}
	event, _ := h.events.last(EventVoteResolved)
	if !event.(VoteResolved).GaveItem {
		t.Fatalf("expected gaveItem")
	}
}

func TestVotesOutsideVotingAreIgnored(t *testing.T) {
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract), nil)
	h.orch.HandleVote("p1", state.VoteGive)
	h.steps(1)
	if len(h.state.Votes) != 0 {
		t.Fatalf("expected no votes while playing, got %v", h.state.Votes)
	}
}

func TestBotsVoteAndCountdownForcesResolution(t *testing.T) {
	cfg := DefaultConfig()
	roster := []state.Player{
		{ID: "human", Role: state.RoleMove},
		{ID: "bot-1", Role: state.RoleInteract, IsBot: true},
	}
	h := newHarness(t, roster, catchSetup([]state.ItemType{state.ItemBulb}, state.InstalledParts{}))
	h.steps(1)
	h.steps(1)

	event, ok := h.events.last(EventVoteUpdate)
	if !ok {
		t.Fatalf("expected a vote tally")
	}
	if tally := event.(VoteTally); tally.Give != 1 || tally.Refuse != 0 {
		t.Fatalf("expected bot to vote give, got %+v", tally)
	}
	if h.state.Votes["bot-1"] != state.VoteGive {
		t.Fatalf("expected bot ballot recorded, got %v", h.state.Votes)
	}

	voteTicks := int(cfg.VoteDuration / tick)
	h.steps(voteTicks - 2)
	if h.state.Phase != state.PhaseVoting {
		t.Fatalf("vote resolved before the countdown, phase %s", h.state.Phase)
	}
	h.steps(1)
	if h.state.Phase != state.PhasePlaying {
		t.Fatalf("expected countdown to force resolution, phase %s", h.state.Phase)
	}
	if len(h.state.Inventory) != 0 {
		t.Fatalf("give majority should hand over the bulb, got %v", h.state.Inventory)
	}
}

func TestTimeoutEndsRound(t *testing.T) {
	cfg := DefaultConfig()
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract), func(_ *Config, s *state.RoundState) {
		s.TimeRemaining = 100 * time.Millisecond
	})
	h.orch.Step(150 * time.Millisecond)

	event, ok := h.events.last(EventGameEnded)
	if !ok {
		t.Fatalf("expected game ended")
	}
	ended := event.(Ended)
	if ended.Won || ended.Reason != ReasonTimeout {
		t.Fatalf("unexpected end %+v", ended)
	}
	if ended.Stats.TimeTakenMs != cfg.MatchDuration.Milliseconds() {
		t.Fatalf("expected time taken clamped to match duration, got %d", ended.Stats.TimeTakenMs)
	}
	if h.state.Phase != state.PhaseLost {
		t.Fatalf("expected lost phase, got %s", h.state.Phase)
	}
	if len(h.ended) != 1 || h.ended[0].Reason != ReasonTimeout {
		t.Fatalf("expected completion callback once, got %+v", h.ended)
	}
	if res, ok := h.orch.Result(); !ok || res.Won {
		t.Fatalf("expected stored result, got %+v %v", res, ok)
	}

	h.steps(3)
	if len(h.events.named(EventGameEnded)) != 1 || len(h.ended) != 1 {
		t.Fatalf("round must end exactly once")
	}
}

func TestEscapeWins(t *testing.T) {
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract), func(_ *Config, s *state.RoundState) {
		s.Avatar.Position = state.Vec2{X: 540, Y: 530}
		s.Installed = state.InstalledParts{Battery: true, Bulb: true, Handle: true}
	})
	h.orch.HandleInput("p2", state.Input{Interact: true})
	h.steps(1)

	event, ok := h.events.last(EventGameEnded)
	if !ok {
		t.Fatalf("expected game ended")
	}
	if ended := event.(Ended); !ended.Won || ended.Reason != ReasonEscaped {
		t.Fatalf("unexpected end %+v", ended)
	}
	if h.state.Phase != state.PhaseWon {
		t.Fatalf("expected won phase, got %s", h.state.Phase)
	}
	if len(h.memory.OfType(roundlog.EventEnded)) != 1 {
		t.Fatalf("expected round ended log event")
	}
}

func TestRotationChangesRoles(t *testing.T) {
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract, state.RoleDash), func(cfg *Config, s *state.RoundState) {
		cfg.SwapInterval = 100 * time.Millisecond
		s.RotationIn = cfg.SwapInterval
	})
	before := h.orch.Roles()
	h.steps(2)

	event, ok := h.events.last(EventRoleSwap)
	if !ok {
		t.Fatalf("expected role swap")
	}
	after := event.(RolesChanged).Roles
	if cmp.Equal(before, after) {
		t.Fatalf("rotation kept every role: %+v", after)
	}
	if diff := cmp.Diff(after, h.orch.Roles()); diff != "" {
		t.Fatalf("published roles out of date (-event +roles):\n%s", diff)
	}
	if h.state.RotationIn != 100*time.Millisecond {
		t.Fatalf("expected rotation countdown reset, got %s", h.state.RotationIn)
	}
	if len(h.synced) != 1 {
		t.Fatalf("expected one roles callback, got %d", len(h.synced))
	}
	if diff := cmp.Diff(after, h.synced[0]); diff != "" {
		t.Fatalf("callback roles differ from event (-event +callback):\n%s", diff)
	}
}

func TestPressWithoutRoleDoesNotFireAfterRotation(t *testing.T) {
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract, state.RoleDash, state.RoleSprint, state.RoleDrop), func(_ *Config, s *state.RoundState) {
		s.Inventory = []state.ItemType{state.ItemBattery, state.ItemBulb}
	})
	h.orch.HandleInput("p1", state.Input{Drop: true, Interact: true, Dash: true})
	h.steps(1)

	holdsDrop := false
	for i := 0; i < 100 && !holdsDrop; i++ {
		h.state.RotationIn = 0
		h.steps(1)
		role, _ := roles.RoleOf(h.orch.roster, "p1")
		holdsDrop = role == state.RoleDrop
	}
	if !holdsDrop {
		t.Fatalf("p1 never rotated onto DROP")
	}
	h.steps(2)

	if diff := cmp.Diff([]state.ItemType{state.ItemBattery, state.ItemBulb}, h.state.Inventory); diff != "" {
		t.Fatalf("stale drop fired (-want +got):\n%s", diff)
	}
	if h.state.Avatar.Dashing {
		t.Fatalf("stale dash fired")
	}
}

func TestRandomInputsKeepInvariants(t *testing.T) {
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract, state.RoleDash, state.RoleSprint, state.RoleDrop), func(cfg *Config, s *state.RoundState) {
		cfg.SwapInterval = time.Second
		s.RotationIn = cfg.SwapInterval
	})
	cfg := DefaultConfig()
	rng := rand.New(rand.NewSource(42))
	ids := []string{"p1", "p2", "p3", "p4", "p5"}
	want, _ := roles.RolesFor(len(ids))
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	var installed state.InstalledParts
	for i := 0; i < 3000 && len(h.ended) == 0; i++ {
		id := ids[rng.Intn(len(ids))]
		h.orch.HandleInput(id, state.Input{
			Direction: state.Vec2{X: rng.Float64()*2 - 1, Y: rng.Float64()*2 - 1},
			Sprint:    rng.Intn(2) == 0,
			Interact:  rng.Intn(3) == 0,
			Drop:      rng.Intn(8) == 0,
			Dash:      rng.Intn(10) == 0,
		})
		if h.state.Phase == state.PhaseVoting {
			choice := state.VoteGive
			if rng.Intn(2) == 0 {
				choice = state.VoteRefuse
			}
			h.orch.HandleVote(id, choice)
		}
		h.steps(1)

		if len(h.state.Inventory) > cfg.InventorySize {
			t.Fatalf("tick %d: inventory over capacity: %v", i, h.state.Inventory)
		}
		for _, part := range []struct {
			name     string
			was, now bool
		}{
			{"battery", installed.Battery, h.state.Installed.Battery},
			{"bulb", installed.Bulb, h.state.Installed.Bulb},
			{"handle", installed.Handle, h.state.Installed.Handle},
		} {
			if part.was && !part.now {
				t.Fatalf("tick %d: %s uninstalled", i, part.name)
			}
		}
		installed = h.state.Installed

		got := make([]state.Role, 0, len(ids))
		for _, a := range h.orch.Roles() {
			got = append(got, a.Role)
		}
		sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("tick %d: role set drifted (-want +got):\n%s", i, diff)
		}
	}
}

func TestRemovingPlayersRecalculatesThenEnds(t *testing.T) {
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract, state.RoleDash), nil)
	h.orch.RemovePlayer("p3")
	h.steps(1)

	event, ok := h.events.last(EventRoleSwap)
	if !ok {
		t.Fatalf("expected roles recalculated")
	}
	got := event.(RolesChanged).Roles
	if len(got) != 2 {
		t.Fatalf("expected two assignments, got %+v", got)
	}
	seen := map[state.Role]bool{}
	for _, a := range got {
		seen[a.Role] = true
	}
	if !seen[state.RoleMove] || !seen[state.RoleInteract] {
		t.Fatalf("expected MOVE and INTERACT held, got %+v", got)
	}

	h.orch.RemovePlayer("p2")
	h.steps(1)
	event, ok = h.events.last(EventGameEnded)
	if !ok || event.(Ended).Reason != ReasonNotEnoughPlayers {
		t.Fatalf("expected not-enough-players end, got %+v", event)
	}
}

func TestStartRunsUntilEnded(t *testing.T) {
	h := newHarness(t, humans(state.RoleMove, state.RoleInteract), func(cfg *Config, _ *state.RoundState) {
		cfg.TickInterval = 2 * time.Millisecond
	})
	h.orch.Start()
	if _, ok := h.events.last(EventGameStarted); !ok {
		t.Fatalf("expected game started event")
	}
	h.orch.End(ReasonTimeout)
	select {
	case <-h.orch.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("round did not stop")
	}
	if res, ok := h.orch.Result(); !ok || res.Reason != ReasonTimeout {
		t.Fatalf("expected forced end recorded, got %+v %v", res, ok)
	}
}

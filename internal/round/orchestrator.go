// Package round runs one round of a room: the fixed tick, the rules applied
// each tick and the catch/vote sub-machine.
package round

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"swaphouse/server/internal/ai"
	"swaphouse/server/internal/geometry"
	"swaphouse/server/internal/items"
	"swaphouse/server/internal/roles"
	"swaphouse/server/internal/sim"
	"swaphouse/server/internal/state"
	"swaphouse/server/internal/telemetry"
	"swaphouse/server/internal/world"
	"swaphouse/server/logging"
	roundlog "swaphouse/server/logging/round"
	"swaphouse/server/logging/simulation"
)

var (
	ErrMissingState  = errors.New("round: state and table are required")
	ErrInvalidRoster = errors.New("round: roster size has no role set")
)

const (
	metricRoundsEnded     = "rounds_ended_total"
	metricCatches         = "round_catches_total"
	metricItemsSacrificed = "round_items_sacrificed_total"
	metricPartsInstalled  = "round_parts_installed_total"
)

// Options wires an Orchestrator. Roster, State and Table are owned by the
// orchestrator once passed in.
type Options struct {
	Code        string
	Roster      []state.Player
	State       *state.RoundState
	Table       *geometry.Table
	Config      Config
	RNG         *rand.Rand
	Broadcaster Broadcaster
	Publisher   logging.Publisher
	Logger      telemetry.Logger
	Metrics     telemetry.Metrics
	Clock       logging.Clock
	// OnEnd runs on the tick goroutine once the round has finished.
	OnEnd func(Result)
	// OnRolesChanged runs on the tick goroutine after every rotation or
	// roster reassignment.
	OnRolesChanged func([]state.RoleAssignment)
}

// Result is handed to OnEnd.
type Result struct {
	Won    bool
	Reason string
	Stats  Stats
}

// Orchestrator owns a round's state. Only Step mutates it; everything that
// arrives from other goroutines goes through the input and command buffers.
type Orchestrator struct {
	code  string
	cfg   Config
	table *geometry.Table
	state *state.RoundState
	rng   *rand.Rand

	roster []state.Player
	bots   map[string]*ai.Bot
	roles  *roles.Manager

	inputs    *sim.InputBuffer
	commands  *sim.CommandBuffer
	scheduler *sim.Scheduler

	broadcaster Broadcaster
	publisher   logging.Publisher
	logger      telemetry.Logger
	metrics     telemetry.Metrics
	onEnd       func(Result)
	onRoles     func([]state.RoleAssignment)

	tick            uint64
	timesCaught     int
	itemsSacrificed int
	ended           bool

	mu          sync.RWMutex
	snapshot    state.Snapshot
	assignments []state.RoleAssignment
	result      *Result
}

// NewOrchestrator validates opts and prepares a round. Roles are assigned if
// the roster does not carry them yet.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.State == nil || opts.Table == nil {
		return nil, ErrMissingState
	}
	if len(opts.Roster) < roles.MinPlayers || len(opts.Roster) > roles.MaxPlayers {
		return nil, fmt.Errorf("%w: %d players", ErrInvalidRoster, len(opts.Roster))
	}
	rng := opts.RNG
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	broadcaster := opts.Broadcaster
	if broadcaster == nil {
		broadcaster = BroadcasterFunc(nil)
	}
	if opts.State.Votes == nil {
		opts.State.Votes = make(map[string]state.VoteChoice)
	}

	roster := make([]state.Player, len(opts.Roster))
	copy(roster, opts.Roster)

	o := &Orchestrator{
		code:        opts.Code,
		cfg:         opts.Config,
		table:       opts.Table,
		state:       opts.State,
		rng:         rng,
		roster:      roster,
		bots:        make(map[string]*ai.Bot),
		roles:       roles.NewManager(rng),
		inputs:      sim.NewInputBuffer(opts.Metrics),
		commands:    sim.NewCommandBuffer(opts.Config.CommandCapacity, opts.Metrics),
		broadcaster: broadcaster,
		publisher:   publisher,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		onEnd:       opts.OnEnd,
		onRoles:     opts.OnRolesChanged,
	}

	switch {
	case !rolesAssigned(roster):
		if err := o.roles.Assign(o.roster); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRoster, err)
		}
	case !rolesComplete(roster):
		return nil, fmt.Errorf("%w: roles are not a permutation of the %d-player set", ErrInvalidRoster, len(roster))
	}
	for _, p := range o.roster {
		if p.IsBot {
			o.bots[p.ID] = ai.NewBot(p.ID, p.Role, o.cfg.Bot)
		}
	}

	o.scheduler = sim.NewScheduler(func(ctx sim.TickContext) { o.Step(ctx.Delta) },
		sim.SchedulerConfig{Interval: o.cfg.TickInterval, CatchupMaxTicks: o.cfg.CatchupMaxTicks},
		sim.Deps{Room: o.code, Clock: opts.Clock, Logger: opts.Logger, Publisher: publisher, Metrics: opts.Metrics},
	)

	o.publishRoles(roles.Assignments(o.roster))
	o.publishSnapshot()
	return o, nil
}

func rolesAssigned(players []state.Player) bool {
	for _, p := range players {
		if p.Role == state.RoleNone {
			return false
		}
	}
	return true
}

// rolesComplete reports whether the roster holds exactly the role set for
// its size, each role once.
func rolesComplete(players []state.Player) bool {
	want, err := roles.RolesFor(len(players))
	if err != nil {
		return false
	}
	counts := make(map[state.Role]int, len(want))
	for _, r := range want {
		counts[r]++
	}
	for _, p := range players {
		counts[p.Role]--
		if counts[p.Role] < 0 {
			return false
		}
	}
	return true
}

// Start announces the round and begins ticking.
func (o *Orchestrator) Start() {
	humans := 0
	for _, p := range o.roster {
		if !p.IsBot {
			humans++
		}
	}
	o.broadcaster.Publish(o.code, Started{State: o.Snapshot(), Roles: o.Roles()})
	roundlog.Started(context.Background(), o.publisher, o.code, roundlog.StartedPayload{
		Players: humans,
		Bots:    len(o.bots),
	})
	o.scheduler.Start()
}

// Stop halts the tick without finishing the round. Used when a room is torn
// down.
func (o *Orchestrator) Stop() {
	o.scheduler.Stop()
}

// Done is closed once the tick goroutine has exited.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.scheduler.Done()
}

// HandleInput buffers the latest input of a player for the next tick.
func (o *Orchestrator) HandleInput(id string, input state.Input) {
	o.inputs.Set(id, input)
}

// HandleVote stages a ballot. Ballots outside a vote are discarded by the
// tick.
func (o *Orchestrator) HandleVote(id string, choice state.VoteChoice) bool {
	return o.enqueue(sim.Command{Type: sim.CommandVote, ActorID: id, Vote: choice})
}

// RemovePlayer stages a roster removal. The tick recalculates roles or ends
// the round when too few players remain.
func (o *Orchestrator) RemovePlayer(id string) bool {
	return o.enqueue(sim.Command{Type: sim.CommandRemovePlayer, ActorID: id})
}

// End stages a forced end with reason.
func (o *Orchestrator) End(reason string) bool {
	return o.enqueue(sim.Command{Type: sim.CommandEnd, Reason: reason})
}

func (o *Orchestrator) enqueue(cmd sim.Command) bool {
	if o.commands.Push(cmd) {
		return true
	}
	simulation.CommandDropped(context.Background(), o.publisher, o.code, logging.PlayerRef(cmd.ActorID, false), simulation.CommandDroppedPayload{
		Kind:     string(cmd.Type),
		Capacity: o.commands.Capacity(),
	})
	return false
}

// Snapshot returns the state broadcast by the most recent tick.
func (o *Orchestrator) Snapshot() state.Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshot
}

// Roles returns the current role assignment.
func (o *Orchestrator) Roles() []state.RoleAssignment {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]state.RoleAssignment, len(o.assignments))
	copy(out, o.assignments)
	return out
}

// Result reports the outcome once the round has finished.
func (o *Orchestrator) Result() (Result, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.result == nil {
		return Result{}, false
	}
	return *o.result, true
}

// Step advances the round by one tick of delta elapsed time.
func (o *Orchestrator) Step(delta time.Duration) {
	if o.ended {
		return
	}
	o.tick++
	o.applyCommands()
	if o.ended {
		return
	}

	s := o.state
	switch s.Phase {
	case state.PhaseVoting:
		o.stepVoting(delta)
		o.broadcastState()
		return
	case state.PhasePlaying:
	default:
		return
	}

	s.Elapsed += delta
	o.synthesizeBotInputs()
	inputs := o.inputs.Snapshot()
	o.discardUnpermitted(inputs)
	o.applyMovement(inputs)

	if !s.Avatar.Frozen {
		world.Integrate(&s.Avatar)
		world.ResolveWalls(&s.Avatar, o.table.Walls, o.cfg.PlayerRadius)
	}
	world.AdvancePatrol(&s.Adversary, o.table.PatrolPath, o.cfg.AdversarySpeed, o.cfg.ArrivalEpsilon)

	if !s.Avatar.Frozen && world.WithinCatch(s.Adversary, s.Avatar.Position, o.cfg.CatchRadius) {
		o.catch()
		o.broadcastState()
		return
	}

	if o.applyInteract(inputs) {
		return
	}
	o.applyDrop(inputs)

	s.TimeRemaining -= delta
	s.RotationIn -= delta
	if s.RotationIn <= 0 {
		o.rotateRoles()
		s.RotationIn = o.cfg.SwapInterval
	}
	if s.TimeRemaining <= 0 {
		o.finish(ReasonTimeout)
		return
	}
	o.broadcastState()
}

func (o *Orchestrator) applyCommands() {
	for _, cmd := range o.commands.Drain() {
		switch cmd.Type {
		case sim.CommandVote:
			if o.state.Phase == state.PhaseVoting && o.indexOf(cmd.ActorID) >= 0 {
				o.state.Votes[cmd.ActorID] = cmd.Vote
			}
		case sim.CommandRemovePlayer:
			o.removePlayer(cmd.ActorID)
		case sim.CommandEnd:
			o.finish(cmd.Reason)
		}
		if o.ended {
			return
		}
	}
}

func (o *Orchestrator) indexOf(id string) int {
	for i, p := range o.roster {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (o *Orchestrator) roleOf(id string) (state.Role, bool) {
	return roles.RoleOf(o.roster, id)
}

func (o *Orchestrator) synthesizeBotInputs() {
	for _, p := range o.roster {
		bot, ok := o.bots[p.ID]
		if !ok {
			continue
		}
		bot.UpdateRole(p.Role)
		o.inputs.Set(p.ID, bot.Input(o.state, o.table))
	}
}

// discardUnpermitted clears one-shot presses sent by players whose role does
// not own them, so a press cannot fire after a later rotation hands them the
// role.
func (o *Orchestrator) discardUnpermitted(inputs []sim.BufferedInput) {
	for _, in := range inputs {
		role, _ := o.roleOf(in.PlayerID)
		for _, press := range []struct {
			kind state.InputKind
			set  bool
		}{
			{state.InputInteract, in.Input.Interact},
			{state.InputDrop, in.Input.Drop},
			{state.InputDash, in.Input.Dash},
		} {
			if press.set && !role.Permits(press.kind) {
				o.inputs.Consume(in.PlayerID, press.kind, in.Seq)
			}
		}
	}
}

func (o *Orchestrator) applyMovement(inputs []sim.BufferedInput) {
	s := o.state
	if s.Avatar.Dashing && s.Elapsed >= s.Avatar.DashEndsAt {
		s.Avatar.Dashing = false
	}

	var direction state.Vec2
	sprinting := false
	for _, in := range inputs {
		role, ok := o.roleOf(in.PlayerID)
		if !ok {
			continue
		}
		if role.Permits(state.InputMove) {
			direction = in.Input.Direction
		}
		if role.Permits(state.InputSprint) && in.Input.Sprint {
			sprinting = true
		}
		if role.Permits(state.InputDash) && in.Input.Dash {
			if !s.Avatar.Dashing && !s.Avatar.Frozen {
				s.Avatar.Dashing = true
				s.Avatar.DashEndsAt = s.Elapsed + o.cfg.DashDuration
			}
			o.inputs.Consume(in.PlayerID, state.InputDash, in.Seq)
		}
	}

	speed := world.SpeedTier(s.Avatar.Dashing, sprinting, o.cfg.PlayerSpeed, o.cfg.SprintSpeed, o.cfg.DashSpeed)
	s.Avatar.Velocity = world.Steer(direction, speed)
}

// applyInteract runs pickup, install or escape for the INTERACT holder, in
// that priority. It reports whether the round ended.
func (o *Orchestrator) applyInteract(inputs []sim.BufferedInput) bool {
	s := o.state
	for _, in := range inputs {
		if !in.Input.Interact {
			continue
		}
		role, ok := o.roleOf(in.PlayerID)
		if !ok || !role.Permits(state.InputInteract) {
			continue
		}
		o.inputs.Consume(in.PlayerID, state.InputInteract, in.Seq)

		if items.CanPickup(s) {
			if idx := items.Nearest(s, o.cfg.PickupRadius); idx >= 0 && items.Pickup(s, idx) {
				continue
			}
		}
		if o.table.ExitPanel.Expand(o.cfg.PanelMargin).Contains(s.Avatar.Position) {
			if typ, ok := items.Install(s); ok {
				o.addMetric(metricPartsInstalled)
				roundlog.PartInstalled(context.Background(), o.publisher, o.code, o.tick, o.playerRef(in.PlayerID), roundlog.PartInstalledPayload{Part: string(typ)})
				continue
			}
		}
		if o.table.ExitZone.Contains(s.Avatar.Position) && s.Installed.All() {
			o.finish(ReasonEscaped)
			return true
		}
	}
	return false
}

func (o *Orchestrator) applyDrop(inputs []sim.BufferedInput) {
	for _, in := range inputs {
		if !in.Input.Drop {
			continue
		}
		role, ok := o.roleOf(in.PlayerID)
		if !ok || !role.Permits(state.InputDrop) {
			continue
		}
		o.inputs.Consume(in.PlayerID, state.InputDrop, in.Seq)
		items.Drop(o.state, o.rng, o.cfg.DropJitter)
	}
}

func (o *Orchestrator) catch() {
	s := o.state
	s.Avatar.Frozen = true
	s.Avatar.Dashing = false
	s.Avatar.Velocity = state.Vec2{}
	s.Phase = state.PhaseVoting
	s.Votes = make(map[string]state.VoteChoice)
	s.VoteRemaining = o.cfg.VoteDuration
	s.Demand = items.DemandFor(s)
	o.timesCaught++
	o.addMetric(metricCatches)

	hasItem := len(s.Inventory) > 0
	o.broadcaster.Publish(o.code, Caught{Demand: s.Demand, HasItem: hasItem})
	roundlog.Caught(context.Background(), o.publisher, o.code, o.tick, roundlog.CaughtPayload{
		Demand:  string(s.Demand),
		HasItem: hasItem,
	})
}

func (o *Orchestrator) stepVoting(delta time.Duration) {
	s := o.state
	s.VoteRemaining -= delta
	for _, p := range o.roster {
		if _, isBot := o.bots[p.ID]; !isBot {
			continue
		}
		if _, voted := s.Votes[p.ID]; !voted {
			s.Votes[p.ID] = ai.Vote(s)
		}
	}

	give, refuse := tally(s.Votes)
	timeLeft := s.VoteRemaining.Milliseconds()
	if timeLeft < 0 {
		timeLeft = 0
	}
	o.broadcaster.Publish(o.code, VoteTally{Give: give, Refuse: refuse, TimeLeftMs: timeLeft})

	if s.VoteRemaining <= 0 || len(s.Votes) >= len(o.roster) {
		o.resolveVote(give, refuse)
	}
}

func tally(votes map[string]state.VoteChoice) (give, refuse int) {
	for _, v := range votes {
		if v == state.VoteGive {
			give++
		} else {
			refuse++
		}
	}
	return give, refuse
}

// resolveVote settles a catch. A give majority, ties included, hands over
// the demanded item, which respawns elsewhere; otherwise the clock takes the
// penalty. The adversary then restarts its patrol so the avatar is not caught
// again on the next tick.
func (o *Orchestrator) resolveVote(give, refuse int) {
	s := o.state
	gave := false
	if give >= refuse && s.Demand.Satisfiable() && len(s.Inventory) > 0 {
		if typ, ok := items.Sacrifice(s, s.Demand); ok {
			items.Respawn(s, o.table, o.rng, typ, o.cfg.SpawnJitter)
			o.itemsSacrificed++
			o.addMetric(metricItemsSacrificed)
			gave = true
		}
	}
	if !gave {
		s.TimeRemaining -= o.cfg.Penalty
	}

	s.Avatar.Frozen = false
	s.Phase = state.PhasePlaying
	s.Votes = make(map[string]state.VoteChoice)
	s.Demand = state.DemandNone
	s.VoteRemaining = 0
	world.ResetAdversary(&s.Adversary, o.table.AdversaryStart)

	remaining := s.TimeRemaining.Milliseconds()
	if remaining < 0 {
		remaining = 0
	}
	o.broadcaster.Publish(o.code, VoteResolved{GaveItem: gave, TimeRemainingMs: remaining})
	roundlog.VoteResolved(context.Background(), o.publisher, o.code, o.tick, roundlog.VoteResolvedPayload{
		Give:            give,
		Refuse:          refuse,
		GaveItem:        gave,
		TimeRemainingMs: remaining,
		AdversaryReset:  true,
	})
}

func (o *Orchestrator) rotateRoles() {
	assignments := o.roles.Rotate(o.roster)
	o.rolesChanged(assignments, "rotation")
}

func (o *Orchestrator) removePlayer(id string) {
	idx := o.indexOf(id)
	if idx < 0 {
		return
	}
	o.roster = append(o.roster[:idx], o.roster[idx+1:]...)
	delete(o.bots, id)
	delete(o.state.Votes, id)
	o.inputs.Delete(id)

	if len(o.roster) < roles.MinPlayers {
		o.finish(ReasonNotEnoughPlayers)
		return
	}
	if err := o.roles.Assign(o.roster); err != nil {
		if o.logger != nil {
			o.logger.Printf("[round] room=%s role reassignment failed: %v", o.code, err)
		}
		o.finish(ReasonNotEnoughPlayers)
		return
	}
	for _, p := range o.roster {
		if bot, ok := o.bots[p.ID]; ok {
			bot.UpdateRole(p.Role)
		}
	}
	o.rolesChanged(roles.Assignments(o.roster), "roster")
}

func (o *Orchestrator) rolesChanged(assignments []state.RoleAssignment, reason string) {
	o.publishRoles(assignments)
	o.broadcaster.Publish(o.code, RolesChanged{Roles: assignments})
	if o.onRoles != nil {
		o.onRoles(assignments)
	}

	byID := make(map[string]string, len(assignments))
	for _, a := range assignments {
		byID[a.ID] = string(a.Role)
	}
	roundlog.RolesRotated(context.Background(), o.publisher, o.code, o.tick, roundlog.RolesRotatedPayload{
		Roles:  byID,
		Reason: reason,
	})
}

func (o *Orchestrator) finish(reason string) {
	if o.ended {
		return
	}
	o.ended = true
	o.scheduler.Stop()

	s := o.state
	won := reason == ReasonEscaped
	if won {
		s.Phase = state.PhaseWon
	} else {
		s.Phase = state.PhaseLost
	}
	s.Avatar.Velocity = state.Vec2{}

	remaining := s.TimeRemaining
	if remaining < 0 {
		remaining = 0
	}
	result := Result{
		Won:    won,
		Reason: reason,
		Stats: Stats{
			TimeTakenMs:     (o.cfg.MatchDuration - remaining).Milliseconds(),
			TimesCaught:     o.timesCaught,
			ItemsSacrificed: o.itemsSacrificed,
		},
	}

	o.publishSnapshot()
	o.mu.Lock()
	o.result = &result
	o.mu.Unlock()

	o.addMetric(metricRoundsEnded)
	o.broadcaster.Publish(o.code, Ended{Won: won, Reason: reason, Stats: result.Stats})
	roundlog.Ended(context.Background(), o.publisher, o.code, o.tick, roundlog.EndedPayload{
		Won:             won,
		Reason:          reason,
		TimeTakenMs:     result.Stats.TimeTakenMs,
		TimesCaught:     result.Stats.TimesCaught,
		ItemsSacrificed: result.Stats.ItemsSacrificed,
	})
	if o.onEnd != nil {
		o.onEnd(result)
	}
}

func (o *Orchestrator) broadcastState() {
	snap := o.publishSnapshot()
	o.broadcaster.Publish(o.code, StateSnapshot{Snapshot: snap})
}

func (o *Orchestrator) publishSnapshot() state.Snapshot {
	snap := o.state.Snapshot()
	o.mu.Lock()
	o.snapshot = snap
	o.mu.Unlock()
	return snap
}

func (o *Orchestrator) publishRoles(assignments []state.RoleAssignment) {
	copied := make([]state.RoleAssignment, len(assignments))
	copy(copied, assignments)
	o.mu.Lock()
	o.assignments = copied
	o.mu.Unlock()
}

func (o *Orchestrator) playerRef(id string) logging.EntityRef {
	_, isBot := o.bots[id]
	return logging.PlayerRef(id, isBot)
}

func (o *Orchestrator) addMetric(key string) {
	if o.metrics != nil {
		o.metrics.Add(key, 1)
	}
}

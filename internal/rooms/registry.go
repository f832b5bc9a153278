// Package rooms tracks lobbies and hands each started room to its own round
// orchestrator.
package rooms

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"swaphouse/server/internal/geometry"
	"swaphouse/server/internal/roles"
	"swaphouse/server/internal/round"
	"swaphouse/server/internal/state"
	"swaphouse/server/internal/telemetry"
	"swaphouse/server/internal/world"
	"swaphouse/server/logging"
	"swaphouse/server/logging/lifecycle"
)

const (
	// MaxPlayers caps a room's roster, bots included.
	MaxPlayers = roles.MaxPlayers

	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 5

	metricRoomsActive  = "rooms_active"
	metricRoomsCreated = "rooms_created_total"
	metricRoundsStart  = "rounds_started_total"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrGameInProgress   = errors.New("game already in progress")
	ErrRoomFull         = errors.New("room is full")
	ErrNotHost          = errors.New("only the host can do that")
	ErrPlayersNotReady  = errors.New("all players must be ready")
	ErrNotEnoughPlayers = errors.New("not enough players")
	ErrNotInRoom        = errors.New("player is not in a room")
	ErrAlreadyInRoom    = errors.New("player is already in a room")
	ErrNoActiveRound    = errors.New("no round in progress")
)

// Options configures a Registry.
type Options struct {
	Table       *geometry.Table
	Round       round.Config
	Broadcaster round.Broadcaster
	Publisher   logging.Publisher
	Logger      telemetry.Logger
	Metrics     telemetry.Metrics
	Clock       logging.Clock
	// Seed roots every round's RNG. Empty seeds from the wall clock.
	Seed string
}

// View is a copy of a room's lobby-facing state.
type View struct {
	Code          string         `json:"roomId"`
	HostID        string         `json:"hostId"`
	Phase         state.Phase    `json:"phase"`
	TargetPlayers int            `json:"totalPlayers"`
	Players       []state.Player `json:"players"`
	LastResult    *round.Result  `json:"lastResult,omitempty"`
}

// LeaveResult describes the room a departing player left behind.
type LeaveResult struct {
	View
	WasHost bool
	Deleted bool
}

type room struct {
	code    string
	host    string
	target  int
	phase   state.Phase
	players []state.Player
	orch    *round.Orchestrator
	rounds  int
	result  *round.Result
}

func (r *room) view() View {
	players := make([]state.Player, len(r.players))
	copy(players, r.players)
	v := View{
		Code:          r.code,
		HostID:        r.host,
		Phase:         r.phase,
		TargetPlayers: r.target,
		Players:       players,
	}
	if r.result != nil {
		res := *r.result
		v.LastResult = &res
	}
	return v
}

func (r *room) indexOf(id string) int {
	for i, p := range r.players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (r *room) humans() int {
	n := 0
	for _, p := range r.players {
		if !p.IsBot {
			n++
		}
	}
	return n
}

// Registry owns every room of the process.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*room
	byPlayer map[string]string

	opts      Options
	publisher logging.Publisher
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.Table == nil {
		opts.Table = geometry.Default()
	}
	if opts.Seed == "" {
		opts.Seed = strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Registry{
		rooms:     make(map[string]*room),
		byPlayer:  make(map[string]string),
		opts:      opts,
		publisher: publisher,
	}
}

// NormalizeCode upper-cases and trims a user-entered room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create opens a lobby hosted by hostID and returns it.
func (r *Registry) Create(hostID, name string, targetPlayers int) (View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byPlayer[hostID]; ok {
		return View{}, ErrAlreadyInRoom
	}
	code, err := r.newCodeLocked()
	if err != nil {
		return View{}, err
	}
	if name = strings.TrimSpace(name); name == "" {
		name = "Player 1"
	}
	rm := &room{
		code:   code,
		host:   hostID,
		target: clampTarget(targetPlayers),
		phase:  state.PhaseLobby,
		players: []state.Player{{
			ID:        hostID,
			Name:      name,
			Connected: true,
		}},
	}
	r.rooms[code] = rm
	r.byPlayer[hostID] = code
	r.addMetric(metricRoomsCreated)
	r.storeActiveLocked()

	lifecycle.RoomCreated(context.Background(), r.publisher, code, logging.PlayerRef(hostID, false), lifecycle.RoomCreatedPayload{TargetPlayers: rm.target})
	return rm.view(), nil
}

func clampTarget(n int) int {
	switch {
	case n < roles.MinPlayers:
		return roles.MinPlayers
	case n > MaxPlayers:
		return MaxPlayers
	default:
		return n
	}
}

func (r *Registry) newCodeLocked() (string, error) {
	limit := big.NewInt(int64(len(codeAlphabet)))
	for {
		var b strings.Builder
		for i := 0; i < codeLength; i++ {
			n, err := rand.Int(rand.Reader, limit)
			if err != nil {
				return "", fmt.Errorf("generate room code: %w", err)
			}
			b.WriteByte(codeAlphabet[n.Int64()])
		}
		if code := b.String(); r.rooms[code] == nil {
			return code, nil
		}
	}
}

// Join adds id to the lobby with code. A name already taken in the room,
// compared case-insensitively, gets the player's position appended.
func (r *Registry) Join(code, id, name string) (View, error) {
	code = NormalizeCode(code)
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byPlayer[id]; ok {
		return View{}, ErrAlreadyInRoom
	}
	rm, ok := r.rooms[code]
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	if rm.phase != state.PhaseLobby {
		return View{}, ErrGameInProgress
	}
	if len(rm.players) >= MaxPlayers {
		return View{}, fmt.Errorf("%w (max %d players)", ErrRoomFull, MaxPlayers)
	}

	position := strconv.Itoa(len(rm.players) + 1)
	if name = strings.TrimSpace(name); name == "" {
		name = "Player " + position
	}
	for _, p := range rm.players {
		if strings.EqualFold(p.Name, name) {
			name += position
			break
		}
	}
	rm.players = append(rm.players, state.Player{ID: id, Name: name, Connected: true})
	r.byPlayer[id] = code

	lifecycle.PlayerJoined(context.Background(), r.publisher, code, logging.PlayerRef(id, false), lifecycle.PlayerJoinedPayload{Name: name}, nil)
	return rm.view(), nil
}

// ToggleReady flips the ready flag of id while its room is in the lobby.
func (r *Registry) ToggleReady(id string) (View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, err := r.roomOfLocked(id)
	if err != nil {
		return View{}, err
	}
	if rm.phase != state.PhaseLobby {
		return View{}, ErrGameInProgress
	}
	if idx := rm.indexOf(id); idx >= 0 {
		rm.players[idx].Ready = !rm.players[idx].Ready
	}
	return rm.view(), nil
}

func (r *Registry) roomOfLocked(id string) (*room, error) {
	code, ok := r.byPlayer[id]
	if !ok {
		return nil, ErrNotInRoom
	}
	rm, ok := r.rooms[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	return rm, nil
}

// Start begins a round in the requester's room. Only the host may start and
// every human must be ready. Bots fill the roster up to the room's target.
func (r *Registry) Start(requesterID string) (View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, err := r.roomOfLocked(requesterID)
	if err != nil {
		return View{}, err
	}
	if rm.host != requesterID {
		return View{}, ErrNotHost
	}
	if rm.phase != state.PhaseLobby {
		return View{}, ErrGameInProgress
	}
	for _, p := range rm.players {
		if !p.IsBot && !p.Ready {
			return View{}, ErrPlayersNotReady
		}
	}

	target := rm.target
	if target < len(rm.players) {
		target = len(rm.players)
	}
	for n := 1; len(rm.players) < target; n++ {
		id := "bot-" + strconv.Itoa(n)
		if rm.indexOf(id) >= 0 {
			continue
		}
		rm.players = append(rm.players, state.Player{
			ID:        id,
			Name:      "Bot " + strconv.Itoa(n),
			Connected: true,
			Ready:     true,
			IsBot:     true,
		})
	}
	if len(rm.players) < roles.MinPlayers {
		return View{}, ErrNotEnoughPlayers
	}

	rm.rounds++
	rng := world.NewDeterministicRNG(r.opts.Seed, rm.code+"/"+strconv.Itoa(rm.rounds))
	if err := roles.NewManager(rng).Assign(rm.players); err != nil {
		return View{}, fmt.Errorf("assign roles: %w", err)
	}

	cfg := r.opts.Round
	var orch *round.Orchestrator
	orch, err = round.NewOrchestrator(round.Options{
		Code:        rm.code,
		Roster:      rm.players,
		State:       round.NewRoundState(r.opts.Table, cfg, rng),
		Table:       r.opts.Table,
		Config:      cfg,
		RNG:         rng,
		Broadcaster: r.opts.Broadcaster,
		Publisher:   r.publisher,
		Logger:      r.opts.Logger,
		Metrics:     r.opts.Metrics,
		Clock:       r.opts.Clock,
		OnEnd:       func(res round.Result) { r.roundEnded(rm.code, orch, res) },
		OnRolesChanged: func(assignments []state.RoleAssignment) {
			r.rolesChanged(rm.code, orch, assignments)
		},
	})
	if err != nil {
		return View{}, fmt.Errorf("start round: %w", err)
	}
	rm.orch = orch
	rm.phase = state.PhasePlaying
	rm.result = nil
	r.addMetric(metricRoundsStart)
	orch.Start()
	return rm.view(), nil
}

// roundEnded runs on the round's tick goroutine.
func (r *Registry) roundEnded(code string, orch *round.Orchestrator, res round.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[code]
	if !ok || rm.orch != orch {
		return
	}
	rm.orch = nil
	rm.phase = state.PhaseEnded
	rm.result = &res
}

// rolesChanged runs on the round's tick goroutine and copies the round's
// assignment onto the room roster.
func (r *Registry) rolesChanged(code string, orch *round.Orchestrator, assignments []state.RoleAssignment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[code]
	if !ok || rm.orch != orch {
		return
	}
	for _, a := range assignments {
		if idx := rm.indexOf(a.ID); idx >= 0 {
			rm.players[idx].Role = a.Role
		}
	}
}

// Input forwards a player's latest controls to their round.
func (r *Registry) Input(id string, input state.Input) error {
	orch, err := r.activeRound(id)
	if err != nil {
		return err
	}
	orch.HandleInput(id, input)
	return nil
}

// Vote forwards a ballot to the player's round.
func (r *Registry) Vote(id string, choice state.VoteChoice) error {
	orch, err := r.activeRound(id)
	if err != nil {
		return err
	}
	orch.HandleVote(id, choice)
	return nil
}

func (r *Registry) activeRound(id string) (*round.Orchestrator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, err := r.roomOfLocked(id)
	if err != nil {
		return nil, err
	}
	if rm.phase != state.PhasePlaying || rm.orch == nil {
		return nil, ErrNoActiveRound
	}
	return rm.orch, nil
}

// Leave removes id from its room. Hosting passes to the first remaining
// human. A room without humans is stopped and deleted; a running round is
// told to drop the player.
func (r *Registry) Leave(id, reason string) (LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, err := r.roomOfLocked(id)
	if err != nil {
		return LeaveResult{}, err
	}
	delete(r.byPlayer, id)
	idx := rm.indexOf(id)
	if idx < 0 {
		return LeaveResult{View: rm.view()}, nil
	}
	left := rm.players[idx]
	rm.players = append(rm.players[:idx], rm.players[idx+1:]...)

	ctx := context.Background()
	lifecycle.PlayerDisconnected(ctx, r.publisher, rm.code, logging.PlayerRef(id, left.IsBot), lifecycle.PlayerDisconnectedPayload{
		Reason:    reason,
		Remaining: rm.humans(),
	}, nil)

	wasHost := rm.host == id
	if rm.humans() == 0 {
		r.deleteLocked(rm)
		return LeaveResult{View: rm.view(), WasHost: wasHost, Deleted: true}, nil
	}

	if wasHost {
		for _, p := range rm.players {
			if !p.IsBot {
				rm.host = p.ID
				break
			}
		}
		lifecycle.HostChanged(ctx, r.publisher, rm.code, logging.PlayerRef(rm.host, false), lifecycle.HostChangedPayload{Previous: id})
	}
	if rm.orch != nil {
		rm.orch.RemovePlayer(id)
	}
	return LeaveResult{View: rm.view(), WasHost: wasHost}, nil
}

// Reset returns a finished room to its lobby. Bots are removed and every
// human must ready up again.
func (r *Registry) Reset(requesterID string) (View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, err := r.roomOfLocked(requesterID)
	if err != nil {
		return View{}, err
	}
	if rm.host != requesterID {
		return View{}, ErrNotHost
	}
	if rm.phase == state.PhasePlaying {
		return View{}, ErrGameInProgress
	}
	humans := rm.players[:0]
	for _, p := range rm.players {
		if p.IsBot {
			continue
		}
		p.Ready = false
		p.Role = state.RoleNone
		humans = append(humans, p)
	}
	rm.players = humans
	rm.phase = state.PhaseLobby
	return rm.view(), nil
}

// Delete stops and removes the room with code.
func (r *Registry) Delete(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[NormalizeCode(code)]
	if !ok {
		return false
	}
	r.deleteLocked(rm)
	return true
}

func (r *Registry) deleteLocked(rm *room) {
	if rm.orch != nil {
		rm.orch.Stop()
		rm.orch = nil
	}
	for _, p := range rm.players {
		if r.byPlayer[p.ID] == rm.code {
			delete(r.byPlayer, p.ID)
		}
	}
	delete(r.rooms, rm.code)
	r.storeActiveLocked()
	lifecycle.RoomDeleted(context.Background(), r.publisher, rm.code)
}

// Get returns a copy of the room with code.
func (r *Registry) Get(code string) (View, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[NormalizeCode(code)]
	if !ok {
		return View{}, false
	}
	return rm.view(), true
}

// RoomOf reports the code of the room id belongs to.
func (r *Registry) RoomOf(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.byPlayer[id]
	return code, ok
}

// Snapshot returns the latest round state of code, if a round is running.
func (r *Registry) Snapshot(code string) (state.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[NormalizeCode(code)]
	if !ok || rm.orch == nil {
		return state.Snapshot{}, false
	}
	return rm.orch.Snapshot(), true
}

// List returns every room ordered by code.
func (r *Registry) List() []View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]View, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, rm.view())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Close stops every running round and waits for their tick goroutines.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	var running []*round.Orchestrator
	for _, rm := range r.rooms {
		if rm.orch != nil {
			rm.orch.Stop()
			running = append(running, rm.orch)
		}
	}
	r.mu.Unlock()

	for _, orch := range running {
		select {
		case <-orch.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *Registry) storeActiveLocked() {
	if r.opts.Metrics != nil {
		r.opts.Metrics.Store(metricRoomsActive, uint64(len(r.rooms)))
	}
}

func (r *Registry) addMetric(key string) {
	if r.opts.Metrics != nil {
		r.opts.Metrics.Add(key, 1)
	}
}

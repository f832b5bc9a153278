package ws

import (
	"context"
	"sync"

	"swaphouse/server/internal/net/proto"
	"swaphouse/server/internal/round"
	"swaphouse/server/internal/telemetry"
	"swaphouse/server/logging"
	"swaphouse/server/logging/network"
)

const (
	metricSessions    = "ws_sessions"
	metricSendDropped = "ws_send_dropped_total"
	metricBroadcasts  = "ws_broadcast_frames_total"
)

// Hub tracks connected sessions and which room each belongs to. It is the
// Broadcaster rounds publish their events through.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	members  map[string]map[string]*Session
	roomOf   map[string]string

	logger    telemetry.Logger
	publisher logging.Publisher
	metrics   telemetry.Metrics
}

// HubConfig wires a Hub's logging and metrics.
type HubConfig struct {
	Logger    telemetry.Logger
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
}

// NewHub creates an empty hub.
func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Hub{
		sessions:  make(map[string]*Session),
		members:   make(map[string]map[string]*Session),
		roomOf:    make(map[string]string),
		logger:    logger,
		publisher: publisher,
		metrics:   cfg.Metrics,
	}
}

// Register adds a connected session.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	count := len(h.sessions)
	h.mu.Unlock()
	h.store(metricSessions, uint64(count))
}

// Unregister forgets a session and its room membership.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	h.detachLocked(id)
	delete(h.sessions, id)
	count := len(h.sessions)
	h.mu.Unlock()
	h.store(metricSessions, uint64(count))
}

// Attach moves the session id into room code.
func (h *Hub) Attach(code, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	if !ok {
		return
	}
	h.detachLocked(id)
	members := h.members[code]
	if members == nil {
		members = make(map[string]*Session)
		h.members[code] = members
	}
	members[id] = s
	h.roomOf[id] = code
}

// Detach removes id from whatever room it was in.
func (h *Hub) Detach(id string) {
	h.mu.Lock()
	h.detachLocked(id)
	h.mu.Unlock()
}

func (h *Hub) detachLocked(id string) {
	code, ok := h.roomOf[id]
	if !ok {
		return
	}
	delete(h.roomOf, id)
	if members := h.members[code]; members != nil {
		delete(members, id)
		if len(members) == 0 {
			delete(h.members, code)
		}
	}
}

// RoomOf reports the room the session id is attached to.
func (h *Hub) RoomOf(id string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	code, ok := h.roomOf[id]
	return code, ok
}

// Members reports how many sessions are attached to code.
func (h *Hub) Members(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members[code])
}

// Sessions reports how many sessions are connected.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll closes every connected session. Their read loops then finish the
// usual disconnect path.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()
	for _, s := range sessions {
		s.Close()
	}
}

// Publish implements round.Broadcaster.
func (h *Hub) Publish(code string, event round.Event) {
	if event == nil {
		return
	}
	data, err := proto.EncodeEvent(event)
	if err != nil {
		h.logger.Printf("[ws] room=%s failed to encode %s: %v", code, event.EventName(), err)
		return
	}
	h.fanout(code, event.EventName(), data)
}

// Broadcast sends a message to every session in code.
func (h *Hub) Broadcast(code, typ string, payload any) {
	data, err := proto.Encode(typ, payload)
	if err != nil {
		h.logger.Printf("[ws] room=%s failed to encode %s: %v", code, typ, err)
		return
	}
	h.fanout(code, typ, data)
}

// SendTo sends a message to one session.
func (h *Hub) SendTo(id, typ string, payload any) bool {
	h.mu.RLock()
	s, ok := h.sessions[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	data, err := proto.Encode(typ, payload)
	if err != nil {
		h.logger.Printf("[ws] player=%s failed to encode %s: %v", id, typ, err)
		return false
	}
	return h.deliver(s, typ, data)
}

func (h *Hub) fanout(code, typ string, data []byte) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.members[code]))
	for _, s := range h.members[code] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.deliver(s, typ, data)
	}
	if h.metrics != nil {
		h.metrics.Add(metricBroadcasts, uint64(len(targets)))
	}
}

func (h *Hub) deliver(s *Session, typ string, data []byte) bool {
	if s.Enqueue(data) {
		return true
	}
	if s.isClosed() {
		return false
	}
	dropped := s.SendDropped()
	if h.metrics != nil {
		h.metrics.Add(metricSendDropped, 1)
	}
	if dropped&(dropped-1) == 0 {
		network.SendDropped(context.Background(), h.publisher, logging.PlayerRef(s.ID, false), network.SendDroppedPayload{
			MessageType: typ,
			Dropped:     dropped,
		}, nil)
	}
	return false
}

func (h *Hub) store(key string, value uint64) {
	if h.metrics != nil {
		h.metrics.Store(key, value)
	}
}

package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	defaultSendBuffer   = 64
	defaultWriteWait    = 10 * time.Second
	defaultPongWait     = 60 * time.Second
	defaultPingInterval = 25 * time.Second
	defaultReadLimit    = 64 << 10
	defaultInputRate    = 60
	defaultInputBurst   = 20
)

// SessionConfig tunes one websocket session.
type SessionConfig struct {
	SendBuffer   int
	WriteWait    time.Duration
	PongWait     time.Duration
	PingInterval time.Duration
	ReadLimit    int64
	// InputRate is the sustained player-input frames per second a session may
	// send before frames are dropped.
	InputRate  float64
	InputBurst int
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = defaultReadLimit
	}
	if c.InputRate <= 0 {
		c.InputRate = defaultInputRate
	}
	if c.InputBurst <= 0 {
		c.InputBurst = defaultInputBurst
	}
	return c
}

// Session is one connected client. Outbound frames go through a buffered
// channel drained by the write pump so a slow client never blocks a tick.
type Session struct {
	ID string

	conn    *websocket.Conn
	cfg     SessionConfig
	send    chan []byte
	limiter *rate.Limiter

	closeOnce sync.Once
	closed    chan struct{}

	sendDropped  atomic.Uint64
	inputDropped atomic.Uint64
}

func newSession(id string, conn *websocket.Conn, cfg SessionConfig) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		ID:      id,
		conn:    conn,
		cfg:     cfg,
		send:    make(chan []byte, cfg.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(cfg.InputRate), cfg.InputBurst),
		closed:  make(chan struct{}),
	}
}

// Enqueue queues data for the write pump. It never blocks; a full buffer
// drops the frame and reports false.
func (s *Session) Enqueue(data []byte) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.send <- data:
		return true
	default:
		s.sendDropped.Add(1)
		return false
	}
}

// AllowInput reports whether another player-input frame fits the session's
// rate budget. Rejected frames are counted.
func (s *Session) AllowInput() bool {
	if s.limiter.Allow() {
		return true
	}
	s.inputDropped.Add(1)
	return false
}

// SendDropped reports how many outbound frames were discarded.
func (s *Session) SendDropped() uint64 { return s.sendDropped.Load() }

// InputDropped reports how many inbound input frames were rate limited.
func (s *Session) InputDropped() uint64 { return s.inputDropped.Load() }

// Close stops the write pump. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Closed is closed once the session has been closed.
func (s *Session) Closed() <-chan struct{} { return s.closed }

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) prepareRead() {
	s.conn.SetReadLimit(s.cfg.ReadLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})
}

// writePump owns every write to the connection.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.closed:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

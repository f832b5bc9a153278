package ws

import (
	"context"
	nethttp "net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"swaphouse/server/internal/net/intake"
	"swaphouse/server/internal/net/proto"
	"swaphouse/server/internal/telemetry"
	"swaphouse/server/logging"
	"swaphouse/server/logging/network"
)

type HandlerConfig struct {
	Logger    telemetry.Logger
	Publisher logging.Publisher
	Session   SessionConfig
	// NewID names each connection. Defaults to random UUIDs.
	NewID func() string
}

type Handler struct {
	hub       *Hub
	rooms     intake.Rooms
	logger    telemetry.Logger
	publisher logging.Publisher
	session   SessionConfig
	newID     func() string
	upgrader  websocket.Upgrader
}

func NewHandler(hub *Hub, rooms intake.Rooms, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:       hub,
		rooms:     rooms,
		logger:    logger,
		publisher: publisher,
		session:   cfg.Session,
		newID:     newID,
		upgrader:  upgrader,
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[ws] upgrade failed: %v", err)
		return
	}

	session := newSession(h.newID(), conn, h.session)
	h.hub.Register(session)
	go session.writePump()
	h.Serve(session)
}

// Serve runs the read loop of session until the client goes away, then
// removes the player from their room.
func (h *Handler) Serve(session *Session) {
	playerID := session.ID
	defer h.disconnect(session)

	session.prepareRead()
	for {
		_, payload, err := session.conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			network.MalformedMessage(context.Background(), h.publisher, logging.PlayerRef(playerID, false), network.MalformedPayload{
				Error: err.Error(),
				Bytes: len(payload),
			}, nil)
			continue
		}

		if msg.Type == proto.TypePlayerInput && !session.AllowInput() {
			if dropped := session.InputDropped(); dropped&(dropped-1) == 0 {
				network.InputRateLimited(context.Background(), h.publisher, logging.PlayerRef(playerID, false), network.RateLimitedPayload{Dropped: dropped}, nil)
			}
			continue
		}

		out, ok := intake.Stage(h.rooms, playerID, msg)
		if !ok {
			h.logger.Printf("[ws] unknown message type %q from %s", msg.Type, playerID)
			continue
		}
		h.deliver(playerID, out)
	}
}

func (h *Handler) deliver(playerID string, out intake.Outcome) {
	if out.Room != "" {
		h.hub.Attach(out.Room, playerID)
	}
	for _, m := range out.Reply {
		h.hub.SendTo(playerID, m.Type, m.Data)
	}
	if len(out.Broadcast) == 0 {
		return
	}
	code, ok := h.hub.RoomOf(playerID)
	if !ok {
		return
	}
	for _, m := range out.Broadcast {
		h.hub.Broadcast(code, m.Type, m.Data)
	}
}

func (h *Handler) disconnect(session *Session) {
	playerID := session.ID
	h.hub.Unregister(playerID)
	session.Close()

	out, code, ok := intake.Disconnect(h.rooms, playerID, "disconnect")
	if !ok {
		return
	}
	for _, m := range out.Broadcast {
		h.hub.Broadcast(code, m.Type, m.Data)
	}
}

package net

import (
	"encoding/json"
	nethttp "net/http"
	"time"

	"swaphouse/server/internal/rooms"
	"swaphouse/server/internal/telemetry"
	"swaphouse/server/logging"
)

// RoomLister is the registry view the HTTP surface reads.
type RoomLister interface {
	List() []rooms.View
}

type HTTPHandlerConfig struct {
	ClientDir string
	Logger    telemetry.Logger
	Rooms     RoomLister
	// WebSocket serves /ws.
	WebSocket nethttp.Handler
	// Sessions reports connected websocket clients.
	Sessions     func() int
	Counters     *telemetry.Counters
	LoggingStats func() logging.RouterStats
	TickInterval time.Duration
}

type roomSummary struct {
	Code          string `json:"roomId"`
	Phase         string `json:"phase"`
	Players       int    `json:"players"`
	Bots          int    `json:"bots"`
	TargetPlayers int    `json:"totalPlayers"`
}

func summarize(views []rooms.View) []roomSummary {
	out := make([]roomSummary, 0, len(views))
	for _, v := range views {
		s := roomSummary{Code: v.Code, Phase: string(v.Phase), TargetPlayers: v.TargetPlayers}
		for _, p := range v.Players {
			if p.IsBot {
				s.Bots++
			} else {
				s.Players++
			}
		}
		out = append(out, s)
	}
	return out
}

func NewHTTPHandler(cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string              `json:"status"`
			ServerTime int64               `json:"serverTime"`
			TickMillis int64               `json:"tickMillis"`
			Sessions   int                 `json:"sessions"`
			Rooms      []roomSummary       `json:"rooms"`
			Telemetry  map[string]uint64   `json:"telemetry,omitempty"`
			Logging    logging.RouterStats `json:"logging"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			TickMillis: cfg.TickInterval.Milliseconds(),
		}
		if cfg.Sessions != nil {
			payload.Sessions = cfg.Sessions()
		}
		if cfg.Rooms != nil {
			payload.Rooms = summarize(cfg.Rooms.List())
		}
		if cfg.Counters != nil {
			payload.Telemetry = cfg.Counters.Snapshot()
		}
		if cfg.LoggingStats != nil {
			payload.Logging = cfg.LoggingStats()
		}
		writeJSON(w, logger, payload)
	})

	mux.HandleFunc("/rooms", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var list []roomSummary
		if cfg.Rooms != nil {
			list = summarize(cfg.Rooms.List())
		}
		writeJSON(w, logger, struct {
			Rooms []roomSummary `json:"rooms"`
		}{Rooms: list})
	})

	if cfg.WebSocket != nil {
		mux.Handle("/ws", cfg.WebSocket)
	}

	if cfg.ClientDir != "" {
		fs := nethttp.FileServer(nethttp.Dir(cfg.ClientDir))
		mux.Handle("/", fs)
	}

	return mux
}

func writeJSON(w nethttp.ResponseWriter, logger telemetry.Logger, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("[http] failed to encode response: %v", err)
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}

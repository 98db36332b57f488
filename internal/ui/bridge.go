// Package ui exposes the local websocket bridge the Telegram web view
// connects to. The bridge pushes render state on a cadence and translates
// view commands into session calls.
package ui

import (
	"encoding/json"
	"errors"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"coinfall/client/internal/game"
	"coinfall/client/internal/session"
	"coinfall/client/internal/telemetry"
)

// Handler upgrades bridge connections and runs the per-connection loops.
type Handler struct {
	session  *session.Session
	refresh  time.Duration
	logger   telemetry.Logger
	upgrader websocket.Upgrader
}

// HandlerConfig tunes a Handler.
type HandlerConfig struct {
	// Refresh is the cadence for unsolicited state pushes.
	Refresh time.Duration
	Logger  telemetry.Logger
}

// NewHandler builds the bridge handler over a bootstrapped session.
func NewHandler(sess *session.Session, cfg HandlerConfig) *Handler {
	refresh := cfg.Refresh
	if refresh <= 0 {
		refresh = time.Second
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// The bridge binds to loopback; the web view origin varies by
		// Telegram container.
		CheckOrigin: func(r *nethttp.Request) bool { return true },
	}
	return &Handler{
		session:  sess,
		refresh:  refresh,
		logger:   cfg.Logger,
		upgrader: upgrader,
	}
}

// bridgeConn serializes writes; the pusher goroutine and the read loop both
// write to the socket.
type bridgeConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *bridgeConn) writeJSON(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Handle upgrades the request and serves one bridge connection until the
// socket closes.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.printf("bridge upgrade failed: %v", err)
		return
	}
	conn := &bridgeConn{conn: raw}
	defer raw.Close()

	if err := conn.writeJSON(catalogMessage{
		Ver:      ProtocolVersion,
		Type:     "catalog",
		Boosters: h.session.Boosters(),
	}); err != nil {
		return
	}
	if err := h.pushState(conn); err != nil {
		return
	}

	stop := make(chan struct{})
	defer close(stop)
	go h.pushLoop(conn, stop)

	for {
		_, payload, err := raw.ReadMessage()
		if err != nil {
			// Socket gone; flush whatever is buffered before the
			// web view disappears for good.
			h.session.Flush()
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.printf("discarding malformed bridge message: %v", err)
			continue
		}
		if !h.dispatch(conn, r, msg) {
			return
		}
	}
}

// dispatch handles one command. Returns false when the socket is dead.
func (h *Handler) dispatch(conn *bridgeConn, r *nethttp.Request, msg clientMessage) bool {
	switch msg.Type {
	case "tap":
		view, err := h.session.Tap()
		if errors.Is(err, game.ErrInsufficientEnergy) {
			if werr := conn.writeJSON(errorMessage{
				Ver:  ProtocolVersion,
				Type: "error",
				Code: codeInsufficientEnergy,
			}); werr != nil {
				return false
			}
		}
		return h.pushView(conn, view)
	case "flush":
		h.session.Flush()
		return true
	case "buy_booster":
		view, err := h.session.BuyBooster(r.Context(), msg.BoosterType)
		if err != nil {
			if werr := conn.writeJSON(errorMessage{
				Ver:     ProtocolVersion,
				Type:    "error",
				Code:    purchaseErrorCode(err),
				Message: err.Error(),
			}); werr != nil {
				return false
			}
		}
		return h.pushView(conn, view)
	case "daily_booster":
		view, err := h.session.UseDailyBooster(r.Context())
		if err != nil {
			if werr := conn.writeJSON(errorMessage{
				Ver:     ProtocolVersion,
				Type:    "error",
				Code:    codeCommandFailed,
				Message: err.Error(),
			}); werr != nil {
				return false
			}
		}
		return h.pushView(conn, view)
	case "visibility":
		if msg.Hidden {
			h.session.Flush()
		}
		return true
	default:
		h.printf("unknown bridge command %q", msg.Type)
		return true
	}
}

func purchaseErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrUnknownBooster):
		return codeUnknownBooster
	case errors.Is(err, session.ErrInsufficientBalance):
		return codeInsufficientBalance
	default:
		return codeCommandFailed
	}
}

// pushLoop sends unsolicited state on the refresh cadence so regeneration and
// booster countdowns advance on screen without user input.
func (h *Handler) pushLoop(conn *bridgeConn, stop <-chan struct{}) {
	ticker := time.NewTicker(h.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := h.pushState(conn); err != nil {
				return
			}
		}
	}
}

func (h *Handler) pushState(conn *bridgeConn) error {
	return conn.writeJSON(stateMessage{
		Ver:  ProtocolVersion,
		Type: "state",
		View: h.session.View(),
	})
}

func (h *Handler) pushView(conn *bridgeConn, view session.View) bool {
	return conn.writeJSON(stateMessage{
		Ver:  ProtocolVersion,
		Type: "state",
		View: view,
	}) == nil
}

func (h *Handler) printf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}

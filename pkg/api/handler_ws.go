package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/opus-nx/swarm/pkg/events"
)

const (
	heartbeatInterval = 15 * time.Second
	idleTimeout       = 300 * time.Second
)

// Application close codes, mirrored to clients in the error event payload.
const (
	closeInvalidToken  = 4001
	closeIdleTimeout   = 4002
	closeInternalError = 4003
)

// wsError is the terminal error event sent before an abnormal close.
type wsError struct {
	Event  string `json:"event"`
	Code   int    `json:"code"`
	Reason string `json:"reason,omitempty"`
}

// wsHandler handles GET /ws/:session_id. It authenticates the query token,
// subscribes the connection to the session's event stream, and runs the
// deliver / heartbeat / drain loops until the client goes away.
func (s *Server) wsHandler(c *echo.Context) error {
	sessionID := c.Param("session_id")
	token := c.QueryParam("token")
	authenticated := verifyToken(s.cfg.Auth.Secret, token)

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	if !authenticated {
		_ = conn.Close(websocket.StatusCode(closeInvalidToken), "invalid token")
		return nil
	}

	sub := s.bus.Subscribe(sessionID)
	defer s.bus.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// Drain client frames so pongs never accumulate. A read error means the
	// client disconnected; cancel the deliver loop.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	s.deliver(ctx, conn, sub, sessionID)
	return nil
}

// deliver pumps bus events to the socket with a heartbeat and an idle bound.
func (s *Server) deliver(ctx context.Context, conn *websocket.Conn, sub *events.Subscription, sessionID string) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	pingPayload, _ := json.Marshal(events.NewPing(sessionID))

	for {
		select {
		case payload, ok := <-sub.Events():
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				s.closeAbnormal(ctx, conn, closeInternalError, "delivery failed")
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(idleTimeout)

		case <-heartbeat.C:
			if err := conn.Write(ctx, websocket.MessageText, pingPayload); err != nil {
				return
			}

		case <-idle.C:
			s.closeAbnormal(ctx, conn, closeIdleTimeout, "idle_timeout")
			return

		case <-ctx.Done():
			return
		}
	}
}

// closeAbnormal sends a terminal error event, then closes with the same code.
func (s *Server) closeAbnormal(ctx context.Context, conn *websocket.Conn, code int, reason string) {
	payload, _ := json.Marshal(wsError{Event: "error", Code: code, Reason: reason})
	_ = conn.Write(ctx, websocket.MessageText, payload)
	_ = conn.Close(websocket.StatusCode(code), reason)
}

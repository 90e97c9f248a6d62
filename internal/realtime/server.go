package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/suman7063/ifindLife-sub000/internal/auth"
	"github.com/suman7063/ifindLife-sub000/internal/orchestrator"
	"github.com/suman7063/ifindLife-sub000/internal/session"
	"github.com/suman7063/ifindLife-sub000/internal/signaling"
	"github.com/suman7063/ifindLife-sub000/internal/wallet"
)

// Actions is what a connected party may do from the socket.
type Actions interface {
	Accept(ctx context.Context, sessionID, userID string) (orchestrator.View, error)
	Decline(ctx context.Context, sessionID, userID string) (orchestrator.View, error)
	Cancel(ctx context.Context, sessionID, userID string) (orchestrator.View, error)
	End(ctx context.Context, sessionID, userID string) (orchestrator.View, error)
}

// Inbound frame types. Outbound frames are signaling.Message values plus
// ack/error replies.
const (
	frameAccept  = "accept"
	frameDecline = "decline"
	frameCancel  = "cancel"
	frameEnd     = "end"

	frameAck   = "ack"
	frameError = "error"
)

type inbound struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type reply struct {
	Type      string         `json:"type"`
	For       string         `json:"for,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Status    session.Status `json:"status,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type Options struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	ActionTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.ReadTimeout {
		o.PingInterval = o.ReadTimeout * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = 15 * time.Second
	}
	return o
}

// Server upgrades authenticated requests and runs the read/write pumps.
type Server struct {
	hub      *Hub
	actions  Actions
	opts     Options
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, actions Actions, opts Options, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		hub:     hub,
		actions: actions,
		opts:    opts.withDefaults(),
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers connect from the app origin; the token is the gate.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle is mounted behind auth.RequireAccessToken.
func (s *Server) Handle(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}
	client, err := s.hub.Register(context.Background(), userID, ws)
	if err != nil {
		s.log.Error("realtime register failed", "user_id", userID, "error", err)
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "unavailable"))
		_ = ws.Close()
		return
	}
	ws.SetReadLimit(s.opts.MaxMessageSize)

	go s.writePump(client)
	go s.readPump(client)
}

func (s *Server) readPump(c *Client) {
	defer func() {
		s.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket closed", "user_id", c.UserID, "error", err)
			}
			return
		}
		s.handleFrame(c, data)
	}
}

func (s *Server) writePump(c *Client) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleFrame(c *Client, data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil || in.SessionID == "" {
		_ = s.hub.SendJSON(c, reply{Type: frameError, For: in.Type, Error: "invalid_frame"})
		return
	}

	var act func(context.Context, string, string) (orchestrator.View, error)
	switch in.Type {
	case frameAccept:
		act = s.actions.Accept
	case frameDecline:
		act = s.actions.Decline
	case frameCancel:
		act = s.actions.Cancel
	case frameEnd:
		act = s.actions.End
	default:
		_ = s.hub.SendJSON(c, reply{Type: frameError, For: in.Type, SessionID: in.SessionID, Error: "unknown_type"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ActionTimeout)
	defer cancel()
	v, err := act(ctx, in.SessionID, c.UserID)
	if err != nil {
		s.log.Info("realtime action rejected", "user_id", c.UserID, "session_id", in.SessionID, "type", in.Type, "error", err)
		_ = s.hub.SendJSON(c, reply{Type: frameError, For: in.Type, SessionID: in.SessionID, Error: ErrorCode(err)})
		return
	}
	_ = s.hub.SendJSON(c, reply{Type: frameAck, For: in.Type, SessionID: in.SessionID, Status: v.Status})
}

// ErrorCode is the stable client-facing code for an action error.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return "not_found"
	case errors.Is(err, session.ErrNotParticipant):
		return "forbidden"
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, signaling.ErrConflict):
		return "conflict"
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, wallet.ErrLedgerUnavailable), errors.Is(err, orchestrator.ErrSignalingUnavailable),
		errors.Is(err, orchestrator.ErrShuttingDown), errors.Is(err, context.DeadlineExceeded):
		return "unavailable"
	default:
		return "internal"
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/smartpot-core/internal/auth"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/config"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/logging"
	"github.com/nerrad567/smartpot-core/internal/live"
	"github.com/nerrad567/smartpot-core/internal/telemetry"
)

// Live channel message types.
const (
	WSTypeConnection      = "connection"
	WSTypeGetMeasurements = "get_measurements"
	WSTypeMeasurements    = "measurements"
	WSTypeError           = "error"

	// wsSnapshotTimeout bounds the store read behind get_measurements.
	wsSnapshotTimeout = 10 * time.Second
)

// errSendBufferFull is returned by Send when a slow client has not drained
// its outbound buffer.
var errSendBufferFull = errors.New("api: websocket send buffer full")

// WSMessage is a message exchanged on the live channel.
type WSMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsConn is a live.Conn backed by a WebSocket. Outbound payloads are
// queued for writePump so Send never blocks the caller.
//
// The send channel is never closed; done signals shutdown instead, so a
// broadcast racing with Close cannot panic.
type wsConn struct {
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	userID   string
	flowerID string
	logger   *logging.Logger
}

func newWSConn(conn *websocket.Conn, userID, flowerID string, buffer int, logger *logging.Logger) *wsConn {
	return &wsConn{
		conn:     conn,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
		userID:   userID,
		flowerID: flowerID,
		logger:   logger,
	}
}

// Send queues payload for delivery.
func (c *wsConn) Send(payload []byte) error {
	select {
	case <-c.done:
		return live.ErrClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return live.ErrClosed
	default:
		return errSendBufferFull
	}
}

// IsOpen reports whether Close has not been called.
func (c *wsConn) IsOpen() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Close stops writePump, which sends a close frame and closes the socket.
// Safe to call more than once.
func (c *wsConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *wsConn) sendMessage(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal websocket message", "type", msg.Type, "error", err)
		return
	}
	if err := c.Send(data); err != nil {
		c.logger.Debug("websocket message dropped", "type", msg.Type, "user_id", c.userID, "error", err)
	}
}

// handleLiveMeasurements upgrades to a live channel for one flower.
// Authentication is via the token query parameter, a bearer token issued
// for the user, who must belong to the flower's household. The
// subscription is fixed for the life of the connection.
func (s *Server) handleLiveMeasurements(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeUnauthorized(w, "token query parameter is required")
		return
	}
	claims, err := auth.ParseToken(token, s.secCfg.JWT.Secret)
	if err != nil {
		writeUnauthorized(w, "invalid or expired token")
		return
	}

	flowerID := chi.URLParam(r, "flowerID")
	flower, err := s.flowers.GetFlower(r.Context(), flowerID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	household, err := s.flowers.GetHousehold(r.Context(), flower.HouseholdID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !household.HasMember(claims.UserID()) {
		writeForbidden(w, "not a member of the flower's household")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := newWSConn(ws, claims.UserID(), flowerID, s.wsCfg.SendBuffer, s.logger)
	s.live.Register(conn.userID, flowerID, conn)
	conn.sendMessage(WSMessage{Type: WSTypeConnection, Message: "Connected to flower " + flowerID})

	go conn.writePump(s.wsCfg)
	go s.readPump(conn)
}

// readPump reads client messages until the socket fails, then releases
// the registry entry if it still belongs to this connection.
func (s *Server) readPump(c *wsConn) {
	defer func() {
		s.live.Release(c.userID, c)
		c.Close() //nolint:errcheck // Close never fails
	}()

	c.conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	pingInterval := time.Duration(s.wsCfg.PingInterval) * time.Second
	pongWait := time.Duration(s.wsCfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "user_id", c.userID, "error", err)
			} else {
				s.logger.Debug("websocket closed", "user_id", c.userID, "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		s.handleWSMessage(c, message)
	}
}

// writePump drains the send queue and keeps the connection alive with
// pings. It owns all writes to the socket.
func (c *wsConn) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.Close() //nolint:errcheck // Close never fails
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			//nolint:errcheck // Best-effort close message
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// handleWSMessage answers one client frame.
func (s *Server) handleWSMessage(c *wsConn, data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendMessage(WSMessage{Type: WSTypeError, Message: "Invalid message format"})
		return
	}

	switch msg.Type {
	case WSTypeGetMeasurements:
		ctx, cancel := context.WithTimeout(context.Background(), wsSnapshotTimeout)
		defer cancel()
		snapshot, err := s.measurements.Snapshot(ctx, c.flowerID, telemetry.SnapshotLimit)
		if err != nil {
			s.logger.Error("failed to load measurement snapshot", "flower_id", c.flowerID, "error", err)
			c.sendMessage(WSMessage{Type: WSTypeError, Message: "Failed to load measurements"})
			return
		}
		c.sendMessage(WSMessage{Type: WSTypeMeasurements, Data: snapshot})
	default:
		c.sendMessage(WSMessage{Type: WSTypeError, Message: "Unknown message type"})
	}
}

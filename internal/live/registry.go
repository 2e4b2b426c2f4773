package live

import (
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by a Conn whose transport has gone away.
var ErrClosed = errors.New("live: connection closed")

// Conn is a live push transport. Send must not block: a transport that
// cannot accept the payload immediately returns an error instead.
type Conn interface {
	Send(payload []byte) error
	IsOpen() bool
	Close() error
}

// Logger is the logging interface used by the registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type entry struct {
	conn     Conn
	flowerID string
}

// Registry tracks at most one live connection per user, each subscribed to
// a single flower.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Sends happen outside the lock on a snapshot of the entries.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry

	closeSuperseded bool
	logger          Logger
}

// NewRegistry creates an empty registry. When closeSuperseded is set, the
// connection replaced by a newer one for the same user is closed.
func NewRegistry(closeSuperseded bool) *Registry {
	return &Registry{
		entries:         make(map[string]entry),
		closeSuperseded: closeSuperseded,
		logger:          noopLogger{},
	}
}

// SetLogger sets the registry logger.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

func (r *Registry) log() Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

// Register stores conn as the user's connection, replacing any earlier one.
func (r *Registry) Register(userID, flowerID string, conn Conn) {
	r.mu.Lock()
	old, existed := r.entries[userID]
	r.entries[userID] = entry{conn: conn, flowerID: flowerID}
	count := len(r.entries)
	logger := r.logger
	r.mu.Unlock()

	logger.Debug("live connection registered",
		"user_id", userID,
		"flower_id", flowerID,
		"connections", count,
	)

	if !existed || old.conn == conn {
		return
	}
	logger.Info("live connection superseded",
		"user_id", userID,
		"old_flower_id", old.flowerID,
		"flower_id", flowerID,
	)
	if r.closeSuperseded {
		if err := old.conn.Close(); err != nil {
			logger.Debug("closing superseded live connection failed", "user_id", userID, "error", err)
		}
	}
}

// Unregister removes the user's connection. Unknown users are ignored.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	delete(r.entries, userID)
	r.mu.Unlock()
}

// Release removes the user's entry only while it still holds conn, so a
// transport shutting down after being replaced leaves its successor alone.
// Reports whether the entry was removed.
func (r *Registry) Release(userID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.entries[userID]
	if !ok || current.conn != conn {
		return false
	}
	delete(r.entries, userID)
	return true
}

// SendToUser pushes payload to the user's connection. A missing or closed
// connection, or a failed send, is logged and dropped.
func (r *Registry) SendToUser(userID string, payload []byte) bool {
	r.mu.RLock()
	e, ok := r.entries[userID]
	logger := r.logger
	r.mu.RUnlock()

	if !ok || !e.conn.IsOpen() {
		logger.Debug("no open live connection for user", "user_id", userID)
		return false
	}
	if err := safeSend(e.conn, payload); err != nil {
		logger.Warn("live push to user failed", "user_id", userID, "error", err)
		return false
	}
	return true
}

// BroadcastToFlower pushes payload to every open connection subscribed to
// flowerID and returns the number of successful sends. A failing recipient
// does not affect the others.
func (r *Registry) BroadcastToFlower(flowerID string, payload []byte) int {
	type target struct {
		userID string
		conn   Conn
	}

	r.mu.RLock()
	targets := make([]target, 0, len(r.entries))
	for userID, e := range r.entries {
		if e.flowerID == flowerID {
			targets = append(targets, target{userID: userID, conn: e.conn})
		}
	}
	logger := r.logger
	r.mu.RUnlock()

	sent := 0
	for _, t := range targets {
		if !t.conn.IsOpen() {
			continue
		}
		if err := safeSend(t.conn, payload); err != nil {
			logger.Warn("live broadcast to user failed",
				"user_id", t.userID,
				"flower_id", flowerID,
				"error", err,
			)
			continue
		}
		sent++
	}
	if sent > 0 {
		logger.Debug("live broadcast sent", "flower_id", flowerID, "recipients", sent)
	}
	return sent
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// CloseAll closes and removes every connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.conn.Close() //nolint:errcheck // Best-effort shutdown
	}
}

// safeSend turns a panicking transport into an error.
func safeSend(conn Conn, payload []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("live: send panicked: %v", rec)
		}
	}()
	return conn.Send(payload)
}

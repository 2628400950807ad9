package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrNoRoom is returned by Push when the recipient has no open delivery room,
// i.e. the user is offline. Callers treat this as a no-op, not a failure:
// durability lives in the store and reconnecting clients reload.
var ErrNoRoom = errors.New("no open delivery room for user")

// Registry owns the user→room map. It is an explicit, injected object with a
// defined lifecycle (created at process start, closed at shutdown) rather
// than ambient package state, so tests can run independent registries in
// parallel. Rooms are created on first join and destroyed when their last
// member leaves.
type Registry struct {
	logger  *slog.Logger
	metrics *Metrics

	mu     sync.RWMutex
	rooms  map[uuid.UUID]*Room
	closed bool
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger, metrics *Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Registry{
		logger:  logger.With(slog.String("component", "realtime_registry")),
		metrics: metrics,
		rooms:   make(map[uuid.UUID]*Room),
	}
}

// Join adds the connection to the room keyed by its user identity, creating
// the room on first join. Joining is idempotent with respect to room identity:
// every connection of the same user lands in the same room.
func (r *Registry) Join(c *Conn) *Room {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		c.Close()
		return nil
	}
	room, ok := r.rooms[c.UserID()]
	if !ok {
		room = newRoom(c.UserID())
		r.rooms[c.UserID()] = room
		r.metrics.RoomsActive.Inc()
	}
	// The add happens under the registry lock so it is atomic with the closed
	// check above; a concurrent Close cannot drain the room in between and
	// leave this connection open and uncounted.
	members := room.add(c)
	r.metrics.ConnectionsOpen.Inc()
	r.mu.Unlock()
	r.logger.Debug("connection joined room",
		slog.String("room", room.Key().String()),
		slog.String("connection_id", c.ID()),
		slog.Int("members", members))
	return room
}

// Leave removes the connection from its user's room and destroys the room if
// it became empty. Safe to call for connections that never joined.
func (r *Registry) Leave(c *Conn) {
	r.mu.Lock()
	room, ok := r.rooms[c.UserID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	remaining := room.remove(c)
	if remaining == 0 {
		delete(r.rooms, c.UserID())
		r.metrics.RoomsActive.Dec()
	}
	r.mu.Unlock()

	r.metrics.ConnectionsOpen.Dec()
	r.logger.Debug("connection left room",
		slog.String("room", c.UserID().String()),
		slog.String("connection_id", c.ID()),
		slog.Int("members", remaining))
}

// Push delivers the payload to every open connection of the given user.
// Returns ErrNoRoom if the user has no open room. Per-connection failures
// are isolated: a slow or closed member is dropped and the rest still
// receive the payload.
func (r *Registry) Push(ctx context.Context, userID uuid.UUID, payload []byte) error {
	r.mu.RLock()
	room, ok := r.rooms[userID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoRoom
	}

	room.broadcast(payload, func(c *Conn, err error) {
		reason := DropReasonClosed
		if errors.Is(err, ErrSendBufferFull) {
			reason = DropReasonSlowConsumer
			// A full queue means the client is not draining; closing the
			// socket lets its read loop clean up membership.
			c.Close()
		}
		r.metrics.EventsDropped.WithLabelValues(reason).Inc()
		r.logger.Warn("failed to push to connection",
			slog.String("room", userID.String()),
			slog.String("connection_id", c.ID()),
			slog.String("error", err.Error()))
	})
	return nil
}

// RoomCount returns the number of active rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// ConnectionCount returns the number of open connections for the given user.
func (r *Registry) ConnectionCount(userID uuid.UUID) int {
	r.mu.RLock()
	room, ok := r.rooms[userID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return room.Size()
}

// Close tears the registry down: every connection is closed, all rooms are
// destroyed, and subsequent joins are rejected. Called at process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true

	for key, room := range r.rooms {
		room.mu.Lock()
		for c := range room.members {
			c.Close()
			r.metrics.ConnectionsOpen.Dec()
		}
		room.members = make(map[*Conn]struct{})
		room.mu.Unlock()
		delete(r.rooms, key)
		r.metrics.RoomsActive.Dec()
	}
	r.logger.Info("realtime registry closed")
}

package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Room is the delivery group for a single user: the set of that user's
// currently open connections. Rooms are created on first join and destroyed
// by the registry when the last member leaves; membership is the only shared
// mutable state in the push layer.
type Room struct {
	key uuid.UUID

	mu      sync.RWMutex
	members map[*Conn]struct{}
}

func newRoom(key uuid.UUID) *Room {
	return &Room{
		key:     key,
		members: make(map[*Conn]struct{}),
	}
}

// Key returns the room's key, which is exactly the user's identity.
func (r *Room) Key() uuid.UUID { return r.key }

// add registers a connection and returns the new member count.
func (r *Room) add(c *Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[c] = struct{}{}
	return len(r.members)
}

// remove deregisters a connection and returns the remaining member count.
func (r *Room) remove(c *Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, c)
	return len(r.members)
}

// Size returns the current member count.
func (r *Room) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// broadcast enqueues the payload on every member connection. The member set
// is snapshotted under the read lock and delivery happens outside it, so a
// slow socket never blocks membership changes. Returns the number of
// successful enqueues; per-member failures are reported to onFailure and do
// not affect the other members.
func (r *Room) broadcast(payload []byte, onFailure func(*Conn, error)) int {
	r.mu.RLock()
	snapshot := make([]*Conn, 0, len(r.members))
	for c := range r.members {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range snapshot {
		if err := c.Enqueue(payload); err != nil {
			if onFailure != nil {
				onFailure(c, err)
			}
			continue
		}
		delivered++
	}
	return delivered
}

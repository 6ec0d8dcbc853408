// Package registry tracks which participant is reachable on which connection,
// per room. It is the single source of truth consulted by the signaling
// dispatcher and the broadcast path.
package registry

import "sync"

// Channel is the write side of a participant's connection. The registry holds
// references only; opening and closing connections is the transport's job.
type Channel interface {
	// ID is stable for the lifetime of the connection and independent of the
	// rooms it joins.
	ID() string
	// Send writes one encoded frame to the connection.
	Send(data []byte) error
}

// Membership identifies one (room, participant) registration.
type Membership struct {
	Room        string
	Participant string
}

type room struct {
	mu sync.Mutex
	// gone is set when the room has been pruned from the arena; a goroutine
	// that grabbed the pointer before pruning must not revive it.
	gone    bool
	members map[string]Channel
}

// Registry is safe for concurrent use. The registry-level mutex guards only
// the room arena; each room guards its own member table.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func New() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// Register binds participant to ch in roomCode, creating the room if needed.
// A repeated registration for the same (room, participant) overwrites the
// previous binding.
func (r *Registry) Register(roomCode, participant string, ch Channel) {
	for {
		r.mu.Lock()
		rm, ok := r.rooms[roomCode]
		if !ok {
			rm = &room{members: make(map[string]Channel)}
			r.rooms[roomCode] = rm
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if rm.gone {
			rm.mu.Unlock()
			continue
		}
		rm.members[participant] = ch
		rm.mu.Unlock()
		return
	}
}

// Unregister removes the (roomCode, participant) entry if present, pruning the
// room when it becomes empty. Unknown entries are a no-op. It reports whether
// the room was pruned.
func (r *Registry) Unregister(roomCode, participant string) (pruned bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomCode]
	if !ok {
		return false
	}

	rm.mu.Lock()
	delete(rm.members, participant)
	if len(rm.members) == 0 {
		rm.gone = true
		delete(r.rooms, roomCode)
		pruned = true
	}
	rm.mu.Unlock()
	return pruned
}

// UnregisterChannel removes every entry bound to ch, in any room, and returns
// the removed (room, participant) pairs so the caller can announce each
// departure. Rooms left empty are pruned and reported; callers must not infer
// pruning by re-querying, as the room may be recreated concurrently.
func (r *Registry) UnregisterChannel(ch Channel) (removed []Membership, prunedRooms []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for code, rm := range r.rooms {
		rm.mu.Lock()
		for participant, member := range rm.members {
			if member.ID() == ch.ID() {
				delete(rm.members, participant)
				removed = append(removed, Membership{Room: code, Participant: participant})
			}
		}
		if len(rm.members) == 0 {
			rm.gone = true
			delete(r.rooms, code)
			prunedRooms = append(prunedRooms, code)
		}
		rm.mu.Unlock()
	}
	return removed, prunedRooms
}

// Members returns the current participant identifiers for roomCode. The order
// is unspecified. An absent room yields an empty slice.
func (r *Registry) Members(roomCode string) []string {
	rm := r.room(roomCode)
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	out := make([]string, 0, len(rm.members))
	for participant := range rm.members {
		out = append(out, participant)
	}
	return out
}

// Lookup returns the channel bound to (roomCode, participant), or nil.
func (r *Registry) Lookup(roomCode, participant string) Channel {
	rm := r.room(roomCode)
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.members[participant]
}

// Snapshot returns the channels for every current member of roomCode except
// exclude (pass "" to include everyone). Sends against the returned channels
// happen outside any registry lock.
func (r *Registry) Snapshot(roomCode, exclude string) map[string]Channel {
	rm := r.room(roomCode)
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	out := make(map[string]Channel, len(rm.members))
	for participant, ch := range rm.members {
		if participant == exclude {
			continue
		}
		out[participant] = ch
	}
	return out
}

// Stats reports the current number of rooms and registrations.
func (r *Registry) Stats() (rooms, registrations int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms = len(r.rooms)
	for _, rm := range r.rooms {
		rm.mu.Lock()
		registrations += len(rm.members)
		rm.mu.Unlock()
	}
	return rooms, registrations
}

func (r *Registry) room(roomCode string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[roomCode]
}

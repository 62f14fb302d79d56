// Package server maintains the authoritative table of waiting and active
// rooms and the state transitions that pair one visitor with one admin.
package server

import (
	"time"

	"github.com/google/uuid"
)

// roomState is the lifecycle variant of a room.
type roomState int

const (
	// roomWaiting: visitor present, no admin yet.
	roomWaiting roomState = iota
	// roomActive: both parties bound.
	roomActive
	// roomPendingVisitorReturn: admin present, visitor dropped, grace timer running.
	roomPendingVisitorReturn
	// roomPendingAdminReturn: visitor present, admin dropped, grace timer
	// running. The room is re-listed so any admin can claim it.
	roomPendingAdminReturn
)

func (s roomState) String() string {
	switch s {
	case roomWaiting:
		return "waiting"
	case roomActive:
		return "active"
	case roomPendingVisitorReturn:
		return "pending-visitor-return"
	case roomPendingAdminReturn:
		return "pending-admin-return"
	default:
		return "unknown"
	}
}

// Room pairs exactly one visitor with at most one admin. The stored visitor
// name is authoritative; a reconnecting visitor never renames the room.
type Room struct {
	id          string
	visitorName string
	createdAt   time.Time
	state       roomState
	visitor     *Client
	admin       *Client
	typing      map[*Client]bool
}

// others returns the room occupants excluding the given connection.
func (r *Room) others(c *Client) []*Client {
	var out []*Client
	if r.visitor != nil && r.visitor != c {
		out = append(out, r.visitor)
	}
	if r.admin != nil && r.admin != c {
		out = append(out, r.admin)
	}
	return out
}

func (r *Room) summary() RoomSummary {
	return RoomSummary{
		RoomID:    r.id,
		Username:  r.visitorName,
		CreatedAt: r.createdAt.UTC().Format(time.RFC3339),
	}
}

type joinOutcome int

const (
	joinCreated joinOutcome = iota
	joinRejoined
)

// joinResult reports how a visitor join request resolved. resumedPending is
// set when the rebind restored a room whose visitor had dropped, meaning the
// caller must cancel the room's grace timer.
type joinResult struct {
	outcome        joinOutcome
	room           *Room
	resumedPending bool
}

type dropOutcome int

const (
	dropNone dropOutcome = iota
	// dropRoomDeleted: the room had no counterpart worth waiting for and was
	// removed immediately.
	dropRoomDeleted
	// dropVisitorPending: active room lost its visitor; grace timer decides fate.
	dropVisitorPending
	// dropAdminPending: active room lost its admin; the room is re-listed
	// immediately and the grace timer decides whether it survives unclaimed.
	dropAdminPending
)

// roomStore is the central room table. It is owned by the hub event loop and
// must only be touched from there; it performs no I/O so mutations stay
// short and never block other work.
type roomStore struct {
	rooms    map[string]*Room
	byClient map[*Client]*Room
	waiting  []string // listed room ids in insertion order
}

func newRoomStore() *roomStore {
	return &roomStore{
		rooms:    make(map[string]*Room),
		byClient: make(map[*Client]*Room),
	}
}

// newRoomID allocates a short identifier, collision-checked against every
// live room regardless of state.
func (s *roomStore) newRoomID() string {
	for {
		id := uuid.NewString()[:8]
		if _, exists := s.rooms[id]; !exists {
			return id
		}
	}
}

// createOrRejoin binds a visitor connection to a room. A requested id that
// names a live room re-binds that room's visitor side to the new connection
// (the reconnection path); anything else, including expired or malformed
// ids, falls back to fresh-room creation in favor of availability.
func (s *roomStore) createOrRejoin(visitorName string, c *Client, requestedRoomID string) joinResult {
	if room, ok := s.byClient[c]; ok {
		// A connection belongs to at most one room; a duplicate join
		// resolves to the room it already holds.
		return joinResult{outcome: joinRejoined, room: room}
	}

	if requestedRoomID != "" {
		if room, ok := s.rooms[requestedRoomID]; ok {
			return s.rebindVisitor(room, c)
		}
	}

	room := &Room{
		id:          s.newRoomID(),
		visitorName: visitorName,
		createdAt:   time.Now(),
		state:       roomWaiting,
		visitor:     c,
		typing:      make(map[*Client]bool),
	}
	s.rooms[room.id] = room
	s.byClient[c] = room
	s.waiting = append(s.waiting, room.id)

	return joinResult{outcome: joinCreated, room: room}
}

// rebindVisitor swaps the visitor side of a room onto a new connection. The
// previous connection, if any is still bound, is released silently.
func (s *roomStore) rebindVisitor(room *Room, c *Client) joinResult {
	if prev := room.visitor; prev != nil && prev != c {
		delete(s.byClient, prev)
		delete(room.typing, prev)
	}
	room.visitor = c
	s.byClient[c] = room

	resumed := room.state == roomPendingVisitorReturn
	if resumed {
		room.state = roomActive
	}

	return joinResult{outcome: joinRejoined, room: room, resumedPending: resumed}
}

// listWaiting returns claimable rooms in insertion order: freshly created
// waiting rooms plus rooms whose admin dropped and has not returned.
func (s *roomStore) listWaiting() []RoomSummary {
	out := make([]RoomSummary, 0, len(s.waiting))
	for _, id := range s.waiting {
		room, ok := s.rooms[id]
		if !ok {
			continue
		}
		if room.state == roomWaiting || room.state == roomPendingAdminReturn {
			out = append(out, room.summary())
		}
	}
	return out
}

// claimable reports whether a room exists in a state an admin may claim.
func (s *roomStore) claimable(roomID string) bool {
	room, ok := s.rooms[roomID]
	return ok && (room.state == roomWaiting || room.state == roomPendingAdminReturn)
}

// adminJoin claims a room for an admin connection. The check-and-set runs
// inside the hub loop, so a room can never be claimed by two admins: the
// second claim sees a non-claimable state and fails.
func (s *roomStore) adminJoin(c *Client, roomID string) (*Room, bool) {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	if room.state != roomWaiting && room.state != roomPendingAdminReturn {
		return nil, false
	}

	room.admin = c
	room.state = roomActive
	s.byClient[c] = room
	s.removeWaiting(roomID)

	return room, true
}

// roomFor returns the room owning this connection, on either side.
func (s *roomStore) roomFor(c *Client) *Room {
	return s.byClient[c]
}

// close removes a room immediately, releasing both connection bindings. The
// removed room is returned so the caller can notify any remaining party.
func (s *roomStore) close(roomID string) (*Room, bool) {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	s.deleteRoom(room)
	return room, true
}

// onDisconnect reacts to a transport-level drop of either side of a room.
// Unmatched visitors get no grace period; active rooms degrade to the
// matching pending state for the reconnection supervisor to resolve.
func (s *roomStore) onDisconnect(c *Client) (dropOutcome, *Room) {
	room, ok := s.byClient[c]
	if !ok {
		return dropNone, nil
	}

	delete(s.byClient, c)
	delete(room.typing, c)

	if c == room.visitor {
		room.visitor = nil
		switch room.state {
		case roomActive:
			room.state = roomPendingVisitorReturn
			return dropVisitorPending, room
		default:
			// Waiting or already admin-less: nothing to preserve.
			s.deleteRoom(room)
			return dropRoomDeleted, room
		}
	}

	room.admin = nil
	switch room.state {
	case roomActive:
		room.state = roomPendingAdminReturn
		s.waiting = append(s.waiting, room.id)
		return dropAdminPending, room
	default:
		// The visitor already dropped too; the room is dead.
		s.deleteRoom(room)
		return dropRoomDeleted, room
	}
}

// finalizeExpired tears down a room whose grace timer fired. The state is
// re-read here, inside the same serialization as every other mutation: a
// room that reconnected or was claimed before expiry is left untouched, so
// a stale fire is a no-op regardless of timer cancellation races.
func (s *roomStore) finalizeExpired(roomID string) (*Room, *Client, bool) {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, nil, false
	}

	var remaining *Client
	switch room.state {
	case roomPendingVisitorReturn:
		remaining = room.admin
	case roomPendingAdminReturn:
		remaining = room.visitor
	default:
		return nil, nil, false
	}

	s.deleteRoom(room)
	return room, remaining, true
}

// pruneStale removes waiting rooms older than maxAge and returns them so the
// caller can notify the abandoned visitors. Pending rooms are exempt; their
// grace timers already own their fate.
func (s *roomStore) pruneStale(maxAge time.Duration) []*Room {
	if maxAge <= 0 {
		return nil
	}

	cutoff := time.Now().Add(-maxAge)
	var pruned []*Room
	for _, id := range append([]string(nil), s.waiting...) {
		room, ok := s.rooms[id]
		if !ok || room.state != roomWaiting {
			continue
		}
		if room.createdAt.Before(cutoff) {
			s.deleteRoom(room)
			pruned = append(pruned, room)
		}
	}
	return pruned
}

func (s *roomStore) deleteRoom(room *Room) {
	if room.visitor != nil {
		delete(s.byClient, room.visitor)
	}
	if room.admin != nil {
		delete(s.byClient, room.admin)
	}
	delete(s.rooms, room.id)
	s.removeWaiting(room.id)
}

func (s *roomStore) removeWaiting(roomID string) {
	for i, id := range s.waiting {
		if id == roomID {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			return
		}
	}
}

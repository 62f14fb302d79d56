// Package server coordinates connection registration, room lifecycle, and
// message relay for the DeskChat system via the Hub type.
package server

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// flushCloseDelay bounds how long a terminated connection lingers for its
// final frame to flush.
const flushCloseDelay = 250 * time.Millisecond

// inboundEvent pairs a decoded client event with its origin connection.
type inboundEvent struct {
	client *Client
	event  ClientEvent
}

// Hub owns all shared session state: the connection registry, the room
// store, and typing indicators. Every mutation flows through the Run loop,
// so room transitions, disconnect handling, and grace-timer finalization
// can never interleave into a torn state. Outbound delivery is a
// non-blocking enqueue and never holds up the loop.
type Hub struct {
	registry   *registry
	rooms      *roomStore
	supervisor *graceSupervisor

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	events     chan inboundEvent
	expired    chan string

	notif Notifier

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates and initializes a new Hub instance with all necessary
// channels and state tables. The returned Hub is ready to manage connections
// once Run is started.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	expired := make(chan string, 16)

	return &Hub{
		registry:   newRegistry(),
		rooms:      newRoomStore(),
		supervisor: newGraceSupervisor(expired),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan inboundEvent, 64),
		expired:    expired,
		notif:      nopNotifier{},
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

var hub = NewHub()

// GetHub returns the global hub instance for wiring and shutdown coordination.
func GetHub() *Hub {
	return hub
}

// GetRegisterChan returns the channel used for registering new clients.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// SetNotifier installs the outbound notification sink.
func (h *Hub) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	h.mutex.Lock()
	h.notif = n
	h.mutex.Unlock()
}

func (h *Hub) notifier() Notifier {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.notif
}

// submit hands a decoded inbound event to the Run loop. It reports false
// once the hub is shutting down so pumps can stop.
func (h *Hub) submit(c *Client, event ClientEvent) bool {
	select {
	case h.events <- inboundEvent{client: c, event: event}:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// drop requests unregistration of a client, tolerating hub shutdown.
func (h *Hub) drop(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// Run starts the hub's main event loop, handling client registration,
// inbound events, grace-timer expirations, and connection cleanup. This
// method should be called in a separate goroutine as it runs indefinitely.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			if h.removeClient(client) {
				h.handleDisconnect(client)
			}

		case in := <-h.events:
			h.safeDispatch(in.client, in.event)

		case roomID := <-h.expired:
			h.handleGraceExpiry(roomID)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()
	log.Printf("Client connected from %s (session %s). Total clients: %d", client.addr, client.sessionID, clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()

	h.safeSend(client, connectionAckEvent(client.sessionID))
}

// removeClient detaches a client from the hub and reports whether it was
// still registered, so disconnect handling runs exactly once.
func (h *Hub) removeClient(client *Client) bool {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return false
	}
	delete(h.clients, client)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	close(client.send)
	log.Printf("Client disconnected from %s. Total clients: %d", client.addr, clientCount)
	return true
}

// safeDispatch isolates per-request failures: a panic while handling one
// event must not take down the serialization point for every other room.
func (h *Hub) safeDispatch(c *Client, event ClientEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic handling %q from %s: %v", event.Type, c.addr, r)
		}
	}()
	h.dispatch(c, event)
}

func (h *Hub) dispatch(c *Client, event ClientEvent) {
	switch event.Type {
	case evtJoin:
		h.handleJoin(c, event)
	case evtListRooms:
		h.handleListRooms(c)
	case evtJoinRoomByID:
		h.handleAdminJoin(c, event)
	case evtSendMessage:
		h.handleSendMessage(c, event)
	case evtSetTyping:
		h.handleSetTyping(c, event)
	case evtEndSession:
		h.handleLeave(c, "ended")
	case evtPageClosed:
		h.handleLeave(c, "closed")
	}
}

// handleJoin authenticates a join request as admin or visitor and binds the
// connection into the room table.
func (h *Hub) handleJoin(c *Client, event ClientEvent) {
	cfg := currentConfig()

	username := sanitizeUsername(event.Username)
	if username == "" {
		h.safeSend(c, authFailedEvent("Invalid username"))
		return
	}

	gate := newAdminGate(cfg.AdminUsername, cfg.AdminPasswordHash, nil)
	if gate.claimsAdmin(username) {
		h.handleAdminAuth(c, gate, username, event.Password, cfg)
		return
	}

	// No role change once decided: an authenticated admin cannot re-join as
	// a visitor on the same connection.
	if id, ok := h.registry.lookup(c); ok && id.role == roleAdmin {
		h.safeSend(c, systemNoticeEvent("Admins cannot join the visitor queue"))
		return
	}

	res := h.rooms.createOrRejoin(username, c, strings.TrimSpace(event.RoomID))
	room := res.room

	if res.outcome == joinCreated {
		h.registry.register(c, username, roleVisitor)
		h.safeSend(c, waitingForAdminEvent(room.id))

		summary := room.summary()
		for _, admin := range h.registry.admins() {
			h.safeSend(admin, newRoomAvailableEvent(summary))
		}
		h.notifier().Notify(notifyNewRoom, room.id, username, room.createdAt)
		log.Printf("%s created room %s", username, room.id)
		return
	}

	// Reconnection path. The room's stored name is authoritative; the
	// supplied name is sanitized but never overwrites it.
	h.registry.register(c, room.visitorName, roleVisitor)
	if res.resumedPending {
		h.supervisor.cancel(room.id)
	}
	if room.state == roomActive {
		h.safeSend(c, youHaveBeenJoinedEvent())
		for _, peer := range room.others(c) {
			h.safeSend(peer, systemNoticeEvent(room.visitorName+" reconnected"))
		}
	} else {
		h.safeSend(c, waitingForAdminEvent(room.id))
	}
	log.Printf("%s rejoined room %s (%s)", room.visitorName, room.id, room.state)
}

// handleAdminAuth runs the credential check for a join claiming the admin
// identity. Failures terminate the connection; each attempt is independent.
func (h *Hub) handleAdminAuth(c *Client, gate *adminGate, username, password string, cfg Config) {
	if !gate.authenticate(username, password) {
		log.Printf("Failed admin login from %s", c.addr)
		h.safeSend(c, authFailedEvent("Invalid credentials. Access denied."))
		h.disconnectAfterFlush(c)
		return
	}

	h.registry.register(c, username, roleAdmin)

	for _, room := range h.rooms.pruneStale(cfg.RoomMaxAge) {
		if room.visitor != nil {
			h.safeSend(room.visitor, systemNoticeEvent("Session expired before an admin joined"))
		}
		log.Printf("Removed stale room %s", room.id)
	}

	h.safeSend(c, adminAuthenticatedEvent())
	log.Printf("Admin authenticated (session %s)", c.sessionID)
}

// handleListRooms returns the waiting rooms, admin-only, insertion order.
func (h *Hub) handleListRooms(c *Client) {
	if !h.isAdmin(c) {
		h.safeSend(c, systemNoticeEvent("Only admin can list rooms"))
		return
	}
	h.safeSend(c, roomsListEvent(h.rooms.listWaiting()))
}

// handleAdminJoin claims a waiting room for an authenticated admin. A failed
// claim never disturbs the admin's prior room binding.
func (h *Hub) handleAdminJoin(c *Client, event ClientEvent) {
	if !h.isAdmin(c) {
		h.safeSend(c, systemNoticeEvent("Only admin can join rooms"))
		return
	}

	roomID := strings.TrimSpace(event.RoomID)
	if roomID == "" || !h.rooms.claimable(roomID) {
		h.safeSend(c, systemNoticeEvent(fmt.Sprintf("Room %s not found", roomID)))
		return
	}

	// Claiming a new room releases the previous one as if the admin had
	// dropped: the old visitor keeps their grace window and the room is
	// re-listed for any admin to pick up.
	if prev := h.rooms.roomFor(c); prev != nil && prev.id != roomID {
		h.releaseAdminSide(c, prev)
	}

	room, ok := h.rooms.adminJoin(c, roomID)
	if !ok {
		h.safeSend(c, systemNoticeEvent(fmt.Sprintf("Room %s not found", roomID)))
		return
	}

	h.supervisor.cancel(room.id)
	h.safeSend(c, adminJoinedRoomEvent(room.id, room.visitorName))
	if room.visitor != nil {
		h.safeSend(room.visitor, youHaveBeenJoinedEvent())
	}
	log.Printf("Admin joined room %s with %s", room.id, room.visitorName)
}

// handleSendMessage relays a chat message to the other room occupant.
// Preconditions are checked in order; the first failure wins and is reported
// only to the sender.
func (h *Hub) handleSendMessage(c *Client, event ClientEvent) {
	if !c.limiter.allow() {
		h.safeSend(c, systemNoticeEvent("Rate limit exceeded. Please slow down."))
		return
	}

	text := sanitizeText(event.Text, maxMessageLength)
	if text == "" {
		h.safeSend(c, systemNoticeEvent("Message cannot be empty"))
		return
	}

	room := h.rooms.roomFor(c)
	if room == nil {
		h.safeSend(c, systemNoticeEvent("You are not in any room yet"))
		return
	}
	if room.state != roomActive {
		if room.state == roomWaiting {
			h.safeSend(c, systemNoticeEvent("Waiting for an admin to join..."))
		} else {
			h.safeSend(c, systemNoticeEvent("Room is no longer active"))
		}
		return
	}

	id, _ := h.registry.lookup(c)
	if room.typing[c] {
		delete(room.typing, c)
		for _, peer := range room.others(c) {
			h.safeSend(peer, typingEvent(id.name, false))
		}
	}

	payload := messageEvent(id.name, text, time.Now().UTC().Format(time.RFC3339), room.id)
	for _, peer := range room.others(c) {
		h.safeSend(peer, payload)
	}
}

// handleSetTyping toggles the sender's ephemeral typing indicator. Redundant
// repeated "true" settings are coalesced.
func (h *Hub) handleSetTyping(c *Client, event ClientEvent) {
	room := h.rooms.roomFor(c)
	if room == nil || room.state != roomActive {
		return
	}

	id, _ := h.registry.lookup(c)
	if event.IsTyping {
		if room.typing[c] {
			return
		}
		room.typing[c] = true
	} else {
		delete(room.typing, c)
	}
	for _, peer := range room.others(c) {
		h.safeSend(peer, typingEvent(id.name, event.IsTyping))
	}
}

// handleLeave tears a room down immediately on an explicit end-session or
// page-closed signal, bypassing the grace period entirely.
func (h *Hub) handleLeave(c *Client, reason string) {
	room := h.rooms.roomFor(c)
	if room == nil {
		h.safeSend(c, systemNoticeEvent("You are not in any room yet"))
		return
	}

	h.supervisor.cancel(room.id)
	h.rooms.close(room.id)

	id, _ := h.registry.lookup(c)
	for _, peer := range room.others(c) {
		h.safeSend(peer, peerLeftEvent(id.name, reason))
	}
	h.safeSend(c, systemNoticeEvent("Session ended"))
	log.Printf("Room %s closed by %s (%s)", room.id, id.role, reason)
}

// handleDisconnect reacts to a transport-level drop: unmatched visitors lose
// their room immediately, active rooms degrade to a pending state and start
// the grace timer, and an admin drop re-lists the room right away.
func (h *Hub) handleDisconnect(c *Client) {
	id, registered := h.registry.lookup(c)
	outcome, room := h.rooms.onDisconnect(c)

	switch outcome {
	case dropVisitorPending:
		for _, peer := range room.others(c) {
			h.safeSend(peer, peerLeftEvent(room.visitorName, "disconnected"))
		}
		h.supervisor.arm(room.id, currentConfig().GracePeriod)
		log.Printf("Visitor dropped from room %s; grace timer armed", room.id)

	case dropAdminPending:
		for _, peer := range room.others(c) {
			h.safeSend(peer, peerLeftEvent(id.name, "disconnected"))
		}
		h.supervisor.arm(room.id, currentConfig().GracePeriod)
		log.Printf("Admin dropped from room %s; room re-listed, grace timer armed", room.id)

	case dropRoomDeleted:
		h.supervisor.cancel(room.id)
		log.Printf("Removed room %s after disconnect", room.id)
	}

	if registered {
		h.registry.unregister(c)
		log.Printf("%s (%s) disconnected", id.name, id.role)
	}
}

// handleGraceExpiry finalizes a room whose grace timer fired. The room state
// is re-read inside the loop, so a fire that lost the race against a
// reconnect or a claim is a no-op.
func (h *Hub) handleGraceExpiry(roomID string) {
	room, remaining, ok := h.rooms.finalizeExpired(roomID)
	if !ok {
		return
	}

	if remaining != nil {
		switch room.state {
		case roomPendingVisitorReturn:
			h.safeSend(remaining, peerLeftEvent(room.visitorName, "did not return"))
		case roomPendingAdminReturn:
			h.safeSend(remaining, peerLeftEvent("Admin", "did not return"))
		}
	}
	log.Printf("Room %s removed after grace period expired", roomID)
}

func (h *Hub) isAdmin(c *Client) bool {
	id, ok := h.registry.lookup(c)
	return ok && id.role == roleAdmin
}

// safeSend enqueues a payload for a registered client without blocking the
// loop. Delivery is fire-and-forget; a closed or saturated client misses
// the payload.
func (h *Hub) safeSend(client *Client, payload []byte) bool {
	if client == nil || payload == nil {
		return false
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// releaseAdminSide detaches an admin from its current room the same way a
// transport drop would, including visitor notification and grace arming.
func (h *Hub) releaseAdminSide(c *Client, room *Room) {
	id, _ := h.registry.lookup(c)
	outcome, _ := h.rooms.onDisconnect(c)
	if outcome == dropAdminPending {
		for _, peer := range room.others(c) {
			h.safeSend(peer, peerLeftEvent(id.name, "disconnected"))
		}
		h.supervisor.arm(room.id, currentConfig().GracePeriod)
	}
}

// disconnectAfterFlush closes the underlying connection after a short fixed
// delay, giving the write pump time to flush a final queued frame such as
// authFailed before the transport drops.
func (h *Hub) disconnectAfterFlush(c *Client) {
	if c.conn == nil {
		return
	}
	time.AfterFunc(flushCloseDelay, func() {
		_ = c.conn.Close()
	})
}

// shutdownClients detaches and closes every remaining client. Closing the
// send channels here matters: removeClient never runs after the loop exits,
// and the write pumps only return once their channel closes.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		client.closed = true
		delete(h.clients, client)
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		close(client.send)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Printf("Error closing client connection from %s: %v", client.addr, err)
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done
	h.supervisor.stop()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

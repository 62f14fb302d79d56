// Package server defines the closed inbound/outbound event vocabulary
// exchanged with clients, plus the JSON envelope codec shared by the hub
// and client logic.
package server

import (
	"encoding/json"
	"fmt"
	"log"
)

// Inbound event types. The set is closed: anything else is rejected at
// decode time so unknown events can never be silently ignored.
const (
	evtJoin         = "join"
	evtListRooms    = "listRooms"
	evtJoinRoomByID = "joinRoomById"
	evtSendMessage  = "sendMessage"
	evtSetTyping    = "setTyping"
	evtEndSession   = "endSession"
	evtPageClosed   = "pageClosed"
)

// Outbound event types.
const (
	evtConnectionAck      = "connectionAck"
	evtAuthFailed         = "authFailed"
	evtAdminAuthenticated = "adminAuthenticated"
	evtWaitingForAdmin    = "waitingForAdmin"
	evtNewRoomAvailable   = "newRoomAvailable"
	evtRoomsList          = "roomsList"
	evtAdminJoinedRoom    = "adminJoinedRoom"
	evtYouHaveBeenJoined  = "youHaveBeenJoined"
	evtMessage            = "message"
	evtTyping             = "typing"
	evtStoppedTyping      = "stoppedTyping"
	evtPeerLeft           = "peerLeft"
	evtSystemNotice       = "systemNotice"
)

// ClientEvent is the decoded inbound envelope. Only the fields relevant to
// the declared Type carry meaning; the rest stay zero.
type ClientEvent struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	RoomID   string `json:"roomId,omitempty"`
	Text     string `json:"text,omitempty"`
	IsTyping bool   `json:"isTyping,omitempty"`
}

// decodeClientEvent parses a raw frame and validates the event type against
// the closed inbound vocabulary.
func decodeClientEvent(raw []byte) (ClientEvent, error) {
	var evt ClientEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return ClientEvent{}, fmt.Errorf("decode event: %w", err)
	}

	switch evt.Type {
	case evtJoin, evtListRooms, evtJoinRoomByID, evtSendMessage, evtSetTyping, evtEndSession, evtPageClosed:
		return evt, nil
	case "":
		return ClientEvent{}, fmt.Errorf("decode event: missing type")
	default:
		return ClientEvent{}, fmt.Errorf("decode event: unknown type %q", evt.Type)
	}
}

// RoomSummary describes one waiting room in an admin room listing.
type RoomSummary struct {
	RoomID    string `json:"roomId"`
	Username  string `json:"username"`
	CreatedAt string `json:"createdAt"`
}

type connectionAckPayload struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type authFailedPayload struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type adminAuthenticatedPayload struct {
	Type string `json:"type"`
}

type waitingForAdminPayload struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type newRoomAvailablePayload struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId"`
	Username  string `json:"username"`
	CreatedAt string `json:"createdAt"`
}

type roomsListPayload struct {
	Type  string        `json:"type"`
	Rooms []RoomSummary `json:"rooms"`
}

type adminJoinedRoomPayload struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type youHaveBeenJoinedPayload struct {
	Type string `json:"type"`
}

type messagePayload struct {
	Type      string `json:"type"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	RoomID    string `json:"roomId"`
}

type typingPayload struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type peerLeftPayload struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Reason   string `json:"reason"`
}

type systemNoticePayload struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// encodeEvent marshals an outbound payload. The payload structs above only
// contain marshal-safe fields, so a failure here indicates a programming
// error and is logged rather than propagated.
func encodeEvent(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Error encoding outbound event %T: %v", v, err)
		return nil
	}
	return data
}

func connectionAckEvent(sessionID string) []byte {
	return encodeEvent(connectionAckPayload{Type: evtConnectionAck, SessionID: sessionID})
}

func authFailedEvent(reason string) []byte {
	return encodeEvent(authFailedPayload{Type: evtAuthFailed, Reason: reason})
}

func adminAuthenticatedEvent() []byte {
	return encodeEvent(adminAuthenticatedPayload{Type: evtAdminAuthenticated})
}

func waitingForAdminEvent(roomID string) []byte {
	return encodeEvent(waitingForAdminPayload{Type: evtWaitingForAdmin, RoomID: roomID})
}

func newRoomAvailableEvent(summary RoomSummary) []byte {
	return encodeEvent(newRoomAvailablePayload{
		Type:      evtNewRoomAvailable,
		RoomID:    summary.RoomID,
		Username:  summary.Username,
		CreatedAt: summary.CreatedAt,
	})
}

func roomsListEvent(rooms []RoomSummary) []byte {
	if rooms == nil {
		rooms = []RoomSummary{}
	}
	return encodeEvent(roomsListPayload{Type: evtRoomsList, Rooms: rooms})
}

func adminJoinedRoomEvent(roomID, username string) []byte {
	return encodeEvent(adminJoinedRoomPayload{Type: evtAdminJoinedRoom, RoomID: roomID, Username: username})
}

func youHaveBeenJoinedEvent() []byte {
	return encodeEvent(youHaveBeenJoinedPayload{Type: evtYouHaveBeenJoined})
}

func messageEvent(sender, text, timestamp, roomID string) []byte {
	return encodeEvent(messagePayload{
		Type:      evtMessage,
		Sender:    sender,
		Text:      text,
		Timestamp: timestamp,
		RoomID:    roomID,
	})
}

func typingEvent(username string, isTyping bool) []byte {
	typ := evtTyping
	if !isTyping {
		typ = evtStoppedTyping
	}
	return encodeEvent(typingPayload{Type: typ, Username: username})
}

func peerLeftEvent(username, reason string) []byte {
	return encodeEvent(peerLeftPayload{Type: evtPeerLeft, Username: username, Reason: reason})
}

func systemNoticeEvent(text string) []byte {
	return encodeEvent(systemNoticePayload{Type: evtSystemNotice, Text: text})
}

package server

import (
	"encoding/json"
	"testing"
)

// TestDecodeClientEvent verifies that every member of the closed inbound
// vocabulary decodes and that anything else is rejected.
func TestDecodeClientEvent(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    ClientEvent
		wantErr bool
	}{
		{
			name: "join with credentials and room",
			raw:  `{"type":"join","username":"Ana","password":"pw","roomId":"abc123"}`,
			want: ClientEvent{Type: evtJoin, Username: "Ana", Password: "pw", RoomID: "abc123"},
		},
		{
			name: "list rooms",
			raw:  `{"type":"listRooms"}`,
			want: ClientEvent{Type: evtListRooms},
		},
		{
			name: "join room by id",
			raw:  `{"type":"joinRoomById","roomId":"abc123"}`,
			want: ClientEvent{Type: evtJoinRoomByID, RoomID: "abc123"},
		},
		{
			name: "send message",
			raw:  `{"type":"sendMessage","text":"hi"}`,
			want: ClientEvent{Type: evtSendMessage, Text: "hi"},
		},
		{
			name: "set typing",
			raw:  `{"type":"setTyping","isTyping":true}`,
			want: ClientEvent{Type: evtSetTyping, IsTyping: true},
		},
		{
			name: "end session",
			raw:  `{"type":"endSession"}`,
			want: ClientEvent{Type: evtEndSession},
		},
		{
			name: "page closed",
			raw:  `{"type":"pageClosed"}`,
			want: ClientEvent{Type: evtPageClosed},
		},
		{
			name:    "unknown type rejected",
			raw:     `{"type":"launchMissiles"}`,
			wantErr: true,
		},
		{
			name:    "missing type rejected",
			raw:     `{"text":"hi"}`,
			wantErr: true,
		},
		{
			name:    "malformed json rejected",
			raw:     `{"type":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeClientEvent([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("decodeClientEvent(%q) succeeded, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeClientEvent(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("decodeClientEvent(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

// TestOutboundEventsCarryType verifies that outbound payloads declare their
// event type and round-trip as valid JSON.
func TestOutboundEventsCarryType(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		wantType string
	}{
		{"connection ack", connectionAckEvent("sid-1"), evtConnectionAck},
		{"auth failed", authFailedEvent("denied"), evtAuthFailed},
		{"admin authenticated", adminAuthenticatedEvent(), evtAdminAuthenticated},
		{"waiting for admin", waitingForAdminEvent("abc123"), evtWaitingForAdmin},
		{"rooms list", roomsListEvent(nil), evtRoomsList},
		{"admin joined room", adminJoinedRoomEvent("abc123", "Ana"), evtAdminJoinedRoom},
		{"you have been joined", youHaveBeenJoinedEvent(), evtYouHaveBeenJoined},
		{"message", messageEvent("Ana", "hi", "2026-01-01T00:00:00Z", "abc123"), evtMessage},
		{"typing", typingEvent("Ana", true), evtTyping},
		{"stopped typing", typingEvent("Ana", false), evtStoppedTyping},
		{"peer left", peerLeftEvent("Ana", "disconnected"), evtPeerLeft},
		{"system notice", systemNoticeEvent("hello"), evtSystemNotice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var envelope struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(tt.payload, &envelope); err != nil {
				t.Fatalf("payload is not valid JSON: %v", err)
			}
			if envelope.Type != tt.wantType {
				t.Errorf("payload type = %q, want %q", envelope.Type, tt.wantType)
			}
		})
	}
}

// TestRoomsListEventEmptyRooms verifies an empty listing encodes an empty
// array rather than null.
func TestRoomsListEventEmptyRooms(t *testing.T) {
	var payload roomsListPayload
	if err := json.Unmarshal(roomsListEvent(nil), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Rooms == nil {
		t.Error("rooms field encoded as null, want empty array")
	}
}

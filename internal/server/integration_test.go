package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// The global hub backs the HTTP handlers; start its loop once for the whole
// test binary. It is deliberately never shut down here.
var startGlobalHub sync.Once

func newIntegrationServer(t *testing.T, cfg *Config) *httptest.Server {
	t.Helper()
	SetConfig(cfg)
	t.Cleanup(func() { SetConfig(nil) })

	startGlobalHub.Do(func() { go hub.Run() })

	srv := httptest.NewServer(SetupRoutes())
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func readFrame(t *testing.T, conn *websocket.Conn) outFrame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame outFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("decode frame %q: %v", raw, err)
	}
	return frame
}

// TestHealthEndpoint verifies the root route reports server status.
func TestHealthEndpoint(t *testing.T) {
	srv := newIntegrationServer(t, &Config{AllowedOrigins: []string{"*"}})

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "DeskChat server is running!" {
		t.Errorf("body = %q", body)
	}
}

// TestWebSocketSession verifies the upgrade path end to end: dial, session
// acknowledgment, and a visitor join over a real socket.
func TestWebSocketSession(t *testing.T) {
	srv := newIntegrationServer(t, &Config{
		AdminPasswordHash: testAdminHash,
		AllowedOrigins:    []string{"*"},
	})

	header := http.Header{"Origin": []string{"http://localhost:8080"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	resp.Body.Close()

	ack := readFrame(t, conn)
	if ack.Type != evtConnectionAck || ack.SessionID == "" {
		t.Fatalf("first frame = %+v, want connectionAck with session id", ack)
	}

	join, _ := json.Marshal(ClientEvent{Type: evtJoin, Username: "Ana"})
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		t.Fatalf("write join: %v", err)
	}

	waiting := readFrame(t, conn)
	if waiting.Type != evtWaitingForAdmin || waiting.RoomID == "" {
		t.Fatalf("frame = %+v, want waitingForAdmin with room id", waiting)
	}
}

// TestWebSocketRejectsDisallowedOrigin verifies the handshake fails for an
// origin outside the allow-list.
func TestWebSocketRejectsDisallowedOrigin(t *testing.T) {
	srv := newIntegrationServer(t, &Config{
		AllowedOrigins: []string{"http://localhost:8080"},
	})

	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	if err == nil {
		conn.Close()
		t.Fatal("dial succeeded from disallowed origin")
	}
	if resp != nil {
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("status = %d, want 403", resp.StatusCode)
		}
	}
}

// TestWebSocketEndpointRejectsNonGet verifies only GET reaches the upgrader.
func TestWebSocketEndpointRejectsNonGet(t *testing.T) {
	srv := newIntegrationServer(t, &Config{AllowedOrigins: []string{"*"}})

	resp, err := http.Post(srv.URL+"/ws", "text/plain", strings.NewReader(""))
	if err != nil {
		t.Fatalf("POST /ws: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

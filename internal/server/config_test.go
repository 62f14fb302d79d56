package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestNewConfigDefaults verifies the default configuration values.
func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.Port != ":8080" {
		t.Errorf("Port = %q, want :8080", cfg.Port)
	}
	if cfg.MaxMessageSize != 4096 {
		t.Errorf("MaxMessageSize = %d, want 4096", cfg.MaxMessageSize)
	}
	if cfg.AdminUsername != "admin" {
		t.Errorf("AdminUsername = %q, want admin", cfg.AdminUsername)
	}
	if cfg.GracePeriod != 15*time.Second {
		t.Errorf("GracePeriod = %v, want 15s", cfg.GracePeriod)
	}
	if cfg.RoomMaxAge != 2*time.Hour {
		t.Errorf("RoomMaxAge = %v, want 2h", cfg.RoomMaxAge)
	}
	if cfg.RateLimit.Limit != 10 || cfg.RateLimit.Window != 60*time.Second {
		t.Errorf("RateLimit = %+v, want 10 per 60s", cfg.RateLimit)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:8080" {
		t.Errorf("AllowedOrigins = %v, want [http://localhost:8080]", cfg.AllowedOrigins)
	}
}

// TestNewConfigFromEnv verifies environment variables override the defaults.
func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com,https://ops.example.com")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("ADMIN_USERNAME", "operator")
	t.Setenv("RECONNECT_GRACE_PERIOD", "30s")
	t.Setenv("ROOM_MAX_AGE", "1h")
	t.Setenv("RATE_LIMIT_MESSAGES", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "10s")

	cfg, err := NewConfigFromEnv()
	if err != nil {
		t.Fatalf("NewConfigFromEnv() error = %v", err)
	}

	if cfg.Port != ":9000" {
		t.Errorf("Port = %q, want :9000", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("AllowedOrigins = %v, want two entries", cfg.AllowedOrigins)
	}
	if cfg.MaxMessageSize != 1024 {
		t.Errorf("MaxMessageSize = %d, want 1024", cfg.MaxMessageSize)
	}
	if cfg.AdminUsername != "operator" {
		t.Errorf("AdminUsername = %q, want operator", cfg.AdminUsername)
	}
	if cfg.GracePeriod != 30*time.Second {
		t.Errorf("GracePeriod = %v, want 30s", cfg.GracePeriod)
	}
	if cfg.RoomMaxAge != time.Hour {
		t.Errorf("RoomMaxAge = %v, want 1h", cfg.RoomMaxAge)
	}
	if cfg.RateLimit.Limit != 5 || cfg.RateLimit.Window != 10*time.Second {
		t.Errorf("RateLimit = %+v, want 5 per 10s", cfg.RateLimit)
	}
}

// TestNewConfigFromEnvDefaultOrigins verifies the fallback origin list when
// ALLOWED_ORIGINS is unset.
func TestNewConfigFromEnvDefaultOrigins(t *testing.T) {
	cfg, err := NewConfigFromEnv()
	if err != nil {
		t.Fatalf("NewConfigFromEnv() error = %v", err)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:8080" {
		t.Errorf("AllowedOrigins = %v, want [http://localhost:8080]", cfg.AllowedOrigins)
	}
}

// TestSetConfigSanitizesInvalidValues verifies zero and negative settings are
// replaced with defaults.
func TestSetConfigSanitizesInvalidValues(t *testing.T) {
	defer SetConfig(nil)

	SetConfig(&Config{
		Port:           "",
		MaxMessageSize: -1,
		GracePeriod:    -time.Second,
		RoomMaxAge:     0,
		RateLimit:      RateLimitConfig{Limit: 0, Window: 0},
	})

	cfg := currentConfig()
	if cfg.Port != ":8080" {
		t.Errorf("Port = %q, want :8080", cfg.Port)
	}
	if cfg.MaxMessageSize != 4096 {
		t.Errorf("MaxMessageSize = %d, want 4096", cfg.MaxMessageSize)
	}
	if cfg.AdminUsername != "admin" {
		t.Errorf("AdminUsername = %q, want admin", cfg.AdminUsername)
	}
	if cfg.GracePeriod != 15*time.Second {
		t.Errorf("GracePeriod = %v, want 15s", cfg.GracePeriod)
	}
	if cfg.RoomMaxAge != 2*time.Hour {
		t.Errorf("RoomMaxAge = %v, want 2h", cfg.RoomMaxAge)
	}
	if cfg.RateLimit.Limit != 10 || cfg.RateLimit.Window != 60*time.Second {
		t.Errorf("RateLimit = %+v, want 10 per 60s", cfg.RateLimit)
	}
}

// TestCheckOrigin verifies the upgrader origin policy against the configured
// allow-list.
func TestCheckOrigin(t *testing.T) {
	defer SetConfig(nil)

	SetConfig(&Config{
		AllowedOrigins: []string{"https://Chat.Example.com", " ", "not a url"},
	})

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"allowed origin", "https://chat.example.com", true},
		{"allowed origin different case", "HTTPS://CHAT.EXAMPLE.COM", true},
		{"disallowed origin", "https://evil.example.com", false},
		{"missing origin", "", false},
		{"malformed origin", "chat.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := checkOrigin(req); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

// TestCheckOriginAllowAll verifies a wildcard entry admits any well-formed
// origin.
func TestCheckOriginAllowAll(t *testing.T) {
	defer SetConfig(nil)

	SetConfig(&Config{AllowedOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	if !checkOrigin(req) {
		t.Error("checkOrigin() = false with wildcard allow-list, want true")
	}
}

// TestNormalizeOrigin verifies scheme and host normalization.
func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"https://Example.COM", "https://example.com", true},
		{"http://localhost:8080", "http://localhost:8080", true},
		{"example.com", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := normalizeOrigin(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("normalizeOrigin(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/hitoshi/schedly/internal/config"
	"github.com/hitoshi/schedly/internal/notify"
)

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}

	if cfg.FirebaseProjectID != "schedly-test" {
		t.Errorf("FirebaseProjectID = %q, want %q", cfg.FirebaseProjectID, "schedly-test")
	}

	// Verify that slog global logger is configured for JSON output
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	clearRequiredEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"認証情報あり", "postgres://schedly:secret@db:5432/schedly?sslmode=disable", "postgres://%2A%2A%2A@db:5432/schedly?sslmode=disable"},
		{"認証情報なし", "postgres://db:5432/schedly", "postgres://db:5432/schedly"},
		{"不正な値", "not a url", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := maskDatabaseURL(tt.in)
			if got != tt.want {
				t.Errorf("maskDatabaseURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if strings.Contains(got, "secret") {
				t.Errorf("masked URL leaks password: %q", got)
			}
		})
	}
}

// --- モック ---

type mockPinger struct {
	err error
}

func (m mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

type mockIdentity struct {
	err error
}

func (m mockIdentity) Ready(ctx context.Context) error {
	return m.err
}

type mockDeliverer struct {
	delivered []notify.Message
}

func (m *mockDeliverer) Deliver(ctx context.Context, msg notify.Message) error {
	m.delivered = append(m.delivered, msg)
	return nil
}

// --- テスト ---

// TestReadiness_PingContext はDBの疎通失敗がエラーとして返ることを検証する。
func TestReadiness_PingContext(t *testing.T) {
	if err := (readiness{db: mockPinger{}}).PingContext(context.Background()); err != nil {
		t.Errorf("healthy db: err = %v, want nil", err)
	}

	down := errors.New("connection refused")
	err := (readiness{db: mockPinger{err: down}}).PingContext(context.Background())
	if !errors.Is(err, down) {
		t.Errorf("err = %v, want wrapping %v", err, down)
	}
	if !strings.Contains(err.Error(), "database") {
		t.Errorf("err = %q, want to name database", err.Error())
	}
}

// TestReadiness_IdentityUnavailable はIDトークン検証器が使えない場合にエラーになることを検証する。
func TestReadiness_IdentityUnavailable(t *testing.T) {
	ok := readiness{db: mockPinger{}, identity: mockIdentity{}}
	if err := ok.PingContext(context.Background()); err != nil {
		t.Errorf("healthy deps: err = %v, want nil", err)
	}

	discovery := errors.New("discovery failed")
	err := (readiness{db: mockPinger{}, identity: mockIdentity{err: discovery}}).PingContext(context.Background())
	if !errors.Is(err, discovery) {
		t.Errorf("err = %v, want wrapping %v", err, discovery)
	}
	if !strings.Contains(err.Error(), "identity") {
		t.Errorf("err = %q, want to name identity", err.Error())
	}
}

// TestNewMailer_EmailDisabled はEMAIL_ENABLED=falseでLogMailerになることを検証する。
func TestNewMailer_EmailDisabled(t *testing.T) {
	_, collector := newRegistry()

	if _, ok := newMailer(&config.Config{EmailEnabled: false}, collector).(notify.LogMailer); !ok {
		t.Error("expected LogMailer when email is disabled")
	}
	if _, ok := newMailer(&config.Config{EmailEnabled: true, SMTPHost: "localhost", SMTPPort: 25}, collector).(*notify.SMTPMailer); !ok {
		t.Error("expected SMTPMailer when email is enabled")
	}
}

// TestNewPublisher_InlineWithoutRedis はRedisなしではその場で配送することを検証する。
func TestNewPublisher_InlineWithoutRedis(t *testing.T) {
	d := &mockDeliverer{}
	publisher, closeFn := newPublisher(&config.Config{}, nil, d)
	defer closeFn()

	if _, ok := publisher.(*notify.InlinePublisher); !ok {
		t.Fatalf("publisher = %T, want *notify.InlinePublisher", publisher)
	}
	if err := publisher.Publish(context.Background(), notify.Message{Kind: notify.KindBookingCreated}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(d.delivered) != 1 {
		t.Errorf("delivered = %d, want 1", len(d.delivered))
	}
}

// TestNewRateLimiter_UsesPerMinuteConfig は1分あたりの設定値がバーストに反映されることを検証する。
func TestNewRateLimiter_UsesPerMinuteConfig(t *testing.T) {
	rl := newRateLimiter(&config.Config{RateLimitGeneral: 60, RateLimitWrite: 6})
	defer rl.Stop()

	if rl.GeneralLimiterCount() != 0 || rl.WriteLimiterCount() != 0 {
		t.Error("new rate limiter should start without per-user limiters")
	}
}

// TestNewRateLimiter_DisabledByDefault は設定値が0ならレート制限を生成しないことを検証する。
func TestNewRateLimiter_DisabledByDefault(t *testing.T) {
	if rl := newRateLimiter(&config.Config{}); rl != nil {
		rl.Stop()
		t.Error("newRateLimiter() = non-nil, want nil when both limits are 0")
	}

	rl := newRateLimiter(&config.Config{RateLimitWrite: 10})
	if rl == nil {
		t.Fatal("newRateLimiter() = nil, want limiter when RATE_LIMIT_WRITE is set")
	}
	rl.Stop()
}

// TestNewDeliverer_InvalidTimezone は不正なタイムゾーンでエラーになることを検証する。
func TestNewDeliverer_InvalidTimezone(t *testing.T) {
	_, collector := newRegistry()
	if _, err := newDeliverer(&config.Config{SlotTimezone: "Nowhere/Land"}, collector); err == nil {
		t.Error("expected error for invalid timezone")
	}
}

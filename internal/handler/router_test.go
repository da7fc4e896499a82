package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/schedly/internal/availability"
	"github.com/hitoshi/schedly/internal/middleware"
	"github.com/hitoshi/schedly/internal/model"
	"github.com/hitoshi/schedly/internal/user"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// --- モック ---

type routerAuthenticator struct{}

func (routerAuthenticator) VerifyToken(ctx context.Context, raw string) (*model.Identity, error) {
	switch raw {
	case "member", "newcomer":
		return &model.Identity{Subject: "uid-" + raw, Email: raw + "@example.com"}, nil
	}
	return nil, model.NewUnauthorizedError()
}

func (a routerAuthenticator) Authenticate(ctx context.Context, raw string) (*model.Identity, *model.User, error) {
	identity, err := a.VerifyToken(ctx, raw)
	if err != nil {
		return nil, nil, err
	}
	if raw == "newcomer" {
		return nil, nil, model.NewRegistrationRequiredError()
	}
	return identity, &model.User{ID: "user-member", Email: identity.Email}, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

func newTestRouter(t *testing.T, deps *RouterDeps) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(100),
		GeneralBurst:    100,
		WriteRate:       rate.Limit(0.01),
		WriteBurst:      1,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(rl.Stop)

	deps.Authenticator = routerAuthenticator{}
	deps.RateLimiter = rl
	deps.CORSAllowedOrigin = "http://localhost:3000"
	return NewRouter(deps)
}

func authed(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = newJSONRequest(method, target, body)
	}
	req.Header.Set("Authorization", "Bearer member")
	return req
}

// --- テスト ---

// TestRouter_Health はDB疎通結果に応じたステータスを検証する。
func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{"正常", nil, http.StatusOK, `"ok"`},
		{"DB停止", errors.New("connection refused"), http.StatusServiceUnavailable, `"unavailable"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &RouterDeps{HealthChecker: &mockPinger{err: tt.pingErr}})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want to contain %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

// TestRouter_RequiresAuth は保護されたルートがトークンなしで401を返すことを検証する。
func TestRouter_RequiresAuth(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	for _, target := range []string{"/api/auth/me", "/api/bookings", "/api/connections", "/api/google-calendar/auth-url"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want %d", target, w.Code, http.StatusUnauthorized)
		}
	}
}

// TestRouter_RegisterAllowsUnregisteredIdentity は未登録ユーザーが登録エンドポイントに到達できることを検証する。
func TestRouter_RegisterAllowsUnregisteredIdentity(t *testing.T) {
	var gotSubject string
	router := newTestRouter(t, &RouterDeps{
		RegistrationService: &mockRegistrationService{
			registerFn: func(ctx context.Context, identity *model.Identity, in user.Profile) (*model.User, error) {
				gotSubject = identity.Subject
				return &model.User{ID: "user-new", FirebaseUID: identity.Subject, Email: identity.Email, Name: in.Name}, nil
			},
		},
	})

	req := newJSONRequest(http.MethodPost, "/api/auth/register", `{"name":"Newcomer"}`)
	req.Header.Set("Authorization", "Bearer newcomer")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusCreated, w.Body.String())
	}
	if gotSubject != "uid-newcomer" {
		t.Errorf("subject = %q, want %q", gotSubject, "uid-newcomer")
	}

	// 未登録のままでは保護されたルートに入れない
	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer newcomer")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if code := errorCode(t, w); w.Code != http.StatusUnauthorized || code != model.ErrCodeRegistrationNeeded {
		t.Errorf("status = %d code = %q, want 401 %q", w.Code, code, model.ErrCodeRegistrationNeeded)
	}
}

// TestRouter_AuthenticatedRoutes は認証済みリクエストが各ハンドラーに届くことを検証する。
func TestRouter_AuthenticatedRoutes(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{
		RegistrationService: &mockRegistrationService{
			getFn: func(ctx context.Context, id string) (*model.User, error) {
				return &model.User{ID: id, Email: "member@example.com"}, nil
			},
		},
		ConnectionService: &mockConnectionService{
			areConnectedFn: func(ctx context.Context, userA, userB string) (bool, error) {
				return userA == "user-member" && userB == "user-2", nil
			},
		},
		AvailabilityService: &mockAvailabilityService{
			slotsFn: func(ctx context.Context, userID string, duration int) ([]availability.DaySlots, error) {
				return nil, nil
			},
		},
	})

	tests := []struct {
		name     string
		target   string
		wantBody string
	}{
		{"me", "/api/auth/me", `"user-member"`},
		{"check", "/api/connections/check/user-2", `"connected":true`},
		{"slots", "/api/users/user-2/slots?duration=30", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, authed(http.MethodGet, tt.target, ""))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want to contain %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

// TestRouter_WriteRateLimit は作成系エンドポイントに追加のレート制限がかかることを検証する。
func TestRouter_WriteRateLimit(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{
		ConnectionService: &mockConnectionService{
			sendFn: func(ctx context.Context, senderID, receiverID, message string) (*model.Connection, error) {
				return &model.Connection{ID: "c-1", SenderID: senderID, ReceiverID: receiverID, Status: model.ConnectionPending}, nil
			},
			listFn: func(kind, userID string) ([]*model.ConnectionDetail, error) {
				return nil, nil
			},
		},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authed(http.MethodPost, "/api/connections", `{"receiverId":"user-2"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("first status = %d, want %d", w.Code, http.StatusCreated)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, authed(http.MethodPost, "/api/connections", `{"receiverId":"user-3"}`))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// 読み取り系は作成系の制限を受けない
	w = httptest.NewRecorder()
	router.ServeHTTP(w, authed(http.MethodGet, "/api/connections", ""))
	if w.Code != http.StatusOK {
		t.Errorf("list status = %d, want %d", w.Code, http.StatusOK)
	}
}

// TestRouter_WithoutRateLimiter はRateLimiterがnilなら作成系も制限されないことを検証する。
func TestRouter_WithoutRateLimiter(t *testing.T) {
	router := NewRouter(&RouterDeps{
		Authenticator:     routerAuthenticator{},
		CORSAllowedOrigin: "http://localhost:3000",
		ConnectionService: &mockConnectionService{
			sendFn: func(ctx context.Context, senderID, receiverID, message string) (*model.Connection, error) {
				return &model.Connection{ID: "c-1", SenderID: senderID, ReceiverID: receiverID, Status: model.ConnectionPending}, nil
			},
		},
	})

	for i, receiver := range []string{"user-2", "user-3", "user-4"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authed(http.MethodPost, "/api/connections", `{"receiverId":"`+receiver+`"}`))
		if w.Code != http.StatusCreated {
			t.Errorf("request %d status = %d, want %d", i, w.Code, http.StatusCreated)
		}
	}
}

// TestRouter_Metrics はGathererを渡した場合のみ/metricsが公開されることを検証する。
func TestRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "schedly_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	router := newTestRouter(t, &RouterDeps{Gatherer: reg})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "schedly_test_total") {
		t.Errorf("status = %d, body = %q", w.Code, w.Body.String())
	}

	router = newTestRouter(t, &RouterDeps{})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status without gatherer = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// TestRouter_Preflight はCORSプリフライトが認証なしで204を返すことを検証する。
func TestRouter_Preflight(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodOptions, "/api/bookings", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

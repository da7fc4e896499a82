package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/schedly/internal/model"
)

// --- モック ---

type mockCalendarConnector struct {
	authURLFn    func(userID string) (string, string, error)
	exchangeFn   func(ctx context.Context, userID, code, state string) error
	disconnectFn func(ctx context.Context, userID string) error
}

func (m *mockCalendarConnector) AuthURL(userID string) (string, string, error) {
	return m.authURLFn(userID)
}

func (m *mockCalendarConnector) Exchange(ctx context.Context, userID, code, state string) error {
	return m.exchangeFn(ctx, userID, code, state)
}

func (m *mockCalendarConnector) Disconnect(ctx context.Context, userID string) error {
	return m.disconnectFn(ctx, userID)
}

// --- テスト ---

// TestCalendarHandler_AuthURL は同意画面URLとstateを返すことを検証する。
func TestCalendarHandler_AuthURL(t *testing.T) {
	h := NewCalendarHandler(&mockCalendarConnector{
		authURLFn: func(userID string) (string, string, error) {
			return "https://accounts.google.com/o/oauth2/auth?state=s-" + userID, "s-" + userID, nil
		},
	})

	w := httptest.NewRecorder()
	h.AuthURL(w, withUserID(httptest.NewRequest(http.MethodGet, "/api/google-calendar/auth-url", nil), "user-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp authURLResponse
	decodeBody(t, w, &resp)
	if resp.State != "s-user-1" || resp.AuthURL == "" {
		t.Errorf("resp = %+v", resp)
	}
}

// TestCalendarHandler_ExchangeToken は交換の成功とstate不一致を検証する。
func TestCalendarHandler_ExchangeToken(t *testing.T) {
	h := NewCalendarHandler(&mockCalendarConnector{
		exchangeFn: func(ctx context.Context, userID, code, state string) error {
			if code == "" {
				return model.NewInvalidRequestError("codeは必須です。")
			}
			if state != "s-"+userID {
				return model.NewInvalidOAuthStateError()
			}
			return nil
		},
	})

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"正常", `{"code":"abc","state":"s-user-1"}`, http.StatusOK},
		{"コードなし", `{"state":"s-user-1"}`, http.StatusBadRequest},
		{"state不一致", `{"code":"abc","state":"s-user-2"}`, http.StatusForbidden},
		{"JSON不正", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ExchangeToken(w, withUserID(newJSONRequest(http.MethodPost, "/api/google-calendar/exchange-token", tt.body), "user-1"))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

// TestCalendarHandler_Disconnect は連携解除で204を返すことを検証する。
func TestCalendarHandler_Disconnect(t *testing.T) {
	called := false
	h := NewCalendarHandler(&mockCalendarConnector{
		disconnectFn: func(ctx context.Context, userID string) error {
			called = userID == "user-1"
			return nil
		},
	})

	w := httptest.NewRecorder()
	h.Disconnect(w, withUserID(httptest.NewRequest(http.MethodDelete, "/api/google-calendar", nil), "user-1"))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if !called {
		t.Error("Disconnect was not called for the current user")
	}
}

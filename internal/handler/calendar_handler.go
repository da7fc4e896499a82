package handler

import (
	"context"
	"net/http"
)

// CalendarConnector はGoogleカレンダー連携に必要なインターフェース。
type CalendarConnector interface {
	AuthURL(userID string) (authURL, state string, err error)
	Exchange(ctx context.Context, userID, code, state string) error
	Disconnect(ctx context.Context, userID string) error
}

// CalendarHandler はGoogleカレンダー連携のHTTPハンドラー。
type CalendarHandler struct {
	connector CalendarConnector
}

// NewCalendarHandler はCalendarHandlerを生成する。
func NewCalendarHandler(connector CalendarConnector) *CalendarHandler {
	return &CalendarHandler{connector: connector}
}

type authURLResponse struct {
	AuthURL string `json:"authUrl"`
	State   string `json:"state"`
}

type exchangeRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// AuthURL は同意画面のURLとユーザーに紐づくstateを返す。
// GET /api/google-calendar/auth-url
func (h *CalendarHandler) AuthURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	authURL, state, err := h.connector.AuthURL(userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authURLResponse{AuthURL: authURL, State: state})
}

// ExchangeToken は認可コードをトークンに交換して保存する。
// POST /api/google-calendar/exchange-token
func (h *CalendarHandler) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req exchangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.connector.Exchange(r.Context(), userID, req.Code, req.State); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"calendarConnected": true})
}

// Disconnect は保存済みのカレンダー資格情報を削除する。
// DELETE /api/google-calendar
func (h *CalendarHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.connector.Disconnect(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

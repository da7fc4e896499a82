package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/schedly/internal/event"
	"github.com/hitoshi/schedly/internal/model"
)

// EventServiceInterface はイベントハンドラーが必要とするサービスインターフェース。
type EventServiceInterface interface {
	Create(ctx context.Context, ownerID string, in event.Input) (*model.Event, error)
	Get(ctx context.Context, id string) (*model.Event, error)
	ListMine(ctx context.Context, ownerID string) ([]*model.Event, error)
	ListPublic(ctx context.Context, userID string) ([]*model.Event, error)
	Update(ctx context.Context, ownerID, id string, in event.Input) (*model.Event, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// EventHandler はイベント管理のHTTPハンドラー。
type EventHandler struct {
	service EventServiceInterface
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(service EventServiceInterface) *EventHandler {
	return &EventHandler{service: service}
}

// eventRequest はイベントの作成・更新リクエストのボディ。
type eventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	IsPrivate   *bool  `json:"isPrivate"`
}

func (req eventRequest) toInput() event.Input {
	return event.Input{
		Title:           req.Title,
		Description:     req.Description,
		DurationMinutes: req.Duration,
		IsPrivate:       req.IsPrivate,
	}
}

// Create はイベントを作成する。
// POST /api/events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	ev, err := h.service.Create(r.Context(), userID, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(ev))
}

// Get はイベントを返す。非公開イベントもリンクを知っていれば取得できる。
// GET /api/events/{id}
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	ev, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

// ListMine はログイン中のユーザーのイベント一覧を返す。
// GET /api/events
func (h *EventHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	events, err := h.service.ListMine(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(events, toEventResponse))
}

// ListPublic はユーザーの公開イベント一覧を返す。
// GET /api/users/{id}/events
func (h *EventHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListPublic(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(events, toEventResponse))
}

// Update はイベントを更新する。
// PUT /api/events/{id}
func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	ev, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

// Delete はイベントを削除する。
// DELETE /api/events/{id}
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/schedly/internal/availability"
	"github.com/hitoshi/schedly/internal/model"
)

// defaultSlotDuration はdurationクエリ省略時の枠の長さ（分）。
const defaultSlotDuration = 30

// AvailabilityServiceInterface は空き時間ハンドラーが必要とするサービスインターフェース。
type AvailabilityServiceInterface interface {
	Get(ctx context.Context, userID string) (*model.Availability, error)
	Create(ctx context.Context, userID string, in availability.Input) (*model.Availability, error)
	Update(ctx context.Context, userID string, in availability.Input) (*model.Availability, error)
	Delete(ctx context.Context, userID string) error
	GenerateSlots(ctx context.Context, userID string, durationMinutes int) ([]availability.DaySlots, error)
}

// AvailabilityHandler は空き時間設定と予約可能枠のHTTPハンドラー。
type AvailabilityHandler struct {
	service AvailabilityServiceInterface
}

// NewAvailabilityHandler はAvailabilityHandlerを生成する。
func NewAvailabilityHandler(service AvailabilityServiceInterface) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// availabilityRequest は空き時間設定の作成・更新リクエストのボディ。
type availabilityRequest struct {
	GapMinutes int              `json:"timeGap"`
	Days       []windowResponse `json:"days"`
}

func (req availabilityRequest) toInput() availability.Input {
	in := availability.Input{GapMinutes: req.GapMinutes, Days: make([]availability.WindowInput, len(req.Days))}
	for i, d := range req.Days {
		in.Days[i] = availability.WindowInput{Day: d.Day, Start: d.Start, End: d.End}
	}
	return in
}

// GetForUser はユーザーの空き時間設定を返す。
// GET /api/users/{id}/availability
func (h *AvailabilityHandler) GetForUser(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityResponse(a))
}

// Slots はユーザーの予約可能枠を返す。
// GET /api/users/{id}/slots?duration=30
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	duration := defaultSlotDuration
	if raw := r.URL.Query().Get("duration"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			handleServiceError(w, model.NewInvalidDurationError(0))
			return
		}
		duration = d
	}

	days, err := h.service.GenerateSlots(r.Context(), chi.URLParam(r, "id"), duration)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDaySlotsResponse(days))
}

// GetMine はログイン中のユーザーの空き時間設定を返す。
// GET /api/availability
func (h *AvailabilityHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	a, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityResponse(a))
}

// Create は空き時間設定を作成する。
// POST /api/availability
func (h *AvailabilityHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, http.StatusCreated, h.service.Create)
}

// Update は空き時間設定を置き換える。
// PUT /api/availability
func (h *AvailabilityHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, http.StatusOK, h.service.Update)
}

func (h *AvailabilityHandler) save(
	w http.ResponseWriter, r *http.Request, status int,
	fn func(ctx context.Context, userID string, in availability.Input) (*model.Availability, error),
) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req availabilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	a, err := fn(r.Context(), userID, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, status, toAvailabilityResponse(a))
}

// Delete は空き時間設定を削除する。
// DELETE /api/availability
func (h *AvailabilityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/schedly/internal/booking"
	"github.com/hitoshi/schedly/internal/model"
)

// BookingServiceInterface は予約ハンドラーが必要とするサービスインターフェース。
type BookingServiceInterface interface {
	Create(ctx context.Context, userID string, in booking.Input) (*model.Booking, error)
	Get(ctx context.Context, actorID, id string) (*model.Booking, error)
	ListMine(ctx context.Context, userID string) ([]*model.Booking, error)
	ListMineInRange(ctx context.Context, userID string, start, end time.Time) ([]*model.Booking, error)
	ListByEvent(ctx context.Context, actorID, eventID string) ([]*model.Booking, error)
	Update(ctx context.Context, actorID, id string, in booking.Input) (*model.Booking, error)
	Delete(ctx context.Context, actorID, id string) error
}

// BookingHandler は予約のHTTPハンドラー。
type BookingHandler struct {
	service BookingServiceInterface
}

// NewBookingHandler はBookingHandlerを生成する。
func NewBookingHandler(service BookingServiceInterface) *BookingHandler {
	return &BookingHandler{service: service}
}

// bookingRequest は予約の作成・更新リクエストのボディ。時刻はRFC3339形式。
type bookingRequest struct {
	EventID        string `json:"eventId"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	AdditionalInfo string `json:"additionalInfo"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	MeetLink       string `json:"meetLink"`
}

func (req bookingRequest) toInput() (booking.Input, error) {
	start, err := parseTime("startTime", req.StartTime)
	if err != nil {
		return booking.Input{}, err
	}
	end, err := parseTime("endTime", req.EndTime)
	if err != nil {
		return booking.Input{}, err
	}
	return booking.Input{
		EventID:        req.EventID,
		Name:           req.Name,
		Email:          req.Email,
		AdditionalInfo: req.AdditionalInfo,
		StartTime:      start,
		EndTime:        end,
		MeetLink:       req.MeetLink,
	}, nil
}

// Create は予約を作成する。
// POST /api/bookings
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req bookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if req.EventID == "" || req.StartTime == "" || req.EndTime == "" {
		handleServiceError(w, model.NewInvalidRequestError("eventId、startTime、endTimeは必須です。"))
		return
	}
	in, err := req.toInput()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	b, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

// Get は予約を返す。
// GET /api/bookings/{id}
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	b, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

// ListMine はログイン中のユーザーの予約一覧を返す。
// start、endクエリを指定した場合は範囲内に完全に含まれる予約のみを返す。
// GET /api/bookings?start=&end=
func (h *BookingHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var (
		bookings []*model.Booking
		err      error
	)
	if q.Get("start") != "" || q.Get("end") != "" {
		if q.Get("start") == "" || q.Get("end") == "" {
			handleServiceError(w, model.NewInvalidRequestError("startとendは両方指定してください。"))
			return
		}
		start, perr := parseTime("start", q.Get("start"))
		if perr != nil {
			handleServiceError(w, perr)
			return
		}
		end, perr := parseTime("end", q.Get("end"))
		if perr != nil {
			handleServiceError(w, perr)
			return
		}
		bookings, err = h.service.ListMineInRange(r.Context(), userID, start, end)
	} else {
		bookings, err = h.service.ListMine(r.Context(), userID)
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(bookings, toBookingResponse))
}

// ListByEvent はイベントの予約一覧を返す。イベント所有者のみ取得できる。
// GET /api/events/{id}/bookings
func (h *BookingHandler) ListByEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	bookings, err := h.service.ListByEvent(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(bookings, toBookingResponse))
}

// Update は予約を更新する。省略したフィールドは現状維持となる。
// PUT /api/bookings/{id}
func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req bookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	b, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

// Delete は予約を削除する。
// DELETE /api/bookings/{id}
func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/schedly/internal/meeting"
	"github.com/hitoshi/schedly/internal/model"
)

// MeetingServiceInterface はミーティングリクエストハンドラーが必要とするサービスインターフェース。
type MeetingServiceInterface interface {
	Create(ctx context.Context, requesterID string, in meeting.Input) (*model.MeetingRequest, error)
	Approve(ctx context.Context, actorID, id string) (*model.MeetingRequest, error)
	Reject(ctx context.Context, actorID, id, reason string) (*model.MeetingRequest, error)
	Get(ctx context.Context, actorID, id string) (*model.MeetingRequest, error)
	ListPending(ctx context.Context, userID string) ([]*model.MeetingRequest, error)
	ListSent(ctx context.Context, userID string) ([]*model.MeetingRequest, error)
	ListReceived(ctx context.Context, userID string) ([]*model.MeetingRequest, error)
}

// MeetingHandler はミーティングリクエストのHTTPハンドラー。
type MeetingHandler struct {
	service MeetingServiceInterface
}

// NewMeetingHandler はMeetingHandlerを生成する。
func NewMeetingHandler(service MeetingServiceInterface) *MeetingHandler {
	return &MeetingHandler{service: service}
}

type meetingRequestBody struct {
	ReceiverID  string `json:"receiverId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
}

type rejectBody struct {
	Reason string `json:"reason"`
}

// Create はミーティングリクエストを作成する。
// POST /api/meeting-requests
func (h *MeetingHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req meetingRequestBody
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if req.ReceiverID == "" || req.StartTime == "" || req.EndTime == "" {
		handleServiceError(w, model.NewInvalidRequestError("receiverId、startTime、endTimeは必須です。"))
		return
	}
	start, err := parseTime("startTime", req.StartTime)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	end, err := parseTime("endTime", req.EndTime)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	m, err := h.service.Create(r.Context(), userID, meeting.Input{
		ReceiverID:  req.ReceiverID,
		Title:       req.Title,
		Description: req.Description,
		StartTime:   start,
		EndTime:     end,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMeetingRequestResponse(m))
}

// Get はミーティングリクエストを返す。当事者のみ取得できる。
// GET /api/meeting-requests/{id}
func (h *MeetingHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	m, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMeetingRequestResponse(m))
}

// Approve はミーティングリクエストを承認する。
// POST /api/meeting-requests/{id}/approve
func (h *MeetingHandler) Approve(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	m, err := h.service.Approve(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMeetingRequestResponse(m))
}

// Reject はミーティングリクエストを拒否する。理由は省略できる。
// POST /api/meeting-requests/{id}/reject
func (h *MeetingHandler) Reject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var body rejectBody
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			handleServiceError(w, err)
			return
		}
	}

	m, err := h.service.Reject(r.Context(), userID, chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMeetingRequestResponse(m))
}

// ListPending は受信した申請中のリクエスト一覧を返す。
// GET /api/meeting-requests/pending
func (h *MeetingHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListPending)
}

// ListSent は送信したリクエスト一覧を返す。
// GET /api/meeting-requests/sent
func (h *MeetingHandler) ListSent(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListSent)
}

// ListReceived は受信したリクエスト一覧を返す。
// GET /api/meeting-requests/received
func (h *MeetingHandler) ListReceived(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListReceived)
}

func (h *MeetingHandler) list(
	w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, userID string) ([]*model.MeetingRequest, error),
) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	requests, err := fn(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(requests, toMeetingRequestResponse))
}

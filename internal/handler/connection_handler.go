package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/schedly/internal/model"
)

// ConnectionServiceInterface はつながりハンドラーが必要とするサービスインターフェース。
type ConnectionServiceInterface interface {
	Send(ctx context.Context, senderID, receiverID, message string) (*model.Connection, error)
	Accept(ctx context.Context, actorID, id string) (*model.Connection, error)
	Reject(ctx context.Context, actorID, id string) (*model.Connection, error)
	Block(ctx context.Context, actorID, id string) (*model.Connection, error)
	Remove(ctx context.Context, actorID, id string) error
	AreConnected(ctx context.Context, userA, userB string) (bool, error)
	ListAccepted(ctx context.Context, userID string) ([]*model.ConnectionDetail, error)
	ListPendingSent(ctx context.Context, userID string) ([]*model.ConnectionDetail, error)
	ListPendingReceived(ctx context.Context, userID string) ([]*model.ConnectionDetail, error)
	ListBlocked(ctx context.Context, userID string) ([]*model.ConnectionDetail, error)
}

// ConnectionHandler はつながりのHTTPハンドラー。
type ConnectionHandler struct {
	service ConnectionServiceInterface
}

// NewConnectionHandler はConnectionHandlerを生成する。
func NewConnectionHandler(service ConnectionServiceInterface) *ConnectionHandler {
	return &ConnectionHandler{service: service}
}

type connectionRequest struct {
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
}

// Send はつながり申請を送信する。
// POST /api/connections
func (h *ConnectionHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req connectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if req.ReceiverID == "" {
		handleServiceError(w, model.NewInvalidRequestError("receiverIdは必須です。"))
		return
	}

	c, err := h.service.Send(r.Context(), userID, req.ReceiverID, req.Message)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConnectionResponse(c))
}

// Accept はつながり申請を承認する。
// POST /api/connections/{id}/accept
func (h *ConnectionHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Accept)
}

// Reject はつながり申請を拒否する。
// POST /api/connections/{id}/reject
func (h *ConnectionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reject)
}

// Block は申請者をブロックする。
// POST /api/connections/{id}/block
func (h *ConnectionHandler) Block(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Block)
}

func (h *ConnectionHandler) transition(
	w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, actorID, id string) (*model.Connection, error),
) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	c, err := fn(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConnectionResponse(c))
}

// Remove はつながりを削除する。当事者のどちらでも削除できる。
// DELETE /api/connections/{id}
func (h *ConnectionHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Remove(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Check は指定ユーザーとつながっているかを返す。
// GET /api/connections/check/{userId}
func (h *ConnectionHandler) Check(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	connected, err := h.service.AreConnected(r.Context(), userID, chi.URLParam(r, "userId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"connected": connected})
}

// ListAccepted は承認済みのつながり一覧を返す。
// GET /api/connections
func (h *ConnectionHandler) ListAccepted(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListAccepted)
}

// ListPendingSent は送信した申請中のつながり一覧を返す。
// GET /api/connections/pending/sent
func (h *ConnectionHandler) ListPendingSent(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListPendingSent)
}

// ListPendingReceived は受信した申請中のつながり一覧を返す。
// GET /api/connections/pending/received
func (h *ConnectionHandler) ListPendingReceived(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListPendingReceived)
}

// ListBlocked はブロックしたつながり一覧を返す。
// GET /api/connections/blocked
func (h *ConnectionHandler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListBlocked)
}

func (h *ConnectionHandler) list(
	w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, userID string) ([]*model.ConnectionDetail, error),
) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	details, err := fn(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConnectionDetailResponses(details))
}

package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/schedly/internal/middleware"
	"github.com/hitoshi/schedly/internal/model"
	"github.com/hitoshi/schedly/internal/user"
)

// TokenVerifier はIDトークンの検証に必要なインターフェース。
type TokenVerifier interface {
	VerifyToken(ctx context.Context, rawToken string) (*model.Identity, error)
}

// RegistrationService はユーザー登録と自身の取得に必要なサービスインターフェース。
type RegistrationService interface {
	Register(ctx context.Context, identity *model.Identity, in user.Profile) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
}

// AuthHandler はIDトークン検証とユーザー登録のHTTPハンドラー。
type AuthHandler struct {
	verifier TokenVerifier
	users    RegistrationService
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(verifier TokenVerifier, users RegistrationService) *AuthHandler {
	return &AuthHandler{verifier: verifier, users: users}
}

type verifyRequest struct {
	IDToken string `json:"idToken"`
}

type verifyResponse struct {
	UID      string `json:"uid,omitempty"`
	Email    string `json:"email,omitempty"`
	Verified bool   `json:"verified"`
}

// profileRequest は登録・プロフィール更新リクエストのボディ。
type profileRequest struct {
	Name        string `json:"name"`
	Username    string `json:"username"`
	ImageURL    string `json:"imageUrl"`
	PhoneNumber string `json:"phoneNumber"`
}

func (p profileRequest) toProfile() user.Profile {
	return user.Profile{Name: p.Name, Username: p.Username, ImageURL: p.ImageURL, PhoneNumber: p.PhoneNumber}
}

// Verify はボディのIDトークンを検証する。
// POST /api/auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	identity, err := h.verifier.VerifyToken(r.Context(), req.IDToken)
	if err != nil {
		if model.KindOf(err) == model.KindUnauthorized {
			writeJSON(w, http.StatusUnauthorized, verifyResponse{Verified: false})
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{UID: identity.Subject, Email: identity.Email, Verified: true})
}

// Register は検証済みトークンの主体でユーザーを登録する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewUnauthorizedError())
		return
	}

	var req profileRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err)
			return
		}
	}

	u, err := h.users.Register(r.Context(), identity, req.toProfile())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// Me はログイン中のユーザーを返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

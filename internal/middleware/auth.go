// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/schedly/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// identityContextKey はリクエストコンテキストに認証主体を格納するためのキー。
	identityContextKey = contextKey("identity")
)

// Authenticator はBearerトークンの検証に必要なインターフェース。
type Authenticator interface {
	VerifyToken(ctx context.Context, rawToken string) (*model.Identity, error)
	Authenticate(ctx context.Context, rawToken string) (*model.Identity, *model.User, error)
}

// NewIdentityMiddleware はAuthorizationヘッダーのIDトークンを検証し、
// 認証主体をリクエストコンテキストに注入するミドルウェアを返す。
// ユーザー登録前でも通過できるため、登録エンドポイントで使う。
func NewIdentityMiddleware(auth Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				WriteError(w, model.NewUnauthorizedError())
				return
			}

			identity, err := auth.VerifyToken(r.Context(), token)
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// NewAuthMiddleware はIDトークンを検証し、登録済みユーザーのIDをリクエストコンテキストに注入する。
// トークンがない、または不正な場合は401、未登録の場合は401 REGISTRATION_REQUIRED、
// 認証基盤が利用できない場合は503を返す。
func NewAuthMiddleware(auth Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				WriteError(w, model.NewUnauthorizedError())
				return
			}

			identity, user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				WriteError(w, err)
				return
			}

			ctx := ContextWithIdentity(r.Context(), identity)
			ctx = ContextWithUserID(ctx, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// ロギングミドルウェアの内側で呼ばれた場合はアクセスログにも反映する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.userID = userID
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}

// IdentityFromContext はリクエストコンテキストから認証主体を取得する。
func IdentityFromContext(ctx context.Context) (*model.Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || identity == nil {
		return nil, fmt.Errorf("identity not found in context")
	}
	return identity, nil
}

// ContextWithIdentity はコンテキストに認証主体を注入する。
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

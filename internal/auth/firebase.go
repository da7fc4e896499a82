package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/hitoshi/schedly/internal/model"
)

const (
	firebaseIssuerPrefix = "https://securetoken.google.com/"
	defaultRetryInterval = 30 * time.Second
)

// ErrNotConfigured はプロジェクトIDが設定されていないことを表す。
var ErrNotConfigured = errors.New("firebase project id is not configured")

// FirebaseConfig はFirebase IDトークン検証の設定。
type FirebaseConfig struct {
	ProjectID string

	// テスト用にオーバーライド可能な発行者URL
	IssuerURL string

	HTTPClient *http.Client

	// RetryInterval はプロバイダー情報の取得に失敗した後、再取得を試みるまでの間隔。
	RetryInterval time.Duration
}

// FirebaseVerifier はFirebaseが発行したIDトークンをOIDCで検証する。
// プロバイダー情報は最初の検証時に取得し、失敗している間はUnavailableを返す。
type FirebaseVerifier struct {
	config FirebaseConfig
	now    func() time.Time

	mu          sync.Mutex
	verifier    *oidc.IDTokenVerifier
	lastAttempt time.Time
	lastErr     error
}

// NewFirebaseVerifier はFirebaseVerifierを生成する。
func NewFirebaseVerifier(config FirebaseConfig) *FirebaseVerifier {
	if config.IssuerURL == "" && config.ProjectID != "" {
		config.IssuerURL = firebaseIssuerPrefix + config.ProjectID
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaultRetryInterval
	}
	return &FirebaseVerifier{config: config, now: time.Now}
}

// NewVerifierWith は構築済みのoidc検証器を使うFirebaseVerifierを生成する。
func NewVerifierWith(verifier *oidc.IDTokenVerifier) *FirebaseVerifier {
	return &FirebaseVerifier{verifier: verifier, now: time.Now}
}

// firebaseClaims はIDトークンから取り出すクレーム。
type firebaseClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Verify はIDトークンを検証して認証主体を返す。
// トークンが不正な場合はUnauthorized、検証基盤が利用できない場合はUnavailableを返す。
func (v *FirebaseVerifier) Verify(ctx context.Context, rawToken string) (*model.Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, model.NewUnauthorizedError()
	}

	verifier, err := v.resolve(ctx)
	if err != nil {
		return nil, model.NewIdentityUnavailableError()
	}

	token, err := verifier.Verify(ctx, rawToken)
	if err != nil {
		slog.Debug("IDトークンの検証に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewUnauthorizedError()
	}

	var claims firebaseClaims
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode id token claims: %w", err)
	}

	return &model.Identity{
		Subject:       token.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

// Ready は検証器が利用可能な状態かを返す。必要ならプロバイダー情報を取得する。
func (v *FirebaseVerifier) Ready(ctx context.Context) error {
	_, err := v.resolve(ctx)
	return err
}

// resolve は検証器を返す。未取得ならプロバイダー情報を取得し、
// 直近の失敗からRetryIntervalが経過していなければ前回のエラーを返す。
func (v *FirebaseVerifier) resolve(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.verifier != nil {
		return v.verifier, nil
	}
	if v.config.IssuerURL == "" {
		return nil, ErrNotConfigured
	}
	if v.lastErr != nil && v.now().Sub(v.lastAttempt) < v.config.RetryInterval {
		return nil, v.lastErr
	}

	if v.config.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, v.config.HTTPClient)
	}
	v.lastAttempt = v.now()
	provider, err := oidc.NewProvider(ctx, v.config.IssuerURL)
	if err != nil {
		v.lastErr = fmt.Errorf("failed to discover identity provider: %w", err)
		slog.Error("認証基盤のプロバイダー情報の取得に失敗しました",
			slog.String("issuer", v.config.IssuerURL),
			slog.String("error", err.Error()),
		)
		return nil, v.lastErr
	}

	v.verifier = provider.Verifier(&oidc.Config{ClientID: v.config.ProjectID})
	v.lastErr = nil
	slog.Info("認証基盤のプロバイダー情報を取得しました",
		slog.String("issuer", v.config.IssuerURL),
	)
	return v.verifier, nil
}

package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/hitoshi/schedly/internal/model"
	"github.com/hitoshi/schedly/internal/repository"
)

// Connector はGoogleカレンダー連携（OAuth認可コードフロー）を扱う。
type Connector struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	states     *StateSigner
	store      CredentialStore
}

// NewConnector はConnectorを生成する。
func NewConnector(oauth *oauth2.Config, httpClient *http.Client, states *StateSigner, store CredentialStore) *Connector {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Connector{
		oauth:      oauth,
		httpClient: httpClient,
		states:     states,
		store:      store,
	}
}

// AuthURL は認可画面のURLとstateを返す。
// リフレッシュトークンを確実に受け取るためにオフラインアクセスと同意画面を要求する。
func (c *Connector) AuthURL(userID string) (authURL, state string, err error) {
	state, err = c.states.Sign(userID)
	if err != nil {
		return "", "", fmt.Errorf("stateの生成に失敗しました: %w", err)
	}
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), state, nil
}

// Exchange は認可コードをトークンに交換してユーザーに保存する。
func (c *Connector) Exchange(ctx context.Context, userID, code, state string) error {
	if code == "" {
		return model.NewInvalidRequestError("認可コードを指定してください")
	}
	if err := c.states.Verify(state, userID); err != nil {
		slog.Warn("OAuthのstate検証に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return model.NewInvalidOAuthStateError()
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		slog.Warn("認可コードの交換に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return model.NewCalendarUnavailableError("認可コードの交換に失敗しました")
	}

	if err := c.store.UpdateCalendarCredential(ctx, userID, credentialFromToken(tok, "")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("カレンダー資格情報の保存に失敗しました: %w", err)
	}

	slog.Info("Googleカレンダーを連携しました",
		slog.String("user_id", userID),
		slog.Bool("has_refresh_token", tok.RefreshToken != ""),
	)
	return nil
}

// Disconnect は保存済みの資格情報を削除する。
func (c *Connector) Disconnect(ctx context.Context, userID string) error {
	if err := c.store.UpdateCalendarCredential(ctx, userID, model.CalendarCredential{}); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("カレンダー連携の解除に失敗しました: %w", err)
	}
	slog.Info("Googleカレンダー連携を解除しました", slog.String("user_id", userID))
	return nil
}

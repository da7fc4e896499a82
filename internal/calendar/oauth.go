// Package calendar はGoogleカレンダー連携とMeetリンクの発行を提供する。
package calendar

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/hitoshi/schedly/internal/model"
)

// OAuthConfig はGoogle OAuthクライアントの設定。
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なエンドポイント
	Endpoint oauth2.Endpoint
}

// NewOAuth2Config はカレンダー操作スコープのoauth2.Configを生成する。
func NewOAuth2Config(cfg OAuthConfig) *oauth2.Config {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = endpoints.Google
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       []string{gcal.CalendarScope},
	}
}

// tokenFromCredential は保存済みの資格情報をoauth2.Tokenに変換する。
func tokenFromCredential(cred model.CalendarCredential) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
		TokenType:    "Bearer",
	}
}

// credentialFromToken はoauth2.Tokenを保存用の資格情報に変換する。
// リフレッシュトークンが返されなかった場合はfallbackの値を引き継ぐ。
func credentialFromToken(tok *oauth2.Token, fallbackRefresh string) model.CalendarCredential {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = fallbackRefresh
	}
	return model.CalendarCredential{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		Expiry:       tok.Expiry,
	}
}

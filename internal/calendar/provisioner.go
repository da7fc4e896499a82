package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/hitoshi/schedly/internal/model"
)

// ErrNoMeetLink はカレンダーイベントは作成できたが会議リンクが付与されなかったことを表す。
var ErrNoMeetLink = errors.New("calendar event has no conference link")

// Meeting はカレンダーに作成する予定。
type Meeting struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
}

// Provisioned はカレンダーイベント作成の結果。
// Refreshedがtrueの場合、Credentialは更新後のトークンを持つ。
type Provisioned struct {
	MeetLink   string
	EventID    string
	Credential model.CalendarCredential
	Refreshed  bool
}

// Provisioner は会議リンク付きのカレンダーイベントを作成する。
type Provisioner interface {
	CreateEvent(ctx context.Context, cred model.CalendarCredential, m Meeting) (*Provisioned, error)
}

// GoogleProvisioner はGoogleカレンダーAPIでイベントを作成し、Meetリンクを発行する。
// アクセストークンが期限切れの場合はリフレッシュトークンで更新する。
type GoogleProvisioner struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	options    []option.ClientOption
}

// NewGoogleProvisioner はGoogleProvisionerを生成する。
// httpClientはトークン更新とAPI呼び出しの両方の下位トランスポートとして使う。
// optsはテストでエンドポイントを差し替えるために使う。
func NewGoogleProvisioner(oauth *oauth2.Config, httpClient *http.Client, opts ...option.ClientOption) *GoogleProvisioner {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GoogleProvisioner{oauth: oauth, httpClient: httpClient, options: opts}
}

// CreateEvent はprimaryカレンダーにhangoutsMeet付きの予定を作成する。
func (p *GoogleProvisioner) CreateEvent(ctx context.Context, cred model.CalendarCredential, m Meeting) (*Provisioned, error) {
	if cred.IsZero() {
		return nil, errors.New("calendar credential is not set")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	ts := p.oauth.TokenSource(ctx, tokenFromCredential(cred))

	opts := append([]option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}, p.options...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}

	created, err := svc.Events.Insert("primary", newCalendarEvent(m)).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to insert calendar event: %w", err)
	}

	link := meetLinkOf(created)
	if link == "" {
		return nil, fmt.Errorf("%w: event %s", ErrNoMeetLink, created.Id)
	}

	result := &Provisioned{MeetLink: link, EventID: created.Id}

	// 呼び出し中にトークンが更新されていれば保存できるように返す
	if tok, err := ts.Token(); err == nil && tok.AccessToken != cred.AccessToken {
		result.Credential = credentialFromToken(tok, cred.RefreshToken)
		result.Refreshed = true
	}

	return result, nil
}

func newCalendarEvent(m Meeting) *gcal.Event {
	ev := &gcal.Event{
		Summary:     m.Summary,
		Description: m.Description,
		Start:       &gcal.EventDateTime{DateTime: m.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         &gcal.EventDateTime{DateTime: m.End.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		ConferenceData: &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}
	for _, email := range m.Attendees {
		if email != "" {
			ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: email})
		}
	}
	return ev
}

// meetLinkOf はイベントから会議URLを取り出す。ビデオの入口を優先する。
func meetLinkOf(ev *gcal.Event) string {
	if ev.HangoutLink != "" {
		return ev.HangoutLink
	}
	if ev.ConferenceData == nil {
		return ""
	}
	for _, ep := range ev.ConferenceData.EntryPoints {
		if ep.EntryPointType == "video" && ep.Uri != "" {
			return ep.Uri
		}
	}
	for _, ep := range ev.ConferenceData.EntryPoints {
		if ep.Uri != "" {
			return ep.Uri
		}
	}
	return ""
}

// compile-time interface check
var _ Provisioner = (*GoogleProvisioner)(nil)

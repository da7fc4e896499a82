package calendar

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/schedly/internal/metrics"
	"github.com/hitoshi/schedly/internal/model"
)

// FallbackMeetLink はMeetリンクを発行できなかった場合に使う汎用リンク。
const FallbackMeetLink = "https://meet.google.com/new"

// CredentialStore は更新されたトークンを保存する。
type CredentialStore interface {
	UpdateCalendarCredential(ctx context.Context, userID string, cred model.CalendarCredential) error
}

// LinkRecorder はMeetリンク発行の結果を記録する。
type LinkRecorder interface {
	RecordMeetLink(result string)
}

// Link はMeetリンクの発行結果。
type Link struct {
	URL      string
	EventID  string
	Fallback bool
}

// Linker はユーザーのカレンダーでMeetリンクを発行する。
// 発行に失敗しても呼び出し元には失敗を返さず、FallbackMeetLinkを返す。
type Linker struct {
	provisioner Provisioner
	store       CredentialStore
	recorder    LinkRecorder
	timeout     time.Duration
}

// NewLinker はLinkerを生成する。timeoutはカレンダーAPI呼び出し全体の上限。
func NewLinker(provisioner Provisioner, store CredentialStore, recorder LinkRecorder, timeout time.Duration) *Linker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Linker{
		provisioner: provisioner,
		store:       store,
		recorder:    recorder,
		timeout:     timeout,
	}
}

// Provision はownerのカレンダーに予定を作成してMeetリンクを返す。
// ownerがカレンダー未連携の場合やAPIが失敗した場合はフォールバックする。
func (l *Linker) Provision(ctx context.Context, owner *model.User, m Meeting) Link {
	if owner == nil || !owner.HasCalendar() {
		slog.Warn("カレンダー未連携のため汎用のMeetリンクを使用します",
			slog.String("user_id", userIDOf(owner)),
		)
		return l.fallback()
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := l.provisioner.CreateEvent(ctx, owner.Calendar, m)
	if err != nil {
		slog.Warn("Meetリンクの発行に失敗したため汎用のリンクを使用します",
			slog.String("user_id", owner.ID),
			slog.String("error", err.Error()),
		)
		return l.fallback()
	}

	if res.Refreshed && l.store != nil {
		if err := l.store.UpdateCalendarCredential(ctx, owner.ID, res.Credential); err != nil {
			slog.Error("更新されたカレンダートークンの保存に失敗しました",
				slog.String("user_id", owner.ID),
				slog.String("error", err.Error()),
			)
		} else {
			owner.Calendar = res.Credential
		}
	}

	if l.recorder != nil {
		l.recorder.RecordMeetLink(metrics.MeetLinkProvisioned)
	}
	slog.Info("Meetリンクを発行しました",
		slog.String("user_id", owner.ID),
		slog.String("calendar_event_id", res.EventID),
	)
	return Link{URL: res.MeetLink, EventID: res.EventID}
}

func (l *Linker) fallback() Link {
	if l.recorder != nil {
		l.recorder.RecordMeetLink(metrics.MeetLinkFallback)
	}
	return Link{URL: FallbackMeetLink, Fallback: true}
}

func userIDOf(u *model.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

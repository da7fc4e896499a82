// Package event は予約を受け付けるイベントのドメインロジックを提供する。
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/schedly/internal/calendar"
	"github.com/hitoshi/schedly/internal/model"
	"github.com/hitoshi/schedly/internal/repository"
)

// MeetLinker はイベント用のMeetリンクを発行する。
type MeetLinker interface {
	Provision(ctx context.Context, owner *model.User, m calendar.Meeting) calendar.Link
}

// UserFinder はユーザーの取得に使うインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Input はイベントの作成・更新の入力値。
// DurationMinutesが0の場合は既定値、IsPrivateがnilの場合は作成時true・更新時は現状維持。
type Input struct {
	Title           string
	Description     string
	DurationMinutes int
	IsPrivate       *bool
}

// Service はイベントのサービス層。
type Service struct {
	events repository.EventRepository
	users  UserFinder
	linker MeetLinker
	now    func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(events repository.EventRepository, users UserFinder, linker MeetLinker) *Service {
	return &Service{
		events: events,
		users:  users,
		linker: linker,
		now:    time.Now,
	}
}

// Create はイベントを作成する。
// Meetリンクはここで一度だけ発行され、以後の予約全てで共有される。
// 発行できなかった場合は汎用のリンクを使い、作成自体は失敗させない。
func (s *Service) Create(ctx context.Context, ownerID string, in Input) (*model.Event, error) {
	title, duration, err := validate(in)
	if err != nil {
		return nil, err
	}

	owner, err := s.users.FindByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if owner == nil {
		return nil, model.NewUserNotFoundError()
	}

	now := s.now()
	ev := &model.Event{
		ID:              uuid.NewString(),
		UserID:          ownerID,
		Title:           title,
		Description:     in.Description,
		DurationMinutes: duration,
		IsPrivate:       true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.IsPrivate != nil {
		ev.IsPrivate = *in.IsPrivate
	}

	// 1年後に置いた予定からリンクだけを使う
	start := now.AddDate(1, 0, 0)
	link := s.linker.Provision(ctx, owner, calendar.Meeting{
		Summary:     title + " (Permanent Meet Link)",
		Description: in.Description,
		Start:       start,
		End:         start.Add(ev.Duration()),
	})
	ev.MeetLink = link.URL

	if err := s.events.Create(ctx, ev); err != nil {
		return nil, fmt.Errorf("イベントの作成に失敗しました: %w", err)
	}

	slog.Info("イベントを作成しました",
		slog.String("event_id", ev.ID),
		slog.String("user_id", ownerID),
		slog.Bool("meet_link_fallback", link.Fallback),
	)
	return ev, nil
}

// Get はイベントを返す。非公開イベントもリンクを知っていれば予約できるため所有者は問わない。
func (s *Service) Get(ctx context.Context, id string) (*model.Event, error) {
	ev, err := s.events.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if ev == nil {
		return nil, model.NewEventNotFoundError(id)
	}
	return ev, nil
}

// ListMine は所有者の全イベントを返す。
func (s *Service) ListMine(ctx context.Context, ownerID string) ([]*model.Event, error) {
	events, err := s.events.ListByUserID(ctx, ownerID, false)
	if err != nil {
		return nil, fmt.Errorf("イベント一覧の取得に失敗しました: %w", err)
	}
	return events, nil
}

// ListPublic はユーザーの公開イベントを返す。
func (s *Service) ListPublic(ctx context.Context, userID string) ([]*model.Event, error) {
	events, err := s.events.ListByUserID(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("イベント一覧の取得に失敗しました: %w", err)
	}
	return events, nil
}

// Update はタイトル、説明、所要時間、公開設定を更新する。Meetリンクは変更しない。
func (s *Service) Update(ctx context.Context, ownerID, id string, in Input) (*model.Event, error) {
	ev, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	title, duration, err := validate(in)
	if err != nil {
		return nil, err
	}

	ev.Title = title
	ev.Description = in.Description
	ev.DurationMinutes = duration
	if in.IsPrivate != nil {
		ev.IsPrivate = *in.IsPrivate
	}
	ev.UpdatedAt = s.now()

	if err := s.events.Update(ctx, ev); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewEventNotFoundError(id)
		}
		return nil, fmt.Errorf("イベントの更新に失敗しました: %w", err)
	}
	return ev, nil
}

// Delete はイベントを削除する。予約はCASCADE削除される。
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return err
	}

	if err := s.events.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewEventNotFoundError(id)
		}
		return fmt.Errorf("イベントの削除に失敗しました: %w", err)
	}

	slog.Info("イベントを削除しました",
		slog.String("event_id", id),
		slog.String("user_id", ownerID),
	)
	return nil
}

// owned は所有者のイベントを返す。他人のイベントは存在しないものとして扱う。
func (s *Service) owned(ctx context.Context, ownerID, id string) (*model.Event, error) {
	ev, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev.UserID != ownerID {
		return nil, model.NewEventNotFoundError(id)
	}
	return ev, nil
}

func validate(in Input) (string, int, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return "", 0, model.NewInvalidRequestError("タイトルを入力してください")
	}
	duration := in.DurationMinutes
	if duration == 0 {
		duration = model.DefaultEventDurationMinutes
	}
	if duration < 0 {
		return "", 0, model.NewInvalidDurationError(duration)
	}
	return title, duration, nil
}

// Package booking はイベント予約のドメインロジックを提供する。
// 同じイベントの予約同士は閉区間で重ならないことを保証する。
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/schedly/internal/calendar"
	"github.com/hitoshi/schedly/internal/model"
	"github.com/hitoshi/schedly/internal/notify"
	"github.com/hitoshi/schedly/internal/repository"
)

// EventFinder はイベントの取得に使うインターフェース。
type EventFinder interface {
	FindByID(ctx context.Context, id string) (*model.Event, error)
}

// UserFinder はユーザーの取得に使うインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Notifier はコミット後の通知を非同期に発行する。
type Notifier interface {
	Dispatch(ctx context.Context, msg notify.Message)
}

// Recorder は予約に関するメトリクスを記録する。
type Recorder interface {
	RecordBookingCreated()
	RecordBookingConflict()
}

// Input は予約の作成・更新の入力値。
// NameとEmailが空の場合は予約者のユーザー情報を使う。
// MeetLinkは更新時のみ使い、作成時はイベントのリンクを複製する。
type Input struct {
	EventID        string
	Name           string
	Email          string
	AdditionalInfo string
	StartTime      time.Time
	EndTime        time.Time
	MeetLink       string
}

// Service は予約のサービス層。
type Service struct {
	bookings repository.BookingRepository
	events   EventFinder
	users    UserFinder
	notifier Notifier
	recorder Recorder
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(bookings repository.BookingRepository, events EventFinder, users UserFinder, notifier Notifier, recorder Recorder) *Service {
	return &Service{
		bookings: bookings,
		events:   events,
		users:    users,
		notifier: notifier,
		recorder: recorder,
		now:      time.Now,
	}
}

// Create は予約を作成する。
// 同じイベントの既存予約と区間が接する場合も重複とみなしConflictを返す。
// 通知は保存完了後に発行し、その成否は結果に影響しない。
func (s *Service) Create(ctx context.Context, userID string, in Input) (*model.Booking, error) {
	if !in.EndTime.After(in.StartTime) {
		return nil, model.NewInvalidTimeRangeError()
	}

	ev, err := s.events.FindByID(ctx, in.EventID)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if ev == nil {
		return nil, model.NewEventNotFoundError(in.EventID)
	}

	booker, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if booker == nil {
		return nil, model.NewUserNotFoundError()
	}

	meetLink := ev.MeetLink
	if meetLink == "" {
		slog.Warn("イベントにMeetリンクがないため汎用リンクを使用します",
			slog.String("event_id", ev.ID),
		)
		meetLink = calendar.FallbackMeetLink
	}

	now := s.now()
	b := &model.Booking{
		ID:             uuid.NewString(),
		EventID:        ev.ID,
		UserID:         userID,
		Name:           firstNonEmpty(in.Name, booker.DisplayName()),
		Email:          firstNonEmpty(in.Email, booker.Email),
		AdditionalInfo: in.AdditionalInfo,
		StartTime:      in.StartTime,
		EndTime:        in.EndTime,
		MeetLink:       meetLink,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := s.bookings.CreateIfNoConflict(ctx, b)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewEventNotFoundError(ev.ID)
		}
		return nil, fmt.Errorf("予約の作成に失敗しました: %w", err)
	}
	if !created {
		s.recorder.RecordBookingConflict()
		return nil, model.NewBookingConflictError()
	}
	s.recorder.RecordBookingCreated()

	slog.Info("予約を作成しました",
		slog.String("booking_id", b.ID),
		slog.String("event_id", ev.ID),
		slog.String("user_id", userID),
	)

	owner, err := s.users.FindByID(ctx, ev.UserID)
	switch {
	case err != nil:
		slog.Warn("イベント所有者の取得に失敗したため通知を省略します",
			slog.String("booking_id", b.ID),
			slog.String("error", err.Error()),
		)
	case owner == nil:
		slog.Warn("イベント所有者が存在しないため通知を省略します",
			slog.String("booking_id", b.ID),
		)
	default:
		s.notifier.Dispatch(ctx, notify.BookingCreated(b, ev, owner))
	}

	return b, nil
}

// Get は予約を返す。予約者とイベント所有者以外には存在しないものとして扱う。
func (s *Service) Get(ctx context.Context, actorID, id string) (*model.Booking, error) {
	return s.accessible(ctx, actorID, id)
}

// ListMine は予約者として行った予約を開始時刻順で返す。
func (s *Service) ListMine(ctx context.Context, userID string) ([]*model.Booking, error) {
	bookings, err := s.bookings.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("予約一覧の取得に失敗しました: %w", err)
	}
	return bookings, nil
}

// ListMineInRange は [start, end] に完全に含まれる予約を開始時刻順で返す。
func (s *Service) ListMineInRange(ctx context.Context, userID string, start, end time.Time) ([]*model.Booking, error) {
	if end.Before(start) {
		return nil, model.NewInvalidTimeRangeError()
	}
	bookings, err := s.bookings.ListByUserIDInRange(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("予約一覧の取得に失敗しました: %w", err)
	}
	return bookings, nil
}

// ListByEvent はイベントの予約を返す。イベント所有者のみ参照できる。
func (s *Service) ListByEvent(ctx context.Context, actorID, eventID string) ([]*model.Booking, error) {
	ev, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if ev == nil || ev.UserID != actorID {
		return nil, model.NewEventNotFoundError(eventID)
	}

	bookings, err := s.bookings.ListByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("予約一覧の取得に失敗しました: %w", err)
	}
	return bookings, nil
}

// Update は予約者情報、時間帯、Meetリンクを更新する。空の項目は変更しない。
// 時間帯を変更する場合も自身を除く予約との重複を再判定する。
func (s *Service) Update(ctx context.Context, actorID, id string, in Input) (*model.Booking, error) {
	b, err := s.accessible(ctx, actorID, id)
	if err != nil {
		return nil, err
	}

	if !in.StartTime.IsZero() || !in.EndTime.IsZero() {
		start, end := b.StartTime, b.EndTime
		if !in.StartTime.IsZero() {
			start = in.StartTime
		}
		if !in.EndTime.IsZero() {
			end = in.EndTime
		}
		if !end.After(start) {
			return nil, model.NewInvalidTimeRangeError()
		}
		b.StartTime, b.EndTime = start, end
	}
	if in.MeetLink != "" {
		if err := validateMeetLink(in.MeetLink); err != nil {
			return nil, err
		}
		b.MeetLink = in.MeetLink
	}
	b.Name = firstNonEmpty(in.Name, b.Name)
	b.Email = firstNonEmpty(in.Email, b.Email)
	if in.AdditionalInfo != "" {
		b.AdditionalInfo = in.AdditionalInfo
	}
	b.UpdatedAt = s.now()

	updated, err := s.bookings.UpdateIfNoConflict(ctx, b)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewBookingNotFoundError(id)
		}
		return nil, fmt.Errorf("予約の更新に失敗しました: %w", err)
	}
	if !updated {
		s.recorder.RecordBookingConflict()
		return nil, model.NewBookingConflictError()
	}
	return b, nil
}

// Delete は予約を削除する。予約者とイベント所有者が削除できる。
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if _, err := s.accessible(ctx, actorID, id); err != nil {
		return err
	}

	if err := s.bookings.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewBookingNotFoundError(id)
		}
		return fmt.Errorf("予約の削除に失敗しました: %w", err)
	}

	slog.Info("予約を削除しました",
		slog.String("booking_id", id),
		slog.String("user_id", actorID),
	)
	return nil
}

// accessible は予約者またはイベント所有者から見える予約を返す。
func (s *Service) accessible(ctx context.Context, actorID, id string) (*model.Booking, error) {
	b, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("予約の取得に失敗しました: %w", err)
	}
	if b == nil {
		return nil, model.NewBookingNotFoundError(id)
	}
	if b.UserID == actorID {
		return b, nil
	}

	ev, err := s.events.FindByID(ctx, b.EventID)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if ev == nil || ev.UserID != actorID {
		return nil, model.NewBookingNotFoundError(id)
	}
	return b, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// validateMeetLink は会議リンクがhttpまたはhttpsの絶対URLであることを確認する。
func validateMeetLink(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return model.NewInvalidURLError("meetLinkはhttp/httpsの絶対URLのみ")
	}
	return nil
}

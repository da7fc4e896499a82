package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/schedly/internal/model"
	"github.com/hitoshi/schedly/internal/repository"
)

// UserFinder はユーザーの存在確認に使うインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// WindowInput は曜日ごとの時間帯の入力値。時刻は "HH:MM" 形式。
type WindowInput struct {
	Day   string
	Start string
	End   string
}

// Input は空き時間設定の作成・更新の入力値。
type Input struct {
	GapMinutes int
	Days       []WindowInput
}

// Service は空き時間設定のサービス層。
type Service struct {
	repo   repository.AvailabilityRepository
	users  UserFinder
	engine *Engine
	now    func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.AvailabilityRepository, users UserFinder, engine *Engine) *Service {
	return &Service{
		repo:   repo,
		users:  users,
		engine: engine,
		now:    time.Now,
	}
}

// SetClock は現在時刻の取得関数を差し替える。テストで使用する。
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// GenerateSlots はユーザーの空き時間から予約可能枠を生成する。
// 空き時間が未設定のユーザーは空の結果になる。
func (s *Service) GenerateSlots(ctx context.Context, userID string, durationMinutes int) ([]DaySlots, error) {
	if durationMinutes <= 0 {
		return nil, model.NewInvalidDurationError(durationMinutes)
	}

	a, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("空き時間の取得に失敗しました: %w", err)
	}
	if a == nil {
		return []DaySlots{}, nil
	}

	return s.engine.Generate(a, durationMinutes, s.now()), nil
}

// Get はユーザーの空き時間設定を返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.Availability, error) {
	a, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("空き時間の取得に失敗しました: %w", err)
	}
	if a == nil {
		return nil, model.NewAvailabilityNotFoundError()
	}
	return a, nil
}

// Create はユーザーの空き時間設定を作成する。既に設定がある場合はConflictとなる。
func (s *Service) Create(ctx context.Context, userID string, in Input) (*model.Availability, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	existing, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("空き時間の取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewAvailabilityExistsError()
	}

	now := s.now()
	a := &model.Availability{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := applyInput(a, in); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewAvailabilityExistsError()
		}
		return nil, fmt.Errorf("空き時間の作成に失敗しました: %w", err)
	}

	slog.Info("空き時間を作成しました",
		slog.String("user_id", userID),
		slog.Int("windows", len(a.Days)),
	)
	return a, nil
}

// Update は間隔と時間帯を置き換える。時間帯は全件入れ替えとなる。
func (s *Service) Update(ctx context.Context, userID string, in Input) (*model.Availability, error) {
	a, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := applyInput(a, in); err != nil {
		return nil, err
	}
	a.UpdatedAt = s.now()

	if err := s.repo.Replace(ctx, a); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewAvailabilityNotFoundError()
		}
		return nil, fmt.Errorf("空き時間の更新に失敗しました: %w", err)
	}

	slog.Info("空き時間を更新しました",
		slog.String("user_id", userID),
		slog.Int("windows", len(a.Days)),
	)
	return a, nil
}

// Delete はユーザーの空き時間設定を削除する。
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := s.repo.DeleteByUserID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewAvailabilityNotFoundError()
		}
		return fmt.Errorf("空き時間の削除に失敗しました: %w", err)
	}
	return nil
}

// applyInput は入力値を検証し、Availabilityに反映する。
func applyInput(a *model.Availability, in Input) error {
	if in.GapMinutes < 0 {
		return model.NewInvalidAvailabilityError("間隔は0分以上で指定してください")
	}

	days := make([]model.DayAvailability, 0, len(in.Days))
	for _, w := range in.Days {
		day, err := model.ParseDayOfWeek(w.Day)
		if err != nil {
			return model.NewInvalidAvailabilityError(fmt.Sprintf("不明な曜日です: %s", w.Day))
		}
		start, err := model.ParseTimeOfDay(w.Start)
		if err != nil {
			return model.NewInvalidAvailabilityError(fmt.Sprintf("開始時刻が不正です: %s", w.Start))
		}
		end, err := model.ParseTimeOfDay(w.End)
		if err != nil {
			return model.NewInvalidAvailabilityError(fmt.Sprintf("終了時刻が不正です: %s", w.End))
		}
		if start >= end {
			return model.NewInvalidAvailabilityError(fmt.Sprintf("%s の開始時刻は終了時刻より前にしてください", day))
		}
		days = append(days, model.DayAvailability{
			ID:             uuid.NewString(),
			AvailabilityID: a.ID,
			Day:            day,
			Start:          start,
			End:            end,
		})
	}

	a.GapMinutes = in.GapMinutes
	a.Days = days
	return nil
}

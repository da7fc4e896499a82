// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/schedly/internal/model"
	"github.com/hitoshi/schedly/internal/repository"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,30}$`)

// URLValidator はプロフィール画像URLの検証インターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Profile は登録・更新時に受け付けるプロフィール項目。
type Profile struct {
	Name        string
	Username    string
	ImageURL    string
	PhoneNumber string
}

// Service はユーザー管理のサービス層。
// 登録、プロフィール更新、退会のビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	urls     URLValidator
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, urls URLValidator) *Service {
	return &Service{
		userRepo: userRepo,
		urls:     urls,
		now:      time.Now,
	}
}

// Register は検証済みの認証主体からユーザーを登録する。
// 認証主体ID、メールアドレス、ユーザー名のいずれかが既に使われている場合はConflictを返す。
func (s *Service) Register(ctx context.Context, identity *model.Identity, in Profile) (*model.User, error) {
	if identity == nil || identity.Subject == "" {
		return nil, model.NewUnauthorizedError()
	}
	if identity.Email == "" {
		return nil, model.NewInvalidRequestError("メールアドレスが確認できないアカウントは登録できません")
	}

	existing, err := s.userRepo.FindByFirebaseUID(ctx, identity.Subject)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewUserExistsError()
	}
	existing, err = s.userRepo.FindByEmail(ctx, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewUserExistsError()
	}

	if in.Name == "" {
		in.Name = identity.Name
	}
	now := s.now()
	user := &model.User{
		ID:          uuid.NewString(),
		FirebaseUID: identity.Subject,
		Email:       identity.Email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.applyProfile(ctx, user, in); err != nil {
		return nil, err
	}
	if user.ImageURL == "" && identity.Picture != "" && s.urls.ValidateURL(identity.Picture) == nil {
		user.ImageURL = identity.Picture
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewUserExistsError()
		}
		return nil, fmt.Errorf("ユーザーの登録に失敗しました: %w", err)
	}

	slog.Info("ユーザーを登録しました",
		slog.String("user_id", user.ID),
	)
	return user, nil
}

// Resolve は認証主体IDから登録済みユーザーを返す。未登録の場合はRegistrationRequiredを返す。
func (s *Service) Resolve(ctx context.Context, subject string) (*model.User, error) {
	user, err := s.userRepo.FindByFirebaseUID(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewRegistrationRequiredError()
	}
	return user, nil
}

// Get は指定IDのユーザーを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// GetByUsername はユーザー名でユーザーを返す。
func (s *Service) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateProfile は名前、ユーザー名、画像URL、電話番号を更新する。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in Profile) (*model.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.applyProfile(ctx, user, in); err != nil {
		return nil, err
	}
	user.UpdatedAt = s.now()

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewUsernameTakenError(user.Username)
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// イベント、予約、空き時間、つながり、ミーティングリクエストはCASCADE削除される。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)
	return nil
}

// applyProfile は入力を検証してuserに反映する。ユーザー名は他のユーザーと重複できない。
func (s *Service) applyProfile(ctx context.Context, user *model.User, in Profile) error {
	username := strings.TrimSpace(in.Username)
	if username != "" {
		if !usernamePattern.MatchString(username) {
			return model.NewInvalidRequestError("ユーザー名は3〜30文字の英数字と _ . - で入力してください")
		}
		if username != user.Username {
			other, err := s.userRepo.FindByUsername(ctx, username)
			if err != nil {
				return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
			}
			if other != nil && other.ID != user.ID {
				return model.NewUsernameTakenError(username)
			}
		}
	}

	imageURL := strings.TrimSpace(in.ImageURL)
	if imageURL != "" {
		if err := s.urls.ValidateURL(imageURL); err != nil {
			return model.NewInvalidURLError(err.Error())
		}
	}

	user.Name = strings.TrimSpace(in.Name)
	user.Username = username
	user.ImageURL = imageURL
	user.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	return nil
}

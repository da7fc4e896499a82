// Package auth はIDトークンによる認証主体の検証と、登録済みユーザーの解決を提供する。
package auth

import (
	"context"

	"github.com/hitoshi/schedly/internal/model"
)

// IdentityVerifier はIDトークンの検証インターフェース。
type IdentityVerifier interface {
	Verify(ctx context.Context, rawToken string) (*model.Identity, error)
}

// UserResolver は認証主体IDから登録済みユーザーを解決する。
type UserResolver interface {
	Resolve(ctx context.Context, subject string) (*model.User, error)
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	verifier IdentityVerifier
	users    UserResolver
}

// NewService はServiceを生成する。
func NewService(verifier IdentityVerifier, users UserResolver) *Service {
	return &Service{verifier: verifier, users: users}
}

// VerifyToken はIDトークンを検証して認証主体を返す。ユーザー登録の有無は問わない。
func (s *Service) VerifyToken(ctx context.Context, rawToken string) (*model.Identity, error) {
	return s.verifier.Verify(ctx, rawToken)
}

// Authenticate はIDトークンを検証し、登録済みユーザーを返す。
// 未登録の場合は認証主体とRegistrationRequiredエラーを返す。
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*model.Identity, *model.User, error) {
	identity, err := s.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.Resolve(ctx, identity.Subject)
	if err != nil {
		return identity, nil, err
	}
	return identity, user, nil
}

// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/medivox/internal/model"
	"github.com/hitoshi/medivox/internal/repository"
)

// UserService はメールアドレスベースのユーザー解決を提供するサービス層。
type UserService struct {
	userRepo repository.UserRepository
}

// NewUserService はUserServiceの新しいインスタンスを生成する。
func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// GetOrCreateByEmail はメールアドレスでユーザーを検索し、存在しない場合は作成して返す。
// メールアドレスは小文字へ正規化してから照合する。
func (s *UserService) GetOrCreateByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, model.NewValidationError("emailは必須です")
	}
	if !strings.Contains(email, "@") {
		return nil, model.NewValidationError("emailの形式が不正です")
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	u := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		CreatedAt: time.Now(),
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	return u, nil
}

// Package template はカルテ用ノートテンプレートのドメインロジックを提供する。
package template

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/medivox/internal/model"
	"github.com/hitoshi/medivox/internal/repository"
)

// TemplateService はテンプレートの一覧取得と既定テンプレート投入のサービス層。
type TemplateService struct {
	templateRepo repository.TemplateRepository
}

// NewTemplateService はTemplateServiceの新しいインスタンスを生成する。
func NewTemplateService(templateRepo repository.TemplateRepository) *TemplateService {
	return &TemplateService{templateRepo: templateRepo}
}

// List は指定ユーザー所有およびグローバル既定のテンプレート一覧を返す。
func (s *TemplateService) List(ctx context.Context, userID string) ([]*model.Template, error) {
	if userID == "" {
		return nil, model.NewValidationError("userIdは必須です")
	}
	templates, err := s.templateRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("テンプレート一覧の取得に失敗しました: %w", err)
	}
	return templates, nil
}

// EnsureDefaults はカタログが空の場合にグローバル既定テンプレートを投入する。
// 起動時に1回呼ばれる。再実行しても重複投入しない（冪等）。
func (s *TemplateService) EnsureDefaults(ctx context.Context) error {
	count, err := s.templateRepo.CountAll(ctx)
	if err != nil {
		return fmt.Errorf("テンプレート数の確認に失敗しました: %w", err)
	}
	if count > 0 {
		return nil
	}

	t := &model.Template{
		ID:         uuid.New().String(),
		TemplateID: model.DefaultTemplateID,
		Name:       model.DefaultTemplateName,
		CreatedAt:  time.Now(),
	}
	if err := s.templateRepo.Insert(ctx, t); err != nil {
		return fmt.Errorf("既定テンプレートの投入に失敗しました: %w", err)
	}

	slog.Info("default template seeded", "templateID", t.TemplateID)
	return nil
}

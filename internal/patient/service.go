// Package patient は患者管理のドメインロジックを提供する。
package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/medivox/internal/model"
	"github.com/hitoshi/medivox/internal/repository"
	"github.com/hitoshi/medivox/internal/security"
)

// PatientService は患者の一覧・登録・取得・削除のサービス層。
type PatientService struct {
	patientRepo repository.PatientRepository
	sanitizer   security.NameSanitizerService
}

// NewPatientService はPatientServiceの新しいインスタンスを生成する。
func NewPatientService(patientRepo repository.PatientRepository, sanitizer security.NameSanitizerService) *PatientService {
	return &PatientService{
		patientRepo: patientRepo,
		sanitizer:   sanitizer,
	}
}

// List は指定ユーザーの患者一覧を作成日時の降順で返す。
func (s *PatientService) List(ctx context.Context, userID string) ([]*model.Patient, error) {
	if userID == "" {
		return nil, model.NewValidationError("userIdは必須です")
	}
	patients, err := s.patientRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("患者一覧の取得に失敗しました: %w", err)
	}
	return patients, nil
}

// Create は患者を登録する。表示名はサニタイズして保存する。
func (s *PatientService) Create(ctx context.Context, userID, name, pronouns string) (*model.Patient, error) {
	if userID == "" {
		return nil, model.NewValidationError("userIdは必須です")
	}
	name = s.sanitizer.Sanitize(name)
	if name == "" {
		return nil, model.NewValidationError("患者名は必須です")
	}

	p := &model.Patient{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		Pronouns:  pronouns,
		CreatedAt: time.Now(),
	}

	if err := s.patientRepo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("患者の登録に失敗しました: %w", err)
	}

	return p, nil
}

// Get は指定IDの患者を取得する。
func (s *PatientService) Get(ctx context.Context, patientID string) (*model.Patient, error) {
	p, err := s.patientRepo.FindByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("患者の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewPatientNotFoundError(patientID)
	}
	return p, nil
}

// Delete は指定IDの患者を削除する。
// 患者に紐づくセッションやチャンクは削除しない（履歴として残す）。
func (s *PatientService) Delete(ctx context.Context, patientID string) error {
	deleted, err := s.patientRepo.DeleteByID(ctx, patientID)
	if err != nil {
		return fmt.Errorf("患者の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewPatientNotFoundError(patientID)
	}
	return nil
}

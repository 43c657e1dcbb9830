package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/medivox/internal/model"
)

// PostgresPatientRepo はPostgreSQLを使用した患者リポジトリ。
type PostgresPatientRepo struct {
	db *sql.DB
}

// NewPostgresPatientRepo はPostgresPatientRepoを生成する。
func NewPostgresPatientRepo(db *sql.DB) *PostgresPatientRepo {
	return &PostgresPatientRepo{db: db}
}

// ListByUserID は指定ユーザーの患者一覧を作成日時の降順で返す。
func (r *PostgresPatientRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Patient, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, pronouns, created_at
		 FROM patients
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	defer rows.Close()

	var patients []*model.Patient
	for rows.Next() {
		p := &model.Patient{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Pronouns, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patients: %w", err)
	}

	return patients, nil
}

// Create は患者を作成する。
func (r *PostgresPatientRepo) Create(ctx context.Context, patient *model.Patient) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO patients (id, user_id, name, pronouns, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		patient.ID, patient.UserID, patient.Name, patient.Pronouns, patient.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert patient: %w", err)
	}
	return nil
}

// FindByID は指定IDの患者を取得する。見つからない場合はnilを返す。
func (r *PostgresPatientRepo) FindByID(ctx context.Context, id string) (*model.Patient, error) {
	p := &model.Patient{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, pronouns, created_at FROM patients WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.Pronouns, &p.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find patient by ID: %w", err)
	}

	return p, nil
}

// DeleteByID は指定IDの患者を削除する。対象行が存在しない場合はfalseを返す。
// セッションやチャンクへのカスケード削除は行わない。
func (r *PostgresPatientRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM patients WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete patient: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ PatientRepository = (*PostgresPatientRepo)(nil)

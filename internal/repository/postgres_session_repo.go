package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/medivox/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用した録音セッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, patient_id, user_id, patient_name, status, start_time, end_time, template_id, total_chunks_client)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		session.ID, session.PatientID, session.UserID, session.PatientName,
		string(session.Status), session.StartTime, session.EndTime,
		session.TemplateID, session.TotalChunksClient,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	s := &model.Session{}
	var status string
	var endTime sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, patient_id, user_id, patient_name, status, start_time, end_time, template_id, total_chunks_client
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.PatientID, &s.UserID, &s.PatientName, &status, &s.StartTime, &endTime, &s.TemplateID, &s.TotalChunksClient)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session by ID: %w", err)
	}

	s.Status = model.SessionStatus(status)
	if endTime.Valid {
		s.EndTime = &endTime.Time
	}

	return s, nil
}

// ListByPatientID は指定患者のセッション一覧を開始時刻の降順で返す。
func (r *PostgresSessionRepo) ListByPatientID(ctx context.Context, patientID string) ([]*model.Session, error) {
	return r.list(ctx, `patient_id`, patientID)
}

// ListByUserID は指定ユーザーのセッション一覧を開始時刻の降順で返す。
func (r *PostgresSessionRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Session, error) {
	return r.list(ctx, `user_id`, userID)
}

// list は指定カラムの値でセッションを検索する共通実装。
func (r *PostgresSessionRepo) list(ctx context.Context, column, value string) ([]*model.Session, error) {
	query := fmt.Sprintf(
		`SELECT id, patient_id, user_id, patient_name, status, start_time, end_time, template_id, total_chunks_client
		 FROM sessions
		 WHERE %s = $1
		 ORDER BY start_time DESC`, column)

	rows, err := r.db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s := &model.Session{}
		var status string
		var endTime sql.NullTime
		if err := rows.Scan(&s.ID, &s.PatientID, &s.UserID, &s.PatientName, &status, &s.StartTime, &endTime, &s.TemplateID, &s.TotalChunksClient); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.Status = model.SessionStatus(status)
		if endTime.Valid {
			s.EndTime = &endTime.Time
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}

// Complete はセッションをcompletedに遷移させ、終了時刻を記録する。
// 重複通知による再実行は終了時刻の上書きとして許容する。
func (r *PostgresSessionRepo) Complete(ctx context.Context, id string, endTime time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = $1, end_time = $2 WHERE id = $3`,
		string(model.SessionStatusCompleted), endTime, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// UpdateTotalChunks はクライアント申告のチャンク総数を記録する。
func (r *PostgresSessionRepo) UpdateTotalChunks(ctx context.Context, id string, total int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET total_chunks_client = $1 WHERE id = $2`,
		total, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update total chunks: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/medivox/internal/model"
)

// PostgresTemplateRepo はPostgreSQLを使用したノートテンプレートリポジトリ。
type PostgresTemplateRepo struct {
	db *sql.DB
}

// NewPostgresTemplateRepo はPostgresTemplateRepoを生成する。
func NewPostgresTemplateRepo(db *sql.DB) *PostgresTemplateRepo {
	return &PostgresTemplateRepo{db: db}
}

// ListForUser は指定ユーザー所有およびグローバル既定のテンプレート一覧を返す。
// user_idがNULLの行はグローバル既定として全ユーザーから参照できる。
func (r *PostgresTemplateRepo) ListForUser(ctx context.Context, userID string) ([]*model.Template, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, template_id, name, user_id, created_at
		 FROM templates
		 WHERE user_id = $1 OR user_id IS NULL
		 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*model.Template
	for rows.Next() {
		t := &model.Template{}
		var owner sql.NullString
		if err := rows.Scan(&t.ID, &t.TemplateID, &t.Name, &owner, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		if owner.Valid {
			t.UserID = owner.String
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate templates: %w", err)
	}

	return templates, nil
}

// Insert はテンプレートを作成する。UserIDが空の場合はNULL（グローバル既定）として保存する。
func (r *PostgresTemplateRepo) Insert(ctx context.Context, template *model.Template) error {
	var owner sql.NullString
	if template.UserID != "" {
		owner = sql.NullString{String: template.UserID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO templates (id, template_id, name, user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (template_id) DO NOTHING`,
		template.ID, template.TemplateID, template.Name, owner, template.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}
	return nil
}

// CountAll はテンプレートの総数を返す。
func (r *PostgresTemplateRepo) CountAll(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count templates: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ TemplateRepository = (*PostgresTemplateRepo)(nil)

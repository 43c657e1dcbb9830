package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/medivox/internal/model"
)

// PostgresChunkRepo はPostgreSQLを使用した音声チャンクリポジトリ。
type PostgresChunkRepo struct {
	db *sql.DB
}

// NewPostgresChunkRepo はPostgresChunkRepoを生成する。
func NewPostgresChunkRepo(db *sql.DB) *PostgresChunkRepo {
	return &PostgresChunkRepo{db: db}
}

// Upsert は(session_id, chunk_index)をキーにチャンク行を作成または更新する。
// presign時の楽観的な事前作成行をnotify時の確定値で上書きする。
// 同時実行時はlast-writer-winsとなる。
func (r *PostgresChunkRepo) Upsert(ctx context.Context, chunk *model.Chunk) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audio_chunks (id, session_id, chunk_index, storage_path, uploaded, public_url, mime_type, is_last, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (session_id, chunk_index) DO UPDATE SET
			storage_path = EXCLUDED.storage_path,
			uploaded     = EXCLUDED.uploaded,
			public_url   = EXCLUDED.public_url,
			mime_type    = EXCLUDED.mime_type,
			is_last      = EXCLUDED.is_last`,
		chunk.ID, chunk.SessionID, chunk.ChunkIndex, chunk.StoragePath,
		chunk.Uploaded, chunk.PublicURL, chunk.MimeType, chunk.IsLast, chunk.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}
	return nil
}

// FindBySessionAndIndex は指定セッション・インデックスのチャンクを取得する。
// 見つからない場合はnilを返す。
func (r *PostgresChunkRepo) FindBySessionAndIndex(ctx context.Context, sessionID string, chunkIndex int) (*model.Chunk, error) {
	c := &model.Chunk{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, session_id, chunk_index, storage_path, uploaded, public_url, mime_type, is_last, created_at
		 FROM audio_chunks
		 WHERE session_id = $1 AND chunk_index = $2`,
		sessionID, chunkIndex,
	).Scan(&c.ID, &c.SessionID, &c.ChunkIndex, &c.StoragePath, &c.Uploaded, &c.PublicURL, &c.MimeType, &c.IsLast, &c.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find chunk: %w", err)
	}

	return c, nil
}

// ListBySessionID は指定セッションのチャンク一覧をインデックスの昇順で返す。
// チャンクインデックスは連続している保証はない。
func (r *PostgresChunkRepo) ListBySessionID(ctx context.Context, sessionID string) ([]*model.Chunk, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, chunk_index, storage_path, uploaded, public_url, mime_type, is_last, created_at
		 FROM audio_chunks
		 WHERE session_id = $1
		 ORDER BY chunk_index ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		c := &model.Chunk{}
		if err := rows.Scan(&c.ID, &c.SessionID, &c.ChunkIndex, &c.StoragePath, &c.Uploaded, &c.PublicURL, &c.MimeType, &c.IsLast, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	return chunks, nil
}

// compile-time interface check
var _ ChunkRepository = (*PostgresChunkRepo)(nil)

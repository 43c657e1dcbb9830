// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/medivox/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByEmail は指定メールアドレスのユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error
}

// PatientRepository は患者データの永続化インターフェース。
type PatientRepository interface {
	// ListByUserID は指定ユーザーの患者一覧を作成日時の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Patient, error)

	// Create は患者を作成する。
	Create(ctx context.Context, patient *model.Patient) error

	// FindByID は指定IDの患者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Patient, error)

	// DeleteByID は指定IDの患者を削除する。
	// セッションやチャンクへのカスケード削除は行わない。
	// 対象行が存在しない場合はfalseを返す。
	DeleteByID(ctx context.Context, id string) (bool, error)
}

// SessionRepository は録音セッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// ListByPatientID は指定患者のセッション一覧を開始時刻の降順で返す。
	ListByPatientID(ctx context.Context, patientID string) ([]*model.Session, error)

	// ListByUserID は指定ユーザーのセッション一覧を開始時刻の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Session, error)

	// Complete はセッションをcompletedに遷移させ、終了時刻を記録する。
	// 重複通知による再実行は終了時刻の上書きとして許容する。
	Complete(ctx context.Context, id string, endTime time.Time) error

	// UpdateTotalChunks はクライアント申告のチャンク総数を記録する。参考値であり完了判定には使わない。
	UpdateTotalChunks(ctx context.Context, id string, total int) error
}

// ChunkRepository は音声チャンクメタデータの永続化インターフェース。
type ChunkRepository interface {
	// Upsert は(session_id, chunk_index)をキーにチャンク行を作成または更新する。
	// 同時実行時はlast-writer-winsとなる。
	Upsert(ctx context.Context, chunk *model.Chunk) error

	// FindBySessionAndIndex は指定セッション・インデックスのチャンクを取得する。
	// 見つからない場合はnilを返す。
	FindBySessionAndIndex(ctx context.Context, sessionID string, chunkIndex int) (*model.Chunk, error)

	// ListBySessionID は指定セッションのチャンク一覧をインデックスの昇順で返す。
	ListBySessionID(ctx context.Context, sessionID string) ([]*model.Chunk, error)
}

// TemplateRepository はノートテンプレートの永続化インターフェース。
type TemplateRepository interface {
	// ListForUser は指定ユーザー所有およびグローバル既定のテンプレート一覧を返す。
	ListForUser(ctx context.Context, userID string) ([]*model.Template, error)

	// Insert はテンプレートを作成する。
	Insert(ctx context.Context, template *model.Template) error

	// CountAll はテンプレートの総数を返す。既定テンプレート投入の判定に使う。
	CountAll(ctx context.Context) (int, error)
}

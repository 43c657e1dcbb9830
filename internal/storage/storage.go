// Package storage はオブジェクトストレージ連携とローカルリレーキャッシュを提供する。
package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// UploadTarget はクライアントがチャンクをアップロードする先を表す。
// 署名付きURLまたは同一オリジンのPUTエンドポイントのいずれかになる。
type UploadTarget struct {
	UploadURL string // クライアントがPUTするURL
	ObjectKey string // ストレージ上のオブジェクトキー
	PublicURL string // 取得用URL。事前に解決できない場合は空
}

// BlobStore はオブジェクトストレージへの操作インターフェース。
// S3互換ストレージ（AWS S3 / MinIO）を想定する。
type BlobStore interface {
	// CreateUploadTarget は指定キーへの時限付きアップロード先を発行する。
	CreateUploadTarget(ctx context.Context, key, contentType string, expiry time.Duration) (*UploadTarget, error)

	// Upload はバイト列を永続ストレージへ書き込み、取得用URLを返す。
	// リレーモードでnotify時に呼ばれる。バケット未作成の場合は1回だけ作成を試みて再実行する。
	Upload(ctx context.Context, key, contentType string, r io.ReadSeeker) (string, error)

	// ResolveURL は指定キーの取得用URLを返す。
	// バケットが公開の場合は決定的な公開URL、非公開の場合は時限付き署名URLを返す。
	// 署名URLは有効期限を過ぎるとキャッシュできない。
	ResolveURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// EnsureBucketExists はバケットを冪等に作成する。
	EnsureBucketExists(ctx context.Context) error
}

// ObjectKeyForChunk は(セッションID, チャンクインデックス)から決定的なオブジェクトキーを導出する。
// 同じ組み合わせに対しては常に同じキーを返す（再presignが冪等になる）。
func ObjectKeyForChunk(sessionID string, chunkIndex int) string {
	return fmt.Sprintf("sessions/%s/chunk_%d.m4a", sessionID, chunkIndex)
}

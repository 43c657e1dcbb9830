// Package cleanup はリレーファイルの自動削除ジョブを提供する。
// notifyが届かず放置されたチャンクのローカルキャッシュを、
// 保持期間（デフォルト24時間）超過で日次バッチ削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// defaultInterval はスイープの実行間隔。
const defaultInterval = 24 * time.Hour

// CleanupJob は保持期間を超過したリレーファイルの自動削除ジョブ。
// 冪等な削除処理を保証する。正常フローではnotify時にファイルが消えるため、
// このジョブが拾うのは中断されたアップロードの残骸のみ。
type CleanupJob struct {
	dir    string
	logger *slog.Logger
	TTL    time.Duration // リレーファイルの保持期間
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(dir string, ttl time.Duration, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		dir:    dir,
		logger: logger,
		TTL:    ttl,
	}
}

// Run は保持期間を超過したリレーファイルを削除する。
// 最終更新時刻がTTLより古いファイルを削除し、空になったセッションディレクトリも取り除く。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := start.Add(-j.TTL)

	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			// キャッシュディレクトリ未作成 = 削除対象なし
			return nil
		}
		return fmt.Errorf("リレーディレクトリの走査に失敗: %w", err)
	}

	var deletedCount int64
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.IsDir() {
			continue
		}

		sessionDir := filepath.Join(j.dir, entry.Name())
		n, err := j.sweepSessionDir(sessionDir, cutoff)
		if err != nil {
			j.logger.Warn("failed to sweep session dir",
				slog.String("dir", sessionDir),
				slog.String("error", err.Error()),
			)
			continue
		}
		deletedCount += n
	}

	j.logger.Info("relay cleanup completed",
		slog.Int64("deleted_count", deletedCount),
		slog.Duration("ttl", j.TTL),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は停止されるまで定期的にRunを実行する。serveモードのゴルーチンとして起動される。
func (j *CleanupJob) Start(ctx context.Context) {
	ticker := time.NewTicker(defaultInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("relay cleanup failed", slog.String("error", err.Error()))
			}
		case <-ctx.Done():
			return
		}
	}
}

// sweepSessionDir はセッションディレクトリ内の期限切れファイルを削除し、削除数を返す。
// ディレクトリが空になった場合はディレクトリ自体も削除する。
func (j *CleanupJob) sweepSessionDir(dir string, cutoff time.Time) (int64, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	var deleted int64
	remaining := 0
	for _, f := range files {
		info, err := f.Info()
		if err != nil {
			remaining++
			continue
		}
		if info.ModTime().After(cutoff) {
			remaining++
			continue
		}
		if err := os.Remove(filepath.Join(dir, f.Name())); err != nil {
			remaining++
			continue
		}
		deleted++
	}

	if remaining == 0 {
		// 空ディレクトリの削除失敗は次回のスイープに任せる
		_ = os.Remove(dir)
	}

	return deleted, nil
}

package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// RelayCache はリレーモードで受信したチャンクバイトの一時置き場。
// (セッションID, チャンクインデックス)をキーにローカルファイルへ保存し、
// notify時に永続ストレージへ押し出した後に削除される。
type RelayCache struct {
	dir string
}

// NewRelayCache はRelayCacheを生成する。ディレクトリは保存時に作成される。
func NewRelayCache(dir string) *RelayCache {
	return &RelayCache{dir: dir}
}

// Dir はキャッシュのルートディレクトリを返す。
func (c *RelayCache) Dir() string {
	return c.dir
}

// Store はチャンクバイトをローカルファイルへ書き込む。
// 同じキーへの再保存は前回のバイトを上書きする。
func (c *RelayCache) Store(sessionID string, chunkIndex int, r io.Reader) (int64, error) {
	path := c.path(sessionID, chunkIndex)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create relay directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create relay file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		return 0, fmt.Errorf("failed to write relay file: %w", err)
	}

	return n, nil
}

// Open は保存済みチャンクのファイルを開く。
// リレーステップが実行されていない場合はos.ErrNotExistをラップしたエラーを返す。
func (c *RelayCache) Open(sessionID string, chunkIndex int) (*os.File, error) {
	f, err := os.Open(c.path(sessionID, chunkIndex))
	if err != nil {
		return nil, fmt.Errorf("failed to open relay file: %w", err)
	}
	return f, nil
}

// Remove は保存済みチャンクのファイルを削除する。存在しない場合もエラーにしない。
func (c *RelayCache) Remove(sessionID string, chunkIndex int) error {
	err := os.Remove(c.path(sessionID, chunkIndex))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove relay file: %w", err)
	}
	return nil
}

// path はチャンクの保存先パスを返す。
// セッションIDはパストラバーサルを防ぐためベース名のみを使う。
func (c *RelayCache) path(sessionID string, chunkIndex int) string {
	return filepath.Join(c.dir, filepath.Base(sessionID), fmt.Sprintf("chunk_%d", chunkIndex))
}

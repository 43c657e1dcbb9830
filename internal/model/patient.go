package model

import "time"

// Patient は診察対象の患者を表す。
// UserIDは外部認証基盤のユーザーIDであり、外部キーではない。
type Patient struct {
	ID        string
	UserID    string
	Name      string
	Pronouns  string // 任意項目。未指定の場合は空文字列
	CreatedAt time.Time
}

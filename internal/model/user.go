// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 外部認証基盤のメールアドレスから初回参照時に遅延作成される。
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

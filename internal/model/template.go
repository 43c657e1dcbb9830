package model

import "time"

// DefaultTemplateID はカタログが空の場合に投入されるグローバル既定テンプレートのキー。
const DefaultTemplateID = "new_patient_visit"

// DefaultTemplateName はグローバル既定テンプレートの表示名。
const DefaultTemplateName = "New Patient Visit"

// Template はカルテ用ノートテンプレートを表す。
// UserIDが空のテンプレートはグローバル既定として全ユーザーから参照できる。
type Template struct {
	ID         string
	TemplateID string // クライアントに公開する文字列キー
	Name       string
	UserID     string // 空 = グローバル既定
	CreatedAt  time.Time
}

// IsGlobal はグローバル既定テンプレートかどうかを返す。
func (t *Template) IsGlobal() bool {
	return t.UserID == ""
}

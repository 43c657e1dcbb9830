package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, upload, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodePatientNotFound  = "PATIENT_NOT_FOUND"
	ErrCodeSessionNotFound  = "SESSION_NOT_FOUND"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeUploadFailed     = "UPLOAD_FAILED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
)

// NewPatientNotFoundError は患者未検出エラーを生成する。
func NewPatientNotFoundError(patientID string) *APIError {
	return &APIError{
		Code:     ErrCodePatientNotFound,
		Message:  fmt.Sprintf("指定された患者が見つかりません: %s", patientID),
		Category: "validation",
		Action:   "患者IDを確認してください。",
	}
}

// NewSessionNotFoundError はセッション未検出エラーを生成する。
func NewSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("指定されたセッションが見つかりません: %s", sessionID),
		Category: "validation",
		Action:   "セッションIDを確認してください。",
	}
}

// NewValidationError は必須項目欠落などの入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認して再度お試しください。",
	}
}

// NewUploadError はストレージ連携の失敗やリレーバイト欠落のエラーを生成する。
func NewUploadError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUploadFailed,
		Message:  fmt.Sprintf("チャンクのアップロード処理に失敗しました: %s", reason),
		Category: "upload",
		Action:   "しばらく待ってから該当チャンクを再アップロードしてください。",
	}
}

// NewUnauthorizedError は認証情報欠落のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authorizationヘッダーが不正または未設定です。",
		Category: "auth",
		Action:   "Bearerトークンを付与して再度お試しください。",
	}
}

// NewForbiddenError はトークン不一致のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "アクセストークンが一致しません。",
		Category: "auth",
		Action:   "正しいAPIトークンを設定してください。",
	}
}

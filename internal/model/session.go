package model

import "time"

// SessionStatus は録音セッションの状態を表す。
type SessionStatus string

const (
	// SessionStatusRecording は録音中（チャンク受付中）を示す。
	SessionStatusRecording SessionStatus = "recording"
	// SessionStatusCompleted は最終チャンク通知により完了したことを示す。
	SessionStatusCompleted SessionStatus = "completed"
)

// Session は1回の診察録音セッションを表す。
// IDは "session_" プレフィックス付きの不透明なランダムトークン。
type Session struct {
	ID                string
	PatientID         string
	UserID            string
	PatientName       string // 作成時点の患者表示名のスナップショット
	Status            SessionStatus
	StartTime         time.Time
	EndTime           *time.Time
	TemplateID        string // 任意項目。未指定の場合は空文字列
	TotalChunksClient int    // クライアント申告のチャンク総数（参考値）
}

// Chunk はセッションに属するアップロード済み音声チャンクのメタデータを表す。
// (SessionID, ChunkIndex) の組み合わせで一意。
type Chunk struct {
	ID          string
	SessionID   string
	ChunkIndex  int
	StoragePath string // オブジェクトストレージ上のキー
	Uploaded    bool   // notify受信でfalse→trueに遷移する
	PublicURL   string
	MimeType    string
	IsLast      bool
	CreatedAt   time.Time
}

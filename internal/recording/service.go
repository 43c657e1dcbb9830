// Package recording は診察録音セッションとチャンクアップロード調整のドメインロジックを提供する。
//
// アップロードは2段階プロトコルで進む:
//  1. presign: クライアントがチャンクのアップロード先URLを要求する
//  2. notify:  クライアントがアップロード完了を通知し、メタデータが確定する
//
// デプロイモードにより1段目の返すURLが変わる。relayモードでは同一オリジンの
// PUTエンドポイントを返してバックエンドがバイトを中継し、presignモードでは
// ストレージの署名付きURLを返してクライアントが直接アップロードする。
package recording

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/medivox/internal/config"
	"github.com/hitoshi/medivox/internal/model"
	"github.com/hitoshi/medivox/internal/repository"
	"github.com/hitoshi/medivox/internal/storage"
)

// defaultMimeType はMIMEタイプ未指定時に採用する値。録音クライアントはm4aを送る。
const defaultMimeType = "audio/mp4"

// Collector はアップロードフローが記録するメトリクスのインターフェース。
type Collector interface {
	IncPresign()
	IncChunkUpload()
	IncUploadFail()
	IncSessionCompleted()
	ObserveUploadPushLatency(seconds float64)
}

// RecordingService はセッション管理とチャンクアップロード調整のサービス層。
type RecordingService struct {
	sessionRepo repository.SessionRepository
	chunkRepo   repository.ChunkRepository
	patientRepo repository.PatientRepository
	store       storage.BlobStore
	relay       *storage.RelayCache
	collector   Collector

	uploadMode    config.UploadMode
	baseURL       string
	presignExpiry time.Duration
	maxChunkSize  int64
}

// NewRecordingService はRecordingServiceの新しいインスタンスを生成する。
// relayはpresignモードではnilでよい。
func NewRecordingService(
	sessionRepo repository.SessionRepository,
	chunkRepo repository.ChunkRepository,
	patientRepo repository.PatientRepository,
	store storage.BlobStore,
	relay *storage.RelayCache,
	collector Collector,
	cfg *config.Config,
) *RecordingService {
	return &RecordingService{
		sessionRepo:   sessionRepo,
		chunkRepo:     chunkRepo,
		patientRepo:   patientRepo,
		store:         store,
		relay:         relay,
		collector:     collector,
		uploadMode:    cfg.UploadMode,
		baseURL:       cfg.BaseURL,
		presignExpiry: cfg.PresignExpiry,
		maxChunkSize:  cfg.MaxChunkSize,
	}
}

// CreateSessionParams はセッション作成の入力を表す。
type CreateSessionParams struct {
	UserID     string
	PatientID  string
	TemplateID string     // 任意
	StartTime  *time.Time // 任意。nilの場合はサーバー時刻
}

// CreateSession は録音セッションを開始する。
// 患者が存在しない場合はPATIENT_NOT_FOUNDを返す。
// 作成時点の患者表示名をセッションへスナップショットとして保存する。
func (s *RecordingService) CreateSession(ctx context.Context, params CreateSessionParams) (*model.Session, error) {
	if params.UserID == "" {
		return nil, model.NewValidationError("userIdは必須です")
	}
	if params.PatientID == "" {
		return nil, model.NewValidationError("patientIdは必須です")
	}

	patient, err := s.patientRepo.FindByID(ctx, params.PatientID)
	if err != nil {
		return nil, fmt.Errorf("患者の確認に失敗しました: %w", err)
	}
	if patient == nil {
		return nil, model.NewPatientNotFoundError(params.PatientID)
	}

	startTime := time.Now()
	if params.StartTime != nil {
		startTime = *params.StartTime
	}

	session := &model.Session{
		ID:          newSessionID(),
		PatientID:   patient.ID,
		UserID:      params.UserID,
		PatientName: patient.Name,
		Status:      model.SessionStatusRecording,
		StartTime:   startTime,
		TemplateID:  params.TemplateID,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}

	slog.Info("session started", "sessionID", session.ID, "patientID", patient.ID)
	return session, nil
}

// ListByPatient は指定患者のセッション一覧を開始時刻の降順で返す。
func (s *RecordingService) ListByPatient(ctx context.Context, patientID string) ([]*model.Session, error) {
	if patientID == "" {
		return nil, model.NewValidationError("patientIdは必須です")
	}
	sessions, err := s.sessionRepo.ListByPatientID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("セッション一覧の取得に失敗しました: %w", err)
	}
	return sessions, nil
}

// ListByUser は指定ユーザーのセッション一覧を開始時刻の降順で返す。
func (s *RecordingService) ListByUser(ctx context.Context, userID string) ([]*model.Session, error) {
	if userID == "" {
		return nil, model.NewValidationError("userIdは必須です")
	}
	sessions, err := s.sessionRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("セッション一覧の取得に失敗しました: %w", err)
	}
	return sessions, nil
}

// GetSession はセッションとそのチャンク一覧を取得する。
func (s *RecordingService) GetSession(ctx context.Context, sessionID string) (*model.Session, []*model.Chunk, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if session == nil {
		return nil, nil, model.NewSessionNotFoundError(sessionID)
	}

	chunks, err := s.chunkRepo.ListBySessionID(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("チャンク一覧の取得に失敗しました: %w", err)
	}

	return session, chunks, nil
}

// PresignParams はアップロード先発行の入力を表す。
type PresignParams struct {
	SessionID  string
	ChunkIndex int
	MimeType   string // 任意。空の場合はaudio/mp4
	IsLast     bool
}

// PresignResult はアップロード先発行の結果を表す。
type PresignResult struct {
	UploadURL   string
	StoragePath string
	PublicURL   string // presignモードで公開バケットの場合のみ設定される
}

// Presign はチャンクのアップロード先URLを発行する。
// オブジェクトキーは(セッションID, チャンクインデックス)から決定的に導出されるため、
// 同じチャンクへの再発行は常に同じ保存先を指す（リトライしても別オブジェクトにならない）。
func (s *RecordingService) Presign(ctx context.Context, params PresignParams) (*PresignResult, error) {
	if params.SessionID == "" {
		return nil, model.NewValidationError("sessionIdは必須です")
	}
	if params.ChunkIndex < 0 {
		return nil, model.NewValidationError("chunkNumberは0以上で指定してください")
	}

	session, err := s.sessionRepo.FindByID(ctx, params.SessionID)
	if err != nil {
		return nil, fmt.Errorf("セッションの確認に失敗しました: %w", err)
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError(params.SessionID)
	}

	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = defaultMimeType
	}

	key := storage.ObjectKeyForChunk(session.ID, params.ChunkIndex)
	result := &PresignResult{StoragePath: key}

	switch s.uploadMode {
	case config.UploadModeRelay:
		result.UploadURL = fmt.Sprintf("%s/v1/upload-chunk/%s/%d", s.baseURL, session.ID, params.ChunkIndex)
	case config.UploadModePresign:
		target, err := s.store.CreateUploadTarget(ctx, key, mimeType, s.presignExpiry)
		if err != nil {
			s.collector.IncUploadFail()
			slog.Error("presign failed", "sessionID", session.ID, "chunkIndex", params.ChunkIndex, "error", err)
			return nil, model.NewUploadError("署名付きURLの発行に失敗しました")
		}
		result.UploadURL = target.UploadURL
		result.PublicURL = target.PublicURL
	}

	// 楽観的にチャンク行を確保する。uploadedはnotify受信までfalseのまま。
	chunk := &model.Chunk{
		ID:          uuid.New().String(),
		SessionID:   session.ID,
		ChunkIndex:  params.ChunkIndex,
		StoragePath: key,
		Uploaded:    false,
		MimeType:    mimeType,
		IsLast:      params.IsLast,
		CreatedAt:   time.Now(),
	}
	if err := s.chunkRepo.Upsert(ctx, chunk); err != nil {
		return nil, fmt.Errorf("チャンク行の作成に失敗しました: %w", err)
	}

	s.collector.IncPresign()
	return result, nil
}

// RelayChunk はリクエストボディのバイト列をローカルキャッシュへ保存する。
// 同じチャンクへの再送は前回のバイトを上書きする。
// 永続ストレージへの押し出しはnotify受信時に行われる。
func (s *RecordingService) RelayChunk(ctx context.Context, sessionID string, chunkIndex int, r io.Reader) (int64, error) {
	if s.uploadMode != config.UploadModeRelay {
		return 0, model.NewUploadError("relayモードが無効です")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("セッションの確認に失敗しました: %w", err)
	}
	if session == nil {
		return 0, model.NewSessionNotFoundError(sessionID)
	}

	// 上限+1バイトまで読み、超過を検知する
	limited := io.LimitReader(r, s.maxChunkSize+1)
	n, err := s.relay.Store(sessionID, chunkIndex, limited)
	if err != nil {
		s.collector.IncUploadFail()
		return 0, model.NewUploadError("チャンクの保存に失敗しました")
	}
	if n > s.maxChunkSize {
		_ = s.relay.Remove(sessionID, chunkIndex)
		return 0, model.NewValidationError(fmt.Sprintf("チャンクサイズが上限(%dバイト)を超えています", s.maxChunkSize))
	}

	slog.Info("chunk relayed", "sessionID", sessionID, "chunkIndex", chunkIndex, "bytes", n)
	return n, nil
}

// NotifyParams はアップロード完了通知の入力を表す。
type NotifyParams struct {
	SessionID   string
	ChunkIndex  int
	MimeType    string // 任意。空の場合はaudio/mp4
	IsLast      bool
	TotalChunks int // クライアント申告のチャンク総数。0以下は未申告
}

// NotifyUploaded はチャンクのアップロード完了を確定させる。
// relayモードではキャッシュ済みバイトを永続ストレージへ押し出してから確定する。
// isLast=trueの通知でセッションをcompletedへ遷移させる。
// 同じ通知の重複配送は同じ更新の再適用となり、エラーにしない。
func (s *RecordingService) NotifyUploaded(ctx context.Context, params NotifyParams) (string, error) {
	if params.SessionID == "" {
		return "", model.NewValidationError("sessionIdは必須です")
	}
	if params.ChunkIndex < 0 {
		return "", model.NewValidationError("chunkNumberは0以上で指定してください")
	}

	session, err := s.sessionRepo.FindByID(ctx, params.SessionID)
	if err != nil {
		return "", fmt.Errorf("セッションの確認に失敗しました: %w", err)
	}
	if session == nil {
		return "", model.NewSessionNotFoundError(params.SessionID)
	}

	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = defaultMimeType
	}

	key := storage.ObjectKeyForChunk(session.ID, params.ChunkIndex)

	var downloadURL string
	switch s.uploadMode {
	case config.UploadModeRelay:
		downloadURL, err = s.pushRelayedChunk(ctx, session.ID, params.ChunkIndex, key, mimeType)
		if err != nil {
			return "", err
		}
	case config.UploadModePresign:
		downloadURL, err = s.store.ResolveURL(ctx, key, s.presignExpiry)
		if err != nil {
			s.collector.IncUploadFail()
			slog.Error("resolve url failed", "sessionID", session.ID, "chunkIndex", params.ChunkIndex, "error", err)
			return "", model.NewUploadError("取得URLの解決に失敗しました")
		}
	}

	chunk := &model.Chunk{
		ID:          uuid.New().String(),
		SessionID:   session.ID,
		ChunkIndex:  params.ChunkIndex,
		StoragePath: key,
		Uploaded:    true,
		PublicURL:   downloadURL,
		MimeType:    mimeType,
		IsLast:      params.IsLast,
		CreatedAt:   time.Now(),
	}
	if err := s.chunkRepo.Upsert(ctx, chunk); err != nil {
		return "", fmt.Errorf("チャンク行の更新に失敗しました: %w", err)
	}
	s.collector.IncChunkUpload()

	if params.TotalChunks > 0 {
		if err := s.sessionRepo.UpdateTotalChunks(ctx, session.ID, params.TotalChunks); err != nil {
			return "", fmt.Errorf("チャンク総数の記録に失敗しました: %w", err)
		}
	}

	if params.IsLast {
		if err := s.sessionRepo.Complete(ctx, session.ID, time.Now()); err != nil {
			return "", fmt.Errorf("セッションの完了に失敗しました: %w", err)
		}
		s.collector.IncSessionCompleted()
		slog.Info("session completed", "sessionID", session.ID, "chunkIndex", params.ChunkIndex)
	}

	return downloadURL, nil
}

// pushRelayedChunk はキャッシュ済みバイトを永続ストレージへ押し出し、取得用URLを返す。
// リレーステップが実行されていない場合はUPLOAD_FAILEDとする。
func (s *RecordingService) pushRelayedChunk(ctx context.Context, sessionID string, chunkIndex int, key, mimeType string) (string, error) {
	f, err := s.relay.Open(sessionID, chunkIndex)
	if err != nil {
		s.collector.IncUploadFail()
		return "", model.NewUploadError("中継済みのチャンクバイトが見つかりません")
	}
	defer f.Close()

	start := time.Now()
	url, err := s.store.Upload(ctx, key, mimeType, f)
	if err != nil {
		s.collector.IncUploadFail()
		slog.Error("chunk push failed", "sessionID", sessionID, "chunkIndex", chunkIndex, "error", err)
		return "", model.NewUploadError("ストレージへの書き込みに失敗しました")
	}
	s.collector.ObserveUploadPushLatency(time.Since(start).Seconds())

	if err := s.relay.Remove(sessionID, chunkIndex); err != nil {
		// キャッシュ削除失敗は致命的ではない。cleanupワーカーが後から回収する。
		slog.Warn("failed to remove relay file", "sessionID", sessionID, "chunkIndex", chunkIndex, "error", err)
	}

	return url, nil
}

// newSessionID は "session_" プレフィックス付きの32桁16進ランダムトークンを生成する。
func newSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/randの失敗は実運用では起きない。フォールバックとしてuuidを使う。
		return "session_" + uuid.New().String()
	}
	return "session_" + hex.EncodeToString(b)
}

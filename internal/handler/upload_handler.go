package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/medivox/internal/model"
	"github.com/hitoshi/medivox/internal/recording"
)

// UploadServiceInterface はアップロードハンドラーが必要とするサービスインターフェース。
type UploadServiceInterface interface {
	Presign(ctx context.Context, params recording.PresignParams) (*recording.PresignResult, error)
	RelayChunk(ctx context.Context, sessionID string, chunkIndex int, r io.Reader) (int64, error)
	NotifyUploaded(ctx context.Context, params recording.NotifyParams) (string, error)
}

// UploadHandler はチャンクアップロードの2段階プロトコルのHTTPハンドラー。
type UploadHandler struct {
	service      UploadServiceInterface
	maxChunkSize int64
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(service UploadServiceInterface, maxChunkSize int64) *UploadHandler {
	return &UploadHandler{
		service:      service,
		maxChunkSize: maxChunkSize,
	}
}

// presignRequest はアップロード先URL発行リクエストのボディ。
type presignRequest struct {
	SessionID   string `json:"sessionId"`
	ChunkNumber int    `json:"chunkNumber"`
	MimeType    string `json:"mimeType"`
	IsLast      bool   `json:"isLast"`
}

// presignResponse はアップロード先URL発行のレスポンス。
// 歴代クライアントが参照してきた両方のキー名（gcsPath / storagePath）で
// 同じオブジェクトキーを返す。
type presignResponse struct {
	UploadURL   string `json:"uploadUrl"`
	GCSPath     string `json:"gcsPath"`
	StoragePath string `json:"storagePath"`
	PublicURL   string `json:"publicUrl,omitempty"`
}

// notifyRequest はアップロード完了通知リクエストのボディ。
// storagePathとgcsPathのどちらのキー名も受け付ける。
type notifyRequest struct {
	SessionID   string `json:"sessionId"`
	ChunkNumber int    `json:"chunkNumber"`
	StoragePath string `json:"storagePath"`
	GCSPath     string `json:"gcsPath"`
	MimeType    string `json:"mimeType"`
	IsLast      bool   `json:"isLast"`
	TotalChunks int    `json:"totalChunks"`
}

// notifyResponse はアップロード完了通知のレスポンス。
type notifyResponse struct {
	DownloadURL      string `json:"downloadUrl"`
	SessionCompleted bool   `json:"sessionCompleted"`
}

// Presign はチャンクのアップロード先URLを発行する。
// POST /v1/get-presigned-url
func (h *UploadHandler) Presign(w http.ResponseWriter, r *http.Request) {
	var req presignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	result, err := h.service.Presign(r.Context(), recording.PresignParams{
		SessionID:  req.SessionID,
		ChunkIndex: req.ChunkNumber,
		MimeType:   req.MimeType,
		IsLast:     req.IsLast,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, presignResponse{
		UploadURL:   result.UploadURL,
		GCSPath:     result.StoragePath,
		StoragePath: result.StoragePath,
		PublicURL:   result.PublicURL,
	})
}

// RelayChunk はリクエストボディのバイト列を受信してローカルキャッシュへ保存する。
// PUT /v1/upload-chunk/{sessionId}/{chunkNumber} および PUT /v1/mock-upload/{sessionId}/{chunkNumber}
func (h *UploadHandler) RelayChunk(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	chunkNumber, err := strconv.Atoi(chi.URLParam(r, "chunkNumber"))
	if err != nil || chunkNumber < 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("chunkNumberは0以上の整数で指定してください"))
		return
	}

	// リクエストボディの読み取り量をサーバー側で制限する
	body := http.MaxBytesReader(w, r.Body, h.maxChunkSize)
	defer body.Close()

	n, err := h.service.RelayChunk(r.Context(), sessionID, chunkNumber, body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": n})
}

// Notify はチャンクのアップロード完了を確定させる。
// POST /v1/notify-chunk-uploaded
func (h *UploadHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	downloadURL, err := h.service.NotifyUploaded(r.Context(), recording.NotifyParams{
		SessionID:   req.SessionID,
		ChunkIndex:  req.ChunkNumber,
		MimeType:    req.MimeType,
		IsLast:      req.IsLast,
		TotalChunks: req.TotalChunks,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, notifyResponse{
		DownloadURL:      downloadURL,
		SessionCompleted: req.IsLast,
	})
}

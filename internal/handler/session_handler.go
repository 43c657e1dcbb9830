package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/medivox/internal/model"
	"github.com/hitoshi/medivox/internal/recording"
)

// SessionServiceInterface はセッションハンドラーが必要とするサービスインターフェース。
type SessionServiceInterface interface {
	CreateSession(ctx context.Context, params recording.CreateSessionParams) (*model.Session, error)
	ListByPatient(ctx context.Context, patientID string) ([]*model.Session, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Session, error)
	GetSession(ctx context.Context, sessionID string) (*model.Session, []*model.Chunk, error)
}

// SessionHandler は録音セッション管理のHTTPハンドラー。
type SessionHandler struct {
	service SessionServiceInterface
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service SessionServiceInterface) *SessionHandler {
	return &SessionHandler{service: service}
}

// createSessionRequest はセッション作成リクエストのボディ。
type createSessionRequest struct {
	UserID     string `json:"userId"`
	PatientID  string `json:"patientId"`
	TemplateID string `json:"templateId"`
	StartTime  string `json:"startTime"` // RFC3339。未指定の場合はサーバー時刻
}

// sessionResponse はセッション情報のAPIレスポンス。
type sessionResponse struct {
	SessionID         string `json:"sessionId"`
	PatientID         string `json:"patientId"`
	UserID            string `json:"userId"`
	PatientName       string `json:"patientName"`
	Status            string `json:"status"`
	StartTime         string `json:"startTime"`
	EndTime           string `json:"endTime,omitempty"`
	TemplateID        string `json:"templateId,omitempty"`
	TotalChunksClient int    `json:"totalChunksClient,omitempty"`
}

// chunkResponse はチャンクメタデータのAPIレスポンス。
type chunkResponse struct {
	ChunkNumber int    `json:"chunkNumber"`
	StoragePath string `json:"storagePath"`
	Uploaded    bool   `json:"uploaded"`
	PublicURL   string `json:"publicUrl,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	IsLast      bool   `json:"isLast"`
}

// CreateSession は録音セッションを開始する。
// POST /v1/upload-session
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	params := recording.CreateSessionParams{
		UserID:     req.UserID,
		PatientID:  req.PatientID,
		TemplateID: req.TemplateID,
	}
	if req.StartTime != "" {
		st, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("startTimeはRFC3339形式で指定してください"))
			return
		}
		params.StartTime = &st
	}

	session, err := h.service.CreateSession(r.Context(), params)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// ListByPatient は指定患者のセッション一覧を取得する。
// GET /v1/fetch-session-by-patient/{patientId}
func (h *SessionHandler) ListByPatient(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientId")

	sessions, err := h.service.ListByPatient(r.Context(), patientID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": toSessionResponses(sessions)})
}

// ListByUser は指定ユーザーのセッション一覧を取得する。
// GET /v1/all-session?userId=
func (h *SessionHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")

	sessions, err := h.service.ListByUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": toSessionResponses(sessions)})
}

// GetSession はセッション詳細とチャンク一覧を取得する。
// GET /v1/session-details/{sessionId}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	session, chunks, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	chunkResponses := make([]chunkResponse, 0, len(chunks))
	for _, c := range chunks {
		chunkResponses = append(chunkResponses, chunkResponse{
			ChunkNumber: c.ChunkIndex,
			StoragePath: c.StoragePath,
			Uploaded:    c.Uploaded,
			PublicURL:   c.PublicURL,
			MimeType:    c.MimeType,
			IsLast:      c.IsLast,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session": toSessionResponse(session),
		"chunks":  chunkResponses,
	})
}

// toSessionResponse はmodel.SessionからAPIレスポンスに変換する。
func toSessionResponse(s *model.Session) sessionResponse {
	resp := sessionResponse{
		SessionID:         s.ID,
		PatientID:         s.PatientID,
		UserID:            s.UserID,
		PatientName:       s.PatientName,
		Status:            string(s.Status),
		StartTime:         s.StartTime.Format(time.RFC3339),
		TemplateID:        s.TemplateID,
		TotalChunksClient: s.TotalChunksClient,
	}
	if s.EndTime != nil {
		resp.EndTime = s.EndTime.Format(time.RFC3339)
	}
	return resp
}

func toSessionResponses(sessions []*model.Session) []sessionResponse {
	responses := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		responses = append(responses, toSessionResponse(s))
	}
	return responses
}

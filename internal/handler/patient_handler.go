package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/medivox/internal/model"
)

// PatientServiceInterface は患者ハンドラーが必要とするサービスインターフェース。
type PatientServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Patient, error)
	Create(ctx context.Context, userID, name, pronouns string) (*model.Patient, error)
	Get(ctx context.Context, patientID string) (*model.Patient, error)
	Delete(ctx context.Context, patientID string) error
}

// PatientHandler は患者管理のHTTPハンドラー。
type PatientHandler struct {
	service PatientServiceInterface
}

// NewPatientHandler はPatientHandlerを生成する。
func NewPatientHandler(service PatientServiceInterface) *PatientHandler {
	return &PatientHandler{service: service}
}

// createPatientRequest は患者登録リクエストのボディ。
type createPatientRequest struct {
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Pronouns string `json:"pronouns"`
}

// patientResponse は患者情報のAPIレスポンス。
// フィールド名は既存クライアントとのcamelCase契約を維持する。
type patientResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Pronouns  string `json:"pronouns,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// ListPatients は患者一覧を取得する。
// GET /v1/patients?userId=
func (h *PatientHandler) ListPatients(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")

	patients, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]patientResponse, 0, len(patients))
	for _, p := range patients {
		responses = append(responses, toPatientResponse(p))
	}

	writeJSON(w, http.StatusOK, map[string]any{"patients": responses})
}

// CreatePatient は患者を登録する。
// POST /v1/patients および POST /v1/add-patient-ext
func (h *PatientHandler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req createPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	p, err := h.service.Create(r.Context(), req.UserID, req.Name, req.Pronouns)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPatientResponse(p))
}

// GetPatient は患者詳細を取得する。
// GET /v1/patient-details/{patientId}
func (h *PatientHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientId")

	p, err := h.service.Get(r.Context(), patientID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPatientResponse(p))
}

// DeletePatient は患者を削除する。セッションやチャンクには波及しない。
// DELETE /v1/patients/{patientId}
func (h *PatientHandler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientId")

	if err := h.service.Delete(r.Context(), patientID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toPatientResponse はmodel.PatientからAPIレスポンスに変換する。
func toPatientResponse(p *model.Patient) patientResponse {
	return patientResponse{
		ID:        p.ID,
		UserID:    p.UserID,
		Name:      p.Name,
		Pronouns:  p.Pronouns,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

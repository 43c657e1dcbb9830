package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/medivox/internal/model"
)

// TemplateServiceInterface はテンプレートハンドラーが必要とするサービスインターフェース。
type TemplateServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Template, error)
}

// TemplateHandler はノートテンプレートのHTTPハンドラー。
type TemplateHandler struct {
	service TemplateServiceInterface
}

// NewTemplateHandler はTemplateHandlerを生成する。
func NewTemplateHandler(service TemplateServiceInterface) *TemplateHandler {
	return &TemplateHandler{service: service}
}

// templateResponse はテンプレート情報のAPIレスポンス。
type templateResponse struct {
	TemplateID string `json:"templateId"`
	Name       string `json:"name"`
	IsGlobal   bool   `json:"isGlobal"`
}

// ListTemplates はユーザー所有およびグローバル既定のテンプレート一覧を取得する。
// GET /v1/fetch-default-template-ext?userId=
func (h *TemplateHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")

	templates, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]templateResponse, 0, len(templates))
	for _, t := range templates {
		responses = append(responses, templateResponse{
			TemplateID: t.TemplateID,
			Name:       t.Name,
			IsGlobal:   t.IsGlobal(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"templates": responses})
}

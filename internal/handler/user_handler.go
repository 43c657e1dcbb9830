package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/medivox/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetOrCreateByEmail(ctx context.Context, email string) (*model.User, error)
}

// UserHandler はユーザー解決のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
}

// GetOrCreate はメールアドレスでユーザーを解決する。存在しない場合は作成する。
// GET /users/asd3fd2faec?email=
// パス末尾のトークンは既存クライアントが送る固定文字列で、意味を持たない。
func (h *UserHandler) GetOrCreate(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")

	u, err := h.service.GetOrCreateByEmail(r.Context(), email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:        u.ID,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	})
}

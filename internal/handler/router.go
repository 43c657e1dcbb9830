package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/medivox/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	AuthToken         string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder
	MetricsHandler    http.Handler

	// ドメインサービス
	PatientService  PatientServiceInterface
	SessionService  SessionServiceInterface
	UploadService   UploadServiceInterface
	TemplateService TemplateServiceInterface
	UserService     UserServiceInterface

	// アップロード
	MaxChunkSize int64
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → Metrics → (認証グループ) BearerAuth → RateLimit
//
// /health と /metrics は認証グループの外に配置する。
// パス文字列は既存クライアントとの契約のため変更しない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}

	patientHandler := NewPatientHandler(deps.PatientService)
	sessionHandler := NewSessionHandler(deps.SessionService)
	uploadHandler := NewUploadHandler(deps.UploadService, deps.MaxChunkSize)
	templateHandler := NewTemplateHandler(deps.TemplateService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.AuthToken))

		// API全般のレート制限
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.GeneralMiddleware())

			// 患者管理
			r.Get("/v1/patients", patientHandler.ListPatients)
			r.Post("/v1/patients", patientHandler.CreatePatient)
			r.Post("/v1/add-patient-ext", patientHandler.CreatePatient)
			r.Get("/v1/patient-details/{patientId}", patientHandler.GetPatient)
			r.Delete("/v1/patients/{patientId}", patientHandler.DeletePatient)

			// セッション管理
			r.Post("/v1/upload-session", sessionHandler.CreateSession)
			r.Get("/v1/fetch-session-by-patient/{patientId}", sessionHandler.ListByPatient)
			r.Get("/v1/all-session", sessionHandler.ListByUser)
			r.Get("/v1/session-details/{sessionId}", sessionHandler.GetSession)

			// テンプレート
			r.Get("/v1/fetch-default-template-ext", templateHandler.ListTemplates)

			// ユーザー解決（パス末尾は既存クライアントが送る固定トークン）
			r.Get("/users/asd3fd2faec", userHandler.GetOrCreate)
			r.Post("/users/asd3fd2faec", userHandler.GetOrCreate)
		})

		// アップロード経路は独立したレート制限予算を持つ
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.UploadMiddleware())

			r.Post("/v1/get-presigned-url", uploadHandler.Presign)
			r.Put("/v1/upload-chunk/{sessionId}/{chunkNumber}", uploadHandler.RelayChunk)
			r.Put("/v1/mock-upload/{sessionId}/{chunkNumber}", uploadHandler.RelayChunk)
			r.Post("/v1/notify-chunk-uploaded", uploadHandler.Notify)
		})
	})

	return r
}

// healthHandler はliveness確認に応答する。
// GET /health
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/medivox/internal/config"
	"github.com/hitoshi/medivox/internal/database"
	"github.com/hitoshi/medivox/internal/handler"
	"github.com/hitoshi/medivox/internal/logger"
	"github.com/hitoshi/medivox/internal/metrics"
	"github.com/hitoshi/medivox/internal/middleware"
	"github.com/hitoshi/medivox/internal/patient"
	"github.com/hitoshi/medivox/internal/recording"
	"github.com/hitoshi/medivox/internal/repository"
	"github.com/hitoshi/medivox/internal/security"
	"github.com/hitoshi/medivox/internal/storage"
	"github.com/hitoshi/medivox/internal/template"
	"github.com/hitoshi/medivox/internal/user"
	"github.com/hitoshi/medivox/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("upload_mode", string(cfg.UploadMode)),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	patientRepo := repository.NewPostgresPatientRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	chunkRepo := repository.NewPostgresChunkRepo(db)
	templateRepo := repository.NewPostgresTemplateRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ストレージの初期化
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	store, err := storage.NewS3Store(startupCtx, storage.S3Config{
		Bucket:     cfg.S3Bucket,
		Region:     cfg.S3Region,
		Endpoint:   cfg.S3Endpoint,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		PublicRead: cfg.S3PublicRead,
		Expiry:     cfg.PresignExpiry,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize blob storage: %w", err)
	}

	// MinIO等のローカル環境ではバケットが未作成のことがある。
	// 作成は初回アップロード時にも再試行されるため、失敗しても起動は止めない。
	if err := store.EnsureBucketExists(startupCtx); err != nil {
		slog.Warn("bucket bootstrap failed",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("error", err.Error()),
		)
	}

	// バックグラウンドジョブ用のライフサイクルコンテキスト
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. リレーキャッシュの初期化（relayモードのみ）
	var relay *storage.RelayCache
	if cfg.UploadMode == config.UploadModeRelay {
		relay = storage.NewRelayCache(cfg.RelayDir)

		cleanupJob := cleanup.NewCleanupJob(cfg.RelayDir, cfg.RelayFileTTL, slog.Default())
		// 起動直後に1回実行し、以降は定期実行する
		go func() {
			if err := cleanupJob.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("relay cleanup failed", slog.String("error", err.Error()))
			}
			cleanupJob.Start(ctx)
		}()
	}

	// 6. ドメインサービスの初期化
	sanitizer := security.NewNameSanitizer()
	patientService := patient.NewPatientService(patientRepo, sanitizer)
	userService := user.NewUserService(userRepo)
	templateService := template.NewTemplateService(templateRepo)
	recordingService := recording.NewRecordingService(
		sessionRepo, chunkRepo, patientRepo, store, relay, collector, cfg,
	)

	// 空のカタログにはデフォルトテンプレートを投入する
	if err := templateService.EnsureDefaults(startupCtx); err != nil {
		return fmt.Errorf("failed to seed default templates: %w", err)
	}

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitUpload),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		AuthToken:         cfg.APIAuthToken,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		StatusRecorder:    collector,
		MetricsHandler:    metrics.Handler(registry),

		PatientService:  patientService,
		SessionService:  recordingService,
		UploadService:   recordingService,
		TemplateService: templateService,
		UserService:     userService,

		MaxChunkSize: cfg.MaxChunkSize,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	// WriteTimeoutはリレーモードの大きなチャンクPUTを考慮して長めに取る
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("upload_mode", string(cfg.UploadMode)),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

// Package app はアプリケーションの起動とワイヤリングを提供する。
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
	"golang.org/x/time/rate"

	"github.com/liveeazy/backend/internal/assistant"
	"github.com/liveeazy/backend/internal/auth"
	"github.com/liveeazy/backend/internal/config"
	"github.com/liveeazy/backend/internal/database"
	"github.com/liveeazy/backend/internal/handler"
	"github.com/liveeazy/backend/internal/identity"
	"github.com/liveeazy/backend/internal/logger"
	"github.com/liveeazy/backend/internal/metrics"
	"github.com/liveeazy/backend/internal/middleware"
	"github.com/liveeazy/backend/internal/notification"
	"github.com/liveeazy/backend/internal/payment"
	"github.com/liveeazy/backend/internal/repository"
	"github.com/liveeazy/backend/internal/security"
	"github.com/liveeazy/backend/internal/session"
	"github.com/liveeazy/backend/internal/worker/cleanup"
)

// oidcDiscoveryTimeout はIdPのディスカバリドキュメント取得のタイムアウト。
const oidcDiscoveryTimeout = 10 * time.Second

// assistantMaxResponseSize はアシスタント連携レスポンスの上限サイズ。
const assistantMaxResponseSize = 4 << 20 // 4MB

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		// 設定読み込み失敗時もエラーログは構造化して出す
		logger.SetupDefault(w, "info")
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, cfg.LogLevel)

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
	orderRepo := repository.NewPostgresOrderRepo(db)
	revocationRepo := repository.NewPostgresRevocationRepo(db)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 4. IdPトークン検証器の初期化（ディスカバリはタイムアウト付き）
	discoveryCtx, cancelDiscovery := context.WithTimeout(context.Background(), oidcDiscoveryTimeout)
	defer cancelDiscovery()

	idVerifier, err := identity.NewOIDCVerifier(discoveryCtx, cfg.IdpIssuerURL, cfg.IdpClientID)
	if err != nil {
		return fmt.Errorf("failed to initialize identity verifier: %w", err)
	}

	// 5. セッション管理の初期化
	sessions := session.NewManager(cfg.SessionSecret, cfg.SessionMaxAge, revocationRepo)
	cookies := session.NewCookieWriter(cfg.SessionCookieName, cfg.CookieDomain, cfg.CookieSecure())

	// 6. ドメインサービスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	authService := auth.NewService(idVerifier, userRepo, sessions, sanitizer, collector)

	gatewayClient := payment.NewRazorpayClient(
		&http.Client{Timeout: cfg.GatewayTimeout},
		slog.Default(),
		cfg.RazorpayKeyID,
		cfg.RazorpayKeySecret,
	)

	var notifier notification.Notifier
	if cfg.EmailEnabled() {
		notifier = notification.NewSMTPNotifier(
			cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPAccount, cfg.SMTPPassword, cfg.SMTPSender,
			slog.Default(),
		)
	} else {
		slog.Info("smtp credentials not configured, purchase mail disabled")
		notifier = notification.NewNoopNotifier(slog.Default())
	}

	paymentService := payment.NewService(
		gatewayClient, userRepo, orderRepo, notifier, sanitizer, collector,
		cfg.RazorpayKeySecret,
	)

	// アシスタント連携は構成時のみ有効。ベースURLはSSRFガードで事前検証する。
	if cfg.AssistantBaseURL != "" {
		if err := ssrfGuard.ValidateURL(cfg.AssistantBaseURL); err != nil {
			return fmt.Errorf("invalid ASSISTANT_BASE_URL: %w", err)
		}
	}
	assistantService := assistant.NewService(
		ssrfGuard.NewSafeClient(cfg.AssistantTimeout, assistantMaxResponseSize),
		slog.Default(),
		cfg.AssistantBaseURL,
		userRepo,
	)

	// 7. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.LoginRate = rate.Limit(float64(cfg.RateLimitLogin) / 60.0)
	rateLimiterCfg.LoginBurst = cfg.RateLimitLogin

	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		SessionVerifier:   sessions,
		CookieWriter:      cookies,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		AuthService:      authService,
		PaymentService:   paymentService,
		AssistantService: assistantService,

		GatewayKeyID: cfg.RazorpayKeyID,

		DB:       db,
		Gatherer: registry,
	})

	// 8. 失効レコードのクリーンアップジョブを日次でバックグラウンド実行
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()

	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(cleanupCtx); err != nil {
			slog.Error("revocation cleanup failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(cleanupCtx); err != nil {
					slog.Error("revocation cleanup failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
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
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
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

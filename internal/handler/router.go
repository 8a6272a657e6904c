package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/liveeazy/backend/internal/metrics"
	"github.com/liveeazy/backend/internal/middleware"
	"github.com/liveeazy/backend/internal/session"
)

// healthCheckTimeout はDB疎通確認のタイムアウト。
const healthCheckTimeout = 2 * time.Second

// Pinger はヘルスチェックで使用するDB疎通確認のインターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionVerifier   middleware.SessionVerifier
	CookieWriter      *session.CookieWriter
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// サービス
	AuthService      AuthServiceInterface
	PaymentService   PaymentServiceInterface
	AssistantService AssistantServiceInterface

	// ゲートウェイ公開キー（チェックアウト用にフロントエンドへ渡す）
	GatewayKeyID string

	// 運用エンドポイント
	DB       Pinger
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → OriginCheck
//	→ (保護ルートのみ) Session → RateLimit(General)
//
// sessionLogin はセッション不要だがIPごとのログイン専用レート制限を通す。
// sessionLogout と運用エンドポイント（/healthz, /metrics）は認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewOriginCheckMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.PaymentService, deps.SessionVerifier, deps.CookieWriter)
	paymentHandler := NewPaymentHandler(deps.PaymentService, deps.GatewayKeyID)
	assistantHandler := NewAssistantHandler(deps.AssistantService)

	// --- 認証不要のルート ---

	r.With(deps.RateLimiter.LoginMiddleware()).Post("/api/sessionLogin", authHandler.SessionLogin)
	r.Post("/api/sessionLogout", authHandler.SessionLogout)

	r.Get("/healthz", healthzHandler(deps.DB))
	r.Handle("/metrics", metrics.SetupMetricsRoute(deps.Gatherer))

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionVerifier, deps.CookieWriter.Name()))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/me", authHandler.Me)

		// 決済
		r.Route("/api/payment", func(r chi.Router) {
			r.Post("/create-order", paymentHandler.CreateOrder)
			r.Post("/verify-payment", paymentHandler.VerifyPayment)
			r.Get("/purchase-status", paymentHandler.PurchaseStatus)
			r.Get("/payment-history", paymentHandler.PaymentHistory)
		})

		// アシスタントプロキシ
		r.Route("/api/assistant", func(r chi.Router) {
			r.Post("/chat", assistantHandler.Chat)
			r.Get("/files", assistantHandler.ListFiles)
		})
	})

	return r
}

// healthzHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func healthzHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

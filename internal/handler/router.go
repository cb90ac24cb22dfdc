package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/evote/internal/metrics"
	"github.com/hitoshi/evote/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionResolver   middleware.SessionResolver
	StatusObserver    middleware.StatusObserver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	AdminAPIKey       string
	LoginPath         string

	// 運用
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 投票
	VotingService VotingServiceInterface

	// 候補者
	CandidateService CandidateServiceInterface
	UploadMaxSize    int64

	// アップロードファイル
	AssetFinder AssetFinder
	UploadDir   string
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Session（解決のみ） → Logging → Recovery → SecurityHeaders → CORS
//
// セッションは境界で1度だけ解決し、以降はコンテキストから参照する。
// /health と /metrics 以外にはRateLimit(General)を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusObserver))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	votingHandler := NewVotingHandler(deps.VotingService)
	candidateHandler := NewCandidateHandler(deps.CandidateService, deps.UploadMaxSize)

	// --- 運用エンドポイント ---
	r.Get("/health", Health(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		// --- 認証不要のルート ---
		r.Get("/results", votingHandler.Results)
		r.Get("/check-session", authHandler.CheckSession)
		r.Get("/logout", authHandler.Logout)
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		if deps.AssetFinder != nil {
			assetHandler := NewAssetHandler(deps.AssetFinder, deps.UploadDir)
			r.Get("/uploads/{bucket}/{name}", assetHandler.Serve)
		}

		// 登録・ログイン（専用レート制限を追加）
		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.AuthMiddleware())
			}
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		// --- セッションが必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(deps.LoginPath))
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

			r.Get("/dashboard", candidateHandler.Dashboard)
			r.Post("/vote", votingHandler.Vote)
		})

		// --- 管理者ルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAdminKeyMiddleware(deps.AdminAPIKey))

			r.Get("/admin", candidateHandler.Admin)
			r.Post("/addCandidate", candidateHandler.AddCandidate)
		})
	})

	return r
}

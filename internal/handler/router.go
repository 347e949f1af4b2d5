package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bibliohispa/hispanet/internal/metrics"
	"github.com/bibliohispa/hispanet/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	SessionParser     middleware.SessionParser
	SSOGate           middleware.SSOGateConfig
	Metrics           metrics.Recorder
	Gatherer          prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ストレージ
	Uploads   interface {
		Uploader
		FileStore
	}
	DataStore DocumentStore

	// 名簿
	Roster RosterSource
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → SessionAnnotator → Logging → Metrics → SSOGate
//
// ログインエンドポイントは専用のレート制限、それ以外の/api/*は全般レート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionAnnotator(deps.AuthConfig.CookieName, deps.SessionParser))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	r.Use(middleware.NewSSOGateMiddleware(deps.SSOGate))

	authHandler := NewAuthHandler(deps.AuthService, deps.Metrics, deps.AuthConfig)
	uploadHandler := NewUploadHandler(deps.Uploads, deps.Metrics)
	dataHandler := NewDataHandler(deps.DataStore)
	fileHandler := NewFileHandler(deps.Uploads)
	rosterHandler := NewRosterHandler(deps.Roster)

	// ヘルスチェックとメトリクス
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// ログインエンドポイント（専用レート制限）
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.LoginMiddleware())

		r.Post("/api/auth/google", authHandler.LoginGoogle)
		r.Post("/api/auth/pin", authHandler.LoginPin)
		// レガシー互換の別名
		r.Post("/api/prisma-auth", authHandler.LoginPin)
	})

	// APIエンドポイント（全般レート制限）
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/auth/logout", authHandler.Logout)
		r.Get("/api/proxy/me", authHandler.Me)

		r.Get("/api/prisma-users", rosterHandler.List)

		r.Post("/api/upload", uploadHandler.Upload)
		r.Delete("/api/file", fileHandler.Delete)

		r.Get("/api/data", dataHandler.Get)
		r.Post("/api/data", dataHandler.Put)
	})

	// アップロード済みファイルの静的配信
	r.Get("/uploads/*", fileHandler.Serve)

	return r
}

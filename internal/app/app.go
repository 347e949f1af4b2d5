// Package app はアプリケーションの初期化・依存関係のワイヤリング・起動を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/netutil"

	"github.com/bibliohispa/hispanet/internal/auth"
	"github.com/bibliohispa/hispanet/internal/config"
	"github.com/bibliohispa/hispanet/internal/handler"
	"github.com/bibliohispa/hispanet/internal/logger"
	"github.com/bibliohispa/hispanet/internal/metrics"
	"github.com/bibliohispa/hispanet/internal/middleware"
	"github.com/bibliohispa/hispanet/internal/model"
	"github.com/bibliohispa/hispanet/internal/roster"
	"github.com/bibliohispa/hispanet/internal/security"
	"github.com/bibliohispa/hispanet/internal/storage"
)

// maxConcurrentConns はリスナーレベルで受け付ける最大同時接続数。
const maxConcurrentConns = 512

// upstreamTimeout は上流HTTP呼び出し（Prisma、Googleトークン検証）のタイムアウト。
const upstreamTimeout = 10 * time.Second

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
			port = "3010"
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
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandSync:
		return runSync(cfg)
	default:
		return runServe(cfg)
	}
}

// buildRosterCache は上流クライアントと名簿キャッシュを構築する。
// 設定された上流URLはSSRFガードで事前検証する。
func buildRosterCache(cfg *config.Config) (*roster.Client, *roster.Cache, *http.Client, error) {
	guard := security.NewUpstreamGuard()
	for _, u := range []string{cfg.PrismaExportURL(), cfg.PrismaExternalCheckURL(), cfg.GoogleTokenInfoURL} {
		if err := guard.ValidateURL(u); err != nil {
			return nil, nil, nil, fmt.Errorf("unsafe upstream URL %q: %w", u, err)
		}
	}

	httpClient := guard.NewSafeClient(upstreamTimeout)
	client := roster.NewClient(httpClient, cfg.PrismaExportURL(), cfg.PrismaExternalCheckURL(), cfg.PrismaAPIKey)
	cache := roster.NewCache(client, cfg.AllowedEmailDomain)
	return client, cache, httpClient, nil
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、名簿同期スケジューラをバックグラウンドで
// 起動したうえでHTTPサーバーを開始する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. 上流クライアントと名簿キャッシュ
	prismaClient, cache, httpClient, err := buildRosterCache(cfg)
	if err != nil {
		return err
	}

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. 認証サービス
	verifier := auth.NewGoogleVerifier(httpClient, cfg.GoogleTokenInfoURL)
	codec := auth.NewTokenCodec(cfg.SessionSecret, cfg.SessionMaxAge)
	authService := auth.NewService(verifier, cache, prismaClient, codec, auth.ServiceConfig{
		AllowedEmailDomain: cfg.AllowedEmailDomain,
		SuperAdminEmail:    cfg.SuperAdminEmail,
	})

	// 4. ストレージ
	uploads, err := storage.NewUploads(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("failed to init upload store: %w", err)
	}
	dataStore, err := storage.NewDataStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to init data store: %w", err)
	}

	slog.Info("storage initialized",
		slog.String("upload_dir", uploads.Root()),
	)

	// 5. レート制限
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)
	defer rateLimiter.Stop()

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		SessionParser:     sessionParser(codec),
		SSOGate: middleware.SSOGateConfig{
			Enabled:    cfg.SSOGateEnabled,
			CookieName: cfg.SSOCookieName,
			Parse:      ssoTokenParser(codec),
		},
		Metrics:  collector,
		Gatherer: registry,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieName:    cfg.CookieName,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		Uploads:   uploads,
		DataStore: dataStore,
		Roster:    cache,
	}

	router := handler.NewRouter(deps)

	// 7. 名簿同期スケジューラをバックグラウンドで起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := roster.NewScheduler(cache, slog.Default(), collector)
	go scheduler.Start(ctx, cfg.RosterSyncInterval)

	// 8. HTTPサーバーの起動
	listener, err := net.Listen("tcp", ":"+cfg.ServerPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", cfg.ServerPort, err)
	}
	listener = netutil.LimitListener(listener, maxConcurrentConns)

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// アップロードのボディ転送があるためReadTimeoutは設定しない
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", listener.Addr().String()),
		)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
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

// runSync は名簿同期を1回だけ実行する。
// 上流に到達できない場合はエラーを返す（終了コード非ゼロ）。
func runSync(cfg *config.Config) error {
	_, cache, _, err := buildRosterCache(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), upstreamTimeout)
	defer cancel()

	if err := cache.FetchNow(ctx); err != nil {
		return fmt.Errorf("roster sync failed: %w", err)
	}

	slog.Info("roster sync completed", slog.Int("users", cache.Len()))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
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

// sessionParser はセッションCookie値をミドルウェア用アイデンティティに変換する。
func sessionParser(codec *auth.TokenCodec) middleware.SessionParser {
	return func(token string) (*middleware.Identity, bool) {
		claims, err := codec.Parse(token)
		if err != nil {
			return nil, false
		}
		return &middleware.Identity{
			Email: claims.Email,
			Role:  claims.Role,
		}, true
	}
}

// ssoTokenParser はサブドメイン横断SSO Cookieからロールだけを取り出す。
func ssoTokenParser(codec *auth.TokenCodec) middleware.SSOTokenParser {
	return func(token string) (model.Role, bool) {
		claims, err := codec.Parse(token)
		if err != nil {
			return "", false
		}
		return claims.Role, true
	}
}

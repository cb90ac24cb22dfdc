package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/evote/internal/auth"
	"github.com/hitoshi/evote/internal/candidate"
	"github.com/hitoshi/evote/internal/config"
	"github.com/hitoshi/evote/internal/database"
	"github.com/hitoshi/evote/internal/handler"
	"github.com/hitoshi/evote/internal/ledger"
	"github.com/hitoshi/evote/internal/logger"
	"github.com/hitoshi/evote/internal/metrics"
	"github.com/hitoshi/evote/internal/middleware"
	"github.com/hitoshi/evote/internal/repository"
	"github.com/hitoshi/evote/internal/security"
	"github.com/hitoshi/evote/internal/staging"
	"github.com/hitoshi/evote/internal/voting"
	"github.com/hitoshi/evote/internal/worker/cleanup"
)

// errDatabaseRequired はDATABASE_URLを必須とするコマンドで未設定の場合のエラー。
var errDatabaseRequired = errors.New("DATABASE_URL is required for this command")

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
			port = "3000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("mode", cmd.Description()),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// stores はセッションとアップロード記録の保存先。
// DATABASE_URLが未設定の場合はインメモリ実装を使い、dbはnilになる。
type stores struct {
	db       *sql.DB
	sessions repository.SessionRepository
	assets   repository.AssetRepository
}

func (s *stores) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// healthChecker はDB接続がある場合のみ疎通確認対象を返す。
func (s *stores) healthChecker() handler.HealthChecker {
	if s.db == nil {
		return nil
	}
	return s.db
}

// openStores はDATABASE_URLに応じてPostgreSQLまたはインメモリのリポジトリを構築する。
func openStores(cfg *config.Config) (*stores, error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL is not set; sessions and upload records are kept in memory")
		return &stores{
			sessions: repository.NewMemorySessionRepo(),
			assets:   repository.NewMemoryAssetRepo(),
		}, nil
	}

	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &stores{
		db:       db,
		sessions: repository.NewPostgresSessionRepo(db),
		assets:   repository.NewPostgresAssetRepo(db),
	}, nil
}

func openDatabase(databaseURL string) (*sql.DB, error) {
	db, err := database.Open(context.Background(), databaseURL, database.DefaultPoolConfig)
	if err != nil {
		return nil, err
	}
	slog.Info("database connection established",
		slog.Int("max_open_conns", database.DefaultPoolConfig.MaxOpenConns),
	)
	return db, nil
}

// ledgerClientConfig は設定値から台帳クライアントの設定を組み立てる。
func ledgerClientConfig(cfg *config.Config, observer ledger.Observer) ledger.ClientConfig {
	lc := ledger.DefaultClientConfig()
	if cfg.LedgerCallTimeout > 0 {
		lc.CallTimeout = cfg.LedgerCallTimeout
	}
	if cfg.LedgerGasLimit > 0 {
		lc.GasLimit = uint64(cfg.LedgerGasLimit)
	}
	if cfg.LedgerReceiptPollInterval > 0 {
		lc.ReceiptPollInterval = cfg.LedgerReceiptPollInterval
	}
	lc.Observer = observer
	return lc
}

// runServe はAPIサーバーモードで起動する。
// 台帳へ接続し、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. 永続化層
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 3. 台帳クライアント
	contract, err := ledger.LoadContract(cfg.LedgerArtifactPath, cfg.LedgerNetworkID, cfg.LedgerContractAddress)
	if err != nil {
		return fmt.Errorf("failed to load contract: %w", err)
	}
	client, err := ledger.Dial(ctx, cfg.LedgerRPCURL, contract, ledgerClientConfig(cfg, collector))
	if err != nil {
		return fmt.Errorf("failed to connect to ledger: %w", err)
	}
	defer client.Close()

	slog.Info("ledger connection established",
		slog.String("contract_address", contract.Address.Hex()),
		slog.String("network_id", cfg.LedgerNetworkID),
	)

	// 4. 有権者アドレスプール
	pool, err := auth.SeedIdentityPool(ctx, client, client, cfg.IdentityPoolOffset)
	if err != nil {
		return fmt.Errorf("failed to seed identity pool: %w", err)
	}
	if pool.Remaining() == 0 {
		slog.Warn("identity pool is empty; registration will fail until accounts are added")
	}

	// 5. ドメインサービス
	authService := auth.NewService(client, pool, st.sessions, collector, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})
	votingService := voting.NewService(client, collector)
	stager := staging.NewStager(cfg.UploadDir, st.assets, collector)
	candidateService := candidate.NewService(client, stager, security.NewTextSanitizer(), collector)

	// 6. ルーターの構築
	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY is not set; admin routes are unprotected")
	}
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		SessionResolver:   authService,
		StatusObserver:    collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		AdminAPIKey: cfg.AdminAPIKey,
		LoginPath:   cfg.LoginPath,

		HealthChecker: st.healthChecker(),
		Gatherer:      registry,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
			LoginPath:     cfg.LoginPath,
		},

		VotingService: votingService,

		CandidateService: candidateService,
		UploadMaxSize:    cfg.UploadMaxSize,

		AssetFinder: st.assets,
		UploadDir:   cfg.UploadDir,
	}

	router := handler.NewRouter(deps)

	// 7. 期限切れセッションの定期削除
	cleanupJob := cleanup.NewCleanupJob(st.sessions, collector, slog.Default())
	go cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * cfg.LedgerCallTimeout,
		IdleTimeout:  60 * time.Second,
	}
	if server.WriteTimeout < 15*time.Second {
		server.WriteTimeout = 15 * time.Second
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Int("identity_pool", pool.Remaining()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
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

// runWorker はワーカーモードで起動する。
// 共有のPostgreSQLセッションストアに対して期限切れセッションの定期削除を行う。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errDatabaseRequired
	}

	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	cleanupJob := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), nil, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)

	// メインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errDatabaseRequired
	}

	migrations, err := database.Migrations()
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Any("migrations", migrations),
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

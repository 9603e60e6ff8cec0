// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/fleetman/internal/auth"
	"github.com/hitoshi/fleetman/internal/config"
	"github.com/hitoshi/fleetman/internal/database"
	"github.com/hitoshi/fleetman/internal/handler"
	"github.com/hitoshi/fleetman/internal/logger"
	"github.com/hitoshi/fleetman/internal/metrics"
	"github.com/hitoshi/fleetman/internal/middleware"
	"github.com/hitoshi/fleetman/internal/repository"
	"github.com/hitoshi/fleetman/internal/scope"
	"github.com/hitoshi/fleetman/internal/tenant"
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
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// コントロールプレーンDBへの接続を開き、全依存関係をワイヤリングし、
// HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. コントロールプレーンDB接続
	controlDB, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open control database: %w", err)
	}
	defer controlDB.Close()

	if err := controlDB.Ping(); err != nil {
		return fmt.Errorf("failed to connect to control database: %w", err)
	}

	slog.Info("control database connection established")

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. テナントレジストリと接続プールキャッシュの初期化
	cacheCfg := tenant.DefaultConnCacheConfig()
	cacheCfg.MaxOpenConns = cfg.TenantMaxOpenConns
	cacheCfg.IdleTimeout = cfg.TenantIdleTimeout
	cacheCfg.OnPoolCreated = collector.RecordPoolCreated
	cacheCfg.OnPoolEvicted = collector.RecordPoolEvicted
	connCache := tenant.NewConnCache(cacheCfg)

	tenantStore := repository.NewPostgresTenantStore(controlDB)
	tenantRegistry := tenant.NewRegistry(tenantStore, connCache)
	defer tenantRegistry.Close()

	// 4. 認証・認可サービスの初期化
	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   "fleetman",
		TokenTTL: cfg.TokenTTL,
	})
	scopeCalc := scope.NewCalculator()

	// 5. レート制限の初期化
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAdmin),
	)
	defer rateLimiter.Stop()

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		TenantResolver: tenantRegistry,
		SubdomainExtractor: &tenant.SubdomainExtractor{
			DefaultSubdomain: cfg.DefaultSubdomain,
			StagingSuffix:    cfg.StagingHostSuffix,
		},
		TenantConfig: middleware.TenantMiddlewareConfig{
			DefaultTenantFallback: cfg.DefaultTenantFallback,
		},

		TokenVerifier: tokenService,
		ScopeCalc:     scopeCalc,
		NewFinder: func(db *sql.DB) scope.AssignmentFinder {
			return repository.NewPostgresAssignmentRepo(db)
		},

		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		Collector: collector,
		Gatherer:  registry,

		WorkAreaRepoFactory: func(db *sql.DB) repository.WorkAreaRepository {
			return repository.NewPostgresWorkAreaRepo(db)
		},
		ProjectRepoFactory: func(db *sql.DB) repository.ProjectRepository {
			return repository.NewPostgresProjectRepo(db)
		},
		PersonnelRepoFactory: func(db *sql.DB) repository.PersonnelRepository {
			return repository.NewPostgresPersonnelRepo(db)
		},

		TenantRegistry: tenantRegistry,
		MigrateTenant:  database.RunTenantMigrations,

		HealthPinger: controlDB,

		TokenIssuer:       tokenService,
		EnableTokenIssuer: cfg.TokenIssuerEnabled,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
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
// コントロールプレーンDBにtenantsテーブルを適用した後、
// 登録済みのすべての有効テナントDBにテナントスキーマを適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running control plane migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunControlMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("control migration failed: %w", err)
	}

	// 有効テナントを列挙してテナントスキーマを追従させる
	controlDB, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open control database: %w", err)
	}
	defer controlDB.Close()

	store := repository.NewPostgresTenantStore(controlDB)
	tenants, err := store.ListActive(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	for _, d := range tenants {
		slog.Info("running tenant migrations",
			slog.String("tenant_id", d.ID),
			slog.String("subdomain", d.Subdomain),
		)
		if err := database.RunTenantMigrations(d.ConnectionURL); err != nil {
			return fmt.Errorf("tenant migration failed for %s: %w", d.Subdomain, err)
		}
	}

	slog.Info("database migrations completed successfully",
		slog.Int("tenant_count", len(tenants)),
	)
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

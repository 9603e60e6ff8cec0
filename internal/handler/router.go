package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/fleetman/internal/auth"
	"github.com/hitoshi/fleetman/internal/metrics"
	"github.com/hitoshi/fleetman/internal/middleware"
	"github.com/hitoshi/fleetman/internal/scope"
	"github.com/hitoshi/fleetman/internal/tenant"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// テナント解決
	TenantResolver     middleware.TenantResolver
	SubdomainExtractor *tenant.SubdomainExtractor
	TenantConfig       middleware.TenantMiddlewareConfig

	// 認証・認可
	TokenVerifier middleware.TokenVerifier
	ScopeCalc     *scope.Calculator
	NewFinder     middleware.AssignmentFinderFactory

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 計測
	Collector *metrics.Collector
	Gatherer  prometheus.Gatherer

	// リソースハンドラー依存
	WorkAreaRepoFactory  WorkAreaRepoFactory
	ProjectRepoFactory   ProjectRepoFactory
	PersonnelRepoFactory PersonnelRepoFactory

	// テナント管理
	TenantRegistry TenantRegistry
	MigrateTenant  MigrateTenantFunc

	// ヘルスチェックで疎通確認するコントロールプレーンDB（nil可）
	HealthPinger Pinger

	// 開発用トークン発行（TokenIssuerがnil以外かつEnableTokenIssuerが
	// trueの場合のみ/auth/tokenを公開する）
	TokenIssuer       TokenIssuer
	EnableTokenIssuer bool
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Metrics
//	  → Tenant → Auth → Logging → RateLimit(General)
//	    → Scope（リソースルートのみ）
//	    → AdminGate → RateLimit(Admin)（テナント管理ルートのみ）
//
// /healthと/metricsはテナント解決の前段に置き、認証なしで到達できる。
// Loggingをテナント・認証の後段に置くことで、ログにテナントと
// ユーザーIDの属性が含まれる。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Collector != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Collector))
	}

	// nilの*metrics.Collectorを非nilインターフェースとして渡さないための変換
	var admission middleware.AdmissionMetrics
	if deps.Collector != nil {
		admission = deps.Collector
	}

	workAreaHandler := NewWorkAreaHandler(deps.WorkAreaRepoFactory, admission)
	projectHandler := NewProjectHandler(deps.ProjectRepoFactory, admission)
	personnelHandler := NewPersonnelHandler(deps.PersonnelRepoFactory, admission)
	tenantAdminHandler := NewTenantAdminHandler(deps.TenantRegistry, deps.MigrateTenant)
	healthHandler := NewHealthHandler(deps.HealthPinger)

	// --- テナント解決不要のルート ---

	r.Get("/health", healthHandler.Check)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- テナント解決が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewTenantMiddleware(deps.TenantResolver, deps.SubdomainExtractor, deps.TenantConfig, admission))

		// 開発用トークン発行。テナントDB接続が確立した後、認証の前段に置く
		if deps.EnableTokenIssuer && deps.TokenIssuer != nil {
			tokenHandler := NewTokenHandler(deps.TokenIssuer)
			r.Post("/auth/token", tokenHandler.Issue)
		}

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier, auth.ExtractBearer, admission))
			r.Use(middleware.NewLoggingMiddleware(deps.Logger))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			// リソースルート: 作業エリアスコープを適用
			r.Group(func(r chi.Router) {
				r.Use(middleware.NewScopeMiddleware(deps.ScopeCalc, deps.NewFinder))

				// 作業エリア管理
				r.Route("/api/work-areas", func(r chi.Router) {
					r.Get("/", workAreaHandler.List)
					// 作成と削除はCORPORATEレベル限定
					r.With(middleware.NewAdminGateMiddleware()).Post("/", workAreaHandler.Create)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", workAreaHandler.Get)
						r.Put("/", workAreaHandler.Update)
						r.With(middleware.NewAdminGateMiddleware()).Delete("/", workAreaHandler.Delete)
					})
				})

				// プロジェクト管理
				r.Route("/api/projects", func(r chi.Router) {
					r.Get("/", projectHandler.List)
					r.Post("/", projectHandler.Create)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", projectHandler.Get)
						r.Put("/", projectHandler.Update)
						r.Delete("/", projectHandler.Delete)
					})
				})

				// 要員管理
				r.Route("/api/personnel", func(r chi.Router) {
					r.Get("/", personnelHandler.List)
					r.Post("/", personnelHandler.Create)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", personnelHandler.Get)
						r.Put("/", personnelHandler.Update)
						r.Delete("/", personnelHandler.Delete)
					})
				})
			})

			// テナント管理ルート: CORPORATEゲート + 管理専用レート制限。
			// スコープミドルウェアは適用しない（CORPORATEは常に無制限のため）
			r.Route("/api/admin/tenants", func(r chi.Router) {
				r.Use(middleware.NewAdminGateMiddleware())
				r.Use(deps.RateLimiter.AdminMiddleware())

				r.Post("/", tenantAdminHandler.Create)
				r.Get("/", tenantAdminHandler.List)
				r.Delete("/{subdomain}", tenantAdminHandler.Deactivate)
			})
		})
	})

	return r
}

package middleware

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/fleetman/internal/model"
	"github.com/hitoshi/fleetman/internal/tenant"
)

// TenantResolver はテナント解決ミドルウェアが必要とするインターフェース。
// tenant.Registryの部分集合として定義する。
type TenantResolver interface {
	ResolveBySubdomain(ctx context.Context, subdomain string) (*model.TenantDescriptor, error)
	Connection(ctx context.Context, d *model.TenantDescriptor) (*sql.DB, error)
}

// TenantMiddlewareConfig はテナント解決ミドルウェアの設定を保持する。
type TenantMiddlewareConfig struct {
	// DefaultTenantFallback はサブドメインが解決不能なホストを
	// 既定テナントへフォールバックさせるかどうか。本番環境では
	// 誤設定されたトラフィックが既定テナントのデータへ流れ込むのを
	// 防ぐため無効にすることを想定している。
	DefaultTenantFallback bool
}

// NewTenantMiddleware はHostヘッダーからテナントを解決し、
// テナントディスクリプタと接続プールをリクエストコンテキストへ
// 注入するミドルウェアを返す。
//
// 振る舞い:
//   - サブドメイン解決不能: フォールバック有効なら既定テナントへ、
//     無効なら404 TENANT_NOT_FOUND
//   - 解決できたが未登録: 404 TENANT_NOT_FOUND
//   - 登録済みだが無効化済み: 403 TENANT_INACTIVE
//   - プール構築失敗: 503 CONNECTION_ERROR（キャッシュされないため次回再試行）
func NewTenantMiddleware(resolver TenantResolver, extractor *tenant.SubdomainExtractor, cfg TenantMiddlewareConfig, m AdmissionMetrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Hostヘッダーからサブドメインを抽出
			host := r.Host
			if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
				host = fwd
			}

			subdomain, ok := extractor.Extract(host)
			if !ok {
				if !cfg.DefaultTenantFallback {
					recordResolution(m, "unresolved")
					WriteErrorResponse(w, http.StatusNotFound, model.NewTenantNotFoundError(host))
					return
				}
				subdomain = extractor.DefaultSubdomain
			}

			// 2. レジストリでテナントを解決
			d, err := resolver.ResolveBySubdomain(r.Context(), subdomain)
			if err != nil {
				if errors.Is(err, tenant.ErrNotFound) {
					recordResolution(m, "not_found")
					WriteErrorResponse(w, http.StatusNotFound, model.NewTenantNotFoundError(subdomain))
					return
				}
				slog.Error("tenant resolution failed",
					slog.String("subdomain", subdomain),
					slog.String("error", err.Error()),
				)
				recordResolution(m, "error")
				WriteInternalServerError(w)
				return
			}

			if !d.IsActive {
				recordResolution(m, "inactive")
				WriteErrorResponse(w, http.StatusForbidden, model.NewTenantInactiveError(subdomain))
				return
			}

			// 3. テナント接続プールを取得（初回は遅延生成）
			db, err := resolver.Connection(r.Context(), d)
			if err != nil {
				if errors.Is(err, tenant.ErrInactive) {
					recordResolution(m, "inactive")
					WriteErrorResponse(w, http.StatusForbidden, model.NewTenantInactiveError(subdomain))
					return
				}
				slog.Error("tenant pool acquisition failed",
					slog.String("tenant_id", d.ID),
					slog.String("error", err.Error()),
				)
				recordResolution(m, "connection_error")
				WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewConnectionError())
				return
			}

			// 4. テナントと接続プールをコンテキストに注入
			recordResolution(m, "ok")
			ctx := ContextWithTenant(r.Context(), d)
			ctx = ContextWithDB(ctx, db)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func recordResolution(m AdmissionMetrics, outcome string) {
	if m != nil {
		m.RecordTenantResolution(outcome)
	}
}

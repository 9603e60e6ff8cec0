// Package middleware はHTTPミドルウェアを提供する。
// リクエスト受付レイヤー（テナント解決→認証→スコープ計算→管理ゲート）
// および横断的関心事（CORS、ロギング、リカバリ、レート制限）を含む。
package middleware

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/fleetman/internal/model"
	"github.com/hitoshi/fleetman/internal/scope"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	tenantContextKey   = contextKey("tenant")
	dbContextKey       = contextKey("tenant_db")
	identityContextKey = contextKey("identity")
	scopeContextKey    = contextKey("work_area_scope")
)

// ContextWithTenant はコンテキストにテナントディスクリプタを注入する。
func ContextWithTenant(ctx context.Context, d *model.TenantDescriptor) context.Context {
	return context.WithValue(ctx, tenantContextKey, d)
}

// TenantFromContext はリクエストコンテキストからテナントを取得する。
// テナント解決ミドルウェアを通過したリクエストでのみ有効。
func TenantFromContext(ctx context.Context) (*model.TenantDescriptor, error) {
	d, ok := ctx.Value(tenantContextKey).(*model.TenantDescriptor)
	if !ok || d == nil {
		return nil, fmt.Errorf("tenant not found in context")
	}
	return d, nil
}

// ContextWithDB はコンテキストにテナント接続プールを注入する。
func ContextWithDB(ctx context.Context, db *sql.DB) context.Context {
	return context.WithValue(ctx, dbContextKey, db)
}

// DBFromContext はリクエストコンテキストからテナント接続プールを取得する。
func DBFromContext(ctx context.Context) (*sql.DB, error) {
	db, ok := ctx.Value(dbContextKey).(*sql.DB)
	if !ok || db == nil {
		return nil, fmt.Errorf("tenant database not found in context")
	}
	return db, nil
}

// ContextWithIdentity はコンテキストに認証済みIdentityを注入する。
func ContextWithIdentity(ctx context.Context, id *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext はリクエストコンテキストからIdentityを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (*model.Identity, error) {
	id, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || id == nil {
		return nil, fmt.Errorf("identity not found in context")
	}
	return id, nil
}

// ContextWithScope はコンテキストに作業エリアスコープを注入する。
func ContextWithScope(ctx context.Context, s scope.WorkAreaScope) context.Context {
	return context.WithValue(ctx, scopeContextKey, s)
}

// ScopeFromContext はリクエストコンテキストから作業エリアスコープを取得する。
// スコープ計算ミドルウェアを通過したリクエストでのみ有効。
func ScopeFromContext(ctx context.Context) (scope.WorkAreaScope, error) {
	s, ok := ctx.Value(scopeContextKey).(scope.WorkAreaScope)
	if !ok {
		return scope.WorkAreaScope{}, fmt.Errorf("work area scope not found in context")
	}
	return s, nil
}

// AdmissionMetrics は受付レイヤーのメトリクス記録インターフェース。
// metrics.Collectorが実装する。nilを渡した場合は記録しない。
type AdmissionMetrics interface {
	RecordTenantResolution(outcome string)
	RecordAuthFailure(reason string)
	RecordScopeDenial()
}

package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/fleetman/internal/model"
)

// Registry はテナントディスクリプタの管理と接続プールの束ね役。
// ストアと接続キャッシュを明示的に注入して生成する
// （シングルトンではなくリクエストコンテキスト経由で引き回す）。
type Registry struct {
	store Store
	cache *ConnCache
}

// NewRegistry はRegistryを生成する。
func NewRegistry(store Store, cache *ConnCache) *Registry {
	return &Registry{
		store: store,
		cache: cache,
	}
}

// ResolveBySubdomain はサブドメインからテナントを解決する。
// 未登録の場合はErrNotFoundを返す。無効化済みテナントも返すため、
// IsActiveの判定は呼び出し側（ミドルウェア）が行う。
func (r *Registry) ResolveBySubdomain(ctx context.Context, subdomain string) (*model.TenantDescriptor, error) {
	d, err := r.store.FindBySubdomain(ctx, subdomain)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant: %w", err)
	}
	if d == nil {
		return nil, ErrNotFound
	}
	return d, nil
}

// Connection は有効なテナントの接続プールを返す。
// 同一テナントへの連続呼び出しは同一のプールを返す（冪等）。
func (r *Registry) Connection(ctx context.Context, d *model.TenantDescriptor) (*sql.DB, error) {
	if !d.IsActive {
		return nil, ErrInactive
	}
	return r.cache.Get(ctx, d)
}

// Create は新しいテナントを登録する。サブドメイン重複時は
// ErrDuplicateSubdomainを返す。
func (r *Registry) Create(ctx context.Context, name, subdomain, connURL string) (*model.TenantDescriptor, error) {
	d := &model.TenantDescriptor{
		ID:            uuid.NewString(),
		Name:          name,
		Subdomain:     subdomain,
		ConnectionURL: connURL,
		IsActive:      true,
		CreatedAt:     time.Now(),
	}
	if err := r.store.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// ListActive は有効なテナントの一覧を返す。
func (r *Registry) ListActive(ctx context.Context) ([]*model.TenantDescriptor, error) {
	return r.store.ListActive(ctx)
}

// Deactivate は指定サブドメインのテナントを無効化し、接続プールを
// 閉じてキャッシュから取り除く。既に無効な場合もプールの破棄だけは
// 行う（冪等）。テナントが存在しない場合はErrNotFoundを返す。
func (r *Registry) Deactivate(ctx context.Context, subdomain string) error {
	d, err := r.store.FindBySubdomain(ctx, subdomain)
	if err != nil {
		return fmt.Errorf("failed to find tenant: %w", err)
	}
	if d == nil {
		return ErrNotFound
	}

	if err := r.store.Deactivate(ctx, subdomain); err != nil {
		return err
	}

	// ストア更新後にプールを破棄する。この順序により、無効化を観測した
	// リクエストが新しいプールを生成しても世代チェックで破棄される。
	r.cache.Evict(d.ID)
	return nil
}

// Close は保持しているすべての接続プールを閉じる。
func (r *Registry) Close() {
	r.cache.Close()
}

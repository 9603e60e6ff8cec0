// Package tenant はテナントの解決と接続管理を提供する。
// サブドメインからのテナント特定、テナントごとの接続プールの
// ライフサイクル管理、および管理操作（作成・無効化）を担う。
package tenant

import (
	"context"
	"errors"

	"github.com/hitoshi/fleetman/internal/model"
)

// ErrNotFound は指定されたテナントが存在しないことを示す。
var ErrNotFound = errors.New("tenant not found")

// ErrInactive はテナントが無効化済みであることを示す。
var ErrInactive = errors.New("tenant is inactive")

// ErrDuplicateSubdomain はサブドメインが既に登録済みであることを示す。
var ErrDuplicateSubdomain = errors.New("subdomain already registered")

// Store はテナントディスクリプタの永続化インターフェース。
// テスト用のインメモリ実装と、本番用のPostgres実装（repositoryパッケージ）
// を差し替え可能にする。
type Store interface {
	// FindBySubdomain はサブドメインでテナントを検索する。見つからない場合はnilを返す。
	FindBySubdomain(ctx context.Context, subdomain string) (*model.TenantDescriptor, error)

	// FindByID はテナントIDでテナントを検索する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.TenantDescriptor, error)

	// Create はテナントを登録する。サブドメイン重複時はErrDuplicateSubdomainを返す。
	Create(ctx context.Context, d *model.TenantDescriptor) error

	// ListActive は有効なテナントの一覧を返す。
	ListActive(ctx context.Context) ([]*model.TenantDescriptor, error)

	// Deactivate は指定サブドメインのテナントを無効化する。
	// 既に無効な場合は何もしない（冪等）。テナントが存在しない場合はErrNotFoundを返す。
	Deactivate(ctx context.Context, subdomain string) error
}

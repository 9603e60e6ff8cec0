package tenant

import (
	"context"
	"sync"

	"github.com/hitoshi/fleetman/internal/model"
)

// MemoryStore はインメモリのテナントストア。
// サブドメインとIDの両方からの検索を提供し、両者が常に一致することを
// 単一のロックで保証する。テストおよび開発環境用。
type MemoryStore struct {
	mu          sync.RWMutex
	bySubdomain map[string]*model.TenantDescriptor
	byID        map[string]*model.TenantDescriptor
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bySubdomain: make(map[string]*model.TenantDescriptor),
		byID:        make(map[string]*model.TenantDescriptor),
	}
}

// FindBySubdomain はサブドメインでテナントを検索する。見つからない場合はnilを返す。
// 返り値はコピーであり、呼び出し側の変更はストアに影響しない。
func (s *MemoryStore) FindBySubdomain(ctx context.Context, subdomain string) (*model.TenantDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.bySubdomain[subdomain]
	if !ok {
		return nil, nil
	}
	copied := *d
	return &copied, nil
}

// FindByID はテナントIDでテナントを検索する。見つからない場合はnilを返す。
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*model.TenantDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	copied := *d
	return &copied, nil
}

// Create はテナントを登録する。サブドメイン重複時はErrDuplicateSubdomainを返す。
func (s *MemoryStore) Create(ctx context.Context, d *model.TenantDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySubdomain[d.Subdomain]; exists {
		return ErrDuplicateSubdomain
	}

	copied := *d
	s.bySubdomain[copied.Subdomain] = &copied
	s.byID[copied.ID] = &copied
	return nil
}

// ListActive は有効なテナントの一覧を返す。
func (s *MemoryStore) ListActive(ctx context.Context) ([]*model.TenantDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.TenantDescriptor
	for _, d := range s.byID {
		if d.IsActive {
			copied := *d
			result = append(result, &copied)
		}
	}
	return result, nil
}

// Deactivate は指定サブドメインのテナントを無効化する。
// 既に無効な場合は何もしない（冪等）。テナントが存在しない場合はErrNotFoundを返す。
// IsActiveの反転は同一ロック内の単一フィールド書き換えであり、
// 読み手が半適用状態のディスクリプタを観測することはない。
func (s *MemoryStore) Deactivate(ctx context.Context, subdomain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.bySubdomain[subdomain]
	if !ok {
		return ErrNotFound
	}
	d.IsActive = false
	return nil
}

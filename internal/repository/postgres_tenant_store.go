package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/fleetman/internal/model"
	"github.com/hitoshi/fleetman/internal/tenant"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// PostgresTenantStore はコントロールプレーンDBを使用したテナントストア。
// tenant.Storeを実装し、プロセス再起動をまたいでテナント登録を保持する。
type PostgresTenantStore struct {
	db *sql.DB
}

// NewPostgresTenantStore はPostgresTenantStoreを生成する。
func NewPostgresTenantStore(db *sql.DB) *PostgresTenantStore {
	return &PostgresTenantStore{db: db}
}

// FindBySubdomain はサブドメインでテナントを検索する。見つからない場合はnilを返す。
func (s *PostgresTenantStore) FindBySubdomain(ctx context.Context, subdomain string) (*model.TenantDescriptor, error) {
	return s.findBy(ctx, `subdomain = $1`, subdomain)
}

// FindByID はテナントIDでテナントを検索する。見つからない場合はnilを返す。
func (s *PostgresTenantStore) FindByID(ctx context.Context, id string) (*model.TenantDescriptor, error) {
	return s.findBy(ctx, `id = $1`, id)
}

func (s *PostgresTenantStore) findBy(ctx context.Context, predicate string, arg string) (*model.TenantDescriptor, error) {
	d := &model.TenantDescriptor{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, subdomain, connection_url, is_active, created_at
		 FROM tenants WHERE `+predicate,
		arg,
	).Scan(&d.ID, &d.Name, &d.Subdomain, &d.ConnectionURL, &d.IsActive, &d.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tenant: %w", err)
	}

	return d, nil
}

// Create はテナントを登録する。サブドメイン重複時はErrDuplicateSubdomainを返す。
func (s *PostgresTenantStore) Create(ctx context.Context, d *model.TenantDescriptor) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, subdomain, connection_url, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.Name, d.Subdomain, d.ConnectionURL, d.IsActive, d.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return tenant.ErrDuplicateSubdomain
		}
		return fmt.Errorf("failed to insert tenant: %w", err)
	}
	return nil
}

// ListActive は有効なテナントの一覧を返す。
func (s *PostgresTenantStore) ListActive(ctx context.Context) ([]*model.TenantDescriptor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, subdomain, connection_url, is_active, created_at
		 FROM tenants WHERE is_active = TRUE
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	result := []*model.TenantDescriptor{}
	for rows.Next() {
		d := &model.TenantDescriptor{}
		if err := rows.Scan(&d.ID, &d.Name, &d.Subdomain, &d.ConnectionURL, &d.IsActive, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenants: %w", err)
	}

	return result, nil
}

// Deactivate は指定サブドメインのテナントを無効化する。
// 既に無効な場合も成功として扱う（冪等）。
// テナントが存在しない場合はtenant.ErrNotFoundを返す。
func (s *PostgresTenantStore) Deactivate(ctx context.Context, subdomain string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET is_active = FALSE WHERE subdomain = $1`,
		subdomain,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate tenant: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return tenant.ErrNotFound
	}
	return nil
}

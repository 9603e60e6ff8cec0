package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/fleetman/internal/model"
	"github.com/hitoshi/fleetman/internal/scope"
)

// PostgresPersonnelRepo はPostgreSQLを使用した要員リポジトリ。
type PostgresPersonnelRepo struct {
	db *sql.DB
}

// NewPostgresPersonnelRepo はPostgresPersonnelRepoを生成する。
func NewPostgresPersonnelRepo(db *sql.DB) *PostgresPersonnelRepo {
	return &PostgresPersonnelRepo{db: db}
}

// ListByScope はスコープと交差した要員一覧を返す。
// 空の制限付きスコープの場合はクエリを発行せず空の結果を返す。
func (r *PostgresPersonnelRepo) ListByScope(ctx context.Context, s scope.WorkAreaScope) ([]*model.Personnel, error) {
	if s.IsEmpty() {
		return []*model.Personnel{}, nil
	}

	query := `SELECT id, work_area_id, name, role, email, is_active, created_at, updated_at
		 FROM personnel`
	var args []interface{}
	if !s.IsUnrestricted() {
		query += ` WHERE work_area_id = ANY($1)`
		args = append(args, pq.Array(s.IDs()))
	}
	query += ` ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list personnel: %w", err)
	}
	defer rows.Close()

	result := []*model.Personnel{}
	for rows.Next() {
		p := &model.Personnel{}
		if err := rows.Scan(&p.ID, &p.WorkAreaID, &p.Name, &p.Role, &p.Email, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan personnel: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate personnel: %w", err)
	}

	return result, nil
}

// FindByID は指定IDの要員を取得する。見つからない場合はnilを返す。
func (r *PostgresPersonnelRepo) FindByID(ctx context.Context, id string) (*model.Personnel, error) {
	p := &model.Personnel{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, work_area_id, name, role, email, is_active, created_at, updated_at
		 FROM personnel WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.WorkAreaID, &p.Name, &p.Role, &p.Email, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find personnel by ID: %w", err)
	}

	return p, nil
}

// Create は要員を作成する。
func (r *PostgresPersonnelRepo) Create(ctx context.Context, p *model.Personnel) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO personnel (id, work_area_id, name, role, email, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.WorkAreaID, p.Name, p.Role, p.Email, p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert personnel: %w", err)
	}
	return nil
}

// Update は要員を更新する。対象が存在しない場合はfalseを返す。
func (r *PostgresPersonnelRepo) Update(ctx context.Context, p *model.Personnel) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE personnel
		 SET name = $2, role = $3, email = $4, is_active = $5, updated_at = $6
		 WHERE id = $1`,
		p.ID, p.Name, p.Role, p.Email, p.IsActive, p.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update personnel: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Delete は要員を削除する。対象が存在しない場合はfalseを返す。
func (r *PostgresPersonnelRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM personnel WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete personnel: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

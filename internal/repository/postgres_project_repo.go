package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/fleetman/internal/model"
	"github.com/hitoshi/fleetman/internal/scope"
)

// PostgresProjectRepo はPostgreSQLを使用したプロジェクトリポジトリ。
type PostgresProjectRepo struct {
	db *sql.DB
}

// NewPostgresProjectRepo はPostgresProjectRepoを生成する。
func NewPostgresProjectRepo(db *sql.DB) *PostgresProjectRepo {
	return &PostgresProjectRepo{db: db}
}

// ListByScope はスコープと交差したプロジェクト一覧を返す。
// 空の制限付きスコープの場合はクエリを発行せず空の結果を返す。
func (r *PostgresProjectRepo) ListByScope(ctx context.Context, s scope.WorkAreaScope) ([]*model.Project, error) {
	if s.IsEmpty() {
		return []*model.Project{}, nil
	}

	query := `SELECT id, work_area_id, name, status, start_date, end_date, created_at, updated_at
		 FROM projects`
	var args []interface{}
	if !s.IsUnrestricted() {
		query += ` WHERE work_area_id = ANY($1)`
		args = append(args, pq.Array(s.IDs()))
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	result := []*model.Project{}
	for rows.Next() {
		p := &model.Project{}
		if err := rows.Scan(&p.ID, &p.WorkAreaID, &p.Name, &p.Status, &p.StartDate, &p.EndDate, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}

	return result, nil
}

// FindByID は指定IDのプロジェクトを取得する。見つからない場合はnilを返す。
func (r *PostgresProjectRepo) FindByID(ctx context.Context, id string) (*model.Project, error) {
	p := &model.Project{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, work_area_id, name, status, start_date, end_date, created_at, updated_at
		 FROM projects WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.WorkAreaID, &p.Name, &p.Status, &p.StartDate, &p.EndDate, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project by ID: %w", err)
	}

	return p, nil
}

// Create はプロジェクトを作成する。
func (r *PostgresProjectRepo) Create(ctx context.Context, p *model.Project) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, work_area_id, name, status, start_date, end_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.WorkAreaID, p.Name, p.Status, p.StartDate, p.EndDate, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// Update はプロジェクトを更新する。対象が存在しない場合はfalseを返す。
func (r *PostgresProjectRepo) Update(ctx context.Context, p *model.Project) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE projects
		 SET name = $2, status = $3, start_date = $4, end_date = $5, updated_at = $6
		 WHERE id = $1`,
		p.ID, p.Name, p.Status, p.StartDate, p.EndDate, p.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update project: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Delete はプロジェクトを削除する。対象が存在しない場合はfalseを返す。
func (r *PostgresProjectRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM projects WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete project: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

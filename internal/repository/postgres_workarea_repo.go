package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/fleetman/internal/model"
	"github.com/hitoshi/fleetman/internal/scope"
)

// PostgresWorkAreaRepo はPostgreSQLを使用した作業エリアリポジトリ。
// リクエストごとにテナント接続プールへ束縛して生成する。
type PostgresWorkAreaRepo struct {
	db *sql.DB
}

// NewPostgresWorkAreaRepo はPostgresWorkAreaRepoを生成する。
func NewPostgresWorkAreaRepo(db *sql.DB) *PostgresWorkAreaRepo {
	return &PostgresWorkAreaRepo{db: db}
}

// ListByScope はスコープと交差した作業エリア一覧を返す。
// Unrestrictedなら述語なし、制限付きなら id = ANY(ids)、
// 空の制限付きスコープならクエリを発行せず空の結果を返す。
func (r *PostgresWorkAreaRepo) ListByScope(ctx context.Context, s scope.WorkAreaScope) ([]*model.WorkArea, error) {
	// 空スコープの短絡: 常に0件。述語を曖昧に埋め込まず明示的に打ち切る
	if s.IsEmpty() {
		return []*model.WorkArea{}, nil
	}

	query := `SELECT id, name, address, is_active, created_at, updated_at
		 FROM work_areas`
	var args []interface{}
	if !s.IsUnrestricted() {
		query += ` WHERE id = ANY($1)`
		args = append(args, pq.Array(s.IDs()))
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list work areas: %w", err)
	}
	defer rows.Close()

	result := []*model.WorkArea{}
	for rows.Next() {
		wa := &model.WorkArea{}
		if err := rows.Scan(&wa.ID, &wa.Name, &wa.Address, &wa.IsActive, &wa.CreatedAt, &wa.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan work area: %w", err)
		}
		result = append(result, wa)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate work areas: %w", err)
	}

	return result, nil
}

// FindByID は指定IDの作業エリアを取得する。見つからない場合はnilを返す。
func (r *PostgresWorkAreaRepo) FindByID(ctx context.Context, id int64) (*model.WorkArea, error) {
	wa := &model.WorkArea{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, address, is_active, created_at, updated_at
		 FROM work_areas WHERE id = $1`,
		id,
	).Scan(&wa.ID, &wa.Name, &wa.Address, &wa.IsActive, &wa.CreatedAt, &wa.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find work area by ID: %w", err)
	}

	return wa, nil
}

// Create は作業エリアを作成し、採番されたIDを設定する。
func (r *PostgresWorkAreaRepo) Create(ctx context.Context, wa *model.WorkArea) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO work_areas (name, address, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		wa.Name, wa.Address, wa.IsActive, wa.CreatedAt, wa.UpdatedAt,
	).Scan(&wa.ID)
	if err != nil {
		return fmt.Errorf("failed to insert work area: %w", err)
	}
	return nil
}

// Update は作業エリアを更新する。対象が存在しない場合はfalseを返す。
func (r *PostgresWorkAreaRepo) Update(ctx context.Context, wa *model.WorkArea) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE work_areas
		 SET name = $2, address = $3, is_active = $4, updated_at = $5
		 WHERE id = $1`,
		wa.ID, wa.Name, wa.Address, wa.IsActive, wa.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update work area: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Delete は作業エリアを削除する。対象が存在しない場合はfalseを返す。
func (r *PostgresWorkAreaRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM work_areas WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete work area: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

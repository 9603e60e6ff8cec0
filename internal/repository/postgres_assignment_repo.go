package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresAssignmentRepo はPostgreSQLを使用した割り当てリポジトリ。
type PostgresAssignmentRepo struct {
	db *sql.DB
}

// NewPostgresAssignmentRepo はPostgresAssignmentRepoを生成する。
func NewPostgresAssignmentRepo(db *sql.DB) *PostgresAssignmentRepo {
	return &PostgresAssignmentRepo{db: db}
}

// ListActiveWorkAreaIDs は指定ユーザーの有効な割り当て先の
// 作業エリアID一覧を返す。割り当てがない場合は空スライスを返す
// （nilではなく空であることがスコープ計算の全拒否判定に対応する）。
func (r *PostgresAssignmentRepo) ListActiveWorkAreaIDs(ctx context.Context, userID string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT work_area_id FROM work_area_assignments
		 WHERE user_id = $1 AND is_active = TRUE
		 ORDER BY work_area_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active assignments: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assignments: %w", err)
	}

	return ids, nil
}

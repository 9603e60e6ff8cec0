// Package repository はデータ永続化のインターフェースを定義する。
// テナントごとのリソース（作業エリア・プロジェクト・要員・割り当て）と、
// コントロールプレーンのテナントストアのPostgres実装を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/fleetman/internal/model"
	"github.com/hitoshi/fleetman/internal/scope"
)

// WorkAreaRepository は作業エリアデータの永続化インターフェース。
type WorkAreaRepository interface {
	// ListByScope はスコープと交差した作業エリア一覧を返す。
	// 空の制限付きスコープの場合はクエリを発行せず空の結果を返す。
	ListByScope(ctx context.Context, s scope.WorkAreaScope) ([]*model.WorkArea, error)

	// FindByID は指定IDの作業エリアを取得する。見つからない場合はnilを返す。
	// スコープとの照合は呼び出し側が行う。
	FindByID(ctx context.Context, id int64) (*model.WorkArea, error)

	// Create は作業エリアを作成し、採番されたIDを設定する。
	Create(ctx context.Context, wa *model.WorkArea) error

	// Update は作業エリアを更新する。対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, wa *model.WorkArea) (bool, error)

	// Delete は作業エリアを削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, id int64) (bool, error)
}

// ProjectRepository はプロジェクトデータの永続化インターフェース。
type ProjectRepository interface {
	// ListByScope はスコープと交差したプロジェクト一覧を返す。
	// 空の制限付きスコープの場合はクエリを発行せず空の結果を返す。
	ListByScope(ctx context.Context, s scope.WorkAreaScope) ([]*model.Project, error)

	// FindByID は指定IDのプロジェクトを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Project, error)

	// Create はプロジェクトを作成する。
	Create(ctx context.Context, p *model.Project) error

	// Update はプロジェクトを更新する。対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, p *model.Project) (bool, error)

	// Delete はプロジェクトを削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)
}

// PersonnelRepository は要員データの永続化インターフェース。
type PersonnelRepository interface {
	// ListByScope はスコープと交差した要員一覧を返す。
	// 空の制限付きスコープの場合はクエリを発行せず空の結果を返す。
	ListByScope(ctx context.Context, s scope.WorkAreaScope) ([]*model.Personnel, error)

	// FindByID は指定IDの要員を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Personnel, error)

	// Create は要員を作成する。
	Create(ctx context.Context, p *model.Personnel) error

	// Update は要員を更新する。対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, p *model.Personnel) (bool, error)

	// Delete は要員を削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)
}

// AssignmentRepository は作業エリア割り当ての永続化インターフェース。
type AssignmentRepository interface {
	// ListActiveWorkAreaIDs は指定ユーザーの有効な割り当て先の
	// 作業エリアID一覧を返す。割り当てがない場合は空を返す。
	ListActiveWorkAreaIDs(ctx context.Context, userID string) ([]int64, error)
}

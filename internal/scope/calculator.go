package scope

import (
	"context"
	"fmt"

	"github.com/hitoshi/fleetman/internal/model"
)

// AssignmentFinder は有効な割り当てレコードの検索に必要なインターフェース。
// repository.AssignmentRepositoryの部分集合として定義する。
type AssignmentFinder interface {
	ListActiveWorkAreaIDs(ctx context.Context, userID string) ([]int64, error)
}

// Calculator は認証済みIdentityから作業エリアスコープを計算する。
type Calculator struct{}

// NewCalculator はCalculatorを生成する。
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Compute はIdentityのスコープをリクエスト時点の割り当てから計算する。
// CORPORATEレベルはUnrestricted、それ未満は有効な割り当てレコード由来の
// Restrictedスコープとなる。割り当てが1件もない場合は全拒否の空スコープ。
//
// スコープはリクエストをまたいでキャッシュしてはならない。割り当ては
// リクエスト間で変化しうるため、古いスコープの再利用は権限昇格につながる。
func (c *Calculator) Compute(ctx context.Context, identity *model.Identity, finder AssignmentFinder) (WorkAreaScope, error) {
	if identity.Level == model.LevelCorporate {
		return Unrestricted(), nil
	}

	ids, err := finder.ListActiveWorkAreaIDs(ctx, identity.UserID)
	if err != nil {
		return WorkAreaScope{}, fmt.Errorf("failed to list work area assignments: %w", err)
	}
	return Restricted(ids), nil
}

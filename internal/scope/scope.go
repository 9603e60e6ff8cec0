// Package scope は作業エリアスコープの表現と計算を提供する。
// 認証済みユーザーがアクセス可能な作業エリア集合を導出し、
// すべての下流クエリに適用するための契約を定義する。
package scope

import (
	"sort"
)

// WorkAreaScope はリクエストごとに計算されたアクセス範囲を表す。
// Unrestrictedはスコープ制約なし（全行可視）を意味し、
// そうでない場合はidsに含まれる作業エリアのみアクセス可能。
// 空集合は有効な値であり「全拒否」を意味する。「制約なし」と
// 混同してはならない。
type WorkAreaScope struct {
	unrestricted bool
	ids          map[int64]struct{}
}

// Unrestricted はスコープ制約なしを表すWorkAreaScopeを返す。
func Unrestricted() WorkAreaScope {
	return WorkAreaScope{unrestricted: true}
}

// Restricted は指定された作業エリア集合に制限されたWorkAreaScopeを返す。
// 空スライスを渡した場合は全拒否スコープとなる。
func Restricted(workAreaIDs []int64) WorkAreaScope {
	ids := make(map[int64]struct{}, len(workAreaIDs))
	for _, id := range workAreaIDs {
		ids[id] = struct{}{}
	}
	return WorkAreaScope{ids: ids}
}

// IsUnrestricted はスコープ制約がないかどうかを返す。
func (s WorkAreaScope) IsUnrestricted() bool {
	return s.unrestricted
}

// IsEmpty は制限付きスコープかつ集合が空（全拒否）かどうかを返す。
func (s WorkAreaScope) IsEmpty() bool {
	return !s.unrestricted && len(s.ids) == 0
}

// Allows は指定された作業エリアへのアクセス可否を返す。
func (s WorkAreaScope) Allows(workAreaID int64) bool {
	if s.unrestricted {
		return true
	}
	_, ok := s.ids[workAreaID]
	return ok
}

// IDs は制限付きスコープの作業エリアID一覧を昇順で返す。
// クエリの述語（work_area_id = ANY($1)）に渡すために使用する。
// Unrestrictedの場合はnilを返す。
func (s WorkAreaScope) IDs() []int64 {
	if s.unrestricted {
		return nil
	}
	ids := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

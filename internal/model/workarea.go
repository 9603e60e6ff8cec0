package model

import "time"

// WorkArea は作業エリア（現場・プロジェクト拠点）を表す。
// CORPORATE未満のレベルのユーザーに対するアクセス制御の単位となる。
type WorkArea struct {
	ID        int64
	Name      string
	Address   string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Assignment はユーザーと作業エリアの割り当て関係を表す。
// IsActiveがtrueの割り当てのみがスコープ計算の対象となる。
type Assignment struct {
	ID         string
	UserID     string
	WorkAreaID int64
	IsActive   bool
	CreatedAt  time.Time
}

// Package model はドメインモデルを定義する。
package model

import "time"

// TenantDescriptor はテナント（契約企業）を表す。
// サブドメインによるルーティングキーと、テナント専用データベースへの
// 接続URLを保持する。物理削除は行わず、IsActiveをfalseにすることが
// 唯一の削除経路となる。
type TenantDescriptor struct {
	ID            string
	Name          string
	Subdomain     string
	ConnectionURL string
	IsActive      bool
	CreatedAt     time.Time
}

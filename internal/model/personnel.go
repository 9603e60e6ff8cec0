package model

import "time"

// Personnel は作業エリアに配属された要員を表す。
// WorkAreaIDによるスコープ制御の対象リソース。
type Personnel struct {
	ID         string
	WorkAreaID int64
	Name       string
	Role       string
	Email      string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// User はテナントデータベース内のAPI利用ユーザーを表す。
// 認可レベルはJWTクレームに埋め込まれるが、DB上の値が発行時の正となる。
type User struct {
	ID        string
	Email     string
	Name      string
	Level     Level
	CreatedAt time.Time
	UpdatedAt time.Time
}

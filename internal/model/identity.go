package model

import "fmt"

// Level は認可レベルを表す順序付き列挙型。
// SITE < COMPANY < CORPORATE の順で権限が強くなる。
type Level int

const (
	// LevelSite は単一作業エリアレベルの権限。
	LevelSite Level = iota
	// LevelCompany は会社レベルの権限。作業エリアスコープの制約を受ける。
	LevelCompany
	// LevelCorporate は最上位の権限。作業エリアスコープの制約を受けない。
	LevelCorporate
)

// String はレベルのクレーム表現を返す。
func (l Level) String() string {
	switch l {
	case LevelSite:
		return "site"
	case LevelCompany:
		return "company"
	case LevelCorporate:
		return "corporate"
	default:
		return "unknown"
	}
}

// ParseLevel はクレーム文字列からLevelを解析する。
// 未知の文字列の場合はエラーを返す（デフォルトレベルへのフォールバックはしない）。
func ParseLevel(s string) (Level, error) {
	switch s {
	case "site":
		return LevelSite, nil
	case "company":
		return LevelCompany, nil
	case "corporate":
		return LevelCorporate, nil
	default:
		return 0, fmt.Errorf("unknown authorization level: %q", s)
	}
}

// Identity は検証済みクレデンシャルから導出された認証済みユーザーを表す。
// リクエストごとに生成され、リクエスト終了とともに破棄される。
type Identity struct {
	UserID string
	Level  Level
}

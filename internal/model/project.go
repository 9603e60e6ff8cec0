package model

import "time"

// ProjectStatus はプロジェクトの進行状態を表す。
type ProjectStatus string

const (
	// ProjectStatusPlanned は計画中の状態。
	ProjectStatusPlanned ProjectStatus = "planned"
	// ProjectStatusActive は進行中の状態。
	ProjectStatusActive ProjectStatus = "active"
	// ProjectStatusCompleted は完了した状態。
	ProjectStatusCompleted ProjectStatus = "completed"
)

// Project は作業エリアに属するプロジェクトを表す。
// すべてのクエリは所属先のWorkAreaIDでスコープ制御される。
type Project struct {
	ID         string
	WorkAreaID int64
	Name       string
	Status     ProjectStatus
	StartDate  time.Time
	EndDate    *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

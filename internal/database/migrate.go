// Package database はデータベース接続とマイグレーション管理を提供する。
// コントロールプレーン（tenantsテーブル）とテナントスキーマの
// 2系統のマイグレーションを持つ。
package database

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed control/*.sql
var controlFS embed.FS

//go:embed tenantschema/*.sql
var tenantFS embed.FS

// newMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
func newMigrator(fs embed.FS, dir, databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunControlMigrations はコントロールプレーンDBのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。
func RunControlMigrations(databaseURL string) error {
	return runAll(controlFS, "control", databaseURL)
}

// RunTenantMigrations は指定テナントDBにテナントスキーマを適用する。
// 新規テナントの初期化と、既存テナントへのスキーマ追従の両方に使う。
func RunTenantMigrations(databaseURL string) error {
	return runAll(tenantFS, "tenantschema", databaseURL)
}

func runAll(fs embed.FS, dir, databaseURL string) error {
	m, err := newMigrator(fs, dir, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

package database

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

// catalogTable is shared by files and media; both carry the same columns.
func catalogTable(table string) []string {
	return []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id            VARCHAR(36)   PRIMARY KEY,
				name          VARCHAR(255)  NOT NULL,
				original_name VARCHAR(255)  NOT NULL,
				mime_type     VARCHAR(255)  NOT NULL,
				size          BIGINT        NOT NULL,
				path          VARCHAR(512)  NOT NULL,
				url           VARCHAR(1024) NOT NULL,
				folder        VARCHAR(64)   NOT NULL,
				title_en      VARCHAR(255)  NOT NULL DEFAULT '',
				title_ar      VARCHAR(255)  NOT NULL DEFAULT '',
				category      VARCHAR(64)   NOT NULL DEFAULT '',
				featured      BOOLEAN       NOT NULL DEFAULT FALSE,
				created_at    TIMESTAMP     NOT NULL,
				updated_at    TIMESTAMP     NOT NULL
			)`, table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_path ON %s (path)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s (created_at)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_folder ON %s (folder)`, table, table),
	}
}

var migrations = []struct {
	Version    string
	Statements []string
}{
	{Version: "000001_create_files", Statements: catalogTable("files")},
	{Version: "000002_create_media", Statements: catalogTable("media")},
}

// Migrate applies pending migrations in order, each inside its own transaction.
// The SQL is kept to the subset shared by Postgres and SQLite.
func Migrate(db *gorm.DB, log *slog.Logger) error {
	err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`).Error
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var applied int64
		if err := db.Raw("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&applied).Error; err != nil {
			return fmt.Errorf("check migration %s: %w", m.Version, err)
		}
		if applied > 0 {
			continue
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			for _, stmt := range m.Statements {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version).Error
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Version, err)
		}

		log.Info("applied migration", "version", m.Version)
	}

	return nil
}

package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func addFailedAttemptsIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_add_failed_attempts_index",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_dispatch_attempts_failed ON dispatch_attempts (recipient) WHERE status = 'FAILED'`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP INDEX IF EXISTS idx_dispatch_attempts_failed`).Error
		},
	}
}

package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/hookrelay/internal/repository"
	"gorm.io/gorm"
)

func createDeliveriesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_deliveries",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_deliveries_due ON deliveries (next_attempt_at) WHERE status IN ('PENDING', 'RETRY_SCHEDULED')`,
				`CREATE INDEX IF NOT EXISTS idx_deliveries_claimed ON deliveries (claimed_at) WHERE status = 'IN_PROGRESS'`,
				`CREATE INDEX IF NOT EXISTS idx_deliveries_terminal_updated ON deliveries (updated_at) WHERE status IN ('SUCCEEDED', 'FAILED_PERMANENT')`,
				`CREATE INDEX IF NOT EXISTS idx_deliveries_subscription_created ON deliveries (subscription_id, created_at)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryModel{})
		},
	}
}

package migrations

import (
	"path/filepath"
	"testing"

	"github.com/kursadbilgin/hookrelay/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMigrateCreatesSchemaAndIsRepeatable(t *testing.T) {
	t.Parallel()

	dsn := "file:" + filepath.Join(t.TempDir(), "migrate.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	for i := 0; i < 2; i++ {
		if err := Migrate(db); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i+1, err)
		}
	}

	migrator := db.Migrator()
	for _, model := range []any{&repository.SubscriptionModel{}, &repository.DeliveryModel{}, &repository.AttemptModel{}} {
		if !migrator.HasTable(model) {
			t.Fatalf("table for %T was not created", model)
		}
	}

	indexes := map[any]string{
		&repository.AttemptModel{}:  "idx_attempts_delivery_number",
		&repository.DeliveryModel{}: "idx_deliveries_due",
	}
	for model, name := range indexes {
		if !migrator.HasIndex(model, name) {
			t.Fatalf("index %s is missing", name)
		}
	}
}

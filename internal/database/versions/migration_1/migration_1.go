package migration_1

import (
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Job struct {
	Payload datatypes.JSON
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&Job{}, "payload"); err != nil {
		return fmt.Errorf("error adding payload column: %w", err)
	}
	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropColumn(&Job{}, "payload"); err != nil {
		return fmt.Errorf("error dropping payload column: %w", err)
	}
	return nil
}

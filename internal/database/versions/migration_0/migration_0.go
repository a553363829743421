package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Job struct {
	Id             uuid.UUID     `gorm:"type:uuid;primaryKey"`
	OwnerId        uuid.UUID     `gorm:"type:uuid;not null;index"`
	Status         string        `gorm:"size:20;not null;index"`
	Model          string        `gorm:"size:20;not null"`
	DatasetId      uuid.NullUUID `gorm:"type:uuid;index"`
	ImageId        uuid.NullUUID `gorm:"type:uuid;index"`
	ErrorMessage   sql.NullString
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletionTime sql.NullTime
}

type Dataset struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time
}

type DatasetClass struct {
	DatasetId uuid.UUID `gorm:"type:uuid;primaryKey"`
	ClassId   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"not null"`
}

type Image struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	DatasetId uuid.UUID `gorm:"type:uuid;not null;index"`
	Url       string    `gorm:"not null"`
	CreatedAt time.Time
}

type Label struct {
	Id          uuid.UUID `gorm:"type:uuid;primaryKey"`
	DatasetId   uuid.UUID `gorm:"type:uuid;not null;index"`
	ImageId     uuid.UUID `gorm:"type:uuid;not null;index"`
	ClassId     int       `gorm:"not null"`
	XCenter     float64
	YCenter     float64
	Width       float64
	Height      float64
	Confidence  float64
	GeneratedBy string `gorm:"size:20"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&Job{}, &Dataset{}, &DatasetClass{}, &Image{}, &Label{}); err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropTable(&Label{}, &Image{}, &DatasetClass{}, &Dataset{}, &Job{}); err != nil {
		return fmt.Errorf("initial rollback failed: %w", err)
	}
	return nil
}

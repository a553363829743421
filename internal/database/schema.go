package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobCreated string = "created"
	JobRunning string = "running"
	JobDone    string = "done"
	JobFailed  string = "failed"
)

// Stored model values.
const (
	ModelYoloWorld string = "YOLOWorld"
	ModelSam       string = "SAM"
)

type Job struct {
	Id      uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerId uuid.UUID `gorm:"type:uuid;not null;index"`
	Status  string    `gorm:"size:20;not null;index"`
	Model   string    `gorm:"size:20;not null"`

	// Exactly one of DatasetId and ImageId is set.
	DatasetId uuid.NullUUID `gorm:"type:uuid;index"`
	ImageId   uuid.NullUUID `gorm:"type:uuid;index"`

	ErrorMessage sql.NullString

	// Payload is the task body that was published for this job.
	Payload datatypes.JSON

	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletionTime sql.NullTime
}

type Dataset struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time

	Classes []DatasetClass `gorm:"foreignKey:DatasetId;constraint:OnDelete:CASCADE"`
	Images  []Image        `gorm:"foreignKey:DatasetId;constraint:OnDelete:CASCADE"`
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
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	DatasetId uuid.UUID `gorm:"type:uuid;not null;index"`
	ImageId   uuid.UUID `gorm:"type:uuid;not null;index"`
	Image     *Image    `gorm:"foreignKey:ImageId;constraint:OnDelete:CASCADE"`
	ClassId   int       `gorm:"not null"`

	XCenter    float64
	YCenter    float64
	Width      float64
	Height     float64
	Confidence float64

	GeneratedBy string `gorm:"size:20"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

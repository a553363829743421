package migration_1

import (
	"testing"

	"autolabel-backend/internal/database/versions/migration_0"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type jobWithPayload struct {
	Id      uuid.UUID `gorm:"type:uuid;primaryKey"`
	Status  string
	Payload []byte
}

func (jobWithPayload) TableName() string {
	return "jobs"
}

func TestMigration(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, migration_0.Migration(db))

	jobId := uuid.New()
	require.NoError(t, db.Create(&migration_0.Job{Id: jobId, OwnerId: uuid.New(), Status: "created", Model: "YOLOWorld"}).Error)

	require.NoError(t, Migration(db))
	assert.True(t, db.Migrator().HasColumn(&Job{}, "payload"))

	require.NoError(t, db.Model(&jobWithPayload{}).Where("id = ?", jobId).Update("payload", []byte(`{"a":1}`)).Error)

	var job jobWithPayload
	require.NoError(t, db.First(&job, "id = ?", jobId).Error)
	assert.Equal(t, "created", job.Status)
	assert.JSONEq(t, `{"a":1}`, string(job.Payload))

	require.NoError(t, Rollback(db))
	assert.False(t, db.Migrator().HasColumn(&Job{}, "payload"))
}

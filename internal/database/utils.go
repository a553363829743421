package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"autolabel-backend/internal/core/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// allowedPriorStatus lists for each target status the statuses it may be
// entered from. Terminal statuses are never left.
var allowedPriorStatus = map[string][]string{
	JobRunning: {JobCreated},
	JobDone:    {JobCreated, JobRunning},
	JobFailed:  {JobCreated, JobRunning},
}

func IsTerminalStatus(status string) bool {
	return status == JobDone || status == JobFailed
}

// UpdateJobStatus moves a job forward. The prior status check is part of the
// UPDATE so concurrent writers cannot regress a job.
func UpdateJobStatus(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, status string, errorMessage string) error {
	prior, ok := allowedPriorStatus[status]
	if !ok {
		return fmt.Errorf("%w: cannot move job %s to status %q", types.ErrInvalidTransition, jobId, status)
	}

	updates := map[string]any{"status": status}
	if IsTerminalStatus(status) {
		updates["completion_time"] = time.Now().UTC()
	}
	if status == JobFailed {
		updates["error_message"] = errorMessage
	}

	result := txn.WithContext(ctx).Model(&Job{}).Where("id = ? AND status IN ?", jobId, prior).Updates(updates)
	if result.Error != nil {
		slog.Error("error updating job status", "job_id", jobId, "status", status, "error", result.Error)
		return fmt.Errorf("%w: error updating job status: %v", types.ErrPersistence, result.Error)
	}

	if result.RowsAffected == 0 {
		var job Job
		if err := txn.WithContext(ctx).Select("status").First(&job, "id = ?", jobId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", types.ErrJobNotFound, jobId)
			}
			return fmt.Errorf("%w: error loading job: %v", types.ErrPersistence, err)
		}
		return fmt.Errorf("%w: job %s is %s, cannot move to %s", types.ErrInvalidTransition, jobId, job.Status, status)
	}

	return nil
}

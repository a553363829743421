package api

import (
	"autolabel-backend/internal/database"
	"autolabel-backend/pkg/api"
)

func convertJob(j database.Job) api.Job {
	job := api.Job{
		Id:        j.Id,
		OwnerId:   j.OwnerId,
		Status:    j.Status,
		Model:     j.Model,
		CreatedAt: j.CreatedAt,
	}
	if j.DatasetId.Valid {
		job.DatasetId = &j.DatasetId.UUID
	}
	if j.ImageId.Valid {
		job.ImageId = &j.ImageId.UUID
	}
	if j.ErrorMessage.Valid {
		job.ErrorMessage = j.ErrorMessage.String
	}
	if j.CompletionTime.Valid {
		job.CompletionTime = &j.CompletionTime.Time
	}
	return job
}

func convertJobs(js []database.Job) []api.Job {
	jobs := make([]api.Job, 0, len(js))
	for _, j := range js {
		jobs = append(jobs, convertJob(j))
	}
	return jobs
}

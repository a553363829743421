package api

import (
	"time"

	"github.com/google/uuid"
)

type PredictDatasetRequest struct {
	OwnerId   uuid.UUID `json:"owner_id"`
	Model     string    `json:"model"`
	DatasetId uuid.UUID `json:"dataset_id"`
}

type PredictImageRequest struct {
	OwnerId   uuid.UUID `json:"owner_id"`
	Model     string    `json:"model"`
	DatasetId uuid.UUID `json:"dataset_id"`
	ImageId   uuid.UUID `json:"image_id"`
}

type SubmitJobResponse struct {
	JobId uuid.UUID `json:"job_id"`
}

type PredictSamRequest struct {
	ImageUrl string        `json:"image_url"`
	Points   [][][]float64 `json:"points"`
	Labels   [][]int       `json:"labels"`
}

type PredictSamResponse struct {
	Boxes [][4]float64   `json:"boxes"`
	Masks [][][2]float64 `json:"masks"`
}

type Job struct {
	Id             uuid.UUID  `json:"id"`
	OwnerId        uuid.UUID  `json:"owner_id"`
	Status         string     `json:"status"`
	Model          string     `json:"model"`
	DatasetId      *uuid.UUID `json:"dataset_id,omitempty"`
	ImageId        *uuid.UUID `json:"image_id,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
}

type ListJobsParams struct {
	OwnerId string `schema:"owner_id"`
	Status  string `schema:"status"`
}

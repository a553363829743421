package types

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Detection is one box produced by the detector for one image. The box is
// normalized to [0,1] in center/size form.
type Detection struct {
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	XCenter    float64 `json:"x_center"`
	YCenter    float64 `json:"y_center"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

const GeneratedByYolo = "YOLO"

type Label struct {
	Id          uuid.UUID
	DatasetId   uuid.UUID
	ImageId     uuid.UUID
	ClassId     int
	XCenter     float64
	YCenter     float64
	Width       float64
	Height      float64
	Confidence  float64
	GeneratedBy string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Scope is what a job targets. Exactly one of DatasetId / ImageId identifies
// the scope; image jobs also carry the dataset owning the image.
type Scope struct {
	DatasetId uuid.NullUUID
	ImageId   uuid.NullUUID
}

type ScopeKind string

const (
	ImageScope   ScopeKind = "image"
	DatasetScope ScopeKind = "dataset"
)

func (s Scope) Kind() ScopeKind {
	if s.ImageId.Valid {
		return ImageScope
	}
	return DatasetScope
}

func DatasetScopeOf(datasetId uuid.UUID) Scope {
	return Scope{DatasetId: uuid.NullUUID{UUID: datasetId, Valid: true}}
}

func ImageScopeOf(datasetId, imageId uuid.UUID) Scope {
	return Scope{
		DatasetId: uuid.NullUUID{UUID: datasetId, Valid: true},
		ImageId:   uuid.NullUUID{UUID: imageId, Valid: true},
	}
}

// ResolvedScope is the concrete data a detector task needs: the class
// vocabulary of the dataset and the images to predict, in matching order.
type ResolvedScope struct {
	Vocabulary map[string]int
	ImageUrls  []string
	ImageIds   []uuid.UUID
}

// ClassNames returns the vocabulary names sorted by class id so prompts are
// stable between runs.
func (r ResolvedScope) ClassNames() []string {
	names := make([]string, 0, len(r.Vocabulary))
	for name := range r.Vocabulary {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if r.Vocabulary[names[i]] != r.Vocabulary[names[j]] {
			return r.Vocabulary[names[i]] < r.Vocabulary[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

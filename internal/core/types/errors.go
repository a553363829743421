package types

import "errors"

var (
	// ErrValidation marks a malformed request or task payload.
	ErrValidation = errors.New("validation error")

	ErrJobCreation = errors.New("job cannot be created")

	// ErrDispatch is returned when a task could not be handed to the bus.
	ErrDispatch = errors.New("job cannot be sent to worker")

	ErrTimeout = errors.New("timed out waiting for reply")

	ErrImageLoad = errors.New("image cannot be loaded")

	// ErrPointNotInMask means the click landed on background.
	ErrPointNotInMask = errors.New("point is not inside any predicted mask")

	ErrClassVocabulary = errors.New("predicted class is not in dataset vocabulary")

	ErrInference = errors.New("inference failed")

	ErrPersistence = errors.New("persistence failed")

	ErrJobNotFound = errors.New("job not found")

	ErrDatasetNotFound = errors.New("dataset or image not found")

	// ErrInvalidTransition is returned when a job status update would leave a terminal state.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

package services

import "errors"

// Engine service errors
var (
	// Dataset errors
	ErrDatasetNotFound = errors.New("dataset not found")
	ErrEmptyDataset    = errors.New("dataset has no rows")

	// Rule errors
	ErrRuleNotFound = errors.New("rule not found")

	// Upload errors
	ErrUploadsDisabled = errors.New("file uploads are not configured")
	ErrJobsDisabled    = errors.New("background jobs are not configured")

	// General errors
	ErrInvalidInput       = errors.New("invalid input")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)

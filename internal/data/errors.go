package data

import "github.com/target/cyano-batch/internal/domain/model"

// Sentinel errors returned by the repositories. They alias the model errors so
// services can match them without importing this package.
var (
	ErrBatchJobNotFound  = model.ErrBatchJobNotFound
	ErrActiveJobExists   = model.ErrActiveJobExists
	ErrBatchJobExists    = model.ErrBatchJobExists
	ErrInvalidTransition = model.ErrInvalidTransition
)

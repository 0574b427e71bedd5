package models

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStoreUnavailable is returned when a backing store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrSchemaDecode is returned when a model reply does not match the
	// expected structured schema.
	ErrSchemaDecode = errors.New("schema decode failed")
	// ErrEmptyResponse is returned when a model reply contains no usable content.
	ErrEmptyResponse = errors.New("empty model response")
)

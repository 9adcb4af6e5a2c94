package iotanomaly

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the iotanomaly package.
var (
	// ErrClosed is returned when operations are attempted on a closed server or store.
	ErrClosed = errors.New("closed")

	// ErrRunNotFound is returned when an analysis run does not exist.
	ErrRunNotFound = errors.New("analysis run not found")

	// ErrInvalidRange is returned for an unknown range window name.
	ErrInvalidRange = errors.New("invalid range")

	// ErrInvalidDisplayMode is returned for an unknown chart display mode.
	ErrInvalidDisplayMode = errors.New("invalid display mode")

	// ErrInvalidContamination is returned when contamination is outside (0, 0.5].
	ErrInvalidContamination = errors.New("contamination must be in (0, 0.5]")

	// ErrEmptyCSV is returned when an uploaded CSV has no header or no rows.
	ErrEmptyCSV = errors.New("csv has no data rows")

	// ErrNoNumericColumns is returned when no column of a frame holds numeric readings.
	ErrNoNumericColumns = errors.New("no numeric sensor columns found")

	// ErrLengthMismatch is returned when dataset sequences have different lengths.
	ErrLengthMismatch = errors.New("dataset sequences have different lengths")

	// ErrUnknownMetric is returned when a selected metric is not part of the dataset.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrInsufficientData is returned when there are too few valid rows to fit a model.
	ErrInsufficientData = errors.New("insufficient data for detection")

	// ErrTooManyRows is returned when an input exceeds the configured row limit.
	ErrTooManyRows = errors.New("too many rows")
)

// StorageErrorType categorizes storage errors.
type StorageErrorType int

const (
	// StorageErrorTypeUnknown is an unclassified storage error.
	StorageErrorTypeUnknown StorageErrorType = iota
	// StorageErrorTypeRead indicates a read failure.
	StorageErrorTypeRead
	// StorageErrorTypeWrite indicates a write failure.
	StorageErrorTypeWrite
	// StorageErrorTypeNotFound indicates the key does not exist.
	StorageErrorTypeNotFound
	// StorageErrorTypeCorruption indicates a blob that cannot be decoded.
	StorageErrorTypeCorruption
)

// StorageError provides detailed information about run store failures.
type StorageError struct {
	Type    StorageErrorType
	Message string
	Key     string
	Cause   error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s [%s]: %v", e.Message, e.Key, e.Cause)
		}
		return fmt.Sprintf("%s [%s]", e.Message, e.Key)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for StorageError.
func (e *StorageError) Is(target error) bool {
	return e.Type == StorageErrorTypeNotFound && target == ErrRunNotFound
}

func newStorageError(errType StorageErrorType, message, key string, cause error) *StorageError {
	return &StorageError{
		Type:    errType,
		Message: message,
		Key:     key,
		Cause:   cause,
	}
}

// CSVError reports a malformed cell in an uploaded CSV.
type CSVError struct {
	Line   int
	Column string
	Cause  error
}

func (e *CSVError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("csv line %d, column %q: %v", e.Line, e.Column, e.Cause)
	}
	return fmt.Sprintf("csv line %d: %v", e.Line, e.Cause)
}

func (e *CSVError) Unwrap() error {
	return e.Cause
}

// Package errdefs defines the error kinds shared by the analysis pipeline.
//
// Callers branch on kind with errors.Is against the exported sentinels;
// the typed wrappers carry enough detail for messages and unwrap to both
// the sentinel and any underlying cause.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks invalid configuration: unknown model names, missing
	// weights files, out-of-range hyperparameters. Fail fast, not retried.
	ErrConfig = errors.New("invalid configuration")

	// ErrImageLoad marks a per-image decode failure. Recoverable at the
	// batch level: skip the image, report, continue.
	ErrImageLoad = errors.New("image load failed")

	// ErrExtraction marks a per-image inference failure. Recoverable at
	// the batch level, same as ErrImageLoad.
	ErrExtraction = errors.New("feature extraction failed")

	// ErrInsufficientData marks a request that cannot produce meaningful
	// output, such as clustering fewer samples than clusters.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrState marks an operation invalid against the current assignment
	// state, such as merging fewer than two labels.
	ErrState = errors.New("invalid state")
)

// ConfigError reports an invalid configuration value.
//
// The underlying cause (if any) stays reachable through errors.Is and
// errors.As alongside the kind sentinel.
type ConfigError struct {
	Field  string
	Reason string
	cause  error
}

// NewConfigError creates a ConfigError for the given field.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// WrapConfigError creates a ConfigError carrying an underlying cause.
func WrapConfigError(field, reason string, cause error) *ConfigError {
	return &ConfigError{Field: field, Reason: reason, cause: cause}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrConfig, e.cause}
	}
	return []error{ErrConfig}
}

// ImageLoadError reports a failure to read or decode one image.
//
// The underlying cause (if any) stays reachable through errors.Is and
// errors.As alongside the kind sentinel.
type ImageLoadError struct {
	Path  string
	cause error
}

// NewImageLoadError creates an ImageLoadError for the given path.
func NewImageLoadError(path string, cause error) *ImageLoadError {
	return &ImageLoadError{Path: path, cause: cause}
}

func (e *ImageLoadError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("image load failed: %s: %v", e.Path, e.cause)
	}
	return fmt.Sprintf("image load failed: %s", e.Path)
}

func (e *ImageLoadError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrImageLoad, e.cause}
	}
	return []error{ErrImageLoad}
}

// ExtractionError reports a failed inference pass for one image.
//
// The underlying cause (if any) stays reachable through errors.Is and
// errors.As alongside the kind sentinel.
type ExtractionError struct {
	Path  string
	Model string
	cause error
}

// NewExtractionError creates an ExtractionError for the given path and model.
func NewExtractionError(path, model string, cause error) *ExtractionError {
	return &ExtractionError{Path: path, Model: model, cause: cause}
}

func (e *ExtractionError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("feature extraction failed: %s (model %s): %v", e.Path, e.Model, e.cause)
	}
	return fmt.Sprintf("feature extraction failed: %s (model %s)", e.Path, e.Model)
}

func (e *ExtractionError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrExtraction, e.cause}
	}
	return []error{ErrExtraction}
}

// InsufficientDataError reports fewer samples than an operation requires.
type InsufficientDataError struct {
	Have int
	Need int
	Op   string
}

// NewInsufficientDataError creates an InsufficientDataError for the given operation.
func NewInsufficientDataError(op string, have, need int) *InsufficientDataError {
	return &InsufficientDataError{Op: op, Have: have, Need: need}
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: have %d, need %d", e.Op, e.Have, e.Need)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// StateError reports an operation that is invalid against current state.
type StateError struct {
	Op     string
	Reason string
}

// NewStateError creates a StateError for the given operation.
func NewStateError(op, reason string) *StateError {
	return &StateError{Op: op, Reason: reason}
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid state for %s: %s", e.Op, e.Reason)
}

func (e *StateError) Unwrap() error { return ErrState }

// Package common defines shared constants and sentinel errors used across
// the formsync client layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Storage errors. ErrStorageUnavailable is fatal for the operation that
	// returned it and is never retried automatically.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotFound           = errors.New("not found")

	// Encoding errors. The entry being encoded stays queued unchanged.
	ErrAttachmentRead = errors.New("attachment read error")

	// Validation errors for freshly captured submissions.
	ErrValidation = errors.New("validation error")
)

package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrSourceUnreadable marks a migration source that could not be read.
	ErrSourceUnreadable = errors.New("source unreadable")
	// ErrTranscodeFailed marks a format conversion failure.
	ErrTranscodeFailed = errors.New("transcode failed")
	// ErrWriteVerificationMismatch marks an integrity failure: the bytes read
	// back from the target do not hash to the bytes that were written. Callers
	// must never retry this in-process.
	ErrWriteVerificationMismatch = errors.New("write verification mismatch")
	// ErrTargetExists marks a refused overwrite of an already-migrated target.
	ErrTargetExists = errors.New("target already exists")
	// ErrNamingConflict marks disagreement between a subject's naming
	// authorities. Never auto-resolved.
	ErrNamingConflict = errors.New("naming conflict")
)

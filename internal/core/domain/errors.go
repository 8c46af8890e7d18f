package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrTemplateNotFound    = errors.New("template not found")
	ErrFieldNotFound       = errors.New("template field not found")
	ErrJobNotFound         = errors.New("job not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidRule         = errors.New("invalid extraction rule")
	ErrDocumentFileMissing = errors.New("document file missing")
	ErrProcessingTimeout   = errors.New("processing timeout")
	ErrQueueUnavailable    = errors.New("queue unavailable")
	ErrConflict            = errors.New("conflict")
	ErrStaleRun            = errors.New("stale extraction run")
	ErrTemporary           = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

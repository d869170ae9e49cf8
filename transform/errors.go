package transform

import "errors"

// ContentError marks a message-content failure: unknown report names,
// failed type coercion, or a column-set mismatch. Content failures
// dead-letter the message and quarantine the queue, unlike transient
// transport failures which leave the queue schedulable.
type ContentError struct {
	Reason string
}

func (e *ContentError) Error() string { return e.Reason }

// IsContentError reports whether err is (or wraps) a ContentError.
func IsContentError(err error) bool {
	var ce *ContentError
	return errors.As(err, &ce)
}

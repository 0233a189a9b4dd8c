package models

import "errors"

// ProcessingError tells the consumer loop whether a failed message should be
// requeued.
type ProcessingError struct {
	Err     error
	Requeue bool
}

func (p ProcessingError) Error() string {
	return p.Err.Error()
}

func (p ProcessingError) Unwrap() error {
	return p.Err
}

// ShouldRequeue reports the requeue decision carried by err, falling back to
// transient for errors that carry none.
func ShouldRequeue(err error, transient func(error) bool) bool {
	var procErr ProcessingError
	if errors.As(err, &procErr) {
		return procErr.Requeue
	}
	return transient(err)
}

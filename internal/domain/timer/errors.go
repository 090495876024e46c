package timer

import (
	"errors"
	"fmt"
)

// ErrOverflow is returned when advancing a deadline would overflow int64.
var ErrOverflow = errors.New("timer deadline overflow")

// OverflowError describes a timer dropped because its next deadline could
// not be represented.
type OverflowError struct {
	TimerID    int
	NextFireAt int64
	IntervalMs int64
}

// Error implements the error interface.
func (e *OverflowError) Error() string {
	return fmt.Sprintf("timer %d: next deadline %d + %dms overflows", e.TimerID, e.NextFireAt, e.IntervalMs)
}

// Unwrap lets errors.Is match ErrOverflow.
func (e *OverflowError) Unwrap() error {
	return ErrOverflow
}

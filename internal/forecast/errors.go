package forecast

import (
	"errors"
	"fmt"
)

// ErrSegmentNotFound is returned by Forecast when neither a per-segment
// model nor a global fallback exists. Callers should treat it as a normal
// "not ready" condition, not a failure.
var ErrSegmentNotFound = errors.New("no trained model for segment and no global fallback")

// InsufficientDataError reports a training unit skipped for having too few
// clean history rows. It is reported per unit; the rest of the run
// continues.
type InsufficientDataError struct {
	Segment string
	Rows    int
	Minimum int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for segment %s: %d rows, need %d", e.Segment, e.Rows, e.Minimum)
}

package fit

import (
	"errors"
	"fmt"
)

var (
	// ErrMeasurement matches every *MeasurementError.
	ErrMeasurement = errors.New("fit: measurement failed")
	// ErrNonMonotonic reports an oracle whose heights do not grow with the
	// included prefix, detected either directly or through the probe budget.
	ErrNonMonotonic = errors.New("fit: non-monotonic measurement")
	// ErrInvalidHeight is the cause recorded when the oracle returns NaN,
	// an infinity or a negative height.
	ErrInvalidHeight = errors.New("invalid height")
)

// MeasurementError aborts a fit pass. The caller keeps its previous result.
type MeasurementError struct {
	Candidate Candidate
	Err       error
}

func (e *MeasurementError) Error() string {
	return fmt.Sprintf("fit: measuring boundary %d:%d: %v", e.Candidate.Boundary.Node, e.Candidate.Boundary.Offset, e.Err)
}

func (e *MeasurementError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrMeasurement) match regardless of the cause.
func (e *MeasurementError) Is(target error) bool { return target == ErrMeasurement }

func nonMonotonic(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNonMonotonic, fmt.Sprintf(format, args...))
}

func invalidHeight(h float64) error {
	return fmt.Errorf("%w: %v", ErrInvalidHeight, h)
}

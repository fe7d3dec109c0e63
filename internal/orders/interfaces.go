package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/chicagopizza/pizzeria-backend/pkg/enums"
)

// Submitter hands a placed order to the kitchen.
// Failures are always reported as *SubmissionError.
type Submitter interface {
	Submit(ctx context.Context, snapshot OrderSnapshot) (Result, error)
	Mode() string
}

// SubmissionError carries the reason the order sink did not accept an order.
type SubmissionError struct {
	Reason enums.SubmissionFailureReason
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("order submission %s", e.Reason)
	}
	return fmt.Sprintf("order submission %s: %v", e.Reason, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

func newSubmissionError(reason enums.SubmissionFailureReason, err error) *SubmissionError {
	return &SubmissionError{Reason: reason, Err: err}
}

// ReasonOf extracts the failure reason, treating untyped errors as unavailable.
func ReasonOf(err error) enums.SubmissionFailureReason {
	var subErr *SubmissionError
	if errors.As(err, &subErr) {
		return subErr.Reason
	}
	return enums.SubmissionUnavailable
}

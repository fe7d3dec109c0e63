package enums

// SubmissionFailureReason classifies why the order sink did not accept an order.
type SubmissionFailureReason string

const (
	SubmissionRejected        SubmissionFailureReason = "rejected"
	SubmissionUnavailable     SubmissionFailureReason = "unavailable"
	SubmissionInvalidResponse SubmissionFailureReason = "invalid_response"
)

// String implements fmt.Stringer.
func (r SubmissionFailureReason) String() string {
	return string(r)
}

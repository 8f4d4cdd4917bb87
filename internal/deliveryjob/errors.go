package deliveryjob

import "fmt"

// PreDeliveryError, DeliveryError, and PostDeliveryError tag which stage of
// the per-job algorithm (SPEC_FULL.md §4.4) an error came from, the way the
// teacher's deliverymq/messagehandler.go distinguishes "never attempted" from
// "attempted" from "attempted and the bookkeeping afterward failed" — useful
// for alerting/metrics that need to tell a misconfigured endpoint apart from
// a flaky network or a storage outage. Each unwraps to the underlying cause.
type PreDeliveryError struct{ err error }

func NewPreDeliveryError(err error) *PreDeliveryError { return &PreDeliveryError{err: err} }

func (e *PreDeliveryError) Error() string { return fmt.Sprintf("pre-delivery error: %v", e.err) }
func (e *PreDeliveryError) Unwrap() error { return e.err }

type DeliveryError struct{ err error }

func NewDeliveryError(err error) *DeliveryError { return &DeliveryError{err: err} }

func (e *DeliveryError) Error() string { return fmt.Sprintf("delivery error: %v", e.err) }
func (e *DeliveryError) Unwrap() error { return e.err }

type PostDeliveryError struct{ err error }

func NewPostDeliveryError(err error) *PostDeliveryError { return &PostDeliveryError{err: err} }

func (e *PostDeliveryError) Error() string { return fmt.Sprintf("post-delivery error: %v", e.err) }
func (e *PostDeliveryError) Unwrap() error { return e.err }

package models

import "errors"

// Sentinel errors returned by stores; apirouter's handlers translate the
// not-found ones into 404 ErrorResponses. Kept distinct from store-specific
// wrapped errors so callers can use errors.Is across backends (pg vs mem).
var (
	ErrAppNotFound      = errors.New("app not found")
	ErrEndpointNotFound = errors.New("endpoint not found")
	ErrEventNotFound    = errors.New("event not found")
	ErrDeliveryNotFound = errors.New("delivery not found")

	// ErrDuplicateHookToken is returned when an endpoint insert would violate
	// the "at most one endpoint per hook_token" invariant.
	ErrDuplicateHookToken = errors.New("hook token already assigned")

	// ErrDuplicateDelivery is returned when an append would violate the
	// (event_id, parent_delivery_id) uniqueness invariant.
	ErrDuplicateDelivery = errors.New("duplicate delivery for event/parent pair")
)

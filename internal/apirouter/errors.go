package apirouter

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

// ErrorResponse is the exact envelope of SPEC_FULL.md §6: validation
// failures carry per-field detail, everything else carries a plain message.
// Grounded on the teacher's apirouter.ErrorResponse shape, narrowed to this
// core's error taxonomy.
type ErrorResponse struct {
	Err     error             `json:"-"`
	Code    int               `json:"-"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
	Data    interface{}       `json:"data,omitempty"`
}

type ValidationError struct {
	Field    string      `json:"field"`
	Code     string      `json:"code"`
	Message  string      `json:"message"`
	Expected interface{} `json:"expected,omitempty"`
	Received interface{} `json:"received,omitempty"`
}

func (e ErrorResponse) Error() string { return e.Message }

func NewErrInternalServer(err error) ErrorResponse {
	return ErrorResponse{
		Err:     pkgerrors.WithStack(err),
		Code:    http.StatusInternalServerError,
		Message: "an error occured, please try again later.",
	}
}

func NewErrNotFound(resource string) ErrorResponse {
	return ErrorResponse{
		Code:    http.StatusNotFound,
		Message: fmt.Sprintf("%s_not_found", resource),
	}
}

func NewErrValidation(field, code, message string) ErrorResponse {
	return ErrorResponse{
		Code:    http.StatusBadRequest,
		Message: "validation_error",
		Errors:  []ValidationError{{Field: field, Code: code, Message: message}},
	}
}

func NewErrPayloadTooLarge() ErrorResponse {
	return ErrorResponse{Code: http.StatusRequestEntityTooLarge, Message: "payload_too_large"}
}

// asErrorResponse translates a Go error into the envelope, defaulting to a
// 500 for anything this package doesn't recognize.
func asErrorResponse(err error) ErrorResponse {
	var resp ErrorResponse
	if errors.As(err, &resp) {
		return resp
	}
	return NewErrInternalServer(err)
}

package console

import (
	"errors"
	"net/http"

	"github.com/LoveWonYoung/vcimon/receiver"
	"github.com/LoveWonYoung/vcimon/session"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// statusFor maps action errors onto HTTP status and error code.
func statusFor(err error) (int, string) {
	var stepErr *session.StepError
	switch {
	case errors.Is(err, session.ErrDeviceNotOpen):
		return http.StatusConflict, "DEVICE_NOT_OPEN"
	case errors.Is(err, receiver.ErrAlreadyReceiving):
		return http.StatusConflict, "ALREADY_RECEIVING"
	case errors.Is(err, receiver.ErrStillStopping):
		return http.StatusServiceUnavailable, "RECEIVER_STOPPING"
	case errors.As(err, &stepErr):
		return http.StatusBadGateway, "DRIVER_FAILURE"
	default:
		return http.StatusBadRequest, "BAD_REQUEST"
	}
}

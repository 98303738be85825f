package gateway

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidOrderCode   = errors.New("invalid_order_code")
	ErrNotConfigured      = errors.New("gateway_not_configured")
	ErrSignatureMismatch  = errors.New("signature_mismatch")
	ErrUnexpectedResponse = errors.New("gateway_unexpected_response")
)

// Error is returned when the gateway could not be reached or rejected a call.
type Error struct {
	Op         string
	StatusCode int
	Code       string
	Desc       string
	Err        error
}

func (e *Error) Error() string {
	msg := "gateway " + e.Op + " failed"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": http %d", e.StatusCode)
	}
	if e.Code != "" {
		msg += fmt.Sprintf(": code %s", e.Code)
	}
	if e.Desc != "" {
		msg += ": " + e.Desc
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsError reports whether err came from the gateway.
func IsError(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr)
}

package server

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	buyerdomain "github.com/smallbiznis/paysettle/internal/buyer/domain"
	"github.com/smallbiznis/paysettle/internal/gateway"
	orderdomain "github.com/smallbiznis/paysettle/internal/order/domain"
	paymentdomain "github.com/smallbiznis/paysettle/internal/payment/domain"
	purchasabledomain "github.com/smallbiznis/paysettle/internal/purchasable/domain"
	"github.com/smallbiznis/paysettle/internal/receipt"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// useJSONFieldNames makes validator report fields by their json names.
func useJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return field.Name
		}
		return name
	})
}

// bindingError turns validator failures from gin binding into field errors.
func bindingError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return invalidRequestError()
	}
	out := &ValidationErrors{}
	for _, fe := range fieldErrs {
		out.Errors = append(out.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    fe.Tag(),
			Message: fe.Error(),
		})
	}
	return out
}

// errorClass maps a family of sentinel errors onto one HTTP response.
type errorClass struct {
	status  int
	typ     string
	message string
	match   func(error) bool
}

func sentinels(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

var isValidationError = sentinels(
	ErrInvalidRequest,
	orderdomain.ErrInvalidID,
	orderdomain.ErrInvalidBuyer,
	orderdomain.ErrInvalidCurrency,
	orderdomain.ErrInvalidLines,
	orderdomain.ErrInvalidItem,
	orderdomain.ErrInvalidQuantity,
	orderdomain.ErrInvalidPrice,
	orderdomain.ErrInvalidDiscount,
	purchasabledomain.ErrUnknownKind,
	paymentdomain.ErrInvalidPayload,
	paymentdomain.ErrInvalidOrderCode,
	paymentdomain.ErrMissingCorrelationCode,
	paymentdomain.ErrOrderNotPayable,
	gateway.ErrInvalidAmount,
)

// errorClasses is checked in order after validation errors. A conflict keeps
// its sentinel text as the message so clients can tell paid from in progress.
var errorClasses = []errorClass{
	{http.StatusBadRequest, "signature_error", "signature verification failed",
		sentinels(paymentdomain.ErrInvalidSignature)},
	{http.StatusNotFound, "not_found", "not found", sentinels(
		ErrNotFound,
		buyerdomain.ErrBuyerNotFound,
		purchasabledomain.ErrItemNotFound,
		orderdomain.ErrOrderNotFound,
		paymentdomain.ErrPaymentNotFound,
		gorm.ErrRecordNotFound,
	)},
	{http.StatusConflict, "conflict", "", sentinels(
		ErrConflict,
		paymentdomain.ErrOrderAlreadyPaid,
		paymentdomain.ErrResyncInProgress,
		paymentdomain.ErrOrderCodeConflict,
		orderdomain.ErrOrderNumberConflict,
		receipt.ErrPaymentNotPaid,
	)},
	{http.StatusTooManyRequests, "rate_limited", "too many requests", sentinels(ErrRateLimited)},
	{http.StatusBadGateway, "gateway_error", "payment gateway unavailable", gateway.IsError},
	{http.StatusServiceUnavailable, "service_unavailable", "service unavailable", sentinels(ErrServiceUnavailable)},
}

var internalErrorPayload = errorPayload{
	Type:    "internal_error",
	Message: "internal server error",
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalErrorPayload
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}
	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{{
				Field:   validationErrorField(code),
				Code:    code,
				Message: validationErrorMessage(code),
			}},
		}
	}

	for _, class := range errorClasses {
		if !class.match(err) {
			continue
		}
		message := class.message
		if message == "" {
			message = err.Error()
		}
		return class.status, errorPayload{Type: class.typ, Message: message}
	}
	return http.StatusInternalServerError, internalErrorPayload
}

// classifyErrorForLog feeds the request logger with the mapped error class.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if status >= http.StatusInternalServerError {
		code = http.StatusText(status)
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "missing_order_code":
		return "order_code"
	case "unknown_item_kind":
		return "item_kind"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "missing_order_code":
		return "order code is required"
	case "order_not_payable":
		return "order can no longer be paid"
	default:
		return "invalid value"
	}
}

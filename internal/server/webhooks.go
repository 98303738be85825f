package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/paysettle/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/paysettle/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	signatureHeader = "x-signature"
	maxWebhookBytes = 1 << 20
)

// HandlePaymentWebhook answers 200 for applied, replayed and ignored
// deliveries so the gateway stops retrying them.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPayload)
		return
	}

	result, err := s.paymentSvc.HandleWebhook(c.Request.Context(), payload, c.GetHeader(signatureHeader))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if result.DependentSyncErr != nil {
		logger.FromContext(c.Request.Context()).Warn("payment settled with dependent sync failure",
			zap.Int64("order_code", result.OrderCode),
			zap.Error(result.DependentSyncErr),
		)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"outcome": result.Outcome,
	})
}

// VerifyPaymentWebhook lets the gateway confirm the webhook url is reachable.
func (s *Server) VerifyPaymentWebhook(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) HandlePaymentReturn(c *gin.Context) {
	s.handleRedirect(c, false)
}

func (s *Server) HandlePaymentCancel(c *gin.Context) {
	s.handleRedirect(c, true)
}

type redirectPage struct {
	Title     string
	Message   string
	OrderCode int64
	Status    string
	Success   bool
}

func (s *Server) handleRedirect(c *gin.Context, cancelled bool) {
	var req paymentdomain.RedirectRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		s.renderRedirectError(c, invalidRequestError())
		return
	}

	result, err := s.paymentSvc.HandleRedirect(c.Request.Context(), req, cancelled)
	if err != nil {
		s.renderRedirectError(c, err)
		return
	}

	page := redirectPage{
		OrderCode: result.OrderCode,
		Status:    string(result.Status),
	}
	switch result.Status {
	case paymentdomain.StatusPaid:
		page.Title = "Payment received"
		page.Message = "Thank you. Your payment has been confirmed."
		page.Success = true
	case paymentdomain.StatusCancelled:
		page.Title = "Payment cancelled"
		page.Message = "The payment was cancelled. No money was taken."
	case paymentdomain.StatusExpired:
		page.Title = "Payment link expired"
		page.Message = "This payment link has expired. Please start a new checkout."
	case paymentdomain.StatusFailed:
		page.Title = "Payment failed"
		page.Message = "The payment could not be completed."
	default:
		page.Title = "Payment processing"
		page.Message = "We are still waiting for the payment result. This page can be refreshed."
	}
	c.HTML(http.StatusOK, "payment_result.html", page)
}

func (s *Server) renderRedirectError(c *gin.Context, err error) {
	_ = c.Error(err)
	status, payload := mapError(err)
	message := "Something went wrong while processing the payment."
	switch status {
	case http.StatusBadRequest:
		message = "The payment link is missing information."
	case http.StatusNotFound:
		message = "We could not find this payment."
	}
	c.HTML(status, "payment_result.html", redirectPage{
		Title:   "Payment status unavailable",
		Message: message,
		Status:  payload.Type,
	})
}

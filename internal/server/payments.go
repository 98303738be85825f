package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/paysettle/internal/payment/domain"
)

func (s *Server) CreateCheckout(c *gin.Context) {
	var req paymentdomain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	resp, err := s.paymentSvc.Checkout(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Reused {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (s *Server) GetPayment(c *gin.Context) {
	payment, err := s.paymentSvc.GetByOrderCode(c.Request.Context(), orderCodeFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) GetPaymentReceipt(c *gin.Context) {
	if s.receiptSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	doc, err := s.receiptSvc.Build(c.Request.Context(), orderCodeFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	c.Data(http.StatusOK, "application/pdf", doc.Content)
}

// ListPaymentEvents returns the settlement log of a payment.
func (s *Server) ListPaymentEvents(c *gin.Context) {
	events, err := s.paymentSvc.ListEvents(c.Request.Context(), orderCodeFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": events})
}

// SyncPayment reconciles a payment with the status the gateway reports.
func (s *Server) SyncPayment(c *gin.Context) {
	result, err := s.paymentSvc.Resync(c.Request.Context(), orderCodeFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

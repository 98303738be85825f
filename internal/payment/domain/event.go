package domain

import (
	"fmt"
	"strings"
	"time"
)

// CanonicalStatus is a gateway status mapped onto the settlement vocabulary.
// The empty value means the vendor status has no terminal meaning.
type CanonicalStatus string

const (
	CanonicalPaid      CanonicalStatus = "PAID"
	CanonicalCancelled CanonicalStatus = "CANCELLED"
	CanonicalExpired   CanonicalStatus = "EXPIRED"
	CanonicalFailed    CanonicalStatus = "FAILED"
)

// PaymentStatus is the terminal payment state a canonical status moves to.
func (c CanonicalStatus) PaymentStatus() (Status, bool) {
	switch c {
	case CanonicalPaid:
		return StatusPaid, true
	case CanonicalCancelled:
		return StatusCancelled, true
	case CanonicalExpired:
		return StatusExpired, true
	case CanonicalFailed:
		return StatusFailed, true
	default:
		return "", false
	}
}

type Source string

const (
	SourceWebhook  Source = "webhook"
	SourceRedirect Source = "redirect"
	SourceResync   Source = "resync"
	SourceCheckout Source = "checkout"
)

// CallbackEvent is a gateway result normalized from any entry point.
type CallbackEvent struct {
	OrderCode             int64
	PaymentLinkID         string
	RawStatus             string
	Status                CanonicalStatus
	Amount                int64
	Fee                   int64
	NetAmount             int64
	HasAmount             bool
	ExternalTransactionID string
	EventID               string
	Payload               []byte
	Signature             string
	ReceivedAt            time.Time
	Source                Source
}

func (e CallbackEvent) HasCorrelation() bool {
	return e.OrderCode > 0 || strings.TrimSpace(e.PaymentLinkID) != ""
}

// IsPing reports whether the event carries neither a correlation key nor a status.
func (e CallbackEvent) IsPing() bool {
	return !e.HasCorrelation() && strings.TrimSpace(e.RawStatus) == ""
}

// Fingerprint identifies a gateway result for idempotent application.
// The vendor event id wins; otherwise code, status and amount are combined.
func Fingerprint(e CallbackEvent) string {
	if id := strings.TrimSpace(e.EventID); id != "" {
		return id
	}
	return fmt.Sprintf("%d|%s|%d", e.OrderCode, e.Status, e.Amount)
}

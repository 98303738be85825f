// Package callback turns gateway webhook bodies, redirect query strings and
// poll responses into domain.CallbackEvent values.
package callback

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paysettle/internal/gateway"
	"github.com/smallbiznis/paysettle/internal/payment/domain"
)

var (
	orderCodeKeys = []string{"orderCode", "order_code"}
	linkIDKeys    = []string{"paymentLinkId", "payment_link_id"}
	statusKeys    = []string{"status", "paymentStatus", "transactionStatus"}
	amountKeys    = []string{"amount"}
	feeKeys       = []string{"fee"}
	netKeys       = []string{"netAmount", "net_amount"}
	referenceKeys = []string{"reference", "transactionId", "transaction_id"}
	eventIDKeys   = []string{"eventId", "event_id", "webhookId"}
	vendorCode    = "code"
)

// Normalize parses a webhook body. Keys inside a "data" envelope override
// top-level keys of the same name.
func Normalize(payload []byte, statuses *StatusTable) (domain.CallbackEvent, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var top map[string]any
	if err := decoder.Decode(&top); err != nil || top == nil {
		return domain.CallbackEvent{}, domain.ErrInvalidPayload
	}

	fields := make(map[string]any, len(top))
	for key, value := range top {
		fields[key] = value
	}
	if data, ok := top["data"].(map[string]any); ok {
		for key, value := range data {
			fields[key] = value
		}
	}

	event := domain.CallbackEvent{Payload: payload}

	if raw, ok := pick(fields, orderCodeKeys...); ok {
		code, err := parseCode(raw)
		if err != nil {
			return domain.CallbackEvent{}, domain.ErrInvalidPayload
		}
		event.OrderCode = code
	}
	if raw, ok := pick(fields, linkIDKeys...); ok {
		event.PaymentLinkID = asString(raw)
	}

	if raw, ok := pick(fields, statusKeys...); ok {
		event.RawStatus = asString(raw)
	}
	// A bare vendor result code only counts as a status for correlated
	// events, so envelope-only verification pings stay pings.
	if event.RawStatus == "" && event.HasCorrelation() {
		if raw, ok := fields[vendorCode]; ok {
			event.RawStatus = asString(raw)
		}
	}
	event.Status = statuses.Canonical(event.RawStatus)

	if raw, ok := pick(fields, amountKeys...); ok {
		amount, err := parseAmount(raw)
		if err != nil {
			return domain.CallbackEvent{}, domain.ErrInvalidPayload
		}
		event.Amount = amount
		event.HasAmount = true
	}
	if raw, ok := pick(fields, feeKeys...); ok {
		fee, err := parseAmount(raw)
		if err != nil {
			return domain.CallbackEvent{}, domain.ErrInvalidPayload
		}
		event.Fee = fee
	}
	event.NetAmount = event.Amount - event.Fee
	if raw, ok := pick(fields, netKeys...); ok {
		net, err := parseAmount(raw)
		if err != nil {
			return domain.CallbackEvent{}, domain.ErrInvalidPayload
		}
		event.NetAmount = net
	}

	if raw, ok := pick(fields, referenceKeys...); ok {
		event.ExternalTransactionID = asString(raw)
	}
	if raw, ok := pick(fields, eventIDKeys...); ok {
		event.EventID = asString(raw)
	}

	return event, nil
}

// FromQuery builds an event from a return or cancel redirect. A cancel
// redirect without an explicit status is treated as CANCELLED.
func FromQuery(req domain.RedirectRequest, cancelled bool, statuses *StatusTable) (domain.CallbackEvent, error) {
	event := domain.CallbackEvent{
		PaymentLinkID: strings.TrimSpace(req.ID),
		RawStatus:     strings.TrimSpace(req.Status),
	}

	if code := strings.TrimSpace(req.OrderCode); code != "" {
		parsed, err := parseCode(code)
		if err != nil {
			return domain.CallbackEvent{}, domain.ErrInvalidOrderCode
		}
		event.OrderCode = parsed
	}

	if strings.EqualFold(strings.TrimSpace(req.Cancel), "true") {
		cancelled = true
	}
	if event.RawStatus == "" {
		if cancelled {
			event.RawStatus = string(domain.CanonicalCancelled)
		} else {
			event.RawStatus = strings.TrimSpace(req.Code)
		}
	}
	event.Status = statuses.Canonical(event.RawStatus)

	payload, err := json.Marshal(req)
	if err == nil {
		event.Payload = payload
	}
	return event, nil
}

// FromPaymentInfo builds an event from a reconciliation poll.
func FromPaymentInfo(info *gateway.PaymentInfo, statuses *StatusTable) domain.CallbackEvent {
	if info == nil {
		return domain.CallbackEvent{}
	}
	amount := info.AmountPaid
	if amount == 0 {
		amount = info.Amount
	}
	return domain.CallbackEvent{
		OrderCode:             info.OrderCode,
		PaymentLinkID:         info.PaymentLinkID,
		RawStatus:             info.Status,
		Status:                statuses.Canonical(info.Status),
		Amount:                amount,
		NetAmount:             amount,
		HasAmount:             amount > 0,
		ExternalTransactionID: info.Reference,
		Payload:               info.Raw,
	}
}

func pick(fields map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		value, ok := fields[key]
		if !ok || value == nil {
			continue
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return value, true
	}
	return nil, false
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func parseCode(value any) (int64, error) {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case json.Number:
		raw = v.String()
	default:
		return 0, domain.ErrInvalidOrderCode
	}
	code, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || code <= 0 {
		return 0, domain.ErrInvalidOrderCode
	}
	return code, nil
}

// parseAmount accepts integers, decimals and numeric strings and rounds to
// the smallest currency unit.
func parseAmount(value any) (int64, error) {
	var raw string
	switch v := value.(type) {
	case string:
		raw = strings.TrimSpace(v)
	case json.Number:
		raw = v.String()
	default:
		return 0, domain.ErrInvalidPayload
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, err
	}
	return d.Round(0).IntPart(), nil
}

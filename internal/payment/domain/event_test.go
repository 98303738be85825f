package domain

import "testing"

func TestFingerprint(t *testing.T) {
	withID := CallbackEvent{EventID: " evt_1 ", OrderCode: 100001, Status: CanonicalPaid, Amount: 150000}
	if got := Fingerprint(withID); got != "evt_1" {
		t.Fatalf("expected vendor event id, got %q", got)
	}

	composite := CallbackEvent{OrderCode: 100001, Status: CanonicalPaid, Amount: 150000}
	if got := Fingerprint(composite); got != "100001|PAID|150000" {
		t.Fatalf("unexpected composite fingerprint %q", got)
	}
}

func TestCallbackEventIsPing(t *testing.T) {
	if !(CallbackEvent{}).IsPing() {
		t.Fatalf("empty event should be a ping")
	}
	if (CallbackEvent{RawStatus: "PAID"}).IsPing() {
		t.Fatalf("event with status is not a ping")
	}
	if (CallbackEvent{PaymentLinkID: "pl_1"}).IsPing() {
		t.Fatalf("event with link id is not a ping")
	}
}

func TestCanonicalStatusPaymentStatus(t *testing.T) {
	if status, ok := CanonicalPaid.PaymentStatus(); !ok || status != StatusPaid {
		t.Fatalf("unexpected mapping %v %v", status, ok)
	}
	if _, ok := CanonicalStatus("").PaymentStatus(); ok {
		t.Fatalf("empty canonical status must not map")
	}
	if !StatusExpired.IsTerminal() || StatusPending.IsTerminal() {
		t.Fatalf("unexpected terminal classification")
	}
}

package enums

import "testing"

func TestParseItemStatus(t *testing.T) {
	for _, status := range validItemStatuses {
		parsed, err := ParseItemStatus(string(status))
		if err != nil {
			t.Fatalf("parse %s: %v", status, err)
		}
		if parsed != status {
			t.Fatalf("expected %s, got %s", status, parsed)
		}
	}
	if _, err := ParseItemStatus("in_progress"); err == nil {
		t.Fatalf("in_progress is not an item status")
	}
}

func TestSubOrderStatusIncludesAggregateValues(t *testing.T) {
	for _, status := range []SubOrderStatus{SubOrderStatusInProgress, SubOrderStatusPartiallyDelivered} {
		if !status.IsValid() {
			t.Fatalf("expected %s to be valid", status)
		}
	}
	for _, item := range validItemStatuses {
		if !SubOrderStatus(item).IsValid() {
			t.Fatalf("item status %s should be a valid sub-order status", item)
		}
	}
	if SubOrderStatus("shipped").IsValid() {
		t.Fatalf("unexpected valid status")
	}
}

func TestParseOrderStatus(t *testing.T) {
	if _, err := ParseOrderStatus("accepted"); err == nil {
		t.Fatalf("accepted is not an order status")
	}
	got, err := ParseOrderStatus("partially_delivered")
	if err != nil || got != OrderStatusPartiallyDelivered {
		t.Fatalf("unexpected parse result %q %v", got, err)
	}
}

func TestParseDeliveryMethodAliases(t *testing.T) {
	cases := map[string]DeliveryMethod{
		"pickup":      DeliveryMethodPickup,
		"third_party": DeliveryMethodThirdParty,
		"thirdParty":  DeliveryMethodThirdParty,
		" Pickup ":    DeliveryMethodPickup,
	}
	for input, want := range cases {
		got, err := ParseDeliveryMethod(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s got %s", input, want, got)
		}
	}
	if _, err := ParseDeliveryMethod("courier"); err == nil {
		t.Fatalf("expected error for unknown method")
	}
}

func TestOutboxEnums(t *testing.T) {
	if _, err := ParseOutboxEventType("sub_order_status_changed"); err != nil {
		t.Fatalf("parse event type: %v", err)
	}
	if _, err := ParseOutboxAggregateType("vendor_order"); err == nil {
		t.Fatalf("expected unknown aggregate to fail")
	}
	if !OutboxDLQReasonMaxAttempts.IsValid() || OutboxDLQErrorReason("nope").IsValid() {
		t.Fatalf("unexpected dlq reason validity")
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole("seller"); err != nil || r != RoleSeller {
		t.Fatalf("unexpected role parse %q %v", r, err)
	}
	if _, err := ParseRole("agent"); err == nil {
		t.Fatalf("expected error")
	}
}

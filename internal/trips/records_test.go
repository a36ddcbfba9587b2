package trips

import (
	"testing"
	"time"
)

func strPtr(s string) *string        { return &s }
func f64Ptr(f float64) *float64      { return &f }
func timePtr(t time.Time) *time.Time { return &t }

func TestNormalizeDelivery(t *testing.T) {
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	eta := created.Add(40 * time.Minute)
	rec := DeliveryRecord{
		ID:             "del-1",
		Status:         "picked_up",
		CourierID:      strPtr("courier-9"),
		CourierName:    strPtr("Jean"),
		CourierPhone:   strPtr("+250780000001"),
		CourierRating:  f64Ptr(4.8),
		VehiclePlate:   strPtr("RAD 123 A"),
		PickupLat:      -1.9441,
		PickupLng:      30.0619,
		PickupAddress:  "Kigali Heights",
		DropoffLat:     -1.9706,
		DropoffLng:     30.1044,
		DropoffAddress: "Kanombe",
		DeliveryFee:    2500,
		Currency:       "RWF",
		FeeEstimated:   true,
		CreatedAt:      created,
		EtaAt:          timePtr(eta),
	}

	d := NormalizeDelivery(rec, DefaultTables())
	if d.Kind != KindDelivery || d.ID != "del-1" {
		t.Fatalf("unexpected identity: %+v", d)
	}
	// Progress comes from the table, never from geography.
	if d.Progress != 60 {
		t.Fatalf("expected picked_up -> 60, got %d", d.Progress)
	}
	if d.Counterparty == nil || d.Counterparty.ID != "courier-9" || d.Counterparty.Vehicle != "RAD 123 A" {
		t.Fatalf("counterparty not mapped: %+v", d.Counterparty)
	}
	if d.Route.Pickup.Address != "Kigali Heights" || d.Route.Destination.Lat != -1.9706 {
		t.Fatalf("route not mapped: %+v", d.Route)
	}
	if !d.Pricing.Estimated || d.Pricing.Amount != 2500 || d.Pricing.Currency != "RWF" {
		t.Fatalf("pricing not mapped: %+v", d.Pricing)
	}
	if d.Timing.EstimatedArrival != eta {
		t.Fatalf("eta not mapped")
	}
}

func TestNormalizeDeliveryNoCourier(t *testing.T) {
	d := NormalizeDelivery(DeliveryRecord{ID: "del-2", Status: "pending"}, DefaultTables())
	if d.Counterparty != nil {
		t.Fatalf("expected no counterparty before assignment")
	}
	if d.Progress != 5 {
		t.Fatalf("expected pending -> 5, got %d", d.Progress)
	}
}

func TestNormalizeTaxi(t *testing.T) {
	done := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	rec := TaxiRecord{
		ID:           "ride-1",
		RideStatus:   "completed",
		DriverID:     strPtr("driver-3"),
		DriverName:   strPtr("Alice"),
		CarModel:     strPtr("Toyota Vitz"),
		FareAmount:   4800,
		FareCurrency: "RWF",
		CompletedAt:  timePtr(done),
	}
	d := NormalizeTaxi(rec, DefaultTables())
	if d.Kind != KindTaxi || d.Status != "completed" {
		t.Fatalf("unexpected normalization: %+v", d)
	}
	if d.Progress != 100 {
		t.Fatalf("terminal taxi status must map to 100, got %d", d.Progress)
	}
	if d.Counterparty.Vehicle != "Toyota Vitz" {
		t.Fatalf("vehicle not mapped")
	}
	if d.Timing.CompletedAt != done {
		t.Fatalf("completion time not mapped")
	}
}

func TestNormalizeMarketplace(t *testing.T) {
	rec := MarketplaceRecord{
		ID:              "order-1",
		OrderStatus:     "cancelled",
		StoreAddress:    "Kimironko Market",
		ShippingAddress: "Remera",
		TotalAmount:     12000,
		Currency:        "RWF",
	}
	d := NormalizeMarketplace(rec, DefaultTables())
	if d.Kind != KindMarketplace {
		t.Fatalf("unexpected kind")
	}
	if d.Progress != 0 {
		t.Fatalf("cancelled must map to 0, got %d", d.Progress)
	}
	if d.Route.Pickup.Address != "Kimironko Market" || d.Route.Destination.Address != "Remera" {
		t.Fatalf("route not mapped: %+v", d.Route)
	}
	if d.Counterparty != nil {
		t.Fatalf("expected no counterparty")
	}
}

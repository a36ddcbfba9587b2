package trips

import "time"

// Raw backend records. Each kind names its fields differently; the
// Normalize functions are the only place those names are known.

type DeliveryRecord struct {
	ID               string
	Status           string
	CourierID        *string
	CourierName      *string
	CourierPhone     *string
	CourierAvatarURL *string
	CourierRating    *float64
	VehiclePlate     *string
	PickupLat        float64
	PickupLng        float64
	PickupAddress    string
	DropoffLat       float64
	DropoffLng       float64
	DropoffAddress   string
	DeliveryFee      float64
	Currency         string
	FeeEstimated     bool
	CreatedAt        time.Time
	EtaAt            *time.Time
	DeliveredAt      *time.Time
}

type TaxiRecord struct {
	ID             string
	RideStatus     string
	DriverID       *string
	DriverName     *string
	DriverPhone    *string
	DriverPhotoURL *string
	DriverRating   *float64
	CarModel       *string
	OriginLat      float64
	OriginLng      float64
	OriginAddress  string
	DestLat        float64
	DestLng        float64
	DestAddress    string
	FareAmount     float64
	FareCurrency   string
	FareIsEstimate bool
	RequestedAt    time.Time
	PickupEtaAt    *time.Time
	CompletedAt    *time.Time
}

type MarketplaceRecord struct {
	ID              string
	OrderStatus     string
	CourierID       *string
	CourierName     *string
	CourierPhone    *string
	StoreLat        float64
	StoreLng        float64
	StoreAddress    string
	ShippingLat     float64
	ShippingLng     float64
	ShippingAddress string
	TotalAmount     float64
	Currency        string
	PlacedAt        time.Time
	DeliveryEtaAt   *time.Time
	FulfilledAt     *time.Time
}

func NormalizeDelivery(rec DeliveryRecord, tables Tables) TrackingData {
	d := TrackingData{
		ID:     rec.ID,
		Kind:   KindDelivery,
		Status: rec.Status,
		Route: RoutePoints{
			Pickup:      GeoPoint{Lat: rec.PickupLat, Lng: rec.PickupLng, Address: rec.PickupAddress},
			Destination: GeoPoint{Lat: rec.DropoffLat, Lng: rec.DropoffLng, Address: rec.DropoffAddress},
		},
		Pricing:  Pricing{Amount: rec.DeliveryFee, Currency: rec.Currency, Estimated: rec.FeeEstimated},
		Timing:   Timing{CreatedAt: rec.CreatedAt},
		Progress: tables.ProgressFor(KindDelivery, rec.Status),
	}
	if rec.EtaAt != nil {
		d.Timing.EstimatedArrival = *rec.EtaAt
	}
	if rec.DeliveredAt != nil {
		d.Timing.CompletedAt = *rec.DeliveredAt
	}
	if rec.CourierID != nil {
		d.Counterparty = &Counterparty{ID: *rec.CourierID}
		if rec.CourierName != nil {
			d.Counterparty.Name = *rec.CourierName
		}
		if rec.CourierPhone != nil {
			d.Counterparty.Phone = *rec.CourierPhone
		}
		if rec.CourierAvatarURL != nil {
			d.Counterparty.AvatarURL = *rec.CourierAvatarURL
		}
		if rec.CourierRating != nil {
			d.Counterparty.Rating = *rec.CourierRating
		}
		if rec.VehiclePlate != nil {
			d.Counterparty.Vehicle = *rec.VehiclePlate
		}
	}
	return d
}

func NormalizeTaxi(rec TaxiRecord, tables Tables) TrackingData {
	d := TrackingData{
		ID:     rec.ID,
		Kind:   KindTaxi,
		Status: rec.RideStatus,
		Route: RoutePoints{
			Pickup:      GeoPoint{Lat: rec.OriginLat, Lng: rec.OriginLng, Address: rec.OriginAddress},
			Destination: GeoPoint{Lat: rec.DestLat, Lng: rec.DestLng, Address: rec.DestAddress},
		},
		Pricing:  Pricing{Amount: rec.FareAmount, Currency: rec.FareCurrency, Estimated: rec.FareIsEstimate},
		Timing:   Timing{CreatedAt: rec.RequestedAt},
		Progress: tables.ProgressFor(KindTaxi, rec.RideStatus),
	}
	if rec.PickupEtaAt != nil {
		d.Timing.EstimatedArrival = *rec.PickupEtaAt
	}
	if rec.CompletedAt != nil {
		d.Timing.CompletedAt = *rec.CompletedAt
	}
	if rec.DriverID != nil {
		d.Counterparty = &Counterparty{ID: *rec.DriverID}
		if rec.DriverName != nil {
			d.Counterparty.Name = *rec.DriverName
		}
		if rec.DriverPhone != nil {
			d.Counterparty.Phone = *rec.DriverPhone
		}
		if rec.DriverPhotoURL != nil {
			d.Counterparty.AvatarURL = *rec.DriverPhotoURL
		}
		if rec.DriverRating != nil {
			d.Counterparty.Rating = *rec.DriverRating
		}
		if rec.CarModel != nil {
			d.Counterparty.Vehicle = *rec.CarModel
		}
	}
	return d
}

func NormalizeMarketplace(rec MarketplaceRecord, tables Tables) TrackingData {
	d := TrackingData{
		ID:     rec.ID,
		Kind:   KindMarketplace,
		Status: rec.OrderStatus,
		Route: RoutePoints{
			Pickup:      GeoPoint{Lat: rec.StoreLat, Lng: rec.StoreLng, Address: rec.StoreAddress},
			Destination: GeoPoint{Lat: rec.ShippingLat, Lng: rec.ShippingLng, Address: rec.ShippingAddress},
		},
		Pricing:  Pricing{Amount: rec.TotalAmount, Currency: rec.Currency},
		Timing:   Timing{CreatedAt: rec.PlacedAt},
		Progress: tables.ProgressFor(KindMarketplace, rec.OrderStatus),
	}
	if rec.DeliveryEtaAt != nil {
		d.Timing.EstimatedArrival = *rec.DeliveryEtaAt
	}
	if rec.FulfilledAt != nil {
		d.Timing.CompletedAt = *rec.FulfilledAt
	}
	if rec.CourierID != nil {
		d.Counterparty = &Counterparty{ID: *rec.CourierID}
		if rec.CourierName != nil {
			d.Counterparty.Name = *rec.CourierName
		}
		if rec.CourierPhone != nil {
			d.Counterparty.Phone = *rec.CourierPhone
		}
	}
	return d
}

package trips

import (
	"context"
	"errors"
	"fmt"

	"backend-kwenda/internal/db"

	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound    = errors.New("trip not found")
	ErrUnknownKind = errors.New("unknown trip kind")
)

// Store reads the three backend record kinds from their own tables and
// normalizes them into TrackingData.
type Store struct {
	db     db.Querier
	tables Tables
}

func NewStore(q db.Querier, tables Tables) *Store {
	return &Store{db: q, tables: tables}
}

func (s *Store) Load(ctx context.Context, kind Kind, id string) (TrackingData, error) {
	switch kind {
	case KindDelivery:
		return s.loadDelivery(ctx, id)
	case KindTaxi:
		return s.loadTaxi(ctx, id)
	case KindMarketplace:
		return s.loadMarketplace(ctx, id)
	default:
		return TrackingData{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func (s *Store) loadDelivery(ctx context.Context, id string) (TrackingData, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, status, courier_id, courier_name, courier_phone, courier_avatar_url,
		       courier_rating, vehicle_plate,
		       pickup_lat, pickup_lng, pickup_address,
		       dropoff_lat, dropoff_lng, dropoff_address,
		       delivery_fee, currency, fee_estimated,
		       created_at, eta_at, delivered_at
		FROM deliveries WHERE id=$1
	`, id)
	var rec DeliveryRecord
	err := row.Scan(&rec.ID, &rec.Status, &rec.CourierID, &rec.CourierName, &rec.CourierPhone,
		&rec.CourierAvatarURL, &rec.CourierRating, &rec.VehiclePlate,
		&rec.PickupLat, &rec.PickupLng, &rec.PickupAddress,
		&rec.DropoffLat, &rec.DropoffLng, &rec.DropoffAddress,
		&rec.DeliveryFee, &rec.Currency, &rec.FeeEstimated,
		&rec.CreatedAt, &rec.EtaAt, &rec.DeliveredAt)
	if err != nil {
		return TrackingData{}, loadErr(KindDelivery, id, err)
	}
	return NormalizeDelivery(rec, s.tables), nil
}

func (s *Store) loadTaxi(ctx context.Context, id string) (TrackingData, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, ride_status, driver_id, driver_name, driver_phone, driver_photo_url,
		       driver_rating, car_model,
		       origin_lat, origin_lng, origin_address,
		       dest_lat, dest_lng, dest_address,
		       fare_amount, fare_currency, fare_is_estimate,
		       requested_at, pickup_eta_at, completed_at
		FROM taxi_rides WHERE id=$1
	`, id)
	var rec TaxiRecord
	err := row.Scan(&rec.ID, &rec.RideStatus, &rec.DriverID, &rec.DriverName, &rec.DriverPhone,
		&rec.DriverPhotoURL, &rec.DriverRating, &rec.CarModel,
		&rec.OriginLat, &rec.OriginLng, &rec.OriginAddress,
		&rec.DestLat, &rec.DestLng, &rec.DestAddress,
		&rec.FareAmount, &rec.FareCurrency, &rec.FareIsEstimate,
		&rec.RequestedAt, &rec.PickupEtaAt, &rec.CompletedAt)
	if err != nil {
		return TrackingData{}, loadErr(KindTaxi, id, err)
	}
	return NormalizeTaxi(rec, s.tables), nil
}

func (s *Store) loadMarketplace(ctx context.Context, id string) (TrackingData, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, order_status, courier_id, courier_name, courier_phone,
		       store_lat, store_lng, store_address,
		       shipping_lat, shipping_lng, shipping_address,
		       total_amount, currency,
		       placed_at, delivery_eta_at, fulfilled_at
		FROM marketplace_orders WHERE id=$1
	`, id)
	var rec MarketplaceRecord
	err := row.Scan(&rec.ID, &rec.OrderStatus, &rec.CourierID, &rec.CourierName, &rec.CourierPhone,
		&rec.StoreLat, &rec.StoreLng, &rec.StoreAddress,
		&rec.ShippingLat, &rec.ShippingLng, &rec.ShippingAddress,
		&rec.TotalAmount, &rec.Currency,
		&rec.PlacedAt, &rec.DeliveryEtaAt, &rec.FulfilledAt)
	if err != nil {
		return TrackingData{}, loadErr(KindMarketplace, id, err)
	}
	return NormalizeMarketplace(rec, s.tables), nil
}

func loadErr(kind Kind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return fmt.Errorf("load %s %s: %w", kind, id, err)
}

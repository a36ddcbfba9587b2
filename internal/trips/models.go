package trips

import "time"

// Kind discriminates the three backend record shapes a trip can have.
type Kind string

const (
	KindDelivery    Kind = "delivery"
	KindTaxi        Kind = "taxi"
	KindMarketplace Kind = "marketplace"
)

func (k Kind) Valid() bool {
	return k == KindDelivery || k == KindTaxi || k == KindMarketplace
}

type GeoPoint struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

type RoutePoints struct {
	Pickup      GeoPoint `json:"pickup"`
	Destination GeoPoint `json:"destination"`
}

// Counterparty is the other party in a trip, present once assigned.
type Counterparty struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Phone     string  `json:"phone,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Rating    float64 `json:"rating,omitempty"`
	Vehicle   string  `json:"vehicle,omitempty"`
}

type CounterpartyLocation struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Heading    float64   `json:"heading,omitempty"`
	Speed      float64   `json:"speed,omitempty"`
	LastUpdate time.Time `json:"last_update"`
}

type Pricing struct {
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Estimated bool    `json:"estimated,omitempty"`
}

type Timing struct {
	CreatedAt        time.Time `json:"created_at"`
	EstimatedArrival time.Time `json:"estimated_arrival,omitempty"`
	CompletedAt      time.Time `json:"completed_at,omitempty"`
}

// TrackingData is the unified projection of one delivery, taxi ride or
// marketplace order.
type TrackingData struct {
	ID                   string                `json:"id"`
	Kind                 Kind                  `json:"kind"`
	Status               string                `json:"status"`
	Counterparty         *Counterparty         `json:"counterparty,omitempty"`
	Route                RoutePoints           `json:"route"`
	Pricing              Pricing               `json:"pricing"`
	Timing               Timing                `json:"timing"`
	Progress             int                   `json:"progress"`
	CounterpartyLocation *CounterpartyLocation `json:"counterparty_location,omitempty"`
}

// Clone returns a deep copy so callers never share mutable state with the
// synchronizer.
func (d TrackingData) Clone() TrackingData {
	out := d
	if d.Counterparty != nil {
		cp := *d.Counterparty
		out.Counterparty = &cp
	}
	if d.CounterpartyLocation != nil {
		loc := *d.CounterpartyLocation
		out.CounterpartyLocation = &loc
	}
	return out
}

const (
	ConnConnected    = "connected"
	ConnReconnecting = "reconnecting"
	ConnDisconnected = "disconnected"
)

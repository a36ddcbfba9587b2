package trips

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// KindTable maps one record kind's raw statuses to progress percentages
// and user-facing labels. The values are product configuration, not
// derived logic: integrators supply their own via PROGRESS_TABLES_JSON.
type KindTable struct {
	Progress  map[string]int    `json:"progress"`
	Labels    map[string]string `json:"labels"`
	Terminal  []string          `json:"terminal"`
	Cancelled string            `json:"cancelled"`
}

type Tables map[Kind]KindTable

// DefaultTables returns the tables shipped with the product. Every
// terminal success status maps to 100 and the cancellation status to 0.
func DefaultTables() Tables {
	return Tables{
		KindDelivery: {
			Progress: map[string]int{
				"pending":          5,
				"confirmed":        15,
				"preparing":        30,
				"ready_for_pickup": 45,
				"picked_up":        60,
				"in_transit":       75,
				"arriving":         90,
				"delivered":        100,
				"cancelled":        0,
			},
			Labels: map[string]string{
				"pending":          "Waiting for confirmation",
				"confirmed":        "Order confirmed",
				"preparing":        "Being prepared",
				"ready_for_pickup": "Ready for pickup",
				"picked_up":        "Courier picked up your order",
				"in_transit":       "On the way",
				"arriving":         "Courier is arriving",
				"delivered":        "Delivered",
				"cancelled":        "Cancelled",
			},
			Terminal:  []string{"delivered"},
			Cancelled: "cancelled",
		},
		KindTaxi: {
			Progress: map[string]int{
				"requested":       10,
				"driver_assigned": 25,
				"driver_arriving": 40,
				"arrived_pickup":  55,
				"in_progress":     75,
				"approaching":     90,
				"completed":       100,
				"cancelled":       0,
			},
			Labels: map[string]string{
				"requested":       "Looking for a driver",
				"driver_assigned": "Driver assigned",
				"driver_arriving": "Driver on the way",
				"arrived_pickup":  "Driver has arrived",
				"in_progress":     "Trip in progress",
				"approaching":     "Approaching destination",
				"completed":       "Trip completed",
				"cancelled":       "Cancelled",
			},
			Terminal:  []string{"completed"},
			Cancelled: "cancelled",
		},
		KindMarketplace: {
			Progress: map[string]int{
				"placed":            10,
				"payment_confirmed": 25,
				"processing":        40,
				"shipped":           60,
				"out_for_delivery":  80,
				"delivered":         100,
				"cancelled":         0,
			},
			Labels: map[string]string{
				"placed":            "Order placed",
				"payment_confirmed": "Payment confirmed",
				"processing":        "Processing",
				"shipped":           "Shipped",
				"out_for_delivery":  "Out for delivery",
				"delivered":         "Delivered",
				"cancelled":         "Cancelled",
			},
			Terminal:  []string{"delivered"},
			Cancelled: "cancelled",
		},
	}
}

// TablesFromJSON parses integrator-supplied tables. An empty string means
// the defaults.
func TablesFromJSON(raw string) (Tables, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultTables(), nil
	}
	var t Tables
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("parse progress tables: %w", err)
	}
	return t, nil
}

func (t Tables) ProgressFor(kind Kind, status string) int {
	p, ok := t[kind].Progress[status]
	if !ok {
		return 0
	}
	return p
}

func (t Tables) Label(kind Kind, status string) string {
	if label, ok := t[kind].Labels[status]; ok {
		return label
	}
	return strings.ReplaceAll(status, "_", " ")
}

func (t Tables) IsTerminal(kind Kind, status string) bool {
	for _, s := range t[kind].Terminal {
		if s == status {
			return true
		}
	}
	return false
}

func (t Tables) IsCancelled(kind Kind, status string) bool {
	return status != "" && t[kind].Cancelled == status
}

// IsActive reports whether the trip is still in flight.
func (t Tables) IsActive(d TrackingData) bool {
	return !t.IsTerminal(d.Kind, d.Status) && !t.IsCancelled(d.Kind, d.Status)
}

func IsCompleted(d TrackingData) bool {
	return d.Progress == 100
}

// FormatETA renders the time left until the estimated arrival, clamped to
// "arriving now" below the imminent threshold. Empty when no estimate is
// known or the trip is over.
func FormatETA(d TrackingData, now time.Time, imminent time.Duration) string {
	if d.Timing.EstimatedArrival.IsZero() || IsCompleted(d) {
		return ""
	}
	left := d.Timing.EstimatedArrival.Sub(now)
	if left <= imminent {
		return "arriving now"
	}
	mins := int(left.Round(time.Minute) / time.Minute)
	return fmt.Sprintf("%d min", mins)
}

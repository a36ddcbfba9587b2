package sampler

import "time"

// Position is one timestamped geographic reading.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Speed     float64   `json:"speed,omitempty"`
	Heading   float64   `json:"heading,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TrackingStats are rolling counters owned by the sampler. They reset only
// on an explicit restart.
type TrackingStats struct {
	SamplesAccepted  int64         `json:"samples_accepted"`
	StaleDropped     int64         `json:"stale_dropped"`
	Compressed       int64         `json:"compressed"`
	BufferDropped    int64         `json:"buffer_dropped"`
	NetworkErrors    int64         `json:"network_errors"`
	CompressionRatio float64       `json:"compression_ratio"`
	MeanAccuracyM    float64       `json:"mean_accuracy_m"`
	BatteryCostPct   float64       `json:"battery_cost_pct"`
	Uptime           time.Duration `json:"uptime"`
}

// Status is the sampler's current derived state.
type Status struct {
	Running       bool          `json:"running"`
	Interval      time.Duration `json:"interval"`
	BatteryPct    float64       `json:"battery_pct"`
	NetworkStatus string        `json:"network_status"`
	BufferSize    int           `json:"buffer_size"`
	CacheSize     int           `json:"cache_size"`
}

const (
	NetworkOnline  = "online"
	NetworkOffline = "offline"
)

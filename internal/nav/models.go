package nav

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRouteUnavailable = errors.New("route unavailable")
	ErrAlreadyActive    = errors.New("navigation already active")
	ErrNotNavigating    = errors.New("navigation not active")
)

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Maneuver string

const (
	ManeuverDepart    Maneuver = "depart"
	ManeuverTurnLeft  Maneuver = "turn_left"
	ManeuverTurnRight Maneuver = "turn_right"
	ManeuverStraight  Maneuver = "straight"
	ManeuverUTurn     Maneuver = "uturn"
	ManeuverArrive    Maneuver = "arrive"
)

// Step is one leg of a planned route: travel from Start to End, then
// perform Maneuver onto Street.
type Step struct {
	Maneuver  Maneuver `json:"maneuver"`
	Street    string   `json:"street,omitempty"`
	Start     Point    `json:"start"`
	End       Point    `json:"end"`
	DistanceM float64  `json:"distance_m"`
	DurationS float64  `json:"duration_s"`
}

type Route struct {
	Steps     []Step  `json:"steps"`
	DistanceM float64 `json:"distance_m"`
	DurationS float64 `json:"duration_s"`
}

// RoutePlanner is the external routing collaborator.
type RoutePlanner interface {
	Plan(ctx context.Context, origin, destination Point) (Route, error)
}

type State string

const (
	StateIdle             State = "idle"
	StateRouteCalculating State = "route_calculating"
	StateNavigating       State = "navigating"
	StateOffRoute         State = "off_route"
	StateRecalculating    State = "recalculating"
	StateArrived          State = "arrived"
	StateStopped          State = "stopped"
)

// NavigationState is the read-only snapshot handed to callers.
type NavigationState struct {
	State              State     `json:"state"`
	Active             bool      `json:"active"`
	CurrentInstruction string    `json:"current_instruction,omitempty"`
	NextInstruction    string    `json:"next_instruction,omitempty"`
	Progress           float64   `json:"progress"`
	RemainingDistanceM float64   `json:"remaining_distance_m"`
	RemainingDurationS float64   `json:"remaining_duration_s"`
	ETA                time.Time `json:"eta,omitempty"`
	SpeedMps           float64   `json:"speed_mps"`
	OffRoute           bool      `json:"off_route"`
	Recalculating      bool      `json:"recalculating"`
	VoiceMuted         bool      `json:"voice_muted"`
}

// VoiceInstruction is transient: synthesized once, then discarded.
type VoiceInstruction struct {
	Maneuver  Maneuver `json:"maneuver"`
	DistanceM float64  `json:"distance_m"`
	Street    string   `json:"street,omitempty"`
}

// Tuning carries the navigation knobs from configuration.
type Tuning struct {
	CorridorToleranceM float64
	ArrivalThresholdM  float64
	RecalcMaxRetries   int
	RecalcBackoff      time.Duration
	Voice              string
}

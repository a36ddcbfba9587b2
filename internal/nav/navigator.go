package nav

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"backend-kwenda/internal/sampler"
	"backend-kwenda/internal/shared/geo"
	"backend-kwenda/internal/speech"
)

// PositionStream is the slice of the sampler the navigator needs;
// *sampler.Sampler satisfies it.
type PositionStream interface {
	Subscribe(onSample func(sampler.Position), onErr func(error), onStats func(sampler.TrackingStats)) func()
}

// Navigator drives turn-by-turn progress for one route. It consumes the
// caller's own position stream, detects corridor deviation, schedules
// recalculation off the position callback, and feeds the voice queue.
type Navigator struct {
	planner   RoutePlanner
	positions PositionStream
	queue     *voiceQueue
	tune      Tuning

	mu              sync.Mutex
	state           State
	route           Route
	destination     Point
	stepIdx         int
	lastPos         sampler.Position
	hasPos          bool
	remainingM      float64
	remainingS      float64
	progress        float64
	speed           float64
	eta             time.Time
	currentInstr    string
	nextInstr       string
	unsubscribe     func()
	recalcScheduled bool
}

func NewNavigator(planner RoutePlanner, positions PositionStream, synth speech.Synthesizer, tune Tuning) *Navigator {
	n := &Navigator{
		planner:   planner,
		positions: positions,
		tune:      tune,
		state:     StateIdle,
	}
	n.queue = newVoiceQueue(synth, tune.Voice, func(err error) {
		log.Printf("navigation voice: %v", err)
	})
	return n
}

// Start plans the route and enters Navigating. Only an idle navigator can
// start; Stopped and Arrived are terminal for this session.
func (n *Navigator) Start(ctx context.Context, origin, destination Point) error {
	n.mu.Lock()
	if n.state != StateIdle {
		n.mu.Unlock()
		return ErrAlreadyActive
	}
	n.state = StateRouteCalculating
	n.destination = destination
	n.mu.Unlock()

	route, err := n.planner.Plan(ctx, origin, destination)
	if err != nil || len(route.Steps) == 0 {
		n.mu.Lock()
		n.state = StateIdle
		n.mu.Unlock()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
		}
		return fmt.Errorf("%w: planner returned no steps", ErrRouteUnavailable)
	}

	n.mu.Lock()
	if n.state != StateRouteCalculating {
		// Stopped while the planner was in flight.
		n.mu.Unlock()
		return nil
	}
	n.installRouteLocked(route)
	n.state = StateNavigating
	first := n.route.Steps[0]
	n.mu.Unlock()

	unsub := n.positions.Subscribe(n.onPosition, n.onSourceError, nil)
	n.mu.Lock()
	if n.state == StateStopped {
		n.mu.Unlock()
		unsub()
		return nil
	}
	n.unsubscribe = unsub
	n.mu.Unlock()

	n.queue.enqueue(VoiceInstruction{Maneuver: ManeuverDepart, Street: first.Street}, nil)
	return nil
}

// Stop tears down the position subscription and the voice queue. Terminal
// and idempotent from any state.
func (n *Navigator) Stop() {
	n.mu.Lock()
	if n.state == StateStopped {
		n.mu.Unlock()
		return
	}
	n.state = StateStopped
	unsub := n.unsubscribe
	n.unsubscribe = nil
	n.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	n.queue.close()
}

// ToggleVoice mutes or unmutes announcements without touching the state
// machine. Returns the new muted value.
func (n *Navigator) ToggleVoice() bool {
	muted := !n.queue.isMuted()
	n.queue.setMuted(muted)
	return muted
}

func (n *Navigator) State() NavigationState {
	n.mu.Lock()
	defer n.mu.Unlock()
	active := n.state == StateNavigating || n.state == StateOffRoute || n.state == StateRecalculating
	return NavigationState{
		State:              n.state,
		Active:             active,
		CurrentInstruction: n.currentInstr,
		NextInstruction:    n.nextInstr,
		Progress:           n.progress,
		RemainingDistanceM: n.remainingM,
		RemainingDurationS: n.remainingS,
		ETA:                n.eta,
		SpeedMps:           n.speed,
		OffRoute:           n.state == StateOffRoute || n.state == StateRecalculating,
		Recalculating:      n.state == StateRecalculating,
		VoiceMuted:         n.queue.isMuted(),
	}
}

// installRouteLocked resets per-route progress. Callers hold mu.
func (n *Navigator) installRouteLocked(route Route) {
	if route.DistanceM == 0 {
		for _, s := range route.Steps {
			route.DistanceM += s.DistanceM
			route.DurationS += s.DurationS
		}
	}
	n.route = route
	n.stepIdx = 0
	n.remainingM = route.DistanceM
	n.remainingS = route.DurationS
	n.progress = 0
}

func (n *Navigator) onPosition(p sampler.Position) {
	n.mu.Lock()
	if n.state != StateNavigating && n.state != StateOffRoute {
		n.mu.Unlock()
		return
	}
	n.lastPos = p
	n.hasPos = true
	n.speed = p.Speed

	// Locate the nearest step at or after the current one; the step index
	// never moves backwards.
	bestIdx, bestDist := n.stepIdx, math.Inf(1)
	for i := n.stepIdx; i < len(n.route.Steps); i++ {
		s := n.route.Steps[i]
		d := geo.DistanceToSegmentM(p.Latitude, p.Longitude, s.Start.Lat, s.Start.Lng, s.End.Lat, s.End.Lng)
		if d < bestDist {
			bestIdx, bestDist = i, d
		}
	}

	if bestDist > n.tune.CorridorToleranceM {
		n.state = StateOffRoute
		schedule := !n.recalcScheduled
		if schedule {
			n.recalcScheduled = true
		}
		n.mu.Unlock()
		if schedule {
			// Scheduled, never run inline on the position callback.
			time.AfterFunc(n.tune.RecalcBackoff, n.recalculate)
		}
		return
	}
	if n.state == StateOffRoute {
		// Wandered back into the corridor on their own.
		n.state = StateNavigating
	}

	advanced := bestIdx > n.stepIdx
	n.stepIdx = bestIdx
	step := n.route.Steps[n.stepIdx]
	toStepEnd := geo.HaversineM(p.Latitude, p.Longitude, step.End.Lat, step.End.Lng)

	remaining := toStepEnd
	remainingS := 0.0
	if step.DistanceM > 0 {
		remainingS = step.DurationS * (toStepEnd / step.DistanceM)
	}
	for i := n.stepIdx + 1; i < len(n.route.Steps); i++ {
		remaining += n.route.Steps[i].DistanceM
		remainingS += n.route.Steps[i].DurationS
	}
	n.remainingM = remaining
	n.remainingS = remainingS
	if n.route.DistanceM > 0 {
		n.progress = math.Max(0, math.Min(100, 100*(1-remaining/n.route.DistanceM)))
	}
	n.eta = time.Now().Add(time.Duration(remainingS * float64(time.Second)))
	n.currentInstr = SpokenText(VoiceInstruction{Maneuver: step.Maneuver, DistanceM: toStepEnd, Street: step.Street})
	n.nextInstr = ""
	if n.stepIdx+1 < len(n.route.Steps) {
		next := n.route.Steps[n.stepIdx+1]
		n.nextInstr = SpokenText(VoiceInstruction{Maneuver: next.Maneuver, DistanceM: next.DistanceM, Street: next.Street})
	}

	if remaining <= n.tune.ArrivalThresholdM {
		n.state = StateArrived
		n.progress = 100
		n.remainingM = 0
		unsub := n.unsubscribe
		n.unsubscribe = nil
		n.mu.Unlock()
		if unsub != nil {
			unsub()
		}
		n.queue.enqueue(VoiceInstruction{Maneuver: ManeuverArrive}, nil)
		return
	}

	if advanced {
		idx := n.stepIdx
		n.mu.Unlock()
		n.queue.enqueue(VoiceInstruction{Maneuver: step.Maneuver, DistanceM: toStepEnd, Street: step.Street}, func() bool {
			n.mu.Lock()
			defer n.mu.Unlock()
			// Stale once the maneuver's step has been passed or the
			// session ended.
			active := n.state == StateNavigating || n.state == StateOffRoute || n.state == StateRecalculating
			return active && n.stepIdx == idx
		})
		return
	}
	n.mu.Unlock()
}

// recalculate retries the planner with linear backoff up to the
// configured budget, then settles back on OffRoute; the next off-corridor
// position tick schedules a fresh round, so an active session never
// silently abandons recalculation.
func (n *Navigator) recalculate() {
	defer func() {
		n.mu.Lock()
		n.recalcScheduled = false
		if n.state == StateRecalculating {
			n.state = StateOffRoute
		}
		n.mu.Unlock()
	}()

	for attempt := 0; attempt <= n.tune.RecalcMaxRetries; attempt++ {
		n.mu.Lock()
		if n.state != StateOffRoute && n.state != StateRecalculating {
			n.mu.Unlock()
			return
		}
		n.state = StateRecalculating
		if !n.hasPos {
			n.mu.Unlock()
			return
		}
		origin := Point{Lat: n.lastPos.Latitude, Lng: n.lastPos.Longitude}
		destination := n.destination
		n.mu.Unlock()

		route, err := n.planner.Plan(context.Background(), origin, destination)
		if err == nil && len(route.Steps) > 0 {
			n.mu.Lock()
			if n.state == StateRecalculating {
				n.installRouteLocked(route)
				n.state = StateNavigating
			}
			n.mu.Unlock()
			return
		}
		log.Printf("route recalculation attempt %d: %v", attempt+1, err)
		if attempt < n.tune.RecalcMaxRetries {
			time.Sleep(n.tune.RecalcBackoff * time.Duration(attempt+1))
		}
	}
}

func (n *Navigator) onSourceError(err error) {
	log.Printf("navigation position source: %v", err)
}

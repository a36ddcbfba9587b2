package sampler

import (
	"context"
	"errors"
	"sync"
	"time"

	"backend-kwenda/internal/shared/geo"

	"github.com/google/uuid"
)

var ErrAlreadyStarted = errors.New("sampler already started")

// Options mirror the client-side tracking profile.
type Options struct {
	Profile            string `json:"profile"`
	HighAccuracy       bool   `json:"high_accuracy"`
	BatteryOptimized   bool   `json:"battery_optimized"`
	AdaptiveInterval   bool   `json:"adaptive_interval"`
	CachingEnabled     bool   `json:"caching_enabled"`
	CompressionEnabled bool   `json:"compression_enabled"`
}

// Tuning carries the sampler knobs from configuration.
type Tuning struct {
	BaseInterval       time.Duration
	MinInterval        time.Duration
	MaxInterval        time.Duration
	BatteryLowPct      float64
	BatteryCriticalPct float64
	BufferCap          int
	RetryBudget        int
	FirstFixTimeout    time.Duration
}

const (
	cacheCap = 50
	// Consecutive fixes closer than this with no movement are folded away
	// when compression is on.
	compressionRadiusM = 5.0
	compressionSpeed   = 0.5
)

type subscriber struct {
	onSample func(Position)
	onErr    func(error)
	onStats  func(TrackingStats)
}

// Sampler owns one physical location source and republishes a
// de-duplicated, rate-adapted position stream to any number of logical
// subscribers. All mutable state is guarded by mu; subscriber callbacks
// run outside the lock on snapshots.
type Sampler struct {
	source Source
	tune   Tuning

	mu         sync.Mutex
	running    bool
	opts       Options
	stopWatch  func()
	subs       map[string]*subscriber
	last       Position
	hasLast    bool
	interval   time.Duration
	battery    float64
	online     bool
	buffer     []Position
	cache      []Position
	stats      TrackingStats
	startedAt  time.Time
	consecErrs int
	firstFix   chan struct{}
}

func New(source Source, tune Tuning) *Sampler {
	return &Sampler{
		source: source,
		tune:   tune,
		subs:   map[string]*subscriber{},
	}
}

// Start begins continuous sampling. It returns once the first fix arrives
// or the first-fix timeout elapses; the timeout is not an error, sampling
// keeps running in the background. Permission and availability failures
// from the source surface synchronously.
func (s *Sampler) Start(ctx context.Context, opts Options) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.running = true
	s.opts = opts
	s.battery = 100
	s.online = true
	s.buffer = nil
	s.cache = nil
	s.hasLast = false
	s.consecErrs = 0
	s.stats = TrackingStats{CompressionRatio: 1}
	s.startedAt = time.Now()
	s.firstFix = make(chan struct{})
	firstFix := s.firstFix
	s.recalcInterval()
	s.mu.Unlock()

	stop, err := s.source.Watch(WatchOptions{
		HighAccuracy: opts.HighAccuracy,
		Timeout:      s.tune.FirstFixTimeout,
	}, s.handleFix, s.handleSourceError)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.stopWatch = stop
	s.mu.Unlock()

	select {
	case <-firstFix:
	case <-time.After(s.tune.FirstFixTimeout):
	case <-ctx.Done():
		s.Stop()
		return ctx.Err()
	}
	return nil
}

// Stop tears down the watch and flushes any buffered samples to the
// subscribers. Calling it when not running is a no-op.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop := s.stopWatch
	s.stopWatch = nil
	flush := s.buffer
	s.buffer = nil
	s.cache = nil
	subs := s.snapshotSubs()
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	for _, p := range flush {
		for _, sub := range subs {
			if sub.onSample != nil {
				sub.onSample(p)
			}
		}
	}
}

// Subscribe registers three independent callbacks and returns a disposer.
// Unsubscribing one subscriber does not affect the others; double disposal
// is a no-op.
func (s *Sampler) Subscribe(onSample func(Position), onErr func(error), onStats func(TrackingStats)) func() {
	id := uuid.NewString()
	s.mu.Lock()
	s.subs[id] = &subscriber{onSample: onSample, onErr: onErr, onStats: onStats}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// SetBatteryLevel feeds the device battery signal into interval adaptation.
func (s *Sampler) SetBatteryLevel(pct float64) {
	s.mu.Lock()
	s.battery = pct
	s.recalcInterval()
	s.mu.Unlock()
}

// SetNetworkOnline switches between immediate publishing and local
// buffering. Regaining connectivity drains the buffer in timestamp order.
func (s *Sampler) SetNetworkOnline(online bool) {
	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	if online {
		s.consecErrs = 0
	}
	var drain []Position
	if online && !wasOnline {
		drain = s.buffer
		s.buffer = nil
	}
	subs := s.snapshotSubs()
	s.mu.Unlock()

	for _, p := range drain {
		for _, sub := range subs {
			if sub.onSample != nil {
				sub.onSample(p)
			}
		}
	}
}

func (s *Sampler) Stats() TrackingStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	if s.running {
		stats.Uptime = time.Since(s.startedAt)
	}
	return stats
}

func (s *Sampler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := Status{
		Running:       s.running,
		Interval:      s.interval,
		BatteryPct:    s.battery,
		NetworkStatus: NetworkOnline,
		BufferSize:    len(s.buffer),
		CacheSize:     len(s.cache),
	}
	if !s.online {
		status.NetworkStatus = NetworkOffline
	}
	return status
}

// Recent returns the cached tail of accepted positions, oldest first.
func (s *Sampler) Recent() []Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Position, len(s.cache))
	copy(out, s.cache)
	return out
}

func (s *Sampler) handleFix(p Position) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}

	// Stale-reading invariant: a fix older than the last accepted one for
	// this source never mutates state.
	if s.hasLast && !p.Timestamp.After(s.last.Timestamp) {
		s.stats.StaleDropped++
		s.mu.Unlock()
		return
	}

	if s.hasLast {
		// Interval gating: fixes arriving faster than the adapted interval
		// are folded away rather than republished.
		if p.Timestamp.Sub(s.last.Timestamp) < s.interval {
			s.stats.Compressed++
			s.updateRatio()
			s.mu.Unlock()
			return
		}
		if s.opts.CompressionEnabled {
			moved := geo.HaversineM(s.last.Latitude, s.last.Longitude, p.Latitude, p.Longitude)
			if moved < compressionRadiusM && p.Speed < compressionSpeed {
				s.stats.Compressed++
				s.updateRatio()
				s.mu.Unlock()
				return
			}
		}
	}

	s.last = p
	s.hasLast = true
	s.consecErrs = 0
	s.stats.SamplesAccepted++
	s.stats.MeanAccuracyM += (p.Accuracy - s.stats.MeanAccuracyM) / float64(s.stats.SamplesAccepted)
	cost := 0.008
	if s.opts.HighAccuracy {
		cost = 0.02
	}
	s.stats.BatteryCostPct += cost
	s.updateRatio()
	s.recalcInterval()

	if s.opts.CachingEnabled {
		s.cache = append(s.cache, p)
		if len(s.cache) > cacheCap {
			s.cache = s.cache[1:]
		}
	}

	if s.firstFix != nil {
		select {
		case <-s.firstFix:
		default:
			close(s.firstFix)
		}
	}

	if !s.online {
		s.buffer = append(s.buffer, p)
		if s.tune.BufferCap > 0 && len(s.buffer) > s.tune.BufferCap {
			// Bounded buffer: oldest samples are dropped and accounted for.
			over := len(s.buffer) - s.tune.BufferCap
			s.buffer = s.buffer[over:]
			s.stats.BufferDropped += int64(over)
		}
		s.mu.Unlock()
		return
	}

	stats := s.stats
	stats.Uptime = time.Since(s.startedAt)
	subs := s.snapshotSubs()
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.onSample != nil {
			sub.onSample(p)
		}
		if sub.onStats != nil {
			sub.onStats(stats)
		}
	}
}

// handleSourceError absorbs transient source failures: the stream keeps
// running, the error is surfaced through the onError callbacks, and only a
// streak beyond the retry budget degrades the network status.
func (s *Sampler) handleSourceError(err error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.stats.NetworkErrors++
	s.consecErrs++
	if s.consecErrs > s.tune.RetryBudget {
		s.online = false
	}
	subs := s.snapshotSubs()
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.onErr != nil {
			sub.onErr(err)
		}
	}
}

func (s *Sampler) snapshotSubs() []*subscriber {
	out := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out
}

func (s *Sampler) updateRatio() {
	total := s.stats.SamplesAccepted + s.stats.Compressed
	if total == 0 {
		s.stats.CompressionRatio = 1
		return
	}
	s.stats.CompressionRatio = float64(s.stats.SamplesAccepted) / float64(total)
}

// recalcInterval derives the sampling interval from speed and battery.
// Faster movement shortens it, low battery lengthens it; the result stays
// within [MinInterval, MaxInterval]. Callers hold mu.
func (s *Sampler) recalcInterval() {
	interval := s.tune.BaseInterval
	if s.opts.AdaptiveInterval && s.hasLast && s.last.Speed > 0 {
		interval = time.Duration(float64(interval) / (1 + s.last.Speed/10))
	}
	if s.opts.AdaptiveInterval || s.opts.BatteryOptimized {
		switch {
		case s.battery < s.tune.BatteryCriticalPct:
			interval *= 3
		case s.battery < s.tune.BatteryLowPct:
			interval *= 2
		}
	}
	if interval < s.tune.MinInterval {
		interval = s.tune.MinInterval
	}
	if s.tune.MaxInterval > 0 && interval > s.tune.MaxInterval {
		interval = s.tune.MaxInterval
	}
	s.interval = interval
}

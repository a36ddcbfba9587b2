package trips

import (
	"context"
	"errors"
	"log"
	"sync"

	"backend-kwenda/internal/notify"
)

var ErrWatchClosed = errors.New("watch closed")

// Loader reads one trip record by kind and id. *Store satisfies it.
type Loader interface {
	Load(ctx context.Context, kind Kind, id string) (TrackingData, error)
}

type WatchOptions struct {
	AutoRefresh              bool `json:"auto_refresh"`
	Notify                   bool `json:"notify"`
	LiveCounterpartyLocation bool `json:"live_counterparty_location"`
}

// Synchronizer maintains one consistent TrackingData per watched trip.
// Record change notifications trigger a full reload-and-renormalize; the
// counterparty location stream updates exactly one field in place.
type Synchronizer struct {
	loader    Loader
	feed      ChangeFeed
	notifier  notify.Notifier
	tables    Tables
	broadcast func(tripID string, data TrackingData)
}

// NewSynchronizer wires the record loader, the change feed and the
// notification sink. broadcast may be nil; when set, every accepted data
// change is pushed through it (the stream hub hangs off this).
func NewSynchronizer(loader Loader, feed ChangeFeed, notifier notify.Notifier, tables Tables, broadcast func(string, TrackingData)) *Synchronizer {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Synchronizer{
		loader:    loader,
		feed:      feed,
		notifier:  notifier,
		tables:    tables,
		broadcast: broadcast,
	}
}

func (s *Synchronizer) Tables() Tables {
	return s.tables
}

// Watch loads the trip once and, per options, opens the change
// subscriptions. A missing record is a hard ErrNotFound failure.
func (s *Synchronizer) Watch(ctx context.Context, id string, kind Kind, opts WatchOptions) (*Watch, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	data, err := s.loader.Load(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	w := &Watch{
		syncr:      s,
		id:         id,
		kind:       kind,
		opts:       opts,
		data:       data,
		connStatus: ConnConnected,
	}

	if opts.AutoRefresh && s.feed != nil {
		if err := w.subscribeRecord(ctx); err != nil {
			return nil, err
		}
	}
	if opts.LiveCounterpartyLocation && s.feed != nil && data.Counterparty != nil {
		// Location is an enhancement on top of the record feed; a failed
		// subscribe does not sink the watch.
		if err := w.subscribeLocation(ctx, data.Counterparty.ID); err != nil {
			log.Printf("location subscribe for trip %s: %v", id, err)
		}
	}

	if opts.Notify {
		s.notifier.Notify(ctx, id, "tracking_started", s.tables.Label(kind, data.Status))
	}
	s.publish(id, data.Clone())
	return w, nil
}

func (s *Synchronizer) publish(id string, data TrackingData) {
	if s.broadcast != nil {
		s.broadcast(id, data)
	}
}

// Watch is one live tracking session for one trip id. All mutable state is
// guarded by mu; mu is never held across feed or notifier calls, so Close
// is safe from inside a change handler.
type Watch struct {
	syncr *Synchronizer
	id    string
	kind  Kind
	opts  WatchOptions

	mu             sync.Mutex
	data           TrackingData
	connStatus     string
	closed         bool
	stopped        bool
	stopReason     string
	cancelRecord   func()
	cancelLocation func()
	locBoundTo     string
}

func (w *Watch) ID() string { return w.id }
func (w *Watch) Kind() Kind { return w.kind }

// Data returns a snapshot copy of the current tracking state.
func (w *Watch) Data() TrackingData {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.data.Clone()
}

func (w *Watch) ConnectionStatus() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connStatus
}

// Stopped reports whether the session degraded mid-watch (e.g. the record
// was deleted) and why.
func (w *Watch) Stopped() (bool, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped, w.stopReason
}

// Refresh reloads and renormalizes the record. Usable when autoRefresh is
// off or after a suspected missed notification.
func (w *Watch) Refresh(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatchClosed
	}
	w.mu.Unlock()

	data, err := w.syncr.loader.Load(ctx, w.kind, w.id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Deleted after the initial watch: degrade, don't throw.
			w.degrade(ctx, "record deleted")
		}
		return err
	}
	w.apply(ctx, data)
	return nil
}

// Close tears down both subscriptions. Idempotent, and callable from
// within a change-notification handler.
func (w *Watch) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	cancels := []func(){w.cancelRecord, w.cancelLocation}
	w.cancelRecord, w.cancelLocation = nil, nil
	w.mu.Unlock()

	for _, cancel := range cancels {
		if cancel != nil {
			cancel()
		}
	}
}

func (w *Watch) subscribeRecord(ctx context.Context) error {
	cancel, err := w.syncr.feed.SubscribeRecord(ctx, w.kind, w.id, w.onRecordChange, w.onRecordDrop)
	if err != nil {
		return err
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		cancel()
		return nil
	}
	w.cancelRecord = cancel
	w.mu.Unlock()
	return nil
}

func (w *Watch) subscribeLocation(ctx context.Context, counterpartyID string) error {
	cancel, err := w.syncr.feed.SubscribeLocation(ctx, counterpartyID, w.onLocation, w.onLocationDrop)
	if err != nil {
		return err
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		cancel()
		return nil
	}
	w.cancelLocation = cancel
	w.locBoundTo = counterpartyID
	w.mu.Unlock()
	return nil
}

func (w *Watch) onRecordChange() {
	// Full reload: the backend shape varies by kind, so patching fields
	// from the notification payload is not worth the risk.
	_ = w.Refresh(context.Background())
}

// apply installs a freshly loaded record. The location stream owns
// CounterpartyLocation, so the newer of the two values wins.
func (w *Watch) apply(ctx context.Context, data TrackingData) {
	w.mu.Lock()
	if w.closed {
		// In-flight reload completed after teardown; discard.
		w.mu.Unlock()
		return
	}
	prevStatus := w.data.Status
	if prev := w.data.CounterpartyLocation; prev != nil {
		if data.CounterpartyLocation == nil || prev.LastUpdate.After(data.CounterpartyLocation.LastUpdate) {
			w.data.CounterpartyLocation = prev
			data.CounterpartyLocation = prev
		}
	}
	w.data = data

	rebind := ""
	var cancelOldLoc func()
	if w.opts.LiveCounterpartyLocation && w.syncr.feed != nil &&
		data.Counterparty != nil && data.Counterparty.ID != w.locBoundTo {
		rebind = data.Counterparty.ID
		cancelOldLoc = w.cancelLocation
		w.cancelLocation = nil
	}
	statusChanged := prevStatus != data.Status
	snapshot := w.data.Clone()
	w.mu.Unlock()

	if cancelOldLoc != nil {
		cancelOldLoc()
	}
	if rebind != "" {
		if err := w.subscribeLocation(ctx, rebind); err != nil {
			log.Printf("location resubscribe for trip %s: %v", w.id, err)
		}
	}
	if statusChanged && w.opts.Notify {
		w.syncr.notifier.Notify(ctx, w.id, "status_changed", w.syncr.tables.Label(w.kind, snapshot.Status))
	}
	w.syncr.publish(w.id, snapshot)
}

func (w *Watch) onLocation(loc CounterpartyLocation) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	// Same staleness invariant as the sampler, applied independently: this
	// stream has its own source and its own clock.
	if cur := w.data.CounterpartyLocation; cur != nil && !loc.LastUpdate.After(cur.LastUpdate) {
		w.mu.Unlock()
		return
	}
	l := loc
	w.data.CounterpartyLocation = &l
	snapshot := w.data.Clone()
	w.mu.Unlock()

	w.syncr.publish(w.id, snapshot)
}

// onRecordDrop makes exactly one automatic reconnect attempt, then settles
// on disconnected and leaves further retries to the caller.
func (w *Watch) onRecordDrop(error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.connStatus = ConnReconnecting
	w.cancelRecord = nil
	w.mu.Unlock()

	ctx := context.Background()
	if w.opts.Notify {
		w.syncr.notifier.Notify(ctx, w.id, "reconnecting", "trip updates interrupted")
	}
	if err := w.subscribeRecord(ctx); err != nil {
		w.setConnStatus(ConnDisconnected)
		return
	}
	// Catch up on anything missed while the subscription was down.
	_ = w.Refresh(ctx)
	w.setConnStatus(ConnConnected)
}

func (w *Watch) onLocationDrop(error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	boundTo := w.locBoundTo
	w.cancelLocation = nil
	w.mu.Unlock()

	if boundTo == "" {
		return
	}
	if err := w.subscribeLocation(context.Background(), boundTo); err != nil {
		w.setConnStatus(ConnDisconnected)
	}
}

func (w *Watch) setConnStatus(status string) {
	w.mu.Lock()
	if !w.closed {
		w.connStatus = status
	}
	w.mu.Unlock()
}

// degrade stops the session with a reason instead of erroring, used when
// the record disappears mid-watch.
func (w *Watch) degrade(ctx context.Context, reason string) {
	w.mu.Lock()
	if w.closed || w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.stopReason = reason
	w.connStatus = ConnDisconnected
	cancels := []func(){w.cancelRecord, w.cancelLocation}
	w.cancelRecord, w.cancelLocation = nil, nil
	w.mu.Unlock()

	for _, cancel := range cancels {
		if cancel != nil {
			cancel()
		}
	}
	if w.opts.Notify {
		w.syncr.notifier.Notify(ctx, w.id, "tracking_stopped", reason)
	}
}

package trips

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeLoader struct {
	mu    sync.Mutex
	data  map[string]TrackingData
	err   error
	loads int
}

func (l *fakeLoader) Load(_ context.Context, kind Kind, id string) (TrackingData, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	if l.err != nil {
		return TrackingData{}, l.err
	}
	d, ok := l.data[id]
	if !ok {
		return TrackingData{}, fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return d.Clone(), nil
}

func (l *fakeLoader) set(d TrackingData) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.data == nil {
		l.data = map[string]TrackingData{}
	}
	l.data[d.ID] = d
}

func (l *fakeLoader) remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.data, id)
}

func (l *fakeLoader) loadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

type fakeFeed struct {
	mu            sync.Mutex
	recordSubs    int
	locationSubs  []string
	failRecord    bool
	onChange      func()
	onRecordDrop  func(error)
	onLocation    func(CounterpartyLocation)
	onLocDrop     func(error)
	recordCancels int
	locCancels    int
}

func (f *fakeFeed) SubscribeRecord(_ context.Context, _ Kind, _ string, onChange func(), onDrop func(error)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordSubs++
	if f.failRecord {
		return nil, errors.New("subscribe failed")
	}
	f.onChange = onChange
	f.onRecordDrop = onDrop
	return func() {
		f.mu.Lock()
		f.recordCancels++
		f.mu.Unlock()
	}, nil
}

func (f *fakeFeed) SubscribeLocation(_ context.Context, counterpartyID string, onUpdate func(CounterpartyLocation), onDrop func(error)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locationSubs = append(f.locationSubs, counterpartyID)
	f.onLocation = onUpdate
	f.onLocDrop = onDrop
	return func() {
		f.mu.Lock()
		f.locCancels++
		f.mu.Unlock()
	}, nil
}

func (f *fakeFeed) change() {
	f.mu.Lock()
	fn := f.onChange
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (f *fakeFeed) dropRecord() {
	f.mu.Lock()
	fn := f.onRecordDrop
	f.mu.Unlock()
	if fn != nil {
		fn(errors.New("feed gone"))
	}
}

func (f *fakeFeed) pushLocation(loc CounterpartyLocation) {
	f.mu.Lock()
	fn := f.onLocation
	f.mu.Unlock()
	if fn != nil {
		fn(loc)
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, _, event, _ string) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

func (n *recordingNotifier) got(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

func baseDelivery() TrackingData {
	return NormalizeDelivery(DeliveryRecord{
		ID:        "del-1",
		Status:    "picked_up",
		CourierID: strPtr("courier-1"),
		CreatedAt: time.Now(),
	}, DefaultTables())
}

func TestWatchNotFoundIsHardFailure(t *testing.T) {
	s := NewSynchronizer(&fakeLoader{}, &fakeFeed{}, nil, DefaultTables(), nil)
	_, err := s.Watch(context.Background(), "nope", KindDelivery, WatchOptions{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWatchRejectsUnknownKind(t *testing.T) {
	s := NewSynchronizer(&fakeLoader{}, &fakeFeed{}, nil, DefaultTables(), nil)
	_, err := s.Watch(context.Background(), "x", Kind("freight"), WatchOptions{})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestWatchProgressFromTable(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(baseDelivery())
	s := NewSynchronizer(loader, &fakeFeed{}, nil, DefaultTables(), nil)

	w, err := s.Watch(context.Background(), "del-1", KindDelivery, WatchOptions{})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	// picked_up maps to the delivery table's fixed value, regardless of
	// any geography.
	if got := w.Data().Progress; got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
	if w.ConnectionStatus() != ConnConnected {
		t.Fatalf("expected connected")
	}
}

func TestRecordChangeTriggersFullReload(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(baseDelivery())
	feed := &fakeFeed{}
	s := NewSynchronizer(loader, feed, nil, DefaultTables(), nil)

	w, err := s.Watch(context.Background(), "del-1", KindDelivery, WatchOptions{AutoRefresh: true})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	next := baseDelivery()
	next.Status = "in_transit"
	next.Progress = DefaultTables().ProgressFor(KindDelivery, "in_transit")
	loader.set(next)

	before := loader.loadCount()
	feed.change()
	if loader.loadCount() != before+1 {
		t.Fatalf("expected a reload per notification")
	}
	if got := w.Data(); got.Status != "in_transit" || got.Progress != 75 {
		t.Fatalf("reload not applied: %+v", got)
	}
}

func TestCounterpartyLocationStaleness(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(baseDelivery())
	feed := &fakeFeed{}
	s := NewSynchronizer(loader, feed, nil, DefaultTables(), nil)

	w, err := s.Watch(context.Background(), "del-1", KindDelivery, WatchOptions{AutoRefresh: true, LiveCounterpartyLocation: true})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	t2 := time.Now()
	feed.pushLocation(CounterpartyLocation{Lat: -1.95, Lng: 30.08, LastUpdate: t2})
	feed.pushLocation(CounterpartyLocation{Lat: -1.80, Lng: 30.00, LastUpdate: t2.Add(-time.Minute)})

	loc := w.Data().CounterpartyLocation
	if loc == nil {
		t.Fatalf("expected counterparty location")
	}
	if loc.Lat != -1.95 || !loc.LastUpdate.Equal(t2) {
		t.Fatalf("stale update mutated stored location: %+v", loc)
	}
}

func TestLocationSurvivesRecordReload(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(baseDelivery())
	feed := &fakeFeed{}
	s := NewSynchronizer(loader, feed, nil, DefaultTables(), nil)

	w, err := s.Watch(context.Background(), "del-1", KindDelivery, WatchOptions{AutoRefresh: true, LiveCounterpartyLocation: true})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	at := time.Now()
	feed.pushLocation(CounterpartyLocation{Lat: -1.95, Lng: 30.08, LastUpdate: at})
	feed.change() // reload carries no location; the stream-owned field must survive

	loc := w.Data().CounterpartyLocation
	if loc == nil || !loc.LastUpdate.Equal(at) {
		t.Fatalf("record reload clobbered the location stream's field: %+v", loc)
	}
}

func TestCounterpartyChangeRebindsLocationFeed(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(baseDelivery())
	feed := &fakeFeed{}
	s := NewSynchronizer(loader, feed, nil, DefaultTables(), nil)

	w, err := s.Watch(context.Background(), "del-1", KindDelivery, WatchOptions{AutoRefresh: true, LiveCounterpartyLocation: true})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	next := baseDelivery()
	next.Counterparty.ID = "courier-2"
	loader.set(next)
	feed.change()

	feed.mu.Lock()
	subs := append([]string(nil), feed.locationSubs...)
	cancels := feed.locCancels
	feed.mu.Unlock()
	if len(subs) != 2 || subs[1] != "courier-2" {
		t.Fatalf("expected rebind to new counterparty, got %v", subs)
	}
	if cancels != 1 {
		t.Fatalf("expected old location subscription cancelled")
	}
}

func TestReconnectExactlyOnce(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(baseDelivery())
	feed := &fakeFeed{}
	s := NewSynchronizer(loader, feed, nil, DefaultTables(), nil)

	w, err := s.Watch(context.Background(), "del-1", KindDelivery, WatchOptions{AutoRefresh: true})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	feed.mu.Lock()
	feed.failRecord = true
	feed.mu.Unlock()

	feed.dropRecord()

	feed.mu.Lock()
	subs := feed.recordSubs
	feed.mu.Unlock()
	if subs != 2 {
		t.Fatalf("expected exactly one reconnect attempt, saw %d subscribes", subs)
	}
	if w.ConnectionStatus() != ConnDisconnected {
		t.Fatalf("expected disconnected after failed reconnect, got %s", w.ConnectionStatus())
	}
}

func TestReconnectSuccessRecovers(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(baseDelivery())
	feed := &fakeFeed{}
	notifier := &recordingNotifier{}
	s := NewSynchronizer(loader, feed, notifier, DefaultTables(), nil)

	w, err := s.Watch(context.Background(), "del-1", KindDelivery, WatchOptions{AutoRefresh: true, Notify: true})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	feed.dropRecord()

	if w.ConnectionStatus() != ConnConnected {
		t.Fatalf("expected connected after successful reconnect, got %s", w.ConnectionStatus())
	}
	if !notifier.got("reconnecting") {
		t.Fatalf("expected reconnecting toast")
	}
}

func TestRecordDeletedMidWatchDegrades(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(baseDelivery())
	feed := &fakeFeed{}
	notifier := &recordingNotifier{}
	s := NewSynchronizer(loader, feed, notifier, DefaultTables(), nil)

	w, err := s.Watch(context.Background(), "del-1", KindDelivery, WatchOptions{AutoRefresh: true, Notify: true})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	loader.remove("del-1")
	feed.change()

	stopped, reason := w.Stopped()
	if !stopped || reason == "" {
		t.Fatalf("expected degraded stop with reason")
	}
	if w.ConnectionStatus() != ConnDisconnected {
		t.Fatalf("expected disconnected")
	}
	if !notifier.got("tracking_stopped") {
		t.Fatalf("expected stop toast")
	}
}

func TestCloseIdempotentAndRefreshAfterClose(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(baseDelivery())
	feed := &fakeFeed{}
	s := NewSynchronizer(loader, feed, nil, DefaultTables(), nil)

	w, err := s.Watch(context.Background(), "del-1", KindDelivery, WatchOptions{AutoRefresh: true, LiveCounterpartyLocation: true})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	w.Close()
	w.Close()

	feed.mu.Lock()
	recordCancels, locCancels := feed.recordCancels, feed.locCancels
	feed.mu.Unlock()
	if recordCancels != 1 || locCancels != 1 {
		t.Fatalf("double close must not double-release: record=%d loc=%d", recordCancels, locCancels)
	}

	if err := w.Refresh(context.Background()); !errors.Is(err, ErrWatchClosed) {
		t.Fatalf("expected ErrWatchClosed, got %v", err)
	}
}

func TestStatusChangeNotifiesAndBroadcasts(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(baseDelivery())
	feed := &fakeFeed{}
	notifier := &recordingNotifier{}

	var broadcasts []TrackingData
	s := NewSynchronizer(loader, feed, notifier, DefaultTables(), func(_ string, d TrackingData) {
		broadcasts = append(broadcasts, d)
	})

	w, err := s.Watch(context.Background(), "del-1", KindDelivery, WatchOptions{AutoRefresh: true, Notify: true})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	if !notifier.got("tracking_started") {
		t.Fatalf("expected start toast")
	}

	next := baseDelivery()
	next.Status = "delivered"
	next.Progress = 100
	loader.set(next)
	feed.change()

	if !notifier.got("status_changed") {
		t.Fatalf("expected status toast")
	}
	if len(broadcasts) < 2 || broadcasts[len(broadcasts)-1].Progress != 100 {
		t.Fatalf("expected snapshots broadcast on change")
	}
}

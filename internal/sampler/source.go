package sampler

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrSourceUnavailable   = errors.New("location source unavailable")
	ErrTimeout             = errors.New("location timeout")
	ErrPositionUnavailable = errors.New("position unavailable")
)

type WatchOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
}

// Source is a continuous-sampling location capability. Watch begins
// delivering fixes through emit and errors through fail until the returned
// stop function is called. Permission and availability problems are
// reported synchronously as the error return.
type Source interface {
	Watch(opts WatchOptions, emit func(Position), fail func(error)) (stop func(), err error)
}

// PushSource adapts externally pushed fixes into a Source. Devices report
// their GPS readings over the ingest route; Offer forwards them to the
// active watch. It doubles as the test stand-in for a real device.
type PushSource struct {
	mu     sync.Mutex
	emit   func(Position)
	fail   func(error)
	denied bool
	absent bool
}

func NewPushSource() *PushSource {
	return &PushSource{}
}

// DenyPermission makes the next Watch fail with ErrPermissionDenied.
func (s *PushSource) DenyPermission() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied = true
}

// MarkUnavailable makes the next Watch fail with ErrSourceUnavailable.
func (s *PushSource) MarkUnavailable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.absent = true
}

func (s *PushSource) Watch(_ WatchOptions, emit func(Position), fail func(error)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied {
		return nil, ErrPermissionDenied
	}
	if s.absent {
		return nil, ErrSourceUnavailable
	}
	s.emit = emit
	s.fail = fail
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.emit = nil
		s.fail = nil
	}, nil
}

// Offer forwards one fix to the active watch; no-op when nothing watches.
func (s *PushSource) Offer(p Position) {
	s.mu.Lock()
	emit := s.emit
	s.mu.Unlock()
	if emit != nil {
		emit(p)
	}
}

// Fail forwards one source error to the active watch.
func (s *PushSource) Fail(err error) {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail != nil {
		fail(err)
	}
}

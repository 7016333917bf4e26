package auditfakes

import (
	"context"
	"sync"

	"github.com/jomafilms/openclaw-multitenant/audit"
)

var _ audit.Sink = (*FakeSink)(nil)

// FakeSink captures events in memory for test assertions.
type FakeSink struct {
	lock   sync.Mutex
	events []audit.Event
}

func NewFakeSink() *FakeSink {
	return &FakeSink{}
}

func (s *FakeSink) Record(_ context.Context, event audit.Event) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.events = append(s.events, event)
}

func (s *FakeSink) Events() []audit.Event {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]audit.Event, len(s.events))
	copy(out, s.events)
	return out
}

// LastOfKind returns the most recent event of the given kind.
func (s *FakeSink) LastOfKind(kind string) (audit.Event, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Kind == kind {
			return s.events[i], true
		}
	}
	return audit.Event{}, false
}

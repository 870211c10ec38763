package nats

import (
	"context"
	"sync"
)

// MockPublisher keeps published airdrop events in memory.
type MockPublisher struct {
	mu        sync.Mutex
	events    []*AirdropEvent
	byAddress map[string][]*AirdropEvent
	err       error
	closed    bool
}

var _ Publisher = (*MockPublisher)(nil)

// NewMockPublisher returns an empty MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{byAddress: make(map[string][]*AirdropEvent)}
}

// PublishAirdrop stores event, or returns the error set with FailWith.
func (m *MockPublisher) PublishAirdrop(_ context.Context, event *AirdropEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	m.byAddress[event.Address] = append(m.byAddress[event.Address], event)
	return nil
}

// Close marks the publisher closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Events returns the stored events in publish order.
func (m *MockPublisher) Events() []*AirdropEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*AirdropEvent(nil), m.events...)
}

// EventsFor returns the stored events for one address.
func (m *MockPublisher) EventsFor(address string) []*AirdropEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*AirdropEvent(nil), m.byAddress[address]...)
}

// FailWith makes every later publish return err. A nil err clears it.
func (m *MockPublisher) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Closed reports whether Close was called.
func (m *MockPublisher) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

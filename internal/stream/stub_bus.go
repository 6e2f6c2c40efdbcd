package stream

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StubBus is the in-memory bus used by tests and the replay harness.
// Publish delivers synchronously to subscribed handlers and retains every
// message for assertions.
type StubBus struct {
	mu       sync.Mutex
	started  bool
	retry    RetryConfig
	handlers map[string][]Handler
	messages map[string][][]byte
	nextID   int64
}

// NewStubBus creates an empty stub bus.
func NewStubBus() *StubBus {
	return &StubBus{
		retry:    RetryConfig{MaxRetries: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1},
		handlers: make(map[string][]Handler),
		messages: make(map[string][][]byte),
	}
}

// Start marks the bus running.
func (s *StubBus) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

// Publish retains payload and delivers it to current subscribers inline.
func (s *StubBus) Publish(ctx context.Context, stream string, payload []byte) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrBusNotStarted
	}
	s.nextID++
	id := s.nextID
	s.messages[stream] = append(s.messages[stream], payload)
	handlers := append([]Handler(nil), s.handlers[stream]...)
	s.mu.Unlock()

	msg := &Message{ID: fmt.Sprintf("%d-0", id), Stream: stream, Payload: payload, Deliveries: 1}
	for _, h := range handlers {
		if err := h(ctx, msg); err != nil {
			// Stub semantics: retries collapse, every failure dead-letters
			// immediately.
			s.mu.Lock()
			s.messages[DLQName(stream)] = append(s.messages[DLQName(stream)], payload)
			s.mu.Unlock()
		}
	}
	return nil
}

// Consume registers h for stream and blocks until ctx is cancelled.
func (s *StubBus) Consume(ctx context.Context, stream, _ string, h Handler) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrBusNotStarted
	}
	s.handlers[stream] = append(s.handlers[stream], h)
	s.mu.Unlock()
	<-ctx.Done()
	return nil
}

// Subscribers returns the number of handlers registered for stream.
func (s *StubBus) Subscribers(stream string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers[stream])
}

// Messages returns the retained payloads for stream.
func (s *StubBus) Messages(stream string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.messages[stream]...)
}

// Health always reports healthy once started.
func (s *StubBus) Health(context.Context) HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return HealthStatus{Healthy: s.started, Status: "stub", LastCheck: time.Now()}
}

// Stop marks the bus stopped.
func (s *StubBus) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

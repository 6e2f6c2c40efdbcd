// Package stream is the durable message bus boundary. Streams are
// single-subject and JSON-encoded; consumers are durable groups that ack a
// message only after all downstream work for it succeeded or was explicitly
// terminated to the dead-letter stream.
package stream

import (
	"context"
	"errors"
	"time"
)

// Stream names. One subject per stream.
const (
	StreamOptionPrints   = "option.prints"
	StreamOptionNBBO     = "option.nbbo"
	StreamEquityPrints   = "equity.prints"
	StreamEquityQuotes   = "equity.quotes"
	StreamEquityJoins    = "equity.joins"
	StreamEquityCandles  = "equity.candles"
	StreamInferredDark   = "inferred.dark"
	StreamFlowPackets    = "flow.packets"
	StreamClassifierHits = "classifier.hits"
	StreamAlerts         = "alerts"
)

// DeliverPolicy controls where a fresh durable consumer starts.
type DeliverPolicy string

const (
	DeliverNew            DeliverPolicy = "new"
	DeliverAll            DeliverPolicy = "all"
	DeliverLast           DeliverPolicy = "last"
	DeliverLastPerSubject DeliverPolicy = "last_per_subject"
)

// Valid reports whether p is a known deliver policy.
func (p DeliverPolicy) Valid() bool {
	switch p {
	case DeliverNew, DeliverAll, DeliverLast, DeliverLastPerSubject:
		return true
	}
	return false
}

// Message is one delivery from a stream.
type Message struct {
	ID         string
	Stream     string
	Payload    []byte
	Deliveries int64
}

// Handler processes one message. A nil return acks. ErrTerminate (or a
// wrapped one) moves the message to the dead-letter stream without retrying.
// Any other error retries with bounded backoff before dead-lettering.
type Handler func(ctx context.Context, msg *Message) error

// ErrTerminate marks a message as poisoned: ack it, dead-letter it, move on.
var ErrTerminate = errors.New("terminate message")

// ErrBusNotStarted is returned by operations on a stopped bus.
var ErrBusNotStarted = errors.New("bus not started")

// Bus is the pipeline's view of the message bus.
type Bus interface {
	Start(ctx context.Context) error
	Publish(ctx context.Context, stream string, payload []byte) error
	// Consume blocks, delivering stream messages to h in order until ctx is
	// cancelled.
	Consume(ctx context.Context, stream, group string, h Handler) error
	Health(ctx context.Context) HealthStatus
	Stop(ctx context.Context) error
}

// HealthStatus reports bus connectivity for the monitor endpoint.
type HealthStatus struct {
	Healthy   bool      `json:"healthy"`
	Status    string    `json:"status"`
	LastError string    `json:"last_error,omitempty"`
	LastCheck time.Time `json:"last_check"`
}

// RetryConfig bounds redelivery backoff before a message is dead-lettered.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig matches the documented bounded-backoff policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Delay returns the backoff before retry attempt (0-based).
func (r RetryConfig) Delay(attempt int) time.Duration {
	d := float64(r.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= r.BackoffFactor
	}
	if d > float64(r.MaxDelay) {
		return r.MaxDelay
	}
	return time.Duration(d)
}

// DLQName returns the dead-letter stream for a source stream.
func DLQName(stream string) string {
	return stream + ".dlq"
}

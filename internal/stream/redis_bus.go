package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const payloadField = "payload"

// RedisConfig configures the Redis Streams bus.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// MaxLen caps each stream (approximate trim), the limits-based
	// discard-old retention.
	MaxLen int64

	ConsumerName   string
	DeliverPolicy  DeliverPolicy
	ResetConsumers bool

	// Block is the XREADGROUP block interval.
	Block time.Duration
	// BatchSize is the XREADGROUP count.
	BatchSize int64
	// ClaimMinIdle is how long a pending delivery may sit before another
	// consumer reclaims it.
	ClaimMinIdle time.Duration

	Retry RetryConfig
}

// DefaultRedisConfig returns working defaults for a local broker.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		MaxLen:        1_000_000,
		ConsumerName:  "flowrun-1",
		DeliverPolicy: DeliverNew,
		Block:         2 * time.Second,
		BatchSize:     64,
		ClaimMinIdle:  30 * time.Second,
		Retry:         DefaultRetryConfig(),
	}
}

// RedisBus implements Bus on Redis Streams with durable consumer groups.
type RedisBus struct {
	cfg     RedisConfig
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	reclaim *rate.Limiter
	started bool
}

// NewRedisBus creates the bus; Start connects it.
func NewRedisBus(cfg RedisConfig) *RedisBus {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  cfg.Block + 5*time.Second,
		WriteTimeout: 3 * time.Second,
	})
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bus-publish",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &RedisBus{
		cfg:     cfg,
		client:  client,
		breaker: breaker,
		reclaim: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// Start verifies connectivity.
func (b *RedisBus) Start(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("bus ping: %w", err)
	}
	b.started = true
	return nil
}

// Publish appends payload to stream with bounded retries behind the breaker.
func (b *RedisBus) Publish(ctx context.Context, stream string, payload []byte) error {
	if !b.started {
		return ErrBusNotStarted
	}
	var lastErr error
	for attempt := 0; attempt <= b.cfg.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(b.cfg.Retry.Delay(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		_, lastErr = b.breaker.Execute(func() (interface{}, error) {
			return nil, b.xadd(ctx, stream, payload)
		})
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("publish to %s: %w", stream, lastErr)
}

func (b *RedisBus) xadd(ctx context.Context, stream string, payload []byte) error {
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: b.cfg.MaxLen,
		Approx: true,
		Values: map[string]interface{}{payloadField: payload},
	}).Err()
}

// Consume reads stream through the durable group until ctx is cancelled.
func (b *RedisBus) Consume(ctx context.Context, stream, group string, h Handler) error {
	if !b.started {
		return ErrBusNotStarted
	}
	if err := b.ensureGroup(ctx, stream, group); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if b.reclaim.Allow() {
			b.reclaimPending(ctx, stream, group, h)
		}
		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: b.cfg.ConsumerName,
			Streams:  []string{stream, ">"},
			Count:    b.cfg.BatchSize,
			Block:    b.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Str("stream", stream).Msg("bus read failed, backing off")
			select {
			case <-time.After(b.cfg.Retry.InitialDelay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		for _, s := range res {
			for _, m := range s.Messages {
				b.dispatch(ctx, stream, group, h, entryMessage(stream, m))
			}
		}
	}
}

func entryMessage(stream string, m redis.XMessage) *Message {
	payload, _ := m.Values[payloadField].(string)
	return &Message{ID: m.ID, Stream: stream, Payload: []byte(payload), Deliveries: 1}
}

// dispatch runs the ack/terminate/retry protocol for one delivery.
func (b *RedisBus) dispatch(ctx context.Context, stream, group string, h Handler, msg *Message) {
	var err error
	for attempt := 0; ; attempt++ {
		err = h(ctx, msg)
		if err == nil {
			b.ack(ctx, stream, group, msg.ID)
			return
		}
		if errors.Is(err, ErrTerminate) {
			break
		}
		if attempt >= b.cfg.Retry.MaxRetries {
			break
		}
		select {
		case <-time.After(b.cfg.Retry.Delay(attempt)):
		case <-ctx.Done():
			return // unacked: redelivered on restart
		}
	}
	log.Error().Err(err).Str("stream", stream).Str("msg_id", msg.ID).
		Msg("terminating message to dead-letter stream")
	if dlqErr := b.xadd(ctx, DLQName(stream), msg.Payload); dlqErr != nil {
		log.Error().Err(dlqErr).Str("stream", stream).Msg("dead-letter append failed")
	}
	b.ack(ctx, stream, group, msg.ID)
}

func (b *RedisBus) ack(ctx context.Context, stream, group, id string) {
	if err := b.client.XAck(ctx, stream, group, id).Err(); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("stream", stream).Str("msg_id", id).Msg("ack failed")
	}
}

// reclaimPending takes over deliveries another consumer left pending.
func (b *RedisBus) reclaimPending(ctx context.Context, stream, group string, h Handler) {
	msgs, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: b.cfg.ConsumerName,
		MinIdle:  b.cfg.ClaimMinIdle,
		Start:    "0-0",
		Count:    b.cfg.BatchSize,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		if ctx.Err() == nil {
			log.Warn().Err(err).Str("stream", stream).Msg("pending reclaim failed")
		}
		return
	}
	for _, m := range msgs {
		b.dispatch(ctx, stream, group, h, entryMessage(stream, m))
	}
}

func (b *RedisBus) ensureGroup(ctx context.Context, stream, group string) error {
	if b.cfg.ResetConsumers {
		if err := b.client.XGroupDestroy(ctx, stream, group).Err(); err != nil && !isBusGroupMissing(err) {
			log.Warn().Err(err).Str("stream", stream).Str("group", group).Msg("consumer reset failed")
		}
	}
	start := "$"
	if b.cfg.DeliverPolicy == DeliverAll {
		start = "0"
	}
	err := b.client.XGroupCreateMkStream(ctx, stream, group, start).Err()
	if err != nil && !isBusGroupExists(err) {
		return fmt.Errorf("create group %s on %s: %w", group, stream, err)
	}
	// Last-style policies seed the consumer with the newest entry before the
	// group picks up from $.
	if err == nil && (b.cfg.DeliverPolicy == DeliverLast || b.cfg.DeliverPolicy == DeliverLastPerSubject) {
		if last, err := b.client.XRevRangeN(ctx, stream, "+", "-", 1).Result(); err == nil && len(last) == 1 {
			if err := b.client.XGroupSetID(ctx, stream, group, prevID(last[0].ID)).Err(); err != nil {
				log.Warn().Err(err).Str("stream", stream).Msg("deliver-last rewind failed")
			}
		}
	}
	return nil
}

// prevID returns a stream id just before id so the entry at id redelivers.
func prevID(id string) string {
	var ms, seq int64
	if _, err := fmt.Sscanf(id, "%d-%d", &ms, &seq); err != nil {
		return "$"
	}
	if seq > 0 {
		return fmt.Sprintf("%d-%d", ms, seq-1)
	}
	if ms > 0 {
		return fmt.Sprintf("%d-%d", ms-1, int64(^uint64(0)>>1))
	}
	return "0-0"
}

func isBusGroupExists(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}

func isBusGroupMissing(err error) bool {
	return err != nil && len(err.Error()) >= 6 && err.Error()[:6] == "NOGROU"
}

// Health pings the broker.
func (b *RedisBus) Health(ctx context.Context) HealthStatus {
	st := HealthStatus{LastCheck: time.Now()}
	if !b.started {
		st.Status = "stopped"
		return st
	}
	if err := b.client.Ping(ctx).Err(); err != nil {
		st.Status = "disconnected"
		st.LastError = err.Error()
		return st
	}
	st.Healthy = true
	st.Status = "connected"
	return st
}

// Stop closes the client after consumers have drained.
func (b *RedisBus) Stop(context.Context) error {
	b.started = false
	return b.client.Close()
}

// Package pubsub provides in-memory pub/sub for real-time GraphQL subscriptions.
package pubsub

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// OutputChannel is the channel Out publishes on.
const OutputChannel = "output"

// DefaultBufferSize is the per-subscriber buffer used by New.
const DefaultBufferSize = 100

// Metrics for pub/sub delivery.
var (
	published = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gqutils_pubsub_published_total",
			Help: "Total number of payloads published",
		},
		[]string{"channel"},
	)

	dropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gqutils_pubsub_dropped_total",
			Help: "Total number of payloads dropped because a subscriber buffer was full",
		},
		[]string{"channel"},
	)

	subscribers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gqutils_pubsub_subscribers",
			Help: "Current number of subscribers",
		},
		[]string{"channel"},
	)
)

// PubSub fans published payloads out to the subscribers of a channel.
// It is safe for concurrent use.
type PubSub struct {
	mu sync.RWMutex

	// channel -> subscriberID -> buffer
	subs map[string]map[string]chan any

	bufferSize int
}

// New creates a pub/sub with DefaultBufferSize buffers.
//
// Returns:
//   - *PubSub: initialized pub/sub
func New() *PubSub {
	return NewWithBuffer(DefaultBufferSize)
}

// NewWithBuffer creates a pub/sub with the given per-subscriber buffer size.
//
// Parameters:
//   - size (int): buffered payloads per subscriber before dropping
//
// Returns:
//   - *PubSub: initialized pub/sub
func NewWithBuffer(size int) *PubSub {
	if size < 1 {
		size = 1
	}
	return &PubSub{
		subs:       make(map[string]map[string]chan any),
		bufferSize: size,
	}
}

// Subscribe registers a subscriber on a channel.
// Call the returned cleanup function to unsubscribe; it is also called when
// ctx is cancelled. The payload channel is closed on cleanup.
//
// Parameters:
//   - ctx (context.Context): context for automatic cleanup on cancellation
//   - channel (string): channel name
//
// Returns:
//   - <-chan any: channel receiving published payloads
//   - func(): cleanup function to call when done
func (ps *PubSub) Subscribe(ctx context.Context, channel string) (<-chan any, func()) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan any, ps.bufferSize)

	if ps.subs[channel] == nil {
		ps.subs[channel] = make(map[string]chan any)
	}
	ps.subs[channel][id] = ch
	subscribers.WithLabelValues(channel).Inc()

	log.Debug().
		Str("subscriberID", id).
		Str("channel", channel).
		Msg("new subscription")

	done := make(chan struct{})
	var once sync.Once

	cleanup := func() {
		once.Do(func() {
			close(done)

			ps.mu.Lock()
			defer ps.mu.Unlock()

			if existing, exists := ps.subs[channel][id]; exists {
				close(existing)
				delete(ps.subs[channel], id)
				if len(ps.subs[channel]) == 0 {
					delete(ps.subs, channel)
				}
				subscribers.WithLabelValues(channel).Dec()
				log.Debug().Str("subscriberID", id).Str("channel", channel).Msg("subscription removed")
			}
		})
	}

	// Auto-cleanup on context cancellation
	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-done:
		}
	}()

	return ch, cleanup
}

// Publish sends a payload to every subscriber of a channel.
// Non-blocking: if a subscriber's buffer is full, the payload is dropped for
// that subscriber.
//
// Parameters:
//   - channel (string): channel name
//   - payload (any): value delivered to subscribers
//
// Returns:
//   - int: number of subscribers the payload was delivered to
func (ps *PubSub) Publish(channel string, payload any) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	published.WithLabelValues(channel).Inc()

	delivered := 0
	for id, ch := range ps.subs[channel] {
		select {
		case ch <- payload:
			delivered++
		default:
			dropped.WithLabelValues(channel).Inc()
			log.Warn().
				Str("subscriberID", id).
				Str("channel", channel).
				Msg("subscription buffer full, dropping payload")
		}
	}
	return delivered
}

// Out publishes {key, message} on OutputChannel.
//
// Parameters:
//   - key (string): output key subscribers filter on
//   - message (any): output payload
//
// Returns:
//   - int: number of subscribers the payload was delivered to
func (ps *PubSub) Out(key string, message any) int {
	return ps.Publish(OutputChannel, map[string]any{
		"key":     key,
		"message": message,
	})
}

// SubscriberCount returns the current number of subscribers of a channel.
func (ps *PubSub) SubscriberCount(channel string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.subs[channel])
}

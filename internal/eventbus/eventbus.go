// Package eventbus distributes pipeline lifecycle events (request finished,
// plugin error, config reloaded or failed) to whatever in-process handlers
// have called Subscribe (no built-in plugin subscribes), adapted from this
// package tree's in-process pub/sub of the same shape, with an optional
// connection to an external NATS server so the bus can fan out to external
// subscribers (log shippers, metrics scrapers) without the core pipeline
// taking a dependency on any one of them.
package eventbus

import (
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/streamspace-dev/rangeweave/internal/logging"
)

// Event names published on the bus.
const (
	EventRequestFinished = "request.finished"
	EventPluginError     = "plugin.error"
	EventConfigReloaded  = "config.reloaded"
	EventConfigFailed    = "config.failed"
)

// Handler receives a published event's payload.
type Handler func(payload any)

// Bus is a thread-safe in-process publish/subscribe hub. When a NATS server
// URL is configured and reachable, events are also published to a
// matching NATS subject so an out-of-process observer can subscribe; the
// in-process path never blocks on that.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
	nc          *nats.Conn
}

// New creates a bus. natsURL may be empty, in which case the bus operates
// purely in-process (the common case for a single rangeweave instance).
func New(natsURL string) *Bus {
	b := &Bus{subscribers: make(map[string][]Handler)}
	if natsURL == "" {
		return b
	}
	nc, err := nats.Connect(natsURL, nats.Name("rangeweave"))
	if err != nil {
		logging.Component("eventbus").Warn().Err(err).Str("url", natsURL).Msg("nats unavailable, running in-process only")
		return b
	}
	b.nc = nc
	return b
}

// Subscribe registers a handler for an event name.
func (b *Bus) Subscribe(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[event] = append(b.subscribers[event], handler)
}

// Publish fires all in-process subscribers synchronously and, if connected,
// mirrors a JSON-free marker to NATS for external observers. Publish never
// returns an error: a misbehaving subscriber must not affect the pipeline
// that triggered the event (spec §4.3 plugin isolation).
func (b *Bus) Publish(event string, payload any) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Component("eventbus").Error().Interface("panic", r).Str("event", event).Msg("subscriber panicked")
				}
			}()
			h(payload)
		}()
	}

	if b.nc != nil {
		_ = b.nc.Publish("rangeweave."+event, nil)
	}
}

// Close releases the NATS connection, if any.
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

// Package bus implements the in-process pub/sub layer that sits above a
// single cluster's Ledger (spec §4.2). Publish validates, appends, and fans
// out synchronously to subscribers in registration order; a panicking or
// erroring subscriber never blocks delivery to its siblings or the
// publisher, mirroring the isolation pattern in
// pkg/events/manager.go's Broadcast (snapshot subscriber list under lock,
// release the lock, then deliver).
package bus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
)

// Subscriber receives a delivered message. A subscriber that needs to block
// (spawn a process, wait on I/O) must move that work off the dispatch path —
// the bus's own work runs to completion without yielding (spec §5).
type Subscriber func(ledger.Message)

// Unsubscribe removes a previously registered subscriber. Safe to call more
// than once.
type Unsubscribe func()

// Store is the subset of Ledger the bus depends on. Satisfied by *ledger.Ledger.
type Store interface {
	Append(ledger.Message) (ledger.Message, error)
	Query(ledger.QueryFilter) ([]ledger.Message, error)
	FindLast(clusterID, topic, sender string) (*ledger.Message, error)
}

type subscription struct {
	id    uint64
	topic string // "" means "all topics"
	fn    Subscriber
}

// MessageBus validates, persists (via Store), and fans out messages to
// subscribers. One MessageBus sits above exactly one cluster's Ledger.
type MessageBus struct {
	store Store

	mu     sync.Mutex
	subs   []*subscription
	nextID uint64
}

// New creates a MessageBus backed by store.
func New(store Store) *MessageBus {
	return &MessageBus{store: store}
}

// ErrValidation is the sentinel behind every ValidationError raised by Publish.
var ErrValidation = errors.New("message bus validation failure")

// ValidationError reports a Publish call rejected before any append occurred.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("message bus: required field %q is empty", e.Field)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Publish validates required fields, appends via the store, and invokes
// subscribers (topic-specific and whole-bus alike) synchronously in one pass,
// in registration order, with the stored (post-append) message. Returns the
// stored message.
func (b *MessageBus) Publish(msg ledger.Message) (ledger.Message, error) {
	if msg.ClusterID == "" {
		return ledger.Message{}, &ValidationError{Field: "cluster_id"}
	}
	if msg.Topic == "" {
		return ledger.Message{}, &ValidationError{Field: "topic"}
	}
	if msg.Sender == "" {
		return ledger.Message{}, &ValidationError{Field: "sender"}
	}

	stored, err := b.store.Append(msg)
	if err != nil {
		return ledger.Message{}, err
	}

	b.dispatch(stored)
	return stored, nil
}

// dispatch snapshots the subscriber list under lock, then delivers outside
// the lock so a subscriber registering/unregistering mid-fan-out never
// deadlocks and never sees a torn list (spec §5 shared-resource policy).
func (b *MessageBus) dispatch(msg ledger.Message) {
	b.mu.Lock()
	subs := make([]*subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		if s.topic != "" && s.topic != msg.Topic {
			continue
		}
		b.deliver(s, msg)
	}
}

// deliver invokes one subscriber, recovering from a panic so that one
// misbehaving subscriber never prevents delivery to its siblings or breaks
// the publisher (spec §4.2).
func (b *MessageBus) deliver(s *subscription, msg ledger.Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("message bus subscriber panicked",
				"subscription_id", s.id, "topic", msg.Topic, "panic", r)
		}
	}()
	s.fn(msg)
}

func (b *MessageBus) add(topic string, fn Subscriber) Unsubscribe {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	sub := &subscription{id: id, topic: topic, fn: fn}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Subscribe registers fn to receive every published message.
func (b *MessageBus) Subscribe(fn Subscriber) Unsubscribe {
	return b.add("", fn)
}

// SubscribeTopic registers fn to receive only messages on topic.
func (b *MessageBus) SubscribeTopic(topic string, fn Subscriber) Unsubscribe {
	return b.add(topic, fn)
}

// SubscribeTopics registers fn against each of topics; unsubscribing once
// removes all of them.
func (b *MessageBus) SubscribeTopics(topics []string, fn Subscriber) Unsubscribe {
	unsubs := make([]Unsubscribe, 0, len(topics))
	for _, t := range topics {
		unsubs = append(unsubs, b.add(t, fn))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Query passes through to the backing store.
func (b *MessageBus) Query(filter ledger.QueryFilter) ([]ledger.Message, error) {
	return b.store.Query(filter)
}

// FindLast passes through to the backing store.
func (b *MessageBus) FindLast(clusterID, topic, sender string) (*ledger.Message, error) {
	return b.store.FindLast(clusterID, topic, sender)
}

// SubscriberCount reports the number of active subscriptions, for tests and
// diagnostics.
func (b *MessageBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Package bus implements the in-process pub/sub fan-out (C9): topic-keyed
// publishers with bounded per-subscriber queues, one-shot subscribers, and
// drop-on-subscriber-drop semantics, grounded on the deliver/observer shape
// in pkg/mcast/core/deliver.go generalized from a group-membership
// broadcaster to a generic topic bus.
package bus

import "sync"

// DefaultQueueSize bounds how many undelivered messages a slow subscriber
// may accumulate before further publishes to it are dropped.
const DefaultQueueSize = 64

// Subscriber is a live subscription: Messages yields every message
// matching Topic until Close is called. A publish that finds its queue full
// skips it for that message; the subscriber stays registered. A one-shot
// subscriber closes itself after its first delivery.
type Subscriber[M any, T comparable] struct {
	topic    T
	ch       chan M
	oneShot  bool
	bus      *Publisher[M, T]
	closed   bool
	mu       sync.Mutex
}

// Messages returns the channel to range over.
func (s *Subscriber[M, T]) Messages() <-chan M { return s.ch }

// Close unsubscribes and stops further delivery. Safe to call more than
// once and from any goroutine.
func (s *Subscriber[M, T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.bus.remove(s)
	close(s.ch)
}

// Publisher is a single topic-keyed pub/sub bus. Topic equality (==) keys
// which subscribers receive a given message; Publish is non-suspending — a
// full subscriber queue drops the message for that subscriber rather than
// blocking the publisher.
type Publisher[M any, T comparable] struct {
	mu   sync.Mutex
	subs map[T][]*Subscriber[M, T]
}

// New creates an empty Publisher for one message/topic type pair.
func New[M any, T comparable]() *Publisher[M, T] {
	return &Publisher[M, T]{subs: make(map[T][]*Subscriber[M, T])}
}

// Subscribe registers a standing subscriber for topic, delivered until
// Close is called.
func (p *Publisher[M, T]) Subscribe(topic T) *Subscriber[M, T] {
	return p.subscribe(topic, false)
}

// SubscribeOnce registers a subscriber that automatically closes itself
// immediately after its first delivered message.
func (p *Publisher[M, T]) SubscribeOnce(topic T) *Subscriber[M, T] {
	return p.subscribe(topic, true)
}

func (p *Publisher[M, T]) subscribe(topic T, oneShot bool) *Subscriber[M, T] {
	s := &Subscriber[M, T]{topic: topic, ch: make(chan M, DefaultQueueSize), oneShot: oneShot, bus: p}
	p.mu.Lock()
	p.subs[topic] = append(p.subs[topic], s)
	p.mu.Unlock()
	return s
}

func (p *Publisher[M, T]) remove(target *Subscriber[M, T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.subs[target.topic]
	for i, s := range list {
		if s == target {
			p.subs[target.topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(p.subs[target.topic]) == 0 {
		delete(p.subs, target.topic)
	}
}

// Publish fans msg out to every current subscriber of topic. A subscriber
// whose queue is full is skipped for this message rather than blocking the
// publisher (backpressure is absorbed by the queue, not the caller). A
// one-shot subscriber is closed right after its delivery succeeds.
func (p *Publisher[M, T]) Publish(topic T, msg M) {
	p.mu.Lock()
	// Copy the slice under lock, then deliver without holding it — Close
	// calls triggered by one-shot delivery would otherwise deadlock on mu.
	list := append([]*Subscriber[M, T](nil), p.subs[topic]...)
	p.mu.Unlock()

	for _, s := range list {
		select {
		case s.ch <- msg:
			if s.oneShot {
				s.Close()
			}
		default:
			// Queue full: drop for this slow subscriber.
		}
	}
}

// SubscriberCount reports how many subscribers are currently registered
// for topic, for diagnostics.
func (p *Publisher[M, T]) SubscriberCount(topic T) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs[topic])
}

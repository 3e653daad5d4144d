package app

import (
	"sync"

	"quiz-session-service/internal/domain"
)

// Observer receives a session's chat events in sequence order. Its mailbox is unbounded
// so a slow reader delays only itself and never loses events.
type Observer struct {
	userID string

	mu     sync.Mutex
	queue  []domain.ChatEvent
	signal chan struct{}

	out       chan domain.ChatEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newObserver(userID string) *Observer {
	o := &Observer{
		userID: userID,
		signal: make(chan struct{}, 1),
		out:    make(chan domain.ChatEvent),
		done:   make(chan struct{}),
	}
	go o.pump()
	return o
}

// Events is closed once the observer is unsubscribed.
func (o *Observer) Events() <-chan domain.ChatEvent {
	return o.out
}

func (o *Observer) enqueue(ev domain.ChatEvent) {
	o.mu.Lock()
	o.queue = append(o.queue, ev)
	o.mu.Unlock()
	select {
	case o.signal <- struct{}{}:
	default:
	}
}

func (o *Observer) close() {
	o.closeOnce.Do(func() { close(o.done) })
}

func (o *Observer) pump() {
	defer close(o.out)
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.mu.Unlock()
			select {
			case <-o.signal:
				continue
			case <-o.done:
				return
			}
		}
		ev := o.queue[0]
		o.queue = o.queue[1:]
		o.mu.Unlock()

		select {
		case o.out <- ev:
		case <-o.done:
			return
		}
	}
}

// Broadcaster assigns per-session sequence numbers and fans events out to observers.
// Callers hold the session lock, which makes the sequence a single total order.
type Broadcaster struct {
	sessionID string
	next      int64
	observers map[*Observer]struct{}
}

func NewBroadcaster(sessionID string) *Broadcaster {
	return &Broadcaster{
		sessionID: sessionID,
		observers: make(map[*Observer]struct{}),
	}
}

func (b *Broadcaster) subscribe(userID string) *Observer {
	o := newObserver(userID)
	b.observers[o] = struct{}{}
	return o
}

func (b *Broadcaster) unsubscribe(o *Observer) bool {
	if _, ok := b.observers[o]; !ok {
		return false
	}
	delete(b.observers, o)
	o.close()
	return true
}

// publish stamps the next sequence number and delivers the event to every observer.
func (b *Broadcaster) publish(sender, message string, typ domain.EventType, standings []domain.Standing) domain.ChatEvent {
	ev := domain.ChatEvent{
		SessionID: b.sessionID,
		Sender:    sender,
		Message:   message,
		Type:      typ,
		Sequence:  b.next,
		Standings: standings,
	}
	b.next++
	for o := range b.observers {
		o.enqueue(ev)
	}
	return ev
}

func (b *Broadcaster) observerCount() int {
	return len(b.observers)
}

func (b *Broadcaster) closeAll() {
	for o := range b.observers {
		delete(b.observers, o)
		o.close()
	}
}

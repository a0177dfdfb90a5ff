package notify

import (
	"context"
	"sync"
)

// Local is an in-process [Notifier].
type Local struct {
	mu     sync.Mutex
	subs   map[string]map[*localSub]struct{}
	closed bool
}

type localSub struct {
	ch   chan Event
	done chan struct{}
}

func NewLocal() *Local {
	return &Local{subs: make(map[string]map[*localSub]struct{})}
}

// Publish delivers e to every subscriber of e.UserID. Subscribers with a full buffer miss the event.
func (l *Local) Publish(ctx context.Context, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for sub := range l.subs[e.UserID] {
		select {
		case sub.ch <- e:
		default:
		}
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	sub := &localSub{ch: make(chan Event, 10), done: make(chan struct{})}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	if l.subs[userID] == nil {
		l.subs[userID] = make(map[*localSub]struct{})
	}
	l.subs[userID][sub] = struct{}{}
	l.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		<-subCtx.Done()
		l.remove(userID, sub)
	}()

	return &Subscription{events: sub.ch, errors: make(chan error), cancel: cancel}, nil
}

func (l *Local) remove(userID string, sub *localSub) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.subs[userID][sub]; !ok {
		return
	}
	delete(l.subs[userID], sub)
	if len(l.subs[userID]) == 0 {
		delete(l.subs, userID)
	}
	close(sub.ch)
}

// Subscribers returns the number of live subscriptions for userID.
func (l *Local) Subscribers(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs[userID])
}

// Close ends every subscription.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	for userID, subs := range l.subs {
		for sub := range subs {
			close(sub.ch)
		}
		delete(l.subs, userID)
	}
	return nil
}

// Package notify wakes long-polling clients when a user's clipboard changes.
//
// The server publishes an [Event] after every stored item. Waiting polls subscribe to the user's
// events and re-query once one arrives. [Local] fans out inside one process; [Redis] carries events
// between server replicas over Redis pub/sub. Delivery is at most once: a poll that misses an event
// still returns at its deadline.
package notify

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when subscribing to a closed notifier.
var ErrClosed = errors.New("notifier closed")

// Event announces a new clipboard item.
type Event struct {
	UserID   string `json:"userId"`
	Seq      int64  `json:"seq"`
	DeviceID string `json:"deviceId,omitempty"`
}

// Notifier publishes and subscribes to clipboard events.
type Notifier interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(ctx context.Context, userID string) (*Subscription, error)
	Close() error
}

// Subscription delivers events for one user until closed.
type Subscription struct {
	events <-chan Event
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of events. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event { return s.events }

// Errors reports undecodable messages. The subscription keeps running after an error,
// and errors that arrive while the buffer is full are dropped.
func (s *Subscription) Errors() <-chan error { return s.errors }

// Close ends the subscription. Safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Wait blocks until an event arrives, the subscription ends or ctx is done.
// It reports whether an event arrived.
func (s *Subscription) Wait(ctx context.Context) bool {
	select {
	case _, ok := <-s.events:
		return ok
	case <-ctx.Done():
		return false
	}
}

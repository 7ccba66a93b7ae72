package dataguard

import (
	"context"
	"fmt"
	"sync"

	"github.com/oarkflow/dataguard/logger"
)

// PermissionChangeNotifier receives the change event emitted when a mutation
// alters a user's expanded permission sources. The engine fires and forgets;
// delivery failures are the notification subsystem's concern.
type PermissionChangeNotifier interface {
	NotifyPermissionChange(ctx context.Context, change *PermissionChange) error
}

// NotifierFunc adapts a function to PermissionChangeNotifier.
type NotifierFunc func(ctx context.Context, change *PermissionChange) error

func (f NotifierFunc) NotifyPermissionChange(ctx context.Context, change *PermissionChange) error {
	return f(ctx, change)
}

// ChangeDispatcher is an in-process fan-out for change events: it buffers
// events on a channel and delivers them to subscribers from a single worker
// goroutine. Enqueueing never blocks the mutation path; events are dropped
// (and logged) when the buffer is full.
type ChangeDispatcher struct {
	mu          sync.RWMutex
	subscribers []PermissionChangeNotifier
	ch          chan PermissionChange
	stopCh      chan struct{}
	wg          sync.WaitGroup
	started     bool
	log         logger.Logger
}

type ChangeDispatcherOption func(*ChangeDispatcher)

func WithDispatchBuffer(n int) ChangeDispatcherOption {
	return func(d *ChangeDispatcher) {
		if n > 0 {
			d.ch = make(chan PermissionChange, n)
		}
	}
}

func WithDispatchLogger(l logger.Logger) ChangeDispatcherOption {
	return func(d *ChangeDispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

func NewChangeDispatcher(opts ...ChangeDispatcherOption) *ChangeDispatcher {
	d := &ChangeDispatcher{
		ch:     make(chan PermissionChange, 256),
		stopCh: make(chan struct{}),
		log:    logger.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Subscribe registers a downstream notifier. Safe to call before or after
// Start.
func (d *ChangeDispatcher) Subscribe(n PermissionChangeNotifier) {
	if n == nil {
		return
	}
	d.mu.Lock()
	d.subscribers = append(d.subscribers, n)
	d.mu.Unlock()
}

// Start launches the delivery worker. Calling Start twice is an error.
func (d *ChangeDispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("change dispatcher already started")
	}
	d.started = true
	d.wg.Add(1)
	go d.run()
	return nil
}

func (d *ChangeDispatcher) run() {
	defer d.wg.Done()
	bg := context.Background()
	for {
		select {
		case change := <-d.ch:
			d.deliver(bg, &change)
		case <-d.stopCh:
			// drain what is already buffered before exiting
			for {
				select {
				case change := <-d.ch:
					d.deliver(bg, &change)
				default:
					return
				}
			}
		}
	}
}

func (d *ChangeDispatcher) deliver(ctx context.Context, change *PermissionChange) {
	d.mu.RLock()
	subs := make([]PermissionChangeNotifier, len(d.subscribers))
	copy(subs, d.subscribers)
	d.mu.RUnlock()
	for _, sub := range subs {
		if err := sub.NotifyPermissionChange(ctx, change); err != nil {
			d.log.Error("change notification failed",
				"user_id", change.UserID, "kind", string(change.Kind), "error", err.Error())
		}
	}
}

// Stop shuts the worker down after draining buffered events.
func (d *ChangeDispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	d.mu.Unlock()
	close(d.stopCh)
	d.wg.Wait()
	d.stopCh = make(chan struct{})
}

// NotifyPermissionChange implements PermissionChangeNotifier: enqueue without
// blocking, drop when the buffer is full.
func (d *ChangeDispatcher) NotifyPermissionChange(_ context.Context, change *PermissionChange) error {
	select {
	case d.ch <- *change:
	default:
		d.log.Error("change event dropped, dispatch buffer full", "user_id", change.UserID)
	}
	return nil
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vsariola/beatbox"
	"golang.org/x/sync/errgroup"
)

type (
	// Bus is the publish/subscribe channel between the engine and whoever
	// wants to know what it does: status displays, persistence, logging. Every
	// published command is delivered to every registered listener except the
	// one that sent it.
	//
	// A Bus with zero workers is synchronous: Publish delivers the command to
	// the listeners one by one in the calling goroutine, in registration
	// order. With workers, each delivery is queued separately to a fixed pool
	// of goroutines, so there is no ordering between listeners (or between
	// commands), and a slow listener does not delay the publisher. Queuing is
	// non-blocking: if the queue is full, the delivery is dropped and counted
	// in Dropped, so that the clock goroutine can never get stuck on the bus.
	//
	// Listener failures, both returned errors and panics, are logged and never
	// reach other listeners or the publisher.
	Bus struct {
		listeners atomic.Pointer[[]Listener]
		regMu     sync.Mutex // serializes Register and Unregister

		logger *slog.Logger

		queueMu sync.RWMutex // guards closing of queue against Publish
		queue   chan func()
		closed  bool
		cancel  context.CancelFunc
		workers errgroup.Group
		dropped atomic.Int64
	}

	// BusOptions configure a Bus. Workers 0 makes the bus synchronous.
	BusOptions struct {
		Workers   int
		QueueSize int // defaults to 1024
		Logger    *slog.Logger
	}

	// Listener receives the commands published on a Bus. Listeners are
	// compared by equality when registering, unregistering and skipping the
	// sender, so they should be pointers or other comparable values.
	Listener interface {
		OnCommand(cmd beatbox.Command) error
	}

	funcListener struct {
		f func(beatbox.Command) error
	}
)

var ErrShutdownTimeout = errors.New("bus did not drain before the timeout")

const defaultQueueSize = 1024

func NewBus(opts BusOptions) *Bus {
	b := &Bus{logger: opts.Logger}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.listeners.Store(&[]Listener{})
	if opts.Workers <= 0 {
		return b
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	b.queue = make(chan func(), size)
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	for i := 0; i < opts.Workers; i++ {
		b.workers.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case job, ok := <-b.queue:
					if !ok {
						return nil
					}
					job()
				}
			}
		})
	}
	return b
}

// NewListener wraps a function as a Listener. Every call returns a distinct
// listener, so keep the result around to unregister it later.
func NewListener(f func(beatbox.Command) error) Listener {
	return &funcListener{f: f}
}

func (l *funcListener) OnCommand(cmd beatbox.Command) error { return l.f(cmd) }

// Register adds a listener. Registering the same listener twice has no effect.
// A listener that is not comparable cannot be told apart from the others; it
// is logged and ignored.
func (b *Bus) Register(l Listener) {
	if l == nil {
		return
	}
	if !reflect.TypeOf(l).Comparable() {
		b.logger.Error("listener is not comparable, ignoring it", "type", fmt.Sprintf("%T", l))
		return
	}
	b.regMu.Lock()
	defer b.regMu.Unlock()
	current := *b.listeners.Load()
	if slices.Contains(current, l) {
		return
	}
	next := append(slices.Clone(current), l)
	b.listeners.Store(&next)
}

// Unregister removes a listener. Unregistering a listener that is not
// registered has no effect.
func (b *Bus) Unregister(l Listener) {
	if l == nil || !reflect.TypeOf(l).Comparable() {
		return
	}
	b.regMu.Lock()
	defer b.regMu.Unlock()
	current := *b.listeners.Load()
	i := slices.Index(current, l)
	if i < 0 {
		return
	}
	next := slices.Delete(slices.Clone(current), i, i+1)
	b.listeners.Store(&next)
}

// Listeners returns the number of registered listeners.
func (b *Bus) Listeners() int {
	return len(*b.listeners.Load())
}

// Publish builds a command and delivers it to every listener except sender.
// The only error is a payload that does not belong to the kind.
func (b *Bus) Publish(kind beatbox.CommandKind, sender any, data beatbox.Payload) error {
	cmd, err := beatbox.NewCommand(kind, sender, data)
	if err != nil {
		return err
	}
	b.PublishCommand(cmd)
	return nil
}

// PublishCommand delivers an already built command.
func (b *Bus) PublishCommand(cmd beatbox.Command) {
	listeners := *b.listeners.Load()
	if b.queue == nil {
		for _, l := range listeners {
			if !isSender(l, cmd.Sender) {
				b.deliver(l, cmd)
			}
		}
		return
	}
	b.queueMu.RLock()
	defer b.queueMu.RUnlock()
	for _, l := range listeners {
		if isSender(l, cmd.Sender) {
			continue
		}
		if b.closed || !TrySend(b.queue, func() { b.deliver(l, cmd) }) {
			if n := b.dropped.Add(1); n&(n-1) == 0 { // log on powers of two to avoid flooding
				b.logger.Warn("bus dropped a delivery", "command", cmd.Kind, "dropped", n, "closed", b.closed)
			}
		}
	}
}

// Dropped returns how many deliveries were dropped because the queue was full
// or the bus was shut down.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Shutdown stops accepting new deliveries and waits for the queued ones to
// finish. If they do not finish within timeout, the workers are told to quit
// without taking more jobs from the queue, and ErrShutdownTimeout is
// returned. Deliveries already running are not interrupted. Calling Shutdown
// again is a no-op.
func (b *Bus) Shutdown(timeout time.Duration) error {
	if b.queue == nil {
		return nil
	}
	b.queueMu.Lock()
	if b.closed {
		b.queueMu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.queueMu.Unlock()
	done := make(chan error, 1)
	go func() { done <- b.workers.Wait() }()
	_, ok := TimeoutReceive(done, timeout)
	b.cancel()
	if !ok {
		b.logger.Warn("bus shutdown timed out", "timeout", timeout, "pending", len(b.queue))
		return ErrShutdownTimeout
	}
	return nil
}

func (b *Bus) deliver(l Listener, cmd beatbox.Command) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("listener panicked", "command", cmd.Kind, "listener", fmt.Sprintf("%T", l), "panic", r)
		}
	}()
	if err := l.OnCommand(cmd); err != nil {
		b.logger.Error("listener failed", "command", cmd.Kind, "listener", fmt.Sprintf("%T", l), "err", err)
	}
}

func isSender(l Listener, sender any) bool {
	if sender == nil {
		return false
	}
	if t := reflect.TypeOf(sender); t != reflect.TypeOf(l) || !t.Comparable() {
		return false
	}
	return any(l) == sender
}

// TrySend is a helper function to send a value to a channel if it is not full.
// It is guaranteed to be non-blocking. Return true if the value was sent, false
// otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive is a helper function to block until a value is received from a
// channel, or timing out after t. ok will be false if the timeout occurred or
// if the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}

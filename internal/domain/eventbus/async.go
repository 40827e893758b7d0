package eventbus

import (
	"sync"
	"sync/atomic"

	evbus "github.com/asaskevich/EventBus"

	"imgrelay-server-go/internal/utils"
)

const defaultQueueSize = 1000

// AsyncEventBus delivers relay events on a fixed worker pool so the request
// path never waits on log or journal handlers.
type AsyncEventBus struct {
	bus     evbus.Bus
	workers int
	queue   chan asyncEvent
	logger  *utils.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
	pending sync.WaitGroup
	dropped atomic.Int64
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// NewAsyncEventBus creates a bus with the given number of workers (4 when <= 0).
func NewAsyncEventBus(workers int, logger *utils.Logger) *AsyncEventBus {
	if workers <= 0 {
		workers = 4
	}
	return &AsyncEventBus{
		bus:     evbus.New(),
		workers: workers,
		queue:   make(chan asyncEvent, defaultQueueSize),
		logger:  logger,
	}
}

// Start launches the workers.
func (aeb *AsyncEventBus) Start() {
	for i := 0; i < aeb.workers; i++ {
		aeb.wg.Add(1)
		go func() {
			defer aeb.wg.Done()
			for event := range aeb.queue {
				aeb.dispatch(event)
			}
		}()
	}
}

// Stop refuses new events, delivers what is already queued and waits for
// the workers to exit. It is safe to call more than once.
func (aeb *AsyncEventBus) Stop() {
	aeb.mu.Lock()
	if aeb.stopped {
		aeb.mu.Unlock()
		return
	}
	aeb.stopped = true
	close(aeb.queue)
	aeb.mu.Unlock()

	aeb.wg.Wait()
}

func (aeb *AsyncEventBus) dispatch(event asyncEvent) {
	defer aeb.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			aeb.logger.ErrorTag("EVENT", "handler for %s panicked: %v", event.topic, r)
		}
	}()
	aeb.bus.Publish(event.topic, event.args...)
}

// Publish delivers synchronously on the caller's goroutine.
func (aeb *AsyncEventBus) Publish(topic string, args ...interface{}) {
	aeb.bus.Publish(topic, args...)
}

// PublishAsync enqueues the event. It is dropped when the queue is full or
// the bus has been stopped.
func (aeb *AsyncEventBus) PublishAsync(topic string, args ...interface{}) {
	aeb.mu.RLock()
	defer aeb.mu.RUnlock()

	if aeb.stopped {
		aeb.drop(topic, "bus stopped")
		return
	}

	aeb.pending.Add(1)
	select {
	case aeb.queue <- asyncEvent{topic: topic, args: args}:
	default:
		aeb.pending.Done()
		aeb.drop(topic, "queue full")
	}
}

func (aeb *AsyncEventBus) drop(topic, why string) {
	n := aeb.dropped.Add(1)
	aeb.logger.WarnTag("EVENT", "%s, dropped %s (%d dropped so far)", why, topic, n)
}

// Dropped returns how many events PublishAsync discarded.
func (aeb *AsyncEventBus) Dropped() int64 {
	return aeb.dropped.Load()
}

func (aeb *AsyncEventBus) Subscribe(topic string, fn interface{}) error {
	return aeb.bus.Subscribe(topic, fn)
}

func (aeb *AsyncEventBus) Unsubscribe(topic string, handler interface{}) error {
	return aeb.bus.Unsubscribe(topic, handler)
}

func (aeb *AsyncEventBus) HasCallback(topic string) bool {
	return aeb.bus.HasCallback(topic)
}

// WaitAsync blocks until every enqueued event has been handled.
func (aeb *AsyncEventBus) WaitAsync() {
	aeb.pending.Wait()
}

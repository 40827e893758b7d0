package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu     sync.Mutex
	topics []string
	events []RelayEventData
}

func (h *recordingHandler) Handle(eventType string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.topics = append(h.topics, eventType)
	h.events = append(h.events, data.(RelayEventData))
}

func TestAsyncEventBus_DeliversRelayEvents(t *testing.T) {
	bus := NewAsyncEventBus(2, nil)
	bus.Start()
	defer bus.Stop()

	handler := &recordingHandler{}
	require.NoError(t, SetupEventHandlers(bus, handler))
	assert.True(t, bus.HasCallback(EventRelayTranscoded))

	bus.PublishAsync(EventRelayTranscoded, RelayEventData{URL: "http://example.com/a.png", OriginalSize: 5000, OutputSize: 1200})
	bus.PublishAsync(EventRelayFailed, RelayEventData{URL: "http://example.com/b.jpg", Kind: "transcode"})
	bus.WaitAsync()

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.ElementsMatch(t, []string{EventRelayTranscoded, EventRelayFailed}, handler.topics)
}

func TestAsyncEventBus_RecoversHandlerPanic(t *testing.T) {
	bus := NewAsyncEventBus(1, nil)
	bus.Start()
	defer bus.Stop()

	require.NoError(t, bus.Subscribe(EventRelayBypassed, func(RelayEventData) { panic("boom") }))

	bus.PublishAsync(EventRelayBypassed, RelayEventData{})
	bus.WaitAsync()

	var got RelayEventData
	require.NoError(t, bus.Subscribe(EventRelayFailed, func(d RelayEventData) { got = d }))
	bus.PublishAsync(EventRelayFailed, RelayEventData{Reason: "still alive"})
	bus.WaitAsync()
	assert.Equal(t, "still alive", got.Reason)
}

func TestAsyncEventBus_StopIsIdempotent(t *testing.T) {
	bus := NewAsyncEventBus(1, nil)
	bus.Start()
	bus.Stop()
	assert.NotPanics(t, bus.Stop)
}

func TestAsyncEventBus_StopDeliversQueued(t *testing.T) {
	bus := NewAsyncEventBus(1, nil)

	var mu sync.Mutex
	delivered := 0
	require.NoError(t, bus.Subscribe(EventRelayBypassed, func(RelayEventData) {
		mu.Lock()
		delivered++
		mu.Unlock()
	}))

	// Queue before any worker runs so Stop has a backlog to drain.
	for i := 0; i < 5; i++ {
		bus.PublishAsync(EventRelayBypassed, RelayEventData{})
	}
	bus.Start()
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, delivered)
}

func TestAsyncEventBus_DropsAfterStop(t *testing.T) {
	bus := NewAsyncEventBus(1, nil)
	bus.Start()
	bus.Stop()

	assert.NotPanics(t, func() { bus.PublishAsync(EventRelayFailed, RelayEventData{}) })
	assert.Equal(t, int64(1), bus.Dropped())
	bus.WaitAsync()
}

func TestRelayEventData_BytesSaved(t *testing.T) {
	assert.Equal(t, int64(3800), RelayEventData{OriginalSize: 5000, OutputSize: 1200}.BytesSaved())
	assert.Equal(t, int64(-10), RelayEventData{OriginalSize: 90, OutputSize: 100}.BytesSaved())
}

func TestLogEventHandler_IgnoresForeignPayload(t *testing.T) {
	h := NewLogEventHandler(nil)
	assert.NotPanics(t, func() {
		h.Handle(EventRelayFailed, "not an event")
		h.Handle("other:topic", RelayEventData{})
	})
}

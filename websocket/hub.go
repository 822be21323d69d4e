package websocket

import (
	"sync"

	"github.com/runesim/kaun/models"
)

// DefaultSubscriberQueueSize is the frame queue depth given to each
// subscriber when the hub does not specify one.
const DefaultSubscriberQueueSize = 16

// Hub fans simulation frames out to stream subscribers. Publishing never
// blocks the simulation; a subscriber whose queue is full loses the frame.
type Hub struct {
	// QueueSize is the per-subscriber frame queue depth. Zero means
	// DefaultSubscriberQueueSize.
	QueueSize int

	initOnce sync.Once
	mutex    sync.RWMutex
	subs     map[uint32]chan Frame
	ids      models.SequentialIDGenerator
	closed   bool
}

func (h *Hub) init() {
	h.initOnce.Do(func() {
		h.subs = make(map[uint32]chan Frame)
	})
}

// Subscribe registers a subscriber and returns its frame channel along
// with a cancel function. The channel is closed on cancel and when the
// hub closes.
func (h *Hub) Subscribe() (<-chan Frame, func()) {
	h.init()

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		ch := make(chan Frame)
		close(ch)
		return ch, func() {}
	}

	size := h.QueueSize
	if size <= 0 {
		size = DefaultSubscriberQueueSize
	}

	id := h.ids.New()
	ch := make(chan Frame, size)
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mutex.Lock()
			defer h.mutex.Unlock()

			if ch, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
				h.ids.Reuse(id)
			}
		})
	}
	return ch, cancel
}

// Publish fans the frame out to every subscriber queue that has room.
func (h *Hub) Publish(frame Frame) {
	h.init()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- frame:
			instrumentPublishedFrame(frame.Type)

		default:
			instrumentDroppedFrame(frame.Type)
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.init()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.subs)
}

// Close closes every subscriber channel. Subscribing after Close returns
// a closed channel and publishing becomes a no-op.
func (h *Hub) Close() {
	h.init()

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

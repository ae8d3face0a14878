package orchestrator

import (
	"log"
	"sync"
)

// Listener receives orchestrator events. Listeners run on the hub's dispatch
// goroutine; slow listeners delay later ones but never the scheduler itself.
type Listener func(Event)

// Subscription identifies a registered listener for later removal.
type Subscription int

// ListenerHub fans events out from an EventEmitter to registered listeners.
// A panicking listener is logged and skipped; it cannot disrupt dispatch.
type ListenerHub struct {
	mu        sync.Mutex
	listeners map[Subscription]Listener
	nextID    Subscription
	done      chan struct{}
}

// NewListenerHub creates a hub and starts dispatching from the emitter's
// event channel. Dispatch stops when the emitter is closed.
func NewListenerHub(emitter *EventEmitter) *ListenerHub {
	h := &ListenerHub{
		listeners: make(map[Subscription]Listener),
		done:      make(chan struct{}),
	}
	go h.dispatch(emitter.Events())
	return h
}

// Subscribe registers a listener and returns its subscription handle.
func (h *ListenerHub) Subscribe(l Listener) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = l
	return id
}

// Unsubscribe removes a previously registered listener.
// Safe to call with a handle that was already removed.
func (h *ListenerHub) Unsubscribe(s Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, s)
}

// Wait blocks until the emitter has closed and all events were dispatched.
func (h *ListenerHub) Wait() {
	<-h.done
}

func (h *ListenerHub) dispatch(events <-chan Event) {
	defer close(h.done)
	for event := range events {
		h.mu.Lock()
		snapshot := make([]Listener, 0, len(h.listeners))
		for _, l := range h.listeners {
			snapshot = append(snapshot, l)
		}
		h.mu.Unlock()

		for _, l := range snapshot {
			h.deliver(l, event)
		}
	}
}

func (h *ListenerHub) deliver(l Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[orchestrator] listener panicked on %s event: %v", event.Type, r)
		}
	}()
	l(event)
}

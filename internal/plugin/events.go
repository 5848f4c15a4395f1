package plugin

// EventType classifies a runtime lifecycle event.
type EventType int

const (
	// EventLoaded is emitted after a plugin's setup completes.
	EventLoaded EventType = iota
	// EventUnloaded is emitted after a plugin is fully torn down.
	EventUnloaded
	// EventReloaded is emitted after a signature change replaced a
	// running instance.
	EventReloaded
	// EventError is emitted when a plugin fails to load.
	EventError
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventLoaded:
		return "loaded"
	case EventUnloaded:
		return "unloaded"
	case EventReloaded:
		return "reloaded"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one runtime lifecycle notification.
type Event struct {
	Type   EventType
	Plugin string
	Err    error
}

// EventHandler observes runtime lifecycle events. Handlers must be
// non-blocking and must not call back into the Runtime. Panics in
// handlers are recovered.
type EventHandler func(ev Event)

// Subscribe adds a lifecycle event handler and returns an unsubscribe
// function.
func (r *Runtime) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	r.handlersMu.Lock()
	r.handlers = append(r.handlers, handler)
	index := len(r.handlers) - 1
	r.handlersMu.Unlock()

	return func() {
		r.handlersMu.Lock()
		defer r.handlersMu.Unlock()
		// Nil out instead of removing to keep other indexes stable.
		if index < len(r.handlers) {
			r.handlers[index] = nil
		}
	}
}

// dispatch delivers queued events outside the runtime lock.
func (r *Runtime) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}

	r.handlersMu.RLock()
	handlers := make([]EventHandler, len(r.handlers))
	copy(handlers, r.handlers)
	r.handlersMu.RUnlock()

	for _, ev := range events {
		for _, handler := range handlers {
			if handler == nil {
				continue
			}
			func() {
				defer func() {
					recover()
				}()
				handler(ev)
			}()
		}
	}
}

// emitLocked queues an event for delivery after the runtime lock is
// released. Must be called with mu held.
func (r *Runtime) emitLocked(ev Event) {
	r.pending = append(r.pending, ev)
}

// takePending drains the queued events. Must be called with mu held.
func (r *Runtime) takePending() []Event {
	events := r.pending
	r.pending = nil
	return events
}

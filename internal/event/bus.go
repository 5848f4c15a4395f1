// Package event fans host lifecycle events out to per-plugin handler sets.
package event

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Host lifecycle topics plugins may subscribe to. The names and payload
// shapes are the wire contract plugins depend on.
const (
	TopicAppReady          = "app:ready"
	TopicWorkspaceChanged  = "workspace:changed"
	TopicActiveFileChanged = "active-file:changed"
)

// Payload is the plain key/value record delivered to handlers.
type Payload map[string]any

// Handler receives one event payload.
type Handler func(payload Payload)

// subscription is one plugin-owned handler registration.
type subscription struct {
	id       string
	pluginID string
	handler  Handler
}

// Bus delivers events to per-plugin handler sets. A throwing handler is
// caught, logged with the owning plugin id, and never prevents remaining
// handlers from running.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[string][]*subscription // topic -> pluginID -> subs
	logger *slog.Logger
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		topics: make(map[string]map[string][]*subscription),
		logger: logger,
	}
}

// Subscribe registers a handler for topic owned by pluginID and returns an
// idempotent unsubscribe function. Callers are expected to hand the
// returned closure to the plugin's resource tracker.
func (b *Bus) Subscribe(pluginID, topic string, handler Handler) (func(), error) {
	if handler == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", topic)
	}
	if topic == "" {
		return nil, fmt.Errorf("plugin %s: empty event topic", pluginID)
	}

	sub := &subscription{
		id:       uuid.NewString(),
		pluginID: pluginID,
		handler:  handler,
	}

	b.mu.Lock()
	byPlugin, ok := b.topics[topic]
	if !ok {
		byPlugin = make(map[string][]*subscription)
		b.topics[topic] = byPlugin
	}
	byPlugin[pluginID] = append(byPlugin[pluginID], sub)
	b.mu.Unlock()

	var once sync.Once
	off := func() {
		once.Do(func() {
			b.remove(topic, pluginID, sub.id)
		})
	}
	return off, nil
}

// Emit delivers the payload to every handler subscribed to topic. Handlers
// run in deterministic order: plugin ids sorted, then registration order.
func (b *Bus) Emit(topic string, payload Payload) {
	b.mu.RLock()
	byPlugin := b.topics[topic]
	ids := make([]string, 0, len(byPlugin))
	for id := range byPlugin {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var ordered []*subscription
	for _, id := range ids {
		ordered = append(ordered, byPlugin[id]...)
	}
	b.mu.RUnlock()

	for _, sub := range ordered {
		b.invoke(topic, sub, payload)
	}
}

// invoke runs one handler with panic isolation.
func (b *Bus) invoke(topic string, sub *subscription, payload Payload) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("plugin event handler panicked",
				"plugin", sub.pluginID,
				"event", topic,
				"panic", fmt.Sprint(r))
		}
	}()
	sub.handler(payload)
}

// PurgeOwner removes every subscription owned by the plugin across all
// topics and returns how many were removed.
func (b *Bus) PurgeOwner(pluginID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for topic, byPlugin := range b.topics {
		if subs, ok := byPlugin[pluginID]; ok {
			removed += len(subs)
			delete(byPlugin, pluginID)
		}
		if len(byPlugin) == 0 {
			delete(b.topics, topic)
		}
	}
	return removed
}

// CountOwner returns the number of active subscriptions for a plugin.
func (b *Bus) CountOwner(pluginID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, byPlugin := range b.topics {
		n += len(byPlugin[pluginID])
	}
	return n
}

// remove drops a single subscription.
func (b *Bus) remove(topic, pluginID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	byPlugin, ok := b.topics[topic]
	if !ok {
		return
	}
	subs := byPlugin[pluginID]
	for i, s := range subs {
		if s.id == subID {
			byPlugin[pluginID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(byPlugin[pluginID]) == 0 {
		delete(byPlugin, pluginID)
	}
	if len(byPlugin) == 0 {
		delete(b.topics, topic)
	}
}

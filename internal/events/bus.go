// Package events provides the process-local event bus that IRC connections
// publish raw protocol lines on. Subscribers register by event name
// ("irc.raw.EXTJWT", "irc.raw.421", "fileuploader.uploaded", ...) and are
// called synchronously on the publisher's goroutine.
package events

import (
	"sync"
	"sync/atomic"
)

// RawPrefix is prepended to an IRC command to form its event name.
const RawPrefix = "irc.raw."

// RawEvent returns the bus event name for a raw IRC command or numeric.
func RawEvent(command string) string {
	return RawPrefix + command
}

// Event is a single published occurrence. For raw IRC events Command holds
// the IRC command (or three-digit numeric), Source the message prefix and
// Params its ordered parameters. Network identifies the connection the line
// arrived on.
//
// Handled is set by a handler that consumed the event. Later handlers see the
// flag and should leave handled events alone.
type Event struct {
	Name    string
	Network any
	Source  string
	Command string
	Params  []string
	Handled bool
}

// Handler receives published events.
type Handler func(ev *Event)

// ListenerID identifies one subscription for later removal.
type ListenerID uint64

type listener struct {
	id ListenerID
	fn Handler
}

// Bus is a name-keyed publish/subscribe registry. Safe for concurrent use.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]listener
	nextID    atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[string][]listener)}
}

// Subscribe registers h for events named name and returns the id needed to
// unsubscribe it.
func (b *Bus) Subscribe(name string, h Handler) ListenerID {
	id := ListenerID(b.nextID.Add(1))

	b.mu.Lock()
	b.listeners[name] = append(b.listeners[name], listener{id: id, fn: h})
	b.mu.Unlock()

	return id
}

// Unsubscribe removes the subscription. Removing an unknown id is a no-op.
func (b *Bus) Unsubscribe(name string, id ListenerID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ls := b.listeners[name]
	kept := ls[:0]

	for _, l := range ls {
		if l.id != id {
			kept = append(kept, l)
		}
	}

	if len(kept) == 0 {
		delete(b.listeners, name)
		return
	}

	b.listeners[name] = kept
}

// Emit delivers ev to every handler subscribed to ev.Name, in subscription
// order. The handler list is snapshotted first, so handlers may subscribe or
// unsubscribe during dispatch without deadlocking.
func (b *Bus) Emit(ev *Event) {
	b.mu.RLock()
	snapshot := make([]listener, len(b.listeners[ev.Name]))
	copy(snapshot, b.listeners[ev.Name])
	b.mu.RUnlock()

	for _, l := range snapshot {
		l.fn(ev)
	}
}

// Listeners reports how many handlers are subscribed to name.
func (b *Bus) Listeners(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.listeners[name])
}

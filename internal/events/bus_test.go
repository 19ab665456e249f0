package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_EmitCallsSubscribersInOrder(t *testing.T) {
	t.Parallel()

	b := NewBus()

	var got []string

	b.Subscribe("irc.raw.PRIVMSG", func(*Event) { got = append(got, "first") })
	b.Subscribe("irc.raw.PRIVMSG", func(*Event) { got = append(got, "second") })
	b.Subscribe("irc.raw.NOTICE", func(*Event) { got = append(got, "other") })

	b.Emit(&Event{Name: "irc.raw.PRIVMSG"})

	assert.Equal(t, []string{"first", "second"}, got)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	b := NewBus()
	calls := 0

	id := b.Subscribe("x", func(*Event) { calls++ })
	b.Emit(&Event{Name: "x"})

	b.Unsubscribe("x", id)
	b.Emit(&Event{Name: "x"})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, b.Listeners("x"))

	// Unknown ids are ignored.
	b.Unsubscribe("x", id)
	b.Unsubscribe("never", 42)
}

func TestBus_HandlerMayUnsubscribeDuringEmit(t *testing.T) {
	t.Parallel()

	b := NewBus()

	var id ListenerID

	calls := 0
	id = b.Subscribe("x", func(*Event) {
		calls++
		b.Unsubscribe("x", id)
	})

	b.Emit(&Event{Name: "x"})
	b.Emit(&Event{Name: "x"})

	assert.Equal(t, 1, calls)
}

func TestBus_HandledFlagVisibleToLaterHandlers(t *testing.T) {
	t.Parallel()

	b := NewBus()

	var sawHandled bool

	b.Subscribe("x", func(ev *Event) { ev.Handled = true })
	b.Subscribe("x", func(ev *Event) { sawHandled = ev.Handled })

	ev := &Event{Name: "x"}
	b.Emit(ev)

	assert.True(t, ev.Handled)
	assert.True(t, sawHandled)
}

func TestBus_ConcurrentSubscribeEmit(t *testing.T) {
	t.Parallel()

	b := NewBus()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(2)

		go func() {
			defer wg.Done()

			id := b.Subscribe("x", func(*Event) {})
			b.Unsubscribe("x", id)
		}()

		go func() {
			defer wg.Done()
			b.Emit(&Event{Name: "x"})
		}()
	}

	wg.Wait()
	assert.Equal(t, 0, b.Listeners("x"))
}

func TestRawEvent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "irc.raw.EXTJWT", RawEvent("EXTJWT"))
	assert.Equal(t, "irc.raw.421", RawEvent("421"))
}

package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventBusDeliversPerAudit(t *testing.T) {
	bus := NewEventBus(&EventBusConfig{BufferSize: 2})
	ch, cancel := bus.Subscribe("audit-1")
	other, cancelOther := bus.Subscribe("audit-2")
	t.Cleanup(cancelOther)

	bus.Publish(Event{AuditID: "audit-1", Action: "audit.submitted", To: "Submitted_to_L2"})

	select {
	case evt := <-ch:
		require.Equal(t, "audit.submitted", evt.Action)
		require.Equal(t, "Submitted_to_L2", evt.To)
	default:
		t.Fatal("expected event to be delivered")
	}
	select {
	case <-other:
		t.Fatal("event leaked to another audit")
	default:
	}

	require.Equal(t, 1, bus.Subscribers("audit-1"))
	cancel()
	cancel()
	require.Equal(t, 0, bus.Subscribers("audit-1"))

	_, open := <-ch
	require.False(t, open)
	bus.Publish(Event{AuditID: "audit-1"})
}

func TestEventBusDropsWhenFull(t *testing.T) {
	bus := NewEventBus(&EventBusConfig{BufferSize: 1})
	ch, cancel := bus.Subscribe("a")
	t.Cleanup(cancel)

	bus.Publish(Event{AuditID: "a", Action: "first"})
	bus.Publish(Event{AuditID: "a", Action: "second"})

	require.Equal(t, "first", (<-ch).Action)
	select {
	case <-ch:
		t.Fatal("second event should be dropped")
	default:
	}
}

func TestNilEventBusPublish(t *testing.T) {
	var bus *EventBus
	require.NotPanics(t, func() { bus.Publish(Event{AuditID: "a"}) })
}

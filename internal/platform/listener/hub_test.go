package listener

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubNotifyReachesAllSubscribers(t *testing.T) {
	hub := NewHub()

	ch1, cancel1 := hub.Subscribe()
	defer cancel1()
	ch2, cancel2 := hub.Subscribe()
	defer cancel2()

	hub.Notify()

	select {
	case <-ch1:
	default:
		t.Fatal("subscriber 1 missed notification")
	}
	select {
	case <-ch2:
	default:
		t.Fatal("subscriber 2 missed notification")
	}
}

func TestHubCoalescesWhenSubscriberIsSlow(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Notify()
	hub.Notify()
	hub.Notify()

	// Exactly one pending signal, not three.
	<-ch
	select {
	case <-ch:
		t.Fatal("expected coalesced delivery")
	default:
	}
}

func TestHubCancelRemovesSubscriber(t *testing.T) {
	hub := NewHub()

	_, cancel := hub.Subscribe()
	require.Equal(t, 1, hub.Len())

	cancel()
	assert.Equal(t, 0, hub.Len())

	// Notify after cancel must not panic or block.
	hub.Notify()
}

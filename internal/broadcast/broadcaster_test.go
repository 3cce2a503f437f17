package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giada-tronca/cold-outreach/internal/model"
)

func TestBroadcaster_PublishReachesAllSubscribers(t *testing.T) {
	b := New(8, 0)
	defer b.Close()

	s1 := b.Subscribe("job-1")
	s2 := b.Subscribe("job-1")
	other := b.Subscribe("job-2")

	b.Publish("job-1", model.QueuedEvent("job-1", "p-1"))

	for _, sub := range []*Subscription{s1, s2} {
		select {
		case ev := <-sub.C:
			assert.Equal(t, model.EventQueued, ev.Type)
			assert.Equal(t, "p-1", ev.ProspectID)
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}

	select {
	case <-other.C:
		t.Fatal("subscriber of another job received the event")
	default:
	}
}

func TestBroadcaster_PublishWithoutSubscribersIsNoop(t *testing.T) {
	b := New(8, 0)
	defer b.Close()

	// must not block or panic
	b.Publish("job-1", model.QueuedEvent("job-1", "p-1"))
}

func TestBroadcaster_SlowSubscriberIsDropped(t *testing.T) {
	b := New(2, 0)
	defer b.Close()

	slow := b.Subscribe("job-1")
	keeper := b.Subscribe("job-1")

	// fill slow's buffer, then overflow it; keeper drains as it goes
	for i := 0; i < 3; i++ {
		b.Publish("job-1", model.StageProgressEvent("job-1", "p-1", "profile", 25))
		for len(keeper.C) > 0 {
			<-keeper.C
		}
	}

	assert.Equal(t, 1, b.SubscriberCount("job-1"))

	// the dropped subscriber's channel is closed after the buffered events
	drained := 0
	for range slow.C {
		drained++
	}
	assert.Equal(t, 2, drained)

	// the surviving subscriber still receives
	b.Publish("job-1", model.StageProgressEvent("job-1", "p-1", "organization", 45))
	select {
	case ev := <-keeper.C:
		assert.Equal(t, 45, ev.Pct)
	default:
		t.Fatal("surviving subscriber did not receive the event")
	}
}

func TestBroadcaster_UnsubscribePrunesEmptySet(t *testing.T) {
	b := New(8, 0)
	defer b.Close()

	sub := b.Subscribe("job-1")
	require.Equal(t, 1, b.SubscriberCount("job-1"))

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount("job-1"))

	// channel is closed
	_, open := <-sub.C
	assert.False(t, open)

	// double unsubscribe is safe
	b.Unsubscribe(sub)
}

func TestBroadcaster_HeartbeatReachesAllJobs(t *testing.T) {
	b := New(8, 20*time.Millisecond)
	defer b.Close()

	s1 := b.Subscribe("job-1")
	s2 := b.Subscribe("job-2")

	for _, sub := range []*Subscription{s1, s2} {
		select {
		case ev := <-sub.C:
			assert.Equal(t, model.EventHeartbeat, ev.Type)
		case <-time.After(2 * time.Second):
			t.Fatal("no heartbeat received")
		}
	}
}

func TestBroadcaster_CloseClosesAllChannels(t *testing.T) {
	b := New(8, 0)
	sub := b.Subscribe("job-1")

	b.Close()

	_, open := <-sub.C
	assert.False(t, open)
}

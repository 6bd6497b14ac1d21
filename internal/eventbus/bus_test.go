package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: JobCreated, JobID: "j1"})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		assert.Equal(t, JobCreated, e.Type)
		assert.Equal(t, "j1", e.JobID)
		assert.False(t, e.Time.IsZero())
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: JobProgress})
	b.Publish(Event{Type: JobProgress})
	b.Publish(Event{Type: JobFinished})

	assert.Equal(t, uint64(2), b.Dropped())
	assert.Equal(t, JobProgress, (<-ch).Type)
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	require.Equal(t, 1, b.Subscribers())
	unsub()
	unsub()
	assert.Equal(t, 0, b.Subscribers())
	_, ok := <-ch
	assert.False(t, ok)

	b.Publish(Event{Type: JobCreated})
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	t.Parallel()

	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		_, unsub := b.Subscribe(2)
		go func() {
			defer wg.Done()
			for k := 0; k < 100; k++ {
				b.Publish(Event{Type: JobProgress})
			}
		}()
		go func() {
			defer wg.Done()
			unsub()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.Subscribers())
}

func TestNilBusPublish(t *testing.T) {
	t.Parallel()

	var b *Bus
	assert.NotPanics(t, func() { b.Publish(Event{Type: JobCreated}) })
}

package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulksend/internal/delivery"
	"bulksend/internal/eventbus"
)

func TestLifecycleEvents(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	ch, unsub := bus.Subscribe(32)
	defer unsub()

	r := newTestRegistry(t, &recordingSender{out: delivery.Sent("ok")}, fastLimits(), WithEvents(bus))
	id, err := r.Create(Request{Recipients: []string{"a@x.com", "b@x.com"}, Template: simpleTemplate(), Workers: 1})
	require.NoError(t, err)

	var got []eventbus.Event
	timeout := time.After(5 * time.Second)
	for len(got) < 4 {
		select {
		case e := <-ch:
			got = append(got, e)
		case <-timeout:
			t.Fatalf("got %d events, want 4", len(got))
		}
	}

	types := make([]string, 0, len(got))
	for _, e := range got {
		assert.Equal(t, id, e.JobID)
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{eventbus.JobCreated, eventbus.JobProgress, eventbus.JobProgress, eventbus.JobFinished}, types)

	last := got[2].Data.(CountsEvent)
	assert.Equal(t, 2, last.Sent)
	assert.Equal(t, 2, last.Total)
	require.NotNil(t, last.Result)
	assert.Equal(t, "b@x.com -> ok", last.Result.Detail)

	done := got[3].Data.(CountsEvent)
	assert.Equal(t, CountsEvent{Total: 2, Sent: 2, Workers: 1}, done)
}

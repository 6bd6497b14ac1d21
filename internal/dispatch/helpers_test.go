package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bulksend/internal/delivery"
	"bulksend/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recordingSender returns a fixed outcome and remembers every recipient.
type recordingSender struct {
	mu  sync.Mutex
	out delivery.Outcome
	to  []string
}

func (s *recordingSender) Send(_ context.Context, msg delivery.Message) delivery.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.to = append(s.to, msg.To)
	return s.out
}

func (s *recordingSender) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.to...)
}

// gateSender blocks every send until release is closed.
type gateSender struct {
	started chan string
	release chan struct{}
}

func newGateSender(buf int) *gateSender {
	return &gateSender{started: make(chan string, buf), release: make(chan struct{})}
}

func (s *gateSender) Send(ctx context.Context, msg delivery.Message) delivery.Outcome {
	s.started <- msg.To
	select {
	case <-s.release:
		return delivery.Sent("ok")
	case <-ctx.Done():
		return delivery.Failed(ctx.Err())
	}
}

type memJournal struct {
	mu   sync.Mutex
	recs []storage.JobRecord
}

func (m *memJournal) AppendJob(_ context.Context, rec storage.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memJournal) records() []storage.JobRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.JobRecord(nil), m.recs...)
}

func fastLimits() Limits {
	l := DefaultLimits()
	l.Pacing = Pacing{}
	return l
}

func newTestRegistry(t *testing.T, sender delivery.Sender, limits Limits, opts ...Option) *Registry {
	t.Helper()
	r, err := NewRegistry(sender, limits, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r
}

func waitFinished(t *testing.T, r *Registry, id string) *Job {
	t.Helper()
	j, err := r.Get(id)
	require.NoError(t, err)
	select {
	case <-j.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("job %s did not finish", id)
	}
	return j
}

func recipients(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("user%02d@x.com", i)
	}
	return out
}

func simpleTemplate() delivery.Template {
	return delivery.Template{FromName: "Shop", Subject: "Hello", HTML: "body"}
}

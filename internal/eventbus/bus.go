// Package eventbus fans job lifecycle events out to in-process listeners
// such as the log tap and the server-sent events stream.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	JobCreated     = "job.created"
	JobProgress    = "job.progress"
	JobFinished    = "job.finished"
	JobInterrupted = "job.interrupted"
)

// Event is one job lifecycle signal. Data must be JSON-serializable.
type Event struct {
	Type  string    `json:"type"`
	Time  time.Time `json:"time"`
	JobID string    `json:"job_id"`
	Data  any       `json:"data,omitempty"`
}

// Bus never blocks publishers. A subscriber whose buffer is full misses
// events; Dropped counts them.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     uint64
	dropped atomic.Uint64
}

func New() *Bus {
	return &Bus{subs: map[uint64]chan Event{}}
}

func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// The read lock is held across sends so unsubscribe cannot close a
	// channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe returns a buffered channel and a func that detaches and closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

package dispatch

import (
	"sync"
	"time"

	"bulksend/internal/delivery"
)

// Result is one recorded delivery attempt.
type Result struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// Job is a single bulk send. Its identity, recipients and template never
// change after creation; counters and results are guarded by mu.
type Job struct {
	ID         string
	Recipients []string
	Template   delivery.Template
	Workers    int
	StartedAt  time.Time

	pacing   Pacing
	prepared *delivery.Prepared

	mu         sync.Mutex
	sent       int
	failed     int
	results    []Result
	finished   bool
	finishedAt time.Time

	done chan struct{}
}

func newJob(id string, recipients []string, tpl delivery.Template, workers int, startedAt time.Time, pacing Pacing, prepared *delivery.Prepared) *Job {
	return &Job{
		ID:         id,
		Recipients: append([]string(nil), recipients...),
		Template:   tpl,
		Workers:    workers,
		StartedAt:  startedAt,
		pacing:     pacing,
		prepared:   prepared,
		results:    make([]Result, 0, len(recipients)),
		done:       make(chan struct{}),
	}
}

func (j *Job) Total() int { return len(j.Recipients) }

// Done is closed once the job is finished.
func (j *Job) Done() <-chan struct{} { return j.done }

func (j *Job) Finished() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finished
}

// Results returns a copy of every recorded result in completion order.
func (j *Job) Results() []Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Result(nil), j.results...)
}

// record appends one outcome. sent and len(results) move together.
func (j *Job) record(r Result) {
	j.mu.Lock()
	j.sent++
	if !r.OK {
		j.failed++
	}
	j.results = append(j.results, r)
	j.mu.Unlock()
}

// finish marks the job finished once. It reports false if it already was.
func (j *Job) finish(at time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished {
		return false
	}
	j.finished = true
	j.finishedAt = at
	close(j.done)
	return true
}

func (j *Job) counts() (sent, failed int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sent, j.failed
}

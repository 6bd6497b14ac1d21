package dispatch

import (
	"math"
	"time"
)

// tailSize is how many of the most recent results a Snapshot carries.
const tailSize = 5

// Snapshot is a point-in-time view of a job's progress.
type Snapshot struct {
	ID             string     `json:"id"`
	Sent           int        `json:"sent"`
	Total          int        `json:"total"`
	Failed         int        `json:"failed"`
	Percent        int        `json:"percent"`
	Finished       bool       `json:"finished"`
	ETASeconds     int64      `json:"eta_seconds"`
	ElapsedSeconds int64      `json:"elapsed_seconds"`
	Results        []Result   `json:"results"`
	Workers        int        `json:"workers"`
	Subject        string     `json:"subject"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// Snapshot computes progress from one consistent view of the job.
// Elapsed time stops at finishedAt for finished jobs.
func (j *Job) Snapshot(now time.Time) Snapshot {
	j.mu.Lock()
	sent, failed, finished, finishedAt := j.sent, j.failed, j.finished, j.finishedAt
	n := min(tailSize, len(j.results))
	tail := append(make([]Result, 0, n), j.results[len(j.results)-n:]...)
	j.mu.Unlock()

	total := j.Total()
	end := now
	if finished {
		end = finishedAt
	}
	elapsed := max(end.Sub(j.StartedAt), 0)

	s := Snapshot{
		ID:             j.ID,
		Sent:           sent,
		Total:          total,
		Failed:         failed,
		Percent:        Percent(sent, total),
		Finished:       finished,
		ETASeconds:     EstimateETA(elapsed, sent, total),
		ElapsedSeconds: int64(elapsed / time.Second),
		Results:        tail,
		Workers:        j.Workers,
		Subject:        j.Template.Subject,
		StartedAt:      j.StartedAt,
	}
	if finished {
		at := finishedAt
		s.FinishedAt = &at
	}
	return s
}

// Percent is floor(100*sent/total), 0 for an empty job.
func Percent(sent, total int) int {
	if total <= 0 {
		return 0
	}
	return 100 * sent / total
}

// EstimateETA extrapolates the remaining seconds from the average time per
// completed send. It is 0 before the first send completes.
func EstimateETA(elapsed time.Duration, sent, total int) int64 {
	if sent <= 0 || total <= sent {
		return 0
	}
	avg := elapsed.Seconds() / float64(sent)
	return int64(math.Round(avg * float64(total-sent)))
}

// CountsEvent is the payload of job lifecycle events. Result is set only on
// progress events.
type CountsEvent struct {
	Total   int     `json:"total"`
	Sent    int     `json:"sent"`
	Failed  int     `json:"failed"`
	Workers int     `json:"workers,omitempty"`
	Result  *Result `json:"result,omitempty"`
}

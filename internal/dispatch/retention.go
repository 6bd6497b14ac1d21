package dispatch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "bulksend/pkg/logx"
)

// Retention bounds how long finished jobs stay queryable.
type Retention struct {
	TTL     time.Duration
	MaxJobs int
	// Schedule is a cron spec for the background sweep, e.g. "@every 1m".
	Schedule string
}

func DefaultRetention() Retention {
	return Retention{TTL: 24 * time.Hour, MaxJobs: 200, Schedule: "@every 1m"}
}

// Prune evicts finished jobs older than the TTL, then the oldest finished
// jobs beyond MaxJobs. Running jobs are never evicted. It returns the number
// of jobs removed.
func (r *Registry) Prune(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ttl := r.retention.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	maxJobs := r.retention.MaxJobs
	if maxJobs <= 0 {
		maxJobs = 200
	}

	type cand struct {
		id string
		at time.Time
	}
	var cands []cand
	removed := 0
	for id, j := range r.jobs {
		j.mu.Lock()
		finished, at := j.finished, j.finishedAt
		j.mu.Unlock()
		if !finished {
			continue
		}
		if now.Sub(at) > ttl {
			delete(r.jobs, id)
			removed++
			continue
		}
		cands = append(cands, cand{id: id, at: at})
	}

	over := len(r.jobs) - maxJobs
	if over > 0 && len(cands) > 0 {
		sort.Slice(cands, func(i, k int) bool { return cands[i].at.Before(cands[k].at) })
		for i := 0; i < len(cands) && over > 0; i++ {
			delete(r.jobs, cands[i].id)
			removed++
			over--
		}
	}
	if removed > 0 {
		r.log.Debug("jobs pruned", logx.Int("removed", removed), logx.Int("remaining", len(r.jobs)))
	}
	return removed
}

// StartJanitor schedules Prune on the retention cron spec and returns a
// function that stops the schedule and waits for a running sweep.
func (r *Registry) StartJanitor() (stop func(), err error) {
	r.mu.Lock()
	spec := strings.TrimSpace(r.retention.Schedule)
	r.mu.Unlock()
	if spec == "" {
		spec = DefaultRetention().Schedule
	}

	cl := cronLogger{log: r.log.With(logx.String("comp", "janitor"))}
	c := cron.New(
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	if _, err := c.AddFunc(spec, func() { r.Prune(r.now()) }); err != nil {
		return nil, fmt.Errorf("retention schedule %q: %w", spec, err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}

// cronLogger routes cron's logr-style calls to logx.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}

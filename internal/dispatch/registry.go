package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"bulksend/internal/delivery"
	"bulksend/internal/eventbus"
	"bulksend/internal/runtime/supervisor"
	"bulksend/internal/storage"
	logx "bulksend/pkg/logx"
)

// Limits are the admission caps and pacing applied to new jobs.
type Limits struct {
	MaxActiveJobs int
	MaxRecipients int
	MaxWorkers    int
	Pacing        Pacing
	// RatePerSec caps sends across all jobs. 0 disables the limiter.
	RatePerSec float64
	RateBurst  int
}

func DefaultLimits() Limits {
	return Limits{
		MaxActiveJobs: 1,
		MaxRecipients: 300,
		MaxWorkers:    3,
		Pacing:        Pacing{Min: 60 * time.Second, Max: 70 * time.Second},
	}
}

func (l Limits) Validate() error {
	if l.MaxActiveJobs < 1 {
		return fmt.Errorf("max_active_jobs must be >= 1 (got %d)", l.MaxActiveJobs)
	}
	if l.MaxRecipients < 1 {
		return fmt.Errorf("max_recipients must be >= 1 (got %d)", l.MaxRecipients)
	}
	if l.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be >= 1 (got %d)", l.MaxWorkers)
	}
	if l.RatePerSec < 0 {
		return fmt.Errorf("rate_per_sec must be >= 0 (got %v)", l.RatePerSec)
	}
	return l.Pacing.Validate()
}

// Request describes a job to create.
type Request struct {
	Recipients []string
	Template   delivery.Template
	Workers    int
}

// Journal receives a record of every job once its runner exits.
type Journal interface {
	AppendJob(ctx context.Context, rec storage.JobRecord) error
}

// Registry owns every known job and admits new ones.
type Registry struct {
	log      logx.Logger
	sender   delivery.Sender
	composer *delivery.Composer
	journal  Journal
	events   *eventbus.Bus
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	sup      *supervisor.Supervisor

	limiter atomic.Pointer[rate.Limiter]

	mu        sync.Mutex
	limits    Limits
	retention Retention
	jobs      map[string]*Job
	active    int
}

type Option func(*Registry)

func WithLogger(log logx.Logger) Option { return func(r *Registry) { r.log = log } }

// WithJournal enables journaling of finished and interrupted jobs.
func WithJournal(j Journal) Option { return func(r *Registry) { r.journal = j } }

// WithEvents publishes job lifecycle events to bus.
func WithEvents(bus *eventbus.Bus) Option { return func(r *Registry) { r.events = bus } }

func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

func WithRetention(ret Retention) Option { return func(r *Registry) { r.retention = ret } }

// NewRegistry returns a registry that delivers through sender. Invalid
// limits are rejected so a misconfigured process fails at startup.
func NewRegistry(sender delivery.Sender, limits Limits, opts ...Option) (*Registry, error) {
	if sender == nil {
		return nil, fmt.Errorf("dispatch: sender is required")
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	r := &Registry{
		log:       logx.Nop(),
		sender:    sender,
		composer:  delivery.NewComposer(),
		now:       time.Now,
		sleep:     sleepCtx,
		limits:    limits,
		retention: DefaultRetention(),
		jobs:      map[string]*Job{},
	}
	for _, o := range opts {
		o(r)
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	r.sup = supervisor.New(context.Background(), supervisor.WithLogger(r.log))
	r.setLimiter(limits)
	return r, nil
}

// Apply swaps the limits. Running jobs keep the pacing they were created
// with; the send-rate limiter is shared and changes immediately.
func (r *Registry) Apply(limits Limits) error {
	if err := limits.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.limits = limits
	r.mu.Unlock()
	r.setLimiter(limits)
	r.log.Info("dispatch limits applied",
		logx.Int("max_active_jobs", limits.MaxActiveJobs),
		logx.Int("max_recipients", limits.MaxRecipients),
		logx.Int("max_workers", limits.MaxWorkers),
		logx.Duration("delay_min", limits.Pacing.Min),
		logx.Duration("delay_max", limits.Pacing.Max),
		logx.Float64("rate_per_sec", limits.RatePerSec),
	)
	return nil
}

func (r *Registry) Limits() Limits {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limits
}

func (r *Registry) setLimiter(l Limits) {
	if l.RatePerSec <= 0 {
		r.limiter.Store(nil)
		return
	}
	burst := l.RateBurst
	if burst <= 0 {
		burst = 1
	}
	r.limiter.Store(rate.NewLimiter(rate.Limit(l.RatePerSec), burst))
}

// Create admits a job and starts it in the background. The returned id is
// usable immediately.
func (r *Registry) Create(req Request) (string, error) {
	prepared, err := r.composer.Prepare(req.Template)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	now := r.now()
	r.Prune(now)

	r.mu.Lock()
	lim := r.limits
	if n := len(req.Recipients); n > lim.MaxRecipients {
		r.mu.Unlock()
		return "", fmt.Errorf("%w (%d > %d)", ErrTooManyRecipients, n, lim.MaxRecipients)
	}
	if r.active >= lim.MaxActiveJobs {
		r.mu.Unlock()
		return "", fmt.Errorf("%w (limit %d)", ErrTooManyActiveJobs, lim.MaxActiveJobs)
	}
	workers := min(max(req.Workers, 1), lim.MaxWorkers)
	id := uuid.NewString()
	j := newJob(id, req.Recipients, req.Template, workers, now, lim.Pacing, prepared)
	r.jobs[id] = j
	r.active++
	r.mu.Unlock()

	r.log.Info("job created",
		logx.String("job", id),
		logx.Int("total", j.Total()),
		logx.Int("workers", workers),
		logx.Duration("delay_min", lim.Pacing.Min),
		logx.Duration("delay_max", lim.Pacing.Max),
	)
	r.events.Publish(eventbus.Event{
		Type:  eventbus.JobCreated,
		Time:  now,
		JobID: id,
		Data:  CountsEvent{Total: j.Total(), Workers: workers},
	})
	r.sup.Go0("job-runner", func(ctx context.Context) { r.run(ctx, j) })
	return id, nil
}

func (r *Registry) Get(id string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j, nil
}

// Progress returns the snapshot of one job.
func (r *Registry) Progress(id string) (Snapshot, error) {
	j, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return j.Snapshot(r.now()), nil
}

// List returns snapshots of every known job, newest first.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	now := r.now()
	out := make([]Snapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot(now))
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].StartedAt.Equal(out[k].StartedAt) {
			return out[i].StartedAt.After(out[k].StartedAt)
		}
		return out[i].ID < out[k].ID
	})
	return out
}

// Active is the number of admitted jobs that are still running.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// complete frees the job's active slot. Marking it finished happens in the
// same critical section so Active never counts a finished job.
func (r *Registry) complete(j *Job, finished bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if finished {
		j.finish(r.now())
	}
	if r.active > 0 {
		r.active--
	}
}

// Stats exposes runner goroutine counters.
func (r *Registry) Stats() supervisor.Snapshot { return r.sup.Snapshot() }

// Shutdown cancels every running job and waits for the runners to exit.
func (r *Registry) Shutdown(ctx context.Context) error {
	return r.sup.Stop(ctx)
}

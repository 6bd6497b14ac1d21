package dispatch

import (
	"context"
	"strconv"
	"sync"
	"time"

	"bulksend/internal/eventbus"
	"bulksend/internal/storage"
	logx "bulksend/pkg/logx"
)

const journalTimeout = 5 * time.Second

// run executes j to completion. finished is set only after every worker has
// returned, so sent == total at that point unless the context was canceled.
func (r *Registry) run(ctx context.Context, j *Job) {
	log := r.log.With(logx.String("job", j.ID))
	log.Info("job started", logx.Int("total", j.Total()), logx.Int("workers", j.Workers))

	q := NewQueue(j.Recipients)
	var wg sync.WaitGroup
	for i := 0; i < j.Workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			r.work(ctx, j, q, log.With(logx.String("worker", strconv.Itoa(idx))))
		}(i)
	}
	wg.Wait()

	sent, failed := j.counts()
	interrupted := sent < j.Total()
	r.complete(j, !interrupted)

	took := r.now().Sub(j.StartedAt)
	fields := []logx.Field{
		logx.Int("total", j.Total()),
		logx.Int("sent", sent),
		logx.Int("failed", failed),
		logx.Duration("took", took),
	}
	switch {
	case interrupted:
		log.Warn("job interrupted", append(fields, logx.Int("unattempted", j.Total()-sent))...)
	case failed > 0:
		log.Warn("job finished with failures", fields...)
	default:
		log.Info("job finished", fields...)
	}

	kind := eventbus.JobFinished
	if interrupted {
		kind = eventbus.JobInterrupted
	}
	r.events.Publish(eventbus.Event{
		Type:  kind,
		Time:  r.now(),
		JobID: j.ID,
		Data:  CountsEvent{Total: j.Total(), Sent: sent, Failed: failed, Workers: j.Workers},
	})

	r.appendJournal(ctx, j, interrupted, log)
}

func (r *Registry) appendJournal(ctx context.Context, j *Job, interrupted bool, log logx.Logger) {
	if r.journal == nil {
		return
	}
	rec := j.journalRecord(interrupted, r.now())
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := r.journal.AppendJob(jctx, rec); err != nil {
		log.Warn("journal append failed", logx.Err(err))
	}
}

// journalRecord snapshots j for the journal.
func (j *Job) journalRecord(interrupted bool, now time.Time) storage.JobRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	finishedAt := j.finishedAt
	if finishedAt.IsZero() {
		finishedAt = now
	}
	results := make([]storage.ResultRecord, 0, len(j.results))
	for _, res := range j.results {
		results = append(results, storage.ResultRecord{OK: res.OK, Detail: res.Detail})
	}
	return storage.JobRecord{
		ID:          j.ID,
		CreatedAt:   j.StartedAt,
		FinishedAt:  finishedAt,
		FromName:    j.Template.FromName,
		Subject:     j.Template.Subject,
		Workers:     j.Workers,
		Total:       len(j.Recipients),
		Sent:        j.sent,
		Failed:      j.failed,
		Interrupted: interrupted,
		Results:     results,
	}
}

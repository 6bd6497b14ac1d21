package dispatch

import (
	"context"
	"fmt"

	"bulksend/internal/delivery"
	"bulksend/internal/eventbus"
	logx "bulksend/pkg/logx"
)

// work drains q for job j. It returns silently when the queue is empty or
// ctx is canceled; a recipient popped right before cancellation is dropped.
func (r *Registry) work(ctx context.Context, j *Job, q *Queue, log logx.Logger) {
	for {
		to, ok := q.TryPop()
		if !ok {
			return
		}
		if err := r.sleep(ctx, j.pacing.Draw()); err != nil {
			return
		}
		if lim := r.limiter.Load(); lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return
			}
		}

		out := r.deliver(ctx, j, to)
		res := Result{OK: out.OK, Detail: to + " -> " + out.Detail}
		j.record(res)
		if r.events != nil {
			sent, failed := j.counts()
			r.events.Publish(eventbus.Event{
				Type:  eventbus.JobProgress,
				Time:  r.now(),
				JobID: j.ID,
				Data:  CountsEvent{Total: j.Total(), Sent: sent, Failed: failed, Result: &res},
			})
		}
		if out.OK {
			log.Debug("recipient sent", logx.Recipient("to", to))
		} else {
			log.Debug("recipient failed", logx.Recipient("to", to), logx.String("detail", out.Detail))
		}
	}
}

// deliver never panics; a panicking sender counts as a failed recipient.
func (r *Registry) deliver(ctx context.Context, j *Job, to string) (out delivery.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("sender panicked", logx.String("job", j.ID), logx.Any("panic", p))
			out = delivery.Failed(fmt.Errorf("panic: %v", p))
		}
	}()
	msg, err := j.prepared.Render(to)
	if err != nil {
		return delivery.Failed(fmt.Errorf("render: %w", err))
	}
	return r.sender.Send(ctx, msg)
}

// Package dispatch runs bulk email jobs.
//
// A Registry admits jobs under global caps (active jobs, recipients per job)
// and hands each one to a runner goroutine. The runner seeds a Queue with the
// job's recipients and starts a bounded number of workers. Every worker pops
// one recipient at a time, waits a randomized pacing delay, renders the
// message, calls the delivery Sender and records the outcome on the Job.
//
// Progress is read through Snapshot, which is computed from a single
// consistent view of the job and carries an ETA extrapolated from the
// average time per completed send.
//
// Failed sends are recorded and never retried. Jobs cannot be canceled
// individually; shutting the registry down cancels pacing waits and
// in-flight sends, and recipients that were not attempted are dropped.
package dispatch

package dispatch

// Queue hands out each recipient of a job exactly once.
//
// It is filled and closed before any worker starts, so popping never blocks
// and needs no lock.
type Queue struct {
	ch chan string
}

func NewQueue(recipients []string) *Queue {
	ch := make(chan string, len(recipients))
	for _, r := range recipients {
		ch <- r
	}
	close(ch)
	return &Queue{ch: ch}
}

// TryPop returns the next recipient, or false once the queue is drained.
func (q *Queue) TryPop() (string, bool) {
	r, ok := <-q.ch
	return r, ok
}

// Len reports how many recipients have not been handed out yet.
func (q *Queue) Len() int { return len(q.ch) }

package engine

import "sync"

// queue is an unbounded multi-producer report queue. push never blocks on
// the consumer; drain takes whatever is queued at the moment of the call.
type queue struct {
	mu    sync.Mutex
	items []Report
}

func (q *queue) push(r Report) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
}

func (q *queue) drain() []Report {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	return items
}

package engine

// pendingQueue is the FIFO of analyses waiting for a processing slot.
//
// The queue is bounded by the orchestrator (QueueLimit), not here.
// It is not safe for concurrent use: every call happens under
// Orchestrator.mu.
type pendingQueue struct {
	items []*analysis
}

// newPendingQueue creates an empty queue.
func newPendingQueue() *pendingQueue {
	return &pendingQueue{
		items: make([]*analysis, 0, 16),
	}
}

// Enqueue adds an analysis to the back of the queue.
func (q *pendingQueue) Enqueue(a *analysis) {
	q.items = append(q.items, a)
}

// TryDequeue removes and returns the front analysis.
// Returns (nil, false) if the queue is empty.
func (q *pendingQueue) TryDequeue() (*analysis, bool) {
	if len(q.items) == 0 {
		return nil, false
	}

	a := q.items[0]

	// Nil out the slot so the backing array does not retain the analysis
	// (and its text) after it leaves the queue.
	q.items[0] = nil

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return a, true
}

// Remove deletes the analysis with the given id, preserving the order of
// the rest. Returns false if it is not queued.
func (q *pendingQueue) Remove(id string) bool {
	for i, a := range q.items {
		if a.id == id {
			copy(q.items[i:], q.items[i+1:])
			q.items[len(q.items)-1] = nil
			q.items = q.items[:len(q.items)-1]
			return true
		}
	}
	return false
}

// Drain removes and returns every queued analysis in FIFO order.
func (q *pendingQueue) Drain() []*analysis {
	out := make([]*analysis, len(q.items))
	copy(out, q.items)
	clear(q.items)
	q.items = q.items[:0]
	return out
}

// Position returns the 0-based queue position of id, or -1.
func (q *pendingQueue) Position(id string) int {
	for i, a := range q.items {
		if a.id == id {
			return i
		}
	}
	return -1
}

// Len returns the current queue length.
func (q *pendingQueue) Len() int {
	return len(q.items)
}

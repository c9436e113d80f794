package scheduler

// responseQueue is the bounded, duplicate-free queue of chats awaiting a
// response. New arrivals go to the front: freshly active chats win over
// chats that have been waiting.
type responseQueue struct {
	ids []string
	max int
}

func newResponseQueue(max int) *responseQueue {
	return &responseQueue{max: max}
}

// pushFront removes id from its current position, if any, and inserts it at
// the front. It reports false when the queue is full and the id was not
// already queued; such admissions are silently dropped by the caller.
func (q *responseQueue) pushFront(id string) bool {
	q.remove(id)
	if len(q.ids) >= q.max {
		return false
	}
	q.ids = append([]string{id}, q.ids...)
	return true
}

// popFront removes and returns the front id.
func (q *responseQueue) popFront() (string, bool) {
	if len(q.ids) == 0 {
		return "", false
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, true
}

func (q *responseQueue) remove(id string) {
	for i, existing := range q.ids {
		if existing == id {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			return
		}
	}
}

func (q *responseQueue) len() int {
	return len(q.ids)
}

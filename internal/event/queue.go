package event

// queue is a bounded FIFO ring of events. It is not safe for concurrent use;
// the bus guards it with its queue lock.
type queue struct {
	items    []Event
	head     int
	size     int
	capacity int
}

func newQueue(capacity int) *queue {
	if capacity < 1 {
		capacity = 1
	}
	return &queue{
		items:    make([]Event, capacity),
		capacity: capacity,
	}
}

// push appends ev and reports false when the queue is full.
func (q *queue) push(ev Event) bool {
	if q.size >= q.capacity {
		return false
	}
	q.items[(q.head+q.size)%q.capacity] = ev
	q.size++
	return true
}

// pop removes and returns the oldest event.
func (q *queue) pop() (Event, bool) {
	if q.size == 0 {
		return Event{}, false
	}
	ev := q.items[q.head]
	q.items[q.head] = Event{}
	q.head = (q.head + 1) % q.capacity
	q.size--
	return ev, true
}

func (q *queue) len() int {
	return q.size
}

// clear discards all events and returns how many were discarded.
func (q *queue) clear() int {
	n := q.size
	for i := range q.items {
		q.items[i] = Event{}
	}
	q.head = 0
	q.size = 0
	return n
}

// resize changes the capacity. When shrinking below the current length the
// newest events are discarded; the number discarded is returned.
func (q *queue) resize(capacity int) int {
	if capacity < 1 {
		capacity = 1
	}

	keep := min(q.size, capacity)
	items := make([]Event, capacity)
	for i := 0; i < keep; i++ {
		items[i] = q.items[(q.head+i)%q.capacity]
	}

	dropped := q.size - keep
	q.items = items
	q.head = 0
	q.size = keep
	q.capacity = capacity
	return dropped
}

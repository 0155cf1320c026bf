package frontier

import "sort"

// entry is a queued value with its ordering key.
type entry[T any] struct {
	value    T
	priority int
	seq      uint64
}

// PriorityQueue pops the highest priority first and, among equal priorities,
// the earliest pushed. One FIFO bucket per distinct priority keeps ties stable.
type PriorityQueue[T any] struct {
	buckets    map[int]*FIFOQueue[entry[T]]
	priorities []int // descending, one per non-empty bucket
	size       int
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{buckets: make(map[int]*FIFOQueue[entry[T]])}
}

func (q *PriorityQueue[T]) push(e entry[T]) {
	bucket, ok := q.buckets[e.priority]
	if !ok {
		bucket = NewFIFOQueue[entry[T]]()
		q.buckets[e.priority] = bucket
		i := sort.Search(len(q.priorities), func(i int) bool { return q.priorities[i] <= e.priority })
		q.priorities = append(q.priorities, 0)
		copy(q.priorities[i+1:], q.priorities[i:])
		q.priorities[i] = e.priority
	}
	bucket.Enqueue(e)
	q.size++
}

// Push enqueues value with an ordering sequence; callers supply a
// monotonically increasing seq.
func (q *PriorityQueue[T]) Push(value T, priority int, seq uint64) {
	q.push(entry[T]{value: value, priority: priority, seq: seq})
}

func (q *PriorityQueue[T]) peek() (entry[T], bool) {
	if q.size == 0 {
		return entry[T]{}, false
	}
	return q.buckets[q.priorities[0]].Peek()
}

func (q *PriorityQueue[T]) Pop() (T, bool) {
	var zero T
	if q.size == 0 {
		return zero, false
	}
	top := q.priorities[0]
	bucket := q.buckets[top]
	e, _ := bucket.Dequeue()
	if bucket.Size() == 0 {
		delete(q.buckets, top)
		q.priorities = q.priorities[1:]
	}
	q.size--
	return e.value, true
}

func (q *PriorityQueue[T]) Len() int {
	return q.size
}

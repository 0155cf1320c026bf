package frontier

type FIFOQueue[T any] struct {
	items []T
}

func NewFIFOQueue[T any]() *FIFOQueue[T] {
	return &FIFOQueue[T]{}
}

func (f *FIFOQueue[T]) Enqueue(item T) {
	f.items = append(f.items, item)
}

// return false on the second returned values if queue is empty
func (f *FIFOQueue[T]) Dequeue() (T, bool) {
	var zero T
	if len(f.items) == 0 {
		return zero, false
	}
	first := f.items[0]
	// release the reference held by the backing array
	f.items[0] = zero
	f.items = f.items[1:]
	if len(f.items) == 0 {
		f.items = nil
	}
	return first, true
}

func (f *FIFOQueue[T]) Peek() (T, bool) {
	var zero T
	if len(f.items) == 0 {
		return zero, false
	}
	return f.items[0], true
}

// RemoveFunc deletes the first item matching fn, keeping the order of the rest.
func (f *FIFOQueue[T]) RemoveFunc(fn func(T) bool) (T, bool) {
	var zero T
	for i, item := range f.items {
		if fn(item) {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return item, true
		}
	}
	return zero, false
}

// Drain empties the queue and returns its items in order.
func (f *FIFOQueue[T]) Drain() []T {
	out := f.items
	f.items = nil
	return out
}

func (f *FIFOQueue[T]) Size() int {
	return len(f.items)
}

package queue

// Queue is a generic FIFO backed by a slice. It is not safe for
// concurrent use. The zero value is empty and ready to use.
type Queue[T any] struct {
	items []T
	head  int
}

// New creates a queue holding the seed items in order.
func New[T any](seed ...T) *Queue[T] {
	q := &Queue[T]{}
	q.items = append(q.items, seed...)
	return q
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.items) - q.head
}

// Push appends an item to the tail of the queue.
func (q *Queue[T]) Push(value T) {
	q.items = append(q.items, value)
}

// Pop removes and returns the item at the head of the queue.
// Returns false when the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if q.head >= len(q.items) {
		return zero, false
	}

	item := q.items[q.head]
	q.items[q.head] = zero // release the reference
	q.head++

	// reclaim the slice once everything popped, so a long walk does
	// not hold on to every directory name it ever visited
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return item, true
}

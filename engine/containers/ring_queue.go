package containers

// RingQueue is a fixed-capacity FIFO. It never grows: Push on a full queue
// fails instead of reallocating.
type RingQueue[T any] struct {
	data       []T
	readIndex  int
	writeIndex int
	count      int
}

// Create a new RingQueue able to hold size elements.
func NewRingQueue[T any](size int) *RingQueue[T] {
	if size <= 0 {
		panic("containers: ring queue size must be positive")
	}
	return &RingQueue[T]{
		data: make([]T, size),
	}
}

// Push adds an element to the back of the queue. It returns false when the queue is full.
func (rq *RingQueue[T]) Push(value T) bool {
	if rq.IsFull() {
		return false
	}
	rq.data[rq.writeIndex] = value
	rq.writeIndex = (rq.writeIndex + 1) % len(rq.data)
	rq.count++
	return true
}

// Pop removes and returns the front element of the queue.
func (rq *RingQueue[T]) Pop() (T, bool) {
	var zero T
	if rq.IsEmpty() {
		return zero, false
	}
	value := rq.data[rq.readIndex]
	rq.data[rq.readIndex] = zero
	rq.readIndex = (rq.readIndex + 1) % len(rq.data)
	rq.count--
	return value, true
}

// Peek returns the front element without removing it
func (rq *RingQueue[T]) Peek() (T, bool) {
	if rq.IsEmpty() {
		var zero T
		return zero, false
	}
	return rq.data[rq.readIndex], true
}

// Values returns a copy of the queued elements, front first.
func (rq *RingQueue[T]) Values() []T {
	out := make([]T, 0, rq.count)
	for i := 0; i < rq.count; i++ {
		out = append(out, rq.data[(rq.readIndex+i)%len(rq.data)])
	}
	return out
}

func (rq *RingQueue[T]) Len() int {
	return rq.count
}

func (rq *RingQueue[T]) Cap() int {
	return len(rq.data)
}

func (rq *RingQueue[T]) IsEmpty() bool {
	return rq.count == 0
}

func (rq *RingQueue[T]) IsFull() bool {
	return rq.count == len(rq.data)
}

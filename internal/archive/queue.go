package archive

import "sync"

// queue is an unbounded FIFO that doubles its ring when it reaches 70% full.
// Push never blocks, which keeps event handlers cheap.
type queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []T
	head   int
	count  int
	closed bool
	grows  int

	want    int // items the waiter needs before it is signalled
	wakeups int
}

func newQueue[T any](capacity int) *queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &queue[T]{buf: make([]T, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends item. Returns false once the queue is closed.
func (q *queue[T]) push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := len(q.buf) * 70 / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold {
		q.grow()
	}

	q.buf[(q.head+q.count)%len(q.buf)] = item
	q.count++
	if q.count >= q.want {
		q.cond.Signal()
	}
	return true
}

// wait blocks until at least n items are queued or the queue is closed, and
// reports whether the queue is still open. Pushes that leave fewer than n items
// do not wake the waiter. One waiter at a time.
func (q *queue[T]) wait(n int) bool {
	if n < 1 {
		n = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.want = n
	for q.count < n && !q.closed {
		q.cond.Wait()
		q.wakeups++
	}
	q.want = 0
	return !q.closed
}

// drain removes up to max items (all when max <= 0) in FIFO order.
func (q *queue[T]) drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	var zero T
	for i := range out {
		out[i] = q.buf[q.head]
		q.buf[q.head] = zero
		q.head = (q.head + 1) % len(q.buf)
	}
	q.count -= n
	return out
}

func (q *queue[T]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// grow doubles the ring, unwrapping it to start at index 0. Caller holds mu.
func (q *queue[T]) grow() {
	next := make([]T, len(q.buf)*2)
	for i := 0; i < q.count; i++ {
		next[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = next
	q.head = 0
	q.grows++
}

// Package ring provides a fixed-capacity FIFO buffer.
package ring

// Buffer is a fixed-capacity FIFO buffer. Once full, each Push evicts the oldest
// item. Buffer is not safe for concurrent use; callers hold their own lock.
type Buffer[T any] struct {
	items []T
	head  int // next write position
	size  int
}

// New creates a buffer with the given capacity. Non-positive capacities become 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends item. When the buffer was full it returns the evicted item and true.
func (b *Buffer[T]) Push(item T) (T, bool) {
	var evicted T
	full := b.size == len(b.items)
	if full {
		evicted = b.items[b.head]
	}

	b.items[b.head] = item
	b.head = (b.head + 1) % len(b.items)
	if !full {
		b.size++
	}
	return evicted, full
}

// Items returns a copy of the contents, oldest first.
func (b *Buffer[T]) Items() []T {
	out := make([]T, b.size)
	start := (b.head - b.size + len(b.items)) % len(b.items)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(start+i)%len(b.items)]
	}
	return out
}

// Newest returns up to n items, newest first. n <= 0 returns everything.
func (b *Buffer[T]) Newest(n int) []T {
	if n <= 0 || n > b.size {
		n = b.size
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = b.items[(b.head-1-i+len(b.items))%len(b.items)]
	}
	return out
}

// Len returns the number of items held.
func (b *Buffer[T]) Len() int {
	return b.size
}

// Cap returns the capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Clear removes all items.
func (b *Buffer[T]) Clear() {
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.size = 0
}

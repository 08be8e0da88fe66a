package ids

import "sync"

// Allocator hands out agent ids. It is owned by the scene layer and passed to
// cluster construction; there is no package-level counter.
type Allocator struct {
	mu   sync.Mutex
	next int
}

func NewAllocator(start int) *Allocator {
	return &Allocator{next: start}
}

// Next returns the id the next Reserve call will start at.
func (a *Allocator) Next() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

// Reserve returns n contiguous ids and advances the counter past them.
func (a *Allocator) Reserve(n int) []int {
	if n <= 0 {
		return []int{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]int, n)
	for i := range out {
		out[i] = a.next + i
	}
	a.next += n
	return out
}

// Claim marks externally supplied ids as used so later reservations never
// collide with them.
func (a *Allocator) Claim(ids ...int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		if id >= a.next {
			a.next = id + 1
		}
	}
}

package searcher

// Candidate is a node paired with its distance to the current target.
type Candidate struct {
	Node     uint32
	Distance float32
}

// Less orders candidates by distance, then node id, so equal distances
// resolve the same way on every run.
func (c Candidate) Less(o Candidate) bool {
	if c.Distance != o.Distance {
		return c.Distance < o.Distance
	}
	return c.Node < o.Node
}

// Heap is a value-based binary heap of candidates.
// A min heap pops the closest candidate first; a max heap pops the farthest.
type Heap struct {
	max   bool
	items []Candidate
}

// NewHeap creates an empty heap.
func NewHeap(maxHeap bool, capacity int) *Heap {
	return &Heap{max: maxHeap, items: make([]Candidate, 0, capacity)}
}

// Reset clears the heap for reuse.
func (h *Heap) Reset() { h.items = h.items[:0] }

// Len returns the number of elements in the heap.
func (h *Heap) Len() int { return len(h.items) }

// Top returns the root element.
func (h *Heap) Top() (Candidate, bool) {
	if len(h.items) == 0 {
		return Candidate{}, false
	}
	return h.items[0], true
}

// Push inserts c.
func (h *Heap) Push(c Candidate) {
	h.items = append(h.items, c)
	h.up(len(h.items) - 1)
}

// PushBounded inserts c into a max heap holding at most capacity items,
// evicting the farthest one when c is closer. It reports whether c was kept.
func (h *Heap) PushBounded(c Candidate, capacity int) bool {
	if len(h.items) < capacity {
		h.Push(c)
		return true
	}
	if capacity == 0 || !c.Less(h.items[0]) {
		return false
	}
	h.items[0] = c
	h.down(0)
	return true
}

// Pop removes and returns the root element.
func (h *Heap) Pop() (Candidate, bool) {
	n := len(h.items)
	if n == 0 {
		return Candidate{}, false
	}
	top := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.down(0)
	}
	return top, true
}

// Sorted drains the heap into a slice ordered closest first.
func (h *Heap) Sorted() []Candidate {
	out := make([]Candidate, len(h.items))
	if h.max {
		for i := len(out) - 1; i >= 0; i-- {
			out[i], _ = h.Pop()
		}
	} else {
		for i := range out {
			out[i], _ = h.Pop()
		}
	}
	return out
}

func (h *Heap) less(i, j int) bool {
	if h.max {
		return h.items[j].Less(h.items[i])
	}
	return h.items[i].Less(h.items[j])
}

func (h *Heap) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *Heap) down(i int) {
	n := len(h.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		child := left
		if right := left + 1; right < n && h.less(right, left) {
			child = right
		}
		if !h.less(child, i) {
			break
		}
		h.items[i], h.items[child] = h.items[child], h.items[i]
		i = child
	}
}

package jobs

import "container/heap"

// entry is one scheduled occurrence of a job.
type entry struct {
	due   uint64
	seq   uint64 // insertion order; breaks ties between equal due-times
	job   *Job
	index int
}

// dueHeap implements heap.Interface ordered by (due, seq).
type dueHeap []*entry

func (h dueHeap) Len() int { return len(h) }

func (h dueHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}

func (h dueHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

// Push is called by heap.Push; use pushEntry.
func (h *dueHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

// Pop is called by heap.Pop; use popEntry.
func (h *dueHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

func (h dueHeap) peek() *entry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

func pushEntry(h *dueHeap, e *entry) { heap.Push(h, e) }

func popEntry(h *dueHeap) *entry { return heap.Pop(h).(*entry) }

func removeEntry(h *dueHeap, e *entry) {
	if e.index < 0 || e.index >= len(*h) {
		return
	}
	heap.Remove(h, e.index)
}

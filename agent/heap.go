package agent

import "container/heap"

// taskHeap is a container/heap.Interface ordering tasks by priority
// descending, then by arrival sequence ascending, matching spec §4.3's
// "priority desc, enqueue time asc" ordering with ties broken by arrival.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*Task))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// removeByID drops the task with the given ID from the heap, if present,
// preserving heap invariants. Used for interrupting a still-queued task.
func (h *taskHeap) removeByID(id string) {
	for i, t := range *h {
		if t.ID == id {
			heap.Remove(h, i)
			return
		}
	}
}

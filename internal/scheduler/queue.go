package scheduler

import (
	"container/heap"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// queueItem is one entry in the due-time priority queue. The queue
// tolerates duplicate (dueTime, address) entries for the same vault:
// rather than locating and updating an existing heap entry in place when
// a vault's schedule changes, the scheduler just pushes a new one and
// reconciles duplicates at pop time against the processing set.
type queueItem struct {
	dueTime time.Time
	address common.Address
	index   int
}

type dueTimeHeap []*queueItem

func (h dueTimeHeap) Len() int { return len(h) }
func (h dueTimeHeap) Less(i, j int) bool { return h[i].dueTime.Before(h[j].dueTime) }
func (h dueTimeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *dueTimeHeap) Push(x interface{}) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *dueTimeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// dueQueue wraps the raw heap with the push/pop vocabulary the scheduler
// uses.
type dueQueue struct {
	h dueTimeHeap
}

func newDueQueue() *dueQueue {
	dq := &dueQueue{h: dueTimeHeap{}}
	heap.Init(&dq.h)
	return dq
}

func (q *dueQueue) push(addr common.Address, due time.Time) {
	heap.Push(&q.h, &queueItem{dueTime: due, address: addr})
}

func (q *dueQueue) len() int { return q.h.Len() }

// peekDue returns the due time of the earliest-scheduled item without
// removing it, and false if the queue is empty.
func (q *dueQueue) peekDue() (time.Time, bool) {
	if q.h.Len() == 0 {
		return time.Time{}, false
	}
	return q.h[0].dueTime, true
}

// pop removes and returns the earliest-scheduled item.
func (q *dueQueue) pop() *queueItem {
	return heap.Pop(&q.h).(*queueItem)
}

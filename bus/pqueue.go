package bus

import (
	"container/heap"

	"github.com/agentmesh/amcp/event"
)

// queuedEvent is one pending delivery awaiting a subscription's worker.
// seq breaks priority ties in FIFO (publish) order.
type queuedEvent struct {
	evt     event.Event
	seq     uint64
	attempt int
}

func (q *queuedEvent) priority() int {
	return q.evt.DeliveryOptions().Priority
}

// priorityQueue is a max-heap on priority, broken by ascending seq
// (earlier publishes dequeue first among equal priorities).
type priorityQueue []*queuedEvent

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority() != pq[j].priority() {
		return pq[i].priority() > pq[j].priority()
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x any) {
	*pq = append(*pq, x.(*queuedEvent))
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

var _ heap.Interface = (*priorityQueue)(nil)

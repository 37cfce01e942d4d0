package gena

import "container/heap"

// renewalQueue is a container/heap min-heap of subscriptions ordered
// by expiry, so the scheduler can always ask for the next one due
// without scanning the whole registry.
type renewalQueue []*Subscription

func (q renewalQueue) Len() int { return len(q) }

func (q renewalQueue) Less(i, j int) bool {
	return q[i].Expiry().Before(q[j].Expiry())
}

func (q renewalQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].heapIndex = i
	q[j].heapIndex = j
}

func (q *renewalQueue) Push(x interface{}) {
	sub := x.(*Subscription)
	sub.heapIndex = len(*q)
	*q = append(*q, sub)
}

func (q *renewalQueue) Pop() interface{} {
	old := *q
	n := len(old)
	sub := old[n-1]
	old[n-1] = nil
	sub.heapIndex = -1
	*q = old[:n-1]
	return sub
}

// heapPush pushes sub onto the queue, maintaining the heap invariant.
func heapPush(q *renewalQueue, sub *Subscription) {
	heap.Push(q, sub)
}

// peek returns the subscription with the earliest expiry without
// removing it, or nil if the queue is empty.
func (q renewalQueue) peek() *Subscription {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

// remove drops sub from the queue if present. A no-op if sub was
// never pushed or was already popped.
func (q *renewalQueue) remove(sub *Subscription) {
	if sub.heapIndex < 0 || sub.heapIndex >= len(*q) || (*q)[sub.heapIndex] != sub {
		return
	}
	heap.Remove(q, sub.heapIndex)
}

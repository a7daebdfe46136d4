package mempool

import (
	"container/heap"
	"math/big"
	"time"

	"github.com/NethermindEth/katana-go/core/felt"
)

// poolTx is a transaction held by the pool.
type poolTx struct {
	txn      BroadcastedTransaction
	sender   felt.Felt
	nonce    uint64
	priority *big.Int
	addedAt  time.Time
	// seq breaks ties between transactions added within the same clock tick.
	seq uint64
	// index in the ready heap, -1 while the transaction is parked.
	index int
}

// readyHeap holds the next drainable transaction of every sender, highest priority first and oldest first
// among equal priorities.
type readyHeap []*poolTx

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	if cmp := h[i].priority.Cmp(h[j].priority); cmp != 0 {
		return cmp > 0
	}
	if !h[i].addedAt.Equal(h[j].addedAt) {
		return h[i].addedAt.Before(h[j].addedAt)
	}
	return h[i].seq < h[j].seq
}

func (h readyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *readyHeap) Push(x any) {
	tx := x.(*poolTx)
	tx.index = len(*h)
	*h = append(*h, tx)
}

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	tx := old[n-1]
	old[n-1] = nil
	tx.index = -1
	*h = old[:n-1]
	return tx
}

// senderQueue holds the transactions of one account by nonce. next is the nonce the account expects
// next: the transaction with that nonce is in the ready heap, the ones above it are parked until the
// gap below them closes.
type senderQueue struct {
	next uint64
	txs  map[uint64]*poolTx
}

func newSenderQueue(next uint64) *senderQueue {
	return &senderQueue{next: next, txs: make(map[uint64]*poolTx)}
}

func (q *senderQueue) head() *poolTx {
	return q.txs[q.next]
}

// promote moves the head of q into the ready heap, if it is not there yet.
func (q *senderQueue) promote(ready *readyHeap) {
	if head := q.head(); head != nil && head.index < 0 {
		heap.Push(ready, head)
	}
}

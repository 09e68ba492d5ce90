// Package mempool maintains the pending transaction queue for the chain.
// Unlike a fee market, the queue is strictly FIFO: transactions are batched
// into proposals in arrival order.
package mempool

import (
	"sync"

	"github.com/slushlabs/snowledger/foundation/chain/storage"
)

// Mempool represents the pending transaction queue in arrival order with a
// secondary index on the transaction's unique key.
type Mempool struct {
	mu    sync.RWMutex
	queue []storage.SignedTx
	index map[string]struct{}
}

// New constructs a new mempool.
func New() *Mempool {
	return &Mempool{
		index: make(map[string]struct{}),
	}
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.queue)
}

// Upsert adds a transaction to the back of the queue. A transaction already
// present keeps its original queue position.
func (mp *Mempool) Upsert(tx storage.SignedTx) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	key := tx.UniqueKey()
	if _, exists := mp.index[key]; exists {
		return len(mp.queue)
	}

	mp.queue = append(mp.queue, tx)
	mp.index[key] = struct{}{}

	return len(mp.queue)
}

// Checkout removes and returns up to howMany transactions from the front of
// the queue for inclusion in a proposal. Pass -1 for all transactions.
func (mp *Mempool) Checkout(howMany int) []storage.SignedTx {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if howMany == -1 || howMany > len(mp.queue) {
		howMany = len(mp.queue)
	}

	trans := make([]storage.SignedTx, howMany)
	copy(trans, mp.queue[:howMany])

	for _, tx := range trans {
		delete(mp.index, tx.UniqueKey())
	}
	mp.queue = append([]storage.SignedTx{}, mp.queue[howMany:]...)

	return trans
}

// Restore returns previously checked out transactions to the front of the
// queue, preserving their original relative order. This is the network
// stall path: a failed proposal is not a rejection, so its transactions
// must be retried.
func (mp *Mempool) Restore(trans []storage.SignedTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	restore := make([]storage.SignedTx, 0, len(trans))
	for _, tx := range trans {
		key := tx.UniqueKey()
		if _, exists := mp.index[key]; exists {
			continue
		}
		restore = append(restore, tx)
		mp.index[key] = struct{}{}
	}

	mp.queue = append(restore, mp.queue...)
}

// Delete removes a transaction from the queue.
func (mp *Mempool) Delete(tx storage.SignedTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	key := tx.UniqueKey()
	if _, exists := mp.index[key]; !exists {
		return
	}

	for i, qtx := range mp.queue {
		if qtx.UniqueKey() == key {
			mp.queue = append(mp.queue[:i], mp.queue[i+1:]...)
			break
		}
	}
	delete(mp.index, key)
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.queue = nil
	mp.index = make(map[string]struct{})
}

// Copy returns a copy of the queue in arrival order.
func (mp *Mempool) Copy() []storage.SignedTx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	trans := make([]storage.SignedTx, len(mp.queue))
	copy(trans, mp.queue)

	return trans
}

// Package ledger is the core API for the append-only chain of committed
// blocks and implements the business rules for admitting transactions,
// batching proposals and maintaining account balances.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/slushlabs/snowledger/foundation/chain/genesis"
	"github.com/slushlabs/snowledger/foundation/chain/mempool"
	"github.com/slushlabs/snowledger/foundation/chain/storage"
)

// Set of error variables for ledger operations.
var (
	ErrInvalidTransaction    = errors.New("invalid transaction")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrNotEnoughTransactions = errors.New("not enough transactions in the pending queue")
)

// EventHandler defines a function that is called when events
// occur in the processing of the ledger.
type EventHandler func(v string, args ...any)

// =============================================================================

// Ledger manages the committed block sequence, the pending transaction
// queue and the derived account balances. Committed blocks are never
// removed or reordered.
type Ledger struct {
	mu sync.RWMutex

	genesis     genesis.Genesis
	blocks      []storage.Block
	latestBlock storage.Block
	accounts    map[storage.AccountID]storage.Account
	mempool     *mempool.Mempool
	evHandler   EventHandler
}

// New constructs a new ledger seeded with the genesis issuance.
func New(gen genesis.Genesis, evHandler EventHandler) (*Ledger, error) {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	accounts := make(map[storage.AccountID]storage.Account)
	for accountStr, balance := range gen.Balances {
		accountID, err := storage.ToAccountID(accountStr)
		if err != nil {
			return nil, err
		}
		accounts[accountID] = storage.Account{AccountID: accountID, Balance: balance}
	}

	l := Ledger{
		genesis:   gen,
		accounts:  accounts,
		mempool:   mempool.New(),
		evHandler: ev,
	}

	return &l, nil
}

// Genesis returns a copy of the genesis information.
func (l *Ledger) Genesis() genesis.Genesis {
	return l.genesis
}

// GenesisBlock returns the bootstrap block that seeds every node's local
// sequence. Its predecessor is "none" (the zero fingerprint) and it carries
// no transactions: the genesis issuance is modeled by the genesis file.
func (l *Ledger) GenesisBlock() storage.Block {
	return storage.Block{
		Header: storage.BlockHeader{
			TimeStamp: uint64(l.genesis.Date.Unix()),
		},
	}
}

// LatestBlock returns a copy of the current tip.
func (l *Ledger) LatestBlock() storage.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.latestBlock
}

// Height returns the number of committed blocks.
func (l *Ledger) Height() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.blocks)
}

// Blocks returns a copy of the committed block sequence.
func (l *Ledger) Blocks() []storage.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	blocks := make([]storage.Block, len(l.blocks))
	copy(blocks, l.blocks)

	return blocks
}

// PendingCount returns the number of transactions waiting for a proposal.
func (l *Ledger) PendingCount() int {
	return l.mempool.Count()
}

// PendingTransactions returns a copy of the pending queue in arrival order.
func (l *Ledger) PendingTransactions() []storage.SignedTx {
	return l.mempool.Copy()
}

// =============================================================================

// SubmitTx validates a signed transaction and places it on the pending
// queue. The signature is the authorization token: a transaction that does
// not verify is never admitted. A bad transaction never aborts others
// already in the queue.
func (l *Ledger) SubmitTx(signedTx storage.SignedTx) error {
	if err := signedTx.Validate(l.genesis.ChainID); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTransaction, err)
	}

	from, err := signedTx.FromAccount()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTransaction, err)
	}

	if signedTx.Value == 0 {
		return fmt.Errorf("%w: transaction value must be greater than zero", ErrInvalidTransaction)
	}

	if from == signedTx.ToID {
		return fmt.Errorf("%w: sending money to yourself, from %s, to %s", ErrInvalidTransaction, from, signedTx.ToID)
	}

	// Check the sender's last known balance snapshot. The authoritative
	// check happens again when the containing block is committed.
	l.mu.RLock()
	balance := l.accounts[from].Balance
	l.mu.RUnlock()

	if signedTx.Value > balance {
		return fmt.Errorf("%w: %s has a balance of %d, needed %d", ErrInsufficientBalance, from, balance, signedTx.Value)
	}

	count := l.mempool.Upsert(signedTx)
	l.evHandler("ledger: SubmitTx: tx[%s] accepted: pending[%d]", signedTx, count)

	return nil
}

// ProposeBlock batches up to maxPerBlock pending transactions in FIFO order
// into a block referencing the current tip as its predecessor. The
// transactions are checked out of the pending queue: a commit finishes
// them, a discard drops them, a restore returns them for retry.
func (l *Ledger) ProposeBlock(maxPerBlock int) (storage.Block, error) {
	trans := l.mempool.Checkout(maxPerBlock)
	if len(trans) == 0 {
		return storage.Block{}, ErrNotEnoughTransactions
	}

	l.mu.RLock()
	tip := l.latestBlock
	l.mu.RUnlock()

	block, err := storage.NewBlock(tip, trans)
	if err != nil {
		l.mempool.Restore(trans)
		return storage.Block{}, err
	}

	l.evHandler("ledger: ProposeBlock: blk[%s]: number[%d]: txs[%d]", block.Hash(), block.Header.Number, len(trans))

	return block, nil
}

// Commit appends an accepted block to the committed sequence and applies
// its transactions to the account balances. A transaction that fails the
// accounting checks is skipped without aborting the rest of the block.
func (l *Ledger) Commit(block storage.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if block.Header.Number > 0 {
		if err := block.ValidateBlock(l.latestBlock, l.evHandler); err != nil {
			return err
		}
	}

	for _, tx := range block.Trans {
		if err := applyTransaction(l.accounts, tx); err != nil {
			l.evHandler("ledger: Commit: blk[%d]: tx[%s]: skipped: %s", block.Header.Number, tx, err)
		}
	}

	l.blocks = append(l.blocks, block)
	l.latestBlock = block

	// A block admitted by a different policy may carry transactions that
	// are still sitting in the pending queue.
	for _, tx := range block.Trans {
		l.mempool.Delete(tx)
	}

	l.evHandler("ledger: Commit: blk[%s]: number[%d]: height[%d]", block.Hash(), block.Header.Number, len(l.blocks))

	return nil
}

// Discard drops a rejected block. Its transactions are not retried: a
// clean majority rejection is non-recoverable by design, which guarantees
// forward progress for the rest of the queue.
func (l *Ledger) Discard(block storage.Block) {
	l.evHandler("ledger: Discard: blk[%s]: txs[%d] dropped", block.Hash(), len(block.Trans))
}

// Restore returns a proposed block's transactions to the front of the
// pending queue. This is the stall path, distinguishable from a rejection:
// the network could not reach a decision, so the transactions are retried.
func (l *Ledger) Restore(block storage.Block) {
	l.mempool.Restore(block.Trans)
	l.evHandler("ledger: Restore: blk[%s]: txs[%d] returned to pending queue", block.Hash(), len(block.Trans))
}

// =============================================================================

// BalanceOf computes an account balance by replaying every transaction in
// every committed block in sequence order over the genesis issuance. This
// is O(chain length x transactions) and exists as the authoritative answer
// the incremental cache is checked against.
func (l *Ledger) BalanceOf(accountID storage.AccountID) uint64 {
	l.mu.RLock()
	blocks := make([]storage.Block, len(l.blocks))
	copy(blocks, l.blocks)
	l.mu.RUnlock()

	return Replay(l.genesis, blocks)[accountID].Balance
}

// Replay computes the account set produced by replaying the specified block
// sequence over the genesis issuance. It shares the transaction application
// logic with the commit path so replay and the incremental cache agree.
func Replay(gen genesis.Genesis, blocks []storage.Block) map[storage.AccountID]storage.Account {
	accounts := make(map[storage.AccountID]storage.Account)
	for accountStr, balance := range gen.Balances {
		id := storage.AccountID(accountStr)
		accounts[id] = storage.Account{AccountID: id, Balance: balance}
	}

	for _, block := range blocks {
		for _, tx := range block.Trans {
			if err := applyTransaction(accounts, tx); err != nil {
				continue
			}
		}
	}

	return accounts
}

// CopyAccounts returns a copy of the incrementally maintained account
// balances.
func (l *Ledger) CopyAccounts() map[storage.AccountID]storage.Account {
	l.mu.RLock()
	defer l.mu.RUnlock()

	accounts := make(map[storage.AccountID]storage.Account, len(l.accounts))
	for accountID, account := range l.accounts {
		accounts[accountID] = account
	}

	return accounts
}

// =============================================================================

// applyTransaction performs the business logic for applying a transaction
// to a set of accounts.
func applyTransaction(accounts map[storage.AccountID]storage.Account, tx storage.SignedTx) error {
	fromID, err := tx.FromAccount()
	if err != nil {
		return fmt.Errorf("invalid signature, %s", err)
	}

	if fromID == tx.ToID {
		return fmt.Errorf("sending money to yourself, from %s, to %s", fromID, tx.ToID)
	}

	if tx.Value == 0 {
		return fmt.Errorf("zero value transaction")
	}

	from := accounts[fromID]
	to := accounts[tx.ToID]

	if tx.Value > from.Balance {
		return fmt.Errorf("%s has an insufficient balance", fromID)
	}

	from.Balance -= tx.Value
	to.Balance += tx.Value
	to.AccountID = tx.ToID

	accounts[fromID] = from
	accounts[tx.ToID] = to

	return nil
}

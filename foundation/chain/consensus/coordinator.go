package consensus

import (
	"context"
	"fmt"
	"sync"

	"github.com/slushlabs/snowledger/foundation/chain/ledger"
	"github.com/slushlabs/snowledger/foundation/chain/storage"
)

// Decision is the network-level outcome for a proposed block.
type Decision int

// The two possible network decisions.
const (
	Rejected Decision = iota
	Accepted
)

// String implements the fmt.Stringer interface for logging.
func (d Decision) String() string {
	if d == Accepted {
		return "accepted"
	}
	return "rejected"
}

// =============================================================================

// Config represents the configuration required to construct a coordinator.
type Config struct {
	Network   *Network
	Ledger    *ledger.Ledger
	Engine    *Engine
	EvHandler EventHandler
}

// Coordinator runs the consensus engine across every node for a proposed
// block and aggregates the per-node outcomes into a network decision.
// Proposals are decided one block at a time: the coordinator serializes
// decisions so ledger mutation never overlaps active sampling rounds for
// the same block.
type Coordinator struct {
	mu sync.Mutex

	network   *Network
	ledger    *ledger.Ledger
	engine    *Engine
	evHandler EventHandler
}

// NewCoordinator constructs a coordinator for driving network decisions.
func NewCoordinator(cfg Config) *Coordinator {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	return &Coordinator{
		network:   cfg.Network,
		ledger:    cfg.Ledger,
		engine:    cfg.Engine,
		evHandler: ev,
	}
}

// Bootstrap force-accepts the genesis block on every node without running
// consensus. This deterministically seeds the network and is a documented
// shortcut for the bootstrap block only, never a general rule.
func (c *Coordinator) Bootstrap() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	genesisBlock := c.ledger.GenesisBlock()

	c.evHandler("coordinator: Bootstrap: genesis blk[%s]: force-accepting on all nodes", genesisBlock.Hash())

	return c.commit(genesisBlock)
}

// Propose batches pending transactions into a block, drives the POW
// admission gate when the network has a mining node and the genesis sets a
// difficulty, and runs the network decision for the result. Mining is
// bounded by the same context as the decision: a canceled search is the
// stall path and the transactions go back to the pending queue.
func (c *Coordinator) Propose(ctx context.Context, maxPerBlock int) (storage.Block, Decision, error) {
	block, err := c.ledger.ProposeBlock(maxPerBlock)
	if err != nil {
		return storage.Block{}, Rejected, err
	}

	difficulty := c.ledger.Genesis().Difficulty
	if miners := c.network.Miners(); len(miners) > 0 && difficulty > 0 {
		mined, err := storage.POW(ctx, miners[0].AccountID, difficulty, c.ledger.LatestBlock(), block.Trans, c.evHandler)
		if err != nil {
			c.evHandler("coordinator: Propose: blk[%s]: mining stopped: %s", block.Hash(), err)
			c.ledger.Restore(block)
			return storage.Block{}, Rejected, fmt.Errorf("%w: %s", ErrNetworkStall, err)
		}
		block = mined
	}

	decision, err := c.Decide(ctx, block)
	return block, decision, err
}

// Decide runs consensus for the proposed block across all nodes and
// returns the aggregate decision. The context bounds the whole decision:
// when it expires before the nodes finish, ErrNetworkStall is returned and
// the block's transactions go back to the pending queue, a path callers
// can distinguish from a clean rejection, which discards them.
func (c *Coordinator) Decide(ctx context.Context, block storage.Block) (Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The bootstrap block never runs consensus.
	if block.Header.Number == 0 {
		if err := c.commit(block); err != nil {
			return Rejected, err
		}
		return Accepted, nil
	}

	nodes := c.network.Validators()

	// Per-node participation for the same block is independent: nodes
	// only read each other through the oracle. Run them in parallel, one
	// goroutine per node, and join before aggregating.
	outcomes := make([]Opinion, len(nodes))
	errs := make([]error, len(nodes))

	var wg sync.WaitGroup
	wg.Add(len(nodes))

	for i, node := range nodes {
		go func(i int, node *Node) {
			defer wg.Done()
			outcomes[i], errs[i] = c.engine.Participate(ctx, node, block)
		}(i, node)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			c.evHandler("coordinator: Decide: blk[%s]: STALLED: %s", block.Hash(), err)
			c.ledger.Restore(block)
			return Rejected, ErrNetworkStall
		}
	}

	var accepts int
	for _, outcome := range outcomes {
		if outcome == Accept {
			accepts++
		}
	}
	rejects := len(nodes) - accepts

	c.evHandler("coordinator: Decide: blk[%s]: %d accept, %d reject", block.Hash(), accepts, rejects)

	// Strict majority. A tie rejects, the fixed deterministic tie-break.
	if accepts <= rejects {
		c.ledger.Discard(block)
		return Rejected, nil
	}

	if err := c.commit(block); err != nil {
		return Rejected, err
	}

	return Accepted, nil
}

// commit applies an accepted block to the shared ledger and appends it to
// every node's local sequence that does not have it yet.
func (c *Coordinator) commit(block storage.Block) error {
	if err := c.ledger.Commit(block); err != nil {
		return err
	}

	for _, node := range c.network.Nodes() {
		node.AppendBlock(block)
	}

	return nil
}

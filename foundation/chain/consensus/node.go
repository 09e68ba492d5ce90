package consensus

import (
	"sync"

	"github.com/slushlabs/snowledger/foundation/chain/genesis"
	"github.com/slushlabs/snowledger/foundation/chain/ledger"
	"github.com/slushlabs/snowledger/foundation/chain/storage"
)

// Node represents one participant in the network. A node owns its local
// view of the committed sequence, its set of finalized fingerprints and its
// per-block consensus states. Other nodes never mutate a node's state
// structurally: they query opinions through the oracle, which synchronizes
// on the owner's lock.
type Node struct {
	AccountID   storage.AccountID
	CanMine     bool // Node may drive the POW admission gate.
	CanValidate bool // Node participates in sampling consensus.

	mu        sync.Mutex
	chain     []storage.Block
	appended  map[string]struct{}
	finalized map[string]struct{}
	states    map[string]*State
}

// NewNode constructs a node that participates in sampling consensus.
func NewNode(accountID storage.AccountID) *Node {
	return &Node{
		AccountID:   accountID,
		CanValidate: true,
		appended:    make(map[string]struct{}),
		finalized:   make(map[string]struct{}),
		states:      make(map[string]*State),
	}
}

// AppendBlock adds an accepted block to the node's local sequence and marks
// its fingerprint finalized. Appending is idempotent. The appended set is
// tracked apart from the finalized set: a node may have finalized a
// fingerprint during its own participation before the network commit
// reaches it.
func (n *Node) AppendBlock(block storage.Block) {
	n.mu.Lock()
	defer n.mu.Unlock()

	fingerprint := block.Hash()
	if _, exists := n.appended[fingerprint]; exists {
		return
	}

	n.chain = append(n.chain, block)
	n.appended[fingerprint] = struct{}{}
	n.finalized[fingerprint] = struct{}{}
}

// HasFinalized reports whether the fingerprint is in the node's finalized set.
func (n *Node) HasFinalized(fingerprint string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	_, exists := n.finalized[fingerprint]
	return exists
}

// Chain returns a copy of the node's local committed sequence.
func (n *Node) Chain() []storage.Block {
	n.mu.Lock()
	defer n.mu.Unlock()

	chain := make([]storage.Block, len(n.chain))
	copy(chain, n.chain)

	return chain
}

// Height returns the length of the node's local sequence.
func (n *Node) Height() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.chain)
}

// Balance derives the node's balance by replaying its local finalized
// sequence over the genesis issuance. The balance is never stored
// authoritatively on the node.
func (n *Node) Balance(gen genesis.Genesis) uint64 {
	return ledger.Replay(gen, n.Chain())[n.AccountID].Balance
}

// SetState installs a consensus state for the specified fingerprint. This
// exists for the driver and tests to seed a node's initial opinion, for
// example from local block validation.
func (n *Node) SetState(fingerprint string, state State) {
	n.mu.Lock()
	defer n.mu.Unlock()

	s := state
	n.states[fingerprint] = &s
}

// StateOf returns a copy of the node's consensus state for the fingerprint.
func (n *Node) StateOf(fingerprint string) (State, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	state, exists := n.states[fingerprint]
	if !exists {
		return State{}, false
	}

	return *state, true
}

// =============================================================================

// Network is the explicit aggregate owning the collection of nodes. It
// replaces any ambient global registry: the coordinator and sampler are
// handed a Network by reference.
type Network struct {
	mu    sync.RWMutex
	nodes []*Node
}

// NewNetwork constructs a network from the specified nodes.
func NewNetwork(nodes ...*Node) *Network {
	return &Network{
		nodes: nodes,
	}
}

// AddNode adds a node to the network.
func (net *Network) AddNode(node *Node) {
	net.mu.Lock()
	defer net.mu.Unlock()

	net.nodes = append(net.nodes, node)
}

// Nodes returns a copy of the node collection.
func (net *Network) Nodes() []*Node {
	net.mu.RLock()
	defer net.mu.RUnlock()

	nodes := make([]*Node, len(net.nodes))
	copy(nodes, net.nodes)

	return nodes
}

// Validators returns a copy of the node collection filtered to the nodes
// that participate in sampling consensus.
func (net *Network) Validators() []*Node {
	net.mu.RLock()
	defer net.mu.RUnlock()

	var nodes []*Node
	for _, node := range net.nodes {
		if node.CanValidate {
			nodes = append(nodes, node)
		}
	}

	return nodes
}

// Miners returns a copy of the node collection filtered to the nodes that
// may drive the POW admission gate.
func (net *Network) Miners() []*Node {
	net.mu.RLock()
	defer net.mu.RUnlock()

	var nodes []*Node
	for _, node := range net.nodes {
		if node.CanMine {
			nodes = append(nodes, node)
		}
	}

	return nodes
}

// Size returns the number of nodes in the network.
func (net *Network) Size() int {
	net.mu.RLock()
	defer net.mu.RUnlock()

	return len(net.nodes)
}

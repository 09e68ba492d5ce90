package consensus

import (
	"math/rand"
	"sync"

	"github.com/slushlabs/snowledger/foundation/chain/signature"
	"github.com/slushlabs/snowledger/foundation/chain/storage"
)

// InitialOpinionFunc synthesizes a first opinion for a block a peer has
// never seen. The driver can install a validation-based function here; the
// default is a fair coin flip, with bootstrap blocks biased 9:1 toward
// acceptance so the network can seed itself.
type InitialOpinionFunc func(block storage.Block, bootstrap bool) Opinion

// Oracle answers what a peer currently believes about a block. Its one side
// effect, caching a synthesized opinion on the queried peer, is the only
// cross-node write in the protocol and happens under the peer's own lock,
// so repeated queries are stable and concurrent queriers cannot race.
type Oracle struct {
	initial InitialOpinionFunc

	mu  sync.Mutex
	rng *rand.Rand
}

// NewOracle constructs an oracle with the default synthesized opinions.
// The random source is owned by the oracle and must not be shared with
// other components: the oracle's lock only covers its own use.
func NewOracle(rng *rand.Rand) *Oracle {
	o := Oracle{
		rng: rng,
	}
	o.initial = o.defaultInitialOpinion

	return &o
}

// NewOracleWithInitialOpinion constructs an oracle that synthesizes first
// opinions with the specified function.
func NewOracleWithInitialOpinion(initial InitialOpinionFunc) *Oracle {
	return &Oracle{
		initial: initial,
	}
}

// OpinionOf returns the specified peer's current belief about the block.
// Resolution order: a finalized fingerprint is an acceptance by
// construction (a rejected block is never added to the finalized set); an
// in-progress consensus state answers with its current preference; a
// never-seen block gets a synthesized opinion that is persisted on the peer
// before returning.
func (o *Oracle) OpinionOf(peer *Node, block storage.Block) Opinion {
	fingerprint := block.Hash()

	peer.mu.Lock()
	defer peer.mu.Unlock()

	if _, exists := peer.finalized[fingerprint]; exists {
		return Accept
	}

	if state, exists := peer.states[fingerprint]; exists {
		return state.Preference
	}

	bootstrap := block.Header.PrevBlockHash == signature.ZeroHash
	opinion := o.initial(block, bootstrap)

	peer.states[fingerprint] = &State{Preference: opinion}

	return opinion
}

// defaultInitialOpinion flips a fair coin for a never-seen block and a 9:1
// accept-biased coin for a bootstrap block.
func (o *Oracle) defaultInitialOpinion(block storage.Block, bootstrap bool) Opinion {
	o.mu.Lock()
	n := o.rng.Intn(10)
	o.mu.Unlock()

	if bootstrap {
		if n < 9 {
			return Accept
		}
		return Reject
	}

	if n < 5 {
		return Accept
	}
	return Reject
}

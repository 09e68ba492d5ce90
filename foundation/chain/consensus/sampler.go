package consensus

import (
	"math/rand"
	"sync"
)

// Sampler represents the behavior required to select peers for an opinion
// query round.
type Sampler interface {
	Sample(self *Node, k int) []*Node
}

// UniformSampler selects k distinct peers uniformly at random without
// replacement, excluding the querying node. When k exceeds the number of
// available peers the sample is clamped to every available peer; this is
// the documented contract rather than an error, so small networks still
// make progress. No ordering is guaranteed on the returned set.
type UniformSampler struct {
	network *Network

	mu  sync.Mutex
	rng *rand.Rand
}

// NewUniformSampler constructs a sampler over the specified network. The
// random source is owned by the sampler and guarded for concurrent use by
// the per-node consensus goroutines.
func NewUniformSampler(network *Network, rng *rand.Rand) *UniformSampler {
	return &UniformSampler{
		network: network,
		rng:     rng,
	}
}

// Sample implements the Sampler interface.
func (us *UniformSampler) Sample(self *Node, k int) []*Node {
	var peers []*Node
	for _, node := range us.network.Validators() {
		if node != self {
			peers = append(peers, node)
		}
	}

	if k > len(peers) {
		k = len(peers)
	}

	us.mu.Lock()
	us.rng.Shuffle(len(peers), func(i, j int) {
		peers[i], peers[j] = peers[j], peers[i]
	})
	us.mu.Unlock()

	return peers[:k]
}

package consensus_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/slushlabs/snowledger/foundation/chain/consensus"
	"github.com/slushlabs/snowledger/foundation/chain/storage"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// newNetwork constructs a network of the specified size with synthetic
// account identities.
func newNetwork(size int) *consensus.Network {
	network := consensus.NewNetwork()
	for i := 0; i < size; i++ {
		network.AddNode(consensus.NewNode(storage.AccountID(fmt.Sprintf("0x%040d", i))))
	}

	return network
}

// opinionated returns an oracle that synthesizes the same first opinion for
// every never-seen block.
func opinionated(opinion consensus.Opinion) *consensus.Oracle {
	return consensus.NewOracleWithInitialOpinion(func(block storage.Block, bootstrap bool) consensus.Opinion {
		return opinion
	})
}

func testBlock(t *testing.T, number uint64) storage.Block {
	t.Helper()

	prev := storage.Block{}
	prev.Header.Number = number - 1

	block, err := storage.NewBlock(prev, nil)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a block: %v", failed, err)
	}

	return block
}

func TestFinalizationIsIdempotent(t *testing.T) {
	params := consensus.Params{
		SampleSize:          3,
		QuorumThreshold:     2,
		DecisionThreshold:   1,
		ConfidenceThreshold: 1,
	}

	type table struct {
		name    string
		opinion consensus.Opinion
	}

	tt := []table{
		{name: "accept", opinion: consensus.Accept},
		{name: "reject", opinion: consensus.Reject},
	}

	t.Log("Given the need to validate a finalized block replays the same answer.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen the network unanimously synthesizes %s.", testID, tst.opinion)
			{
				f := func(t *testing.T) {
					network := newNetwork(6)
					if err := params.Validate(network.Size()); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould have valid parameters: %v", failed, testID, err)
					}

					sampler := consensus.NewUniformSampler(network, rand.New(rand.NewSource(1)))
					engine := consensus.NewEngine(params, sampler, opinionated(tst.opinion), nil)

					block := testBlock(t, 1)
					node := network.Nodes()[0]

					opinion, err := engine.Participate(context.Background(), node, block)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to participate: %v", failed, testID, err)
					}
					if opinion != tst.opinion {
						t.Fatalf("\t%s\tTest %d:\tShould finalize %s, got %s.", failed, testID, tst.opinion, opinion)
					}
					t.Logf("\t%s\tTest %d:\tShould finalize %s.", success, testID, tst.opinion)

					state, exists := node.StateOf(block.Hash())
					if !exists || !state.Finalized {
						t.Fatalf("\t%s\tTest %d:\tShould have a finalized state.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould have a finalized state.", success, testID)

					if node.HasFinalized(block.Hash()) != (tst.opinion == consensus.Accept) {
						t.Fatalf("\t%s\tTest %d:\tShould only add accepted fingerprints to the finalized set.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould only add accepted fingerprints to the finalized set.", success, testID)

					again, err := engine.Participate(context.Background(), node, block)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to participate again: %v", failed, testID, err)
					}
					if again != tst.opinion {
						t.Fatalf("\t%s\tTest %d:\tShould replay the finalized answer, got %s.", failed, testID, again)
					}
					t.Logf("\t%s\tTest %d:\tShould replay the finalized answer without re-running any phase.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func TestSnowflakeResetOnFlip(t *testing.T) {
	t.Log("Given the need to validate a lost round resets the consecutive counter to one.")
	{
		t.Log("\tTest 0:\tWhen a node starts accept against a unanimous reject network.")
		{
			params := consensus.Params{
				SampleSize:          3,
				QuorumThreshold:     2,
				DecisionThreshold:   2,
				ConfidenceThreshold: 1,
			}

			network := newNetwork(6)
			if err := params.Validate(network.Size()); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould have valid parameters: %v", failed, err)
			}

			block := testBlock(t, 1)
			nodes := network.Nodes()
			node := nodes[0]

			// Seed the participant with an accept opinion and every peer
			// with reject, so the first snowflake round flips the
			// participant and the second confirms the new preference.
			node.SetState(block.Hash(), consensus.State{Preference: consensus.Accept})
			for _, peer := range nodes[1:] {
				peer.SetState(block.Hash(), consensus.State{Preference: consensus.Reject})
			}

			sampler := consensus.NewUniformSampler(network, rand.New(rand.NewSource(1)))
			engine := consensus.NewEngine(params, sampler, opinionated(consensus.Reject), nil)

			opinion, err := engine.Participate(context.Background(), node, block)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to participate: %v", failed, err)
			}
			if opinion != consensus.Reject {
				t.Fatalf("\t%s\tTest 0:\tShould converge to the network's preference, got %s.", failed, opinion)
			}
			t.Logf("\t%s\tTest 0:\tShould converge to the network's preference.", success)

			state, _ := node.StateOf(block.Hash())
			if state.ConsecutiveCount != 2 {
				t.Logf("\t%s\tTest 0:\tgot: %d", failed, state.ConsecutiveCount)
				t.Logf("\t%s\tTest 0:\texp: %d", failed, 2)
				t.Fatalf("\t%s\tTest 0:\tShould count the flipping round as the first agreement.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould count the flipping round as the first agreement.", success)

			if state.Tally[consensus.Reject] != 1 || state.Confidence != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould accumulate the snowball tallies, tally %d confidence %d.", failed, state.Tally[consensus.Reject], state.Confidence)
			}
			t.Logf("\t%s\tTest 0:\tShould accumulate the snowball tallies.", success)
		}
	}
}

func TestConcurrentParticipation(t *testing.T) {
	t.Log("Given the need to validate every node can participate at the same time.")
	{
		t.Log("\tTest 0:\tWhen all nodes sample and synthesize opinions concurrently.")
		{
			params := consensus.Params{
				SampleSize:          5,
				QuorumThreshold:     3,
				DecisionThreshold:   1,
				ConfidenceThreshold: 3,
			}

			network := newNetwork(10)
			if err := params.Validate(network.Size()); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould have valid parameters: %v", failed, err)
			}

			// The production wiring: the sampler and the oracle each own
			// their generator.
			sampler := consensus.NewUniformSampler(network, rand.New(rand.NewSource(1)))
			oracle := consensus.NewOracle(rand.New(rand.NewSource(2)))
			engine := consensus.NewEngine(params, sampler, oracle, nil)

			block := testBlock(t, 1)
			nodes := network.Nodes()

			errs := make([]error, len(nodes))

			var wg sync.WaitGroup
			wg.Add(len(nodes))

			for i, node := range nodes {
				go func(i int, node *consensus.Node) {
					defer wg.Done()
					_, errs[i] = engine.Participate(context.Background(), node, block)
				}(i, node)
			}

			wg.Wait()

			for i, err := range errs {
				if err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould complete participation on node %d: %v", failed, i, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould complete participation on every node.", success)

			for i, node := range nodes {
				state, exists := node.StateOf(block.Hash())
				if !exists || !state.Finalized {
					t.Fatalf("\t%s\tTest 0:\tShould finalize a state on node %d.", failed, i)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould finalize a state on every node.", success)
		}
	}
}

func TestStallOnExpiredContext(t *testing.T) {
	t.Log("Given the need to validate an expired context stalls participation.")
	{
		t.Log("\tTest 0:\tWhen participating with a canceled context.")
		{
			params := consensus.Params{
				SampleSize:          3,
				QuorumThreshold:     2,
				DecisionThreshold:   1,
				ConfidenceThreshold: 1,
			}

			network := newNetwork(6)
			sampler := consensus.NewUniformSampler(network, rand.New(rand.NewSource(1)))
			engine := consensus.NewEngine(params, sampler, opinionated(consensus.Accept), nil)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			block := testBlock(t, 1)
			if _, err := engine.Participate(ctx, network.Nodes()[0], block); !errors.Is(err, consensus.ErrNetworkStall) {
				t.Fatalf("\t%s\tTest 0:\tShould return the stall error, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould return the stall error.", success)
		}
	}
}

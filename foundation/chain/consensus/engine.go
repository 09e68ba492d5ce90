// Package consensus implements the leaderless sampling consensus protocol
// that lets the network converge on a binary accept/reject decision for a
// proposed block. A node moves a block through four phases: slush adopts an
// initial majority, snowflake accumulates consecutive agreement, snowball
// accumulates lifetime tallies and confidence, and avalanche finalizes the
// preference irreversibly.
package consensus

import (
	"context"
	"errors"
	"fmt"

	"github.com/slushlabs/snowledger/foundation/chain/storage"
)

// ErrNetworkStall is returned when the network cannot reach an aggregate
// decision within the outer ceiling. Unlike a clean majority rejection, the
// proposal's transactions are returned to the pending queue.
var ErrNetworkStall = errors.New("network stalled, no decision reached")

// EventHandler defines a function that is called when events occur in the
// processing of consensus rounds.
type EventHandler func(v string, args ...any)

// =============================================================================

// Engine drives one node's participation in consensus for one block. The
// engine itself is stateless: all per-block progress lives in the node's
// consensus states, so one engine value is shared by every node.
type Engine struct {
	params    Params
	sampler   Sampler
	oracle    *Oracle
	evHandler EventHandler
}

// NewEngine constructs a consensus engine. The parameters must have been
// validated against the network size.
func NewEngine(params Params, sampler Sampler, oracle *Oracle, evHandler EventHandler) *Engine {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	return &Engine{
		params:    params,
		sampler:   sampler,
		oracle:    oracle,
		evHandler: ev,
	}
}

// Participate runs the specified node through the consensus phases for the
// block and returns the node's finalized opinion. Once a node has finalized
// a block, repeated calls return the stored result without re-running any
// phase.
func (e *Engine) Participate(ctx context.Context, node *Node, block storage.Block) (Opinion, error) {
	fingerprint := block.Hash()

	// Idempotent short-circuit on any previously finalized result.
	node.mu.Lock()
	if _, exists := node.finalized[fingerprint]; exists {
		node.mu.Unlock()
		return Accept, nil
	}
	if state, exists := node.states[fingerprint]; exists && state.Finalized {
		opinion := state.Preference
		node.mu.Unlock()
		return opinion, nil
	}
	node.mu.Unlock()

	if err := e.slush(ctx, node, block, fingerprint); err != nil {
		return Reject, err
	}

	if err := e.snowflake(ctx, node, block, fingerprint); err != nil {
		return Reject, err
	}

	if err := e.snowball(ctx, node, block, fingerprint); err != nil {
		return Reject, err
	}

	return e.avalanche(node, fingerprint), nil
}

// =============================================================================

// slush runs once per block on first participation: sample k peers, collect
// their opinions and adopt the strict majority as the initial preference.
// A tie adopts reject, a fixed deterministic choice so progress never
// blocks on a coin flip.
func (e *Engine) slush(ctx context.Context, node *Node, block storage.Block, fingerprint string) error {
	node.mu.Lock()
	_, exists := node.states[fingerprint]
	node.mu.Unlock()

	// A peer's oracle query may already have synthesized a state for us.
	// That opinion stands in for the slush result.
	if exists {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s", ErrNetworkStall, err)
	}

	accepts, rejects := e.collect(node, block)
	majority := majorityOf(accepts, rejects)

	e.evHandler("consensus: slush: node[%s]: blk[%.8s]: sampled %d accept, %d reject: adopting %s", node.AccountID, fingerprint[2:], accepts, rejects, majority)

	node.mu.Lock()
	defer node.mu.Unlock()

	// Re-check under the lock in case a querying peer raced us.
	if _, exists := node.states[fingerprint]; !exists {
		node.states[fingerprint] = &State{Preference: majority}
	}

	return nil
}

// snowflake runs repeated sampling rounds accumulating consecutive
// agreement. A round where the quorum backs the current preference
// increments the consecutive counter; any other round resets the counter
// to 1 and overwrites the preference with the sampled majority. The phase
// exits early once the counter reaches beta1. Exhausting the round cap is
// soft degradation: the node proceeds with whatever it currently prefers.
func (e *Engine) snowflake(ctx context.Context, node *Node, block storage.Block, fingerprint string) error {
	rounds, _ := e.params.roundCaps()

	for round := 1; round <= rounds; round++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %s", ErrNetworkStall, err)
		}

		accepts, rejects := e.collect(node, block)
		majority := majorityOf(accepts, rejects)

		node.mu.Lock()
		state := node.states[fingerprint]

		counts := [2]int{rejects, accepts}
		quorum := counts[state.Preference] >= e.params.QuorumThreshold

		if quorum && majority == state.Preference {
			state.ConsecutiveCount++
			e.evHandler("consensus: snowflake: node[%s]: blk[%.8s]: consecutive %d/%d for %s", node.AccountID, fingerprint[2:], state.ConsecutiveCount, e.params.DecisionThreshold, state.Preference)
		} else {
			state.ConsecutiveCount = 1
			state.Preference = majority
			e.evHandler("consensus: snowflake: node[%s]: blk[%.8s]: reset, new preference %s", node.AccountID, fingerprint[2:], majority)
		}

		done := state.ConsecutiveCount >= e.params.DecisionThreshold
		node.mu.Unlock()

		if done {
			return nil
		}
	}

	e.evHandler("consensus: snowflake: node[%s]: blk[%.8s]: round cap reached, proceeding with current preference", node.AccountID, fingerprint[2:])

	return nil
}

// snowball runs repeated sampling rounds accumulating lifetime tallies for
// each opinion: a quorum for an opinion bumps its tally, and the preference
// follows whichever tally leads. Confidence grows by one every round
// regardless of quorum, and the phase exits once confidence reaches beta2.
func (e *Engine) snowball(ctx context.Context, node *Node, block storage.Block, fingerprint string) error {
	_, rounds := e.params.roundCaps()

	for round := 1; round <= rounds; round++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %s", ErrNetworkStall, err)
		}

		accepts, rejects := e.collect(node, block)

		node.mu.Lock()
		state := node.states[fingerprint]

		switch {
		case accepts >= e.params.QuorumThreshold:
			state.Tally[Accept]++
			if state.Tally[Accept] > state.Tally[Reject] {
				state.Preference = Accept
			}

		case rejects >= e.params.QuorumThreshold:
			state.Tally[Reject]++
			if state.Tally[Reject] > state.Tally[Accept] {
				state.Preference = Reject
			}
		}

		state.Confidence++

		e.evHandler("consensus: snowball: node[%s]: blk[%.8s]: tally accept[%d] reject[%d]: confidence %d/%d", node.AccountID, fingerprint[2:], state.Tally[Accept], state.Tally[Reject], state.Confidence, e.params.ConfidenceThreshold)

		done := state.Confidence >= e.params.ConfidenceThreshold
		node.mu.Unlock()

		if done {
			return nil
		}
	}

	e.evHandler("consensus: snowball: node[%s]: blk[%.8s]: round cap reached, proceeding with current state", node.AccountID, fingerprint[2:])

	return nil
}

// avalanche finalizes the node's preference. An accepted fingerprint joins
// the node's finalized set; a rejected one is simply absent from it, while
// the finalized state itself still records the rejection so repeated
// participation replays the same answer.
func (e *Engine) avalanche(node *Node, fingerprint string) Opinion {
	node.mu.Lock()
	defer node.mu.Unlock()

	state := node.states[fingerprint]
	state.Finalized = true

	if state.Preference == Accept {
		node.finalized[fingerprint] = struct{}{}
	}

	e.evHandler("consensus: avalanche: node[%s]: blk[%.8s]: FINALIZED %s", node.AccountID, fingerprint[2:], state.Preference)

	return state.Preference
}

// =============================================================================

// collect samples k peers and gathers their opinions through the oracle.
func (e *Engine) collect(node *Node, block storage.Block) (accepts int, rejects int) {
	for _, peer := range e.sampler.Sample(node, e.params.SampleSize) {
		switch e.oracle.OpinionOf(peer, block) {
		case Accept:
			accepts++
		default:
			rejects++
		}
	}

	return accepts, rejects
}

// majorityOf returns the strict majority opinion of a sample. A tie is
// reject, the fixed deterministic tie-break.
func majorityOf(accepts int, rejects int) Opinion {
	if accepts > rejects {
		return Accept
	}
	return Reject
}

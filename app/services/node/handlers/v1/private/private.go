// Package private maintains the group of handlers for operator access.
package private

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/slushlabs/snowledger/business/sys/metrics"
	"github.com/slushlabs/snowledger/business/web/errs"
	"github.com/slushlabs/snowledger/foundation/chain/consensus"
	"github.com/slushlabs/snowledger/foundation/chain/ledger"
	"github.com/slushlabs/snowledger/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of operator endpoints.
type Handlers struct {
	Log           *zap.SugaredLogger
	Ledger        *ledger.Ledger
	Network       *consensus.Network
	Coord         *consensus.Coordinator
	Params        consensus.Params
	DecideTimeout time.Duration
}

// Status returns the current status of the node network.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latestBlock := h.Ledger.LatestBlock()

	status := struct {
		LatestBlockHash   string           `json:"latest_block_hash"`
		LatestBlockNumber uint64           `json:"latest_block_number"`
		Height            int              `json:"height"`
		Uncommitted       int              `json:"uncommitted"`
		NetworkSize       int              `json:"network_size"`
		Validators        int              `json:"validators"`
		Miners            int              `json:"miners"`
		Params            consensus.Params `json:"params"`
	}{
		LatestBlockHash:   latestBlock.Hash(),
		LatestBlockNumber: latestBlock.Header.Number,
		Height:            h.Ledger.Height(),
		Uncommitted:       h.Ledger.PendingCount(),
		NetworkSize:       h.Network.Size(),
		Validators:        len(h.Network.Validators()),
		Miners:            len(h.Network.Miners()),
		Params:            h.Params,
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// ProposeBlock batches pending transactions into a block, drives the POW
// admission gate when a mining node exists, and runs the network decision.
func (h Handlers) ProposeBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// The outer ceiling on mining plus the whole decision. Hitting it is
	// the stall path: the block's transactions go back to the pending
	// queue.
	ctx, cancel := context.WithTimeout(ctx, h.DecideTimeout)
	defer cancel()

	block, decision, err := h.Coord.Propose(ctx, int(h.Ledger.Genesis().TransPerBlock))
	if err != nil {
		if errors.Is(err, ledger.ErrNotEnoughTransactions) {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		if errors.Is(err, consensus.ErrNetworkStall) {
			return errs.NewTrusted(err, http.StatusGatewayTimeout)
		}
		return err
	}

	metrics.AddDecisions(ctx)

	h.Log.Infow("propose block", "traceid", v.TraceID, "block", block.Hash(), "number", block.Header.Number, "txs", len(block.Trans), "decision", decision)

	resp := struct {
		Decision string `json:"decision"`
		Block    string `json:"block"`
		Number   uint64 `json:"number"`
		Txs      int    `json:"txs"`
	}{
		Decision: decision.String(),
		Block:    block.Hash(),
		Number:   block.Header.Number,
		Txs:      len(block.Trans),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ConsensusStates returns every node's consensus state for the specified
// block fingerprint.
func (h Handlers) ConsensusStates(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	fingerprint := web.Param(r, "fingerprint")

	type nodeState struct {
		Node             string `json:"node"`
		Preference       string `json:"preference"`
		ConsecutiveCount int    `json:"consecutive_count"`
		TallyAccept      int    `json:"tally_accept"`
		TallyReject      int    `json:"tally_reject"`
		Confidence       int    `json:"confidence"`
		Finalized        bool   `json:"finalized"`
	}

	var states []nodeState
	for _, node := range h.Network.Nodes() {
		state, exists := node.StateOf(fingerprint)
		if !exists {
			continue
		}

		states = append(states, nodeState{
			Node:             string(node.AccountID),
			Preference:       state.Preference.String(),
			ConsecutiveCount: state.ConsecutiveCount,
			TallyAccept:      state.Tally[consensus.Accept],
			TallyReject:      state.Tally[consensus.Reject],
			Confidence:       state.Confidence,
			Finalized:        state.Finalized,
		})
	}

	if len(states) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, states, http.StatusOK)
}

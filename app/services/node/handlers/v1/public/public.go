// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/slushlabs/snowledger/business/web/errs"
	"github.com/slushlabs/snowledger/foundation/chain/ledger"
	"github.com/slushlabs/snowledger/foundation/chain/storage"
	"github.com/slushlabs/snowledger/foundation/events"
	"github.com/slushlabs/snowledger/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public endpoints.
type Handlers struct {
	Log    *zap.SugaredLogger
	Ledger *ledger.Ledger
	WS     websocket.Upgrader
	Evts   *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitWalletTransaction adds a new user transaction to the pending queue.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var signedTx storage.SignedTx
	if err := web.Decode(r, &signedTx); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	h.Log.Infow("add user tran", "traceid", v.TraceID, "from:nonce", signedTx, "to", signedTx.ToID, "value", signedTx.Value)
	if err := h.Ledger.SubmitTx(signedTx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to pending queue",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.Ledger.Genesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Mempool returns the set of transactions waiting for a proposal.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pending := h.Ledger.PendingTransactions()

	trans := make([]tx, len(pending))
	for i, tran := range pending {
		account, _ := tran.FromAccount()

		trans[i] = tx{
			FromAccount: account,
			ToAccount:   tran.ToID,
			ChainID:     tran.ChainID,
			Nonce:       tran.Nonce,
			Value:       tran.Value,
			Sig:         tran.SignatureString(),
		}
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Accounts returns the current balances for all accounts.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	account := web.Param(r, "account")

	ledgerAccounts := h.Ledger.CopyAccounts()
	if account != "" {
		accountID, err := storage.ToAccountID(account)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		ledgerAccounts = map[storage.AccountID]storage.Account{
			accountID: ledgerAccounts[accountID],
		}
	}

	acts := make([]actInfo, 0, len(ledgerAccounts))
	for accountID, act := range ledgerAccounts {
		acts = append(acts, actInfo{
			Account: accountID,
			Balance: act.Balance,
		})
	}

	ai := accountsInfo{
		LatestBlock: h.Ledger.LatestBlock().Hash(),
		Uncommitted: h.Ledger.PendingCount(),
		Accounts:    acts,
	}

	return web.Respond(ctx, w, ai, http.StatusOK)
}

// Blocks returns the committed block sequence and the details of each block.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	ledgerBlocks := h.Ledger.Blocks()
	if len(ledgerBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(ledgerBlocks))
	for j, blk := range ledgerBlocks {
		trans := make([]tx, len(blk.Trans))
		for i, tran := range blk.Trans {
			account, _ := tran.FromAccount()
			trans[i] = tx{
				FromAccount: account,
				ToAccount:   tran.ToID,
				ChainID:     tran.ChainID,
				Nonce:       tran.Nonce,
				Value:       tran.Value,
				Sig:         tran.SignatureString(),
			}
		}

		blocks[j] = block{
			Hash:          blk.Hash(),
			PrevBlockHash: blk.Header.PrevBlockHash,
			Number:        blk.Header.Number,
			TransRoot:     blk.Header.TransRoot,
			TimeStamp:     blk.Header.TimeStamp,
			Transactions:  trans,
		}
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

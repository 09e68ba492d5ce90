// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"
	"time"

	"github.com/slushlabs/snowledger/app/services/node/handlers/v1/private"
	"github.com/slushlabs/snowledger/app/services/node/handlers/v1/public"
	"github.com/slushlabs/snowledger/foundation/chain/consensus"
	"github.com/slushlabs/snowledger/foundation/chain/ledger"
	"github.com/slushlabs/snowledger/foundation/events"
	"github.com/slushlabs/snowledger/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log           *zap.SugaredLogger
	Ledger        *ledger.Ledger
	Network       *consensus.Network
	Coord         *consensus.Coordinator
	Params        consensus.Params
	DecideTimeout time.Duration
	Evts          *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:    cfg.Log,
		Ledger: cfg.Ledger,
		Evts:   cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis/list", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/accounts/list", pbl.Accounts)
	app.Handle(http.MethodGet, version, "/accounts/list/:account", pbl.Accounts)
	app.Handle(http.MethodGet, version, "/blocks/list", pbl.Blocks)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list", pbl.Mempool)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitWalletTransaction)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:           cfg.Log,
		Ledger:        cfg.Ledger,
		Network:       cfg.Network,
		Coord:         cfg.Coord,
		Params:        cfg.Params,
		DecideTimeout: cfg.DecideTimeout,
	}

	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodPost, version, "/node/block/propose", prv.ProposeBlock)
	app.Handle(http.MethodGet, version, "/node/consensus/list/:fingerprint", prv.ConsensusStates)
}

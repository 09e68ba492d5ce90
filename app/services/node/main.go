package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/slushlabs/snowledger/app/services/node/handlers"
	"github.com/slushlabs/snowledger/foundation/chain/consensus"
	"github.com/slushlabs/snowledger/foundation/chain/genesis"
	"github.com/slushlabs/snowledger/foundation/chain/ledger"
	"github.com/slushlabs/snowledger/foundation/chain/storage"
	"github.com/slushlabs/snowledger/foundation/events"
	"github.com/slushlabs/snowledger/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
		}
		Network struct {
			GenesisPath   string        `conf:"default:zblock/genesis.json"`
			Nodes         int           `conf:"default:10"`
			DecideTimeout time.Duration `conf:"default:10s"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Consensus Network Support

	// The genesis file carries the initial issuance and the sampling
	// parameters every node runs the protocol with.
	gen, err := genesis.Load(cfg.Network.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis file: %w", err)
	}

	// The chain packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	// The shared ledger holds the committed sequence, the pending queue
	// and the derived balances.
	lgr, err := ledger.New(gen, ev)
	if err != nil {
		return fmt.Errorf("unable to construct ledger: %w", err)
	}

	// Construct the simulated node collection. The genesis accounts are
	// reused as node identities so balances can be derived for each node.
	network := consensus.NewNetwork()
	var i int
	for accountStr := range gen.Balances {
		if i >= cfg.Network.Nodes {
			break
		}
		accountID, err := storage.ToAccountID(accountStr)
		if err != nil {
			return fmt.Errorf("invalid genesis account: %w", err)
		}
		node := consensus.NewNode(accountID)

		// The first node doubles as the block producer for this process.
		if i == 0 {
			node.CanMine = true
		}

		network.AddNode(node)
		i++
	}

	// Validate the sampling parameters against the network size before
	// anything runs. Bad quorum configuration is fatal at startup.
	params := consensus.NewParams(gen)
	if err := params.Validate(len(network.Validators())); err != nil {
		return fmt.Errorf("consensus configuration: %w", err)
	}

	// The sampler and the oracle each own a generator. They lock
	// independently, so handing them one shared source would race during
	// the per-node decision goroutines.
	seed := time.Now().UnixNano()
	sampler := consensus.NewUniformSampler(network, rand.New(rand.NewSource(seed)))
	oracle := consensus.NewOracle(rand.New(rand.NewSource(seed + 1)))
	engine := consensus.NewEngine(params, sampler, oracle, ev)

	coord := consensus.NewCoordinator(consensus.Config{
		Network:   network,
		Ledger:    lgr,
		Engine:    engine,
		EvHandler: ev,
	})

	// Seed every node's local sequence with the genesis block.
	if err := coord.Bootstrap(); err != nil {
		return fmt.Errorf("bootstrapping network: %w", err)
	}

	log.Infow("startup", "status", "network bootstrapped", "nodes", network.Size(),
		"k", params.SampleSize, "alpha", params.QuorumThreshold,
		"beta1", params.DecisionThreshold, "beta2", params.ConfidenceThreshold)

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		Ledger:   lgr,
		Evts:     evts,
	})

	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	privateMux := handlers.PrivateMux(handlers.MuxConfig{
		Shutdown:      shutdown,
		Log:           log,
		Ledger:        lgr,
		Network:       network,
		Coord:         coord,
		Params:        params,
		DecideTimeout: cfg.Network.DecideTimeout,
	})

	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      privateMux,
		ReadTimeout:  cfg.Network.DecideTimeout + cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Network.DecideTimeout + cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancelPrv := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPrv()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown private API started")
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private service gracefully: %w", err)
		}

		// Give outstanding requests a deadline for completion.
		ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPub()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}

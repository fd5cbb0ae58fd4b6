package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/chaos0211/block-dt/app/services/node/handlers"
	"github.com/chaos0211/block-dt/business/sys/metrics"
	"github.com/chaos0211/block-dt/business/sys/publish"
	"github.com/chaos0211/block-dt/foundation/blockchain/balance"
	"github.com/chaos0211/block-dt/foundation/blockchain/genesis"
	"github.com/chaos0211/block-dt/foundation/blockchain/state"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage/cache"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage/memory"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage/sqldb"
	"github.com/chaos0211/block-dt/foundation/blockchain/worker"
	db "github.com/chaos0211/block-dt/foundation/database"
	"github.com/chaos0211/block-dt/foundation/events"
	"github.com/chaos0211/block-dt/foundation/logger"
	"github.com/chaos0211/block-dt/foundation/telemetry"
	"github.com/joho/godotenv"
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

	// Values from a local .env file are loaded into the environment first so
	// they can be overridden by the real environment.
	if err := loadDotEnv(); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:60s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
		}
		DB struct {
			Dialect      string `conf:"default:sqlite"`
			DSN          string `conf:"default:zblock/ledger.db,mask"`
			MaxIdleConns int    `conf:"default:2"`
			MaxOpenConns int    `conf:"default:0"`
		}
		State struct {
			MinerAddress     string        `conf:"default:system_miner"`
			GenesisFile      string        `conf:"default:zblock/genesis.json"`
			AutoMineInterval time.Duration `conf:"default:0s"`
			MaxTransPerBlock int           `conf:"default:0"`
		}
		Cache struct {
			Addr string
			TTL  time.Duration `conf:"default:1h"`
		}
		Kafka struct {
			Brokers []string
			Topic   string `conf:"default:ledger-blocks"`
		}
		Tracing struct {
			Endpoint string
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "block-dt ledger node",
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
	// Tracing Support

	log.Infow("startup", "status", "initializing tracing support", "endpoint", cfg.Tracing.Endpoint)

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "block-dt-node", cfg.Tracing.Endpoint)
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracer(ctx)
	}()

	// =========================================================================
	// Storage Support

	log.Infow("startup", "status", "initializing storage support", "dialect", cfg.DB.Dialect)

	var storer storage.Storer
	switch cfg.DB.Dialect {
	case "memory":
		storer = memory.New()

	default:
		store, err := sqldb.Open(db.Config{
			Dialect:      cfg.DB.Dialect,
			DSN:          cfg.DB.DSN,
			MaxIdleConns: cfg.DB.MaxIdleConns,
			MaxOpenConns: cfg.DB.MaxOpenConns,
		})
		if err != nil {
			return fmt.Errorf("connecting to db: %w", err)
		}
		storer = store
	}

	// =========================================================================
	// Blockchain Support

	// The blockchain packages accept a function of this signature to allow the
	// application to log. For now, these raw messages are sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	gen, err := genesis.Load(cfg.State.GenesisFile)
	if err != nil {
		return fmt.Errorf("loading genesis: %w", err)
	}

	// The balance sheet is rebuilt from the stored chain and then kept up to
	// date as blocks are committed.
	sheet := balance.NewSheet(nil)
	if err := sheet.Load(context.Background(), storer); err != nil {
		return fmt.Errorf("loading balances: %w", err)
	}

	m, err := metrics.New(metrics.NewLedgerCollector(storer, cfg.DB.Dialect))
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	stateCfg := state.Config{
		MinerAddress: cfg.State.MinerAddress,
		Genesis:      gen,
		Storer:       storer,
		Notifiers:    []state.Notifier{sheet, m, evts},
		EvHandler:    ev,
	}

	// The block cache is optional and only used when redis is configured.
	blockCache, err := cache.New(cache.Config{Addr: cfg.Cache.Addr, TTL: cfg.Cache.TTL}, ev)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	if blockCache != nil {
		defer blockCache.Close()
		stateCfg.Cache = blockCache
	}

	// Committed blocks are streamed to kafka when brokers are configured.
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := publish.NewProducer(publish.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			return fmt.Errorf("constructing kafka producer: %w", err)
		}
		defer producer.Close()
		stateCfg.Notifiers = append(stateCfg.Notifiers, producer)
	}

	// The state value represents the blockchain node and manages the blockchain
	// database and provides an API for application support.
	st, err := state.New(stateCfg)
	if err != nil {
		return err
	}
	defer st.Shutdown()

	// The worker mines on a schedule when an interval is configured. The
	// worker will register itself with the state.
	if cfg.State.AutoMineInterval > 0 {
		worker.Run(st, worker.Config{
			Interval:     cfg.State.AutoMineInterval,
			MinerAddress: cfg.State.MinerAddress,
			MaxTrans:     cfg.State.MaxTransPerBlock,
			EvHandler:    ev,
		})
	}

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, st, m)

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

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		Metrics:  m,
		State:    st,
		Sheet:    sheet,
		Evts:     evts,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
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
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}

// loadDotEnv loads the .env file of the working directory when there is one.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(".env")
}

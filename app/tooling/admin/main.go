// This program performs administrative tasks against the ledger storage
// while the node is stopped.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/chaos0211/block-dt/app/tooling/admin/commands"
	"github.com/chaos0211/block-dt/foundation/blockchain/genesis"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage/sqldb"
	db "github.com/chaos0211/block-dt/foundation/database"
	"github.com/chaos0211/block-dt/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		if !errors.Is(err, commands.ErrHelp) {
			log.Errorw("admin", "ERROR", err)
		}
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	cfg := struct {
		conf.Version
		Args conf.Args
		DB   struct {
			Dialect string `conf:"default:sqlite"`
			DSN     string `conf:"default:zblock/ledger.db,mask"`
		}
		Genesis struct {
			File    string        `conf:"default:zblock/genesis.json"`
			Timeout time.Duration `conf:"default:5m"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "block-dt ledger administration",
		},
	}

	const prefix = "ADMIN"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	gen, err := genesis.Load(cfg.Genesis.File)
	if err != nil {
		return fmt.Errorf("loading genesis: %w", err)
	}

	// Opening the store applies any migration that is missing.
	store, err := sqldb.Open(db.Config{
		Dialect:      cfg.DB.Dialect,
		DSN:          cfg.DB.DSN,
		MaxIdleConns: 1,
		MaxOpenConns: 1,
	})
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Genesis.Timeout)
	defer cancel()

	return processCommands(ctx, log, cfg.Args, commands.Env{Storer: store, Genesis: gen, Out: os.Stdout})
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(ctx context.Context, log *zap.SugaredLogger, args conf.Args, env commands.Env) error {
	switch args.Num(0) {
	case "migrate":
		log.Infow("admin", "status", "schema is up to date")

	case "validate":
		if err := commands.Validate(ctx, env); err != nil {
			return fmt.Errorf("validating chain: %w", err)
		}

	case "bals":
		if err := commands.Balances(ctx, env, args.Num(1)); err != nil {
			return fmt.Errorf("getting balances: %w", err)
		}

	case "trans":
		if err := commands.Transaction(ctx, env, args.Num(1)); err != nil {
			return fmt.Errorf("getting transaction: %w", err)
		}

	case "pending":
		if err := commands.Pending(ctx, env); err != nil {
			return fmt.Errorf("listing pool: %w", err)
		}

	default:
		fmt.Fprintln(env.Out, "migrate:  apply the schema migrations")
		fmt.Fprintln(env.Out, "validate: recalculate every block of the chain")
		fmt.Fprintln(env.Out, "bals:     print balances, optionally for one address")
		fmt.Fprintln(env.Out, "trans:    print a transaction by hash")
		fmt.Fprintln(env.Out, "pending:  print the transactions waiting in the pool")
		return commands.ErrHelp
	}

	return nil
}

// Package commands contains the functionality for the set of commands
// currently supported by the admin tool.
package commands

import (
	"errors"
	"io"

	"github.com/chaos0211/block-dt/foundation/blockchain/genesis"
	"github.com/chaos0211/block-dt/foundation/blockchain/state"
	"github.com/chaos0211/block-dt/foundation/blockchain/storage"
)

// ErrHelp is returned when no known command was requested.
var ErrHelp = errors.New("provided help")

// Env holds what every command needs to run.
type Env struct {
	Storer  storage.Storer
	Genesis genesis.Genesis
	Out     io.Writer
}

func (e Env) state() (*state.State, error) {
	return state.New(state.Config{
		Genesis: e.Genesis,
		Storer:  e.Storer,
	})
}

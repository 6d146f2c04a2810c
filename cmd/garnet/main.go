// Command garnet runs and inspects compiled garnet program images.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/chazu/garnet/config"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// errUncaught signals that a report has already been written and the
// process should exit non-zero without printing anything else.
var errUncaught = errors.New("uncaught exception")

type app struct {
	configPath string
	verbose    int
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "garnet",
		Short:         "Run compiled garnet program images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to garnet.toml (default: search from the working directory)")
	root.PersistentFlags().CountVarP(&a.verbose, "verbose", "v", "Increase log verbosity (repeatable)")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newDisasmCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// setup loads the configuration and configures logging.
func (a *app) setup() error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
	} else {
		a.cfg, err = config.FindAndLoad(".")
	}
	if err != nil {
		return err
	}

	verbosity := a.cfg.Logging.Verbosity
	if a.verbose > 0 {
		verbosity = a.verbose
	}
	var path *string
	if p := a.cfg.LogPath(); p != "" {
		path = &p
	}
	commonlog.Configure(verbosity, path)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errUncaught) {
			fmt.Fprintln(os.Stderr, "garnet:", err)
		}
		os.Exit(1)
	}
}

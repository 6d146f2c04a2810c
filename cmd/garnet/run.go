package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chazu/garnet/image"
	"github.com/chazu/garnet/vm"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var profile int
	cmd := &cobra.Command{
		Use:   "run IMAGE",
		Short: "Execute a program image and print the inspected result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], profile)
		},
	}
	cmd.Flags().IntVar(&profile, "profile", 0, "Print the N most called methods to stderr after the run")
	return cmd
}

func (a *app) run(stdout, stderr io.Writer, path string, profile int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}

	opts := a.cfg.VMOptions()
	opts.Stdout = stdout
	if profile > 0 {
		opts.Profiler = vm.NewProfiler()
	}
	m := vm.NewVM(vm.WithOptions(opts))
	if profile > 0 {
		defer m.WriteProfile(stderr, profile)
	}

	irep, err := image.Decode(data, m.Symbols)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	result, err := m.Exec(irep)
	if err != nil {
		var exc *vm.RException
		if !errors.As(err, &exc) {
			return err
		}
		reportException(stderr, exc)
		return errUncaught
	}

	fmt.Fprintln(stdout, m.InspectString(result))
	return nil
}

// reportException writes "Class: message" followed by the backtrace.
func reportException(w io.Writer, exc *vm.RException) {
	fmt.Fprintf(w, "%s: %s\n", exc.ClassName(), exc.MessageString())
	for _, line := range exc.Backtrace {
		fmt.Fprintf(w, "\tfrom %s\n", line)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/chazu/garnet/image"
	"github.com/chazu/garnet/vm"
	"github.com/spf13/cobra"
)

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm IMAGE",
		Short: "Print the disassembly of a program image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("cannot read %s: %w", args[0], err)
			}
			st := vm.NewSymbolTable()
			img, err := image.Unmarshal(data, st)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "image %s sha256:%x\n", img.ID, img.Hash)
			fmt.Fprint(out, vm.Disassemble(img.Root, st))
			return nil
		},
	}
}

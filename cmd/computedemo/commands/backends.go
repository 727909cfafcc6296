package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gogpu/compute/backend"
)

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List compiled-in backends and whether they open a device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, name := range backend.Available() {
				a, err := backend.Get(name)
				if err != nil {
					fmt.Fprintf(out, "%-10s unavailable: %v\n", name, err)
					continue
				}
				limits := a.Limits()
				fmt.Fprintf(out, "%-10s %s (max buffer %d bytes)\n", name, a.Name(), limits.MaxBufferSize)
				a.Destroy()
			}
			return nil
		},
	}
}

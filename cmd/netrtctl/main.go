// Command netrtctl is a small inspection CLI over a netrt build: dump a
// persisted kernel cache's contents, or dump a topology's compiled
// program as a Graphviz DOT graph — the kind of outer tool a runtime
// project ships that a pure algorithms library like the teacher pack
// never needed.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gpudag/netrt/cache"
	"github.com/gpudag/netrt/convert"
	"github.com/gpudag/netrt/program"
	"github.com/gpudag/netrt/sampletopo"
	"github.com/gpudag/netrt/selector"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "netrtctl",
		Short: "Inspect a netrt kernel cache or compiled program",
	}
	root.AddCommand(newCacheInfoCmd())
	root.AddCommand(newTopologyDotCmd())
	return root
}

func newCacheInfoCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "cache-info",
		Short: "Print the number of entries in a persisted kernel cache file",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := cache.Load(cache.BuildID(), path)
			defer store.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "entries: %d\n", store.Len())
			for _, k := range store.Keys() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %x\n", k)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", cache.DefaultFileName, "path to the persisted cache file")
	return cmd
}

func newTopologyDotCmd() *cobra.Command {
	var optimize bool
	cmd := &cobra.Command{
		Use:   "topology-dot",
		Short: "Print the compiled example conv/pool/softmax topology as a Graphviz DOT graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			topo, err := sampletopo.ConvPoolSoftmax()
			if err != nil {
				return err
			}
			book := selector.NewDefaultBook()
			prog, err := program.Build(topo, book, nil, nil, program.WithOutputs("softmax"), program.WithOptimizeData(optimize))
			if err != nil {
				return err
			}
			return convert.WriteDOT(prog, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&optimize, "optimize", true, "run the build with optimize_data enabled")
	return cmd
}

package cmd

import (
	"fmt"

	"github.com/LumeraProtocol/weave/weavenode/packer"
	"github.com/spf13/cobra"
)

// merklizeCmd represents the merklize command
var merklizeCmd = &cobra.Command{
	Use:   "merklize <file>",
	Short: "Chunk a file, validate its proofs and store the transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext("merklize")
		n, err := openNode(ctx, appConfig)
		if err != nil {
			return err
		}
		defer n.Close()

		out := cmd.ErrOrStderr()
		tx, err := n.service.Merklize(ctx, &packer.MerklizeRequest{FilePath: args[0]}, func(ev *packer.Event) error {
			_, err := fmt.Fprintf(out, "[%s] %s\n", ev.Type, ev.Message)
			return err
		})
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), tx.CloneWithNoData())
	},
}

func init() {
	rootCmd.AddCommand(merklizeCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// chunkCmd represents the chunk command
var chunkCmd = &cobra.Command{
	Use:   "chunk <data_root> <index>",
	Short: "Print the upload record of a stored chunk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := parseDataRoot(args[0])
		if err != nil {
			return err
		}
		idx, err := parseIndex(args[1])
		if err != nil {
			return err
		}

		ctx := commandContext("chunk")
		n, err := openNode(ctx, appConfig)
		if err != nil {
			return err
		}
		defer n.Close()

		c, err := n.service.Chunk(ctx, root, idx)
		if err != nil {
			return fmt.Errorf("failed to load chunk: %w", err)
		}
		return writeJSON(cmd.OutOrStdout(), c)
	},
}

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <data_root> [index]",
	Short: "Replay the stored proofs of a transaction against its data root",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := parseDataRoot(args[0])
		if err != nil {
			return err
		}

		ctx := commandContext("verify")
		n, err := openNode(ctx, appConfig)
		if err != nil {
			return err
		}
		defer n.Close()

		if len(args) == 2 {
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			if err := n.service.VerifyChunk(ctx, root, idx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "chunk %d of %s: ok\n", idx, root)
			return nil
		}

		count, err := n.service.VerifyAll(ctx, root)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d chunks of %s: ok\n", count, root)
		return nil
	},
}

var txsLimit int

// txsCmd represents the txs command
var txsCmd = &cobra.Command{
	Use:   "txs",
	Short: "List stored transactions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext("txs")
		n, err := openNode(ctx, appConfig)
		if err != nil {
			return err
		}
		defer n.Close()

		recs, err := n.service.Transactions(ctx, txsLimit)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), recs)
	},
}

func init() {
	txsCmd.Flags().IntVar(&txsLimit, "limit", 20, "maximum number of transactions to list (0 for all)")
	rootCmd.AddCommand(chunkCmd, verifyCmd, txsCmd)
}

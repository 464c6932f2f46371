package cmd

import (
	"fmt"
	"os"

	"github.com/LumeraProtocol/weave/pkg/transaction"
	"github.com/spf13/cobra"
)

var deephashVerify bool

// deephashCmd represents the deephash command
var deephashCmd = &cobra.Command{
	Use:   "deephash <tx.json>",
	Short: "Print the signature digest of a transaction JSON file",
	Args:  cobra.ExactArgs(1),
	Annotations: map[string]string{
		annotationNoConfig: "true",
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read transaction: %w", err)
		}
		tx, err := transaction.Unmarshal(raw)
		if err != nil {
			return err
		}
		digest, err := tx.SignatureData()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), transaction.Base64(digest[:]).String())

		if deephashVerify {
			if err := tx.Verify(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signature: ok")
		}
		return nil
	},
}

func init() {
	deephashCmd.Flags().BoolVar(&deephashVerify, "verify", false, "also verify the signature and id")
	rootCmd.AddCommand(deephashCmd)
}

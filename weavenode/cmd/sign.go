package cmd

import (
	"fmt"
	"strings"

	"github.com/LumeraProtocol/weave/pkg/crypto"
	"github.com/LumeraProtocol/weave/pkg/transaction"
	"github.com/LumeraProtocol/weave/weavenode/packer"
	"github.com/spf13/cobra"
)

var signFlags struct {
	keyFile  string
	target   string
	lastTx   string
	reward   uint64
	quantity uint64
	tags     []string
}

// signCmd represents the sign command
var signCmd = &cobra.Command{
	Use:   "sign <data_root>",
	Short: "Sign a stored transaction with an RSA key",
	Long: `Fill the header of a stored transaction, sign it with RSA-PSS and store
the signed header. The key is read from a PKCS#1 or PKCS#8 PEM file.

Example:
  weave sign <data_root> --key wallet.pem --reward 1000 --tag Content-Type=text/plain`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := parseDataRoot(args[0])
		if err != nil {
			return err
		}
		opts, err := signOptionsFromFlags()
		if err != nil {
			return err
		}

		key, err := crypto.LoadPrivateKeyFile(signFlags.keyFile)
		if err != nil {
			return fmt.Errorf("failed to load key: %w", err)
		}
		provider, err := crypto.NewProvider(key, nil)
		if err != nil {
			return err
		}

		ctx := commandContext("sign")
		n, err := openNode(ctx, appConfig)
		if err != nil {
			return err
		}
		defer n.Close()

		tx, err := n.service.Sign(ctx, root, provider, opts)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), tx)
	},
}

func signOptionsFromFlags() (packer.SignOptions, error) {
	opts := packer.SignOptions{
		Reward:   signFlags.reward,
		Quantity: signFlags.quantity,
	}
	var err error
	if signFlags.target != "" {
		if opts.Target, err = transaction.ParseBase64(signFlags.target); err != nil {
			return opts, fmt.Errorf("invalid --target: %w", err)
		}
	}
	if signFlags.lastTx != "" {
		if opts.LastTx, err = transaction.ParseBase64(signFlags.lastTx); err != nil {
			return opts, fmt.Errorf("invalid --last-tx: %w", err)
		}
	}
	opts.Tags, err = parseTags(signFlags.tags)
	return opts, err
}

// parseTags turns name=value flags into tags. The value may contain '='.
func parseTags(raw []string) ([]transaction.Tag, error) {
	if len(raw) > transaction.MaxTags {
		return nil, fmt.Errorf("too many tags: %d (max %d)", len(raw), transaction.MaxTags)
	}
	tags := make([]transaction.Tag, 0, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid tag %q, expected name=value", kv)
		}
		tags = append(tags, transaction.NewTag(name, value))
	}
	return tags, nil
}

func init() {
	signCmd.Flags().StringVar(&signFlags.keyFile, "key", "", "RSA private key PEM file")
	signCmd.Flags().StringVar(&signFlags.target, "target", "", "target wallet address (base64url)")
	signCmd.Flags().StringVar(&signFlags.lastTx, "last-tx", "", "anchor transaction id (base64url)")
	signCmd.Flags().Uint64Var(&signFlags.reward, "reward", 0, "reward in winston")
	signCmd.Flags().Uint64Var(&signFlags.quantity, "quantity", 0, "quantity in winston")
	signCmd.Flags().StringArrayVar(&signFlags.tags, "tag", nil, "tag as name=value (repeatable)")
	_ = signCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(signCmd)
}

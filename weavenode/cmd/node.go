package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/LumeraProtocol/weave/pkg/logtrace"
	"github.com/LumeraProtocol/weave/pkg/storage/txstore"
	"github.com/LumeraProtocol/weave/pkg/transaction"
	"github.com/LumeraProtocol/weave/weavenode/config"
	"github.com/LumeraProtocol/weave/weavenode/packer"
	json "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
)

// node bundles what a command needs to talk to the local store.
type node struct {
	store   *txstore.Store
	service *packer.Service
}

func openNode(ctx context.Context, c *config.Config) (*node, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}
	logtrace.Debug(ctx, "Opening transaction store", logtrace.Fields{
		logtrace.FieldPath: c.DBPath(),
	})

	store, err := txstore.NewStore(c.DBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction store: %w", err)
	}

	svc, err := packer.NewService(&packer.Config{
		CacheMaxEntries:  c.Cache.MaxEntries,
		VerifyTTL:        c.VerifyTTL(),
		StrictLeafCheck:  c.Validation.StrictLeafCheck,
		MetricsNamespace: c.Metrics.Namespace,
	}, store, prometheus.NewRegistry())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create packer service: %w", err)
	}
	return &node{store: store, service: svc}, nil
}

func (n *node) Close() {
	n.service.Close()
	if err := n.store.Close(); err != nil {
		logtrace.Warn(context.Background(), "Failed to close transaction store", logtrace.Fields{
			logtrace.FieldError: err.Error(),
		})
	}
}

func commandContext(name string) context.Context {
	ctx := logtrace.CtxWithCorrelationID(context.Background(), "weave-"+name)
	return logtrace.CtxWithOrigin(ctx, "cli")
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func parseDataRoot(s string) (transaction.Base64, error) {
	root, err := transaction.ParseBase64(s)
	if err != nil {
		return nil, fmt.Errorf("invalid data root: %w", err)
	}
	return root, nil
}

func parseIndex(s string) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("invalid chunk index %q", s)
	}
	return idx, nil
}

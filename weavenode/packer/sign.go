package packer

import (
	"context"

	"github.com/LumeraProtocol/weave/pkg/crypto"
	"github.com/LumeraProtocol/weave/pkg/errors"
	"github.com/LumeraProtocol/weave/pkg/logtrace"
	"github.com/LumeraProtocol/weave/pkg/transaction"
)

// SignOptions carries the header fields set at signing time.
type SignOptions struct {
	Target   transaction.Base64
	LastTx   transaction.Base64
	Quantity uint64
	Reward   uint64
	Tags     []transaction.Tag
}

// Sign fills the header of the stored transaction dataRoot from opts, signs
// it with provider, checks the signature and stores the signed header.
func (s *Service) Sign(ctx context.Context, dataRoot transaction.Base64, provider *crypto.Provider, opts SignOptions) (tx *transaction.Transaction, err error) {
	fields := logtrace.Fields{logtrace.FieldMethod: "Sign", logtrace.FieldDataRoot: dataRoot.String()}
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		s.metrics.SignaturesTotal.WithLabelValues(result).Inc()
	}()

	if provider == nil {
		return nil, wrapErr(ctx, "no signer configured", errors.ErrSigning, fields)
	}

	tx, err = s.store.GetTransaction(ctx, dataRoot)
	if err != nil {
		return nil, wrapErr(ctx, "failed to load transaction", err, fields)
	}
	tx.Target = opts.Target
	tx.LastTx = opts.LastTx
	tx.Quantity = opts.Quantity
	tx.Reward = opts.Reward
	tx.Tags = opts.Tags
	// Owner and signature are filled by Sign; clear any stale pair first.
	tx.Owner, tx.Signature, tx.ID = nil, nil, nil

	if err := tx.Validate(); err != nil {
		return nil, wrapErr(ctx, "invalid transaction header", err, fields)
	}
	if err := tx.Sign(provider); err != nil {
		return nil, wrapErr(ctx, "failed to sign transaction", err, fields)
	}
	if err := tx.Verify(); err != nil {
		return nil, wrapErr(ctx, "signature self-check failed", err, fields)
	}
	fields[logtrace.FieldTxID] = tx.ID.String()

	if err := s.store.UpdateHeader(ctx, tx); err != nil {
		return nil, wrapErr(ctx, "failed to store signed header", err, fields)
	}
	logtrace.Info(ctx, "transaction signed", fields)
	return tx, nil
}

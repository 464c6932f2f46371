package packer

import (
	"context"
	"fmt"
	"runtime"

	"github.com/LumeraProtocol/weave/pkg/errors"
	"github.com/LumeraProtocol/weave/pkg/logtrace"
	"github.com/LumeraProtocol/weave/pkg/storage/txstore"
	"github.com/LumeraProtocol/weave/pkg/transaction"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

// Chunk returns the stored upload record of chunk idx of dataRoot.
func (s *Service) Chunk(ctx context.Context, dataRoot transaction.Base64, idx int) (transaction.Chunk, error) {
	return s.store.GetChunk(ctx, dataRoot, idx)
}

// Transaction returns the stored header of dataRoot.
func (s *Service) Transaction(ctx context.Context, dataRoot transaction.Base64) (*transaction.Transaction, error) {
	return s.store.GetTransaction(ctx, dataRoot)
}

// Transactions lists up to limit stored transactions, newest first.
func (s *Service) Transactions(ctx context.Context, limit int) ([]txstore.Record, error) {
	return s.store.ListTransactions(ctx, limit)
}

func verifiedKey(dataRoot transaction.Base64, idx int) string {
	return fmt.Sprintf("%s/%d", dataRoot, idx)
}

// VerifyChunk reloads chunk idx of dataRoot from the store and replays its
// proof against the root. Successful verifications are remembered for the
// configured TTL; concurrent calls for the same chunk share one replay.
func (s *Service) VerifyChunk(ctx context.Context, dataRoot transaction.Base64, idx int) error {
	key := verifiedKey(dataRoot, idx)
	if _, ok := s.verified.Get(key); ok {
		s.metrics.ChunkVerifications.WithLabelValues("cache").Inc()
		return nil
	}

	_, err, shared := s.verifySF.Do(key, func() (any, error) {
		c, err := s.store.GetChunk(ctx, dataRoot, idx)
		if err != nil {
			return nil, err
		}
		if err := c.Validate(s.validateOptions()...); err != nil {
			s.metrics.ProofValidationFailures.Inc()
			return nil, err
		}
		s.verified.Set(key, struct{}{}, cache.DefaultExpiration)
		return nil, nil
	})
	if shared {
		s.metrics.ChunkVerifications.WithLabelValues("shared").Inc()
	} else {
		s.metrics.ChunkVerifications.WithLabelValues("store").Inc()
	}
	if err != nil {
		logtrace.Warn(ctx, "chunk verification failed", logtrace.Fields{
			logtrace.FieldMethod:     "VerifyChunk",
			logtrace.FieldDataRoot:   dataRoot.String(),
			logtrace.FieldChunkIndex: idx,
			logtrace.FieldError:      err.Error(),
		})
		return errors.Errorf("verify chunk %d: %w", idx, err)
	}
	return nil
}

// VerifyAll verifies every stored chunk of dataRoot and returns how many
// were checked. It stops at the first failure.
func (s *Service) VerifyAll(ctx context.Context, dataRoot transaction.Base64) (int, error) {
	n, err := s.store.ChunkCount(ctx, dataRoot)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return s.VerifyChunk(gctx, dataRoot, i)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	logtrace.Info(ctx, "all chunks verified", logtrace.Fields{
		logtrace.FieldMethod:     "VerifyAll",
		logtrace.FieldDataRoot:   dataRoot.String(),
		logtrace.FieldChunkCount: n,
	})
	return n, nil
}

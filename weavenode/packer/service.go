// Package packer runs the merklize pipeline inside the weave node: it reads
// a buffer, builds and self-validates its chunk proofs, persists the result
// and later serves, verifies and signs the stored transactions.
package packer

import (
	"context"

	"github.com/LumeraProtocol/weave/pkg/errors"
	"github.com/LumeraProtocol/weave/pkg/logtrace"
	"github.com/LumeraProtocol/weave/pkg/merkle"
	"github.com/LumeraProtocol/weave/pkg/storage/txstore"
	"github.com/LumeraProtocol/weave/pkg/task"
	"github.com/LumeraProtocol/weave/pkg/transaction"
	ristretto "github.com/dgraph-io/ristretto/v2"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

const operationMerklize = "merklize"

// Store is the persistence the service needs; *txstore.Store implements it.
type Store interface {
	PutTransaction(ctx context.Context, tx *transaction.Transaction) error
	UpdateHeader(ctx context.Context, tx *transaction.Transaction) error
	GetTransaction(ctx context.Context, dataRoot transaction.Base64) (*transaction.Transaction, error)
	FindByContentKey(ctx context.Context, contentKey string) (*transaction.Transaction, error)
	GetChunk(ctx context.Context, dataRoot transaction.Base64, idx int) (transaction.Chunk, error)
	ChunkCount(ctx context.Context, dataRoot transaction.Base64) (int, error)
	ListTransactions(ctx context.Context, limit int) ([]txstore.Record, error)
}

var _ Store = (*txstore.Store)(nil)

// Service is the packer service.
type Service struct {
	config Config
	store  Store

	tracker *task.InMemoryTracker
	// content key -> base64url data root of an already stored transaction
	roots *ristretto.Cache[string, string]
	// "<data_root>/<idx>" -> struct{} for chunks verified within the TTL
	verified *cache.Cache
	verifySF singleflight.Group

	metrics *Metrics
}

// NewService returns a Service over store. Metrics register with registry,
// or with the default registerer when registry is nil.
func NewService(cfg *Config, store Store, registry prometheus.Registerer) (*Service, error) {
	if store == nil {
		return nil, errors.New("packer: nil store")
	}
	c := cfg.withDefaults()

	roots, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: c.CacheMaxEntries * 10,
		MaxCost:     c.CacheMaxEntries,
		BufferItems: 64,

		// every entry costs 1, so MaxCost counts entries
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, errors.Errorf("create root cache: %w", err)
	}

	return &Service{
		config:   c,
		store:    store,
		tracker:  task.New(),
		roots:    roots,
		verified: cache.New(c.VerifyTTL, 2*c.VerifyTTL),
		metrics:  NewMetricsWithRegistry(c.MetricsNamespace, registry),
	}, nil
}

// Close releases the caches.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.roots.Close()
	s.verified.Flush()
}

// Running returns the merklize tasks currently in flight.
func (s *Service) Running() []task.Entry {
	return s.tracker.Snapshot()
}

func (s *Service) validateOptions() []merkle.ValidateOption {
	if s.config.StrictLeafCheck {
		return []merkle.ValidateOption{merkle.WithStrictLeafCheck()}
	}
	return nil
}

// streamEvent sends an Event via the provided callback.
// It propagates send failures so callers can abort work when the downstream is gone.
func streamEvent(ctx context.Context, send func(*Event) error, ev *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if send == nil {
		return nil
	}
	return send(ev)
}

func wrapErr(ctx context.Context, msg string, err error, f logtrace.Fields) error {
	if err != nil {
		f[logtrace.FieldError] = err.Error()
	}
	logtrace.Error(ctx, msg, f)
	if err != nil {
		return errors.Errorf("%s: %w", msg, err)
	}
	return errors.New(msg)
}

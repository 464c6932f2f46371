package packer

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/LumeraProtocol/weave/pkg/crypto"
	"github.com/LumeraProtocol/weave/pkg/errors"
	"github.com/LumeraProtocol/weave/pkg/merkle"
	"github.com/LumeraProtocol/weave/pkg/storage/txstore"
	"github.com/LumeraProtocol/weave/pkg/transaction"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signer(t *testing.T) *crypto.Provider {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	p, err := crypto.NewProvider(testKey, nil)
	require.NoError(t, err)
	return p
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i>>8)
	}
	return b
}

func openStore(t *testing.T) *txstore.Store {
	t.Helper()
	st, err := txstore.NewStore(filepath.Join(t.TempDir(), txstore.SQLiteFilename))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newService(t *testing.T, st Store, cfg *Config) *Service {
	t.Helper()
	svc, err := NewService(cfg, st, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func collect(events *[]EventType) func(*Event) error {
	return func(ev *Event) error {
		*events = append(*events, ev.Type)
		return nil
	}
}

func TestNewServiceRejectsNilStore(t *testing.T) {
	_, err := NewService(nil, nil, prometheus.NewRegistry())
	require.Error(t, err)
}

func TestMerklizeStoresTransaction(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, openStore(t), nil)
	data := payload(3*merkle.MaxChunkSize + 100)

	var events []EventType
	tx, err := svc.Merklize(ctx, &MerklizeRequest{Data: data}, collect(&events))
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventTypeDataRead, EventTypeMerklized, EventTypeProofsValidated, EventTypeStored}, events)
	require.Len(t, tx.Chunks, 4)

	stored, err := svc.Transaction(ctx, tx.DataRoot)
	require.NoError(t, err)
	assert.Equal(t, tx.DataRoot, stored.DataRoot)
	assert.Equal(t, uint64(len(data)), stored.DataSize)
	assert.Empty(t, stored.Data)

	for i := range tx.Chunks {
		want, err := tx.GetChunk(i)
		require.NoError(t, err)
		got, err := svc.Chunk(ctx, tx.DataRoot, i)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.MerklizeTotal.WithLabelValues("ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(svc.metrics.ChunksTotal))
	assert.Empty(t, svc.Running())
}

func TestMerklizeFromFile(t *testing.T) {
	data := payload(merkle.MaxChunkSize + 5)
	path := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	svc := newService(t, openStore(t), nil)
	tx, err := svc.Merklize(context.Background(), &MerklizeRequest{FilePath: path}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), tx.DataSize)
	assert.Len(t, tx.Chunks, 2)
}

func TestMerklizeMissingFile(t *testing.T) {
	svc := newService(t, openStore(t), nil)
	_, err := svc.Merklize(context.Background(), &MerklizeRequest{FilePath: filepath.Join(t.TempDir(), "nope")}, nil)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.MerklizeTotal.WithLabelValues("error")))
}

func TestMerklizeDropsTrailingEmptyChunk(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, openStore(t), nil)

	tx, err := svc.Merklize(ctx, &MerklizeRequest{Data: payload(2 * merkle.MaxChunkSize)}, nil)
	require.NoError(t, err)
	assert.Len(t, tx.Chunks, 2)

	n, err := svc.VerifyAll(ctx, tx.DataRoot)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMerklizeReusesStoredContent(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, openStore(t), nil)
	data := payload(merkle.MaxChunkSize + merkle.MinChunkSize)

	first, err := svc.Merklize(ctx, &MerklizeRequest{Data: data}, nil)
	require.NoError(t, err)

	var events []EventType
	var last *Event
	second, err := svc.Merklize(ctx, &MerklizeRequest{Data: data}, func(ev *Event) error {
		events = append(events, ev.Type)
		last = ev
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventTypeDataRead, EventTypeReused}, events)
	assert.Equal(t, first.DataRoot, second.DataRoot)
	assert.Empty(t, second.Chunks)
	assert.Equal(t, len(first.Chunks), last.ChunkCount)
}

func TestMerklizeSendFailureAborts(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	svc := newService(t, st, nil)
	boom := errors.New("client gone")

	_, err := svc.Merklize(ctx, &MerklizeRequest{Data: payload(1000)}, func(ev *Event) error {
		if ev.Type == EventTypeMerklized {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)

	recs, err := svc.Transactions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMerklizeCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := newService(t, openStore(t), nil)
	_, err := svc.Merklize(ctx, &MerklizeRequest{Data: payload(10)}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestVerifyChunkUsesCache(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, openStore(t), &Config{StrictLeafCheck: true})
	tx, err := svc.Merklize(ctx, &MerklizeRequest{Data: payload(merkle.MaxChunkSize + 1)}, nil)
	require.NoError(t, err)

	require.NoError(t, svc.VerifyChunk(ctx, tx.DataRoot, 0))
	require.NoError(t, svc.VerifyChunk(ctx, tx.DataRoot, 0))
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.ChunkVerifications.WithLabelValues("store")))
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.ChunkVerifications.WithLabelValues("cache")))
}

func TestVerifyChunkMissing(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, openStore(t), nil)
	tx, err := svc.Merklize(ctx, &MerklizeRequest{Data: payload(100)}, nil)
	require.NoError(t, err)

	err = svc.VerifyChunk(ctx, tx.DataRoot, 5)
	require.ErrorIs(t, err, txstore.ErrNotFound)

	_, err = svc.VerifyAll(ctx, make(transaction.Base64, merkle.HashSize))
	require.ErrorIs(t, err, txstore.ErrNotFound)
}

// tamperStore flips a byte of every data_path it serves.
type tamperStore struct {
	*txstore.Store
}

func (s tamperStore) GetChunk(ctx context.Context, dataRoot transaction.Base64, idx int) (transaction.Chunk, error) {
	c, err := s.Store.GetChunk(ctx, dataRoot, idx)
	if err != nil {
		return c, err
	}
	path := append(transaction.Base64(nil), c.DataPath...)
	path[0] ^= 0x01
	c.DataPath = path
	return c, nil
}

func TestVerifyAllDetectsTamperedProof(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	tx, err := newService(t, st, nil).Merklize(ctx, &MerklizeRequest{Data: payload(3 * merkle.MaxChunkSize)}, nil)
	require.NoError(t, err)

	svc := newService(t, tamperStore{st}, nil)
	_, err = svc.VerifyAll(ctx, tx.DataRoot)
	require.ErrorIs(t, err, errors.ErrInvalidProof)
	assert.GreaterOrEqual(t, testutil.ToFloat64(svc.metrics.ProofValidationFailures), 1.0)
}

func TestSignStoresSignedHeader(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	svc := newService(t, st, nil)
	data := payload(merkle.MaxChunkSize * 2)
	tx, err := svc.Merklize(ctx, &MerklizeRequest{Data: data}, nil)
	require.NoError(t, err)

	p := signer(t)
	signed, err := svc.Sign(ctx, tx.DataRoot, p, SignOptions{
		Reward: 42,
		Tags:   []transaction.Tag{transaction.NewTag("Content-Type", "application/octet-stream")},
	})
	require.NoError(t, err)
	require.Len(t, signed.ID, 32)

	stored, err := svc.Transaction(ctx, tx.DataRoot)
	require.NoError(t, err)
	require.NoError(t, stored.Verify())
	assert.Equal(t, signed.ID, stored.ID)
	assert.Equal(t, uint64(42), stored.Reward)

	// A fresh node merklizing the same bytes keeps and returns the signed header.
	returned, err := newService(t, st, nil).Merklize(ctx, &MerklizeRequest{Data: data}, nil)
	require.NoError(t, err)
	assert.Equal(t, signed.Signature, returned.Signature)
	again, err := svc.Transaction(ctx, tx.DataRoot)
	require.NoError(t, err)
	assert.Equal(t, signed.Signature, again.Signature)

	recs, err := svc.Transactions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, signed.ID.String(), recs[0].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.SignaturesTotal.WithLabelValues("ok")))
}

func TestSignErrors(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, openStore(t), nil)
	tx, err := svc.Merklize(ctx, &MerklizeRequest{Data: payload(64)}, nil)
	require.NoError(t, err)

	_, err = svc.Sign(ctx, tx.DataRoot, nil, SignOptions{})
	require.ErrorIs(t, err, errors.ErrSigning)

	_, err = svc.Sign(ctx, make(transaction.Base64, merkle.HashSize), signer(t), SignOptions{})
	require.ErrorIs(t, err, txstore.ErrNotFound)

	_, err = svc.Sign(ctx, tx.DataRoot, signer(t), SignOptions{Target: transaction.Base64("short")})
	require.ErrorIs(t, err, errors.ErrInvalidTransaction)

	assert.Equal(t, 3.0, testutil.ToFloat64(svc.metrics.SignaturesTotal.WithLabelValues("error")))
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "stored", EventTypeStored.String())
	assert.Equal(t, "reused", EventTypeReused.String())
	assert.Equal(t, "unknown", EventType(99).String())
}

func TestMerklizeReusesAcrossServices(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	data := payload(merkle.MaxChunkSize + merkle.MinChunkSize)

	first, err := newService(t, st, nil).Merklize(ctx, &MerklizeRequest{Data: data}, nil)
	require.NoError(t, err)

	var events []*Event
	second, err := newService(t, st, nil).Merklize(ctx, &MerklizeRequest{Data: data}, func(ev *Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeDataRead, events[0].Type)
	assert.Equal(t, EventTypeReused, events[1].Type)
	assert.Equal(t, len(first.Chunks), events[1].ChunkCount)
	assert.Equal(t, first.DataRoot, second.DataRoot)
	assert.Empty(t, second.Chunks)
}

// noIndexStore hides the content key index, as for rows written before it
// existed.
type noIndexStore struct {
	*txstore.Store
}

func (noIndexStore) FindByContentKey(_ context.Context, key string) (*transaction.Transaction, error) {
	return nil, errors.Errorf("content key %s: %w", key, txstore.ErrNotFound)
}

func TestMerklizeReturnsStoredHeaderWhenWriteSkipped(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	data := payload(2*merkle.MaxChunkSize + 10)

	svc := newService(t, st, nil)
	tx, err := svc.Merklize(ctx, &MerklizeRequest{Data: data}, nil)
	require.NoError(t, err)
	signed, err := svc.Sign(ctx, tx.DataRoot, signer(t), SignOptions{Reward: 7})
	require.NoError(t, err)

	var events []EventType
	got, err := newService(t, noIndexStore{st}, nil).Merklize(ctx, &MerklizeRequest{Data: data}, collect(&events))
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventTypeDataRead, EventTypeMerklized, EventTypeProofsValidated, EventTypeReused}, events)
	assert.Equal(t, signed.ID, got.ID)
	assert.Equal(t, signed.Signature, got.Signature)
	require.NoError(t, got.Verify())
}

// countFailStore fails every chunk count.
type countFailStore struct {
	*txstore.Store
}

func (countFailStore) ChunkCount(context.Context, transaction.Base64) (int, error) {
	return 0, errors.New("disk unavailable")
}

func TestMerklizeReuseReportsChunkCountError(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	data := payload(4096)
	_, err := newService(t, st, nil).Merklize(ctx, &MerklizeRequest{Data: data}, nil)
	require.NoError(t, err)

	var events []EventType
	_, err = newService(t, countFailStore{st}, nil).Merklize(ctx, &MerklizeRequest{Data: data}, collect(&events))
	require.ErrorContains(t, err, "disk unavailable")
	assert.Equal(t, []EventType{EventTypeDataRead}, events)
}

// Package txstore persists merklized transactions: one header row per data
// root and one row per chunk holding its proof and zstd-compressed bytes.
package txstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/LumeraProtocol/weave/pkg/logtrace"
	"github.com/LumeraProtocol/weave/pkg/merkle"
	"github.com/LumeraProtocol/weave/pkg/transaction"
	"github.com/LumeraProtocol/weave/pkg/utils"
	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when no row exists for the requested data root
	// or chunk.
	ErrNotFound = errors.New("not found")
	// ErrCorrupt is returned when a stored chunk no longer matches its key.
	ErrCorrupt = errors.New("stored chunk is corrupt")
)

const createTxHeaderTable = `
CREATE TABLE IF NOT EXISTS tx_header (
  data_root TEXT PRIMARY KEY,
  content_key TEXT NOT NULL DEFAULT '',
  id TEXT NOT NULL DEFAULT '',
  format INTEGER NOT NULL,
  data_size INTEGER NOT NULL,
  chunk_count INTEGER NOT NULL,
  header_json TEXT NOT NULL,
  created_at_unix INTEGER NOT NULL,
  updated_at_unix INTEGER NOT NULL
);`

// txHeaderMigrations bring databases created before a column existed up to
// the current tx_header layout. Each statement is idempotent.
var txHeaderMigrations = []string{
	`ALTER TABLE tx_header ADD COLUMN content_key TEXT NOT NULL DEFAULT ''`,
	`CREATE INDEX IF NOT EXISTS idx_tx_header_content_key ON tx_header(content_key)`,
}

const createTxChunkTable = `
CREATE TABLE IF NOT EXISTS tx_chunk (
  data_root TEXT NOT NULL,
  idx INTEGER NOT NULL,
  chunk_offset INTEGER NOT NULL,
  min_byte INTEGER NOT NULL,
  max_byte INTEGER NOT NULL,
  data_path BLOB NOT NULL,
  blob_key TEXT NOT NULL,
  payload BLOB NOT NULL,
  PRIMARY KEY (data_root, idx)
);`

// Store is a SQLite backed transaction store.
type Store struct {
	db *sqlx.DB
}

// Record summarises a stored transaction.
type Record struct {
	DataRoot      string `db:"data_root" json:"data_root"`
	ID            string `db:"id" json:"id"`
	Format        uint8  `db:"format" json:"format"`
	DataSize      int64  `db:"data_size" json:"data_size"`
	ChunkCount    int    `db:"chunk_count" json:"chunk_count"`
	CreatedAtUnix int64  `db:"created_at_unix" json:"created_at_unix"`
	UpdatedAtUnix int64  `db:"updated_at_unix" json:"updated_at_unix"`
}

type chunkRow struct {
	Offset   int    `db:"chunk_offset"`
	MinByte  int    `db:"min_byte"`
	MaxByte  int    `db:"max_byte"`
	DataPath []byte `db:"data_path"`
	BlobKey  string `db:"blob_key"`
	Payload  []byte `db:"payload"`
}

// NewStore opens (or creates) the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open tx sqlite database")
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		fmt.Sprintf("PRAGMA cache_size=-%d;", DBCacheSizeKiB),
		fmt.Sprintf("PRAGMA busy_timeout=%d;", int64(DBBusyTimeout/time.Millisecond)),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "cannot set sqlite database parameter")
		}
	}

	if _, err := db.Exec(createTxHeaderTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "cannot create tx_header table")
	}
	for _, stmt := range txHeaderMigrations {
		if _, err := db.Exec(stmt); err != nil && !isAlreadyExists(err) {
			db.Close()
			return nil, errors.Wrap(err, "cannot migrate tx_header table")
		}
	}
	if _, err := db.Exec(createTxChunkTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "cannot create tx_chunk table")
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutTransaction stores the header of tx and every chunk listed in
// tx.Chunks. Chunks previously stored under the same data root are replaced.
// The header is indexed by the content key of tx.Data.
func (s *Store) PutTransaction(ctx context.Context, tx *transaction.Transaction) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if len(tx.Chunks) != len(tx.Proofs) {
		return errors.Errorf("transaction has %d chunks but %d proofs", len(tx.Chunks), len(tx.Proofs))
	}

	header, err := transaction.Marshal(tx.CloneWithNoData())
	if err != nil {
		return err
	}

	type prepared struct {
		node    merkle.Node
		proof   merkle.Proof
		blobKey string
		payload []byte
	}
	chunks := make([]prepared, len(tx.Chunks))
	for i, node := range tx.Chunks {
		if node.MaxByteRange > len(tx.Data) {
			return errors.Errorf("chunk %d ends at %d past %d data bytes", i, node.MaxByteRange, len(tx.Data))
		}
		raw := tx.Data[node.MinByteRange:node.MaxByteRange]
		payload, err := utils.ZstdCompress(raw)
		if err != nil {
			return errors.Wrapf(err, "compress chunk %d", i)
		}
		chunks[i] = prepared{node: node, proof: tx.Proofs[i], blobKey: utils.ContentKey(raw), payload: payload}
	}

	dataRoot := tx.DataRoot.String()
	contentKey := utils.ContentKey(tx.Data)
	now := time.Now().Unix()
	err = s.retryWrite(ctx, func() error {
		dbtx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer dbtx.Rollback()

		_, err = dbtx.ExecContext(ctx,
			`INSERT INTO tx_header (data_root, content_key, id, format, data_size, chunk_count, header_json, created_at_unix, updated_at_unix)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(data_root) DO UPDATE SET
			   content_key=excluded.content_key,
			   id=excluded.id,
			   format=excluded.format,
			   data_size=excluded.data_size,
			   chunk_count=excluded.chunk_count,
			   header_json=excluded.header_json,
			   updated_at_unix=excluded.updated_at_unix`,
			dataRoot, contentKey, tx.ID.String(), tx.Format, int64(tx.DataSize), len(chunks), string(header), now, now,
		)
		if err != nil {
			return errors.Wrap(err, "upsert tx_header")
		}
		if _, err := dbtx.ExecContext(ctx, `DELETE FROM tx_chunk WHERE data_root = ?`, dataRoot); err != nil {
			return errors.Wrap(err, "clear tx_chunk")
		}

		stmt, err := dbtx.PreparexContext(ctx,
			`INSERT INTO tx_chunk (data_root, idx, chunk_offset, min_byte, max_byte, data_path, blob_key, payload)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return errors.Wrap(err, "prepare tx_chunk insert")
		}
		defer stmt.Close()

		for i, c := range chunks {
			if _, err := stmt.ExecContext(ctx, dataRoot, i, c.proof.Offset, c.node.MinByteRange, c.node.MaxByteRange,
				c.proof.Proof, c.blobKey, c.payload); err != nil {
				return errors.Wrapf(err, "insert chunk %d", i)
			}
		}
		return dbtx.Commit()
	})
	if err != nil {
		return errors.Wrap(err, "put transaction")
	}

	logtrace.Debug(ctx, "stored transaction", logtrace.Fields{
		logtrace.FieldModule:     "txstore",
		logtrace.FieldDataRoot:   dataRoot,
		logtrace.FieldDataSize:   tx.DataSize,
		logtrace.FieldChunkCount: len(chunks),
	})
	return nil
}

// UpdateHeader replaces the stored header (for example after signing). The
// chunks are left untouched.
func (s *Store) UpdateHeader(ctx context.Context, tx *transaction.Transaction) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	header, err := transaction.Marshal(tx.CloneWithNoData())
	if err != nil {
		return err
	}

	var affected int64
	err = s.retryWrite(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE tx_header SET id = ?, format = ?, header_json = ?, updated_at_unix = ? WHERE data_root = ?`,
			tx.ID.String(), tx.Format, string(header), time.Now().Unix(), tx.DataRoot.String(),
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return errors.Wrap(err, "update tx_header")
	}
	if affected == 0 {
		return errors.Wrapf(ErrNotFound, "data root %s", tx.DataRoot)
	}
	return nil
}

// GetTransaction returns the stored header for dataRoot. Data, chunks and
// proofs are not loaded.
func (s *Store) GetTransaction(ctx context.Context, dataRoot transaction.Base64) (*transaction.Transaction, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}

	var header string
	err := s.db.GetContext(ctx, &header, `SELECT header_json FROM tx_header WHERE data_root = ?`, dataRoot.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "data root %s", dataRoot)
		}
		return nil, errors.Wrap(err, "query tx_header")
	}
	return transaction.Unmarshal([]byte(header))
}

// FindByContentKey returns the stored header whose data has the given
// content key (see utils.ContentKey).
func (s *Store) FindByContentKey(ctx context.Context, contentKey string) (*transaction.Transaction, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}

	var header string
	err := s.db.GetContext(ctx, &header,
		`SELECT header_json FROM tx_header WHERE content_key = ? ORDER BY updated_at_unix DESC LIMIT 1`, contentKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "content key %s", contentKey)
		}
		return nil, errors.Wrap(err, "query tx_header by content key")
	}
	return transaction.Unmarshal([]byte(header))
}

// GetChunk returns the upload record of chunk idx of dataRoot.
func (s *Store) GetChunk(ctx context.Context, dataRoot transaction.Base64, idx int) (transaction.Chunk, error) {
	if s == nil || s.db == nil {
		return transaction.Chunk{}, errors.New("store not initialized")
	}

	var dataSize int64
	err := s.db.GetContext(ctx, &dataSize, `SELECT data_size FROM tx_header WHERE data_root = ?`, dataRoot.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transaction.Chunk{}, errors.Wrapf(ErrNotFound, "data root %s", dataRoot)
		}
		return transaction.Chunk{}, errors.Wrap(err, "query tx_header")
	}

	var row chunkRow
	err = s.db.GetContext(ctx, &row,
		`SELECT chunk_offset, min_byte, max_byte, data_path, blob_key, payload FROM tx_chunk WHERE data_root = ? AND idx = ?`,
		dataRoot.String(), idx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transaction.Chunk{}, errors.Wrapf(ErrNotFound, "chunk %d of %s", idx, dataRoot)
		}
		return transaction.Chunk{}, errors.Wrap(err, "query tx_chunk")
	}

	raw, err := utils.ZstdDecompress(row.Payload)
	if err != nil {
		return transaction.Chunk{}, errors.Wrapf(ErrCorrupt, "decompress chunk %d: %v", idx, err)
	}
	if len(raw) != row.MaxByte-row.MinByte || utils.ContentKey(raw) != row.BlobKey {
		return transaction.Chunk{}, errors.Wrapf(ErrCorrupt, "chunk %d of %s", idx, dataRoot)
	}

	return transaction.Chunk{
		DataRoot: dataRoot,
		DataSize: uint64(dataSize),
		DataPath: row.DataPath,
		Offset:   row.Offset,
		Chunk:    raw,
	}, nil
}

// ChunkCount returns the number of chunks stored for dataRoot.
func (s *Store) ChunkCount(ctx context.Context, dataRoot transaction.Base64) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store not initialized")
	}
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT chunk_count FROM tx_header WHERE data_root = ?`, dataRoot.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.Wrapf(ErrNotFound, "data root %s", dataRoot)
		}
		return 0, errors.Wrap(err, "query tx_header")
	}
	return n, nil
}

// ListTransactions returns up to limit records, newest first. A limit of
// zero or less returns every record.
func (s *Store) ListTransactions(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if limit <= 0 {
		limit = -1
	}
	var out []Record
	err := s.db.SelectContext(ctx, &out,
		`SELECT data_root, id, format, data_size, chunk_count, created_at_unix, updated_at_unix
		 FROM tx_header ORDER BY created_at_unix DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list tx_header")
	}
	return out, nil
}

// retryWrite retries op with exponential backoff while SQLite reports the
// database as busy or locked.
func (s *Store) retryWrite(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = WriteRetryInitial
	b.MaxElapsedTime = WriteRetryMaxElapsed

	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil || isBusy(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		logtrace.Warn(ctx, "retrying sqlite write", logtrace.Fields{
			logtrace.FieldModule: "txstore",
			logtrace.FieldError:  err.Error(),
			"backoff":            d.String(),
		})
	})
}

// isAlreadyExists reports whether a DDL error means the change is already in
// place.
func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column name")
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

package packer

import (
	"context"
	"os"
	"time"

	"github.com/LumeraProtocol/weave/pkg/errors"
	"github.com/LumeraProtocol/weave/pkg/logtrace"
	"github.com/LumeraProtocol/weave/pkg/storage/txstore"
	"github.com/LumeraProtocol/weave/pkg/task"
	"github.com/LumeraProtocol/weave/pkg/transaction"
	"github.com/LumeraProtocol/weave/pkg/utils"
	"github.com/google/uuid"
)

// MerklizeRequest names the buffer to merklize: FilePath when set,
// otherwise Data.
type MerklizeRequest struct {
	TaskID   string
	FilePath string
	Data     []byte
}

// Merklize chunks the requested buffer, validates every proof it produced,
// stores the transaction and returns it. The returned transaction carries
// chunks and proofs only when it was written; content that was already
// stored is answered with its stored header and an EventTypeReused event.
func (s *Service) Merklize(ctx context.Context, req *MerklizeRequest, send func(*Event) error) (tx *transaction.Transaction, err error) {
	if req == nil {
		return nil, errors.New("merklize: nil request")
	}
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}
	ctx = logtrace.CtxWithCorrelationID(ctx, req.TaskID)
	ctx = logtrace.CtxWithOrigin(ctx, operationMerklize)

	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		s.metrics.MerklizeTotal.WithLabelValues(result).Inc()
		s.metrics.MerklizeDuration.Observe(time.Since(start).Seconds())
	}()

	fields := logtrace.Fields{logtrace.FieldMethod: "Merklize", logtrace.FieldTaskID: req.TaskID}
	if req.FilePath != "" {
		fields[logtrace.FieldPath] = req.FilePath
	}
	logtrace.Info(ctx, "merklize: request", fields)

	// Step 1: read input and derive its content key
	data := req.Data
	if req.FilePath != "" {
		data, err = os.ReadFile(req.FilePath)
		if err != nil {
			return nil, wrapErr(ctx, "failed to read input file", err, fields)
		}
	}
	contentKey := utils.ContentKey(data)
	fields[logtrace.FieldDataSize] = len(data)
	fields[logtrace.FieldContentKey] = contentKey
	if err := streamEvent(ctx, send, &Event{TaskID: req.TaskID, Type: EventTypeDataRead, Message: "Data read"}); err != nil {
		return nil, err
	}

	// Step 2: one merklize per content key at a time
	handle, err := task.StartUnique(ctx, s.tracker, operationMerklize, contentKey, s.config.TaskTimeout)
	if err != nil {
		return nil, wrapErr(ctx, "merklize already in flight", err, fields)
	}
	defer handle.End(ctx)

	// Step 3: answer from the store when this content was already processed
	if stored, ok := s.lookupStored(ctx, contentKey); ok {
		n, err := s.store.ChunkCount(ctx, stored.DataRoot)
		if err != nil {
			return nil, wrapErr(ctx, "failed to count stored chunks", err, fields)
		}
		return s.reuse(ctx, req.TaskID, contentKey, stored, n, fields, send)
	}

	// Step 4: chunk, hash and resolve proofs
	tx, err = transaction.Merklize(data)
	if err != nil {
		return nil, wrapErr(ctx, "failed to merklize data", err, fields)
	}
	dataRoot := tx.DataRoot.String()
	fields[logtrace.FieldDataRoot] = dataRoot
	fields[logtrace.FieldChunkCount] = len(tx.Chunks)
	s.metrics.ChunksTotal.Add(float64(len(tx.Chunks)))
	logtrace.Info(ctx, "merklize: data root generated", fields)
	if err := streamEvent(ctx, send, &Event{
		TaskID: req.TaskID, Type: EventTypeMerklized, Message: "Data merklized",
		DataRoot: dataRoot, ChunkCount: len(tx.Chunks),
	}); err != nil {
		return nil, err
	}

	// Step 5: every proof must validate against the root before it is stored
	if err := s.validateAll(ctx, tx); err != nil {
		return nil, wrapErr(ctx, "proof self-validation failed", err, fields)
	}
	logtrace.Info(ctx, "merklize: proofs validated", fields)
	if err := streamEvent(ctx, send, &Event{
		TaskID: req.TaskID, Type: EventTypeProofsValidated, Message: "Proofs validated",
		DataRoot: dataRoot, ChunkCount: len(tx.Chunks),
	}); err != nil {
		return nil, err
	}

	// Step 6: persist, keeping any header that was signed in the meantime
	stored, err := s.persist(ctx, tx)
	if err != nil {
		return nil, wrapErr(ctx, "failed to store transaction", err, fields)
	}
	if stored != nil {
		return s.reuse(ctx, req.TaskID, contentKey, stored, len(tx.Chunks), fields, send)
	}
	s.roots.Set(contentKey, dataRoot, 1)
	s.roots.Wait()
	logtrace.Info(ctx, "merklize: transaction stored", fields)
	if err := streamEvent(ctx, send, &Event{
		TaskID: req.TaskID, Type: EventTypeStored, Message: "Transaction stored",
		DataRoot: dataRoot, ChunkCount: len(tx.Chunks),
	}); err != nil {
		return nil, err
	}
	return tx, nil
}

// reuse answers a merklize request with an already stored header.
func (s *Service) reuse(ctx context.Context, taskID, contentKey string, stored *transaction.Transaction,
	chunks int, fields logtrace.Fields, send func(*Event) error) (*transaction.Transaction, error) {
	dataRoot := stored.DataRoot.String()
	s.roots.Set(contentKey, dataRoot, 1)
	s.roots.Wait()

	fields[logtrace.FieldDataRoot] = dataRoot
	fields[logtrace.FieldChunkCount] = chunks
	logtrace.Info(ctx, "merklize: reused stored transaction", fields)
	if err := streamEvent(ctx, send, &Event{
		TaskID: taskID, Type: EventTypeReused, Message: "Stored transaction reused",
		DataRoot: dataRoot, ChunkCount: chunks,
	}); err != nil {
		return nil, err
	}
	return stored, nil
}

// lookupStored resolves a content key to its stored header, first through
// the root cache and then through the store's content key index. Stale cache
// entries are dropped.
func (s *Service) lookupStored(ctx context.Context, contentKey string) (*transaction.Transaction, bool) {
	if root, ok := s.roots.Get(contentKey); ok {
		dataRoot, err := transaction.ParseBase64(root)
		if err == nil {
			var stored *transaction.Transaction
			if stored, err = s.store.GetTransaction(ctx, dataRoot); err == nil {
				return stored, true
			}
		}
		logtrace.Debug(ctx, "merklize: dropping stale root cache entry", logtrace.Fields{
			logtrace.FieldContentKey: contentKey,
			logtrace.FieldError:      err.Error(),
		})
		s.roots.Del(contentKey)
	}

	stored, err := s.store.FindByContentKey(ctx, contentKey)
	if err != nil {
		if !errors.Is(err, txstore.ErrNotFound) {
			logtrace.Warn(ctx, "merklize: content key lookup failed", logtrace.Fields{
				logtrace.FieldContentKey: contentKey,
				logtrace.FieldError:      err.Error(),
			})
		}
		return nil, false
	}
	return stored, true
}

func (s *Service) validateAll(ctx context.Context, tx *transaction.Transaction) error {
	opts := s.validateOptions()
	for i := range tx.Chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := tx.GetChunk(i)
		if err != nil {
			return err
		}
		if err := c.Validate(opts...); err != nil {
			s.metrics.ProofValidationFailures.Inc()
			return errors.Errorf("chunk %d: %w", i, err)
		}
	}
	return nil
}

// persist stores tx unless a header for the same data root already exists
// with all of its chunks. In that case the stored header, which may carry a
// signature, is returned and nothing is written.
func (s *Service) persist(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	if existing, err := s.store.GetTransaction(ctx, tx.DataRoot); err == nil && existing.DataSize == tx.DataSize {
		if n, err := s.store.ChunkCount(ctx, tx.DataRoot); err == nil && n == len(tx.Chunks) {
			return existing, nil
		}
	}
	return nil, s.store.PutTransaction(ctx, tx)
}

// Package transaction assembles data transactions from merklized buffers,
// maps them to their deep-hash form and signs or verifies them.
//
// Binary fields travel as base64url without padding; quantity, reward and
// data_size travel as decimal strings.
package transaction

import (
	"bytes"
	"slices"

	"github.com/LumeraProtocol/weave/pkg/errors"
	"github.com/LumeraProtocol/weave/pkg/merkle"
	json "github.com/json-iterator/go"
)

// Transaction is a format 1 or format 2 data transaction. Chunks and Proofs
// are populated by Merklize and never serialized.
type Transaction struct {
	Format    uint8  `json:"format" validate:"oneof=1 2"`
	ID        Base64 `json:"id" validate:"omitempty,len=32"`
	LastTx    Base64 `json:"last_tx" validate:"omitempty,len=32|len=48"`
	Owner     Base64 `json:"owner" validate:"omitempty,min=256,max=512"`
	Tags      []Tag  `json:"tags" validate:"max=128,dive"`
	Target    Base64 `json:"target" validate:"omitempty,len=32"`
	Quantity  uint64 `json:"quantity,string"`
	DataRoot  Base64 `json:"data_root"`
	Data      Base64 `json:"data"`
	DataSize  uint64 `json:"data_size,string"`
	Reward    uint64 `json:"reward,string"`
	Signature Base64 `json:"signature" validate:"omitempty,min=256,max=512"`

	Chunks []merkle.Node  `json:"-"`
	Proofs []merkle.Proof `json:"-"`
}

// Chunk is the upload record of one chunk: the proof travels as data_path
// and offset is the chunk's last byte.
type Chunk struct {
	DataRoot Base64 `json:"data_root"`
	DataSize uint64 `json:"data_size,string"`
	DataPath Base64 `json:"data_path"`
	Offset   int    `json:"offset,string"`
	Chunk    Base64 `json:"chunk"`
}

// Merklize builds a format 2 transaction over data. A trailing zero-length
// chunk is committed to by the root but dropped, with its proof, from the
// transaction.
func Merklize(data []byte) (*Transaction, error) {
	tree, err := merkle.GenerateDataRoot(data)
	if err != nil {
		return nil, errors.Errorf("generate data root: %w", err)
	}
	proofs, err := tree.ResolveProofs()
	if err != nil {
		return nil, errors.Errorf("resolve proofs: %w", err)
	}

	chunks := tree.Leaves()
	if last := chunks[len(chunks)-1]; last.MaxByteRange == last.MinByteRange {
		chunks = chunks[:len(chunks)-1]
		proofs = proofs[:len(proofs)-1]
	}

	root := tree.RootID()
	return &Transaction{
		Format:   2,
		DataSize: uint64(len(data)),
		Data:     Base64(data),
		DataRoot: Base64(root[:]),
		Chunks:   chunks,
		Proofs:   proofs,
	}, nil
}

// GetChunk returns the upload record of chunk idx. It needs the data, so it
// fails on a transaction produced by CloneWithNoData.
func (tx *Transaction) GetChunk(idx int) (Chunk, error) {
	if idx < 0 || idx >= len(tx.Chunks) || idx >= len(tx.Proofs) {
		return Chunk{}, errors.Errorf("%w: chunk index %d out of range (%d chunks)", errors.ErrInvariant, idx, len(tx.Chunks))
	}
	node := tx.Chunks[idx]
	if node.MaxByteRange > len(tx.Data) {
		return Chunk{}, errors.Errorf("%w: chunk %d ends at %d but only %d data bytes are present",
			errors.ErrInvariant, idx, node.MaxByteRange, len(tx.Data))
	}
	return Chunk{
		DataRoot: tx.DataRoot,
		DataSize: tx.DataSize,
		DataPath: Base64(tx.Proofs[idx].Proof),
		Offset:   tx.Proofs[idx].Offset,
		Chunk:    tx.Data[node.MinByteRange:node.MaxByteRange],
	}, nil
}

// CloneWithNoData returns a copy of the header fields without data, chunks
// or proofs.
func (tx *Transaction) CloneWithNoData() *Transaction {
	return &Transaction{
		Format:    tx.Format,
		ID:        bytes.Clone(tx.ID),
		LastTx:    bytes.Clone(tx.LastTx),
		Owner:     bytes.Clone(tx.Owner),
		Tags:      slices.Clone(tx.Tags),
		Target:    bytes.Clone(tx.Target),
		Quantity:  tx.Quantity,
		DataRoot:  bytes.Clone(tx.DataRoot),
		DataSize:  tx.DataSize,
		Reward:    tx.Reward,
		Signature: bytes.Clone(tx.Signature),
	}
}

// Leaf rebuilds the candidate leaf for the chunk from its bytes and offset.
func (c Chunk) Leaf() (merkle.Node, error) {
	end := c.Offset + 1
	return merkle.NewLeaf(c.Chunk, merkle.Range{Min: end - len(c.Chunk), Max: end})
}

// Validate replays the chunk's data_path against its data_root.
func (c Chunk) Validate(opts ...merkle.ValidateOption) error {
	if len(c.DataRoot) != merkle.HashSize {
		return errors.Errorf("%w: data_root is %d bytes", errors.ErrInvalidProof, len(c.DataRoot))
	}
	leaf, err := c.Leaf()
	if err != nil {
		return err
	}
	var root [merkle.HashSize]byte
	copy(root[:], c.DataRoot)
	return merkle.ValidateChunk(root, leaf, merkle.Proof{Offset: c.Offset, Proof: c.DataPath}, opts...)
}

// Marshal encodes tx as JSON.
func Marshal(tx *Transaction) ([]byte, error) {
	raw, err := json.Marshal(tx)
	if err != nil {
		return nil, errors.Errorf("marshal transaction: %w", err)
	}
	return raw, nil
}

// Unmarshal decodes a JSON transaction. Malformed base64url or numbers are
// reported as ErrEncoding.
func Unmarshal(raw []byte) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, errors.Errorf("%w: unmarshal transaction: %w", errors.ErrEncoding, err)
	}
	return &tx, nil
}

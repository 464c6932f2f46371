package merkle

import (
	"bytes"

	"github.com/LumeraProtocol/weave/pkg/errors"
	"github.com/LumeraProtocol/weave/pkg/utils"
)

// LeafCheck selects how the terminal leaf record is judged.
type LeafCheck int

const (
	// LeafCheckLiteral rejects the leaf only when BOTH the recomputed leaf id
	// and the data hash disagree. A leaf record whose data hash matches the
	// node passes even if its offset was altered.
	LeafCheckLiteral LeafCheck = iota
	// LeafCheckStrict rejects the leaf when the recomputed id, the data hash
	// or the leaf record offset disagree, or when the leaf note padding is not
	// zero.
	LeafCheckStrict
)

type validateConfig struct {
	leafCheck LeafCheck
}

// ValidateOption configures ValidateChunk.
type ValidateOption func(*validateConfig)

// WithLeafCheck selects the leaf check mode.
func WithLeafCheck(mode LeafCheck) ValidateOption {
	return func(c *validateConfig) { c.leafCheck = mode }
}

// WithStrictLeafCheck is shorthand for WithLeafCheck(LeafCheckStrict).
func WithStrictLeafCheck() ValidateOption {
	return WithLeafCheck(LeafCheckStrict)
}

// ValidateChunk replays proof from rootID down to leaf. Each branch record
// must hash to the currently expected id; the walk then descends right when
// leaf.MaxByteRange is greater than the record's offset and left otherwise.
// The first mismatch aborts with ErrInvalidProof.
func ValidateChunk(rootID [HashSize]byte, leaf Node, proof Proof, opts ...ValidateOption) error {
	cfg := validateConfig{leafCheck: LeafCheckLiteral}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(leaf.DataHash) != HashSize {
		return errors.Errorf("%w: candidate node [%d,%d) carries no data hash",
			errors.ErrInvariant, leaf.MinByteRange, leaf.MaxByteRange)
	}
	leafNote, err := noteFor(leaf.MaxByteRange)
	if err != nil {
		return err
	}

	branches, leafRecord, err := ParseProof(proof.Proof)
	if err != nil {
		return err
	}

	expected := rootID
	for i, b := range branches {
		note := Note(b.Offset)
		if utils.HashAllSha256(b.LeftID[:], b.RightID[:], note[:]) != expected {
			return errors.Errorf("%w: branch record %d does not hash to the expected id", errors.ErrInvalidProof, i)
		}
		if leaf.MaxByteRange > int(b.Offset) {
			expected = b.RightID
		} else {
			expected = b.LeftID
		}
	}

	idMismatch := utils.HashAllSha256(leaf.DataHash, leafNote[:]) != expected
	dataHashMismatch := !bytes.Equal(leafRecord.DataHash[:], leaf.DataHash)

	switch cfg.leafCheck {
	case LeafCheckStrict:
		if idMismatch || dataHashMismatch || int(leafRecord.Offset) != leaf.MaxByteRange {
			return errors.Errorf("%w: leaf record mismatch (id=%t data_hash=%t offset=%d want %d)",
				errors.ErrInvalidProof, idMismatch, dataHashMismatch, leafRecord.Offset, leaf.MaxByteRange)
		}
		if !leafRecord.ZeroPadded {
			return errors.Errorf("%w: leaf record: non-zero note padding", errors.ErrInvalidProof)
		}
	default:
		if idMismatch && dataHashMismatch {
			return errors.Errorf("%w: leaf id and data hash both mismatch", errors.ErrInvalidProof)
		}
	}
	return nil
}

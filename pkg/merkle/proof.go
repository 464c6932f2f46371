package merkle

import (
	"bytes"

	"github.com/LumeraProtocol/weave/pkg/errors"
)

// Proof is the serialized root-to-leaf path of one chunk. Offset is the
// chunk's last byte (MaxByteRange-1), which is -1 for a zero-length leaf.
type Proof struct {
	Offset int
	Proof  []byte
}

// BranchRecord is one deserialized 96-byte branch entry of a proof.
type BranchRecord struct {
	LeftID  [HashSize]byte
	RightID [HashSize]byte
	Offset  uint32
}

// LeafRecord is the trailing 64-byte leaf entry of a proof. ZeroPadded is
// false when the note padding carries non-zero bytes.
type LeafRecord struct {
	DataHash   [HashSize]byte
	Offset     uint32
	ZeroPadded bool
}

// ResolveProofs walks the tree from the root and returns one proof per leaf,
// in leaf order. Every branch contributes left_id || right_id || note(min)
// and each child continues with its own copy of the path.
func (t *Tree) ResolveProofs() ([]Proof, error) {
	type frame struct {
		idx  int
		path []byte
	}

	proofs := make([]Proof, 0, t.leafCount)
	stack := []frame{{idx: t.root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.idx < 0 || f.idx >= len(t.nodes) {
			return nil, errors.Errorf("%w: child index %d outside arena of %d nodes", errors.ErrInvariant, f.idx, len(t.nodes))
		}
		n := t.nodes[f.idx]
		switch {
		case n.IsLeaf():
			note, err := noteFor(n.MaxByteRange)
			if err != nil {
				return nil, err
			}
			buf := append(f.path, n.DataHash...)
			buf = append(buf, note[:]...)
			proofs = append(proofs, Proof{Offset: n.MaxByteRange - 1, Proof: buf})

		case n.IsBranch():
			if n.Left >= len(t.nodes) || n.Right >= len(t.nodes) {
				return nil, errors.Errorf("%w: branch [%d,%d) points outside the arena", errors.ErrInvariant, n.MinByteRange, n.MaxByteRange)
			}
			note, err := noteFor(n.MinByteRange)
			if err != nil {
				return nil, err
			}
			left := make([]byte, 0, len(f.path)+BranchRecordSize+LeafRecordSize)
			left = append(left, f.path...)
			left = appendBranchRecord(left, t.nodes[n.Left].ID, t.nodes[n.Right].ID, note)
			right := bytes.Clone(left)

			// right first so the left subtree is emitted first
			stack = append(stack, frame{idx: n.Right, path: right}, frame{idx: n.Left, path: left})

		default:
			return nil, checkShape(n)
		}
	}
	return proofs, nil
}

func appendBranchRecord(buf []byte, left, right [HashSize]byte, note [NoteSize]byte) []byte {
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return append(buf, note[:]...)
}

// ParseProof splits a serialized proof into its branch records (root first)
// and the trailing leaf record. Any length that is not 64 + 96k bytes, or a
// branch note with non-zero padding, is a proof-integrity error. Leaf note
// padding is only reported in LeafRecord.ZeroPadded; ValidateChunk judges it
// in strict mode.
func ParseProof(proof []byte) ([]BranchRecord, LeafRecord, error) {
	if len(proof) < LeafRecordSize {
		return nil, LeafRecord{}, errors.Errorf("%w: proof is %d bytes, shorter than a leaf record", errors.ErrInvalidProof, len(proof))
	}
	branchLen := len(proof) - LeafRecordSize
	if branchLen%BranchRecordSize != 0 {
		return nil, LeafRecord{}, errors.Errorf("%w: %d trailing bytes after %d branch records",
			errors.ErrInvalidProof, branchLen%BranchRecordSize, branchLen/BranchRecordSize)
	}

	branches := make([]BranchRecord, 0, branchLen/BranchRecordSize)
	for off := 0; off < branchLen; off += BranchRecordSize {
		rec := proof[off : off+BranchRecordSize]
		offset, err := parseNote(rec[2*HashSize:])
		if err != nil {
			return nil, LeafRecord{}, errors.Wrap(err, "branch record")
		}
		var b BranchRecord
		copy(b.LeftID[:], rec[:HashSize])
		copy(b.RightID[:], rec[HashSize:2*HashSize])
		b.Offset = offset
		branches = append(branches, b)
	}

	rec := proof[branchLen:]
	offset, zeroPadded, err := readNote(rec[HashSize:])
	if err != nil {
		return nil, LeafRecord{}, errors.Wrap(err, "leaf record")
	}
	leaf := LeafRecord{Offset: offset, ZeroPadded: zeroPadded}
	copy(leaf.DataHash[:], rec[:HashSize])
	return branches, leaf, nil
}

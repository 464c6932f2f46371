package merkle

import (
	"encoding/binary"
	"math"

	"github.com/LumeraProtocol/weave/pkg/errors"
)

const (
	// HashSize is the size of node ids and data hashes.
	HashSize = 32
	// NoteSize is the size of an offset note.
	NoteSize = 32
	// BranchRecordSize is left_id || right_id || note.
	BranchRecordSize = 2*HashSize + NoteSize
	// LeafRecordSize is data_hash || note.
	LeafRecordSize = HashSize + NoteSize

	// NoChild marks an absent child index.
	NoChild = -1
)

// Node is either a leaf (DataHash set, no children) or a branch (two
// children, no DataHash). Children are indices into the owning Tree's arena.
type Node struct {
	ID           [HashSize]byte
	DataHash     []byte
	MinByteRange int
	MaxByteRange int
	Left         int
	Right        int
}

// IsLeaf reports whether n is a well-formed leaf.
func (n Node) IsLeaf() bool {
	return len(n.DataHash) == HashSize && n.Left == NoChild && n.Right == NoChild
}

// IsBranch reports whether n is a well-formed branch.
func (n Node) IsBranch() bool {
	return n.DataHash == nil && n.Left >= 0 && n.Right >= 0
}

// Range returns the byte range covered by n.
func (n Node) Range() Range {
	return Range{Min: n.MinByteRange, Max: n.MaxByteRange}
}

// Note encodes offset as 28 zero bytes followed by a big-endian u32.
func Note(offset uint32) [NoteSize]byte {
	var note [NoteSize]byte
	binary.BigEndian.PutUint32(note[NoteSize-4:], offset)
	return note
}

// noteFor encodes an absolute byte offset, rejecting values that do not fit.
func noteFor(offset int) ([NoteSize]byte, error) {
	if offset < 0 || uint64(offset) > math.MaxUint32 {
		return [NoteSize]byte{}, errors.Errorf("%w: offset %d does not fit a note", errors.ErrDataTooLarge, offset)
	}
	return Note(uint32(offset)), nil
}

// parseNote extracts the offset from a note, requiring zero padding.
func parseNote(b []byte) (uint32, error) {
	offset, padded, err := readNote(b)
	if err != nil {
		return 0, err
	}
	if !padded {
		return 0, errors.Errorf("%w: non-zero note padding", errors.ErrInvalidProof)
	}
	return offset, nil
}

// readNote extracts the offset from a note and reports whether its padding
// is all zero.
func readNote(b []byte) (offset uint32, zeroPadded bool, err error) {
	if len(b) != NoteSize {
		return 0, false, errors.Errorf("%w: note is %d bytes", errors.ErrInvalidProof, len(b))
	}
	zeroPadded = true
	for _, c := range b[:NoteSize-4] {
		if c != 0 {
			zeroPadded = false
			break
		}
	}
	return binary.BigEndian.Uint32(b[NoteSize-4:]), zeroPadded, nil
}

func checkShape(n Node) error {
	if n.IsLeaf() || n.IsBranch() {
		return nil
	}
	return errors.Errorf("%w: node [%d,%d) is neither a leaf nor a branch (data_hash=%d bytes, left=%d, right=%d)",
		errors.ErrInvariant, n.MinByteRange, n.MaxByteRange, len(n.DataHash), n.Left, n.Right)
}

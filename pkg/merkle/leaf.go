package merkle

import (
	"runtime"

	"github.com/LumeraProtocol/weave/pkg/errors"
	"github.com/LumeraProtocol/weave/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// GenerateLeaves splits data under the chunk policy and hashes every chunk
// into a leaf. Leaves are returned in byte order.
func GenerateLeaves(data []byte) ([]Node, error) {
	ranges, err := ChunkRanges(len(data))
	if err != nil {
		return nil, err
	}

	leaves := make([]Node, len(ranges))
	if len(ranges) == 1 {
		leaves[0] = hashLeaf(data, ranges[0])
		return leaves, nil
	}

	// chunks are independent; each goroutine writes only its own slot
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, r := range ranges {
		i, r := i, r
		g.Go(func() error {
			leaves[i] = hashLeaf(data[r.Min:r.Max], r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return leaves, nil
}

// hashLeaf builds the leaf for chunk, which covers r. Callers bound r.Max
// to u32, so the note cannot overflow.
func hashLeaf(chunk []byte, r Range) Node {
	dataHash := utils.Sha256(chunk)
	note := Note(uint32(r.Max))
	return Node{
		ID:           utils.HashAllSha256(dataHash[:], note[:]),
		DataHash:     dataHash[:],
		MinByteRange: r.Min,
		MaxByteRange: r.Max,
		Left:         NoChild,
		Right:        NoChild,
	}
}

// NewLeaf hashes chunk as the leaf covering r. It is used to rebuild the
// candidate leaf for a chunk received without its tree.
func NewLeaf(chunk []byte, r Range) (Node, error) {
	if r.Min < 0 || r.Len() != len(chunk) {
		return Node{}, errors.Errorf("%w: %d-byte chunk does not cover range [%d,%d)",
			errors.ErrInvariant, len(chunk), r.Min, r.Max)
	}
	if _, err := noteFor(r.Max); err != nil {
		return Node{}, err
	}
	return hashLeaf(chunk, r), nil
}

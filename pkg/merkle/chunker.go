package merkle

import (
	"math"

	"github.com/LumeraProtocol/weave/pkg/errors"
)

const (
	// MaxChunkSize is the largest chunk the splitter produces.
	MaxChunkSize = 256 * 1024
	// MinChunkSize is the smallest trailing chunk tolerated before the last
	// two chunks are merged and split evenly.
	MinChunkSize = 32 * 1024
)

// Range is a half-open byte range [Min, Max) of the source buffer.
type Range struct {
	Min int
	Max int
}

// Len returns the number of bytes covered by r.
func (r Range) Len() int { return r.Max - r.Min }

// ChunkRanges partitions [0, length) into ordered chunk ranges:
//
//  1. greedy MaxChunkSize chunks, the last one taking the remainder;
//  2. when there is more than one chunk and the last is below MinChunkSize,
//     the last two are merged and re-split into ceil(n/2) and floor(n/2);
//  3. when the final chunk is exactly MaxChunkSize a zero-length chunk is
//     appended.
//
// An empty buffer yields the single range [0, 0).
func ChunkRanges(length int) ([]Range, error) {
	if length < 0 {
		return nil, errors.Errorf("%w: negative buffer length %d", errors.ErrInvariant, length)
	}
	if uint64(length) > math.MaxUint32 {
		return nil, errors.Errorf("%w: %d bytes exceeds u32 offsets", errors.ErrDataTooLarge, length)
	}

	ranges := make([]Range, 0, length/MaxChunkSize+2)
	for off := 0; off < length; off += MaxChunkSize {
		ranges = append(ranges, Range{Min: off, Max: min(off+MaxChunkSize, length)})
	}
	if len(ranges) == 0 {
		ranges = append(ranges, Range{})
	}

	if n := len(ranges); n > 1 && ranges[n-1].Len() < MinChunkSize {
		start := ranges[n-2].Min
		split := start + (length-start+1)/2
		ranges = append(ranges[:n-2],
			Range{Min: start, Max: split},
			Range{Min: split, Max: length},
		)
	}

	if ranges[len(ranges)-1].Len() == MaxChunkSize {
		ranges = append(ranges, Range{Min: length, Max: length})
	}
	return ranges, nil
}

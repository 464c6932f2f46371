package merkle

import (
	"math"
	"strconv"
	"testing"

	"github.com/LumeraProtocol/weave/pkg/errors"
	"github.com/stretchr/testify/require"
)

const kib = 1024

func TestChunkRangesPartition(t *testing.T) {
	lengths := []int{
		0, 1, MinChunkSize - 1, MinChunkSize, MaxChunkSize - 1, MaxChunkSize, MaxChunkSize + 1,
		MaxChunkSize + MinChunkSize - 1, MaxChunkSize + MinChunkSize, 2 * MaxChunkSize,
		2*MaxChunkSize + 1, 257 * kib, 300 * kib, 3*MaxChunkSize + 5, 5*MaxChunkSize + MinChunkSize,
	}

	for _, length := range lengths {
		t.Run(strconv.Itoa(length), func(t *testing.T) {
			ranges, err := ChunkRanges(length)
			require.NoError(t, err)
			require.NotEmpty(t, ranges)

			next := 0
			for i, r := range ranges {
				require.Equal(t, next, r.Min, "range %d must start where the previous ended", i)
				require.GreaterOrEqual(t, r.Len(), 0)
				require.LessOrEqual(t, r.Len(), MaxChunkSize)
				next = r.Max
			}
			require.Equal(t, length, next)

			last := ranges[len(ranges)-1]
			if length > 0 && length%MaxChunkSize == 0 {
				require.Zero(t, last.Len(), "exact multiples end with an empty chunk")
			} else if length > 0 {
				require.NotZero(t, last.Len())
			}
			if len(ranges) > 1 && last.Len() > 0 {
				require.GreaterOrEqual(t, last.Len(), MinChunkSize)
			}
		})
	}
}

func TestChunkRangesScenarios(t *testing.T) {
	cases := []struct {
		name   string
		length int
		want   []Range
	}{
		{
			name:   "empty buffer yields one empty chunk",
			length: 0,
			want:   []Range{{0, 0}},
		},
		{
			name:   "remainder above minimum is kept",
			length: 300 * kib,
			want:   []Range{{0, MaxChunkSize}, {MaxChunkSize, 300 * kib}},
		},
		{
			name:   "small remainder is merged and split evenly",
			length: 257 * kib,
			want:   []Range{{0, 257 * kib / 2}, {257 * kib / 2, 257 * kib}},
		},
		{
			name:   "odd merge puts the extra byte first",
			length: MaxChunkSize + 1001,
			want:   []Range{{0, (MaxChunkSize + 1002) / 2}, {(MaxChunkSize + 1002) / 2, MaxChunkSize + 1001}},
		},
		{
			name:   "exact max size appends an empty chunk",
			length: MaxChunkSize,
			want:   []Range{{0, MaxChunkSize}, {MaxChunkSize, MaxChunkSize}},
		},
		{
			name:   "merge only touches the last two chunks",
			length: 2*MaxChunkSize + 10,
			want: []Range{
				{0, MaxChunkSize},
				{MaxChunkSize, MaxChunkSize + (MaxChunkSize+10)/2},
				{MaxChunkSize + (MaxChunkSize+10)/2, 2*MaxChunkSize + 10},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ChunkRanges(tc.length)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestChunkRangesRejectsInvalidLengths(t *testing.T) {
	_, err := ChunkRanges(-1)
	require.ErrorIs(t, err, errors.ErrInvariant)

	if strconv.IntSize < 64 {
		t.Skip("u32 overflow needs 64-bit ints")
	}
	tooLarge := uint64(math.MaxUint32) + 1
	_, err = ChunkRanges(int(tooLarge))
	require.ErrorIs(t, err, errors.ErrDataTooLarge)
}

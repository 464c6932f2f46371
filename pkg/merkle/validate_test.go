package merkle

import (
	"strconv"
	"testing"

	"github.com/LumeraProtocol/weave/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestValidateChunkRoundTrip(t *testing.T) {
	sizes := []int{
		0, 1, 100, MinChunkSize, 257 * kib, 300 * kib, MaxChunkSize,
		2*MaxChunkSize + 10, 4*MaxChunkSize + MinChunkSize, 9*MaxChunkSize + 12345,
	}

	for _, size := range sizes {
		t.Run(strconv.Itoa(size), func(t *testing.T) {
			tree := mustTree(t, testData(size))
			proofs, err := tree.ResolveProofs()
			require.NoError(t, err)

			for i, leaf := range tree.Leaves() {
				require.NoError(t, ValidateChunk(tree.RootID(), leaf, proofs[i]), "leaf %d", i)

				// a zero-length leaf shares its offset with the branch above it
				// and is routed left by the strict walk
				if leaf.MaxByteRange > leaf.MinByteRange || tree.LeafCount() == 1 {
					require.NoError(t, ValidateChunk(tree.RootID(), leaf, proofs[i], WithStrictLeafCheck()), "leaf %d", i)
				}
			}
		})
	}
}

func TestValidateChunkTrailingEmptyLeaf(t *testing.T) {
	tree := mustTree(t, testData(2*MaxChunkSize))
	leaves := tree.Leaves()
	require.Len(t, leaves, 3)
	last := leaves[2]
	require.Zero(t, last.Range().Len())

	proofs, err := tree.ResolveProofs()
	require.NoError(t, err)
	require.Equal(t, -1, proofs[2].Offset)

	require.NoError(t, ValidateChunk(tree.RootID(), last, proofs[2]))
	err = ValidateChunk(tree.RootID(), last, proofs[2], WithStrictLeafCheck())
	require.ErrorIs(t, err, errors.ErrInvalidProof)
}

func TestValidateChunkWrongRoot(t *testing.T) {
	tree := mustTree(t, testData(3*MaxChunkSize+99))
	proofs, err := tree.ResolveProofs()
	require.NoError(t, err)

	other := mustTree(t, testData(3*MaxChunkSize+100))
	for i, leaf := range tree.Leaves() {
		err := ValidateChunk(other.RootID(), leaf, proofs[i])
		require.ErrorIs(t, err, errors.ErrInvalidProof)
	}
}

func TestValidateChunkWrongLeaf(t *testing.T) {
	tree := mustTree(t, testData(3*MaxChunkSize+99))
	proofs, err := tree.ResolveProofs()
	require.NoError(t, err)
	leaves := tree.Leaves()

	// proof of leaf 0 presented for a leaf in the other subtree
	err = ValidateChunk(tree.RootID(), leaves[3], proofs[0])
	require.ErrorIs(t, err, errors.ErrInvalidProof)

	// a sibling proof walks to the right id, only the leaf record differs
	require.NoError(t, ValidateChunk(tree.RootID(), leaves[1], proofs[0]))
	err = ValidateChunk(tree.RootID(), leaves[1], proofs[0], WithStrictLeafCheck())
	require.ErrorIs(t, err, errors.ErrInvalidProof)
}

func TestValidateChunkRejectsBranchCandidate(t *testing.T) {
	tree := mustTree(t, testData(2*MaxChunkSize+MinChunkSize))
	proofs, err := tree.ResolveProofs()
	require.NoError(t, err)

	err = ValidateChunk(tree.RootID(), tree.Root(), proofs[0])
	require.ErrorIs(t, err, errors.ErrInvariant)
}

func TestValidateChunkStrictDetectsEveryBitFlip(t *testing.T) {
	tree := mustTree(t, testData(2*MaxChunkSize+MinChunkSize))
	proofs, err := tree.ResolveProofs()
	require.NoError(t, err)
	leaf := tree.Leaves()[1]
	proof := proofs[1]

	for i := range proof.Proof {
		for bit := 0; bit < 8; bit++ {
			tampered := Proof{Offset: proof.Offset, Proof: append([]byte(nil), proof.Proof...)}
			tampered.Proof[i] ^= 1 << bit
			err := ValidateChunk(tree.RootID(), leaf, tampered, WithStrictLeafCheck())
			require.ErrorIs(t, err, errors.ErrInvalidProof, "byte %d bit %d", i, bit)
		}
	}
}

// The literal check only fails a leaf record when both the id and the data
// hash disagree, so flips inside the leaf record, padding included, go
// unnoticed there. Every flip inside a branch record is still caught.
func TestValidateChunkLiteralBitFlips(t *testing.T) {
	tree := mustTree(t, testData(2*MaxChunkSize+MinChunkSize))
	proofs, err := tree.ResolveProofs()
	require.NoError(t, err)
	leaf := tree.Leaves()[1]
	proof := proofs[1]
	leafStart := len(proof.Proof) - LeafRecordSize

	for i := range proof.Proof {
		for bit := 0; bit < 8; bit++ {
			tampered := Proof{Offset: proof.Offset, Proof: append([]byte(nil), proof.Proof...)}
			tampered.Proof[i] ^= 1 << bit
			err := ValidateChunk(tree.RootID(), leaf, tampered)

			if i < leafStart {
				require.ErrorIs(t, err, errors.ErrInvalidProof, "byte %d bit %d", i, bit)
			} else {
				require.NoError(t, err, "byte %d bit %d", i, bit)
			}
		}
	}
}

func TestValidateChunkStrictCatchesLeafRecordOffset(t *testing.T) {
	tree := mustTree(t, testData(MaxChunkSize+MinChunkSize))
	proofs, err := tree.ResolveProofs()
	require.NoError(t, err)
	leaf := tree.Leaves()[0]

	tampered := Proof{Offset: proofs[0].Offset, Proof: append([]byte(nil), proofs[0].Proof...)}
	tampered.Proof[len(tampered.Proof)-1] ^= 0x01

	require.NoError(t, ValidateChunk(tree.RootID(), leaf, tampered, WithLeafCheck(LeafCheckLiteral)))
	require.ErrorIs(t, ValidateChunk(tree.RootID(), leaf, tampered, WithStrictLeafCheck()), errors.ErrInvalidProof)
}

func TestValidateChunkLeafPaddingOnlyStrict(t *testing.T) {
	tree := mustTree(t, testData(2*MaxChunkSize))
	proofs, err := tree.ResolveProofs()
	require.NoError(t, err)
	leaf := tree.Leaves()[0]

	tampered := Proof{Offset: proofs[0].Offset, Proof: append([]byte(nil), proofs[0].Proof...)}
	tampered.Proof[len(tampered.Proof)-LeafRecordSize+HashSize] ^= 0x01

	require.NoError(t, ValidateChunk(tree.RootID(), leaf, tampered))
	require.ErrorIs(t, ValidateChunk(tree.RootID(), leaf, tampered, WithStrictLeafCheck()), errors.ErrInvalidProof)
}

func TestValidateRebuiltLeaf(t *testing.T) {
	data := testData(3*MaxChunkSize + 99)
	tree := mustTree(t, data)
	proofs, err := tree.ResolveProofs()
	require.NoError(t, err)

	for i, leaf := range tree.Leaves() {
		chunk := data[leaf.MinByteRange:leaf.MaxByteRange]
		rebuilt, err := NewLeaf(chunk, leaf.Range())
		require.NoError(t, err)
		require.Equal(t, leaf, rebuilt)
		require.NoError(t, ValidateChunk(tree.RootID(), rebuilt, proofs[i], WithStrictLeafCheck()))
	}

	_, err = NewLeaf(data[:10], Range{Min: 0, Max: 11})
	require.ErrorIs(t, err, errors.ErrInvariant)
}

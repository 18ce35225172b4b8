package merkle

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleLeaves(n int) [][]byte {
	leaves := make([][]byte, n)
	for i := range leaves {
		leaves[i] = []byte(fmt.Sprintf("leaf-%d", i))
	}
	return leaves
}

func TestRootEmptyIsSentinel(t *testing.T) {
	require.Equal(t, EmptyRoot(), Root(nil))
	require.Equal(t, EmptyRoot(), Root([][]byte{}))
	require.NotEqual(t, EmptyRoot(), Root(sampleLeaves(1)))
}

func TestRootDeterministicAndOrderSensitive(t *testing.T) {
	leaves := sampleLeaves(5)
	require.Equal(t, Root(leaves), Root(leaves))

	swapped := sampleLeaves(5)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	require.NotEqual(t, Root(leaves), Root(swapped))
}

func TestProveVerifyAllIndexes(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 8, 13} {
		leaves := sampleLeaves(n)
		root := Root(leaves)
		for i := 0; i < n; i++ {
			proof, err := Prove(leaves, i)
			require.NoError(t, err)
			require.True(t, Verify(leaves[i], proof, root), "n=%d index=%d", n, i)
		}
	}
}

func TestProveIndexOutOfRange(t *testing.T) {
	leaves := sampleLeaves(3)
	_, err := Prove(leaves, -1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = Prove(leaves, 3)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestVerifyRejectsSingleBitMutations(t *testing.T) {
	leaves := sampleLeaves(7)
	root := Root(leaves)
	proof, err := Prove(leaves, 4)
	require.NoError(t, err)
	require.True(t, Verify(leaves[4], proof, root))

	// Flip one bit in the leaf.
	leaf := append([]byte(nil), leaves[4]...)
	leaf[0] ^= 0x01
	require.False(t, Verify(leaf, proof, root))

	// Flip one bit in each proof step hash.
	for i := range proof {
		mutated := make([]ProofStep, len(proof))
		copy(mutated, proof)
		mutated[i].Hash[0] ^= 0x01
		require.False(t, Verify(leaves[4], mutated, root), "step %d", i)
	}

	// Flip the sibling position flag.
	flipped := make([]ProofStep, len(proof))
	copy(flipped, proof)
	flipped[0].Right = !flipped[0].Right
	require.False(t, Verify(leaves[4], flipped, root))

	// Flip one bit in the root.
	root[31] ^= 0x01
	require.False(t, Verify(leaves[4], proof, root))
}

func TestVerifyFromHashMatchesVerify(t *testing.T) {
	leaves := sampleLeaves(4)
	root := Root(leaves)
	proof, err := Prove(leaves, 2)
	require.NoError(t, err)
	require.True(t, VerifyFromHash(HashLeaf(leaves[2]), proof, root))
}

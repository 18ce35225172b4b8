package merkle

import (
	"errors"
	"fmt"

	"lukechampine.com/blake3"
)

// HashSize is the size in bytes of every node in the tree.
const HashSize = 32

var (
	leafPrefix = []byte("spacekit:merkle:leaf:")
	nodePrefix = []byte("spacekit:merkle:node:")

	// emptyRoot is the sentinel commitment for an empty leaf list. Committing
	// to zero transactions is legal (e.g. a receipt trie for a failed batch),
	// so the empty case yields a fixed root instead of an error.
	emptyRoot = blake3.Sum256([]byte("spacekit:merkle:empty"))

	// ErrIndexOutOfRange is returned when a proof is requested for a leaf
	// index outside the leaf list.
	ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")
)

// ProofStep is one sibling on the path from a leaf to the root. Right reports
// whether the sibling sits to the right of the running hash, so verification
// does not need to know the tree shape in advance.
type ProofStep struct {
	Hash  [HashSize]byte `json:"hash"`
	Right bool           `json:"right"`
}

// HashLeaf hashes a raw leaf with leaf domain separation.
func HashLeaf(leaf []byte) [HashSize]byte {
	h := blake3.New(HashSize, nil)
	h.Write(leafPrefix)
	h.Write(leaf)
	var out [HashSize]byte
	h.Sum(out[:0])
	return out
}

func hashNode(left, right [HashSize]byte) [HashSize]byte {
	h := blake3.New(HashSize, nil)
	h.Write(nodePrefix)
	h.Write(left[:])
	h.Write(right[:])
	var out [HashSize]byte
	h.Sum(out[:0])
	return out
}

// Root computes the binary Merkle root of the ordered leaf list. Levels of
// odd length duplicate their last node. An empty list yields the sentinel
// empty root.
func Root(leaves [][]byte) [HashSize]byte {
	if len(leaves) == 0 {
		return emptyRoot
	}
	level := make([][HashSize]byte, len(leaves))
	for i, leaf := range leaves {
		level[i] = HashLeaf(leaf)
	}
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([][HashSize]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashNode(level[i], level[i+1]))
		}
		level = next
	}
	return level[0]
}

// EmptyRoot returns the sentinel root committed to by an empty leaf list.
func EmptyRoot() [HashSize]byte {
	return emptyRoot
}

// Prove returns the sibling path that reconstructs the root from the leaf at
// the provided index.
func Prove(leaves [][]byte, index int) ([]ProofStep, error) {
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("%w: index %d with %d leaves", ErrIndexOutOfRange, index, len(leaves))
	}
	level := make([][HashSize]byte, len(leaves))
	for i, leaf := range leaves {
		level[i] = HashLeaf(leaf)
	}
	proof := make([]ProofStep, 0)
	pos := index
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		sibling := pos ^ 1
		proof = append(proof, ProofStep{Hash: level[sibling], Right: sibling > pos})
		next := make([][HashSize]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashNode(level[i], level[i+1]))
		}
		level = next
		pos /= 2
	}
	return proof, nil
}

// Verify replays the pairing rule from a raw leaf through the proof and
// compares the result against the claimed root.
func Verify(leaf []byte, proof []ProofStep, root [HashSize]byte) bool {
	return VerifyFromHash(HashLeaf(leaf), proof, root)
}

// VerifyFromHash is Verify for callers that already hold the leaf hash.
func VerifyFromHash(leafHash [HashSize]byte, proof []ProofStep, root [HashSize]byte) bool {
	running := leafHash
	for _, step := range proof {
		if step.Right {
			running = hashNode(running, step.Hash)
		} else {
			running = hashNode(step.Hash, running)
		}
	}
	return running == root
}

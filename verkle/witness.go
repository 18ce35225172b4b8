package verkle

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	gverkle "github.com/ethereum/go-verkle"
)

var (
	// ErrWitnessMismatch is returned when a witness's accessed keys or
	// values are inconsistent with its multiproof.
	ErrWitnessMismatch = errors.New("verkle: witness does not match proof")
	// ErrWitnessMalformed is returned when a witness cannot be decoded.
	ErrWitnessMalformed = errors.New("verkle: malformed witness")
)

// Witness proves that the accessed key set is consistent with a state
// transition from PreStateRoot to PostStateRoot. One witness is generated
// per block at seal time.
type Witness struct {
	ProofHex      string   `json:"proofHex"`
	AccessedKeys  []Access `json:"accessedKeys"`
	PreStateRoot  string   `json:"preStateRoot"`
	PostStateRoot string   `json:"postStateRoot"`
}

// witnessEnvelope is the serialized multiproof carried in ProofHex.
type witnessEnvelope struct {
	Proof     *gverkle.VerkleProof `json:"proof"`
	StateDiff gverkle.StateDiff    `json:"stateDiff"`
}

// GenerateWitness builds one multi-point proof covering every unique key in
// the access log (a write wins over a read of the same key) between the
// pre-block tree and the current tree. An empty access set yields an empty,
// always-valid witness.
func (m *Manager) GenerateWitness(log []Access, preRoot string) (*Witness, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deduped := dedupe(log)
	w := &Witness{
		AccessedKeys:  deduped,
		PreStateRoot:  preRoot,
		PostStateRoot: hex.EncodeToString(m.root[:]),
	}
	if len(deduped) == 0 {
		return w, nil
	}

	keys := make([][]byte, len(deduped))
	for i, access := range deduped {
		tk := TreeKey(access.Key)
		keys[i] = append([]byte(nil), tk[:]...)
	}

	// Both trees must carry fresh commitments before proving.
	m.preTree.Commit()
	m.tree.Commit()
	proof, _, _, _, err := gverkle.MakeVerkleMultiProof(m.preTree, m.tree, keys, nil)
	if err != nil {
		return nil, fmt.Errorf("verkle: multiproof: %w", err)
	}
	vp, diff, err := gverkle.SerializeProof(proof)
	if err != nil {
		return nil, fmt.Errorf("verkle: serialize proof: %w", err)
	}
	blob, err := json.Marshal(witnessEnvelope{Proof: vp, StateDiff: diff})
	if err != nil {
		return nil, fmt.Errorf("verkle: encode witness: %w", err)
	}
	w.ProofHex = hex.EncodeToString(blob)
	return w, nil
}

// VerifyWitness rebuilds the derived keys and value commitments from the
// witness's accessed-key list and checks them against the multiproof. Any
// derivation or proof mismatch fails verification. Verification needs no
// state beyond the witness itself.
func VerifyWitness(w *Witness) error {
	if w == nil {
		return fmt.Errorf("%w: nil witness", ErrWitnessMalformed)
	}
	if len(w.AccessedKeys) == 0 && w.ProofHex == "" {
		// Empty access set: nothing to prove.
		return nil
	}
	if w.ProofHex == "" {
		return fmt.Errorf("%w: missing proof for %d accessed keys", ErrWitnessMalformed, len(w.AccessedKeys))
	}

	blob, err := hex.DecodeString(w.ProofHex)
	if err != nil {
		return fmt.Errorf("%w: proof hex: %v", ErrWitnessMalformed, err)
	}
	var envelope witnessEnvelope
	if err := json.Unmarshal(blob, &envelope); err != nil {
		return fmt.Errorf("%w: envelope: %v", ErrWitnessMalformed, err)
	}
	if envelope.Proof == nil {
		return fmt.Errorf("%w: missing multiproof", ErrWitnessMalformed)
	}

	preRootBytes, err := hex.DecodeString(w.PreStateRoot)
	if err != nil || len(preRootBytes) != 32 {
		return fmt.Errorf("%w: pre-state root", ErrWitnessMalformed)
	}
	postRootBytes, err := hex.DecodeString(w.PostStateRoot)
	if err != nil || len(postRootBytes) != 32 {
		return fmt.Errorf("%w: post-state root", ErrWitnessMalformed)
	}
	if err := gverkle.Verify(envelope.Proof, preRootBytes, postRootBytes, envelope.StateDiff); err != nil {
		return fmt.Errorf("%w: %v", ErrWitnessMismatch, err)
	}

	// Cross-check every accessed key against the state diff: the derived
	// stem/suffix must appear, and for writes the post value must commit to
	// the claimed raw value.
	diffIndex := make(map[[32]byte]*diffEntry, len(envelope.StateDiff))
	for i := range envelope.StateDiff {
		stem := envelope.StateDiff[i].Stem
		for j := range envelope.StateDiff[i].SuffixDiffs {
			sd := &envelope.StateDiff[i].SuffixDiffs[j]
			var full [32]byte
			copy(full[:31], stem[:])
			full[31] = sd.Suffix
			diffIndex[full] = &diffEntry{pre: sd.CurrentValue, post: sd.NewValue}
		}
	}
	for _, access := range dedupe(w.AccessedKeys) {
		tk := TreeKey(access.Key)
		entry, ok := diffIndex[tk]
		if !ok {
			return fmt.Errorf("%w: key %q absent from proof", ErrWitnessMismatch, access.Key)
		}
		expected := LeafValue(access.Value)
		switch access.Mode {
		case ModeWrite:
			claimed := entry.post
			if claimed == nil {
				claimed = entry.pre
			}
			if claimed == nil || !bytes.Equal(claimed[:], expected[:]) {
				return fmt.Errorf("%w: written value for %q", ErrWitnessMismatch, access.Key)
			}
		case ModeRead:
			// A read of a missing key legitimately has no current value.
			if access.Value != nil {
				if entry.pre == nil || !bytes.Equal(entry.pre[:], expected[:]) {
					return fmt.Errorf("%w: read value for %q", ErrWitnessMismatch, access.Key)
				}
			}
		default:
			return fmt.Errorf("%w: unknown access mode %q", ErrWitnessMalformed, access.Mode)
		}
	}
	return nil
}

type diffEntry struct {
	pre  *[32]byte
	post *[32]byte
}

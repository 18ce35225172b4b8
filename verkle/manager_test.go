package verkle

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"spacekit/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(storage.NewMemDB())
	require.NoError(t, m.Init())
	return m
}

func TestInitSeedsExistingEntries(t *testing.T) {
	db := storage.NewMemDB()
	require.NoError(t, db.Set([]byte("a"), []byte("1")))
	require.NoError(t, db.Set([]byte("b"), []byte("2")))

	m := NewManager(db)
	require.NoError(t, m.Init())
	seeded := m.Root()

	// A fresh manager over the same writes converges to the same root.
	db2 := storage.NewMemDB()
	m2 := NewManager(db2)
	require.NoError(t, m2.Init())
	require.NotEqual(t, seeded, m2.Root())
	require.NoError(t, m2.Set("a", []byte("1")))
	require.NoError(t, m2.Set("b", []byte("2")))
	require.Equal(t, seeded, m2.Root())
}

func TestSetRefreshesRootSynchronously(t *testing.T) {
	m := newTestManager(t)
	before := m.Root()
	require.NoError(t, m.Set("key", []byte("value")))
	after := m.Root()
	require.NotEqual(t, before, after)

	// Overwriting with the same value keeps the root stable.
	require.NoError(t, m.Set("key", []byte("value")))
	require.Equal(t, after, m.Root())
}

func TestGetRecordsReadAccess(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Set("k", []byte("v")))

	value, err := m.Get("k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), value)

	_, err = m.Get("missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	log, _ := m.FlushAccessLog()
	require.Len(t, log, 3)
	require.Equal(t, ModeWrite, log[0].Mode)
	require.Equal(t, ModeRead, log[1].Mode)
	require.Equal(t, "missing", log[2].Key)
	require.Nil(t, log[2].Value)
}

func TestFlushAccessLogResetsMarker(t *testing.T) {
	m := newTestManager(t)
	m.MarkPreBlockRoot()
	preRoot := m.Root()
	require.NoError(t, m.Set("x", []byte("1")))

	log, flushedPre := m.FlushAccessLog()
	require.Len(t, log, 1)
	require.Equal(t, preRoot, flushedPre)

	// Second flush drains nothing and the marker now sits at the new root.
	log, flushedPre = m.FlushAccessLog()
	require.Empty(t, log)
	require.Equal(t, m.Root(), flushedPre)
}

func TestDedupeWriteWinsOverRead(t *testing.T) {
	log := []Access{
		{Key: "k", Value: []byte("old"), Mode: ModeRead},
		{Key: "k", Value: []byte("new"), Mode: ModeWrite},
		{Key: "other", Value: []byte("x"), Mode: ModeRead},
	}
	deduped := dedupe(log)
	require.Len(t, deduped, 2)
	for _, access := range deduped {
		if access.Key == "k" {
			require.Equal(t, ModeWrite, access.Mode)
			require.Equal(t, []byte("new"), access.Value)
		}
	}
}

func TestWitnessRoundTrip(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Set("seed", []byte("genesis")))
	m.MarkPreBlockRoot()
	_, _ = m.FlushAccessLog()

	m.MarkPreBlockRoot()
	_, err := m.Get("seed")
	require.NoError(t, err)
	require.NoError(t, m.Set("balance:alice", []byte("100")))
	require.NoError(t, m.Set("balance:bob", []byte("50")))

	log, preRoot := m.FlushAccessLog()
	witness, err := m.GenerateWitness(log, preRoot)
	require.NoError(t, err)
	require.Equal(t, preRoot, witness.PreStateRoot)
	require.Equal(t, m.Root(), witness.PostStateRoot)
	require.Len(t, witness.AccessedKeys, 3)
	require.NotEmpty(t, witness.ProofHex)

	require.NoError(t, VerifyWitness(witness))
}

func TestEmptyWitnessAlwaysValid(t *testing.T) {
	m := newTestManager(t)
	log, preRoot := m.FlushAccessLog()
	witness, err := m.GenerateWitness(log, preRoot)
	require.NoError(t, err)
	require.Empty(t, witness.ProofHex)
	require.Empty(t, witness.AccessedKeys)
	require.NoError(t, VerifyWitness(witness))
}

func TestVerifyWitnessRejectsTampering(t *testing.T) {
	m := newTestManager(t)
	m.MarkPreBlockRoot()
	require.NoError(t, m.Set("k1", []byte("v1")))
	require.NoError(t, m.Set("k2", []byte("v2")))
	log, preRoot := m.FlushAccessLog()
	witness, err := m.GenerateWitness(log, preRoot)
	require.NoError(t, err)
	require.NoError(t, VerifyWitness(witness))

	t.Run("mutated proof bytes", func(t *testing.T) {
		tampered := *witness
		raw := []byte(tampered.ProofHex)
		raw[len(raw)/2] ^= 0x01
		tampered.ProofHex = string(raw)
		require.Error(t, VerifyWitness(&tampered))
	})

	t.Run("mutated accessed value", func(t *testing.T) {
		tampered := *witness
		keys := make([]Access, len(witness.AccessedKeys))
		copy(keys, witness.AccessedKeys)
		keys[0].Value = []byte("forged")
		tampered.AccessedKeys = keys
		require.ErrorIs(t, VerifyWitness(&tampered), ErrWitnessMismatch)
	})

	t.Run("extra accessed key", func(t *testing.T) {
		tampered := *witness
		tampered.AccessedKeys = append(append([]Access(nil), witness.AccessedKeys...),
			Access{Key: "never-touched", Value: []byte("x"), Mode: ModeWrite})
		require.ErrorIs(t, VerifyWitness(&tampered), ErrWitnessMismatch)
	})

	t.Run("missing proof", func(t *testing.T) {
		tampered := *witness
		tampered.ProofHex = ""
		require.ErrorIs(t, VerifyWitness(&tampered), ErrWitnessMalformed)
	})
}

func TestSnapshotRoundTripReproducesStateRoot(t *testing.T) {
	m := newTestManager(t)
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Set(fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("value-%d", i))))
	}
	originalRoot := m.ComputeStateRoot()
	originalVerkle := m.Root()

	snap, err := m.CreateSnapshot()
	require.NoError(t, err)

	fresh := NewManager(storage.NewMemDB())
	require.NoError(t, fresh.Init())
	require.NoError(t, fresh.RestoreSnapshot(snap))

	require.Equal(t, originalRoot, fresh.ComputeStateRoot())
	require.Equal(t, originalVerkle, fresh.Root())
}

func TestComputeStateRootDeterministic(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Set("b", []byte("2")))
	require.NoError(t, m.Set("a", []byte("1")))
	first := m.ComputeStateRoot()

	m2 := newTestManager(t)
	require.NoError(t, m2.Set("a", []byte("1")))
	require.NoError(t, m2.Set("b", []byte("2")))
	require.Equal(t, first, m2.ComputeStateRoot())
	require.NotEqual(t, StateUnavailableRoot, first)
}

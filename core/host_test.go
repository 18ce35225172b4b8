package core

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"spacekit/runtime"
	"spacekit/storage"
	"spacekit/verkle"
)

func newTestOverlay(t *testing.T) (*stateOverlay, *verkle.Manager) {
	t.Helper()
	m := verkle.NewManager(storage.NewMemDB())
	require.NoError(t, m.Init())
	return newOverlay(m), m
}

func TestOverlayBuffersUntilCommit(t *testing.T) {
	overlay, m := newTestOverlay(t)
	overlay.set("k", []byte("v"))

	// Visible through the overlay, invisible in the manager.
	got, err := overlay.get("k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
	_, err = m.Get("k")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, overlay.commit())
	committed, err := m.Get("k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), committed)
}

func TestOverlayCommitOrderIsFirstWrite(t *testing.T) {
	overlay, _ := newTestOverlay(t)
	overlay.set("a", []byte("1"))
	overlay.set("b", []byte("2"))
	overlay.set("a", []byte("3"))
	require.Equal(t, []string{"a", "b"}, overlay.order)
	got, err := overlay.get("a")
	require.NoError(t, err)
	require.Equal(t, []byte("3"), got)
}

func TestOverlayDiscardLeavesStateUntouched(t *testing.T) {
	overlay, m := newTestOverlay(t)
	require.NoError(t, m.Set("k", []byte("old")))
	overlay.set("k", []byte("new"))

	// Dropping the overlay without commit keeps the old value.
	fresh, err := m.Get("k")
	require.NoError(t, err)
	require.Equal(t, []byte("old"), fresh)
}

func TestGasMeter(t *testing.T) {
	meter := &gasMeter{limit: 100}
	require.NoError(t, meter.Consume(60))
	require.Equal(t, uint64(40), meter.Remaining())
	require.ErrorIs(t, meter.Consume(41), runtime.ErrOutOfGas)
	require.Zero(t, meter.Remaining())
}

func TestGasMeterRejectsWrappingAmount(t *testing.T) {
	meter := &gasMeter{limit: 100}
	require.NoError(t, meter.Consume(60))
	require.ErrorIs(t, meter.Consume(math.MaxUint64), runtime.ErrOutOfGas)
	require.Zero(t, meter.Remaining())
}

func TestAmountRoundTrip(t *testing.T) {
	require.Equal(t, big.NewInt(0), parseAmount(nil))
	require.Equal(t, big.NewInt(0), parseAmount([]byte("garbage")))
	v := big.NewInt(100_000_000_000)
	require.Equal(t, v, parseAmount(formatAmount(v)))
	require.Equal(t, []byte("0"), formatAmount(nil))
}

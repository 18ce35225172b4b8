package mempool

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"spacekit/core/types"
)

func entryFor(i int) (*types.Transaction, *types.Receipt) {
	tx := &types.Transaction{ID: fmt.Sprintf("tx-%d", i), ContractID: "c"}
	return tx, types.NewReceipt(tx.ID, "c", 1, nil, nil, 0, 0)
}

func TestTakePreservesAdmissionOrder(t *testing.T) {
	pool := New()
	for i := 0; i < 5; i++ {
		pool.Add(entryFor(i))
	}
	require.Equal(t, 5, pool.Len())

	first := pool.Take(2)
	require.Len(t, first, 2)
	require.Equal(t, "tx-0", first[0].Tx.ID)
	require.Equal(t, "tx-1", first[1].Tx.ID)

	rest := pool.Take(0)
	require.Len(t, rest, 3)
	require.Equal(t, "tx-2", rest[0].Tx.ID)
	require.Zero(t, pool.Len())
}

func TestTakeFromEmptyPool(t *testing.T) {
	pool := New()
	require.Nil(t, pool.Take(10))
}

func TestPendingIsACopy(t *testing.T) {
	pool := New()
	pool.Add(entryFor(0))
	snapshot := pool.Pending()
	require.Len(t, snapshot, 1)

	pool.Add(entryFor(1))
	require.Len(t, snapshot, 1)
	require.Equal(t, 2, pool.Len())
}

func TestTakeMoreThanAvailable(t *testing.T) {
	pool := New()
	pool.Add(entryFor(0))
	taken := pool.Take(100)
	require.Len(t, taken, 1)
	require.Zero(t, pool.Len())
}

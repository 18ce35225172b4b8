// Package mempool buffers executed transactions and their receipts between
// admission and block sealing. Ordering is strictly first-in first-out so a
// block's transaction order matches admission order.
package mempool

import (
	"sync"

	"spacekit/core/types"
)

// Entry pairs an admitted transaction with the receipt produced when it was
// executed against pending state.
type Entry struct {
	Tx      *types.Transaction
	Receipt *types.Receipt
}

// Pool is the FIFO pending queue. Safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	entries []Entry
}

func New() *Pool {
	return &Pool{}
}

// Add appends an executed transaction to the back of the queue.
func (p *Pool) Add(tx *types.Transaction, receipt *types.Receipt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, Entry{Tx: tx, Receipt: receipt})
}

// Take removes and returns up to max entries from the front of the queue.
// max <= 0 drains everything.
func (p *Pool) Take(max int) []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.entries)
	if n == 0 {
		return nil
	}
	if max > 0 && max < n {
		n = max
	}
	taken := make([]Entry, n)
	copy(taken, p.entries[:n])
	remaining := make([]Entry, len(p.entries)-n)
	copy(remaining, p.entries[n:])
	p.entries = remaining
	return taken
}

// Pending returns a copy of the queue without draining it.
func (p *Pool) Pending() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Len reports the number of queued entries.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

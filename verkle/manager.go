// Package verkle maintains the authenticated world-state tree mirroring
// every key-value write, tracks per-block access sets, and produces compact
// multi-point witnesses that let a remote party verify a state transition
// without holding full state.
package verkle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"

	gverkle "github.com/ethereum/go-verkle"

	"spacekit/storage"
)

// AccessMode tags how a key was touched during a block.
type AccessMode string

const (
	ModeRead  AccessMode = "read"
	ModeWrite AccessMode = "write"
)

// StateUnavailableRoot is the degraded-mode sentinel returned by read-only
// state-root queries when the backend cannot be enumerated.
const StateUnavailableRoot = "state unavailable"

var (
	// ErrNotIterable is returned when the injected database does not expose
	// the entry-enumeration capability required to seed the tree.
	ErrNotIterable = errors.New("verkle: database does not support entry enumeration")
	// ErrNotClearable is returned by RestoreSnapshot when the target store
	// cannot be wiped.
	ErrNotClearable = errors.New("verkle: database does not support clearing")
)

// Access is one recorded read or write against the wrapped store.
type Access struct {
	Key   string     `json:"key"`
	Value []byte     `json:"value,omitempty"`
	Mode  AccessMode `json:"mode"`
}

// TreeKey derives the fixed 32-byte authenticated-tree key for a raw storage
// key: the hash's first 31 bytes address the stem, the final byte selects
// the leaf slot.
func TreeKey(key string) [32]byte {
	return sha256.Sum256([]byte(key))
}

// LeafValue commits to a raw stored value. Tree leaves are fixed at 32
// bytes, so the value itself is hashed in.
func LeafValue(value []byte) [32]byte {
	return sha256.Sum256(value)
}

// Manager wraps the injected key-value store with a live Verkle tree. All
// tree mutations happen synchronously under the manager lock, so the root is
// never read while an update is in flight.
type Manager struct {
	mu      sync.Mutex
	db      storage.Database
	entries storage.Iterable  // resolved at construction, nil if unsupported
	clear   storage.Clearable // resolved at construction, nil if unsupported

	tree    gverkle.VerkleNode
	preTree gverkle.VerkleNode
	root    [32]byte
	preRoot [32]byte

	accessLog []Access
}

// NewManager wraps db. Capability extensions (iteration, clearing) are
// resolved here once; Init must be called before first use.
func NewManager(db storage.Database) *Manager {
	m := &Manager{db: db}
	if it, ok := db.(storage.Iterable); ok {
		m.entries = it
	}
	if cl, ok := db.(storage.Clearable); ok {
		m.clear = cl
	}
	return m
}

// Init builds a fresh tree from every existing entry in the store and caches
// its root. The pre-block marker starts at the same root.
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		return ErrNotIterable
	}
	tree := gverkle.New()
	existing, err := m.entries.Entries()
	if err != nil {
		return fmt.Errorf("verkle: enumerate store: %w", err)
	}
	for _, entry := range existing {
		key := TreeKey(string(entry.Key))
		value := LeafValue(entry.Value)
		if err := tree.Insert(key[:], value[:], nil); err != nil {
			return fmt.Errorf("verkle: seed key %q: %w", entry.Key, err)
		}
	}
	m.tree = tree
	m.root = tree.Commit().Bytes()
	m.preTree = tree.Copy()
	m.preRoot = m.root
	m.accessLog = nil
	return nil
}

// Get reads a raw key from the store and records a read access. A missing
// key is recorded with a nil value and reported via storage.ErrNotFound.
func (m *Manager) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, err := m.db.Get([]byte(key))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	m.accessLog = append(m.accessLog, Access{Key: key, Value: value, Mode: ModeRead})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return value, nil
}

// Set writes a raw key to the store, mirrors it into the tree, refreshes the
// cached root, and records a write access. Set blocks until the tree
// mutation completes.
func (m *Manager) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tree == nil {
		return errors.New("verkle: manager not initialized")
	}
	if err := m.db.Set([]byte(key), value); err != nil {
		return err
	}
	tk := TreeKey(key)
	lv := LeafValue(value)
	if err := m.tree.Insert(tk[:], lv[:], nil); err != nil {
		return fmt.Errorf("verkle: tree insert %q: %w", key, err)
	}
	m.root = m.tree.Commit().Bytes()
	m.accessLog = append(m.accessLog, Access{Key: key, Value: append([]byte(nil), value...), Mode: ModeWrite})
	return nil
}

// Root returns the current tree commitment as hex.
func (m *Manager) Root() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return hex.EncodeToString(m.root[:])
}

// MarkPreBlockRoot captures the root as it stands before the block's writes.
// Called exactly once per block, before the first transaction is admitted.
func (m *Manager) MarkPreBlockRoot() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preRoot = m.root
	m.preTree = m.tree.Copy()
}

// FlushAccessLog atomically drains the accumulated access records and resets
// the pre-block marker to the current root, returning both for witness
// generation. Called exactly once per sealed block.
func (m *Manager) FlushAccessLog() ([]Access, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := m.accessLog
	pre := m.preRoot
	m.accessLog = nil
	m.preRoot = m.root
	return log, hex.EncodeToString(pre[:])
}

// dedupe collapses the access log by derived tree key, preferring the write
// record when a key was both read and written. Output is ordered by derived
// key for deterministic proofs.
func dedupe(log []Access) []Access {
	byKey := make(map[[32]byte]Access, len(log))
	for _, access := range log {
		tk := TreeKey(access.Key)
		prev, seen := byKey[tk]
		if !seen || (prev.Mode == ModeRead && access.Mode == ModeWrite) {
			byKey[tk] = access
			continue
		}
		if prev.Mode == ModeWrite && access.Mode == ModeWrite {
			// Later write wins: it reflects the post-state value.
			byKey[tk] = access
		}
	}
	keys := make([][32]byte, 0, len(byKey))
	for tk := range byKey {
		keys = append(keys, tk)
	}
	sort.Slice(keys, func(i, j int) bool {
		return string(keys[i][:]) < string(keys[j][:])
	})
	out := make([]Access, 0, len(keys))
	for _, tk := range keys {
		out = append(out, byKey[tk])
	}
	return out
}

// ComputeStateRoot returns a deterministic hash over every sorted entry in
// the store. When the backend cannot enumerate, the degraded sentinel root
// is returned without error; this is the explicitly designed fallback for
// read-only root queries.
func (m *Manager) ComputeStateRoot() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.computeStateRootLocked()
}

func (m *Manager) computeStateRootLocked() string {
	if m.entries == nil {
		return StateUnavailableRoot
	}
	entries, err := m.entries.Entries()
	if err != nil {
		return StateUnavailableRoot
	}
	sort.Slice(entries, func(i, j int) bool {
		return string(entries[i].Key) < string(entries[j].Key)
	})
	h := sha256.New()
	for _, entry := range entries {
		keyHash := sha256.Sum256(entry.Key)
		valueHash := sha256.Sum256(entry.Value)
		h.Write(keyHash[:])
		h.Write(valueHash[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Snapshot is a point-in-time copy of every entry in the wrapped store.
type Snapshot struct {
	Entries []storage.Entry `json:"entries"`
}

// CreateSnapshot copies out every entry. Restoring the snapshot into a fresh
// store reproduces an identical state root.
func (m *Manager) CreateSnapshot() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		return nil, ErrNotIterable
	}
	entries, err := m.entries.Entries()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Entries: make([]storage.Entry, len(entries))}
	for i, entry := range entries {
		snap.Entries[i] = storage.Entry{
			Key:   append([]byte(nil), entry.Key...),
			Value: append([]byte(nil), entry.Value...),
		}
	}
	return snap, nil
}

// RestoreSnapshot wipes the store, replays the snapshot, and rebuilds the
// tree from scratch.
func (m *Manager) RestoreSnapshot(snap *Snapshot) error {
	m.mu.Lock()
	if m.clear == nil {
		m.mu.Unlock()
		return ErrNotClearable
	}
	if err := m.clear.Clear(); err != nil {
		m.mu.Unlock()
		return err
	}
	for _, entry := range snap.Entries {
		if err := m.db.Set(entry.Key, entry.Value); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	m.mu.Unlock()
	return m.Init()
}

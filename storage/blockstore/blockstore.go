// Package blockstore persists sealed blocks in a bbolt file, indexed both by
// height and by block hash. Block bodies may be evicted from engine memory
// once written here; the store is the archival source of truth.
package blockstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"spacekit/core/types"
)

var (
	bucketBlocks    = []byte("blocks")
	bucketHashIndex = []byte("hash_index")
)

// ErrBlockNotFound is returned when no block exists at the requested height
// or hash.
var ErrBlockNotFound = errors.New("blockstore: block not found")

// Store is a bbolt-backed block archive. Safe for concurrent use.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the block archive at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("blockstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketBlocks); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketHashIndex)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("blockstore: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Put writes a sealed block. Writing the same height twice overwrites, which
// only happens when replaying an interrupted seal.
func (s *Store) Put(block *types.Block) error {
	if block == nil {
		return errors.New("blockstore: nil block")
	}
	blob, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("blockstore: encode block %d: %w", block.Height, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		key := heightKey(block.Height)
		if err := tx.Bucket(bucketBlocks).Put(key, blob); err != nil {
			return err
		}
		return tx.Bucket(bucketHashIndex).Put([]byte(block.BlockHash), key)
	})
}

// GetByHeight loads the block sealed at the given height.
func (s *Store) GetByHeight(height uint64) (*types.Block, error) {
	var block *types.Block
	err := s.db.View(func(tx *bolt.Tx) error {
		blob := tx.Bucket(bucketBlocks).Get(heightKey(height))
		if blob == nil {
			return fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
		}
		var err error
		block, err = decode(blob)
		return err
	})
	return block, err
}

// GetByHash loads the block with the given hash.
func (s *Store) GetByHash(hash string) (*types.Block, error) {
	var block *types.Block
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketHashIndex).Get([]byte(hash))
		if key == nil {
			return fmt.Errorf("%w: hash %s", ErrBlockNotFound, hash)
		}
		blob := tx.Bucket(bucketBlocks).Get(key)
		if blob == nil {
			return fmt.Errorf("%w: hash %s", ErrBlockNotFound, hash)
		}
		var err error
		block, err = decode(blob)
		return err
	})
	return block, err
}

// LatestHeight returns the highest sealed height, or 0 when empty.
func (s *Store) LatestHeight() (uint64, error) {
	var height uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		key, _ := tx.Bucket(bucketBlocks).Cursor().Last()
		if key != nil {
			height = binary.BigEndian.Uint64(key)
		}
		return nil
	})
	return height, err
}

// Close releases the underlying file.
func (s *Store) Close() error {
	return s.db.Close()
}

func heightKey(height uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, height)
	return key
}

func decode(blob []byte) (*types.Block, error) {
	var block types.Block
	if err := json.Unmarshal(blob, &block); err != nil {
		return nil, fmt.Errorf("blockstore: decode block: %w", err)
	}
	return &block, nil
}

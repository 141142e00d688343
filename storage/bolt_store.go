package storage

import (
	"context"
	"encoding/binary"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketBlocks      = []byte("blocks")
	bucketHeaders     = []byte("headers")
	bucketCheckpoints = []byte("checkpoints")
	bucketKeys        = []byte("keys")
	bucketMetadata    = []byte("metadata")
	bucketMeta        = []byte("meta")
	metaSchemaKey     = []byte("schema-version")
)

// BoltStore is a bbolt-backed Store, sized for the light-client deployment
// shape the spec describes (headers + checkpoints only, no full block
// bodies) but implementing the full Store interface so it is a legitimate
// drop-in for any component that only needs one embedded file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) a bbolt database at path, creating the
// fixed set of buckets on first use.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketBlocks, bucketHeaders, bucketCheckpoints, bucketKeys, bucketMetadata, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func beIndex(index uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, index)
	return buf
}

func (s *BoltStore) putIndexed(bucket []byte, index uint64, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(beIndex(index), value)
	})
}

func (s *BoltStore) getIndexed(bucket []byte, index uint64) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get(beIndex(index))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (s *BoltStore) PutBlock(_ context.Context, index uint64, blockJSON []byte) error {
	return s.putIndexed(bucketBlocks, index, blockJSON)
}

func (s *BoltStore) GetBlock(_ context.Context, index uint64) ([]byte, error) {
	return s.getIndexed(bucketBlocks, index)
}

func (s *BoltStore) PutBlocks(ctx context.Context, records []IndexedRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlocks)
		for _, r := range records {
			if err := b.Put(beIndex(r.Index), r.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) DeleteBlocksBefore(_ context.Context, index uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlocks)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if binary.BigEndian.Uint64(k) < index {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) HighestBlockIndex(_ context.Context) (uint64, bool, error) {
	var highest uint64
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketBlocks).Cursor()
		k, _ := c.Last()
		if k != nil {
			highest = binary.BigEndian.Uint64(k)
			found = true
		}
		return nil
	})
	return highest, found, err
}

func (s *BoltStore) PutHeader(_ context.Context, index uint64, headerJSON []byte) error {
	return s.putIndexed(bucketHeaders, index, headerJSON)
}

func (s *BoltStore) GetHeader(_ context.Context, index uint64) ([]byte, error) {
	return s.getIndexed(bucketHeaders, index)
}

func (s *BoltStore) PutHeaders(ctx context.Context, records []IndexedRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHeaders)
		for _, r := range records {
			if err := b.Put(beIndex(r.Index), r.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) PutCheckpoint(_ context.Context, index uint64, checkpointJSON []byte) error {
	return s.putIndexed(bucketCheckpoints, index, checkpointJSON)
}

func (s *BoltStore) GetCheckpoint(_ context.Context, index uint64) ([]byte, error) {
	return s.getIndexed(bucketCheckpoints, index)
}

func (s *BoltStore) LatestCheckpoint(_ context.Context) ([]byte, bool, error) {
	var latest []byte
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCheckpoints).Cursor()
		_, v := c.Last()
		if v != nil {
			latest = append([]byte(nil), v...)
			found = true
		}
		return nil
	})
	return latest, found, err
}

func (s *BoltStore) PutKey(_ context.Context, nodeID string, wrappedKeyJSON []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKeys).Put([]byte(nodeID), wrappedKeyJSON)
	})
}

func (s *BoltStore) GetKey(_ context.Context, nodeID string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketKeys).Get([]byte(nodeID))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (s *BoltStore) PutMetadata(_ context.Context, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put([]byte(key), value)
	})
}

func (s *BoltStore) GetMetadata(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMetadata).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (s *BoltStore) PutMetadataBatch(_ context.Context, items []KeyValue) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMetadata)
		for _, kv := range items {
			if err := b.Put([]byte(kv.Key), kv.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) SchemaVersion(_ context.Context) (int, error) {
	var version int
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(metaSchemaKey)
		if len(v) >= 8 {
			version = int(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	return version, err
}

func (s *BoltStore) SetSchemaVersion(_ context.Context, version int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(metaSchemaKey, beIndex(uint64(version)))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BoltStore)(nil)

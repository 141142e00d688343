package storage

import (
	"context"
	"encoding/binary"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key prefixes mirror the teacher's prefixed-key convention
// (core/state/manager.go's "balance:", "token:", ... byte-slice prefixes),
// applied here to the spec's five logical object stores sharing one LevelDB
// handle.
var (
	levelBlockPrefix      = []byte("blocks/")
	levelHeaderPrefix     = []byte("headers/")
	levelCheckpointPrefix = []byte("checkpoints/")
	levelKeyPrefix        = []byte("keys/")
	levelMetadataPrefix   = []byte("metadata/")
	levelSchemaKey        = []byte("schema-version")
)

// LevelDBStore is the primary on-disk Store backend, a direct
// generalization of the teacher's storage.LevelDB (storage/db.go) from a
// single Put/Get blob interface to the full Store surface.
type LevelDBStore struct {
	db *leveldb.DB
}

// NewLevelDBStore opens (or creates) a LevelDB database at path.
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBStore{db: db}, nil
}

func indexKey(prefix []byte, index uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], index)
	return buf
}

func (s *LevelDBStore) PutBlock(_ context.Context, index uint64, blockJSON []byte) error {
	return s.db.Put(indexKey(levelBlockPrefix, index), blockJSON, nil)
}

func (s *LevelDBStore) GetBlock(_ context.Context, index uint64) ([]byte, error) {
	v, err := s.db.Get(indexKey(levelBlockPrefix, index), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *LevelDBStore) PutBlocks(ctx context.Context, records []IndexedRecord) error {
	batch := new(leveldb.Batch)
	for _, r := range records {
		batch.Put(indexKey(levelBlockPrefix, r.Index), r.Value)
	}
	return s.db.Write(batch, nil)
}

func (s *LevelDBStore) DeleteBlocksBefore(_ context.Context, index uint64) error {
	iter := s.db.NewIterator(util.BytesPrefix(levelBlockPrefix), nil)
	defer iter.Release()
	batch := new(leveldb.Batch)
	for iter.Next() {
		key := iter.Key()
		idx := binary.BigEndian.Uint64(key[len(levelBlockPrefix):])
		if idx < index {
			batch.Delete(append([]byte(nil), key...))
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return s.db.Write(batch, nil)
}

func (s *LevelDBStore) HighestBlockIndex(_ context.Context) (uint64, bool, error) {
	iter := s.db.NewIterator(util.BytesPrefix(levelBlockPrefix), nil)
	defer iter.Release()
	found := false
	var highest uint64
	for iter.Next() {
		idx := binary.BigEndian.Uint64(iter.Key()[len(levelBlockPrefix):])
		if !found || idx > highest {
			highest = idx
			found = true
		}
	}
	return highest, found, iter.Error()
}

func (s *LevelDBStore) PutHeader(_ context.Context, index uint64, headerJSON []byte) error {
	return s.db.Put(indexKey(levelHeaderPrefix, index), headerJSON, nil)
}

func (s *LevelDBStore) GetHeader(_ context.Context, index uint64) ([]byte, error) {
	v, err := s.db.Get(indexKey(levelHeaderPrefix, index), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *LevelDBStore) PutHeaders(ctx context.Context, records []IndexedRecord) error {
	batch := new(leveldb.Batch)
	for _, r := range records {
		batch.Put(indexKey(levelHeaderPrefix, r.Index), r.Value)
	}
	return s.db.Write(batch, nil)
}

func (s *LevelDBStore) PutCheckpoint(_ context.Context, index uint64, checkpointJSON []byte) error {
	return s.db.Put(indexKey(levelCheckpointPrefix, index), checkpointJSON, nil)
}

func (s *LevelDBStore) GetCheckpoint(_ context.Context, index uint64) ([]byte, error) {
	v, err := s.db.Get(indexKey(levelCheckpointPrefix, index), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *LevelDBStore) LatestCheckpoint(_ context.Context) ([]byte, bool, error) {
	iter := s.db.NewIterator(util.BytesPrefix(levelCheckpointPrefix), nil)
	defer iter.Release()
	found := false
	var latest []byte
	for iter.Next() {
		found = true
		latest = append([]byte(nil), iter.Value()...)
	}
	return latest, found, iter.Error()
}

func (s *LevelDBStore) PutKey(_ context.Context, nodeID string, wrappedKeyJSON []byte) error {
	return s.db.Put(append(append([]byte(nil), levelKeyPrefix...), nodeID...), wrappedKeyJSON, nil)
}

func (s *LevelDBStore) GetKey(_ context.Context, nodeID string) ([]byte, error) {
	v, err := s.db.Get(append(append([]byte(nil), levelKeyPrefix...), nodeID...), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *LevelDBStore) PutMetadata(_ context.Context, key string, value []byte) error {
	return s.db.Put(append(append([]byte(nil), levelMetadataPrefix...), key...), value, nil)
}

func (s *LevelDBStore) GetMetadata(_ context.Context, key string) ([]byte, error) {
	v, err := s.db.Get(append(append([]byte(nil), levelMetadataPrefix...), key...), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *LevelDBStore) PutMetadataBatch(_ context.Context, items []KeyValue) error {
	batch := new(leveldb.Batch)
	for _, kv := range items {
		batch.Put(append(append([]byte(nil), levelMetadataPrefix...), kv.Key...), kv.Value)
	}
	return s.db.Write(batch, nil)
}

func (s *LevelDBStore) SchemaVersion(_ context.Context) (int, error) {
	v, err := s.db.Get(levelSchemaKey, nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(v) < 8 {
		return 0, nil
	}
	return int(binary.BigEndian.Uint64(v)), nil
}

func (s *LevelDBStore) SetSchemaVersion(_ context.Context, version int) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(version))
	return s.db.Put(levelSchemaKey, buf, nil)
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

var _ Store = (*LevelDBStore)(nil)

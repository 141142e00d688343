package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// storeFactories returns a constructor per backend so the conformance
// suite below runs identically against each, the same "one contract,
// many drivers" shape spec §6.2 describes for Store.
func storeFactories(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"mem": func() Store {
			return NewMemStore()
		},
		"bolt": func() Store {
			path := filepath.Join(t.TempDir(), "chain.db")
			s, err := NewBoltStore(path)
			if err != nil {
				t.Fatalf("NewBoltStore: %v", err)
			}
			return s
		},
		"leveldb": func() Store {
			path := filepath.Join(t.TempDir(), "chain.ldb")
			s, err := NewLevelDBStore(path)
			if err != nil {
				t.Fatalf("NewLevelDBStore: %v", err)
			}
			return s
		},
	}
}

func TestStoreConformance(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()

			if _, ok, err := s.HighestBlockIndex(ctx); err != nil || ok {
				t.Fatalf("empty store HighestBlockIndex = _, %v, %v; want ok=false", ok, err)
			}

			if err := s.PutBlock(ctx, 0, []byte(`{"index":0}`)); err != nil {
				t.Fatalf("PutBlock: %v", err)
			}
			if err := s.PutBlock(ctx, 2, []byte(`{"index":2}`)); err != nil {
				t.Fatalf("PutBlock: %v", err)
			}
			raw, err := s.GetBlock(ctx, 0)
			if err != nil {
				t.Fatalf("GetBlock: %v", err)
			}
			if string(raw) != `{"index":0}` {
				t.Fatalf("GetBlock(0) = %s", raw)
			}
			if _, err := s.GetBlock(ctx, 1); !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetBlock(1) err = %v, want ErrNotFound", err)
			}
			highest, ok, err := s.HighestBlockIndex(ctx)
			if err != nil || !ok || highest != 2 {
				t.Fatalf("HighestBlockIndex = %d, %v, %v; want 2, true, nil", highest, ok, err)
			}

			if err := s.PutBlocks(ctx, []IndexedRecord{{Index: 3, Value: []byte("a")}, {Index: 4, Value: []byte("b")}}); err != nil {
				t.Fatalf("PutBlocks: %v", err)
			}
			if v, err := s.GetBlock(ctx, 4); err != nil || string(v) != "b" {
				t.Fatalf("GetBlock(4) = %s, %v", v, err)
			}

			if err := s.DeleteBlocksBefore(ctx, 3); err != nil {
				t.Fatalf("DeleteBlocksBefore: %v", err)
			}
			if _, err := s.GetBlock(ctx, 0); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected block 0 to be pruned, got err=%v", err)
			}
			if v, err := s.GetBlock(ctx, 4); err != nil || string(v) != "b" {
				t.Fatalf("expected block 4 to survive pruning, got %s, %v", v, err)
			}

			if err := s.PutHeader(ctx, 0, []byte(`{"h":0}`)); err != nil {
				t.Fatalf("PutHeader: %v", err)
			}
			if v, err := s.GetHeader(ctx, 0); err != nil || string(v) != `{"h":0}` {
				t.Fatalf("GetHeader(0) = %s, %v", v, err)
			}
			if err := s.PutHeaders(ctx, []IndexedRecord{{Index: 1, Value: []byte("h1")}}); err != nil {
				t.Fatalf("PutHeaders: %v", err)
			}
			if v, err := s.GetHeader(ctx, 1); err != nil || string(v) != "h1" {
				t.Fatalf("GetHeader(1) = %s, %v", v, err)
			}

			if _, ok, err := s.LatestCheckpoint(ctx); err != nil || ok {
				t.Fatalf("empty LatestCheckpoint = _, %v, %v; want ok=false", ok, err)
			}
			if err := s.PutCheckpoint(ctx, 0, []byte("cp0")); err != nil {
				t.Fatalf("PutCheckpoint: %v", err)
			}
			if err := s.PutCheckpoint(ctx, 5, []byte("cp5")); err != nil {
				t.Fatalf("PutCheckpoint: %v", err)
			}
			latest, ok, err := s.LatestCheckpoint(ctx)
			if err != nil || !ok || string(latest) != "cp5" {
				t.Fatalf("LatestCheckpoint = %s, %v, %v; want cp5, true, nil", latest, ok, err)
			}
			if v, err := s.GetCheckpoint(ctx, 0); err != nil || string(v) != "cp0" {
				t.Fatalf("GetCheckpoint(0) = %s, %v", v, err)
			}

			if err := s.PutKey(ctx, "node-1", []byte("wrapped-key")); err != nil {
				t.Fatalf("PutKey: %v", err)
			}
			if v, err := s.GetKey(ctx, "node-1"); err != nil || string(v) != "wrapped-key" {
				t.Fatalf("GetKey = %s, %v", v, err)
			}
			if _, err := s.GetKey(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetKey(unknown) err = %v, want ErrNotFound", err)
			}

			if err := s.PutMetadata(ctx, "node_roles", []byte("{}")); err != nil {
				t.Fatalf("PutMetadata: %v", err)
			}
			if v, err := s.GetMetadata(ctx, "node_roles"); err != nil || string(v) != "{}" {
				t.Fatalf("GetMetadata = %s, %v", v, err)
			}
			if err := s.PutMetadataBatch(ctx, []KeyValue{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte("2")}}); err != nil {
				t.Fatalf("PutMetadataBatch: %v", err)
			}
			if v, err := s.GetMetadata(ctx, "b"); err != nil || string(v) != "2" {
				t.Fatalf("GetMetadata(b) = %s, %v", v, err)
			}

			if err := s.SetSchemaVersion(ctx, CurrentSchemaVersion); err != nil {
				t.Fatalf("SetSchemaVersion: %v", err)
			}
			if v, err := s.SchemaVersion(ctx); err != nil || v != CurrentSchemaVersion {
				t.Fatalf("SchemaVersion = %d, %v; want %d", v, err, CurrentSchemaVersion)
			}
		})
	}
}

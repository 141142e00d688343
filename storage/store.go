// Package storage defines the persistence interface the ledger engine is
// built against (spec §6.2) and ships several concrete backends. All writes
// are idempotent by primary key, and every method accepts a context since
// any persistence call may suspend (spec §5).
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get-style methods when no value exists for a key.
var ErrNotFound = errors.New("storage: not found")

// KeyValue batches multiple opaque metadata writes.
type KeyValue struct {
	Key   string
	Value []byte
}

// IndexedRecord batches multiple index-keyed writes (blocks, headers,
// checkpoints all key by a uint64 index).
type IndexedRecord struct {
	Index uint64
	Value []byte
}

// Store is the single persistence abstraction the chain and network layers
// depend on. It mirrors spec §6.2's five logical object stores: blocks,
// headers, checkpoints, keys, and metadata. Implementations need not be
// transactional across stores — each store's writes are idempotent by
// primary key, so replays and retries are always safe.
type Store interface {
	// Blocks stores full block JSON keyed by index.
	PutBlock(ctx context.Context, index uint64, blockJSON []byte) error
	GetBlock(ctx context.Context, index uint64) ([]byte, error)
	PutBlocks(ctx context.Context, records []IndexedRecord) error
	DeleteBlocksBefore(ctx context.Context, index uint64) error
	HighestBlockIndex(ctx context.Context) (uint64, bool, error)

	// Headers stores light-client header JSON keyed by index.
	PutHeader(ctx context.Context, index uint64, headerJSON []byte) error
	GetHeader(ctx context.Context, index uint64) ([]byte, error)
	PutHeaders(ctx context.Context, records []IndexedRecord) error

	// Checkpoints stores pruning checkpoints keyed by index.
	PutCheckpoint(ctx context.Context, index uint64, checkpointJSON []byte) error
	GetCheckpoint(ctx context.Context, index uint64) ([]byte, error)
	LatestCheckpoint(ctx context.Context) ([]byte, bool, error)

	// Keys stores the local node's wrapped key pair, keyed by node id.
	PutKey(ctx context.Context, nodeID string, wrappedKeyJSON []byte) error
	GetKey(ctx context.Context, nodeID string) ([]byte, error)

	// Metadata stores opaque string-keyed JSON blobs (node_roles,
	// institutions, karma_balances, proposal_<id>, account_<addr>,
	// soulbound_<addr>, pending_parent_requests_<parent>, ...).
	PutMetadata(ctx context.Context, key string, value []byte) error
	GetMetadata(ctx context.Context, key string) ([]byte, error)
	PutMetadataBatch(ctx context.Context, items []KeyValue) error

	// SchemaVersion reports the store-level schema version (spec §6.2);
	// migrations append object stores and never alter existing semantics.
	SchemaVersion(ctx context.Context) (int, error)
	SetSchemaVersion(ctx context.Context, version int) error

	Close() error
}

// CurrentSchemaVersion is the schema version this engine writes.
const CurrentSchemaVersion = 1

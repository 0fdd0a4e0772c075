// Package store implements the two key-value storage contracts spec.md
// §4.8/§4.9 describe: a cluster-id→serialized-cluster map and a
// (spectrumUui, propertyName)→string map. The cluster store has in-memory,
// static (pre-sized, memory-mapped), and dynamic (LSM-backed) variants;
// the property store has in-memory and dynamic variants only.
package store

import (
	"context"
	"errors"

	"github.com/cespare/xxhash/v2"

	"github.com/soundprediction/spectracluster/pkg/cluster"
)

// ErrClosed is returned by any operation on a store that has been closed.
var ErrClosed = errors.New("store: closed")

// ErrCapacityExceeded is returned by the static backend when an insert
// would exceed its pre-sized capacity.
var ErrCapacityExceeded = errors.New("store: capacity exceeded")

// IntegrityError is returned on deserialization header mismatch. Per
// spec.md §7 it is never recovered from, only surfaced.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string { return "store: integrity error: " + e.Reason }

// StorageIOError wraps an underlying I/O failure from put/get/delete. Per
// spec.md §7, transient I/O is not retried by the core; callers decide.
type StorageIOError struct {
	Op  string
	Err error
}

func (e *StorageIOError) Error() string { return "store: " + e.Op + ": " + e.Err.Error() }
func (e *StorageIOError) Unwrap() error { return e.Err }

// HashKey derives the 64-bit cluster-store key from a cluster id, per
// spec.md §3: "key = hash64(cluster.id)".
func HashKey(id string) uint64 {
	return xxhash.Sum64String(id)
}

// ClusterStore is the key→value contract of spec.md §4.8: cluster-id hash
// to serialized cluster.
type ClusterStore interface {
	Put(ctx context.Context, key uint64, c *cluster.Cluster) error
	Get(ctx context.Context, key uint64) (*cluster.Cluster, bool, error)
	Delete(ctx context.Context, key uint64) error
	Size(ctx context.Context) (int, error)
	Close() error
}

// PropertyStore is the key→value contract of spec.md §4.9: mapping
// (spectrumUui, propertyName) to a string value, with no ordering
// guarantees across keys and idempotent overwrite.
type PropertyStore interface {
	Put(ctx context.Context, spectrumUui, propertyName, value string) error
	Get(ctx context.Context, spectrumUui, propertyName string) (string, bool, error)
	AvailablePropertyNames(ctx context.Context) ([]string, error)
	Size(ctx context.Context) (int, error)
	Close() error
}

package store

import (
	"bytes"
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/sony/gobreaker"

	"github.com/soundprediction/spectracluster/pkg/cluster"
	"github.com/soundprediction/spectracluster/pkg/config"
)

// dynamicBlockCacheSize is spec.md §4.8's "100 MiB cache" default for the
// dynamic backend.
const dynamicBlockCacheSize = 100 << 20

// newBreaker wraps a storage backend's I/O in a circuit breaker so a
// failing disk fails fast instead of retry-storming the engine's flush
// path (spec.md §7: transient I/O is not retried by the core).
func newBreaker(name string, cfg config.CircuitBreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.ReadyToTripRatio
		},
	})
}

// DynamicClusterStore is the LSM-backed, Snappy-compressed ClusterStore
// variant of spec.md §4.8, requiring no pre-sizing.
type DynamicClusterStore struct {
	db      *badger.DB
	breaker *gobreaker.CircuitBreaker
}

// OpenDynamicClusterStore opens (creating if absent) a badger database at
// dir configured per spec.md §4.8.
func OpenDynamicClusterStore(dir string, breakerCfg config.CircuitBreakerConfig) (*DynamicClusterStore, error) {
	opts := badger.DefaultOptions(dir).
		WithCompression(options.Snappy).
		WithBlockCacheSize(dynamicBlockCacheSize).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &StorageIOError{Op: "open", Err: err}
	}
	return &DynamicClusterStore{db: db, breaker: newBreaker("dynamic-cluster-store", breakerCfg)}, nil
}

func clusterKey(key uint64) []byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(key >> (8 * i))
	}
	return buf
}

func (s *DynamicClusterStore) Put(_ context.Context, key uint64, c *cluster.Cluster) error {
	buf, err := EncodeCluster(c)
	if err != nil {
		return &StorageIOError{Op: "put", Err: err}
	}
	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(clusterKey(key), buf)
		})
	})
	if err != nil {
		return &StorageIOError{Op: "put", Err: err}
	}
	return nil
}

func (s *DynamicClusterStore) Get(_ context.Context, key uint64) (*cluster.Cluster, bool, error) {
	var buf []byte
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get(clusterKey(key))
			if err != nil {
				return err
			}
			return item.Value(func(v []byte) error {
				buf = append([]byte(nil), v...)
				return nil
			})
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &StorageIOError{Op: "get", Err: err}
	}
	c, err := DecodeCluster(buf)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (s *DynamicClusterStore) Delete(_ context.Context, key uint64) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(clusterKey(key))
		})
	})
	if err != nil {
		return &StorageIOError{Op: "delete", Err: err}
	}
	return nil
}

func (s *DynamicClusterStore) Size(_ context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, &StorageIOError{Op: "size", Err: err}
	}
	return count, nil
}

func (s *DynamicClusterStore) Close() error {
	if err := s.db.Close(); err != nil {
		return &StorageIOError{Op: "close", Err: err}
	}
	return nil
}

// DynamicPropertyStore is the LSM-backed PropertyStore variant. Keys are
// encoded as spectrumUui + 0x00 + propertyName so a prefix scan on
// spectrumUui is a contiguous range.
type DynamicPropertyStore struct {
	db      *badger.DB
	breaker *gobreaker.CircuitBreaker
}

// OpenDynamicPropertyStore opens (creating if absent) a badger database at
// dir for property storage.
func OpenDynamicPropertyStore(dir string, breakerCfg config.CircuitBreakerConfig) (*DynamicPropertyStore, error) {
	opts := badger.DefaultOptions(dir).
		WithCompression(options.Snappy).
		WithBlockCacheSize(dynamicBlockCacheSize).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &StorageIOError{Op: "open", Err: err}
	}
	return &DynamicPropertyStore{db: db, breaker: newBreaker("dynamic-property-store", breakerCfg)}, nil
}

func propertyKey(spectrumUui, propertyName string) []byte {
	return []byte(fmt.Sprintf("%s\x00%s", spectrumUui, propertyName))
}

func (s *DynamicPropertyStore) Put(_ context.Context, spectrumUui, propertyName, value string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(propertyKey(spectrumUui, propertyName), []byte(value))
		})
	})
	if err != nil {
		return &StorageIOError{Op: "put", Err: err}
	}
	return nil
}

func (s *DynamicPropertyStore) Get(_ context.Context, spectrumUui, propertyName string) (string, bool, error) {
	var value []byte
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get(propertyKey(spectrumUui, propertyName))
			if err != nil {
				return err
			}
			return item.Value(func(v []byte) error {
				value = append([]byte(nil), v...)
				return nil
			})
		})
	})
	if err == badger.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageIOError{Op: "get", Err: err}
	}
	return string(value), true, nil
}

func (s *DynamicPropertyStore) AvailablePropertyNames(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if idx := bytes.IndexByte(key, 0); idx >= 0 {
				seen[string(key[idx+1:])] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, &StorageIOError{Op: "availablePropertyNames", Err: err}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	return out, nil
}

func (s *DynamicPropertyStore) Size(_ context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, &StorageIOError{Op: "size", Err: err}
	}
	return count, nil
}

func (s *DynamicPropertyStore) Close() error {
	if err := s.db.Close(); err != nil {
		return &StorageIOError{Op: "close", Err: err}
	}
	return nil
}

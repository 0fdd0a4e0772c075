package store

import (
	"context"
	"sync"

	"github.com/soundprediction/spectracluster/pkg/cluster"
)

// MemoryClusterStore is the in-memory ClusterStore variant. Values are
// stored by round-tripping through EncodeCluster/DecodeCluster so its
// behavior (including IntegrityError on corruption) matches the
// persistent backends exactly; callers needing a zero-copy cache should
// keep their own reference instead.
type MemoryClusterStore struct {
	mu     sync.RWMutex
	data   map[uint64][]byte
	closed bool
}

// NewMemoryClusterStore creates an empty in-memory cluster store.
func NewMemoryClusterStore() *MemoryClusterStore {
	return &MemoryClusterStore{data: make(map[uint64][]byte)}
}

func (s *MemoryClusterStore) Put(_ context.Context, key uint64, c *cluster.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	buf, err := EncodeCluster(c)
	if err != nil {
		return &StorageIOError{Op: "put", Err: err}
	}
	s.data[key] = buf
	return nil
}

func (s *MemoryClusterStore) Get(_ context.Context, key uint64) (*cluster.Cluster, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	buf, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	c, err := DecodeCluster(buf)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (s *MemoryClusterStore) Delete(_ context.Context, key uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.data, key)
	return nil
}

func (s *MemoryClusterStore) Size(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.data), nil
}

func (s *MemoryClusterStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
	return nil
}

// MemoryPropertyStore is the in-memory PropertyStore variant.
type MemoryPropertyStore struct {
	mu     sync.RWMutex
	data   map[string]map[string]string
	closed bool
}

// NewMemoryPropertyStore creates an empty in-memory property store.
func NewMemoryPropertyStore() *MemoryPropertyStore {
	return &MemoryPropertyStore{data: make(map[string]map[string]string)}
}

func (s *MemoryPropertyStore) Put(_ context.Context, spectrumUui, propertyName, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	props, ok := s.data[spectrumUui]
	if !ok {
		props = make(map[string]string)
		s.data[spectrumUui] = props
	}
	props[propertyName] = value
	return nil
}

func (s *MemoryPropertyStore) Get(_ context.Context, spectrumUui, propertyName string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrClosed
	}
	props, ok := s.data[spectrumUui]
	if !ok {
		return "", false, nil
	}
	v, ok := props[propertyName]
	return v, ok, nil
}

func (s *MemoryPropertyStore) AvailablePropertyNames(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	seen := make(map[string]struct{})
	for _, props := range s.data {
		for name := range props {
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	return out, nil
}

func (s *MemoryPropertyStore) Size(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	total := 0
	for _, props := range s.data {
		total += len(props)
	}
	return total, nil
}

func (s *MemoryPropertyStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
	return nil
}

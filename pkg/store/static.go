package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/soundprediction/spectracluster/pkg/cluster"
)

// ErrValueTooLarge is returned by the static backend when an encoded
// cluster exceeds the slot size fixed at creation time.
var ErrValueTooLarge = errors.New("store: value exceeds static backend's max value size")

const (
	staticMagic   uint32 = 0x53434c53 // "SCLS"
	staticVersion uint16 = 1
	staticHeaderSize = 4 + 2 + 4 + 4 + 4 // magic, version, capacity, maxValueSize, count

	slotEmpty     byte = 0
	slotOccupied  byte = 1
	slotTombstone byte = 2
)

// StaticClusterStore is the pre-allocated, memory-mapped ClusterStore
// variant of spec.md §4.8: a fixed-capacity open-addressing table sized
// for N expected entries at creation time, trading flexibility for
// roughly 4x the throughput of the dynamic backend.
type StaticClusterStore struct {
	mu           sync.Mutex
	file         *os.File
	data         []byte
	capacity     uint32
	maxValueSize uint32
	slotSize     int
	closed       bool
}

// OpenStaticClusterStore creates or reopens a memory-mapped static cluster
// store at path. capacity and maxValueSize are only honored on creation;
// reopening an existing file validates them against what was persisted.
func OpenStaticClusterStore(path string, capacity, maxValueSize uint32) (*StaticClusterStore, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("store: static backend requires capacity > 0")
	}
	slotSize := 1 + 8 + 4 + int(maxValueSize)
	totalSize := int64(staticHeaderSize) + int64(capacity)*int64(slotSize)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, &StorageIOError{Op: "open", Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &StorageIOError{Op: "stat", Err: err}
	}

	fresh := info.Size() == 0
	if fresh {
		if err := f.Truncate(totalSize); err != nil {
			f.Close()
			return nil, &StorageIOError{Op: "truncate", Err: err}
		}
	} else if info.Size() != totalSize {
		f.Close()
		return nil, &IntegrityError{Reason: fmt.Sprintf("existing static store size %d does not match requested capacity/value size (want %d)", info.Size(), totalSize)}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(totalSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, &StorageIOError{Op: "mmap", Err: err}
	}

	s := &StaticClusterStore{
		file:         f,
		data:         data,
		capacity:     capacity,
		maxValueSize: maxValueSize,
		slotSize:     slotSize,
	}

	if fresh {
		binary.LittleEndian.PutUint32(s.data[0:4], staticMagic)
		binary.LittleEndian.PutUint16(s.data[4:6], staticVersion)
		binary.LittleEndian.PutUint32(s.data[6:10], capacity)
		binary.LittleEndian.PutUint32(s.data[10:14], maxValueSize)
		binary.LittleEndian.PutUint32(s.data[14:18], 0)
	} else {
		gotMagic := binary.LittleEndian.Uint32(s.data[0:4])
		gotVersion := binary.LittleEndian.Uint16(s.data[4:6])
		gotCapacity := binary.LittleEndian.Uint32(s.data[6:10])
		gotMaxValue := binary.LittleEndian.Uint32(s.data[10:14])
		if gotMagic != staticMagic || gotVersion != staticVersion || gotCapacity != capacity || gotMaxValue != maxValueSize {
			unix.Munmap(s.data)
			f.Close()
			return nil, &IntegrityError{Reason: "static store header mismatch"}
		}
	}

	return s, nil
}

func (s *StaticClusterStore) slotOffset(i uint32) int {
	return staticHeaderSize + int(i)*s.slotSize
}

func (s *StaticClusterStore) count() uint32 {
	return binary.LittleEndian.Uint32(s.data[14:18])
}

func (s *StaticClusterStore) setCount(n uint32) {
	binary.LittleEndian.PutUint32(s.data[14:18], n)
}

// Put implements ClusterStore via linear probing from key % capacity.
func (s *StaticClusterStore) Put(_ context.Context, key uint64, c *cluster.Cluster) error {
	buf, err := EncodeCluster(c)
	if err != nil {
		return &StorageIOError{Op: "put", Err: err}
	}
	if uint32(len(buf)) > s.maxValueSize {
		return ErrValueTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	firstFree := int64(-1)
	start := key % uint64(s.capacity)
	for i := uint32(0); i < s.capacity; i++ {
		idx := uint32((start + uint64(i)) % uint64(s.capacity))
		off := s.slotOffset(idx)
		state := s.data[off]

		switch state {
		case slotOccupied:
			storedKey := binary.LittleEndian.Uint64(s.data[off+1 : off+9])
			if storedKey == key {
				s.writeSlot(off, key, buf)
				return nil
			}
		case slotTombstone:
			if firstFree < 0 {
				firstFree = int64(off)
			}
		case slotEmpty:
			target := off
			if firstFree >= 0 {
				target = int(firstFree)
			}
			s.writeSlot(target, key, buf)
			s.setCount(s.count() + 1)
			return nil
		}
	}
	if firstFree >= 0 {
		s.writeSlot(int(firstFree), key, buf)
		s.setCount(s.count() + 1)
		return nil
	}
	return ErrCapacityExceeded
}

func (s *StaticClusterStore) writeSlot(off int, key uint64, value []byte) {
	s.data[off] = slotOccupied
	binary.LittleEndian.PutUint64(s.data[off+1:off+9], key)
	binary.LittleEndian.PutUint32(s.data[off+9:off+13], uint32(len(value)))
	copy(s.data[off+13:off+13+len(value)], value)
}

// Get implements ClusterStore.
func (s *StaticClusterStore) Get(_ context.Context, key uint64) (*cluster.Cluster, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}

	start := key % uint64(s.capacity)
	for i := uint32(0); i < s.capacity; i++ {
		idx := uint32((start + uint64(i)) % uint64(s.capacity))
		off := s.slotOffset(idx)
		switch s.data[off] {
		case slotEmpty:
			return nil, false, nil
		case slotOccupied:
			storedKey := binary.LittleEndian.Uint64(s.data[off+1 : off+9])
			if storedKey == key {
				length := binary.LittleEndian.Uint32(s.data[off+9 : off+13])
				buf := make([]byte, length)
				copy(buf, s.data[off+13:off+13+int(length)])
				c, err := DecodeCluster(buf)
				if err != nil {
					return nil, false, err
				}
				return c, true, nil
			}
		}
	}
	return nil, false, nil
}

// Delete implements ClusterStore, leaving a tombstone so later probes can
// still find keys past this slot.
func (s *StaticClusterStore) Delete(_ context.Context, key uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	start := key % uint64(s.capacity)
	for i := uint32(0); i < s.capacity; i++ {
		idx := uint32((start + uint64(i)) % uint64(s.capacity))
		off := s.slotOffset(idx)
		switch s.data[off] {
		case slotEmpty:
			return nil
		case slotOccupied:
			storedKey := binary.LittleEndian.Uint64(s.data[off+1 : off+9])
			if storedKey == key {
				s.data[off] = slotTombstone
				s.setCount(s.count() - 1)
				return nil
			}
		}
	}
	return nil
}

// Size implements ClusterStore.
func (s *StaticClusterStore) Size(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return int(s.count()), nil
}

// Close unmaps and closes the backing file.
func (s *StaticClusterStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := unix.Munmap(s.data); err != nil {
		s.file.Close()
		return &StorageIOError{Op: "munmap", Err: err}
	}
	if err := s.file.Close(); err != nil {
		return &StorageIOError{Op: "close", Err: err}
	}
	return nil
}

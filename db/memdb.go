package db

import (
	"bytes"
	"sync"

	"github.com/smallstep/nosql/database"
)

// MemDB is a map-backed nosql database. It is NOT SAFE to use in production;
// it backs development setups and scenario tests where a real badger or
// mysql store would be overkill.
type MemDB struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

// NewMemDB returns an empty in-memory database.
func NewMemDB() *MemDB {
	return &MemDB{buckets: make(map[string]map[string][]byte)}
}

// Open is a noop; the database lives in process memory.
func (m *MemDB) Open(string, ...database.Option) error { return nil }

// Close discards all data.
func (m *MemDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets = make(map[string]map[string][]byte)
	return nil
}

// CreateTable creates a bucket if it does not exist.
func (m *MemDB) CreateTable(bucket []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[string(bucket)]; !ok {
		m.buckets[string(bucket)] = make(map[string][]byte)
	}
	return nil
}

// DeleteTable removes a bucket and its contents.
func (m *MemDB) DeleteTable(bucket []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[string(bucket)]; !ok {
		return database.ErrNotFound
	}
	delete(m.buckets, string(bucket))
	return nil
}

// Get returns the value of key in bucket, or database.ErrNotFound.
func (m *MemDB) Get(bucket, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buckets[string(bucket)]
	if !ok {
		return nil, database.ErrNotFound
	}
	v, ok := b[string(key)]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores the value of key in bucket.
func (m *MemDB) Set(bucket, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set(bucket, key, value)
}

func (m *MemDB) set(bucket, key, value []byte) error {
	b, ok := m.buckets[string(bucket)]
	if !ok {
		b = make(map[string][]byte)
		m.buckets[string(bucket)] = b
	}
	v := make([]byte, len(value))
	copy(v, value)
	b[string(key)] = v
	return nil
}

// Del removes key from bucket. Deleting an absent key is a noop.
func (m *MemDB) Del(bucket, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buckets[string(bucket)]; ok {
		delete(b, string(key))
	}
	return nil
}

// List returns all entries of a bucket in unspecified order.
func (m *MemDB) List(bucket []byte) ([]*database.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buckets[string(bucket)]
	if !ok {
		return nil, database.ErrNotFound
	}
	entries := make([]*database.Entry, 0, len(b))
	for k, v := range b {
		entries = append(entries, &database.Entry{
			Bucket: bucket,
			Key:    []byte(k),
			Value:  v,
		})
	}
	return entries, nil
}

// CmpAndSwap writes newval at key only if the current value equals old. It
// returns the resulting value and whether the swap happened.
func (m *MemDB) CmpAndSwap(bucket, key, old, newval []byte) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[string(bucket)]
	if !ok {
		b = make(map[string][]byte)
		m.buckets[string(bucket)] = b
	}
	cur, exists := b[string(key)]
	switch {
	case old == nil && exists:
		return cur, false, nil
	case old != nil && !exists:
		return nil, false, nil
	case old != nil && !bytes.Equal(cur, old):
		return cur, false, nil
	}
	v := make([]byte, len(newval))
	copy(v, newval)
	b[string(key)] = v
	return v, true, nil
}

// Update applies the transaction's operations in order, aborting on the
// first failure.
func (m *MemDB) Update(tx *database.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range tx.Operations {
		switch op.Cmd {
		case database.Get:
			b, ok := m.buckets[string(op.Bucket)]
			if !ok {
				return database.ErrNotFound
			}
			v, ok := b[string(op.Key)]
			if !ok {
				return database.ErrNotFound
			}
			op.Value = v
		case database.Set:
			if err := m.set(op.Bucket, op.Key, op.Value); err != nil {
				return err
			}
		case database.Delete:
			if b, ok := m.buckets[string(op.Bucket)]; ok {
				delete(b, string(op.Key))
			}
		case database.CreateTable:
			if _, ok := m.buckets[string(op.Bucket)]; !ok {
				m.buckets[string(op.Bucket)] = make(map[string][]byte)
			}
		case database.DeleteTable:
			delete(m.buckets, string(op.Bucket))
		}
	}
	return nil
}

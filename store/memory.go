package store

import (
	"sort"
	"sync"
)

type memEntry struct {
	seq   uint64
	bytes []byte
}

// MemStore is an in-memory Store.
// Useful for tests and for ephemeral runs where persistence is not needed.
type MemStore struct {
	mutex *sync.RWMutex
	seq   uint64
	db    map[string]map[string]memEntry
}

func NewMemStore() *MemStore {
	return &MemStore{
		mutex: &sync.RWMutex{},
		db:    make(map[string]map[string]memEntry),
	}
}

func (m *MemStore) Get(namespace, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[namespace][key]
	if !ok {
		return nil, false, nil
	}
	return entry.bytes, true, nil
}

func (m *MemStore) Put(namespace, key string, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	ns, ok := m.db[namespace]
	if !ok {
		ns = make(map[string]memEntry)
		m.db[namespace] = ns
	}
	seq := m.seq
	if prev, ok := ns[key]; ok {
		seq = prev.seq
	} else {
		m.seq++
	}
	ns[key] = memEntry{seq, bytes}
	return nil
}

func (m *MemStore) Delete(namespace, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db[namespace], key)
	return nil
}

func (m *MemStore) Keys(namespace string) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	keys := make([]string, 0, len(m.db[namespace]))
	for key := range m.db[namespace] {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return m.db[namespace][keys[i]].seq < m.db[namespace][keys[j]].seq
	})
	return keys, nil
}

func (m *MemStore) Namespaces() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	namespaces := make([]string, 0, len(m.db))
	for namespace, ns := range m.db {
		if len(ns) > 0 {
			namespaces = append(namespaces, namespace)
		}
	}
	sort.Strings(namespaces)
	return namespaces, nil
}

func (m *MemStore) DropNamespace(namespace string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, namespace)
	return nil
}

func (m *MemStore) Close() error {
	return nil
}

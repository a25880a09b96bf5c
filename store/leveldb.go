package store

import (
	"bytes"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// keySeparator joins namespace and key in the leveldb keyspace.
// Namespace names must not contain a NUL byte.
const keySeparator = "\x00"

// seqLen is the length of the sequence number prefixed to every value.
// The sequence preserves insertion order, which leveldb's lexicographic
// iteration would otherwise lose.
const seqLen = 8

// LevelStore is a Store backed by a leveldb database directory.
type LevelStore struct {
	db    *leveldb.DB
	mutex *sync.Mutex
	seq   uint64
}

func NewLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	s := &LevelStore{
		db:    db,
		mutex: &sync.Mutex{},
	}
	// seed the sequence counter past any existing entry
	iter := db.NewIterator(nil, nil)
	for iter.Next() {
		if seq := valueSeq(iter.Value()); seq >= s.seq {
			s.seq = seq + 1
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func levelKey(namespace, key string) []byte {
	return []byte(namespace + keySeparator + key)
}

func valueSeq(value []byte) uint64 {
	if len(value) < seqLen {
		return 0
	}
	return binary.BigEndian.Uint64(value)
}

func (s *LevelStore) Get(namespace, key string) ([]byte, bool, error) {
	value, err := s.db.Get(levelKey(namespace, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(value) < seqLen {
		return nil, false, nil
	}
	return value[seqLen:], true, nil
}

func (s *LevelStore) Put(namespace, key string, b []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	k := levelKey(namespace, key)
	seq := s.seq
	// keep the sequence of an already present entry
	if prev, err := s.db.Get(k, nil); err == nil {
		seq = valueSeq(prev)
	} else if err != leveldb.ErrNotFound {
		return err
	} else {
		s.seq++
	}
	value := make([]byte, seqLen+len(b))
	binary.BigEndian.PutUint64(value, seq)
	copy(value[seqLen:], b)
	return s.db.Put(k, value, nil)
}

func (s *LevelStore) Delete(namespace, key string) error {
	return s.db.Delete(levelKey(namespace, key), nil)
}

func (s *LevelStore) Keys(namespace string) ([]string, error) {
	prefix := []byte(namespace + keySeparator)
	type seqKey struct {
		seq uint64
		key string
	}
	var entries []seqKey
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	for iter.Next() {
		entries = append(entries, seqKey{
			seq: valueSeq(iter.Value()),
			key: string(bytes.TrimPrefix(iter.Key(), prefix)),
		})
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys, nil
}

func (s *LevelStore) Namespaces() ([]string, error) {
	var namespaces []string
	iter := s.db.NewIterator(nil, nil)
	for iter.Next() {
		if i := bytes.Index(iter.Key(), []byte(keySeparator)); i >= 0 {
			namespace := string(iter.Key()[:i])
			if len(namespaces) == 0 || namespaces[len(namespaces)-1] != namespace {
				namespaces = append(namespaces, namespace)
			}
		}
	}
	iter.Release()
	return namespaces, iter.Error()
}

func (s *LevelStore) DropNamespace(namespace string) error {
	prefix := []byte(namespace + keySeparator)
	batch := new(leveldb.Batch)
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	for iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		batch.Delete(key)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}
	return s.db.Write(batch, nil)
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}

package store

import (
	"bytes"
	"path/filepath"
	"reflect"
	"testing"
)

// openStores returns one instance of every backend, so the whole suite runs
// against each of them.
func openStores(t *testing.T) map[string]Store {
	t.Helper()
	level, err := NewLevelStore(filepath.Join(t.TempDir(), "leveldb"))
	if err != nil {
		t.Fatal(err)
	}
	return map[string]Store{
		"memory":  NewMemStore(),
		"sqlite":  NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db")),
		"leveldb": level,
	}
}

func TestPutGet(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			if err := s.Put("v1", "GET:/a", []byte("response a")); err != nil {
				t.Fatal(err)
			}
			b, ok, err := s.Get("v1", "GET:/a")
			if err != nil || !ok {
				t.Fatalf("Get: ok=%v err=%v", ok, err)
			}
			if !bytes.Equal(b, []byte("response a")) {
				t.Fatalf("Got %q", b)
			}
			if _, ok, err := s.Get("v1", "GET:/missing"); ok || err != nil {
				t.Fatalf("Missing key: ok=%v err=%v", ok, err)
			}
			if _, ok, err := s.Get("v2", "GET:/a"); ok || err != nil {
				t.Fatalf("Wrong namespace: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestOverwriteIsLastWriteWins(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			s.Put("v1", "GET:/a", []byte("old"))
			s.Put("v1", "GET:/b", []byte("other"))
			if err := s.Put("v1", "GET:/a", []byte("new")); err != nil {
				t.Fatal(err)
			}
			b, ok, _ := s.Get("v1", "GET:/a")
			if !ok || string(b) != "new" {
				t.Fatalf("Got %q ok=%v", b, ok)
			}
			// overwriting keeps the original insertion position
			keys, err := s.Keys("v1")
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(keys, []string{"GET:/a", "GET:/b"}) {
				t.Fatalf("Keys are %v", keys)
			}
		})
	}
}

func TestKeysOldestFirst(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			s.Put("v1", "GET:/c", []byte("1"))
			s.Put("v1", "GET:/a", []byte("2"))
			s.Put("v1", "GET:/b", []byte("3"))
			keys, err := s.Keys("v1")
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(keys, []string{"GET:/c", "GET:/a", "GET:/b"}) {
				t.Fatalf("Keys are %v", keys)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			s.Put("v1", "GET:/a", []byte("response"))
			if err := s.Delete("v1", "GET:/a"); err != nil {
				t.Fatal(err)
			}
			if _, ok, _ := s.Get("v1", "GET:/a"); ok {
				t.Fatal("Entry still present after delete")
			}
		})
	}
}

func TestNamespacesAndDrop(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			s.Put("v1", "GET:/a", []byte("1"))
			s.Put("v2", "GET:/a", []byte("2"))
			s.Put("v2", "GET:/b", []byte("3"))

			namespaces, err := s.Namespaces()
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(namespaces, []string{"v1", "v2"}) {
				t.Fatalf("Namespaces are %v", namespaces)
			}

			if err := s.DropNamespace("v1"); err != nil {
				t.Fatal(err)
			}
			if _, ok, _ := s.Get("v1", "GET:/a"); ok {
				t.Fatal("v1 entry still present after drop")
			}
			b, ok, _ := s.Get("v2", "GET:/a")
			if !ok || string(b) != "2" {
				t.Fatalf("v2 entry lost by drop: %q ok=%v", b, ok)
			}
			namespaces, _ = s.Namespaces()
			if !reflect.DeepEqual(namespaces, []string{"v2"}) {
				t.Fatalf("Namespaces after drop: %v", namespaces)
			}
		})
	}
}

func TestLevelStoreSequenceSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "leveldb")
	s, err := NewLevelStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	s.Put("v1", "GET:/b", []byte("1"))
	s.Put("v1", "GET:/a", []byte("2"))
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = NewLevelStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	s.Put("v1", "GET:/c", []byte("3"))
	keys, err := s.Keys("v1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(keys, []string{"GET:/b", "GET:/a", "GET:/c"}) {
		t.Fatalf("Keys are %v", keys)
	}
}

package store

import (
	"database/sql"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore is a Store backed by a single sqlite database.
// Insertion order within a namespace follows the table rowid.
type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStore creates a new store with the given filename as the db.
// If the file name is empty, a new in-memory db is opened.
func NewSQLiteStore(filename string) *SQLiteStore {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		bytes BLOB,
		PRIMARY KEY (namespace, key)
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS namespace_idx ON cache (namespace)")
	if err != nil {
		panic(err)
	}
	return &SQLiteStore{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s *SQLiteStore) Get(namespace, key string) ([]byte, bool, error) {
	var bytes []byte
	err := s.db.QueryRow("SELECT bytes FROM cache WHERE namespace = ? AND key = ?",
		namespace, key).Scan(&bytes)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (s *SQLiteStore) Put(namespace, key string, bytes []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	// an UPDATE-then-INSERT keeps the rowid (and thereby the insertion
	// order) of an already present entry
	res, err := s.db.Exec("UPDATE cache SET bytes = ? WHERE namespace = ? AND key = ?",
		bytes, namespace, key)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	_, err = s.db.Exec("INSERT INTO cache (namespace, key, bytes) VALUES (?, ?, ?)",
		namespace, key, bytes)
	return err
}

func (s *SQLiteStore) Delete(namespace, key string) error {
	_, err := s.db.Exec("DELETE FROM cache WHERE namespace = ? AND key = ?", namespace, key)
	return err
}

func (s *SQLiteStore) Keys(namespace string) ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM cache WHERE namespace = ? ORDER BY rowid ASC", namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Namespaces() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT namespace FROM cache ORDER BY namespace ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var namespaces []string
	for rows.Next() {
		var namespace string
		if err := rows.Scan(&namespace); err != nil {
			return nil, err
		}
		namespaces = append(namespaces, namespace)
	}
	return namespaces, rows.Err()
}

func (s *SQLiteStore) DropNamespace(namespace string) error {
	_, err := s.db.Exec("DELETE FROM cache WHERE namespace = ?", namespace)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

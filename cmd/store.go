package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/crypto/sha3"
)

const recordKeyPrefix = "record/"

// RecordStore persists countersigned proof-of-latency records in BadgerDB,
// keyed by the SHA3-256 digest of their canonical signing string.
type RecordStore struct {
	db *badger.DB
}

// OpenRecordStore opens (or creates) the store under dir.
func OpenRecordStore(dir string) (*RecordStore, error) {
	opts := badger.DefaultOptions(filepath.Join(dir, "records"))
	opts.Logger = nil // Disable BadgerDB logging for cleaner output

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	return &RecordStore{db: db}, nil
}

// Close releases the underlying database.
func (rs *RecordStore) Close() error {
	return rs.db.Close()
}

// RecordID is the stable identifier of a record: the SHA3-256 digest of its
// canonical signing string.
func RecordID(record *PoLRecord) string {
	sum := sha3.Sum256([]byte(record.SigningString()))
	return hex.EncodeToString(sum[:])
}

// Save writes a record and returns its ID. Saving the same record twice is
// a no-op overwrite of identical content.
func (rs *RecordStore) Save(record *PoLRecord) (string, error) {
	id := RecordID(record)
	value, err := json.Marshal(record)
	if err != nil {
		return "", err
	}

	err = rs.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(recordKeyPrefix+id), value)
	})
	if err != nil {
		return "", fmt.Errorf("failed to save record: %w", err)
	}
	return id, nil
}

// Get looks up a record by ID.
func (rs *RecordStore) Get(id string) (*PoLRecord, error) {
	var record PoLRecord
	err := rs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recordKeyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &record)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("record not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	return &record, nil
}

// List returns the IDs of all stored records.
func (rs *RecordStore) List() ([]string, error) {
	var ids []string
	err := rs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(recordKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return ids, nil
}

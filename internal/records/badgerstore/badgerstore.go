// Package badgerstore is the embedded record store, built on badger.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/fruitsalade/mixtape/internal/records"
)

const (
	linkPrefix  = "link/"
	audioPrefix = "audio/"
)

// Store implements records.Store on a badger database. Values are JSON.
type Store struct {
	db *badger.DB
}

var _ records.Store = (*Store)(nil)

// Open opens or creates the database in dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	return open(opts)
}

// OpenInMemory opens a database that lives only as long as the Store.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts)
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func linkKey(id string) []byte {
	return []byte(linkPrefix + id)
}

func audioKey(source records.Source, path string) []byte {
	return []byte(audioPrefix + string(source) + "/" + path)
}

func (s *Store) get(key []byte, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return records.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

// GetLink implements records.LinkStore.
func (s *Store) GetLink(_ context.Context, id string) (*records.LinkRecord, error) {
	var rec records.LinkRecord
	if err := s.get(linkKey(id), &rec); err != nil {
		return nil, fmt.Errorf("get link %s: %w", id, err)
	}
	return &rec, nil
}

// PutLinks writes all records in one transaction.
func (s *Store) PutLinks(_ context.Context, recs []records.LinkRecord) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for i := range recs {
			if recs[i].ID == "" {
				return fmt.Errorf("link %q has no id", recs[i].Name)
			}
			if recs[i].CreatedAt.IsZero() {
				recs[i].CreatedAt = time.Now().UTC()
			}
			val, err := json.Marshal(&recs[i])
			if err != nil {
				return err
			}
			if err := txn.Set(linkKey(recs[i].ID), val); err != nil {
				return fmt.Errorf("put link %s: %w", recs[i].ID, err)
			}
		}
		return nil
	})
}

// PutAudio inserts or replaces the record for (m.Source, m.Path). An
// existing record keeps its ID.
func (s *Store) PutAudio(_ context.Context, m *records.AudioMetadata) error {
	key := audioKey(m.Source, m.Path)
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case err == nil:
			var prev records.AudioMetadata
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &prev) }); err != nil {
				return err
			}
			m.ID = prev.ID
		case errors.Is(err, badger.ErrKeyNotFound):
			if m.ID == "" {
				m.ID = uuid.NewString()
			}
		default:
			return err
		}
		m.UpdatedAt = time.Now().UTC()
		val, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	})
}

// GetAudio implements records.MetadataStore.
func (s *Store) GetAudio(_ context.Context, source records.Source, path string) (*records.AudioMetadata, error) {
	var m records.AudioMetadata
	if err := s.get(audioKey(source, path), &m); err != nil {
		return nil, fmt.Errorf("get audio %s:%s: %w", source, path, err)
	}
	return &m, nil
}

// ListAudio returns every audio record in key order.
func (s *Store) ListAudio(_ context.Context) ([]records.AudioMetadata, error) {
	out := []records.AudioMetadata{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(audioPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m records.AudioMetadata
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &m) }); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list audio: %w", err)
	}
	return out, nil
}

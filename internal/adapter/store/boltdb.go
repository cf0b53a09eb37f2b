package store

import (
	"encoding/json"
	"fmt"
	"time"

	"ctxrank/config"
	"ctxrank/internal/domain"

	"go.etcd.io/bbolt"
)

var (
	bucketMatrices = []byte("matrices")
	bucketMeta     = []byte("meta")
)

// BoltStore keeps every cache entry in a single bbolt database.
// The meta bucket lets List skip decoding matrices.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(dir string) (*BoltStore, error) {
	if err := config.EnsureCacheDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bbolt.Open(config.CacheDBPath(dir), 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketMatrices, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load(key string) (*domain.CacheEntry, error) {
	var entry *domain.CacheEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMatrices).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		// data is only valid inside the transaction; DecodeEntry copies it out
		var err error
		entry, err = DecodeEntry(data)
		if err != nil {
			return fmt.Errorf("cache entry %s: %w", key, err)
		}
		return nil
	})
	return entry, err
}

func (s *BoltStore) Save(entry *domain.CacheEntry) error {
	blob, err := EncodeEntry(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	meta, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketMatrices).Put([]byte(entry.Key), blob); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put([]byte(entry.Key), meta)
	})
}

func (s *BoltStore) List() ([]domain.CacheEntry, error) {
	var entries []domain.CacheEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).ForEach(func(k, v []byte) error {
			var entry domain.CacheEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				entry = domain.CacheEntry{Key: string(k)}
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

func (s *BoltStore) Delete(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketMatrices).Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Delete([]byte(key))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Copyright 2025 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2025 Department of Linguistics,
// Faculty of Arts, Charles University
// Copyright 2025 The awrdetect Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package index

import (
	"errors"
	"fmt"
	"time"

	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
)

const (
	auxKeyModelFingerprint = "modelFingerprint"
	auxKeyLastFlush        = "lastFlush"
)

// DB is a wrapper around badger.DB providing a cache
// of detection results.
type DB struct {
	bdb *badger.DB
	ttl time.Duration
}

// Close closes the internal Badger database.
// It is possible to call the method on nil instance
// or on an uninitialized DB object, in which case
// it is a NOP.
func (db *DB) Close() error {
	if db != nil && db.bdb != nil {
		return db.bdb.Close()
	}
	return nil
}

func (db *DB) Flush() error {
	if err := db.bdb.DropAll(); err != nil {
		return fmt.Errorf("failed to flush report cache: %w", err)
	}
	return db.StoreTimestamp(auxKeyLastFlush, time.Now())
}

func (db *DB) Size() (int64, int64) {
	return db.bdb.Size()
}

func (db *DB) StoreTimestamp(key string, value time.Time) error {
	keyBytes := prefixedKey(AuxDataPrefix, key)
	valueBytes := encodeTime(value)
	return db.bdb.Update(func(txn *badger.Txn) error {
		return txn.Set(keyBytes, valueBytes)
	})
}

func (db *DB) ReadTimestamp(key string) (time.Time, error) {
	keyBytes := prefixedKey(AuxDataPrefix, key)
	var result time.Time
	err := db.bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyBytes)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			t, decodeErr := decodeTime(val)
			if decodeErr != nil {
				return decodeErr
			}
			result = t
			return nil
		})
	})
	return result, err
}

func (db *DB) LastFlush() (time.Time, error) {
	return db.ReadTimestamp(auxKeyLastFlush)
}

// SyncModel makes sure the cache does not contain results
// of a different model. In case the stored fingerprint differs,
// the cache is flushed.
func (db *DB) SyncModel(fingerprint string) error {
	key := prefixedKey(AuxDataPrefix, auxKeyModelFingerprint)
	var stored string
	err := db.bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			stored = string(val)
			return nil
		})
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("failed to sync cache with model: %w", err)
	}
	if stored == fingerprint {
		return nil
	}
	if stored != "" {
		log.Info().Msg("model changed, flushing report cache")
	}
	if err := db.Flush(); err != nil {
		return fmt.Errorf("failed to sync cache with model: %w", err)
	}
	return db.bdb.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte(fingerprint))
	})
}

func (db *DB) StoreDetection(key string, det eval.Detection) error {
	value, err := encodeDetection(det)
	if err != nil {
		return err
	}
	return db.bdb.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(prefixedKey(DetectionPrefix, key), value)
		if db.ttl > 0 {
			entry = entry.WithTTL(db.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// GetDetection returns a cached detection. The second returned
// value is false if nothing is cached for the key.
func (db *DB) GetDetection(key string) (eval.Detection, bool, error) {
	var ans eval.Detection
	err := db.bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get(prefixedKey(DetectionPrefix, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decodeErr error
			ans, decodeErr = decodeDetection(val)
			return decodeErr
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ans, false, nil

	} else if err != nil {
		return ans, false, fmt.Errorf("failed to read cached detection: %w", err)
	}
	return ans, true, nil
}

func OpenDB(path string, ttl time.Duration) (*DB, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithValueLogFileSize(64 << 20)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open report cache: %w", err)
	}
	return &DB{bdb: db, ttl: ttl}, nil
}

func OpenInMemory(ttl time.Duration) (*DB, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open report cache: %w", err)
	}
	return &DB{bdb: db, ttl: ttl}, nil
}

// Package storage holds the durable single-record stores behind the key vault.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AlexZinkM/bank-of-ethereum/internal/model"
)

// ErrNotFound is returned by Get when the slot is empty.
var ErrNotFound = errors.New("record not found")

// Store persists one encrypted key record under a fixed id.
// Put replaces any record already held; a store never exposes a partially written record.
type Store interface {
	Put(id string, rec *model.EncryptedKeyRecord) error
	Get(id string) (*model.EncryptedKeyRecord, error)
	Delete(id string) error
	Close() error
}

// Backend names accepted by Open
const (
	BackendLevelDB = "leveldb"
	BackendFile    = "file"
	BackendMemory  = "memory"
)

// Open opens the store for the named backend at path
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendLevelDB, "":
		return OpenLevelDB(path)
	case BackendFile:
		return OpenFile(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func encodeRecord(rec *model.EncryptedKeyRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*model.EncryptedKeyRecord, error) {
	var rec model.EncryptedKeyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal record: %v", model.ErrStorageUnavailable, err)
	}
	return &rec, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", model.ErrStorageUnavailable, op, err)
}

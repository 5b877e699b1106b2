package storage

import (
	"errors"
	"fmt"

	"github.com/AlexZinkM/bank-of-ethereum/internal/model"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const keyPrefix = "keys/"

var syncWrite = &opt.WriteOptions{Sync: true}

// LevelDB stores the record in a LevelDB database.
// Writes go through a single synced batch, so a replace is atomic.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) the database at path
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, unavailable("open leveldb", err)
	}
	return &LevelDB{db: db}, nil
}

// Put replaces the slot content. Records under any other id are removed in the
// same batch so at most one record exists.
func (s *LevelDB) Put(id string, rec *model.EncryptedKeyRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	iter := s.db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	for iter.Next() {
		if string(iter.Key()) != keyPrefix+id {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return unavailable("scan", err)
	}

	batch.Put([]byte(keyPrefix+id), data)
	if err := s.db.Write(batch, syncWrite); err != nil {
		return unavailable("write", err)
	}
	return nil
}

// Get retrieves the record, ErrNotFound when absent
func (s *LevelDB) Get(id string) (*model.EncryptedKeyRecord, error) {
	data, err := s.db.Get([]byte(keyPrefix+id), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable("read", err)
	}
	return decodeRecord(data)
}

// Delete removes the record; deleting an absent record is not an error
func (s *LevelDB) Delete(id string) error {
	if err := s.db.Delete([]byte(keyPrefix+id), syncWrite); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// Close releases the database
func (s *LevelDB) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close leveldb: %w", err)
	}
	return nil
}

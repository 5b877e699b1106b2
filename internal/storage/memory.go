package storage

import (
	"sync"

	"github.com/AlexZinkM/bank-of-ethereum/internal/model"
)

// Memory is a non-durable store for tests and throwaway sessions
type Memory struct {
	mu  sync.RWMutex
	id  string
	rec *model.EncryptedKeyRecord
}

func NewMemory() *Memory {
	return &Memory{}
}

func (s *Memory) Put(id string, rec *model.EncryptedKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id, s.rec = id, copyRecord(rec)
	return nil
}

func (s *Memory) Get(id string) (*model.EncryptedKeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rec == nil || s.id != id {
		return nil, ErrNotFound
	}
	return copyRecord(s.rec), nil
}

func (s *Memory) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == id {
		s.id, s.rec = "", nil
	}
	return nil
}

func (s *Memory) Close() error { return nil }

func copyRecord(rec *model.EncryptedKeyRecord) *model.EncryptedKeyRecord {
	cp := *rec
	cp.EncryptedData = copyBytes(rec.EncryptedData)
	cp.IV = copyBytes(rec.IV)
	cp.Salt = copyBytes(rec.Salt)
	return &cp
}

func copyBytes(b []byte) []byte {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}

package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AlexZinkM/bank-of-ethereum/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(data string) *model.EncryptedKeyRecord {
	return &model.EncryptedKeyRecord{
		ID:            model.KeySlotID,
		Address:       "0x00000000000000000000000000000000000000aa",
		EncryptedData: []byte(data),
		IV:            []byte("123456789012"),
		Salt:          []byte("salt"),
		KDF:           model.KDFParams{N: 1024, R: 8, P: 1},
		CreatedAt:     "2024-01-01T00:00:00Z",
	}
}

// eachBackend runs fn against every backend, each with a fresh store
func eachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	backends := map[string]func(t *testing.T) Store{
		BackendMemory: func(t *testing.T) Store { return NewMemory() },
		BackendLevelDB: func(t *testing.T) Store {
			s, err := OpenLevelDB(filepath.Join(t.TempDir(), "db"))
			require.NoError(t, err)
			return s
		},
		BackendFile: func(t *testing.T) Store {
			s, err := OpenFile(filepath.Join(t.TempDir(), "wallet.cwt"))
			require.NoError(t, err)
			return s
		},
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func TestEmptyStore(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		_, err := s.Get(model.KeySlotID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPutGet(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		rec := testRecord("ciphertext")
		require.NoError(t, s.Put(model.KeySlotID, rec))

		got, err := s.Get(model.KeySlotID)
		require.NoError(t, err)
		assert.Equal(t, rec, got)
	})
}

func TestPutReplaces(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Put(model.KeySlotID, testRecord("first")))
		require.NoError(t, s.Put(model.KeySlotID, testRecord("second")))

		got, err := s.Get(model.KeySlotID)
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), got.EncryptedData)
	})
}

func TestDeleteIdempotent(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Put(model.KeySlotID, testRecord("x")))

		require.NoError(t, s.Delete(model.KeySlotID))
		require.NoError(t, s.Delete(model.KeySlotID))

		_, err := s.Get(model.KeySlotID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestLevelDBSingleSlot(t *testing.T) {
	s, err := OpenLevelDB(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer s.Close()

	other := testRecord("other")
	other.ID = "staleSlot"
	require.NoError(t, s.Put("staleSlot", other))
	require.NoError(t, s.Put(model.KeySlotID, testRecord("current")))

	_, err = s.Get("staleSlot")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.Get(model.KeySlotID)
	require.NoError(t, err)
	assert.Equal(t, []byte("current"), got.EncryptedData)
}

func TestLevelDBSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	s, err := OpenLevelDB(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(model.KeySlotID, testRecord("durable")))
	require.NoError(t, s.Close())

	s, err = OpenLevelDB(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(model.KeySlotID)
	require.NoError(t, err)
	assert.Equal(t, []byte("durable"), got.EncryptedData)
}

func TestFileLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFile(filepath.Join(dir, "wallet.cwt"))
	require.NoError(t, err)

	require.NoError(t, s.Put(model.KeySlotID, testRecord("a")))
	require.NoError(t, s.Put(model.KeySlotID, testRecord("b")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "wallet.cwt", entries[0].Name())

	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileRejectsExtension(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "wallet.json"))
	assert.Error(t, err)
}

func TestFileCorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.cwt")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := OpenFile(path)
	require.NoError(t, err)

	_, err = s.Get(model.KeySlotID)
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
}

func TestMemoryReturnsCopies(t *testing.T) {
	s := NewMemory()
	rec := testRecord("abc")
	require.NoError(t, s.Put(model.KeySlotID, rec))
	rec.EncryptedData[0] = 'z'

	got, err := s.Get(model.KeySlotID)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got.EncryptedData)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("redis", t.TempDir())
	assert.Error(t, err)
}

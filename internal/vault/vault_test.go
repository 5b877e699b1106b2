package vault

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/AlexZinkM/bank-of-ethereum/internal/ethereum"
	"github.com/AlexZinkM/bank-of-ethereum/internal/model"
	"github.com/AlexZinkM/bank-of-ethereum/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = model.KDFParams{N: 1 << 10, R: 8, P: 1}

func newTestVault(t *testing.T, store storage.Store) *Vault {
	t.Helper()
	if store == nil {
		store = storage.NewMemory()
	}
	v, err := New(store, []byte("passphrase"), testParams)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func TestFreshSlotIsAbsent(t *testing.T) {
	v := newTestVault(t, nil)

	has, err := v.HasStoredKey()
	require.NoError(t, err)
	assert.False(t, has)

	rec, found, err := v.Load()
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, rec)

	_, err = v.Unlock()
	assert.ErrorIs(t, err, model.ErrNoStoredKey)

	_, err = v.Address()
	assert.ErrorIs(t, err, model.ErrNoStoredKey)
}

func TestGenerateStoreLoadDecrypt(t *testing.T) {
	v := newTestVault(t, nil)

	key, address, err := v.Generate()
	require.NoError(t, err)

	rec, err := v.Encrypt(key)
	require.NoError(t, err)
	assert.Equal(t, address.Hex(), rec.Address)
	require.NoError(t, v.Store(rec))

	loaded, found, err := v.Load()
	require.NoError(t, err)
	require.True(t, found)

	got, err := v.Decrypt(loaded)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	derived, err := ethereum.AddressFromKey(got)
	require.NoError(t, err)
	assert.Equal(t, address, derived)

	stored, err := v.Address()
	require.NoError(t, err)
	assert.Equal(t, address, stored)
}

func TestCreateThenUnlock(t *testing.T) {
	v := newTestVault(t, nil)

	address, err := v.Create()
	require.NoError(t, err)

	key, err := v.Unlock()
	require.NoError(t, err)

	derived, err := ethereum.AddressFromKey(key)
	require.NoError(t, err)
	assert.Equal(t, address, derived)
}

func TestImportKeyFormat(t *testing.T) {
	valid := map[string]string{
		"0x prefix":  "0x" + strings.Repeat("a1", 32),
		"0X prefix":  "0X" + strings.Repeat("A1", 32),
		"no prefix":  strings.Repeat("a1", 32),
		"mixed case": strings.Repeat("aB", 32),
	}
	for name, candidate := range valid {
		t.Run(name, func(t *testing.T) {
			v := newTestVault(t, nil)
			address, err := v.ImportKey(candidate)
			require.NoError(t, err)

			key, err := v.Unlock()
			require.NoError(t, err)
			assert.Equal(t, "0x"+strings.ToLower(candidate[len(candidate)-64:]), key)

			derived, err := ethereum.AddressFromKey(key)
			require.NoError(t, err)
			assert.Equal(t, address, derived)
		})
	}

	invalid := map[string]string{
		"empty":          "",
		"62 chars":       strings.Repeat("a1", 31),
		"64 with prefix": "0x" + strings.Repeat("a1", 31),
		"66 no prefix":   strings.Repeat("a1", 33),
		"68 with prefix": "0x" + strings.Repeat("a1", 33),
		"non hex":        strings.Repeat("zz", 32),
		"bad prefix":     "0y" + strings.Repeat("a1", 32),
		"zero scalar":    strings.Repeat("00", 32),
		"over curve n":   strings.Repeat("ff", 32),
	}
	for name, candidate := range invalid {
		t.Run(name, func(t *testing.T) {
			v := newTestVault(t, nil)
			_, err := v.ImportKey(candidate)
			assert.ErrorIs(t, err, model.ErrInvalidKeyFormat)

			has, err := v.HasStoredKey()
			require.NoError(t, err)
			assert.False(t, has, "failed import must not touch storage")
		})
	}
}

func TestFailedImportKeepsExistingKey(t *testing.T) {
	v := newTestVault(t, nil)
	address, err := v.Create()
	require.NoError(t, err)

	_, err = v.ImportKey(strings.Repeat("a1", 31))
	require.ErrorIs(t, err, model.ErrInvalidKeyFormat)

	stored, err := v.Address()
	require.NoError(t, err)
	assert.Equal(t, address, stored)
}

func TestDeleteIdempotent(t *testing.T) {
	v := newTestVault(t, nil)
	_, err := v.Create()
	require.NoError(t, err)

	require.NoError(t, v.Delete())
	has, err := v.HasStoredKey()
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, v.Delete())
	has, err = v.HasStoredKey()
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStoreReplaces(t *testing.T) {
	v := newTestVault(t, nil)

	keyA, _, err := v.Generate()
	require.NoError(t, err)
	keyB, _, err := v.Generate()
	require.NoError(t, err)

	recA, err := v.Encrypt(keyA)
	require.NoError(t, err)
	recB, err := v.Encrypt(keyB)
	require.NoError(t, err)

	require.NoError(t, v.Store(recA))
	require.NoError(t, v.Store(recB))

	loaded, found, err := v.Load()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, recB, loaded)

	got, err := v.Decrypt(loaded)
	require.NoError(t, err)
	assert.Equal(t, keyB, got)
}

func TestStoreRejectsIncompleteRecord(t *testing.T) {
	v := newTestVault(t, nil)
	err := v.Store(&model.EncryptedKeyRecord{ID: model.KeySlotID})
	assert.Error(t, err)

	has, err := v.HasStoredKey()
	require.NoError(t, err)
	assert.False(t, has)
}

func TestWrongPassphrase(t *testing.T) {
	store := storage.NewMemory()
	v, err := New(store, []byte("right"), testParams)
	require.NoError(t, err)
	_, err = v.Create()
	require.NoError(t, err)

	other, err := New(store, []byte("wrong"), testParams)
	require.NoError(t, err)
	_, err = other.Unlock()
	assert.ErrorIs(t, err, model.ErrDecryptionFailed)
}

func TestTamperedStoredRecord(t *testing.T) {
	v := newTestVault(t, nil)
	_, err := v.Create()
	require.NoError(t, err)

	rec, _, err := v.Load()
	require.NoError(t, err)
	rec.EncryptedData[len(rec.EncryptedData)-1] ^= 0x01
	require.NoError(t, v.Store(rec))

	_, err = v.Unlock()
	assert.ErrorIs(t, err, model.ErrDecryptionFailed)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	store, err := storage.OpenLevelDB(path)
	require.NoError(t, err)
	v, err := New(store, []byte("passphrase"), testParams)
	require.NoError(t, err)
	address, err := v.Create()
	require.NoError(t, err)
	require.NoError(t, v.Close())

	store, err = storage.OpenLevelDB(path)
	require.NoError(t, err)
	v = newTestVault(t, store)

	key, err := v.Unlock()
	require.NoError(t, err)
	derived, err := ethereum.AddressFromKey(key)
	require.NoError(t, err)
	assert.Equal(t, address, derived)
}

func TestClosedVault(t *testing.T) {
	v, err := New(storage.NewMemory(), []byte("passphrase"), testParams)
	require.NoError(t, err)
	require.NoError(t, v.Close())
	require.NoError(t, v.Close())

	_, err = v.Create()
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
	_, _, err = v.Load()
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
}

func TestNewRequiresPassphrase(t *testing.T) {
	_, err := New(storage.NewMemory(), nil, testParams)
	assert.Error(t, err)
}

// failingStore simulates an unavailable backend
type failingStore struct{}

var errDisk = errors.New("disk on fire")

func (failingStore) Put(string, *model.EncryptedKeyRecord) error {
	return errors.Join(model.ErrStorageUnavailable, errDisk)
}
func (failingStore) Get(string) (*model.EncryptedKeyRecord, error) {
	return nil, errors.Join(model.ErrStorageUnavailable, errDisk)
}
func (failingStore) Delete(string) error { return errors.Join(model.ErrStorageUnavailable, errDisk) }
func (failingStore) Close() error        { return nil }

func TestStorageErrorsSurface(t *testing.T) {
	v := newTestVault(t, failingStore{})

	_, err := v.Create()
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
	_, err = v.HasStoredKey()
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
	assert.ErrorIs(t, v.Delete(), model.ErrStorageUnavailable)
	_, err = v.Unlock()
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
}

func TestConcurrentStoreAndDelete(t *testing.T) {
	v := newTestVault(t, nil)

	key, _, err := v.Generate()
	require.NoError(t, err)
	rec, err := v.Encrypt(key)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, v.Store(rec))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, v.Delete())
		}()
	}
	wg.Wait()

	// slot is either absent or holds a record that decrypts to key
	loaded, found, err := v.Load()
	require.NoError(t, err)
	if found {
		got, err := v.Decrypt(loaded)
		require.NoError(t, err)
		assert.Equal(t, key, got)
	}
}

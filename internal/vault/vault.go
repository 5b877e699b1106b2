// Package vault owns the single locally custodied private key.
//
// Every read, write and delete of key material goes through a Vault. Operations are
// serialized by one lock, so a Delete racing a Store always ends in one of the two
// committed states. The key is encrypted under a passphrase-derived AES-256-GCM key;
// neither the passphrase nor the derived key is ever persisted.
package vault

import (
	"errors"
	"fmt"
	"sync"

	"github.com/AlexZinkM/bank-of-ethereum/internal/crypto"
	"github.com/AlexZinkM/bank-of-ethereum/internal/ethereum"
	"github.com/AlexZinkM/bank-of-ethereum/internal/model"
	"github.com/AlexZinkM/bank-of-ethereum/internal/storage"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// Vault mediates all access to the encrypted key record
type Vault struct {
	mu       sync.Mutex
	store    storage.Store
	password []byte
	params   model.KDFParams
	closed   bool
}

// New creates a vault over store. The vault owns store and closes it in Close.
// password is copied; the caller may zero its slice afterwards.
func New(store storage.Store, password []byte, params model.KDFParams) (*Vault, error) {
	if len(password) == 0 {
		return nil, errors.New("passphrase cannot be empty")
	}
	pw := make([]byte, len(password))
	copy(pw, password)
	return &Vault{store: store, password: pw, params: params}, nil
}

// Generate creates a fresh private key and its address. Nothing is stored.
func (v *Vault) Generate() (string, common.Address, error) {
	return ethereum.GenerateKey()
}

// ImportKey validates candidate, derives its address, then encrypts and stores it.
// An invalid candidate yields model.ErrInvalidKeyFormat and leaves the slot untouched.
func (v *Vault) ImportKey(candidate string) (common.Address, error) {
	if !crypto.IsHexKey(candidate) {
		return common.Address{}, fmt.Errorf("%w: expected 64 hex characters, optionally 0x-prefixed", model.ErrInvalidKeyFormat)
	}
	key := crypto.CanonicalKey(candidate)

	address, err := ethereum.AddressFromKey(key)
	if err != nil {
		return common.Address{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.sealAndStore(key, address); err != nil {
		return common.Address{}, err
	}
	log.Info().Str("address", address.Hex()).Msg("Private key imported")
	return address, nil
}

// Create generates a key and stores it under one lock acquisition
func (v *Vault) Create() (common.Address, error) {
	key, address, err := v.Generate()
	if err != nil {
		return common.Address{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.sealAndStore(key, address); err != nil {
		return common.Address{}, err
	}
	log.Info().Str("address", address.Hex()).Msg("Wallet created and private key stored")
	return address, nil
}

// Encrypt seals key into a new record with a fresh salt and nonce.
// The stored address is derived from key when it parses, left empty otherwise.
func (v *Vault) Encrypt(key string) (*model.EncryptedKeyRecord, error) {
	var address string
	if a, err := ethereum.AddressFromKey(key); err == nil {
		address = a.Hex()
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen(); err != nil {
		return nil, err
	}
	return crypto.EncryptKey(key, address, v.password, v.params)
}

// Decrypt opens rec and returns the private key
func (v *Vault) Decrypt(rec *model.EncryptedKeyRecord) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen(); err != nil {
		return "", err
	}
	return crypto.DecryptKey(rec, v.password)
}

// Store upserts rec into the slot, replacing any prior record
func (v *Vault) Store(rec *model.EncryptedKeyRecord) error {
	if !rec.Complete() {
		return fmt.Errorf("refusing to store incomplete record")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen(); err != nil {
		return err
	}
	return v.store.Put(model.KeySlotID, rec)
}

// Load returns the stored record. found is false when the slot is empty.
func (v *Vault) Load() (rec *model.EncryptedKeyRecord, found bool, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen(); err != nil {
		return nil, false, err
	}
	return v.load()
}

// Delete removes the stored record. Deleting an empty slot is not an error.
func (v *Vault) Delete() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen(); err != nil {
		return err
	}
	if err := v.store.Delete(model.KeySlotID); err != nil {
		return err
	}
	log.Info().Msg("Stored private key deleted")
	return nil
}

// HasStoredKey reports whether a record is stored, without decrypting it
func (v *Vault) HasStoredKey() (bool, error) {
	_, found, err := v.Load()
	return found, err
}

// Address returns the address kept in the record, without decrypting it
func (v *Vault) Address() (common.Address, error) {
	rec, found, err := v.Load()
	if err != nil {
		return common.Address{}, err
	}
	if !found {
		return common.Address{}, model.ErrNoStoredKey
	}
	if !common.IsHexAddress(rec.Address) {
		return common.Address{}, fmt.Errorf("%w: record has no valid address", model.ErrDecryptionFailed)
	}
	return common.HexToAddress(rec.Address), nil
}

// Unlock loads and decrypts the stored key. Returns model.ErrNoStoredKey when the slot is empty.
func (v *Vault) Unlock() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen(); err != nil {
		return "", err
	}

	rec, found, err := v.load()
	if err != nil {
		return "", err
	}
	if !found {
		return "", model.ErrNoStoredKey
	}
	return crypto.DecryptKey(rec, v.password)
}

// MigrateLegacy decrypts a record in the old layout (raw AES key stored alongside)
// and stores the same key as a passphrase-protected record.
// An occupied slot yields model.ErrKeyExists unless replace is set.
func (v *Vault) MigrateLegacy(legacy *model.LegacyKeyRecord, replace bool) (common.Address, error) {
	key, err := crypto.DecryptLegacy(legacy)
	if err != nil {
		return common.Address{}, err
	}

	address, err := ethereum.AddressFromKey(key)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: legacy record holds an invalid key", model.ErrDecryptionFailed)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen(); err != nil {
		return common.Address{}, err
	}

	if !replace {
		_, found, err := v.load()
		if err != nil {
			return common.Address{}, err
		}
		if found {
			return common.Address{}, model.ErrKeyExists
		}
	}

	if err := v.sealAndStore(key, address); err != nil {
		return common.Address{}, err
	}
	log.Info().Str("address", address.Hex()).Bool("replaced", replace).Msg("Legacy record migrated")
	return address, nil
}

// Close wipes the passphrase and releases the store. Further calls fail.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	clear(v.password)
	return v.store.Close()
}

// sealAndStore encrypts key and writes it. Caller holds v.mu.
func (v *Vault) sealAndStore(key string, address common.Address) error {
	if err := v.checkOpen(); err != nil {
		return err
	}
	rec, err := crypto.EncryptKey(key, address.Hex(), v.password, v.params)
	if err != nil {
		return err
	}
	return v.store.Put(model.KeySlotID, rec)
}

// load reads the slot. Caller holds v.mu.
func (v *Vault) load() (*model.EncryptedKeyRecord, bool, error) {
	rec, err := v.store.Get(model.KeySlotID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return rec, true, nil
}

func (v *Vault) checkOpen() error {
	if v.closed {
		return fmt.Errorf("%w: vault is closed", model.ErrStorageUnavailable)
	}
	return nil
}

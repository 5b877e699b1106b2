package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/AlexZinkM/bank-of-ethereum/internal/model"

	"golang.org/x/crypto/scrypt"
)

const (
	// scrypt parameters for the stored key.
	// N=2^18 (~256MB RAM, 0.5-2s per derivation). Lower N only for tests or
	// constrained hosts via SCRYPT_N.
	DefaultScryptN = 1 << 18
	scryptR        = 8
	scryptP        = 1
	scryptKeyLen   = 32 // AES-256
	saltLen        = 32
	nonceLen       = 12

	// Upper bounds for parameters read back from a record
	maxScryptN      = 1 << 20
	maxScryptR      = 32
	maxScryptP      = 16
	maxScryptMemory = 1 << 30 // 128*N*r bytes
)

// randReader is the entropy source for salts and nonces
var randReader io.Reader = rand.Reader

// DefaultParams returns scrypt parameters for the given N (DefaultScryptN when n <= 1)
func DefaultParams(n int) model.KDFParams {
	if n <= 1 {
		n = DefaultScryptN
	}
	return model.KDFParams{N: n, R: scryptR, P: scryptP}
}

// EncryptKey encrypts a hex private key under a key derived from password.
// A fresh salt and nonce are drawn on every call, so no (key, nonce) pair is ever reused.
// password must be []byte for security (caller should zero it after use)
func EncryptKey(privateKey, address string, password []byte, params model.KDFParams) (*model.EncryptedKeyRecord, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("password cannot be empty")
	}
	if err := checkParams(params); err != nil {
		return nil, err
	}

	// Generate salt and nonce
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(randReader, salt); err != nil {
		return nil, fmt.Errorf("%w: failed to generate salt: %v", model.ErrEntropyFailure, err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(randReader, nonce); err != nil {
		return nil, fmt.Errorf("%w: failed to generate nonce: %v", model.ErrEntropyFailure, err)
	}

	aesGCM, err := newGCM(password, salt, params)
	if err != nil {
		return nil, err
	}

	plaintext := []byte(privateKey)
	defer clear(plaintext) // wipe plaintext bytes from memory

	// Encrypt
	ciphertext := aesGCM.Seal(nil, nonce, plaintext, associatedData(model.KeySlotID, params))

	return &model.EncryptedKeyRecord{
		ID:            model.KeySlotID,
		Address:       address,
		EncryptedData: ciphertext,
		IV:            nonce,
		Salt:          salt,
		KDF:           params,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// checkParams rejects scrypt parameters outside the supported cost range
func checkParams(p model.KDFParams) error {
	if p.N < 2 || p.N&(p.N-1) != 0 || p.N > maxScryptN {
		return fmt.Errorf("scrypt N must be a power of two in [2, %d], got %d", maxScryptN, p.N)
	}
	if p.R < 1 || p.R > maxScryptR || p.P < 1 || p.P > maxScryptP {
		return fmt.Errorf("scrypt r=%d p=%d out of range", p.R, p.P)
	}
	if 128*p.N*p.R > maxScryptMemory {
		return fmt.Errorf("scrypt N=%d r=%d needs more than %d bytes", p.N, p.R, maxScryptMemory)
	}
	return nil
}

// associatedData binds the record id and the KDF parameters to the ciphertext.
// params must have passed checkParams.
func associatedData(id string, params model.KDFParams) []byte {
	ad := make([]byte, 0, len(id)+12)
	ad = append(ad, id...)
	ad = binary.BigEndian.AppendUint32(ad, uint32(params.N))
	ad = binary.BigEndian.AppendUint32(ad, uint32(params.R))
	ad = binary.BigEndian.AppendUint32(ad, uint32(params.P))
	return ad
}

// newGCM derives the record key from password and salt and wraps it in AES-GCM
func newGCM(password, salt []byte, params model.KDFParams) (cipher.AEAD, error) {
	// Derive key from password
	key, err := scrypt.Key(password, salt, params.N, params.R, params.P, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	// Create AES cipher
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	// Create GCM
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}

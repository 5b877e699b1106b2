package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"unicode/utf8"

	"github.com/AlexZinkM/bank-of-ethereum/internal/model"
)

// DecryptKey decrypts the private key held in rec.
// Any structural, authentication or password failure yields model.ErrDecryptionFailed.
// password must be []byte for security (caller should zero it after use)
func DecryptKey(rec *model.EncryptedKeyRecord, password []byte) (string, error) {
	if !rec.Complete() {
		return "", fmt.Errorf("%w: record is incomplete", model.ErrDecryptionFailed)
	}
	if len(rec.IV) != nonceLen {
		return "", fmt.Errorf("%w: invalid nonce length %d", model.ErrDecryptionFailed, len(rec.IV))
	}
	if err := checkParams(rec.KDF); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrDecryptionFailed, err)
	}

	aesGCM, err := newGCM(password, rec.Salt, rec.KDF)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrDecryptionFailed, err)
	}

	// Decrypt
	plaintext, err := aesGCM.Open(nil, rec.IV, rec.EncryptedData, associatedData(rec.ID, rec.KDF))
	if err != nil {
		return "", fmt.Errorf("%w: invalid password or corrupted record", model.ErrDecryptionFailed)
	}
	defer clear(plaintext) // wipe decrypted bytes from memory

	return decodeKey(plaintext)
}

// DecryptLegacy decrypts a record written in the old layout, where the raw
// AES-256 key was stored next to the ciphertext and no associated data was used.
func DecryptLegacy(rec *model.LegacyKeyRecord) (string, error) {
	if rec == nil || len(rec.EncryptedData) == 0 || len(rec.IV) != nonceLen || len(rec.Key) != scryptKeyLen {
		return "", fmt.Errorf("%w: legacy record is incomplete", model.ErrDecryptionFailed)
	}

	block, err := aes.NewCipher(rec.Key)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create cipher: %v", model.ErrDecryptionFailed, err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create GCM: %v", model.ErrDecryptionFailed, err)
	}

	plaintext, err := aesGCM.Open(nil, rec.IV, rec.EncryptedData, nil)
	if err != nil {
		return "", fmt.Errorf("%w: corrupted legacy record", model.ErrDecryptionFailed)
	}
	defer clear(plaintext)

	return decodeKey(plaintext)
}

// decodeKey checks that plaintext is a UTF-8 hex private key and returns it as a string
func decodeKey(plaintext []byte) (string, error) {
	if !utf8.Valid(plaintext) {
		return "", fmt.Errorf("%w: plaintext is not UTF-8", model.ErrDecryptionFailed)
	}
	key := string(plaintext)
	if !IsHexKey(key) {
		return "", fmt.Errorf("%w: plaintext is not a hex private key", model.ErrDecryptionFailed)
	}
	return key, nil
}

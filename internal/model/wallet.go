package model

// KeySlotID is the logical name of the only record the vault keeps.
const KeySlotID = "walletPrivateKey"

// KDFParams holds scrypt cost parameters used to derive the record key from the passphrase
type KDFParams struct {
	N int `json:"n"`
	R int `json:"r"`
	P int `json:"p"`
}

// EncryptedKeyRecord represents the persisted, encrypted private key.
// The AES key is derived from the passphrase and Salt; it is never stored.
type EncryptedKeyRecord struct {
	ID            string    `json:"id"`
	Address       string    `json:"address"`
	EncryptedData []byte    `json:"encryptedData"` // AES-256-GCM ciphertext with tag (base64 in JSON)
	IV            []byte    `json:"iv"`            // 12-byte nonce
	Salt          []byte    `json:"salt"`
	KDF           KDFParams `json:"kdf"`
	CreatedAt     string    `json:"createdAt"`
}

// Complete reports whether all fields needed for decryption are populated.
func (r *EncryptedKeyRecord) Complete() bool {
	return r != nil &&
		r.ID != "" &&
		len(r.EncryptedData) > 0 &&
		len(r.IV) > 0 &&
		len(r.Salt) > 0 &&
		r.KDF.N > 1 && r.KDF.R > 0 && r.KDF.P > 0
}

// LegacyKeyRecord is the old record layout that kept the raw AES key next to the ciphertext.
// Only read by the migrate flow.
type LegacyKeyRecord struct {
	ID            string `json:"id"`
	EncryptedData []byte `json:"encryptedData"`
	IV            []byte `json:"iv"`
	Key           []byte `json:"key"`
}

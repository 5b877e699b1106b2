package main

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AlexZinkM/bank-of-ethereum/internal/config"
	"github.com/AlexZinkM/bank-of-ethereum/internal/ethereum"
	"github.com/AlexZinkM/bank-of-ethereum/internal/model"
	"github.com/AlexZinkM/bank-of-ethereum/internal/storage"
	"github.com/AlexZinkM/bank-of-ethereum/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	devKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestConfirm(t *testing.T) {
	cases := map[string]bool{
		"y\n":     true,
		"YES\n":   true,
		" yes ":   true,
		"n\n":     false,
		"\n":      false,
		"":        false,
		"maybe\n": false,
	}
	for in, want := range cases {
		var out bytes.Buffer
		assert.Equal(t, want, confirm(strings.NewReader(in), &out, "Proceed?"), "%q", in)
		assert.Equal(t, "Proceed? [y/N]: ", out.String())
	}
}

func writeLegacyRecord(t *testing.T, id, plaintext string) string {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	iv := make([]byte, 12)
	_, err = rand.Read(iv)
	require.NoError(t, err)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	data, err := json.Marshal(model.LegacyKeyRecord{
		ID:            id,
		EncryptedData: gcm.Seal(nil, iv, []byte(plaintext), nil),
		IV:            iv,
		Key:           key,
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "legacy.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestReadLegacyRecordAndMigrate(t *testing.T) {
	path := writeLegacyRecord(t, model.KeySlotID, devKey)

	rec, err := readLegacyRecord(path)
	require.NoError(t, err)

	v, err := vault.New(storage.NewMemory(), []byte("passphrase"), model.KDFParams{N: 1 << 10, R: 8, P: 1})
	require.NoError(t, err)
	defer v.Close()

	address, err := v.MigrateLegacy(rec, false)
	require.NoError(t, err)
	assert.Equal(t, devAddress, address.Hex())
}

func TestPrintStored(t *testing.T) {
	address := common.HexToAddress(devAddress)

	var out bytes.Buffer
	require.NoError(t, printStored(&out, address, nil, "Wallet created"))
	var resp model.GenerateResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "Wallet created successfully", resp.Message)
	assert.Equal(t, devAddress, resp.Address)

	out.Reset()
	require.NoError(t, printStored(&out, address, model.ErrUnknownNetwork, "Wallet created"))
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Message, "Wallet created, not logged in: "))

	out.Reset()
	err := printStored(&out, common.Address{}, model.ErrKeyExists, "Wallet created")
	assert.ErrorIs(t, err, model.ErrKeyExists)
	assert.Empty(t, out.String())
}

func TestReadLegacyRecordErrors(t *testing.T) {
	_, err := readLegacyRecord(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, err = readLegacyRecord(bad)
	assert.ErrorIs(t, err, model.ErrDecryptionFailed)

	_, err = readLegacyRecord(writeLegacyRecord(t, "somethingElse", devKey))
	assert.ErrorIs(t, err, model.ErrDecryptionFailed)
}

func TestSessionOptions(t *testing.T) {
	cfg := &config.Config{
		Network:           "sepolia",
		RPCURLs:           config.Endpoints{"sepolia": "http://127.0.0.1:8545"},
		RPCTimeout:        5 * time.Second,
		WithdrawCooldown:  2,
		FiatCurrency:      "eur",
		ExternalSignerURL: "http://127.0.0.1:8550",
	}

	opts := sessionOptions(cfg)
	assert.Equal(t, 2*time.Minute, opts.WithdrawCooldown)
	assert.Equal(t, "eur", opts.Fiat)
	assert.NotNil(t, opts.Rates)
	assert.NotNil(t, opts.ExternalSigner)

	network, err := opts.Networks.Resolve(opts.Network)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8545", network.RPCURL)

	cfg.FiatCurrency = ""
	cfg.ExternalSignerURL = ""
	opts = sessionOptions(cfg)
	assert.Nil(t, opts.Rates)
	assert.Nil(t, opts.ExternalSigner)
}

func TestVerifyCommand(t *testing.T) {
	chdir(t, t.TempDir())

	signer, err := ethereum.NewKeySigner(devKey)
	require.NoError(t, err)
	sig, err := ethereum.SignMessage(context.Background(), signer, []byte("gm"))
	require.NoError(t, err)

	root, a := newRootCmd()
	defer a.close()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"verify", "gm", hexutil.Encode(sig)})
	require.NoError(t, root.Execute())

	var resp model.VerifyResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, devAddress, resp.Address)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv := &http.Server{
		Addr:              "127.0.0.1:0",
		Handler:           http.NotFoundHandler(),
		ReadHeaderTimeout: time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, srv) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AlexZinkM/bank-of-ethereum/internal/ethereum"
	"github.com/AlexZinkM/bank-of-ethereum/internal/ethereum/ethereumtest"
	"github.com/AlexZinkM/bank-of-ethereum/internal/model"
	"github.com/AlexZinkM/bank-of-ethereum/internal/session"
	"github.com/AlexZinkM/bank-of-ethereum/internal/storage"
	"github.com/AlexZinkM/bank-of-ethereum/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	devKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	recipient  = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func newTestHandler(t *testing.T) (*WalletHandler, *ethereumtest.Backend) {
	t.Helper()

	v, err := vault.New(storage.NewMemory(), []byte("passphrase"), model.KDFParams{N: 1 << 10, R: 8, P: 1})
	require.NoError(t, err)

	backend := ethereumtest.NewBackend(1)
	s, err := session.New(v, session.Options{
		Networks: ethereum.NewNetworks(map[string]string{"mainnet": "http://mainnet.test"}, ""),
		Network:  "mainnet",
		Dial: func(context.Context, string) (ethereum.Backend, error) {
			return backend, nil
		},
		RPCTimeout:     time.Second,
		ConfirmTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return NewWalletHandler(s), backend
}

func do(t *testing.T, fn http.HandlerFunc, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, "/", nil)
	} else {
		r = httptest.NewRequest(method, "/", bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	fn(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t)

	w := do(t, h.Create, http.MethodGet, "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))

	w = do(t, h.Balance, http.MethodPost, "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCreateAndConflict(t *testing.T) {
	h, _ := newTestHandler(t)

	w := do(t, h.Create, http.MethodPost, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[model.GenerateResponse](t, w)
	assert.True(t, resp.Success)
	assert.True(t, common.IsHexAddress(resp.Address))

	w = do(t, h.Create, http.MethodPost, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, model.CodeKeyExists, decode[model.ErrorResponse](t, w).Code)
}

func TestImport(t *testing.T) {
	h, _ := newTestHandler(t)

	w := do(t, h.Import, http.MethodPost, `{"privateKey":"0x1234"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.CodeInvalidKeyFormat, decode[model.ErrorResponse](t, w).Code)

	w = do(t, h.Import, http.MethodPost, `{"privateKey":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.CodeBadRequest, decode[model.ErrorResponse](t, w).Code)

	w = do(t, h.Import, http.MethodPost, `{"privateKey":"`+devKey+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, devAddress, decode[model.GenerateResponse](t, w).Address)

	w = do(t, h.Status, http.MethodGet, "")
	status := decode[model.StatusResponse](t, w)
	assert.Equal(t, "LoggedIn", status.State)
	assert.Equal(t, devAddress, status.Address)
}

func TestLoginLogout(t *testing.T) {
	h, _ := newTestHandler(t)

	w := do(t, h.Login, http.MethodPost, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, model.CodeNoStoredKey, decode[model.ErrorResponse](t, w).Code)

	require.Equal(t, http.StatusOK, do(t, h.Import, http.MethodPost, `{"privateKey":"`+devKey+`"}`).Code)

	w = do(t, h.Logout, http.MethodPost, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "LoggedOut", decode[model.StatusResponse](t, w).State)

	w = do(t, h.Login, http.MethodPost, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "LoggedIn", decode[model.StatusResponse](t, w).State)

	w = do(t, h.Logout, http.MethodPost, `{"removeKey":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "LoggedOutNoKey", decode[model.StatusResponse](t, w).State)
}

func TestDelete(t *testing.T) {
	h, _ := newTestHandler(t)

	// nothing stored is fine
	w := do(t, h.Delete, http.MethodPost, "")
	require.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, http.StatusOK, do(t, h.Create, http.MethodPost, "").Code)
	w = do(t, h.Delete, http.MethodPost, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "LoggedOutNoKey", decode[model.StatusResponse](t, w).State)
}

func TestRequiresLogin(t *testing.T) {
	h, _ := newTestHandler(t)

	for name, fn := range map[string]struct {
		handler http.HandlerFunc
		method  string
		body    string
	}{
		"deposit":  {h.Deposit, http.MethodGet, ""},
		"balance":  {h.Balance, http.MethodGet, ""},
		"export":   {h.Export, http.MethodPost, ""},
		"sign":     {h.Sign, http.MethodPost, `{"message":"hi"}`},
		"withdraw": {h.Withdraw, http.MethodPost, `{"toAddress":"` + recipient + `","amount":"1"}`},
	} {
		t.Run(name, func(t *testing.T) {
			w := do(t, fn.handler, fn.method, fn.body)
			assert.Equal(t, http.StatusConflict, w.Code)
			assert.Equal(t, model.CodeInvalidState, decode[model.ErrorResponse](t, w).Code)
		})
	}
}

func TestDepositAndBalance(t *testing.T) {
	h, backend := newTestHandler(t)
	require.Equal(t, http.StatusOK, do(t, h.Import, http.MethodPost, `{"privateKey":"`+devKey+`"}`).Code)
	backend.Fund(common.HexToAddress(devAddress), big.NewInt(2_000_000_000_000_000_000))

	w := do(t, h.Deposit, http.MethodGet, "")
	require.Equal(t, http.StatusOK, w.Code)
	dep := decode[model.DepositResponse](t, w)
	assert.Equal(t, devAddress, dep.Address)
	assert.NotEmpty(t, dep.QR)

	w = do(t, h.Balance, http.MethodGet, "")
	require.Equal(t, http.StatusOK, w.Code)
	bal := decode[model.BalanceResponse](t, w)
	assert.Equal(t, "2.0", bal.ETH)
	assert.Equal(t, "mainnet", bal.Network)
}

func TestWithdraw(t *testing.T) {
	h, backend := newTestHandler(t)
	require.Equal(t, http.StatusOK, do(t, h.Import, http.MethodPost, `{"privateKey":"`+devKey+`"}`).Code)
	backend.Fund(common.HexToAddress(devAddress), big.NewInt(1_000_000_000_000_000_000))

	w := do(t, h.Withdraw, http.MethodPost, `{"toAddress":"nope","amount":"0.1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.CodeInvalidAddress, decode[model.ErrorResponse](t, w).Code)

	w = do(t, h.Withdraw, http.MethodPost, `{"toAddress":"`+recipient+`","amount":"1,5"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.CodeInvalidAmount, decode[model.ErrorResponse](t, w).Code)

	w = do(t, h.Withdraw, http.MethodPost, `{"toAddress":"`+recipient+`","amount":"5"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decode[model.ErrorResponse](t, w).Error, "insufficient balance")

	w = do(t, h.Withdraw, http.MethodPost, `{"toAddress":"`+recipient+`","amount":"0.25","wait":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[model.WithdrawResponse](t, w)
	assert.Equal(t, "success", resp.Status)
	assert.Len(t, backend.SentTransactions(), 1)
}

func TestWithdrawWaitFailureKeepsTxHash(t *testing.T) {
	h, backend := newTestHandler(t)
	require.Equal(t, http.StatusOK, do(t, h.Import, http.MethodPost, `{"privateKey":"`+devKey+`"}`).Code)
	backend.Fund(common.HexToAddress(devAddress), big.NewInt(1_000_000_000_000_000_000))
	backend.HoldReceipts = true

	w := do(t, h.Withdraw, http.MethodPost, `{"toAddress":"`+recipient+`","amount":"0.1","wait":true}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decode[model.ErrorResponse](t, w)
	assert.Equal(t, model.CodeProvider, resp.Code)

	sent := backend.SentTransactions()
	require.Len(t, sent, 1)
	assert.Equal(t, sent[0].Hash().Hex(), resp.TxHash)
}

func TestCreateStoredButNotLoggedIn(t *testing.T) {
	v, err := vault.New(storage.NewMemory(), []byte("passphrase"), model.KDFParams{N: 1 << 10, R: 8, P: 1})
	require.NoError(t, err)
	s, err := session.New(v, session.Options{Networks: ethereum.NewNetworks(nil, "")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	h := NewWalletHandler(s)

	w := do(t, h.Create, http.MethodPost, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[model.GenerateResponse](t, w)
	assert.True(t, resp.Success)
	assert.True(t, common.IsHexAddress(resp.Address))
	assert.Contains(t, resp.Message, "not logged in")

	w = do(t, h.Status, http.MethodGet, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "LoggedOut", decode[model.StatusResponse](t, w).State)

	w = do(t, h.Create, http.MethodPost, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestExport(t *testing.T) {
	h, _ := newTestHandler(t)
	require.Equal(t, http.StatusOK, do(t, h.Import, http.MethodPost, `{"privateKey":"`+devKey+`"}`).Code)

	w := do(t, h.Export, http.MethodPost, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, devKey, decode[model.ExportResponse](t, w).PrivateKey)
}

func TestNetwork(t *testing.T) {
	h, _ := newTestHandler(t)

	w := do(t, h.Network, http.MethodPost, `{"network":"kovan"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.CodeUnknownNetwork, decode[model.ErrorResponse](t, w).Code)

	w = do(t, h.Network, http.MethodPost, `{"network":"MAINNET"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mainnet", decode[model.StatusResponse](t, w).Network)
}

func TestSignVerify(t *testing.T) {
	h, _ := newTestHandler(t)
	require.Equal(t, http.StatusOK, do(t, h.Import, http.MethodPost, `{"privateKey":"`+devKey+`"}`).Code)

	w := do(t, h.Sign, http.MethodPost, `{"message":"withdraw 1 ETH"}`)
	require.Equal(t, http.StatusOK, w.Code)
	sig := decode[model.SignResponse](t, w)

	body, err := json.Marshal(model.VerifyRequest{Message: "withdraw 1 ETH", Signature: sig.Signature})
	require.NoError(t, err)
	w = do(t, h.Verify, http.MethodPost, string(body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, devAddress, decode[model.VerifyResponse](t, w).Address)

	w = do(t, h.Verify, http.MethodPost, `{"message":"x","signature":"0x00"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestUnknownFieldsRejected(t *testing.T) {
	h, _ := newTestHandler(t)
	w := do(t, h.Import, http.MethodPost, `{"privateKey":"`+devKey+`","password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.CodeBadRequest, decode[model.ErrorResponse](t, w).Code)
}

func TestStatusForCode(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, statusForCode(model.CodeDecryptionFailed))
	assert.Equal(t, http.StatusForbidden, statusForCode(model.CodeNotExportable))
	assert.Equal(t, http.StatusServiceUnavailable, statusForCode(model.CodeStorageUnavailable))
	assert.Equal(t, http.StatusInternalServerError, statusForCode(model.CodeEntropyFailure))
	assert.Equal(t, http.StatusInternalServerError, statusForCode(model.CodeInternal))
}

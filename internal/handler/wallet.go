package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/AlexZinkM/bank-of-ethereum/internal/model"
	"github.com/AlexZinkM/bank-of-ethereum/internal/session"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes caps request bodies; every request here is a few hundred bytes
const maxBodyBytes = 1 << 16

// WalletHandler serves the wallet API over a Session
type WalletHandler struct {
	session *session.Session
}

// NewWalletHandler creates a new WalletHandler
func NewWalletHandler(s *session.Session) *WalletHandler {
	return &WalletHandler{session: s}
}

// Create handles POST /wallet/create
// @Summary      Create wallet
// @Description  Generates a new private key, stores it encrypted and logs in with it
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  model.GenerateResponse
// @Failure      409  {object}  model.ErrorResponse
// @Router       /wallet/create [post]
func (h *WalletHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	address, err := h.session.CreateAccount(r.Context())
	writeStored(w, address, err, "Wallet created")
}

// Import handles POST /wallet/import
// @Summary      Import wallet
// @Description  Stores an existing private key (64 hex chars, optional 0x prefix) and logs in with it
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Param        request  body      model.ImportRequest  true  "Private key"
// @Success      200      {object}  model.GenerateResponse
// @Failure      400      {object}  model.ErrorResponse
// @Failure      409      {object}  model.ErrorResponse
// @Router       /wallet/import [post]
func (h *WalletHandler) Import(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req model.ImportRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	address, err := h.session.ImportAccount(r.Context(), req.PrivateKey)
	writeStored(w, address, err, "Wallet imported")
}

// Login handles POST /wallet/login
// @Summary      Log in
// @Description  Unlocks the stored key, or connects the external signer when no key is stored
// @Tags         session
// @Produce      json
// @Success      200  {object}  model.StatusResponse
// @Failure      401  {object}  model.ErrorResponse
// @Failure      404  {object}  model.ErrorResponse
// @Router       /wallet/login [post]
func (h *WalletHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	if _, err := h.session.Connect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// Logout handles POST /wallet/logout
// @Summary      Log out
// @Description  Logs out; with removeKey the stored key is deleted as well
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        request  body      model.LogoutRequest  false  "Logout options"
// @Success      200      {object}  model.StatusResponse
// @Router       /wallet/logout [post]
func (h *WalletHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req model.LogoutRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(w, err)
		return
	}

	if err := h.session.Disconnect(r.Context(), req.RemoveKey); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// Delete handles POST /wallet/delete
// @Summary      Delete wallet
// @Description  Deletes the stored key and logs out. Deleting when nothing is stored succeeds.
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  model.StatusResponse
// @Router       /wallet/delete [post]
func (h *WalletHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.session.DeleteAccount(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// Status handles GET /wallet/status
// @Summary      Session status
// @Tags         session
// @Produce      json
// @Success      200  {object}  model.StatusResponse
// @Router       /wallet/status [get]
func (h *WalletHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// Deposit handles GET /wallet/deposit
// @Summary      Deposit address
// @Description  Returns the wallet address and a base64 PNG QR code of it
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  model.DepositResponse
// @Failure      409  {object}  model.ErrorResponse
// @Router       /wallet/deposit [get]
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	resp, err := h.session.Deposit()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Balance handles GET /wallet/balance
// @Summary      Get wallet balance
// @Description  Gets the ETH balance, with its fiat value on mainnet when the rate is available
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  model.BalanceResponse
// @Failure      409  {object}  model.ErrorResponse
// @Failure      502  {object}  model.ErrorResponse
// @Router       /wallet/balance [get]
func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	resp, err := h.session.Balance(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Withdraw handles POST /wallet/withdraw
// @Summary      Send ETH
// @Description  Sends ETH to the specified address. With wait the response carries the receipt status.
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Param        request  body      model.WithdrawRequest  true  "Withdrawal data"
// @Success      200      {object}  model.WithdrawResponse
// @Failure      400      {object}  model.ErrorResponse
// @Failure      409      {object}  model.ErrorResponse
// @Failure      502      {object}  model.ErrorResponse
// @Router       /wallet/withdraw [post]
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req model.WithdrawRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.session.Withdraw(r.Context(), req.ToAddress, req.Amount, req.Wait)
	if err != nil {
		status, body := errorResponse(err)
		if resp != nil {
			body.TxHash = resp.TxHash
		}
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Export handles POST /wallet/export
// @Summary      Export private key
// @Description  Decrypts and returns the stored private key. Not available for the external signer.
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  model.ExportResponse
// @Failure      403  {object}  model.ErrorResponse
// @Failure      409  {object}  model.ErrorResponse
// @Router       /wallet/export [post]
func (h *WalletHandler) Export(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	resp, err := h.session.ExportPrivateKey(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

// Network handles POST /wallet/network
// @Summary      Switch network
// @Description  Selects mainnet, sepolia, holesky or a network from RPC_URLS
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        request  body      model.NetworkRequest  true  "Network name"
// @Success      200      {object}  model.StatusResponse
// @Failure      400      {object}  model.ErrorResponse
// @Router       /wallet/network [post]
func (h *WalletHandler) Network(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req model.NetworkRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.session.SwitchNetwork(r.Context(), req.Network); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// Sign handles POST /wallet/sign
// @Summary      Sign message
// @Description  Signs a message with the EIP-191 personal message prefix
// @Tags         message
// @Accept       json
// @Produce      json
// @Param        request  body      model.SignRequest  true  "Message"
// @Success      200      {object}  model.SignResponse
// @Failure      409      {object}  model.ErrorResponse
// @Router       /wallet/sign [post]
func (h *WalletHandler) Sign(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req model.SignRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.session.SignMessage(r.Context(), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Verify handles POST /wallet/verify
// @Summary      Verify message
// @Description  Recovers the address that signed a message
// @Tags         message
// @Accept       json
// @Produce      json
// @Param        request  body      model.VerifyRequest  true  "Message and signature"
// @Success      200      {object}  model.VerifyResponse
// @Failure      502      {object}  model.ErrorResponse
// @Router       /wallet/verify [post]
func (h *WalletHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req model.VerifyRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	address, err := session.VerifyMessage(req.Message, req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.VerifyResponse{Address: address.Hex()})
}

// errBadRequest marks request bodies that could not be decoded
var errBadRequest = errors.New("bad request")

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "Method not allowed. Should be "+method, http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// decodeBody reads a JSON body into v. With optional an empty body is accepted.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := errorResponse(err)
	writeJSON(w, status, body)
}

func errorResponse(err error) (int, model.ErrorResponse) {
	code := model.CodeBadRequest
	if !errors.Is(err, errBadRequest) {
		code = model.ErrorCode(err)
	}
	status := statusForCode(code)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", code).Msg("Request failed")
	}
	return status, model.ErrorResponse{Error: err.Error(), Code: code}
}

// writeStored answers create and import. A key that was stored but could not
// log in is still a success; the message carries the login error.
func writeStored(w http.ResponseWriter, address common.Address, err error, action string) {
	if err != nil && address == (common.Address{}) {
		writeError(w, err)
		return
	}
	msg := action + " successfully"
	if err != nil {
		msg = action + ", not logged in: " + err.Error()
	}
	writeJSON(w, http.StatusOK, model.GenerateResponse{
		Success: true,
		Message: msg,
		Address: address.Hex(),
	})
}

func statusForCode(code string) int {
	switch code {
	case model.CodeBadRequest, model.CodeInvalidKeyFormat, model.CodeInvalidAmount,
		model.CodeInvalidAddress, model.CodeUnknownNetwork:
		return http.StatusBadRequest
	case model.CodeDecryptionFailed:
		return http.StatusUnauthorized
	case model.CodeNotExportable:
		return http.StatusForbidden
	case model.CodeNoStoredKey:
		return http.StatusNotFound
	case model.CodeKeyExists, model.CodeInvalidState:
		return http.StatusConflict
	case model.CodeProvider:
		return http.StatusBadGateway
	case model.CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

package model

import "errors"

// ErrorResponse is the consistent JSON structure for all API error responses.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	TxHash string `json:"txHash,omitempty"` // set when a transaction was broadcast before the failure
}

var (
	ErrInvalidKeyFormat   = errors.New("invalid private key format")
	ErrDecryptionFailed   = errors.New("decryption failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrProvider           = errors.New("provider error")
	ErrEntropyFailure     = errors.New("secure random source unavailable")

	ErrNoStoredKey    = errors.New("no stored key")
	ErrKeyExists      = errors.New("a key is already stored")
	ErrInvalidState   = errors.New("operation not allowed in current state")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidAddress = errors.New("invalid recipient address")
	ErrUnknownNetwork = errors.New("unknown network")
	ErrNotExportable  = errors.New("private key is not exportable")
)

// Error codes returned in ErrorResponse.Code
const (
	CodeInvalidKeyFormat   = "INVALID_KEY_FORMAT"
	CodeDecryptionFailed   = "DECRYPTION_FAILED"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeProvider           = "PROVIDER_ERROR"
	CodeEntropyFailure     = "ENTROPY_FAILURE"
	CodeNoStoredKey        = "NO_STORED_KEY"
	CodeKeyExists          = "KEY_EXISTS"
	CodeInvalidState       = "INVALID_STATE"
	CodeInvalidAmount      = "INVALID_AMOUNT"
	CodeInvalidAddress     = "INVALID_ADDRESS"
	CodeUnknownNetwork     = "UNKNOWN_NETWORK"
	CodeNotExportable      = "NOT_EXPORTABLE"
	CodeBadRequest         = "BAD_REQUEST"
	CodeInternal           = "INTERNAL"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidKeyFormat, CodeInvalidKeyFormat},
	{ErrDecryptionFailed, CodeDecryptionFailed},
	{ErrStorageUnavailable, CodeStorageUnavailable},
	{ErrEntropyFailure, CodeEntropyFailure},
	{ErrNoStoredKey, CodeNoStoredKey},
	{ErrKeyExists, CodeKeyExists},
	{ErrInvalidState, CodeInvalidState},
	{ErrInvalidAmount, CodeInvalidAmount},
	{ErrInvalidAddress, CodeInvalidAddress},
	{ErrUnknownNetwork, CodeUnknownNetwork},
	{ErrNotExportable, CodeNotExportable},
	// checked last: provider failures may wrap a more specific kind above
	{ErrProvider, CodeProvider},
}

// ErrorCode maps an error to its API code. Unknown errors map to CodeInternal.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}

package model

// WithdrawRequest represents request for POST /wallet/withdraw
type WithdrawRequest struct {
	ToAddress string `json:"toAddress" binding:"required"`
	Amount    string `json:"amount" binding:"required"` // ETH, decimal string
	Wait      bool   `json:"wait"`                      // wait for the receipt before responding
}

// WithdrawResponse represents response for POST /wallet/withdraw
type WithdrawResponse struct {
	TxHash      string `json:"txHash"`
	Status      string `json:"status"` // "pending", "success" or "failed"
	BlockNumber uint64 `json:"blockNumber,omitempty"`
}

// LogoutRequest represents request for POST /wallet/logout
type LogoutRequest struct {
	RemoveKey bool `json:"removeKey"`
}

// SignRequest represents request for POST /wallet/sign
type SignRequest struct {
	Message string `json:"message" binding:"required"`
}

// SignResponse represents response for POST /wallet/sign
type SignResponse struct {
	Address   string `json:"address"`
	Signature string `json:"signature"` // 0x-prefixed, 65 bytes
}

// VerifyRequest represents request for POST /wallet/verify
type VerifyRequest struct {
	Message   string `json:"message" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// VerifyResponse represents response for POST /wallet/verify
type VerifyResponse struct {
	Address string `json:"address"`
}

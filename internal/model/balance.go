package model

// BalanceResponse represents response for GET /wallet/balance
type BalanceResponse struct {
	Address string `json:"address"`
	Network string `json:"network"`
	Wei     string `json:"wei"`
	ETH     string `json:"eth"`
	Fiat    string `json:"fiat,omitempty"`  // e.g. "usd"
	Rate    string `json:"rate,omitempty"`  // ETH price in Fiat
	Value   string `json:"value,omitempty"` // ETH * Rate, display only
}

// DepositResponse represents response for GET /wallet/deposit
type DepositResponse struct {
	Address string `json:"address"`
	Network string `json:"network"`
	QR      string `json:"QR"` // PNG, base64
}

// StatusResponse represents response for GET /wallet/status
type StatusResponse struct {
	State   string `json:"state"`
	Signer  string `json:"signer,omitempty"` // "local" or "external"
	Address string `json:"address,omitempty"`
	Network string `json:"network"`
}

// NetworkRequest represents request for POST /wallet/network
type NetworkRequest struct {
	Network string `json:"network" binding:"required"`
}

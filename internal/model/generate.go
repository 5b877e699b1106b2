package model

// GenerateResponse represents response for POST /wallet/create and /wallet/import
type GenerateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Address string `json:"address,omitempty"`
}

// ImportRequest represents request for POST /wallet/import
type ImportRequest struct {
	PrivateKey string `json:"privateKey" binding:"required"`
}

// ExportResponse represents response for POST /wallet/export
type ExportResponse struct {
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey"`
}

package api

import (
	"net/http"

	_ "github.com/AlexZinkM/bank-of-ethereum/docs"
	"github.com/AlexZinkM/bank-of-ethereum/internal/handler"
	"github.com/AlexZinkM/bank-of-ethereum/internal/session"

	httpSwagger "github.com/swaggo/http-swagger"
)

// SetupRouter sets up router with handlers
func SetupRouter(s *session.Session) http.Handler {
	walletHandler := handler.NewWalletHandler(s)

	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Session endpoints
	mux.HandleFunc("/wallet/login", walletHandler.Login)
	mux.HandleFunc("/wallet/logout", walletHandler.Logout)
	mux.HandleFunc("/wallet/status", walletHandler.Status)
	mux.HandleFunc("/wallet/network", walletHandler.Network)

	// Wallet endpoints
	mux.HandleFunc("/wallet/create", walletHandler.Create)
	mux.HandleFunc("/wallet/import", walletHandler.Import)
	mux.HandleFunc("/wallet/delete", walletHandler.Delete)
	mux.HandleFunc("/wallet/deposit", walletHandler.Deposit)
	mux.HandleFunc("/wallet/balance", walletHandler.Balance)
	mux.HandleFunc("/wallet/withdraw", walletHandler.Withdraw)
	mux.HandleFunc("/wallet/export", walletHandler.Export)

	// Message endpoints
	mux.HandleFunc("/wallet/sign", walletHandler.Sign)
	mux.HandleFunc("/wallet/verify", walletHandler.Verify)

	return requestLogger(mux)
}

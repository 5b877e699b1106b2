package ethereum

import (
	"context"
	"fmt"

	"github.com/AlexZinkM/bank-of-ethereum/internal/model"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const signatureLen = crypto.SignatureLength // 65

// SignMessage signs msg as an EIP-191 personal message.
// The returned signature uses V in {27, 28}, as wallets and block explorers expect.
func SignMessage(ctx context.Context, signer Signer, msg []byte) ([]byte, error) {
	sig, err := signer.SignText(ctx, msg)
	if err != nil {
		return nil, err
	}
	if len(sig) != signatureLen {
		return nil, fmt.Errorf("%w: unexpected signature length %d", model.ErrProvider, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] < 27 {
		sig[crypto.RecoveryIDOffset] += 27
	}
	return sig, nil
}

// VerifyMessage recovers the address that signed msg. V may be 0/1 or 27/28.
func VerifyMessage(msg, sig []byte) (common.Address, error) {
	if len(sig) != signatureLen {
		return common.Address{}, fmt.Errorf("%w: signature must be %d bytes", model.ErrProvider, signatureLen)
	}

	normalized := make([]byte, signatureLen)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(msg), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: failed to recover signer: %v", model.ErrProvider, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

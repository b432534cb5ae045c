package evmadapter

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	domainerrors "chainballot/contexts/governance/voting-ledger/domain/errors"
	"chainballot/contexts/governance/voting-ledger/ports"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the service's hot signing keys, one per account handle, and
// produces signed legacy transactions addressed at the ballot contract.
type Signer struct {
	chainID  *big.Int
	contract common.Address
	keys     map[string]*ecdsa.PrivateKey
}

// NewSigner parses the configured hex-encoded private keys. keysHex maps
// account handles to 32-byte hex keys, with or without a 0x prefix.
func NewSigner(chainID int64, contractAddr string, keysHex map[string]string) (*Signer, error) {
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddr)
	}
	keys := make(map[string]*ecdsa.PrivateKey, len(keysHex))
	for handle, raw := range keysHex {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse signing key for account %q: %w", handle, err)
		}
		keys[handle] = key
	}
	return &Signer{
		chainID:  big.NewInt(chainID),
		contract: common.HexToAddress(contractAddr),
		keys:     keys,
	}, nil
}

// Addresses maps every known account handle to its hex address, for wiring
// the ledger client's nonce lookups.
func (s *Signer) Addresses() map[string]string {
	addresses := make(map[string]string, len(s.keys))
	for handle, key := range s.keys {
		addresses[handle] = crypto.PubkeyToAddress(key.PublicKey).Hex()
	}
	return addresses
}

func (s *Signer) Sign(_ context.Context, req ports.SignRequest) (ports.SignedEnvelope, error) {
	key, ok := s.keys[req.Account]
	if !ok {
		return ports.SignedEnvelope{}, fmt.Errorf("%w: no key for account %q", domainerrors.ErrSigningUnavailable, req.Account)
	}

	data, err := packCallData(req)
	if err != nil {
		return ports.SignedEnvelope{}, fmt.Errorf("%w: %v", domainerrors.ErrSigningUnavailable, err)
	}

	tx := types.NewTransaction(req.Nonce, s.contract, big.NewInt(0), req.GasLimit, req.GasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), key)
	if err != nil {
		return ports.SignedEnvelope{}, fmt.Errorf("%w: %v", domainerrors.ErrSigningUnavailable, err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return ports.SignedEnvelope{}, fmt.Errorf("%w: %v", domainerrors.ErrSigningUnavailable, err)
	}

	return ports.SignedEnvelope{
		Account: req.Account,
		Nonce:   req.Nonce,
		Raw:     raw,
		Hash:    signed.Hash().Hex(),
	}, nil
}

package evmadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"chainballot/contexts/governance/voting-ledger/domain/entities"
	domainerrors "chainballot/contexts/governance/voting-ledger/domain/errors"
	"chainballot/contexts/governance/voting-ledger/ports"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	testKeyHex       = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testContractAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	signer, err := NewSigner(1337, testContractAddr, map[string]string{"operator": testKeyHex})
	if err != nil {
		t.Fatalf("new signer failed: %v", err)
	}
	return signer
}

func TestSignerProducesDecodableEnvelope(t *testing.T) {
	signer := newTestSigner(t)
	params, err := json.Marshal(entities.CreatePollParams{
		Title:        "Treasury allocation",
		Options:      []string{"yes", "no"},
		DeadlineUnix: 1790000000,
	})
	if err != nil {
		t.Fatalf("marshal params failed: %v", err)
	}

	envelope, err := signer.Sign(context.Background(), ports.SignRequest{
		Kind:     entities.KindCreatePoll,
		Account:  "operator",
		Nonce:    3,
		GasLimit: 2_000_000,
		GasPrice: big.NewInt(20_000_000_000),
		Params:   params,
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if envelope.Account != "operator" || envelope.Nonce != 3 {
		t.Fatalf("envelope carries wrong identity: %+v", envelope)
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(envelope.Raw); err != nil {
		t.Fatalf("decode signed envelope failed: %v", err)
	}
	if tx.Nonce() != 3 {
		t.Fatalf("expected nonce 3, got %d", tx.Nonce())
	}
	if tx.To() == nil || *tx.To() != common.HexToAddress(testContractAddr) {
		t.Fatalf("expected transaction addressed at contract, got %v", tx.To())
	}
	if want := ballotABI.Methods["createPoll"].ID; !bytes.Equal(tx.Data()[:4], want) {
		t.Fatalf("expected createPoll selector %x, got %x", want, tx.Data()[:4])
	}
}

func TestSignerEncodesVoteCall(t *testing.T) {
	signer := newTestSigner(t)
	params, err := json.Marshal(ports.VoteCallParams{OnChainPollID: 7, Option: "yes"})
	if err != nil {
		t.Fatalf("marshal params failed: %v", err)
	}

	envelope, err := signer.Sign(context.Background(), ports.SignRequest{
		Kind:     entities.KindCastVote,
		Account:  "operator",
		Nonce:    0,
		GasLimit: 2_000_000,
		GasPrice: big.NewInt(20_000_000_000),
		Params:   params,
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(envelope.Raw); err != nil {
		t.Fatalf("decode signed envelope failed: %v", err)
	}
	if want := ballotABI.Methods["vote"].ID; !bytes.Equal(tx.Data()[:4], want) {
		t.Fatalf("expected vote selector %x, got %x", want, tx.Data()[:4])
	}
}

func TestSignerUnknownAccount(t *testing.T) {
	signer := newTestSigner(t)
	_, err := signer.Sign(context.Background(), ports.SignRequest{
		Kind:    entities.KindCreatePoll,
		Account: "ghost",
	})
	if !errors.Is(err, domainerrors.ErrSigningUnavailable) {
		t.Fatalf("expected ErrSigningUnavailable, got %v", err)
	}
}

func TestSignerAddresses(t *testing.T) {
	signer := newTestSigner(t)
	addresses := signer.Addresses()
	if got := addresses["operator"]; got != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Fatalf("unexpected derived address %q", got)
	}
}

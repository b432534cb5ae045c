package evmadapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"testing"

	domainerrors "chainballot/contexts/governance/voting-ledger/domain/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"nonce too low", errors.New("nonce too low"), domainerrors.ErrLedgerRejected},
		{"insufficient funds", errors.New("insufficient funds for gas * price + value"), domainerrors.ErrLedgerRejected},
		{"execution reverted", errors.New("execution reverted: option unknown"), domainerrors.ErrLedgerRejected},
		{"underpriced", errors.New("replacement transaction underpriced"), domainerrors.ErrLedgerRejected},
		{"deadline", context.DeadlineExceeded, domainerrors.ErrNetworkUnavailable},
		{"canceled", context.Canceled, domainerrors.ErrNetworkUnavailable},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, domainerrors.ErrNetworkUnavailable},
		{"unknown rpc fault", errors.New("rpc: backend overloaded"), domainerrors.ErrNetworkUnavailable},
	}
	for _, tc := range cases {
		if got := classify(tc.err); !errors.Is(got, tc.want) {
			t.Fatalf("%s: classified as %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestClassifyKeepsDomainErrors(t *testing.T) {
	wrapped := fmt.Errorf("%w: node said no", domainerrors.ErrLedgerRejected)
	if got := classify(wrapped); got != wrapped {
		t.Fatalf("expected domain error passed through, got %v", got)
	}
}

func TestUnpackPollResults(t *testing.T) {
	packed, err := ballotABI.Methods["getPollResults"].Outputs.Pack([]*big.Int{
		big.NewInt(4), big.NewInt(0), big.NewInt(9),
	})
	if err != nil {
		t.Fatalf("pack output failed: %v", err)
	}

	counts, err := unpackPollResults(packed)
	if err != nil {
		t.Fatalf("unpack failed: %v", err)
	}
	if len(counts) != 3 || counts[0] != 4 || counts[1] != 0 || counts[2] != 9 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestPollIDFromLogs(t *testing.T) {
	contract := common.HexToAddress(testContractAddr)
	client := &Client{contract: contract}

	data, err := ballotABI.Events["PollCreated"].Inputs.Pack(big.NewInt(42))
	if err != nil {
		t.Fatalf("pack event data failed: %v", err)
	}
	logs := []*types.Log{
		{Address: common.HexToAddress("0x000000000000000000000000000000000000dEaD"), Topics: []common.Hash{pollCreatedSig}, Data: data},
		{Address: contract, Topics: []common.Hash{pollCreatedSig}, Data: data},
	}

	id := client.pollIDFromLogs(logs)
	if id == nil || *id != 42 {
		t.Fatalf("expected poll id 42 from contract log, got %v", id)
	}
	if got := client.pollIDFromLogs(logs[:1]); got != nil {
		t.Fatalf("foreign contract log must be ignored, got %v", got)
	}
}

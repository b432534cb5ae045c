package evmadapter

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"chainballot/contexts/governance/voting-ledger/domain/entities"
	"chainballot/contexts/governance/voting-ledger/ports"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// ABI of the ballot contract's surface used by this service.
const ballotABIJSON = `[
	{"type":"function","name":"createPoll","stateMutability":"nonpayable","inputs":[{"name":"title","type":"string"},{"name":"options","type":"string[]"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"pollId","type":"uint256"}]},
	{"type":"function","name":"vote","stateMutability":"nonpayable","inputs":[{"name":"pollId","type":"uint256"},{"name":"option","type":"string"}],"outputs":[]},
	{"type":"function","name":"getPollResults","stateMutability":"view","inputs":[{"name":"pollId","type":"uint256"}],"outputs":[{"name":"counts","type":"uint256[]"}]},
	{"type":"event","name":"PollCreated","anonymous":false,"inputs":[{"name":"pollId","type":"uint256","indexed":false}]}
]`

var (
	ballotABI      = mustParseABI(ballotABIJSON)
	pollCreatedSig = crypto.Keccak256Hash([]byte("PollCreated(uint256)"))
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// packCallData encodes the sign request's payload into contract call data.
func packCallData(req ports.SignRequest) ([]byte, error) {
	switch req.Kind {
	case entities.KindCreatePoll:
		var params entities.CreatePollParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, fmt.Errorf("decode create_poll params: %w", err)
		}
		return ballotABI.Pack("createPoll", params.Title, params.Options, big.NewInt(params.DeadlineUnix))
	case entities.KindCastVote:
		var params ports.VoteCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, fmt.Errorf("decode cast_vote params: %w", err)
		}
		return ballotABI.Pack("vote", new(big.Int).SetUint64(params.OnChainPollID), params.Option)
	default:
		return nil, fmt.Errorf("unknown transaction kind %q", req.Kind)
	}
}

func unpackPollResults(data []byte) ([]uint64, error) {
	values, err := ballotABI.Unpack("getPollResults", data)
	if err != nil {
		return nil, fmt.Errorf("decode getPollResults output: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected getPollResults arity %d", len(values))
	}
	raw, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getPollResults output type %T", values[0])
	}
	counts := make([]uint64, len(raw))
	for i, value := range raw {
		counts[i] = value.Uint64()
	}
	return counts, nil
}

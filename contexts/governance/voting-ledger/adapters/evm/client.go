package evmadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"strings"
	"time"

	domainerrors "chainballot/contexts/governance/voting-ledger/domain/errors"
	"chainballot/contexts/governance/voting-ledger/ports"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/semaphore"
)

const (
	defaultCallTimeout = 10 * time.Second
	defaultMaxInFlight = 16
)

// Client implements the ledger port against an EVM JSON-RPC node. Every call
// runs under a bounded in-flight semaphore and a per-call timeout so one slow
// node cannot pile up goroutines in the workers.
type Client struct {
	eth       *ethclient.Client
	contract  common.Address
	addresses map[string]common.Address
	timeout   time.Duration
	sem       *semaphore.Weighted
	logger    *slog.Logger
}

// NewClient dials the node and verifies it answers on the expected chain.
// accounts maps signing account handles to their hex addresses.
func NewClient(ctx context.Context, rpcURL string, chainID int64, contractAddr string, accounts map[string]string, maxInFlight int64, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddr)
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger node: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	nodeChainID, err := eth.ChainID(dialCtx)
	if err != nil {
		return nil, fmt.Errorf("query ledger chain id: %w", err)
	}
	if nodeChainID.Int64() != chainID {
		return nil, fmt.Errorf("ledger node is on chain %s, expected %d", nodeChainID, chainID)
	}

	addresses := make(map[string]common.Address, len(accounts))
	for handle, addr := range accounts {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid address %q for account %q", addr, handle)
		}
		addresses[handle] = common.HexToAddress(addr)
	}

	return &Client{
		eth:       eth,
		contract:  common.HexToAddress(contractAddr),
		addresses: addresses,
		timeout:   timeout,
		sem:       semaphore.NewWeighted(maxInFlight),
		logger:    logger,
	}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) withSlot(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %v", domainerrors.ErrNetworkUnavailable, err)
	}
	defer c.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return fn(callCtx)
}

func (c *Client) Submit(ctx context.Context, envelope ports.SignedEnvelope) (string, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(envelope.Raw); err != nil {
		return "", fmt.Errorf("%w: decode signed envelope: %v", domainerrors.ErrLedgerRejected, err)
	}

	err := c.withSlot(ctx, func(ctx context.Context) error {
		return c.eth.SendTransaction(ctx, tx)
	})
	if err != nil {
		return "", classify(err)
	}
	return tx.Hash().Hex(), nil
}

func (c *Client) Receipt(ctx context.Context, handle string) (ports.Receipt, error) {
	var receipt *types.Receipt
	err := c.withSlot(ctx, func(ctx context.Context) error {
		var callErr error
		receipt, callErr = c.eth.TransactionReceipt(ctx, common.HexToHash(handle))
		return callErr
	})
	if errors.Is(err, ethereum.NotFound) {
		return ports.Receipt{State: ports.ReceiptNotFound}, nil
	}
	if err != nil {
		return ports.Receipt{}, classify(err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return ports.Receipt{State: ports.ReceiptFailed, FailReason: "execution reverted"}, nil
	}
	return ports.Receipt{
		State:         ports.ReceiptConfirmed,
		OnChainPollID: c.pollIDFromLogs(receipt.Logs),
	}, nil
}

// pollIDFromLogs extracts the created poll id from a PollCreated event emitted
// by the ballot contract; vote receipts carry no such log.
func (c *Client) pollIDFromLogs(logs []*types.Log) *uint64 {
	for _, entry := range logs {
		if entry.Address != c.contract || len(entry.Topics) == 0 || entry.Topics[0] != pollCreatedSig {
			continue
		}
		values, err := ballotABI.Unpack("PollCreated", entry.Data)
		if err != nil || len(values) != 1 {
			continue
		}
		raw, ok := values[0].(*big.Int)
		if !ok {
			continue
		}
		id := raw.Uint64()
		return &id
	}
	return nil
}

func (c *Client) PollResults(ctx context.Context, onChainPollID uint64) ([]uint64, error) {
	data, err := ballotABI.Pack("getPollResults", new(big.Int).SetUint64(onChainPollID))
	if err != nil {
		return nil, fmt.Errorf("pack getPollResults: %w", err)
	}

	var output []byte
	err = c.withSlot(ctx, func(ctx context.Context) error {
		var callErr error
		output, callErr = c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
		return callErr
	})
	if err != nil {
		return nil, classify(err)
	}
	return unpackPollResults(output)
}

func (c *Client) PendingNonce(ctx context.Context, account string) (uint64, error) {
	addr, ok := c.addresses[account]
	if !ok {
		return 0, fmt.Errorf("%w: unknown account %q", domainerrors.ErrSigningUnavailable, account)
	}

	var nonce uint64
	err := c.withSlot(ctx, func(ctx context.Context) error {
		var callErr error
		nonce, callErr = c.eth.PendingNonceAt(ctx, addr)
		return callErr
	})
	if err != nil {
		return 0, classify(err)
	}
	return nonce, nil
}

func (c *Client) SuggestFee(ctx context.Context) (*big.Int, error) {
	var fee *big.Int
	err := c.withSlot(ctx, func(ctx context.Context) error {
		var callErr error
		fee, callErr = c.eth.SuggestGasPrice(ctx)
		return callErr
	})
	if err != nil {
		return nil, classify(err)
	}
	return fee, nil
}

// rejectionMarkers are node error fragments that mean the envelope itself was
// refused; resubmitting the same build would be refused again.
var rejectionMarkers = []string{
	"nonce too low",
	"insufficient funds",
	"intrinsic gas too low",
	"underpriced",
	"already known",
	"invalid sender",
	"execution reverted",
	"exceeds block gas limit",
}

// classify maps a raw node error onto the domain's transient/permanent split.
// Anything not recognizably a rejection is treated as transient so the
// tracker keeps watching instead of burning the record.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domainerrors.ErrNetworkUnavailable) || errors.Is(err, domainerrors.ErrLedgerRejected) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", domainerrors.ErrNetworkUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", domainerrors.ErrNetworkUnavailable, err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range rejectionMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", domainerrors.ErrLedgerRejected, err)
		}
	}
	return fmt.Errorf("%w: %v", domainerrors.ErrNetworkUnavailable, err)
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	application "chainballot/contexts/governance/voting-ledger/application"
	"chainballot/contexts/governance/voting-ledger/domain/entities"
	domainerrors "chainballot/contexts/governance/voting-ledger/domain/errors"
	"chainballot/contexts/governance/voting-ledger/ports"
)

// NonceManager serializes nonce allocation per signing account. The account
// lock is held from Reserve until the caller releases, so two concurrent
// builds for the same account observe each other's reserved nonce. The next
// nonce only advances when the caller commits (broadcast succeeded), which
// keeps the sequence gap-free when a build or broadcast is abandoned.
type NonceManager struct {
	Ledger ports.LedgerClient

	mu       sync.Mutex
	accounts map[string]*accountNonce
}

type accountNonce struct {
	mu     sync.Mutex
	next   uint64
	primed bool
}

func NewNonceManager(ledger ports.LedgerClient) *NonceManager {
	return &NonceManager{
		Ledger:   ledger,
		accounts: make(map[string]*accountNonce),
	}
}

// Reserve returns the next nonce for the account and a release function. The
// caller must invoke release exactly once: release(true) commits the nonce
// after a successful broadcast, release(false) returns it to the pool.
func (m *NonceManager) Reserve(ctx context.Context, account string) (uint64, func(committed bool), error) {
	m.mu.Lock()
	state, ok := m.accounts[account]
	if !ok {
		state = &accountNonce{}
		m.accounts[account] = state
	}
	m.mu.Unlock()

	state.mu.Lock()
	if !state.primed {
		pending, err := m.Ledger.PendingNonce(ctx, account)
		if err != nil {
			state.mu.Unlock()
			return 0, nil, err
		}
		state.next = pending
		state.primed = true
	}

	nonce := state.next
	release := func(committed bool) {
		if committed {
			state.next = nonce + 1
		}
		state.mu.Unlock()
	}
	return nonce, release, nil
}

// TransactionSubmitter builds, signs, and broadcasts the payload of a
// transaction record as one unit under the account nonce lock. Every attempt
// is a fresh build with a fresh nonce; a rejected envelope is never
// rebroadcast.
type TransactionSubmitter struct {
	Polls        ports.PollRepository
	Votes        ports.VoteRepository
	Transactions ports.TransactionRepository
	Ledger       ports.LedgerClient
	Signer       ports.Signer
	Nonces       *NonceManager
	Clock        ports.Clock
	GasLimit     uint64
	Logger       *slog.Logger
}

const defaultGasLimit = 2_000_000

// Submit broadcasts the record's payload. On success it persists the updated
// record (envelope, nonce, handle) and advances the owning entity to
// Submitted. It returns domainerrors.ErrPollNotOnChain without consuming a
// nonce when a vote's poll has not confirmed yet, and
// domainerrors.ErrLedgerRejected when that poll has terminally failed.
func (s TransactionSubmitter) Submit(ctx context.Context, record entities.TransactionRecord) (entities.TransactionRecord, error) {
	logger := application.ResolveLogger(s.Logger)

	params, err := s.resolveCallParams(ctx, record)
	if err != nil {
		return record, err
	}

	nonce, release, err := s.Nonces.Reserve(ctx, record.Account)
	if err != nil {
		return record, err
	}
	committed := false
	defer func() { release(committed) }()

	gasPrice, err := s.Ledger.SuggestFee(ctx)
	if err != nil {
		return record, err
	}

	gasLimit := s.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	envelope, err := s.Signer.Sign(ctx, ports.SignRequest{
		Kind:     record.Kind,
		Account:  record.Account,
		Nonce:    nonce,
		GasLimit: gasLimit,
		GasPrice: gasPrice,
		Params:   params,
	})
	if err != nil {
		return record, err
	}

	handle, err := s.Ledger.Submit(ctx, envelope)
	if err != nil {
		return record, err
	}
	committed = true

	now := s.now()
	record.Nonce = nonce
	record.Envelope = envelope.Raw
	record.Handle = handle
	record.SubmittedAt = now
	record.LastCheckedAt = now
	record.UpdatedAt = now
	if err := s.Transactions.SaveTransaction(ctx, record); err != nil {
		return record, err
	}
	if err := s.markEntitySubmitted(ctx, record, now); err != nil {
		return record, err
	}

	logger.Info("ledger transaction broadcast",
		"event", "ledger_transaction_broadcast",
		"module", "governance/voting-ledger",
		"layer", "application",
		"tx_id", record.TxID,
		"kind", string(record.Kind),
		"handle", handle,
		"nonce", nonce,
	)
	return record, nil
}

// resolveCallParams maps the stored payload to the wire call shape. Vote
// payloads need the poll's on-chain identifier, which only exists once the
// poll creation has confirmed.
func (s TransactionSubmitter) resolveCallParams(ctx context.Context, record entities.TransactionRecord) (json.RawMessage, error) {
	switch record.Kind {
	case entities.KindCreatePoll:
		return record.Params, nil
	case entities.KindCastVote:
		var stored entities.CastVoteParams
		if err := json.Unmarshal(record.Params, &stored); err != nil {
			return nil, err
		}
		poll, err := s.Polls.GetPoll(ctx, stored.PollID)
		if err != nil {
			return nil, err
		}
		if poll.Status == entities.StatusFailed {
			// The poll will never reach the ledger, so neither can its votes.
			return nil, fmt.Errorf("poll %s failed before reaching the ledger: %w", poll.PollID, domainerrors.ErrLedgerRejected)
		}
		if poll.OnChainPollID == nil {
			return nil, domainerrors.ErrPollNotOnChain
		}
		resolved, err := json.Marshal(ports.VoteCallParams{
			OnChainPollID: *poll.OnChainPollID,
			Option:        stored.Option,
		})
		if err != nil {
			return nil, err
		}
		return resolved, nil
	default:
		return nil, domainerrors.ErrInvalidVoteInput
	}
}

func (s TransactionSubmitter) markEntitySubmitted(ctx context.Context, record entities.TransactionRecord, now time.Time) error {
	switch record.Kind {
	case entities.KindCreatePoll:
		poll, err := s.Polls.GetPoll(ctx, record.EntityID)
		if err != nil {
			return err
		}
		if !poll.Status.CanTransitionTo(entities.StatusSubmitted) {
			return nil
		}
		poll.Status = entities.StatusSubmitted
		poll.UpdatedAt = now
		return s.Polls.SavePoll(ctx, poll)
	case entities.KindCastVote:
		vote, err := s.Votes.GetVote(ctx, record.EntityID)
		if err != nil {
			return err
		}
		if !vote.Status.CanTransitionTo(entities.StatusSubmitted) {
			return nil
		}
		vote.Status = entities.StatusSubmitted
		vote.UpdatedAt = now
		return s.Votes.SaveVote(ctx, vote)
	default:
		return nil
	}
}

func (s TransactionSubmitter) now() time.Time {
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}
	return now
}

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "chainballot/contexts/governance/voting-ledger/application"
	"chainballot/contexts/governance/voting-ledger/domain/entities"
	domainerrors "chainballot/contexts/governance/voting-ledger/domain/errors"
	"chainballot/contexts/governance/voting-ledger/ports"
)

// CastVoteCommand is the write-model input for casting a vote.
type CastVoteCommand struct {
	PollID  string
	VoterID string
	Option  string
}

// CastVoteResult returns the provisional vote and its tracking id.
type CastVoteResult struct {
	Vote entities.Vote
	TxID string
}

// CastVoteUseCase validates the vote against the poll (option membership,
// deadline, duplicate voter) before any nonce is reserved, inserts the vote
// as provisional with its transaction record, and attempts the first
// broadcast. Votes on polls that have not confirmed on chain yet stay pending
// until the tracker can resolve the on-chain poll id.
type CastVoteUseCase struct {
	Polls        ports.PollRepository
	Votes        ports.VoteRepository
	Transactions ports.TransactionRepository
	Outbox       ports.OutboxWriter
	Submitter    TransactionSubmitter
	Clock        ports.Clock
	IDGen        ports.IDGenerator
	Account      string
	Logger       *slog.Logger
}

func (uc CastVoteUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (CastVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	pollID := strings.TrimSpace(cmd.PollID)
	voterID := strings.TrimSpace(cmd.VoterID)
	option := strings.TrimSpace(cmd.Option)
	logger.Info("vote cast processing started",
		"event", "ledger_vote_cast_started",
		"module", "governance/voting-ledger",
		"layer", "application",
		"poll_id", pollID,
		"voter_id", voterID,
	)
	if pollID == "" || voterID == "" || option == "" {
		logger.Warn("vote cast validation failed",
			"event", "ledger_vote_cast_validation_failed",
			"module", "governance/voting-ledger",
			"layer", "application",
			"poll_id", pollID,
			"voter_id", voterID,
		)
		return CastVoteResult{}, domainerrors.ErrInvalidVoteInput
	}

	poll, err := uc.Polls.GetPoll(ctx, pollID)
	if err != nil {
		return CastVoteResult{}, err
	}
	if poll.Status == entities.StatusFailed {
		logger.Warn("vote cast against failed poll",
			"event", "ledger_vote_cast_poll_failed",
			"module", "governance/voting-ledger",
			"layer", "application",
			"poll_id", pollID,
			"voter_id", voterID,
		)
		return CastVoteResult{}, domainerrors.ErrPollNotFound
	}

	now := uc.now()
	if !poll.VotingOpen(now) {
		return CastVoteResult{}, domainerrors.ErrDeadlinePassed
	}
	if !poll.HasOption(option) {
		return CastVoteResult{}, domainerrors.ErrOptionInvalid
	}
	if _, exists, err := uc.Votes.GetVoteByVoter(ctx, pollID, voterID); err != nil {
		return CastVoteResult{}, err
	} else if exists {
		return CastVoteResult{}, domainerrors.ErrAlreadyVoted
	}

	voteID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CastVoteResult{}, err
	}
	txID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CastVoteResult{}, err
	}
	vote := entities.Vote{
		VoteID:    voteID,
		PollID:    pollID,
		VoterID:   voterID,
		Option:    option,
		Status:    entities.StatusProvisional,
		CastAt:    now,
		UpdatedAt: now,
	}
	if err := uc.Votes.SaveVote(ctx, vote); err != nil {
		return CastVoteResult{}, err
	}

	params, err := json.Marshal(entities.CastVoteParams{
		PollID: pollID,
		Option: option,
	})
	if err != nil {
		return CastVoteResult{}, err
	}
	record := entities.TransactionRecord{
		TxID:          txID,
		Kind:          entities.KindCastVote,
		EntityID:      voteID,
		Account:       uc.Account,
		Params:        params,
		Status:        entities.TxPending,
		LastCheckedAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := uc.Transactions.SaveTransaction(ctx, record); err != nil {
		return CastVoteResult{}, err
	}

	submitted, err := uc.Submitter.Submit(ctx, record)
	if err != nil {
		return uc.handleSubmitFailure(ctx, logger, vote, record, err)
	}

	vote, err = uc.Votes.GetVote(ctx, voteID)
	if err != nil {
		return CastVoteResult{}, err
	}
	logger.Info("vote cast",
		"event", "ledger_vote_cast",
		"module", "governance/voting-ledger",
		"layer", "application",
		"vote_id", vote.VoteID,
		"poll_id", pollID,
		"tx_id", submitted.TxID,
		"handle", submitted.Handle,
	)
	return CastVoteResult{Vote: vote, TxID: submitted.TxID}, nil
}

func (uc CastVoteUseCase) handleSubmitFailure(
	ctx context.Context,
	logger *slog.Logger,
	vote entities.Vote,
	record entities.TransactionRecord,
	submitErr error,
) (CastVoteResult, error) {
	now := uc.now()
	switch {
	case errors.Is(submitErr, domainerrors.ErrPollNotOnChain):
		// The vote waits for its poll to confirm; the tracker submits it then.
		logger.Info("vote cast deferred until poll confirmation",
			"event", "ledger_vote_cast_deferred",
			"module", "governance/voting-ledger",
			"layer", "application",
			"vote_id", vote.VoteID,
			"poll_id", vote.PollID,
			"tx_id", record.TxID,
		)
		return CastVoteResult{Vote: vote, TxID: record.TxID}, nil
	case errors.Is(submitErr, domainerrors.ErrSigningUnavailable):
		record.Status = entities.TxFailed
		record.UpdatedAt = now
		if err := uc.Transactions.SaveTransaction(ctx, record); err != nil {
			return CastVoteResult{}, err
		}
		vote.Status = entities.StatusFailed
		vote.UpdatedAt = now
		if err := uc.Votes.SaveVote(ctx, vote); err != nil {
			return CastVoteResult{}, err
		}
		logger.Error("vote cast signing unavailable",
			"event", "ledger_vote_cast_signing_unavailable",
			"module", "governance/voting-ledger",
			"layer", "application",
			"vote_id", vote.VoteID,
			"tx_id", record.TxID,
			"error", submitErr.Error(),
		)
		return CastVoteResult{}, submitErr
	case errors.Is(submitErr, domainerrors.ErrLedgerRejected):
		record.Status = entities.TxFailed
		record.UpdatedAt = now
		if err := uc.Transactions.SaveTransaction(ctx, record); err != nil {
			return CastVoteResult{}, err
		}
		if err := appendFailureEvent(ctx, uc.Outbox, uc.IDGen, record, now, submitErr.Error()); err != nil {
			return CastVoteResult{}, err
		}
		logger.Warn("vote cast rejected by ledger",
			"event", "ledger_vote_cast_rejected",
			"module", "governance/voting-ledger",
			"layer", "application",
			"vote_id", vote.VoteID,
			"tx_id", record.TxID,
			"error", submitErr.Error(),
		)
		return CastVoteResult{Vote: vote, TxID: record.TxID}, nil
	default:
		record.RetryCount++
		record.LastCheckedAt = now
		record.UpdatedAt = now
		if err := uc.Transactions.SaveTransaction(ctx, record); err != nil {
			return CastVoteResult{}, err
		}
		logger.Warn("vote cast broadcast deferred to tracker",
			"event", "ledger_vote_cast_broadcast_deferred",
			"module", "governance/voting-ledger",
			"layer", "application",
			"vote_id", vote.VoteID,
			"tx_id", record.TxID,
			"retry_count", record.RetryCount,
			"error", submitErr.Error(),
		)
		return CastVoteResult{Vote: vote, TxID: record.TxID}, nil
	}
}

func (uc CastVoteUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

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

// CreatePollCommand is the write-model input for poll creation.
type CreatePollCommand struct {
	Title     string
	Options   []string
	Deadline  time.Time
	CreatorID string
}

// CreatePollResult returns the provisional poll and the transaction
// correlation id the caller can use to track ledger confirmation.
type CreatePollResult struct {
	Poll entities.Poll
	TxID string
}

// CreatePollUseCase inserts the poll as provisional, records the single
// transaction record for the submission, and attempts the first broadcast.
// Validation and signing faults surface synchronously; broadcast faults are
// left to the submission tracker.
type CreatePollUseCase struct {
	Polls        ports.PollRepository
	Transactions ports.TransactionRepository
	Outbox       ports.OutboxWriter
	Submitter    TransactionSubmitter
	Clock        ports.Clock
	IDGen        ports.IDGenerator
	Account      string
	Logger       *slog.Logger
}

func (uc CreatePollUseCase) CreatePoll(ctx context.Context, cmd CreatePollCommand) (CreatePollResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("poll create processing started",
		"event", "ledger_poll_create_started",
		"module", "governance/voting-ledger",
		"layer", "application",
		"creator_id", strings.TrimSpace(cmd.CreatorID),
		"title", strings.TrimSpace(cmd.Title),
	)

	now := uc.now()
	options := make([]string, 0, len(cmd.Options))
	for _, option := range cmd.Options {
		options = append(options, strings.TrimSpace(option))
	}
	poll := entities.Poll{
		Title:     strings.TrimSpace(cmd.Title),
		Options:   options,
		CreatorID: strings.TrimSpace(cmd.CreatorID),
		Status:    entities.StatusProvisional,
		CreatedAt: now,
		Deadline:  cmd.Deadline.UTC(),
		UpdatedAt: now,
	}
	if poll.CreatorID == "" || !poll.ValidateNew(now) {
		logger.Warn("poll create validation failed",
			"event", "ledger_poll_create_validation_failed",
			"module", "governance/voting-ledger",
			"layer", "application",
			"creator_id", poll.CreatorID,
		)
		return CreatePollResult{}, domainerrors.ErrInvalidPollInput
	}

	pollID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CreatePollResult{}, err
	}
	txID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CreatePollResult{}, err
	}
	poll.PollID = pollID
	if err := uc.Polls.SavePoll(ctx, poll); err != nil {
		return CreatePollResult{}, err
	}

	params, err := json.Marshal(entities.CreatePollParams{
		Title:        poll.Title,
		Options:      poll.Options,
		DeadlineUnix: poll.Deadline.Unix(),
	})
	if err != nil {
		return CreatePollResult{}, err
	}
	record := entities.TransactionRecord{
		TxID:          txID,
		Kind:          entities.KindCreatePoll,
		EntityID:      poll.PollID,
		Account:       uc.Account,
		Params:        params,
		Status:        entities.TxPending,
		LastCheckedAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := uc.Transactions.SaveTransaction(ctx, record); err != nil {
		return CreatePollResult{}, err
	}

	submitted, err := uc.Submitter.Submit(ctx, record)
	if err != nil {
		return uc.handleSubmitFailure(ctx, logger, poll, record, err)
	}

	poll, err = uc.Polls.GetPoll(ctx, poll.PollID)
	if err != nil {
		return CreatePollResult{}, err
	}
	logger.Info("poll created",
		"event", "ledger_poll_created",
		"module", "governance/voting-ledger",
		"layer", "application",
		"poll_id", poll.PollID,
		"tx_id", submitted.TxID,
		"handle", submitted.Handle,
	)
	return CreatePollResult{Poll: poll, TxID: submitted.TxID}, nil
}

// handleSubmitFailure keeps the provisional acknowledgment contract: only
// signing faults surface to the caller; a rejected broadcast is recorded as
// failed and reported through the reconciliation event stream; transient
// faults leave the record pending for the tracker.
func (uc CreatePollUseCase) handleSubmitFailure(
	ctx context.Context,
	logger *slog.Logger,
	poll entities.Poll,
	record entities.TransactionRecord,
	submitErr error,
) (CreatePollResult, error) {
	now := uc.now()
	switch {
	case errors.Is(submitErr, domainerrors.ErrSigningUnavailable):
		record.Status = entities.TxFailed
		record.UpdatedAt = now
		if err := uc.Transactions.SaveTransaction(ctx, record); err != nil {
			return CreatePollResult{}, err
		}
		poll.Status = entities.StatusFailed
		poll.UpdatedAt = now
		if err := uc.Polls.SavePoll(ctx, poll); err != nil {
			return CreatePollResult{}, err
		}
		logger.Error("poll create signing unavailable",
			"event", "ledger_poll_create_signing_unavailable",
			"module", "governance/voting-ledger",
			"layer", "application",
			"poll_id", poll.PollID,
			"tx_id", record.TxID,
			"error", submitErr.Error(),
		)
		return CreatePollResult{}, submitErr
	case errors.Is(submitErr, domainerrors.ErrLedgerRejected):
		record.Status = entities.TxFailed
		record.UpdatedAt = now
		if err := uc.Transactions.SaveTransaction(ctx, record); err != nil {
			return CreatePollResult{}, err
		}
		if err := appendFailureEvent(ctx, uc.Outbox, uc.IDGen, record, now, submitErr.Error()); err != nil {
			return CreatePollResult{}, err
		}
		logger.Warn("poll create rejected by ledger",
			"event", "ledger_poll_create_rejected",
			"module", "governance/voting-ledger",
			"layer", "application",
			"poll_id", poll.PollID,
			"tx_id", record.TxID,
			"error", submitErr.Error(),
		)
		return CreatePollResult{Poll: poll, TxID: record.TxID}, nil
	default:
		record.RetryCount++
		record.LastCheckedAt = now
		record.UpdatedAt = now
		if err := uc.Transactions.SaveTransaction(ctx, record); err != nil {
			return CreatePollResult{}, err
		}
		logger.Warn("poll create broadcast deferred to tracker",
			"event", "ledger_poll_create_broadcast_deferred",
			"module", "governance/voting-ledger",
			"layer", "application",
			"poll_id", poll.PollID,
			"tx_id", record.TxID,
			"retry_count", record.RetryCount,
			"error", submitErr.Error(),
		)
		return CreatePollResult{Poll: poll, TxID: record.TxID}, nil
	}
}

func (uc CreatePollUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

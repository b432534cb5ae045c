package queries

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	application "chainballot/contexts/governance/voting-ledger/application"
	"chainballot/contexts/governance/voting-ledger/domain/entities"
	domainerrors "chainballot/contexts/governance/voting-ledger/domain/errors"
	"chainballot/contexts/governance/voting-ledger/ports"
)

// ResultsUseCase merges local tallies with ledger-confirmed tallies. The
// ledger is authoritative once the poll is confirmed; local counts are
// provisional before that and a stale fallback when the ledger read fails
// transiently.
type ResultsUseCase struct {
	Polls  ports.PollRepository
	Votes  ports.VoteRepository
	Ledger ports.LedgerClient
	Logger *slog.Logger
}

func (uc ResultsUseCase) Aggregate(ctx context.Context, pollID string) (entities.PollResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	poll, err := uc.Polls.GetPoll(ctx, strings.TrimSpace(pollID))
	if err != nil {
		return entities.PollResult{}, err
	}

	if poll.Status != entities.StatusConfirmed || poll.OnChainPollID == nil {
		counts, err := uc.localCounts(ctx, poll, provisionalStatuses)
		if err != nil {
			return entities.PollResult{}, err
		}
		return entities.PollResult{
			PollID: poll.PollID,
			Source: entities.SourceLocalProvisional,
			Counts: counts,
		}, nil
	}

	ledgerCounts, err := uc.Ledger.PollResults(ctx, *poll.OnChainPollID)
	if err != nil {
		if !errors.Is(err, domainerrors.ErrNetworkUnavailable) {
			return entities.PollResult{}, err
		}
		// Transient ledger fault: serve local confirmed counts, flagged stale.
		counts, localErr := uc.localCounts(ctx, poll, confirmedOnly)
		if localErr != nil {
			return entities.PollResult{}, localErr
		}
		logger.Warn("ledger read unavailable, serving merged stale tally",
			"event", "ledger_results_stale_fallback",
			"module", "governance/voting-ledger",
			"layer", "application",
			"poll_id", poll.PollID,
		)
		return entities.PollResult{
			PollID: poll.PollID,
			Source: entities.SourceMerged,
			Stale:  true,
			Counts: counts,
		}, nil
	}

	counts := make([]entities.OptionCount, 0, len(poll.Options))
	for i, option := range poll.Options {
		var count uint64
		if i < len(ledgerCounts) {
			count = ledgerCounts[i]
		}
		counts = append(counts, entities.OptionCount{Option: option, Count: count})
	}
	uc.logDivergence(ctx, logger, poll, counts)
	return entities.PollResult{
		PollID: poll.PollID,
		Source: entities.SourceLedgerConfirmed,
		Counts: counts,
	}, nil
}

func provisionalStatuses(status entities.ConfirmationStatus) bool {
	return status == entities.StatusProvisional ||
		status == entities.StatusSubmitted ||
		status == entities.StatusConfirmed
}

func confirmedOnly(status entities.ConfirmationStatus) bool {
	return status == entities.StatusConfirmed
}

func (uc ResultsUseCase) localCounts(
	ctx context.Context,
	poll entities.Poll,
	include func(entities.ConfirmationStatus) bool,
) ([]entities.OptionCount, error) {
	votes, err := uc.Votes.ListVotesByPoll(ctx, poll.PollID)
	if err != nil {
		return nil, err
	}
	byOption := make(map[string]uint64, len(poll.Options))
	for _, vote := range votes {
		if include(vote.Status) {
			byOption[vote.Option]++
		}
	}
	counts := make([]entities.OptionCount, 0, len(poll.Options))
	for _, option := range poll.Options {
		counts = append(counts, entities.OptionCount{Option: option, Count: byOption[option]})
	}
	return counts, nil
}

// logDivergence reports on-demand divergence between ledger and local
// confirmed counts. The served result already carries the ledger values;
// local rows stay untouched.
func (uc ResultsUseCase) logDivergence(
	ctx context.Context,
	logger *slog.Logger,
	poll entities.Poll,
	ledgerCounts []entities.OptionCount,
) {
	local, err := uc.localCounts(ctx, poll, confirmedOnly)
	if err != nil {
		return
	}
	for i, ledgerCount := range ledgerCounts {
		if i >= len(local) || local[i].Count == ledgerCount.Count {
			continue
		}
		logger.Warn("results divergence, ledger value wins",
			"event", "ledger_results_divergence",
			"module", "governance/voting-ledger",
			"layer", "application",
			"poll_id", poll.PollID,
			"option", ledgerCount.Option,
			"local_count", local[i].Count,
			"ledger_count", ledgerCount.Count,
		)
	}
}

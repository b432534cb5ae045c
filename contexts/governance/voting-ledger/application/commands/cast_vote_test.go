package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"chainballot/contexts/governance/voting-ledger/domain/entities"
	domainerrors "chainballot/contexts/governance/voting-ledger/domain/errors"
)

func (env testEnv) castVoteUseCase() CastVoteUseCase {
	return CastVoteUseCase{
		Polls:        env.store,
		Votes:        env.store,
		Transactions: env.store,
		Outbox:       env.store,
		Submitter:    env.submitter(),
		Clock:        env.store,
		IDGen:        env.store,
		Account:      "operator",
	}
}

func seedPoll(t *testing.T, env testEnv, status entities.ConfirmationStatus, onChainID *uint64) entities.Poll {
	t.Helper()
	poll := entities.Poll{
		PollID:        "poll-1",
		Title:         "Treasury allocation",
		Options:       []string{"yes", "no"},
		CreatorID:     "user_1",
		Status:        status,
		OnChainPollID: onChainID,
		CreatedAt:     env.now,
		Deadline:      env.now.Add(24 * time.Hour),
		UpdatedAt:     env.now,
	}
	if err := env.store.SavePoll(context.Background(), poll); err != nil {
		t.Fatalf("seed poll failed: %v", err)
	}
	return poll
}

func TestCastVoteBroadcastsOnConfirmedPoll(t *testing.T) {
	env := newTestEnv(t)
	onChainID := uint64(7)
	seedPoll(t, env, entities.StatusConfirmed, &onChainID)
	uc := env.castVoteUseCase()

	result, err := uc.CastVote(context.Background(), CastVoteCommand{
		PollID:  "poll-1",
		VoterID: "voter_1",
		Option:  "yes",
	})
	if err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}
	if result.Vote.Status != entities.StatusSubmitted {
		t.Fatalf("expected submitted vote, got %s", result.Vote.Status)
	}

	record, err := env.store.GetTransaction(context.Background(), result.TxID)
	if err != nil {
		t.Fatalf("load transaction failed: %v", err)
	}
	if record.Handle == "" {
		t.Fatalf("expected broadcast handle on record")
	}
}

func TestCastVoteInvalidOptionLeavesNoRecords(t *testing.T) {
	env := newTestEnv(t)
	onChainID := uint64(7)
	seedPoll(t, env, entities.StatusConfirmed, &onChainID)
	uc := env.castVoteUseCase()

	_, err := uc.CastVote(context.Background(), CastVoteCommand{
		PollID:  "poll-1",
		VoterID: "voter_1",
		Option:  "maybe",
	})
	if !errors.Is(err, domainerrors.ErrOptionInvalid) {
		t.Fatalf("expected ErrOptionInvalid, got %v", err)
	}

	votes, err := env.store.ListVotesByPoll(context.Background(), "poll-1")
	if err != nil {
		t.Fatalf("list votes failed: %v", err)
	}
	if len(votes) != 0 {
		t.Fatalf("expected no vote rows, got %d", len(votes))
	}
	pending, err := env.store.ListPendingTransactions(context.Background(), env.now.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("list pending transactions failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no transaction records, got %d", len(pending))
	}
}

func TestCastVoteAfterDeadlineRejected(t *testing.T) {
	env := newTestEnv(t)
	onChainID := uint64(7)
	seedPoll(t, env, entities.StatusConfirmed, &onChainID)
	env.store.SetNow(env.now.Add(48 * time.Hour))
	uc := env.castVoteUseCase()

	_, err := uc.CastVote(context.Background(), CastVoteCommand{
		PollID:  "poll-1",
		VoterID: "voter_1",
		Option:  "yes",
	})
	if !errors.Is(err, domainerrors.ErrDeadlinePassed) {
		t.Fatalf("expected ErrDeadlinePassed, got %v", err)
	}
}

func TestCastVoteDuplicateVoterRejected(t *testing.T) {
	env := newTestEnv(t)
	onChainID := uint64(7)
	seedPoll(t, env, entities.StatusConfirmed, &onChainID)
	uc := env.castVoteUseCase()

	if _, err := uc.CastVote(context.Background(), CastVoteCommand{
		PollID:  "poll-1",
		VoterID: "voter_1",
		Option:  "yes",
	}); err != nil {
		t.Fatalf("first vote failed: %v", err)
	}
	_, err := uc.CastVote(context.Background(), CastVoteCommand{
		PollID:  "poll-1",
		VoterID: "voter_1",
		Option:  "no",
	})
	if !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}
}

func TestCastVoteOnUnconfirmedPollDeferred(t *testing.T) {
	env := newTestEnv(t)
	seedPoll(t, env, entities.StatusSubmitted, nil)
	uc := env.castVoteUseCase()

	result, err := uc.CastVote(context.Background(), CastVoteCommand{
		PollID:  "poll-1",
		VoterID: "voter_1",
		Option:  "yes",
	})
	if err != nil {
		t.Fatalf("expected deferred vote to be acknowledged, got %v", err)
	}
	if result.Vote.Status != entities.StatusProvisional {
		t.Fatalf("expected provisional vote, got %s", result.Vote.Status)
	}

	record, err := env.store.GetTransaction(context.Background(), result.TxID)
	if err != nil {
		t.Fatalf("load transaction failed: %v", err)
	}
	if record.Status != entities.TxPending || record.Handle != "" {
		t.Fatalf("expected pending record without handle, got %+v", record)
	}
	if record.RetryCount != 0 {
		t.Fatalf("waiting on poll confirmation must not count as retry, got %d", record.RetryCount)
	}
	if got := len(env.ledger.Submissions()); got != 0 {
		t.Fatalf("expected no broadcasts before poll confirms, got %d", got)
	}
}

func TestCastVoteOnFailedPollNotFound(t *testing.T) {
	env := newTestEnv(t)
	seedPoll(t, env, entities.StatusFailed, nil)
	uc := env.castVoteUseCase()

	_, err := uc.CastVote(context.Background(), CastVoteCommand{
		PollID:  "poll-1",
		VoterID: "voter_1",
		Option:  "yes",
	})
	if !errors.Is(err, domainerrors.ErrPollNotFound) {
		t.Fatalf("expected ErrPollNotFound, got %v", err)
	}
}

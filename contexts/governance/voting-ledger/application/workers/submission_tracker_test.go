package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"chainballot/contexts/governance/voting-ledger/adapters/memory"
	"chainballot/contexts/governance/voting-ledger/application/commands"
	"chainballot/contexts/governance/voting-ledger/domain/entities"
	domainerrors "chainballot/contexts/governance/voting-ledger/domain/errors"
	"chainballot/contexts/governance/voting-ledger/ports"
)

type workerEnv struct {
	store  *memory.Store
	ledger *memory.Ledger
	signer *memory.Signer
	now    time.Time
}

func newWorkerEnv(t *testing.T) workerEnv {
	t.Helper()
	env := workerEnv{
		store:  memory.NewStore(),
		ledger: memory.NewLedger(),
		signer: memory.NewSigner(),
		now:    time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
	}
	env.store.SetNow(env.now)
	return env
}

func (env workerEnv) tracker() SubmissionTracker {
	return SubmissionTracker{
		Transactions: env.store,
		Ledger:       env.ledger,
		Submitter: commands.TransactionSubmitter{
			Polls:        env.store,
			Votes:        env.store,
			Transactions: env.store,
			Ledger:       env.ledger,
			Signer:       env.signer,
			Nonces:       commands.NewNonceManager(env.ledger),
			Clock:        env.store,
		},
		Outbox: env.store,
		Clock:  env.store,
		IDGen:  env.store,
	}
}

func (env workerEnv) seedPoll(t *testing.T, pollID string, status entities.ConfirmationStatus) {
	t.Helper()
	err := env.store.SavePoll(context.Background(), entities.Poll{
		PollID:    pollID,
		Title:     "Treasury allocation",
		Options:   []string{"yes", "no"},
		CreatorID: "user_1",
		Status:    status,
		CreatedAt: env.now,
		Deadline:  env.now.Add(24 * time.Hour),
		UpdatedAt: env.now,
	})
	if err != nil {
		t.Fatalf("seed poll failed: %v", err)
	}
}

func (env workerEnv) seedRecord(t *testing.T, record entities.TransactionRecord) entities.TransactionRecord {
	t.Helper()
	if record.Params == nil {
		params, err := json.Marshal(entities.CreatePollParams{
			Title:        "Treasury allocation",
			Options:      []string{"yes", "no"},
			DeadlineUnix: env.now.Add(24 * time.Hour).Unix(),
		})
		if err != nil {
			t.Fatalf("marshal params failed: %v", err)
		}
		record.Params = params
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = env.now
		record.UpdatedAt = env.now
	}
	if err := env.store.SaveTransaction(context.Background(), record); err != nil {
		t.Fatalf("seed transaction failed: %v", err)
	}
	return record
}

func (env workerEnv) pendingEvents(t *testing.T) []ports.EventEnvelope {
	t.Helper()
	rows, err := env.store.ListPendingOutbox(context.Background(), 20)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	events := make([]ports.EventEnvelope, 0, len(rows))
	for _, row := range rows {
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			t.Fatalf("decode outbox payload failed: %v", err)
		}
		events = append(events, event)
	}
	return events
}

func TestTrackerResubmitsTransientFailureThenConfirms(t *testing.T) {
	env := newWorkerEnv(t)
	env.seedPoll(t, "poll-1", entities.StatusProvisional)
	env.seedRecord(t, entities.TransactionRecord{
		TxID:          "tx-1",
		Kind:          entities.KindCreatePoll,
		EntityID:      "poll-1",
		Account:       "operator",
		Status:        entities.TxPending,
		RetryCount:    1,
		LastCheckedAt: env.now,
	})
	tracker := env.tracker()

	env.store.SetNow(env.now.Add(10 * time.Second))
	if err := tracker.RunOnce(context.Background()); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	record, err := env.store.GetTransaction(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("load transaction failed: %v", err)
	}
	if record.Handle == "" {
		t.Fatalf("expected rebroadcast handle")
	}
	if record.RetryCount != 1 {
		t.Fatalf("successful resubmission must not change retry count, got %d", record.RetryCount)
	}

	env.store.SetNow(env.now.Add(20 * time.Second))
	if err := tracker.RunOnce(context.Background()); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	record, err = env.store.GetTransaction(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("load transaction failed: %v", err)
	}
	if record.Status != entities.TxConfirmed {
		t.Fatalf("expected confirmed record, got %s", record.Status)
	}
	if record.RetryCount != 1 {
		t.Fatalf("confirmation must preserve retry count, got %d", record.RetryCount)
	}

	events := env.pendingEvents(t)
	if len(events) != 1 || events[0].EventType != "ledger.transaction.confirmed" {
		t.Fatalf("expected one confirmation event, got %+v", events)
	}
}

func TestTrackerFailsRecordAfterRetriesExhausted(t *testing.T) {
	env := newWorkerEnv(t)
	env.seedPoll(t, "poll-1", entities.StatusProvisional)
	env.seedRecord(t, entities.TransactionRecord{
		TxID:          "tx-1",
		Kind:          entities.KindCreatePoll,
		EntityID:      "poll-1",
		Account:       "operator",
		Status:        entities.TxPending,
		LastCheckedAt: env.now,
	})
	transient := fmt.Errorf("%w: dial tcp: connection refused", domainerrors.ErrNetworkUnavailable)
	env.ledger.FailNextSubmit(transient, transient, transient)
	tracker := env.tracker()

	for cycle := 1; cycle <= 3; cycle++ {
		env.store.SetNow(env.now.Add(time.Duration(cycle) * 10 * time.Second))
		if err := tracker.RunOnce(context.Background()); err != nil {
			t.Fatalf("cycle %d failed: %v", cycle, err)
		}
	}

	record, err := env.store.GetTransaction(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("load transaction failed: %v", err)
	}
	if record.Status != entities.TxFailed {
		t.Fatalf("expected failed record, got %s", record.Status)
	}
	if record.RetryCount != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d", record.RetryCount)
	}

	events := env.pendingEvents(t)
	if len(events) != 1 || events[0].EventType != "ledger.transaction.failed" {
		t.Fatalf("expected one failure event, got %+v", events)
	}
}

func TestTrackerFailsVoteRecordWhenPollFailed(t *testing.T) {
	env := newWorkerEnv(t)
	env.seedPoll(t, "poll-1", entities.StatusFailed)
	params, err := json.Marshal(entities.CastVoteParams{PollID: "poll-1", Option: "yes"})
	if err != nil {
		t.Fatalf("marshal params failed: %v", err)
	}
	env.seedRecord(t, entities.TransactionRecord{
		TxID:          "tx-2",
		Kind:          entities.KindCastVote,
		EntityID:      "vote-1",
		Account:       "operator",
		Status:        entities.TxPending,
		Params:        params,
		LastCheckedAt: env.now,
	})
	tracker := env.tracker()

	env.store.SetNow(env.now.Add(10 * time.Second))
	if err := tracker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	record, err := env.store.GetTransaction(context.Background(), "tx-2")
	if err != nil {
		t.Fatalf("load transaction failed: %v", err)
	}
	if record.Status != entities.TxFailed {
		t.Fatalf("vote record for a failed poll must terminate, got %s", record.Status)
	}
	if record.Handle != "" {
		t.Fatalf("no envelope may reach the ledger for a failed poll, got handle %q", record.Handle)
	}

	events := env.pendingEvents(t)
	if len(events) != 1 || events[0].EventType != "ledger.transaction.failed" {
		t.Fatalf("expected one failure event, got %+v", events)
	}
}

func TestTrackerDropsRecordAfterMissingReceiptTimeout(t *testing.T) {
	env := newWorkerEnv(t)
	env.seedPoll(t, "poll-1", entities.StatusSubmitted)
	env.seedRecord(t, entities.TransactionRecord{
		TxID:          "tx-1",
		Kind:          entities.KindCreatePoll,
		EntityID:      "poll-1",
		Account:       "operator",
		Handle:        "0xdeadbeef",
		Status:        entities.TxPending,
		RetryCount:    3,
		SubmittedAt:   env.now.Add(-3 * time.Minute),
		LastCheckedAt: env.now.Add(-3 * time.Minute),
	})
	tracker := env.tracker()

	if err := tracker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	record, err := env.store.GetTransaction(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("load transaction failed: %v", err)
	}
	if record.Status != entities.TxDropped {
		t.Fatalf("expected dropped record, got %s", record.Status)
	}

	events := env.pendingEvents(t)
	if len(events) != 1 || events[0].EventType != "ledger.transaction.failed" {
		t.Fatalf("expected failure event for dropped record, got %+v", events)
	}
}

func TestTrackerRebuildsMissingReceiptWithFreshNonce(t *testing.T) {
	env := newWorkerEnv(t)
	env.seedPoll(t, "poll-1", entities.StatusSubmitted)
	env.seedRecord(t, entities.TransactionRecord{
		TxID:          "tx-1",
		Kind:          entities.KindCreatePoll,
		EntityID:      "poll-1",
		Account:       "operator",
		Handle:        "0xdeadbeef",
		Status:        entities.TxPending,
		SubmittedAt:   env.now.Add(-3 * time.Minute),
		LastCheckedAt: env.now.Add(-3 * time.Minute),
	})
	tracker := env.tracker()

	if err := tracker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	record, err := env.store.GetTransaction(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("load transaction failed: %v", err)
	}
	if record.Status != entities.TxPending {
		t.Fatalf("expected record still pending, got %s", record.Status)
	}
	if record.RetryCount != 1 {
		t.Fatalf("rebuild must count as retry, got %d", record.RetryCount)
	}
	if record.Handle == "" || record.Handle == "0xdeadbeef" {
		t.Fatalf("expected fresh handle after rebuild, got %q", record.Handle)
	}
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"chainballot/contexts/governance/voting-ledger/domain/entities"
)

func TestNonceManagerSequentialCommits(t *testing.T) {
	env := newTestEnv(t)
	nonces := NewNonceManager(env.ledger)

	for want := uint64(0); want < 3; want++ {
		nonce, release, err := nonces.Reserve(context.Background(), "operator")
		if err != nil {
			t.Fatalf("reserve failed: %v", err)
		}
		if nonce != want {
			t.Fatalf("expected nonce %d, got %d", want, nonce)
		}
		release(true)
	}
}

func TestNonceManagerAbandonedReservationLeavesNoGap(t *testing.T) {
	env := newTestEnv(t)
	nonces := NewNonceManager(env.ledger)

	nonce, release, err := nonces.Reserve(context.Background(), "operator")
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if nonce != 0 {
		t.Fatalf("expected nonce 0, got %d", nonce)
	}
	release(false)

	nonce, release, err = nonces.Reserve(context.Background(), "operator")
	if err != nil {
		t.Fatalf("second reserve failed: %v", err)
	}
	if nonce != 0 {
		t.Fatalf("abandoned nonce must be reissued, got %d", nonce)
	}
	release(true)

	nonce, release, err = nonces.Reserve(context.Background(), "operator")
	if err != nil {
		t.Fatalf("third reserve failed: %v", err)
	}
	if nonce != 1 {
		t.Fatalf("expected nonce 1 after commit, got %d", nonce)
	}
	release(false)
}

func TestConcurrentSubmissionsAreGapFree(t *testing.T) {
	env := newTestEnv(t)
	submitter := env.submitter()

	const submissions = 10
	records := make([]entities.TransactionRecord, 0, submissions)
	for i := 0; i < submissions; i++ {
		pollID := fmt.Sprintf("poll-%d", i)
		poll := entities.Poll{
			PollID:    pollID,
			Title:     fmt.Sprintf("poll %d", i),
			Options:   []string{"yes", "no"},
			CreatorID: "user_1",
			Status:    entities.StatusProvisional,
			CreatedAt: env.now,
			Deadline:  env.now.Add(time.Hour),
			UpdatedAt: env.now,
		}
		if err := env.store.SavePoll(context.Background(), poll); err != nil {
			t.Fatalf("seed poll failed: %v", err)
		}
		params, err := json.Marshal(entities.CreatePollParams{
			Title:        poll.Title,
			Options:      poll.Options,
			DeadlineUnix: poll.Deadline.Unix(),
		})
		if err != nil {
			t.Fatalf("marshal params failed: %v", err)
		}
		record := entities.TransactionRecord{
			TxID:      fmt.Sprintf("tx-%d", i),
			Kind:      entities.KindCreatePoll,
			EntityID:  pollID,
			Account:   "operator",
			Params:    params,
			Status:    entities.TxPending,
			CreatedAt: env.now,
			UpdatedAt: env.now,
		}
		if err := env.store.SaveTransaction(context.Background(), record); err != nil {
			t.Fatalf("seed transaction failed: %v", err)
		}
		records = append(records, record)
	}

	var wg sync.WaitGroup
	errs := make(chan error, submissions)
	for _, record := range records {
		wg.Add(1)
		go func(record entities.TransactionRecord) {
			defer wg.Done()
			if _, err := submitter.Submit(context.Background(), record); err != nil {
				errs <- err
			}
		}(record)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("submit failed: %v", err)
	}

	seen := make(map[uint64]bool, submissions)
	for _, envelope := range env.ledger.Submissions() {
		if seen[envelope.Nonce] {
			t.Fatalf("nonce %d used twice", envelope.Nonce)
		}
		seen[envelope.Nonce] = true
	}
	for nonce := uint64(0); nonce < submissions; nonce++ {
		if !seen[nonce] {
			t.Fatalf("nonce %d missing from broadcast sequence", nonce)
		}
	}
}

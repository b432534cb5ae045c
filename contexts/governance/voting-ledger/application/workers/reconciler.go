package workers

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

const defaultReconcilerCG = "voting-ledger-reconciler-cg"

// Reconciler aligns local poll/vote records with ledger-confirmed truth. It
// consumes confirmation and failure events from the submission tracker and
// periodically compares local confirmed tallies against the contract's view.
// Local rows are the audit source and are never deleted or auto-corrected.
type Reconciler struct {
	Subscriber    ports.EventSubscriber
	Dedup         ports.EventDedupStore
	Polls         ports.PollRepository
	Votes         ports.VoteRepository
	Ledger        ports.LedgerClient
	Clock         ports.Clock
	ConsumerGroup string
	DedupTTL      time.Duration
	Logger        *slog.Logger
}

// Divergence reports a per-option mismatch between the local confirmed tally
// and the ledger's answer for a confirmed poll.
type Divergence struct {
	PollID string
	Option string
	Local  uint64
	Ledger uint64
}

// Start subscribes the reconciler to tracker events with dedupe semantics.
func (r Reconciler) Start(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	group := strings.TrimSpace(r.ConsumerGroup)
	if group == "" {
		group = defaultReconcilerCG
	}
	if err := r.Subscriber.Subscribe(ctx, topicTransactionConfirmed, group, r.HandleTransactionConfirmed); err != nil {
		return err
	}
	if err := r.Subscriber.Subscribe(ctx, topicTransactionFailed, group, r.HandleTransactionFailed); err != nil {
		return err
	}
	logger.Info("reconciler subscriptions active",
		"event", "ledger_reconciler_started",
		"module", "governance/voting-ledger",
		"layer", "worker",
		"consumer_group", group,
	)
	return nil
}

// HandleTransactionConfirmed applies a confirmed receipt to the owning
// entity. Poll confirmations write the on-chain identifier back exactly once
// and promote votes whose receipts arrived while the poll was unconfirmed.
// Vote confirmations defer until the poll itself is confirmed.
func (r Reconciler) HandleTransactionConfirmed(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(r.Logger)
	if replayed, err := r.reserveEvent(ctx, event); err != nil {
		return err
	} else if replayed {
		return nil
	}

	var payload transactionEvent
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		logger.Error("confirmation payload decode failed",
			"event", "ledger_reconciler_decode_failed",
			"module", "governance/voting-ledger",
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}

	switch entities.TransactionKind(payload.Kind) {
	case entities.KindCreatePoll:
		return r.confirmPoll(ctx, payload)
	case entities.KindCastVote:
		return r.confirmVote(ctx, payload)
	default:
		logger.Warn("confirmation for unknown kind",
			"event", "ledger_reconciler_unknown_kind",
			"module", "governance/voting-ledger",
			"layer", "worker",
			"event_id", event.EventID,
			"kind", payload.Kind,
		)
		return nil
	}
}

// HandleTransactionFailed marks the owning entity failed. The entity is
// retained for audit and excluded from ledger-authoritative aggregation; no
// further retries happen here, bounded retrying is the tracker's job.
func (r Reconciler) HandleTransactionFailed(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(r.Logger)
	if replayed, err := r.reserveEvent(ctx, event); err != nil {
		return err
	} else if replayed {
		return nil
	}

	var payload transactionEvent
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return err
	}
	now := r.now()

	switch entities.TransactionKind(payload.Kind) {
	case entities.KindCreatePoll:
		poll, err := r.Polls.GetPoll(ctx, payload.EntityID)
		if err != nil {
			return err
		}
		if poll.Status == entities.StatusFailed {
			return nil
		}
		if !poll.Status.CanTransitionTo(entities.StatusFailed) {
			r.logTransitionAnomaly(logger, "poll", poll.PollID, string(poll.Status))
			return nil
		}
		poll.Status = entities.StatusFailed
		poll.UpdatedAt = now
		if err := r.Polls.SavePoll(ctx, poll); err != nil {
			return err
		}
		logger.Warn("poll marked failed",
			"event", "ledger_reconciler_poll_failed",
			"module", "governance/voting-ledger",
			"layer", "worker",
			"poll_id", poll.PollID,
			"tx_id", payload.TxID,
			"reason", payload.Reason,
		)
		return nil
	case entities.KindCastVote:
		vote, err := r.Votes.GetVote(ctx, payload.EntityID)
		if err != nil {
			return err
		}
		if vote.Status == entities.StatusFailed {
			return nil
		}
		if !vote.Status.CanTransitionTo(entities.StatusFailed) {
			r.logTransitionAnomaly(logger, "vote", vote.VoteID, string(vote.Status))
			return nil
		}
		vote.Status = entities.StatusFailed
		vote.UpdatedAt = now
		if err := r.Votes.SaveVote(ctx, vote); err != nil {
			return err
		}
		logger.Warn("vote marked failed",
			"event", "ledger_reconciler_vote_failed",
			"module", "governance/voting-ledger",
			"layer", "worker",
			"vote_id", vote.VoteID,
			"tx_id", payload.TxID,
			"reason", payload.Reason,
		)
		return nil
	default:
		return nil
	}
}

func (r Reconciler) confirmPoll(ctx context.Context, payload transactionEvent) error {
	logger := application.ResolveLogger(r.Logger)
	poll, err := r.Polls.GetPoll(ctx, payload.EntityID)
	if err != nil {
		return err
	}
	if poll.Status == entities.StatusConfirmed {
		return nil
	}
	if !poll.Status.CanTransitionTo(entities.StatusConfirmed) {
		r.logTransitionAnomaly(logger, "poll", poll.PollID, string(poll.Status))
		return nil
	}

	now := r.now()
	// Ledger reference fields are write-once; the receipt's identifiers become
	// authoritative here and are never overwritten afterwards.
	if poll.TxHandle == "" {
		poll.TxHandle = payload.Handle
	}
	if poll.OnChainPollID == nil && payload.OnChainPollID != nil {
		id := *payload.OnChainPollID
		poll.OnChainPollID = &id
	}
	poll.Status = entities.StatusConfirmed
	poll.UpdatedAt = now
	if err := r.Polls.SavePoll(ctx, poll); err != nil {
		return err
	}
	logger.Info("poll confirmed",
		"event", "ledger_reconciler_poll_confirmed",
		"module", "governance/voting-ledger",
		"layer", "worker",
		"poll_id", poll.PollID,
		"tx_id", payload.TxID,
		"handle", poll.TxHandle,
	)
	return r.promoteDeferredVotes(ctx, poll.PollID, now)
}

func (r Reconciler) confirmVote(ctx context.Context, payload transactionEvent) error {
	logger := application.ResolveLogger(r.Logger)
	vote, err := r.Votes.GetVote(ctx, payload.EntityID)
	if err != nil {
		return err
	}
	if vote.Status == entities.StatusConfirmed {
		return nil
	}
	poll, err := r.Polls.GetPoll(ctx, vote.PollID)
	if err != nil {
		return err
	}

	now := r.now()
	if vote.TxHandle == "" {
		vote.TxHandle = payload.Handle
	}
	if poll.Status != entities.StatusConfirmed {
		// A vote cannot outrank its poll; remember the receipt and wait.
		vote.ReceiptSeen = true
		vote.UpdatedAt = now
		if err := r.Votes.SaveVote(ctx, vote); err != nil {
			return err
		}
		logger.Info("vote confirmation deferred",
			"event", "ledger_reconciler_vote_deferred",
			"module", "governance/voting-ledger",
			"layer", "worker",
			"vote_id", vote.VoteID,
			"poll_id", vote.PollID,
		)
		return nil
	}

	if !vote.Status.CanTransitionTo(entities.StatusConfirmed) {
		r.logTransitionAnomaly(logger, "vote", vote.VoteID, string(vote.Status))
		return nil
	}
	vote.Status = entities.StatusConfirmed
	vote.UpdatedAt = now
	if err := r.Votes.SaveVote(ctx, vote); err != nil {
		return err
	}
	logger.Info("vote confirmed",
		"event", "ledger_reconciler_vote_confirmed",
		"module", "governance/voting-ledger",
		"layer", "worker",
		"vote_id", vote.VoteID,
		"poll_id", vote.PollID,
	)
	return nil
}

func (r Reconciler) promoteDeferredVotes(ctx context.Context, pollID string, now time.Time) error {
	logger := application.ResolveLogger(r.Logger)
	votes, err := r.Votes.ListVotesByPoll(ctx, pollID)
	if err != nil {
		return err
	}
	promoted := 0
	for _, vote := range votes {
		if !vote.ReceiptSeen || !vote.Status.CanTransitionTo(entities.StatusConfirmed) {
			continue
		}
		vote.Status = entities.StatusConfirmed
		vote.UpdatedAt = now
		if err := r.Votes.SaveVote(ctx, vote); err != nil {
			return err
		}
		promoted++
	}
	if promoted > 0 {
		logger.Info("deferred votes promoted",
			"event", "ledger_reconciler_votes_promoted",
			"module", "governance/voting-ledger",
			"layer", "worker",
			"poll_id", pollID,
			"promoted", promoted,
		)
	}
	return nil
}

// CheckDivergence compares local confirmed tallies for every confirmed poll
// against the contract's getPollResults answer. Mismatches are logged as
// reconciliation anomalies; the ledger value wins for merged aggregation, and
// local rows are kept untouched as the audit trail.
func (r Reconciler) CheckDivergence(ctx context.Context) ([]Divergence, error) {
	logger := application.ResolveLogger(r.Logger)
	polls, err := r.Polls.ListPollsByStatus(ctx, entities.StatusConfirmed)
	if err != nil {
		return nil, err
	}

	var anomalies []Divergence
	for _, poll := range polls {
		if poll.OnChainPollID == nil {
			continue
		}
		ledgerCounts, err := r.Ledger.PollResults(ctx, *poll.OnChainPollID)
		if err != nil {
			if errors.Is(err, domainerrors.ErrNetworkUnavailable) {
				logger.Warn("divergence check skipped, ledger unavailable",
					"event", "ledger_reconciler_divergence_skipped",
					"module", "governance/voting-ledger",
					"layer", "worker",
					"poll_id", poll.PollID,
				)
				continue
			}
			return anomalies, err
		}

		local, err := r.localConfirmedCounts(ctx, poll)
		if err != nil {
			return anomalies, err
		}
		for i, option := range poll.Options {
			var ledgerCount uint64
			if i < len(ledgerCounts) {
				ledgerCount = ledgerCounts[i]
			}
			if local[option] == ledgerCount {
				continue
			}
			anomaly := Divergence{
				PollID: poll.PollID,
				Option: option,
				Local:  local[option],
				Ledger: ledgerCount,
			}
			anomalies = append(anomalies, anomaly)
			logger.Warn("reconciliation divergence detected",
				"event", "ledger_reconciler_divergence",
				"module", "governance/voting-ledger",
				"layer", "worker",
				"poll_id", poll.PollID,
				"option", option,
				"local_count", anomaly.Local,
				"ledger_count", anomaly.Ledger,
			)
		}
	}
	return anomalies, nil
}

func (r Reconciler) localConfirmedCounts(ctx context.Context, poll entities.Poll) (map[string]uint64, error) {
	votes, err := r.Votes.ListVotesByPoll(ctx, poll.PollID)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]uint64, len(poll.Options))
	for _, vote := range votes {
		if vote.Status == entities.StatusConfirmed {
			counts[vote.Option]++
		}
	}
	return counts, nil
}

func (r Reconciler) reserveEvent(ctx context.Context, event ports.EventEnvelope) (bool, error) {
	logger := application.ResolveLogger(r.Logger)
	replayed, err := r.Dedup.ReserveEvent(ctx, event.EventID, hashPayload(event.Data), r.now().Add(r.dedupTTL()))
	if err != nil {
		logger.Error("reconciler event dedupe failed",
			"event", "ledger_reconciler_dedupe_failed",
			"module", "governance/voting-ledger",
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return false, err
	}
	return replayed, nil
}

func (r Reconciler) logTransitionAnomaly(logger *slog.Logger, entity string, id string, status string) {
	logger.Warn("reconciliation transition anomaly",
		"event", "ledger_reconciler_transition_anomaly",
		"module", "governance/voting-ledger",
		"layer", "worker",
		"entity", entity,
		"entity_id", id,
		"status", status,
	)
}

func (r Reconciler) now() time.Time {
	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}
	return now
}

func (r Reconciler) dedupTTL() time.Duration {
	if r.DedupTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return r.DedupTTL
}

package workers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "chainballot/contexts/governance/voting-ledger/application"
	"chainballot/contexts/governance/voting-ledger/application/commands"
	"chainballot/contexts/governance/voting-ledger/domain/entities"
	domainerrors "chainballot/contexts/governance/voting-ledger/domain/errors"
	"chainballot/contexts/governance/voting-ledger/ports"
)

// SubmissionTracker owns every transaction record from creation to terminal
// state. RunOnce walks pending records sequentially, so there is never more
// than one in-flight retry per record. Pending rows come from the durable
// store, which is what lets in-flight submissions resume after a restart.
type SubmissionTracker struct {
	Transactions  ports.TransactionRepository
	Ledger        ports.LedgerClient
	Submitter     commands.TransactionSubmitter
	Outbox        ports.OutboxWriter
	Clock         ports.Clock
	IDGen         ports.IDGenerator
	CheckInterval time.Duration
	DropTimeout   time.Duration
	MaxRetries    int
	BatchSize     int
	Logger        *slog.Logger
}

const (
	defaultCheckInterval = 5 * time.Second
	defaultDropTimeout   = 2 * time.Minute
	defaultMaxRetries    = 3
	defaultBatchSize     = 50
)

// RunOnce checks a bounded batch of pending records that have not been looked
// at within the check interval. Per-record errors are logged and do not abort
// the batch; the next cycle picks the record up again.
func (t SubmissionTracker) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(t.Logger)
	now := t.now()
	limit := t.BatchSize
	if limit <= 0 {
		limit = defaultBatchSize
	}
	cutoff := now.Add(-t.checkInterval())

	pending, err := t.Transactions.ListPendingTransactions(ctx, cutoff, limit)
	if err != nil {
		logger.Error("submission tracker list failed",
			"event", "ledger_tracker_list_failed",
			"module", "governance/voting-ledger",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	for _, record := range pending {
		if err := t.processRecord(ctx, record, now); err != nil {
			logger.Error("submission tracker record processing failed",
				"event", "ledger_tracker_record_failed",
				"module", "governance/voting-ledger",
				"layer", "worker",
				"tx_id", record.TxID,
				"error", err.Error(),
			)
		}
	}
	return nil
}

func (t SubmissionTracker) processRecord(ctx context.Context, record entities.TransactionRecord, now time.Time) error {
	if strings.TrimSpace(record.Handle) == "" {
		return t.resubmit(ctx, record, now)
	}

	receipt, err := t.Ledger.Receipt(ctx, record.Handle)
	if err != nil {
		record.LastCheckedAt = now
		record.UpdatedAt = now
		return t.Transactions.SaveTransaction(ctx, record)
	}

	switch receipt.State {
	case ports.ReceiptConfirmed:
		return t.confirm(ctx, record, receipt, now)
	case ports.ReceiptFailed:
		return t.handleFailedReceipt(ctx, record, receipt, now)
	case ports.ReceiptNotFound:
		return t.handleMissingReceipt(ctx, record, now)
	default:
		record.LastCheckedAt = now
		record.UpdatedAt = now
		return t.Transactions.SaveTransaction(ctx, record)
	}
}

func (t SubmissionTracker) confirm(ctx context.Context, record entities.TransactionRecord, receipt ports.Receipt, now time.Time) error {
	logger := application.ResolveLogger(t.Logger)
	record.Status = entities.TxConfirmed
	record.LastCheckedAt = now
	record.UpdatedAt = now
	if err := t.Transactions.SaveTransaction(ctx, record); err != nil {
		return err
	}
	logger.Info("ledger transaction confirmed",
		"event", "ledger_tracker_confirmed",
		"module", "governance/voting-ledger",
		"layer", "worker",
		"tx_id", record.TxID,
		"kind", string(record.Kind),
		"handle", record.Handle,
		"retry_count", record.RetryCount,
	)
	return t.appendEvent(ctx, topicTransactionConfirmed, record, receipt.OnChainPollID, "", now)
}

// handleFailedReceipt retries transient failures with a rebuilt envelope and
// fresh nonce; permanent failures terminate the record and notify the
// reconciler.
func (t SubmissionTracker) handleFailedReceipt(ctx context.Context, record entities.TransactionRecord, receipt ports.Receipt, now time.Time) error {
	logger := application.ResolveLogger(t.Logger)
	if transientReceiptFailure(receipt.FailReason) && record.RetryCount < t.maxRetries() {
		record.Handle = ""
		record.Envelope = nil
		record.RetryCount++
		record.LastCheckedAt = now
		record.UpdatedAt = now
		if err := t.Transactions.SaveTransaction(ctx, record); err != nil {
			return err
		}
		logger.Warn("ledger transaction failed transiently; rebuilding",
			"event", "ledger_tracker_transient_failure",
			"module", "governance/voting-ledger",
			"layer", "worker",
			"tx_id", record.TxID,
			"retry_count", record.RetryCount,
			"reason", receipt.FailReason,
		)
		return t.resubmit(ctx, record, now)
	}

	record.Status = entities.TxFailed
	record.LastCheckedAt = now
	record.UpdatedAt = now
	if err := t.Transactions.SaveTransaction(ctx, record); err != nil {
		return err
	}
	logger.Warn("ledger transaction failed",
		"event", "ledger_tracker_failed",
		"module", "governance/voting-ledger",
		"layer", "worker",
		"tx_id", record.TxID,
		"retry_count", record.RetryCount,
		"reason", receipt.FailReason,
	)
	return t.appendEvent(ctx, topicTransactionFailed, record, nil, receipt.FailReason, now)
}

// handleMissingReceipt presumes a transaction dropped from the network once
// the drop timeout has elapsed without the ledger ever seeing the handle.
func (t SubmissionTracker) handleMissingReceipt(ctx context.Context, record entities.TransactionRecord, now time.Time) error {
	logger := application.ResolveLogger(t.Logger)
	if now.Sub(record.SubmittedAt) < t.dropTimeout() {
		record.LastCheckedAt = now
		record.UpdatedAt = now
		return t.Transactions.SaveTransaction(ctx, record)
	}

	if record.RetryCount < t.maxRetries() {
		record.Handle = ""
		record.Envelope = nil
		record.RetryCount++
		record.LastCheckedAt = now
		record.UpdatedAt = now
		if err := t.Transactions.SaveTransaction(ctx, record); err != nil {
			return err
		}
		logger.Warn("ledger transaction presumed dropped; rebuilding",
			"event", "ledger_tracker_presumed_dropped",
			"module", "governance/voting-ledger",
			"layer", "worker",
			"tx_id", record.TxID,
			"retry_count", record.RetryCount,
		)
		return t.resubmit(ctx, record, now)
	}

	record.Status = entities.TxDropped
	record.LastCheckedAt = now
	record.UpdatedAt = now
	if err := t.Transactions.SaveTransaction(ctx, record); err != nil {
		return err
	}
	logger.Warn("ledger transaction dropped",
		"event", "ledger_tracker_dropped",
		"module", "governance/voting-ledger",
		"layer", "worker",
		"tx_id", record.TxID,
		"retry_count", record.RetryCount,
	)
	return t.appendEvent(ctx, topicTransactionFailed, record, nil, "transaction dropped from network", now)
}

func (t SubmissionTracker) resubmit(ctx context.Context, record entities.TransactionRecord, now time.Time) error {
	logger := application.ResolveLogger(t.Logger)
	_, err := t.Submitter.Submit(ctx, record)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domainerrors.ErrPollNotOnChain):
		// Vote waiting for its poll; not an attempt, no retry accounting.
		record.LastCheckedAt = now
		record.UpdatedAt = now
		return t.Transactions.SaveTransaction(ctx, record)
	case errors.Is(err, domainerrors.ErrLedgerRejected):
		record.Status = entities.TxFailed
		record.LastCheckedAt = now
		record.UpdatedAt = now
		if saveErr := t.Transactions.SaveTransaction(ctx, record); saveErr != nil {
			return saveErr
		}
		logger.Warn("ledger rejected resubmission",
			"event", "ledger_tracker_rejected",
			"module", "governance/voting-ledger",
			"layer", "worker",
			"tx_id", record.TxID,
			"error", err.Error(),
		)
		return t.appendEvent(ctx, topicTransactionFailed, record, nil, err.Error(), now)
	default:
		record.RetryCount++
		record.LastCheckedAt = now
		record.UpdatedAt = now
		if record.RetryCount >= t.maxRetries() {
			record.Status = entities.TxFailed
			if saveErr := t.Transactions.SaveTransaction(ctx, record); saveErr != nil {
				return saveErr
			}
			logger.Warn("ledger transaction retries exhausted",
				"event", "ledger_tracker_retries_exhausted",
				"module", "governance/voting-ledger",
				"layer", "worker",
				"tx_id", record.TxID,
				"retry_count", record.RetryCount,
				"error", err.Error(),
			)
			return t.appendEvent(ctx, topicTransactionFailed, record, nil, err.Error(), now)
		}
		if saveErr := t.Transactions.SaveTransaction(ctx, record); saveErr != nil {
			return saveErr
		}
		logger.Warn("ledger resubmission failed transiently",
			"event", "ledger_tracker_resubmit_failed",
			"module", "governance/voting-ledger",
			"layer", "worker",
			"tx_id", record.TxID,
			"retry_count", record.RetryCount,
			"error", err.Error(),
		)
		return nil
	}
}

func (t SubmissionTracker) appendEvent(
	ctx context.Context,
	topic string,
	record entities.TransactionRecord,
	onChainPollID *uint64,
	reason string,
	occurredAt time.Time,
) error {
	if t.Outbox == nil {
		return nil
	}
	eventID, err := t.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	envelope, err := newLedgerEnvelope(eventID, topic, occurredAt, transactionEvent{
		TxID:          record.TxID,
		Kind:          string(record.Kind),
		EntityID:      record.EntityID,
		Handle:        record.Handle,
		OnChainPollID: onChainPollID,
		Status:        string(record.Status),
		Reason:        reason,
		OccurredAt:    occurredAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return t.Outbox.AppendOutbox(ctx, envelope)
}

// transientReceiptFailure separates failures worth a rebuild (fee or
// propagation issues) from contract-level reverts, which are permanent.
func transientReceiptFailure(reason string) bool {
	lowered := strings.ToLower(reason)
	for _, marker := range []string{"underpriced", "replaced", "dropped", "timeout"} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func (t SubmissionTracker) checkInterval() time.Duration {
	if t.CheckInterval <= 0 {
		return defaultCheckInterval
	}
	return t.CheckInterval
}

func (t SubmissionTracker) dropTimeout() time.Duration {
	if t.DropTimeout <= 0 {
		return defaultDropTimeout
	}
	return t.DropTimeout
}

func (t SubmissionTracker) maxRetries() int {
	if t.MaxRetries <= 0 {
		return defaultMaxRetries
	}
	return t.MaxRetries
}

func (t SubmissionTracker) now() time.Time {
	now := time.Now().UTC()
	if t.Clock != nil {
		now = t.Clock.Now().UTC()
	}
	return now
}

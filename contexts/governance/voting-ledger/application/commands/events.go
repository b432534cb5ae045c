package commands

import (
	"context"
	"encoding/json"
	"time"

	"chainballot/contexts/governance/voting-ledger/domain/entities"
	"chainballot/contexts/governance/voting-ledger/ports"
)

const failedEventTopic = "ledger.transaction.failed"

// appendFailureEvent reports a permanently rejected submission through the
// outbox so the reconciler marks the owning entity failed. Command-side
// events are partitioned by transaction id for stable per-submission ordering.
func appendFailureEvent(
	ctx context.Context,
	outbox ports.OutboxWriter,
	idGen ports.IDGenerator,
	record entities.TransactionRecord,
	occurredAt time.Time,
	reason string,
) error {
	if outbox == nil {
		return nil
	}
	eventID, err := idGen.NewID(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(map[string]any{
		"tx_id":       record.TxID,
		"kind":        string(record.Kind),
		"entity_id":   record.EntityID,
		"handle":      record.Handle,
		"status":      string(entities.TxFailed),
		"reason":      reason,
		"occurred_at": occurredAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:          eventID,
		EventType:        failedEventTopic,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "voting-ledger",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "tx_id",
		PartitionKey:     record.TxID,
		Data:             data,
	})
}

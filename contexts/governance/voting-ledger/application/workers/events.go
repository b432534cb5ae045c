package workers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"chainballot/contexts/governance/voting-ledger/ports"
)

const (
	topicTransactionConfirmed = "ledger.transaction.confirmed"
	topicTransactionFailed    = "ledger.transaction.failed"
)

func hashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// transactionEvent is the reconciliation payload shared by tracker-produced
// confirmation and failure events.
type transactionEvent struct {
	TxID          string  `json:"tx_id"`
	Kind          string  `json:"kind"`
	EntityID      string  `json:"entity_id"`
	Handle        string  `json:"handle"`
	OnChainPollID *uint64 `json:"on_chain_poll_id,omitempty"`
	Status        string  `json:"status"`
	Reason        string  `json:"reason,omitempty"`
	OccurredAt    string  `json:"occurred_at"`
}

// newLedgerEnvelope builds canonical envelopes for worker-produced events,
// partitioned by transaction id for stable per-submission ordering.
func newLedgerEnvelope(eventID string, eventType string, occurredAt time.Time, data transactionEvent) (ports.EventEnvelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "voting-ledger",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "tx_id",
		PartitionKey:     data.TxID,
		Data:             payload,
	}, nil
}

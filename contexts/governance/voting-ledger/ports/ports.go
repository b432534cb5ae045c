package ports

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"chainballot/contexts/governance/voting-ledger/domain/entities"
)

type PollRepository interface {
	SavePoll(ctx context.Context, poll entities.Poll) error
	GetPoll(ctx context.Context, pollID string) (entities.Poll, error)
	ListPolls(ctx context.Context) ([]entities.Poll, error)
	ListPollsByStatus(ctx context.Context, status entities.ConfirmationStatus) ([]entities.Poll, error)
}

type VoteRepository interface {
	SaveVote(ctx context.Context, vote entities.Vote) error
	GetVote(ctx context.Context, voteID string) (entities.Vote, error)
	GetVoteByVoter(ctx context.Context, pollID string, voterID string) (entities.Vote, bool, error)
	ListVotesByPoll(ctx context.Context, pollID string) ([]entities.Vote, error)
}

type TransactionRepository interface {
	SaveTransaction(ctx context.Context, record entities.TransactionRecord) error
	GetTransaction(ctx context.Context, txID string) (entities.TransactionRecord, error)
	// ListPendingTransactions returns pending records last checked before the
	// given cutoff, oldest first, bounded by limit.
	ListPendingTransactions(ctx context.Context, checkedBefore time.Time, limit int) ([]entities.TransactionRecord, error)
}

// SignedEnvelope is a ledger-submittable signed payload. Raw is the encoded
// signed transaction; Hash is the ledger handle it will be known by once
// broadcast.
type SignedEnvelope struct {
	Account string
	Nonce   uint64
	Raw     []byte
	Hash    string
}

// SignRequest carries everything the signing capability needs to produce a
// signed envelope. Params holds the kind-specific payload; for cast_vote the
// on-chain poll identifier is already resolved.
type SignRequest struct {
	Kind     entities.TransactionKind
	Account  string
	Nonce    uint64
	GasLimit uint64
	GasPrice *big.Int
	Params   json.RawMessage
}

// VoteCallParams is the resolved wire payload of a cast_vote sign request;
// create_poll requests carry entities.CreatePollParams unchanged.
type VoteCallParams struct {
	OnChainPollID uint64 `json:"on_chain_poll_id"`
	Option        string `json:"option"`
}

type Signer interface {
	Sign(ctx context.Context, req SignRequest) (SignedEnvelope, error)
}

type ReceiptState string

const (
	ReceiptPending   ReceiptState = "pending"
	ReceiptConfirmed ReceiptState = "confirmed"
	ReceiptFailed    ReceiptState = "failed"
	ReceiptNotFound  ReceiptState = "not_found"
)

// Receipt is the ledger's report of a broadcast transaction's outcome.
// OnChainPollID is populated for confirmed create_poll transactions.
type Receipt struct {
	State         ReceiptState
	OnChainPollID *uint64
	FailReason    string
}

// LedgerClient wraps the opaque ledger RPC surface. Submit and Receipt fail
// with domain ErrNetworkUnavailable (transient) or ErrLedgerRejected
// (permanent); Receipt reports a handle unknown to the ledger as a NotFound
// receipt, never an error.
type LedgerClient interface {
	Submit(ctx context.Context, envelope SignedEnvelope) (string, error)
	Receipt(ctx context.Context, handle string) (Receipt, error)
	PollResults(ctx context.Context, onChainPollID uint64) ([]uint64, error)
	PendingNonce(ctx context.Context, account string) (uint64, error)
	SuggestFee(ctx context.Context) (*big.Int, error)
}

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

type OutboxMessage struct {
	OutboxID  string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, event EventEnvelope) error
}

type OutboxRepository interface {
	OutboxWriter
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string, consumerGroup string, handler func(context.Context, EventEnvelope) error) error
}

type EventDedupStore interface {
	// ReserveEvent returns true when the event was already processed.
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

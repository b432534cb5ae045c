package entities

import (
	"encoding/json"
	"time"
)

type TransactionKind string

const (
	KindCreatePoll TransactionKind = "create_poll"
	KindCastVote   TransactionKind = "cast_vote"
)

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxConfirmed TransactionStatus = "confirmed"
	TxFailed    TransactionStatus = "failed"
	TxDropped   TransactionStatus = "dropped"
)

func (s TransactionStatus) IsTerminal() bool {
	return s != TxPending
}

// TransactionRecord is the durable lifecycle record of one logical ledger
// submission. Retries mutate this row; they never create a second record for
// the same payload. Handle stays empty until a broadcast succeeds and is
// replaced when a retry rebuilds the envelope with a fresh nonce.
type TransactionRecord struct {
	TxID          string
	Kind          TransactionKind
	EntityID      string
	Account       string
	Nonce         uint64
	Params        json.RawMessage
	Envelope      []byte
	Handle        string
	Status        TransactionStatus
	RetryCount    int
	SubmittedAt   time.Time
	LastCheckedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreatePollParams is the stored payload for create_poll records.
type CreatePollParams struct {
	Title        string   `json:"title"`
	Options      []string `json:"options"`
	DeadlineUnix int64    `json:"deadline_unix"`
}

// CastVoteParams is the stored payload for cast_vote records. The on-chain
// poll identifier is resolved at build time, once the poll has confirmed.
type CastVoteParams struct {
	PollID string `json:"poll_id"`
	Option string `json:"option"`
}

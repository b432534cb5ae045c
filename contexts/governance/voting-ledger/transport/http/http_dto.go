package http

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreatePollRequest struct {
	Title    string    `json:"title"`
	Options  []string  `json:"options"`
	Deadline time.Time `json:"deadline"`
}

type PollResponse struct {
	PollID        string    `json:"poll_id"`
	Title         string    `json:"title"`
	Options       []string  `json:"options"`
	CreatorID     string    `json:"creator_id"`
	Status        string    `json:"status"`
	TxID          string    `json:"tx_id,omitempty"`
	TxHandle      string    `json:"tx_handle,omitempty"`
	OnChainPollID *uint64   `json:"on_chain_poll_id,omitempty"`
	Deadline      time.Time `json:"deadline"`
	CreatedAt     time.Time `json:"created_at"`
}

type CastVoteRequest struct {
	Option string `json:"option"`
}

type VoteResponse struct {
	VoteID   string    `json:"vote_id"`
	PollID   string    `json:"poll_id"`
	VoterID  string    `json:"voter_id"`
	Option   string    `json:"option"`
	Status   string    `json:"status"`
	TxID     string    `json:"tx_id,omitempty"`
	TxHandle string    `json:"tx_handle,omitempty"`
	CastAt   time.Time `json:"cast_at"`
}

type OptionCountItem struct {
	Option string `json:"option"`
	Count  uint64 `json:"count"`
}

type ResultsResponse struct {
	PollID string            `json:"poll_id"`
	Source string            `json:"source"`
	Stale  bool              `json:"stale"`
	Counts []OptionCountItem `json:"counts"`
}

type TransactionResponse struct {
	TxID          string     `json:"tx_id"`
	Kind          string     `json:"kind"`
	EntityID      string     `json:"entity_id"`
	Status        string     `json:"status"`
	Handle        string     `json:"handle,omitempty"`
	Nonce         uint64     `json:"nonce"`
	RetryCount    int        `json:"retry_count"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	LastCheckedAt time.Time  `json:"last_checked_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

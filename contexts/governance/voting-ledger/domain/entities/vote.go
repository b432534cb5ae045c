package entities

import "time"

type Vote struct {
	VoteID   string
	PollID   string
	VoterID  string
	Option   string
	Status   ConfirmationStatus
	TxHandle string
	// ReceiptSeen marks a vote whose ledger receipt arrived while its poll was
	// still unconfirmed. The reconciler promotes it once the poll confirms.
	ReceiptSeen bool
	CastAt      time.Time
	UpdatedAt   time.Time
}

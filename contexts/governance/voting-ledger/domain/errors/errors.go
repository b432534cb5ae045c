package errors

import "errors"

var (
	ErrInvalidPollInput    = errors.New("invalid poll input")
	ErrInvalidVoteInput    = errors.New("invalid vote input")
	ErrOptionInvalid       = errors.New("option is not part of the poll")
	ErrDeadlinePassed      = errors.New("poll deadline has passed")
	ErrPollNotFound        = errors.New("poll not found")
	ErrVoteNotFound        = errors.New("vote not found")
	ErrTransactionNotFound = errors.New("transaction record not found")
	ErrAlreadyVoted        = errors.New("voter already cast a vote for this poll")
	ErrSigningUnavailable  = errors.New("signing capability unavailable")
	ErrNetworkUnavailable  = errors.New("ledger network unavailable")
	ErrLedgerRejected      = errors.New("ledger rejected the submission")
	ErrPollNotOnChain      = errors.New("poll has no on-chain identifier yet")
	ErrInvalidTransition   = errors.New("invalid confirmation status transition")
	ErrLedgerRefImmutable  = errors.New("ledger reference is write-once")
	ErrConflict            = errors.New("conflicting concurrent write")
)

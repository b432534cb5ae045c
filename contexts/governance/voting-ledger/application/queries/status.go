package queries

import (
	"context"
	"strings"

	"chainballot/contexts/governance/voting-ledger/domain/entities"
	"chainballot/contexts/governance/voting-ledger/ports"
)

// StatusUseCase serves read-through lookups for polls and their transaction
// records; final ledger confirmation is observed through these.
type StatusUseCase struct {
	Polls        ports.PollRepository
	Transactions ports.TransactionRepository
}

func (uc StatusUseCase) Poll(ctx context.Context, pollID string) (entities.Poll, error) {
	return uc.Polls.GetPoll(ctx, strings.TrimSpace(pollID))
}

func (uc StatusUseCase) Transaction(ctx context.Context, txID string) (entities.TransactionRecord, error) {
	return uc.Transactions.GetTransaction(ctx, strings.TrimSpace(txID))
}

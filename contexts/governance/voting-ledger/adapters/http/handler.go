package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"chainballot/contexts/governance/voting-ledger/application/commands"
	"chainballot/contexts/governance/voting-ledger/application/queries"
	"chainballot/contexts/governance/voting-ledger/domain/entities"
	httptransport "chainballot/contexts/governance/voting-ledger/transport/http"
)

type Handler struct {
	Polls   commands.CreatePollUseCase
	Votes   commands.CastVoteUseCase
	Results queries.ResultsUseCase
	Status  queries.StatusUseCase
	Logger  *slog.Logger
}

func (h Handler) CreatePollHandler(
	ctx context.Context,
	creatorID string,
	req httptransport.CreatePollRequest,
) (httptransport.PollResponse, error) {
	result, err := h.Polls.CreatePoll(ctx, commands.CreatePollCommand{
		Title:     req.Title,
		Options:   req.Options,
		Deadline:  req.Deadline,
		CreatorID: creatorID,
	})
	if err != nil {
		return httptransport.PollResponse{}, err
	}
	response := mapPoll(result.Poll)
	response.TxID = result.TxID
	return response, nil
}

func (h Handler) CastVoteHandler(
	ctx context.Context,
	pollID string,
	voterID string,
	req httptransport.CastVoteRequest,
) (httptransport.VoteResponse, error) {
	result, err := h.Votes.CastVote(ctx, commands.CastVoteCommand{
		PollID:  pollID,
		VoterID: voterID,
		Option:  req.Option,
	})
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return httptransport.VoteResponse{
		VoteID:   result.Vote.VoteID,
		PollID:   result.Vote.PollID,
		VoterID:  result.Vote.VoterID,
		Option:   result.Vote.Option,
		Status:   string(result.Vote.Status),
		TxID:     result.TxID,
		TxHandle: result.Vote.TxHandle,
		CastAt:   result.Vote.CastAt,
	}, nil
}

func (h Handler) PollHandler(ctx context.Context, pollID string) (httptransport.PollResponse, error) {
	poll, err := h.Status.Poll(ctx, pollID)
	if err != nil {
		return httptransport.PollResponse{}, err
	}
	return mapPoll(poll), nil
}

func (h Handler) PollResultsHandler(ctx context.Context, pollID string) (httptransport.ResultsResponse, error) {
	result, err := h.Results.Aggregate(ctx, pollID)
	if err != nil {
		return httptransport.ResultsResponse{}, err
	}
	counts := make([]httptransport.OptionCountItem, 0, len(result.Counts))
	for _, count := range result.Counts {
		counts = append(counts, httptransport.OptionCountItem{
			Option: count.Option,
			Count:  count.Count,
		})
	}
	return httptransport.ResultsResponse{
		PollID: result.PollID,
		Source: string(result.Source),
		Stale:  result.Stale,
		Counts: counts,
	}, nil
}

func (h Handler) TransactionHandler(ctx context.Context, txID string) (httptransport.TransactionResponse, error) {
	record, err := h.Status.Transaction(ctx, txID)
	if err != nil {
		return httptransport.TransactionResponse{}, err
	}
	var submittedAt *time.Time
	if !record.SubmittedAt.IsZero() {
		at := record.SubmittedAt
		submittedAt = &at
	}
	return httptransport.TransactionResponse{
		TxID:          record.TxID,
		Kind:          string(record.Kind),
		EntityID:      record.EntityID,
		Status:        string(record.Status),
		Handle:        record.Handle,
		Nonce:         record.Nonce,
		RetryCount:    record.RetryCount,
		SubmittedAt:   submittedAt,
		LastCheckedAt: record.LastCheckedAt,
		CreatedAt:     record.CreatedAt,
	}, nil
}

func mapPoll(poll entities.Poll) httptransport.PollResponse {
	return httptransport.PollResponse{
		PollID:        poll.PollID,
		Title:         poll.Title,
		Options:       poll.Options,
		CreatorID:     poll.CreatorID,
		Status:        string(poll.Status),
		TxHandle:      poll.TxHandle,
		OnChainPollID: poll.OnChainPollID,
		Deadline:      poll.Deadline,
		CreatedAt:     poll.CreatedAt,
	}
}

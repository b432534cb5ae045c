package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"chainballot/contexts/governance/voting-ledger/domain/entities"
	domainerrors "chainballot/contexts/governance/voting-ledger/domain/errors"
	"chainballot/contexts/governance/voting-ledger/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

type dedupRecord struct {
	payloadHash string
	expiresAt   time.Time
}

// Store is the in-memory adapter backing tests and local wiring. It
// implements the repository, outbox, dedup, clock, and id-generation ports.
type Store struct {
	mu sync.RWMutex

	polls        map[string]entities.Poll
	votes        map[string]entities.Vote
	transactions map[string]entities.TransactionRecord
	outbox       map[string]outboxRecord
	outboxOrder  []string
	eventDedup   map[string]dedupRecord

	now time.Time
}

func NewStore() *Store {
	return &Store{
		polls:        make(map[string]entities.Poll),
		votes:        make(map[string]entities.Vote),
		transactions: make(map[string]entities.TransactionRecord),
		outbox:       make(map[string]outboxRecord),
		eventDedup:   make(map[string]dedupRecord),
	}
}

// SetNow pins the clock for deterministic tests; zero means wall clock.
func (s *Store) SetNow(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.now.IsZero() {
		return time.Now().UTC()
	}
	return s.now
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) SavePoll(_ context.Context, poll entities.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls[strings.TrimSpace(poll.PollID)] = poll
	return nil
}

func (s *Store) GetPoll(_ context.Context, pollID string) (entities.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	poll, ok := s.polls[strings.TrimSpace(pollID)]
	if !ok {
		return entities.Poll{}, domainerrors.ErrPollNotFound
	}
	return poll, nil
}

func (s *Store) ListPolls(_ context.Context) ([]entities.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	polls := make([]entities.Poll, 0, len(s.polls))
	for _, poll := range s.polls {
		polls = append(polls, poll)
	}
	sort.Slice(polls, func(i, j int) bool { return polls[i].CreatedAt.Before(polls[j].CreatedAt) })
	return polls, nil
}

func (s *Store) ListPollsByStatus(_ context.Context, status entities.ConfirmationStatus) ([]entities.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var polls []entities.Poll
	for _, poll := range s.polls {
		if poll.Status == status {
			polls = append(polls, poll)
		}
	}
	sort.Slice(polls, func(i, j int) bool { return polls[i].CreatedAt.Before(polls[j].CreatedAt) })
	return polls, nil
}

func (s *Store) SaveVote(_ context.Context, vote entities.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[strings.TrimSpace(vote.VoteID)] = vote
	return nil
}

func (s *Store) GetVote(_ context.Context, voteID string) (entities.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vote, ok := s.votes[strings.TrimSpace(voteID)]
	if !ok {
		return entities.Vote{}, domainerrors.ErrVoteNotFound
	}
	return vote, nil
}

func (s *Store) GetVoteByVoter(_ context.Context, pollID string, voterID string) (entities.Vote, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, vote := range s.votes {
		if vote.PollID == strings.TrimSpace(pollID) && vote.VoterID == strings.TrimSpace(voterID) {
			return vote, true, nil
		}
	}
	return entities.Vote{}, false, nil
}

func (s *Store) ListVotesByPoll(_ context.Context, pollID string) ([]entities.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var votes []entities.Vote
	for _, vote := range s.votes {
		if vote.PollID == strings.TrimSpace(pollID) {
			votes = append(votes, vote)
		}
	}
	sort.Slice(votes, func(i, j int) bool { return votes[i].CastAt.Before(votes[j].CastAt) })
	return votes, nil
}

func (s *Store) SaveTransaction(_ context.Context, record entities.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[strings.TrimSpace(record.TxID)] = record
	return nil
}

func (s *Store) GetTransaction(_ context.Context, txID string) (entities.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.transactions[strings.TrimSpace(txID)]
	if !ok {
		return entities.TransactionRecord{}, domainerrors.ErrTransactionNotFound
	}
	return record, nil
}

func (s *Store) ListPendingTransactions(_ context.Context, checkedBefore time.Time, limit int) ([]entities.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []entities.TransactionRecord
	for _, record := range s.transactions {
		if record.Status == entities.TxPending && record.LastCheckedAt.Before(checkedBefore) {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastCheckedAt.Before(records[j].LastCheckedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Store) AppendOutbox(_ context.Context, event ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, err := marshalEnvelope(event)
	if err != nil {
		return err
	}
	outboxID := uuid.NewString()
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:  outboxID,
			EventType: event.EventType,
			Payload:   payload,
			CreatedAt: event.OccurredAt,
		},
	}
	s.outboxOrder = append(s.outboxOrder, outboxID)
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var messages []ports.OutboxMessage
	for _, outboxID := range s.outboxOrder {
		record := s.outbox[outboxID]
		if record.published {
			continue
		}
		messages = append(messages, record.message)
		if limit > 0 && len(messages) >= limit {
			break
		}
	}
	return messages, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.outbox[outboxID]
	if !ok {
		return nil
	}
	record.published = true
	s.outbox[outboxID] = record
	return nil
}

func (s *Store) ReserveEvent(_ context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.eventDedup[eventID]; ok {
		if existing.payloadHash != payloadHash {
			return false, domainerrors.ErrConflict
		}
		return true, nil
	}
	s.eventDedup[eventID] = dedupRecord{payloadHash: payloadHash, expiresAt: expiresAt}
	return false, nil
}

func marshalEnvelope(event ports.EventEnvelope) ([]byte, error) {
	return json.Marshal(event)
}

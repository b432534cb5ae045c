package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"chainballot/contexts/governance/voting-ledger/domain/entities"
	domainerrors "chainballot/contexts/governance/voting-ledger/domain/errors"
	"chainballot/contexts/governance/voting-ledger/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) SavePoll(ctx context.Context, poll entities.Poll) error {
	row, err := pollModelFromEntity(poll)
	if err != nil {
		return r.logError("ledger_repo_save_poll_marshal_failed", err, "poll_id", strings.TrimSpace(poll.PollID))
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"title":            row.Title,
			"options":          row.Options,
			"creator_id":       row.CreatorID,
			"status":           row.Status,
			"tx_handle":        row.TxHandle,
			"on_chain_poll_id": row.OnChainPollID,
			"deadline":         row.Deadline,
			"updated_at":       row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return domainerrors.ErrConflict
		}
		return r.logError("ledger_repo_save_poll_failed", create.Error, "poll_id", row.ID)
	}
	return nil
}

func (r *Repository) GetPoll(ctx context.Context, pollID string) (entities.Poll, error) {
	var row pollModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(pollID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Poll{}, domainerrors.ErrPollNotFound
		}
		return entities.Poll{}, r.logError("ledger_repo_get_poll_failed", err, "poll_id", strings.TrimSpace(pollID))
	}
	return row.toEntity()
}

func (r *Repository) ListPolls(ctx context.Context) ([]entities.Poll, error) {
	var rows []pollModel
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_polls_failed", err)
	}
	return toPollEntities(rows)
}

func (r *Repository) ListPollsByStatus(ctx context.Context, status entities.ConfirmationStatus) ([]entities.Poll, error) {
	var rows []pollModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_polls_by_status_failed", err, "status", string(status))
	}
	return toPollEntities(rows)
}

func (r *Repository) SaveVote(ctx context.Context, vote entities.Vote) error {
	row := voteModelFromEntity(vote)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"poll_id":      row.PollID,
			"voter_id":     row.VoterID,
			"option":       row.Option,
			"status":       row.Status,
			"tx_handle":    row.TxHandle,
			"receipt_seen": row.ReceiptSeen,
			"updated_at":   row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		// The (poll_id, voter_id) unique index is the durable one-vote guard.
		if isUniqueViolation(create.Error) {
			return domainerrors.ErrAlreadyVoted
		}
		return r.logError("ledger_repo_save_vote_failed", create.Error,
			"vote_id", row.ID,
			"poll_id", row.PollID,
			"voter_id", row.VoterID,
		)
	}
	return nil
}

func (r *Repository) GetVote(ctx context.Context, voteID string) (entities.Vote, error) {
	var row voteModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(voteID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Vote{}, domainerrors.ErrVoteNotFound
		}
		return entities.Vote{}, r.logError("ledger_repo_get_vote_failed", err, "vote_id", strings.TrimSpace(voteID))
	}
	return row.toEntity(), nil
}

func (r *Repository) GetVoteByVoter(ctx context.Context, pollID string, voterID string) (entities.Vote, bool, error) {
	var row voteModel
	err := r.db.WithContext(ctx).
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		Where("voter_id = ?", strings.TrimSpace(voterID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Vote{}, false, nil
		}
		return entities.Vote{}, false, r.logError("ledger_repo_get_vote_by_voter_failed", err,
			"poll_id", strings.TrimSpace(pollID),
			"voter_id", strings.TrimSpace(voterID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListVotesByPoll(ctx context.Context, pollID string) ([]entities.Vote, error) {
	var rows []voteModel
	if err := r.db.WithContext(ctx).
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		Order("cast_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_votes_by_poll_failed", err, "poll_id", strings.TrimSpace(pollID))
	}
	items := make([]entities.Vote, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) SaveTransaction(ctx context.Context, record entities.TransactionRecord) error {
	row := transactionModelFromEntity(record)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"kind":            row.Kind,
			"entity_id":       row.EntityID,
			"account":         row.Account,
			"nonce":           row.Nonce,
			"params":          row.Params,
			"envelope":        row.Envelope,
			"handle":          row.Handle,
			"status":          row.Status,
			"retry_count":     row.RetryCount,
			"submitted_at":    row.SubmittedAt,
			"last_checked_at": row.LastCheckedAt,
			"updated_at":      row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return domainerrors.ErrConflict
		}
		return r.logError("ledger_repo_save_transaction_failed", create.Error, "tx_id", row.ID)
	}
	return nil
}

func (r *Repository) GetTransaction(ctx context.Context, txID string) (entities.TransactionRecord, error) {
	var row transactionModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(txID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.TransactionRecord{}, domainerrors.ErrTransactionNotFound
		}
		return entities.TransactionRecord{}, r.logError("ledger_repo_get_transaction_failed", err, "tx_id", strings.TrimSpace(txID))
	}
	return row.toEntity(), nil
}

func (r *Repository) ListPendingTransactions(ctx context.Context, checkedBefore time.Time, limit int) ([]entities.TransactionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []transactionModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(entities.TxPending)).
		Where("last_checked_at < ?", checkedBefore.UTC()).
		Order("last_checked_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_pending_transactions_failed", err, "limit", limit)
	}
	items := make([]entities.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("ledger_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("ledger_repo_append_outbox_insert_failed", create.Error, "outbox_id", row.OutboxID)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("ledger_repo_append_outbox_load_existing_failed", err, "outbox_id", row.OutboxID)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:  row.OutboxID,
			EventType: row.EventType,
			Payload:   append([]byte(nil), row.Payload...),
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("ledger_repo_mark_outbox_published_failed", result.Error, "outbox_id", strings.TrimSpace(outboxID))
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ReserveEvent(
	ctx context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	row := eventDedupModel{
		EventID:     strings.TrimSpace(eventID),
		PayloadHash: strings.TrimSpace(payloadHash),
		ExpiresAt:   expiresAt.UTC(),
		ProcessedAt: time.Now().UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return false, r.logError("ledger_repo_reserve_event_failed", create.Error, "event_id", row.EventID)
	}
	if create.RowsAffected > 0 {
		return false, nil
	}

	var existing eventDedupModel
	if err := r.db.WithContext(ctx).
		Select("payload_hash").
		Where("event_id = ?", row.EventID).
		First(&existing).Error; err != nil {
		return false, r.logError("ledger_repo_reserve_event_load_existing_failed", err, "event_id", row.EventID)
	}
	if existing.PayloadHash != row.PayloadHash {
		return false, domainerrors.ErrConflict
	}
	return true, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "governance/voting-ledger",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("voting ledger repository operation failed", fields...)
	return err
}

type pollModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	Title         string    `gorm:"column:title"`
	Options       []byte    `gorm:"column:options"`
	CreatorID     string    `gorm:"column:creator_id"`
	Status        string    `gorm:"column:status"`
	TxHandle      string    `gorm:"column:tx_handle"`
	OnChainPollID *uint64   `gorm:"column:on_chain_poll_id"`
	Deadline      time.Time `gorm:"column:deadline"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (pollModel) TableName() string {
	return "polls"
}

func pollModelFromEntity(poll entities.Poll) (pollModel, error) {
	options, err := json.Marshal(poll.Options)
	if err != nil {
		return pollModel{}, err
	}
	row := pollModel{
		ID:            strings.TrimSpace(poll.PollID),
		Title:         strings.TrimSpace(poll.Title),
		Options:       options,
		CreatorID:     strings.TrimSpace(poll.CreatorID),
		Status:        string(poll.Status),
		TxHandle:      strings.TrimSpace(poll.TxHandle),
		OnChainPollID: poll.OnChainPollID,
		Deadline:      poll.Deadline.UTC(),
		CreatedAt:     poll.CreatedAt.UTC(),
		UpdatedAt:     poll.UpdatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row, nil
}

func (m pollModel) toEntity() (entities.Poll, error) {
	var options []string
	if len(m.Options) > 0 {
		if err := json.Unmarshal(m.Options, &options); err != nil {
			return entities.Poll{}, err
		}
	}
	return entities.Poll{
		PollID:        m.ID,
		Title:         m.Title,
		Options:       options,
		CreatorID:     m.CreatorID,
		Status:        entities.ConfirmationStatus(m.Status),
		TxHandle:      m.TxHandle,
		OnChainPollID: m.OnChainPollID,
		Deadline:      m.Deadline.UTC(),
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}, nil
}

func toPollEntities(rows []pollModel) ([]entities.Poll, error) {
	items := make([]entities.Poll, 0, len(rows))
	for _, row := range rows {
		item, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

type voteModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	PollID      string    `gorm:"column:poll_id"`
	VoterID     string    `gorm:"column:voter_id"`
	Option      string    `gorm:"column:option"`
	Status      string    `gorm:"column:status"`
	TxHandle    string    `gorm:"column:tx_handle"`
	ReceiptSeen bool      `gorm:"column:receipt_seen"`
	CastAt      time.Time `gorm:"column:cast_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (voteModel) TableName() string {
	return "votes"
}

func voteModelFromEntity(vote entities.Vote) voteModel {
	row := voteModel{
		ID:          strings.TrimSpace(vote.VoteID),
		PollID:      strings.TrimSpace(vote.PollID),
		VoterID:     strings.TrimSpace(vote.VoterID),
		Option:      strings.TrimSpace(vote.Option),
		Status:      string(vote.Status),
		TxHandle:    strings.TrimSpace(vote.TxHandle),
		ReceiptSeen: vote.ReceiptSeen,
		CastAt:      vote.CastAt.UTC(),
		UpdatedAt:   vote.UpdatedAt.UTC(),
	}
	if row.CastAt.IsZero() {
		row.CastAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CastAt
	}
	return row
}

func (m voteModel) toEntity() entities.Vote {
	return entities.Vote{
		VoteID:      m.ID,
		PollID:      m.PollID,
		VoterID:     m.VoterID,
		Option:      m.Option,
		Status:      entities.ConfirmationStatus(m.Status),
		TxHandle:    m.TxHandle,
		ReceiptSeen: m.ReceiptSeen,
		CastAt:      m.CastAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

type transactionModel struct {
	ID            string     `gorm:"column:id;primaryKey"`
	Kind          string     `gorm:"column:kind"`
	EntityID      string     `gorm:"column:entity_id"`
	Account       string     `gorm:"column:account"`
	Nonce         uint64     `gorm:"column:nonce"`
	Params        []byte     `gorm:"column:params"`
	Envelope      []byte     `gorm:"column:envelope"`
	Handle        string     `gorm:"column:handle"`
	Status        string     `gorm:"column:status"`
	RetryCount    int        `gorm:"column:retry_count"`
	SubmittedAt   *time.Time `gorm:"column:submitted_at"`
	LastCheckedAt time.Time  `gorm:"column:last_checked_at"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
}

func (transactionModel) TableName() string {
	return "ledger_transactions"
}

func transactionModelFromEntity(record entities.TransactionRecord) transactionModel {
	row := transactionModel{
		ID:            strings.TrimSpace(record.TxID),
		Kind:          string(record.Kind),
		EntityID:      strings.TrimSpace(record.EntityID),
		Account:       strings.TrimSpace(record.Account),
		Nonce:         record.Nonce,
		Params:        append([]byte(nil), record.Params...),
		Envelope:      append([]byte(nil), record.Envelope...),
		Handle:        strings.TrimSpace(record.Handle),
		Status:        string(record.Status),
		RetryCount:    record.RetryCount,
		LastCheckedAt: record.LastCheckedAt.UTC(),
		CreatedAt:     record.CreatedAt.UTC(),
		UpdatedAt:     record.UpdatedAt.UTC(),
	}
	if !record.SubmittedAt.IsZero() {
		submittedAt := record.SubmittedAt.UTC()
		row.SubmittedAt = &submittedAt
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func (m transactionModel) toEntity() entities.TransactionRecord {
	record := entities.TransactionRecord{
		TxID:          m.ID,
		Kind:          entities.TransactionKind(m.Kind),
		EntityID:      m.EntityID,
		Account:       m.Account,
		Nonce:         m.Nonce,
		Params:        append(json.RawMessage(nil), m.Params...),
		Envelope:      append([]byte(nil), m.Envelope...),
		Handle:        m.Handle,
		Status:        entities.TransactionStatus(m.Status),
		RetryCount:    m.RetryCount,
		LastCheckedAt: m.LastCheckedAt.UTC(),
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
	if m.SubmittedAt != nil {
		record.SubmittedAt = m.SubmittedAt.UTC()
	}
	return record
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "voting_ledger_outbox"
}

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string {
	return "voting_ledger_event_dedup"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.PollRepository = (*Repository)(nil)
var _ ports.VoteRepository = (*Repository)(nil)
var _ ports.TransactionRepository = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
var _ ports.EventDedupStore = (*Repository)(nil)

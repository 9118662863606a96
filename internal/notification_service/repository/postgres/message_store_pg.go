package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const (
	uniqueViolation             = "23505"
	providerMessageIDConstraint = "message_records_provider_message_id_key"
	selectMessageRecordColumns  = `SELECT id::text, recipient, body, state, provider_message_id, error_detail, created_at, updated_at FROM message_records`
)

// Migrate applies the embedded schema. It is idempotent.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply postgres schema: %w", err)
	}
	return nil
}

// PgMessageStore is a MessageLogStore backed by PostgreSQL.
type PgMessageStore struct {
	db *pgxpool.Pool
}

func NewPgMessageStore(db *pgxpool.Pool) *PgMessageStore {
	return &PgMessageStore{db: db}
}

var _ domain.MessageLogStore = (*PgMessageStore)(nil)

func (r *PgMessageStore) Create(ctx context.Context, rec *domain.MessageRecord) (*domain.MessageRecord, error) {
	c := rec.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.State == "" {
		c.State = domain.MessageStatePending
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `
		INSERT INTO message_records (id, recipient, body, state, provider_message_id, error_detail, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Exec(ctx, query,
		c.ID, c.Recipient, c.Body, string(c.State), c.ProviderMessageID, c.ErrorDetail, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isProviderIDConflict(err) {
			return nil, domain.ErrDuplicateProviderMessageID
		}
		return nil, fmt.Errorf("failed to insert message record: %w", err)
	}
	return c, nil
}

func (r *PgMessageStore) GetByID(ctx context.Context, id string) (*domain.MessageRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrMessageNotFound
	}
	return scanRecord(r.db.QueryRow(ctx, selectMessageRecordColumns+` WHERE id = $1`, id))
}

func (r *PgMessageStore) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.MessageRecord, error) {
	return scanRecord(r.db.QueryRow(ctx, selectMessageRecordColumns+` WHERE provider_message_id = $1`, providerMessageID))
}

// UpdateState locks the row with SELECT ... FOR UPDATE so concurrent callbacks
// for the same message serialize; the loser sees the winner's state and is
// rejected by the state machine.
func (r *PgMessageStore) UpdateState(ctx context.Context, id string, upd domain.StateUpdate) (*domain.MessageRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrMessageNotFound
	}

	var updated *domain.MessageRecord
	txErr := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		rec, err := scanRecord(tx.QueryRow(ctx, selectMessageRecordColumns+` WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := domain.ApplyUpdate(rec, upd, time.Now().UTC()); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE message_records
			SET state = $2, provider_message_id = $3, error_detail = $4, updated_at = $5
			WHERE id = $1`,
			id, string(rec.State), rec.ProviderMessageID, rec.ErrorDetail, rec.UpdatedAt,
		)
		if err != nil {
			if isProviderIDConflict(err) {
				return domain.ErrDuplicateProviderMessageID
			}
			return fmt.Errorf("failed to update message record: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrMessageNotFound
		}
		updated = rec
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return updated, nil
}

// Ping checks the pool.
func (r *PgMessageStore) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanRecord(row pgx.Row) (*domain.MessageRecord, error) {
	var (
		rec   domain.MessageRecord
		state string
	)
	err := row.Scan(&rec.ID, &rec.Recipient, &rec.Body, &state, &rec.ProviderMessageID, &rec.ErrorDetail, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to scan message record: %w", err)
	}
	rec.State = domain.MessageState(state)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func isProviderIDConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == providerMessageIDConstraint
}

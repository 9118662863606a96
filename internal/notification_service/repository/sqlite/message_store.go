// Package sqlite implements the stores on database/sql with the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/google/uuid"
)

//go:embed schema.sql
var schemaSQL string

const timeLayout = time.RFC3339Nano

// Migrate applies the embedded schema. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return nil
}

// MessageStore persists MessageRecords in SQLite. UpdateState runs in a
// transaction on the pool's single connection, so read-check-write is atomic.
type MessageStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ domain.MessageLogStore = (*MessageStore)(nil)

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const selectRecord = `
	SELECT id, recipient, body, state, provider_message_id, error_detail, created_at, updated_at
	FROM message_records`

func (s *MessageStore) Create(ctx context.Context, rec *domain.MessageRecord) (*domain.MessageRecord, error) {
	c := rec.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.State == "" {
		c.State = domain.MessageStatePending
	}
	now := s.now()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_records (id, recipient, body, state, provider_message_id, error_detail, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Recipient, c.Body, string(c.State), nullString(c.ProviderMessageID), nullString(c.ErrorDetail),
		c.CreatedAt.Format(timeLayout), c.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		if isProviderIDConflict(err) {
			return nil, domain.ErrDuplicateProviderMessageID
		}
		return nil, fmt.Errorf("failed to insert message record: %w", err)
	}
	return c, nil
}

func (s *MessageStore) GetByID(ctx context.Context, id string) (*domain.MessageRecord, error) {
	return scanRecord(s.db.QueryRowContext(ctx, selectRecord+` WHERE id = ?`, id))
}

func (s *MessageStore) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.MessageRecord, error) {
	return scanRecord(s.db.QueryRowContext(ctx, selectRecord+` WHERE provider_message_id = ?`, providerMessageID))
}

func (s *MessageStore) UpdateState(ctx context.Context, id string, upd domain.StateUpdate) (*domain.MessageRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := scanRecord(tx.QueryRowContext(ctx, selectRecord+` WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := domain.ApplyUpdate(rec, upd, s.now()); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE message_records
		SET state = ?, provider_message_id = ?, error_detail = ?, updated_at = ?
		WHERE id = ?`,
		string(rec.State), nullString(rec.ProviderMessageID), nullString(rec.ErrorDetail), rec.UpdatedAt.Format(timeLayout), id,
	)
	if err != nil {
		if isProviderIDConflict(err) {
			return nil, domain.ErrDuplicateProviderMessageID
		}
		return nil, fmt.Errorf("failed to update message record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit state update: %w", err)
	}
	return rec, nil
}

// Ping checks the database connection.
func (s *MessageStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func scanRecord(row *sql.Row) (*domain.MessageRecord, error) {
	var (
		rec                  domain.MessageRecord
		providerID, errDet   sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&rec.ID, &rec.Recipient, &rec.Body, &rec.State, &providerID, &errDet, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to scan message record: %w", err)
	}
	if providerID.Valid {
		rec.ProviderMessageID = &providerID.String
	}
	if errDet.Valid {
		rec.ErrorDetail = &errDet.String
	}
	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &rec, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func isProviderIDConflict(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, "provider_message_id")
}

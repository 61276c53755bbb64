package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides a PostgreSQL implementation of the Repository interface.
type Store struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

var _ schemas.Repository = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return newStore(pool, logger), nil
}

func newStore(pool DBPool, logger *zap.Logger) *Store {
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

const schemaDDL = `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY,
        email TEXT NOT NULL,
        access_token TEXT,
        app_password TEXT
    );
    CREATE TABLE IF NOT EXISTS emails (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL REFERENCES users(id),
        google_message_id TEXT NOT NULL,
        subject TEXT NOT NULL DEFAULT '',
        sender TEXT NOT NULL DEFAULT '',
        received_at TIMESTAMPTZ
    );
    CREATE TABLE IF NOT EXISTS unsubscribe_attempts (
        id UUID PRIMARY KEY,
        email_id TEXT NOT NULL,
        user_id TEXT NOT NULL,
        link TEXT NOT NULL DEFAULT '',
        success BOOLEAN NOT NULL,
        message TEXT NOT NULL DEFAULT '',
        error TEXT NOT NULL DEFAULT '',
        challenge_blocked BOOLEAN NOT NULL DEFAULT FALSE,
        confirmed BOOLEAN NOT NULL DEFAULT FALSE,
        matched_phrase TEXT NOT NULL DEFAULT '',
        stage TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL
    );
    CREATE INDEX IF NOT EXISTS unsubscribe_attempts_email_idx ON unsubscribe_attempts (email_id, created_at);
`

// EnsureSchema creates the tables the store relies on when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// GetUser loads a mailbox owner.
func (s *Store) GetUser(ctx context.Context, userID string) (*schemas.User, error) {
	query := `
        SELECT id, email, COALESCE(access_token, ''), COALESCE(app_password, '')
        FROM users
        WHERE id = $1;
    `
	var u schemas.User
	err := s.pool.QueryRow(ctx, query, userID).Scan(&u.ID, &u.Email, &u.AccessToken, &u.AppPassword)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, schemas.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user %s: %w", userID, err)
	}
	return &u, nil
}

// GetEmail loads a stored email, scoped to its owner.
func (s *Store) GetEmail(ctx context.Context, userID, emailID string) (*schemas.Email, error) {
	query := `
        SELECT id, user_id, google_message_id, subject, sender, COALESCE(received_at, 'epoch'::timestamptz)
        FROM emails
        WHERE id = $1 AND user_id = $2;
    `
	var e schemas.Email
	err := s.pool.QueryRow(ctx, query, emailID, userID).
		Scan(&e.ID, &e.UserID, &e.GoogleMessageID, &e.Subject, &e.Sender, &e.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, schemas.ErrEmailNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query email %s: %w", emailID, err)
	}
	return &e, nil
}

// RecordOutcome appends one attempt to the history of an email.
func (s *Store) RecordOutcome(ctx context.Context, userID string, outcome schemas.ItemOutcome) error {
	query := `
        INSERT INTO unsubscribe_attempts
            (id, email_id, user_id, link, success, message, error, challenge_blocked, confirmed, matched_phrase, stage, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
    `
	_, err := s.pool.Exec(ctx, query,
		uuid.New(), outcome.EmailID, userID, outcome.Link,
		outcome.Success, outcome.Message, outcome.ErrorMessage,
		outcome.ChallengeBlocked, outcome.Confirmed, outcome.MatchedPhrase,
		outcome.Stage, s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome for email %s: %w", outcome.EmailID, err)
	}
	s.log.Debug("Recorded unsubscribe attempt.", zap.String("email_id", outcome.EmailID), zap.Bool("success", outcome.Success))
	return nil
}

// ListOutcomes returns the attempt history of an email, oldest first.
func (s *Store) ListOutcomes(ctx context.Context, emailID string) ([]schemas.ItemOutcome, error) {
	query := `
        SELECT email_id, link, success, message, error, challenge_blocked, confirmed, matched_phrase, stage
        FROM unsubscribe_attempts
        WHERE email_id = $1
        ORDER BY created_at ASC;
    `
	rows, err := s.pool.Query(ctx, query, emailID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []schemas.ItemOutcome{}
	for rows.Next() {
		var o schemas.ItemOutcome
		if err := rows.Scan(
			&o.EmailID, &o.Link, &o.Success, &o.Message, &o.ErrorMessage,
			&o.ChallengeBlocked, &o.Confirmed, &o.MatchedPhrase, &o.Stage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcome rows: %w", err)
	}
	return outcomes, nil
}

package process

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/postgres"
)

// State is the lifecycle state of an outbox message.
type State string

const (
	StateNew     State = "NEW"
	StateRunning State = "RUNNING"
	StateOK      State = "OK"
	// StateErr marks a failed run that is retried once its backoff passes.
	StateErr State = "ERR"
	// StateDead marks a run an operator interrupted, or one that failed
	// too often; it is never retried.
	StateDead State = "DEAD"
)

// Message is one converter run request.
type Message struct {
	ID   int64
	Args []string
	// Attempts counts claims of this message, the current one included.
	Attempts int
}

// Outbox hands out converter runs and records their outcome. A message
// marked ERR is not claimable again until retryAfter has passed.
type Outbox interface {
	Claim(ctx context.Context) (Message, bool, error)
	Mark(ctx context.Context, id int64, state State, detail string, retryAfter time.Duration) error
}

// PostgresOutbox is the converter_outbox table.
type PostgresOutbox struct {
	db *sql.DB
}

// NewPostgresOutbox returns an outbox on db.
func NewPostgresOutbox(db *sql.DB) *PostgresOutbox {
	return &PostgresOutbox{db: db}
}

const (
	claimOutbox = `SELECT id, args FROM converter_outbox
		WHERE state = 'NEW' OR (state = 'ERR' AND not_before <= NOW())
		ORDER BY id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`
	startOutbox = `UPDATE converter_outbox SET state = 'RUNNING', attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts`
	markOutbox = `UPDATE converter_outbox
		SET state = $1, detail = $2, finished_at = NOW(), not_before = NOW() + make_interval(secs => $3)
		WHERE id = $4`
)

// Claim moves the oldest runnable message to RUNNING and returns it. It
// reports false when nothing is waiting.
func (o *PostgresOutbox) Claim(ctx context.Context) (Message, bool, error) {
	var msg Message
	found := false
	err := postgres.InTx(ctx, o.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, claimOutbox)
		if err := row.Scan(&msg.ID, pq.Array(&msg.Args)); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("claiming outbox message: %w", err)
		}
		if err := tx.QueryRowContext(ctx, startOutbox, msg.ID).Scan(&msg.Attempts); err != nil {
			return fmt.Errorf("starting outbox message %d: %w", msg.ID, err)
		}
		found = true
		return nil
	})
	return msg, found, err
}

// Mark records the outcome of message id.
func (o *PostgresOutbox) Mark(ctx context.Context, id int64, state State, detail string, retryAfter time.Duration) error {
	if _, err := o.db.ExecContext(ctx, markOutbox, string(state), detail, retryAfter.Seconds(), id); err != nil {
		return fmt.Errorf("marking outbox message %d %s: %w", id, state, err)
	}
	return nil
}

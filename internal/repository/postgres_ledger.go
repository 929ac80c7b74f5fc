package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/patient-queue-service/internal/domain"
	"github.com/spec-kit/patient-queue-service/pkg/util"
)

const ticketColumns = `id, encounter_ref, room_ref, physician_ref, priority, status,
       queue_number, validation_token, created_at, expires_at, called_at, completed_at, expired_at`

// PostgresLedger persists queue tickets through pgx. The status
// compare-and-swap rides on a conditional UPDATE, so two racing callers can
// never both win a transition.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger instantiates the ledger.
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func (l *PostgresLedger) Create(ctx context.Context, ticket *domain.QueueTicket) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	day := ticket.CreatedAt.Format("2006-01-02")
	const counterQuery = `
        INSERT INTO queue_counters (day, last_number) VALUES ($1, 1)
        ON CONFLICT (day) DO UPDATE SET last_number = queue_counters.last_number + 1
        RETURNING last_number`
	if err := tx.QueryRow(ctx, counterQuery, day).Scan(&ticket.QueueNumber); err != nil {
		return err
	}

	const insertQuery = `
        INSERT INTO queue_tickets (encounter_ref, room_ref, priority, status, queue_number,
            validation_token, created_at, expires_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id`
	if err := tx.QueryRow(ctx, insertQuery,
		ticket.EncounterRef,
		ticket.RoomRef,
		ticket.Priority,
		ticket.Status,
		ticket.QueueNumber,
		ticket.ValidationToken,
		ticket.CreatedAt,
		ticket.ExpiresAt,
	).Scan(&ticket.ID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (l *PostgresLedger) GetByID(ctx context.Context, id string) (*domain.QueueTicket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM queue_tickets WHERE id=$1`
	ticket, err := l.fetchSingle(ctx, query, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, util.NewNotFound("ticket", map[string]any{"id": id})
	}
	return ticket, err
}

func (l *PostgresLedger) GetByToken(ctx context.Context, token string) (*domain.QueueTicket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM queue_tickets WHERE validation_token=$1`
	ticket, err := l.fetchSingle(ctx, query, token)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, util.NewInvalidToken()
	}
	return ticket, err
}

func (l *PostgresLedger) fetchSingle(ctx context.Context, query string, arg any) (*domain.QueueTicket, error) {
	var ticket domain.QueueTicket
	if err := l.pool.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.EncounterRef,
		&ticket.RoomRef,
		&ticket.PhysicianRef,
		&ticket.Priority,
		&ticket.Status,
		&ticket.QueueNumber,
		&ticket.ValidationToken,
		&ticket.CreatedAt,
		&ticket.ExpiresAt,
		&ticket.CalledAt,
		&ticket.CompletedAt,
		&ticket.ExpiredAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (l *PostgresLedger) ListWaiting(ctx context.Context, filter WaitingFilter) ([]domain.QueueTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM queue_tickets WHERE status=$1`
	args := []any{domain.TicketStatusWaiting}

	if filter.RoomRef != nil {
		args = append(args, *filter.RoomRef)
		query += ` AND (room_ref IS NULL OR room_ref=$2)`
	}
	if filter.ExpiresBefore != nil {
		args = append(args, *filter.ExpiresBefore)
		if filter.RoomRef != nil {
			query += ` AND expires_at <= $3`
		} else {
			query += ` AND expires_at <= $2`
		}
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (l *PostgresLedger) ListCompletedSince(ctx context.Context, roomRef *string, since time.Time) ([]domain.QueueTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM queue_tickets WHERE status=$1 AND completed_at >= $2`
	args := []any{domain.TicketStatusCompleted, since}
	if roomRef != nil {
		args = append(args, *roomRef)
		query += ` AND room_ref=$3`
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (l *PostgresLedger) Transition(ctx context.Context, id string, from, to domain.TicketStatus, fields TransitionFields) (*domain.QueueTicket, error) {
	if !domain.CanTransition(from, to) {
		return nil, util.NewValidationError("illegal status transition", map[string]any{"from": from, "to": to})
	}

	const query = `
        UPDATE queue_tickets
        SET status=$1,
            physician_ref=COALESCE($2, physician_ref),
            called_at=COALESCE($3, called_at),
            completed_at=COALESCE($4, completed_at),
            expired_at=COALESCE($5, expired_at)
        WHERE id=$6 AND status=$7
        RETURNING ` + ticketColumns
	var ticket domain.QueueTicket
	err := l.pool.QueryRow(ctx, query,
		to,
		fields.PhysicianRef,
		fields.CalledAt,
		fields.CompletedAt,
		fields.ExpiredAt,
		id,
		from,
	).Scan(
		&ticket.ID,
		&ticket.EncounterRef,
		&ticket.RoomRef,
		&ticket.PhysicianRef,
		&ticket.Priority,
		&ticket.Status,
		&ticket.QueueNumber,
		&ticket.ValidationToken,
		&ticket.CreatedAt,
		&ticket.ExpiresAt,
		&ticket.CalledAt,
		&ticket.CompletedAt,
		&ticket.ExpiredAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return l.classifyStaleTransition(ctx, id, from)
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// classifyStaleTransition distinguishes a missing ticket from a lost
// compare-and-swap after the conditional UPDATE matched no row.
func (l *PostgresLedger) classifyStaleTransition(ctx context.Context, id string, expected domain.TicketStatus) (*domain.QueueTicket, error) {
	current, err := l.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, util.NewStaleTransition(id, string(expected), string(current.Status))
}

func scanTickets(rows pgx.Rows) ([]domain.QueueTicket, error) {
	var result []domain.QueueTicket
	for rows.Next() {
		var ticket domain.QueueTicket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.EncounterRef,
			&ticket.RoomRef,
			&ticket.PhysicianRef,
			&ticket.Priority,
			&ticket.Status,
			&ticket.QueueNumber,
			&ticket.ValidationToken,
			&ticket.CreatedAt,
			&ticket.ExpiresAt,
			&ticket.CalledAt,
			&ticket.CompletedAt,
			&ticket.ExpiredAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

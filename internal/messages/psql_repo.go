package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2beens/contactform/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// PsqlRepo talks to the messages table directly over the postgres wire
// protocol, e.g. through the supabase connection pooler.
type PsqlRepo struct {
	db        *pgxpool.Pool
	table     string
	timeout   time.Duration
	configErr error
}

// NewPsqlRepo accepts a schema qualified table name, e.g. "public.messages".
// Each call is bounded by timeout, if positive.
func NewPsqlRepo(db *pgxpool.Pool, table string, timeout time.Duration) *PsqlRepo {
	return &PsqlRepo{
		db:      db,
		table:   pgx.Identifier(strings.Split(table, ".")).Sanitize(),
		timeout: timeout,
	}
}

// NewUnconfiguredPsqlRepo answers every call with a KindConfig error
// carrying reason, e.g. a DATABASE_URL that does not parse.
func NewUnconfiguredPsqlRepo(reason error) *PsqlRepo {
	return &PsqlRepo{configErr: reason}
}

func (r *PsqlRepo) unconfigured(op string) error {
	if r.configErr != nil {
		return &Error{Kind: KindConfig, Op: op, Err: r.configErr}
	}
	return &Error{Kind: KindConfig, Op: op, Err: errors.New("DATABASE_URL must be set in environment variables")}
}

func (r *PsqlRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *PsqlRepo) Insert(ctx context.Context, name, email, message string) (_ *Message, err error) {
	ctx, span := tracing.StartSpan(ctx, "psqlRepo.insert")
	defer func() { tracing.EndSpan(span, err) }()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if r.db == nil {
		return nil, r.unconfigured(OpInsert)
	}

	rows, err := r.db.Query(
		ctx,
		fmt.Sprintf(
			`INSERT INTO %s (name, email, message) VALUES ($1, $2, $3) RETURNING id::text, name, email, message, created_at;`,
			r.table,
		),
		name, email, message,
	)
	if err != nil {
		log.Errorf("psql insert error: %s", err)
		return nil, newPsqlError(OpInsert, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			log.Errorf("psql insert error: %s", err)
			return nil, newPsqlError(OpInsert, err)
		}
		return nil, &Error{Kind: KindNotFound, Op: OpInsert, Err: ErrNoRowsReturned}
	}

	inserted, err := scanMessage(rows)
	if err != nil {
		return nil, newPsqlError(OpInsert, err)
	}

	return inserted, nil
}

func (r *PsqlRepo) ListAll(ctx context.Context) (_ []Message, err error) {
	ctx, span := tracing.StartSpan(ctx, "psqlRepo.listAll")
	defer func() { tracing.EndSpan(span, err) }()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if r.db == nil {
		return nil, r.unconfigured(OpList)
	}

	rows, err := r.db.Query(
		ctx,
		fmt.Sprintf(
			`SELECT id::text, name, email, message, created_at FROM %s ORDER BY created_at DESC;`,
			r.table,
		),
	)
	if err != nil {
		log.Errorf("psql query error: %s", err)
		return nil, newPsqlError(OpList, err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, newPsqlError(OpList, err)
		}
		messages = append(messages, *m)
	}

	if err := rows.Err(); err != nil {
		log.Errorf("psql query error: %s", err)
		return nil, newPsqlError(OpList, err)
	}

	return messages, nil
}

func (r *PsqlRepo) Probe(ctx context.Context) (err error) {
	ctx, span := tracing.StartSpan(ctx, "psqlRepo.probe")
	defer func() { tracing.EndSpan(span, err) }()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if r.db == nil {
		return r.unconfigured(OpProbe)
	}

	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT id FROM %s LIMIT 1;`, r.table))
	if err != nil {
		return newPsqlError(OpProbe, err)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return newPsqlError(OpProbe, err)
	}

	return nil
}

func scanMessage(rows pgx.Rows) (*Message, error) {
	var id, name, email, message string
	var createdAt time.Time
	if err := rows.Scan(&id, &name, &email, &message, &createdAt); err != nil {
		return nil, fmt.Errorf("rows scan: %w", err)
	}
	return &Message{
		ID:        id,
		Name:      name,
		Email:     email,
		Message:   message,
		CreatedAt: createdAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

// newPsqlError treats authentication failures and unknown databases as
// configuration problems.
func newPsqlError(op string, err error) *Error {
	kind := KindOperational
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "28"), pgErr.Code == "3D000":
			kind = KindConfig
		}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

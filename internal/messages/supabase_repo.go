package messages

import (
	"context"

	"github.com/2beens/contactform/internal/supabase"
	"github.com/2beens/contactform/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// SupabaseRepo stores messages through the supabase REST endpoint.
// A client is built per call, so bad credentials are reported per request.
type SupabaseRepo struct {
	params supabase.ClientParams
	table  string
}

func NewSupabaseRepo(params supabase.ClientParams, table string) *SupabaseRepo {
	return &SupabaseRepo{
		params: params,
		table:  table,
	}
}

func (r *SupabaseRepo) Insert(ctx context.Context, name, email, message string) (_ *Message, err error) {
	ctx, span := tracing.StartSpan(ctx, "supabaseRepo.insert")
	defer func() { tracing.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("db.table", r.table))

	client, err := supabase.NewClient(r.params)
	if err != nil {
		log.Errorf("supabase client: %s", err)
		return nil, newSupabaseError(OpInsert, err)
	}

	var rows []storedMessage
	if err := client.Insert(ctx, r.table, newMessageRow{
		Name:    name,
		Email:   email,
		Message: message,
	}, &rows); err != nil {
		log.Errorf("supabase insert error: %s", err)
		return nil, newSupabaseError(OpInsert, err)
	}

	if len(rows) == 0 {
		return nil, &Error{Kind: KindNotFound, Op: OpInsert, Err: ErrNoRowsReturned}
	}

	inserted := rows[0].toMessage()
	return &inserted, nil
}

func (r *SupabaseRepo) ListAll(ctx context.Context) (_ []Message, err error) {
	ctx, span := tracing.StartSpan(ctx, "supabaseRepo.listAll")
	defer func() { tracing.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("db.table", r.table))

	client, err := supabase.NewClient(r.params)
	if err != nil {
		log.Errorf("supabase client: %s", err)
		return nil, newSupabaseError(OpList, err)
	}

	var rows []storedMessage
	if err := client.Select(ctx, r.table, supabase.Query{
		OrderBy:    "created_at",
		Descending: true,
	}, &rows); err != nil {
		log.Errorf("supabase query error: %s", err)
		return nil, newSupabaseError(OpList, err)
	}

	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.toMessage())
	}
	span.SetAttributes(attribute.Int("messages.count", len(messages)))

	return messages, nil
}

// Probe checks the table is reachable with a one row query.
func (r *SupabaseRepo) Probe(ctx context.Context) (err error) {
	ctx, span := tracing.StartSpan(ctx, "supabaseRepo.probe")
	defer func() { tracing.EndSpan(span, err) }()

	client, err := supabase.NewClient(r.params)
	if err != nil {
		return newSupabaseError(OpProbe, err)
	}

	var rows []storedMessage
	if err := client.Select(ctx, r.table, supabase.Query{
		Columns: []string{"id"},
		Limit:   1,
	}, &rows); err != nil {
		return newSupabaseError(OpProbe, err)
	}

	return nil
}

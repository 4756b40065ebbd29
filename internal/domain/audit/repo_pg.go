package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn() db.Querier { return r.pool }

const entryCols = `id, user_id, COALESCE(user_name, ''), COALESCE(patient_id, ''), action, entity,
	COALESCE(entity_id, ''), payload, recorded_at`

func (r *repoPG) Append(ctx context.Context, e *Entry) error {
	_, err := r.conn().Exec(ctx, `
		INSERT INTO audit_event (id, user_id, user_name, patient_id, action, entity, entity_id, payload, recorded_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, $9)`,
		e.ID, e.UserID, e.UserName, e.PatientID, e.Action, e.Entity, e.EntityID, nullJSON(e.Payload), e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	where, args := buildWhere(f)

	var total int
	if err := r.conn().QueryRow(ctx, `SELECT COUNT(*) FROM audit_event`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM audit_event%s ORDER BY recorded_at DESC, seq DESC LIMIT $%d OFFSET $%d`,
		entryCols, where, len(args)-1, len(args))
	rows, err := r.conn().Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	items := []*Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var payload []byte
	if err := row.Scan(&e.ID, &e.UserID, &e.UserName, &e.PatientID, &e.Action, &e.Entity,
		&e.EntityID, &payload, &e.Timestamp); err != nil {
		return nil, fmt.Errorf("scan audit event: %w", err)
	}
	e.Payload = payload
	return &e, nil
}

func buildWhere(f Filter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.PatientID != "" {
		add("patient_id = $%d", f.PatientID)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if !f.Since.IsZero() {
		add("recorded_at >= $%d", f.Since)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

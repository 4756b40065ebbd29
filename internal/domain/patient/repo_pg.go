package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/db"
)

// ChangeChannel is the NOTIFY channel fed by the patient_document trigger.
const ChangeChannel = "patient_document_changed"

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn() db.Querier { return r.pool }

func (r *repoPG) Get(ctx context.Context, id string) (*Document, error) {
	row := r.conn().QueryRow(ctx, `SELECT version, document FROM patient_document WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	return doc, err
}

func (r *repoPG) List(ctx context.Context) ([]*Document, error) {
	rows, err := r.conn().Query(ctx, `SELECT version, document FROM patient_document ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query patient documents: %w", err)
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func scanDocument(row pgx.Row) (*Document, error) {
	var version int64
	var raw []byte
	if err := row.Scan(&version, &raw); err != nil {
		return nil, err
	}
	var p Patient
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode patient document: %w", err)
	}
	return &Document{Patient: p, Version: version}, nil
}

// Save upserts only when the incoming version is newer, so a slow write can
// never overwrite a later one.
func (r *repoPG) Save(ctx context.Context, doc *Document) error {
	raw, err := json.Marshal(doc.Patient)
	if err != nil {
		return fmt.Errorf("encode patient document: %w", err)
	}
	tag, err := r.conn().Exec(ctx, `
		INSERT INTO patient_document (id, version, document, status, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE
		SET version = EXCLUDED.version, document = EXCLUDED.document,
		    status = EXCLUDED.status, updated_at = NOW()
		WHERE patient_document.version < EXCLUDED.version`,
		doc.Patient.ID, doc.Version, raw, string(doc.Patient.Status))
	if err != nil {
		return fmt.Errorf("save patient document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleWrite
	}
	return nil
}

// Watch LISTENs on ChangeChannel on a dedicated connection.
func (r *repoPG) Watch(ctx context.Context, fn func(id string, version int64)) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), "UNLISTEN *")
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return fmt.Errorf("listen %s: %w", ChangeChannel, err)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		var msg struct {
			ID      string `json:"id"`
			Version int64  `json:"version"`
		}
		if err := json.Unmarshal([]byte(n.Payload), &msg); err != nil || msg.ID == "" {
			continue
		}
		fn(msg.ID, msg.Version)
	}
}

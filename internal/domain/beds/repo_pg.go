package beds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

func (r *repoPG) Get(ctx context.Context, id string) (*Document, error) {
	d, err := scanBed(r.conn().QueryRow(ctx, `SELECT version, document FROM bed_document WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBedNotFound
	}
	return d, err
}

func (r *repoPG) List(ctx context.Context, ward string) ([]*Document, error) {
	query := `SELECT version, document FROM bed_document`
	var args []any
	if ward != "" {
		query += ` WHERE ward = $1`
		args = append(args, ward)
	}
	query += ` ORDER BY ward, document->>'label'`

	rows, err := r.conn().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query beds: %w", err)
	}
	defer rows.Close()
	var out []*Document
	for rows.Next() {
		d, err := scanBed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanBed(row pgx.Row) (*Document, error) {
	var d Document
	var raw []byte
	if err := row.Scan(&d.Version, &raw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &d.Bed); err != nil {
		return nil, fmt.Errorf("decode bed document: %w", err)
	}
	return &d, nil
}

func (r *repoPG) Save(ctx context.Context, bed Bed, expected int64) (int64, error) {
	raw, err := json.Marshal(bed)
	if err != nil {
		return 0, fmt.Errorf("encode bed document: %w", err)
	}

	if expected == 0 {
		_, err := r.conn().Exec(ctx, `
			INSERT INTO bed_document (id, version, ward, document, updated_at)
			VALUES ($1, 1, $2, $3, NOW())`, bed.ID, bed.Ward, raw)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrBedExists
		}
		if err != nil {
			return 0, fmt.Errorf("insert bed: %w", err)
		}
		return 1, nil
	}

	tag, err := r.conn().Exec(ctx, `
		UPDATE bed_document SET version = version + 1, ward = $3, document = $4, updated_at = NOW()
		WHERE id = $1 AND version = $2`, bed.ID, expected, bed.Ward, raw)
	if err != nil {
		return 0, fmt.Errorf("update bed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, bed.ID); err != nil {
			return 0, err
		}
		return 0, ErrVersionConflict
	}
	return expected + 1, nil
}

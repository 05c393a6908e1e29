package business

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

type Repository interface {
	ListPartitions(ctx context.Context) ([]Partition, error)
	Get(ctx context.Context, state, city string) ([]Record, error)
	GetByIDs(ctx context.Context, ids []string) ([]Record, error)
	UpsertEnrichment(ctx context.Context, id string, fields EnrichedFields) error
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var recordColumns = []string{
	"id",
	"name",
	"COALESCE(address, '')",
	"state",
	"city",
	"review_count",
	"COALESCE(rating, 0)",
	"slug",
}

type PostgresRepo struct {
	db *sql.DB
}

var _ Repository = (*PostgresRepo)(nil)

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) ListPartitions(ctx context.Context) ([]Partition, error) {
	query, args, err := psql.Select("state", "city").Distinct().
		From("businesses").
		OrderBy("state", "city").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build partitions query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var parts []Partition
	for rows.Next() {
		var p Partition
		if err := rows.Scan(&p.State, &p.City); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("partition rows: %w", err)
	}
	return parts, nil
}

// Get returns every record of one partition ordered by id, so repeated scans
// see the same order.
func (r *PostgresRepo) Get(ctx context.Context, state, city string) ([]Record, error) {
	query, args, err := psql.Select(recordColumns...).
		From("businesses").
		Where("state = ? AND city = ?", state, city).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build partition query: %w", err)
	}
	return r.query(ctx, query, args...)
}

func (r *PostgresRepo) GetByIDs(ctx context.Context, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := psql.Select(recordColumns...).
		From("businesses").
		Where(sq.Eq{"id": ids}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ids query: %w", err)
	}
	return r.query(ctx, query, args...)
}

func (r *PostgresRepo) UpsertEnrichment(ctx context.Context, id string, fields EnrichedFields) error {
	query, args, err := psql.Insert("business_enrichments").
		Columns("business_id", "description", "specialties", "price_range", "model", "generated_at").
		Values(id, fields.Description, pq.Array(fields.Specialties), fields.PriceRange, fields.Model, fields.GeneratedAt).
		Suffix(`ON CONFLICT (business_id) DO UPDATE
              SET description = EXCLUDED.description,
                  specialties = EXCLUDED.specialties,
                  price_range = EXCLUDED.price_range,
                  model = EXCLUDED.model,
                  generated_at = EXCLUDED.generated_at,
                  updated_at = NOW()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" { // foreign_key_violation
			return fmt.Errorf("upsert enrichment: %w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("upsert enrichment %s: %w", id, err)
	}
	return nil
}

func (r *PostgresRepo) query(ctx context.Context, query string, args ...interface{}) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query businesses: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Address, &rec.State, &rec.City, &rec.ReviewCount, &rec.Rating, &rec.Slug); err != nil {
			return nil, fmt.Errorf("scan business: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("business rows: %w", err)
	}
	return records, nil
}

package job

import (
	"context"
	"database/sql"
)

type Repository interface {
	Save(ctx context.Context, job *Job) error
	List(ctx context.Context) ([]Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Save keeps one row per record. A record that fails again has its error
// replaced and its retry count bumped.
func (r *PostgresRepo) Save(ctx context.Context, job *Job) error {
	query := `INSERT INTO failed_enrichments (record_id, record_name, run_id, error) VALUES ($1, $2, $3, $4)
		ON CONFLICT (record_id) DO UPDATE SET run_id = EXCLUDED.run_id, error = EXCLUDED.error, retries = failed_enrichments.retries + 1
		RETURNING id, created_at, retries`
	return r.db.QueryRowContext(ctx, query, job.RecordID, job.RecordName, job.RunID, job.Error).Scan(&job.ID, &job.CreatedAt, &job.Retries)
}

func (r *PostgresRepo) List(ctx context.Context) ([]Job, error) {
	query := `SELECT id, record_id, record_name, run_id, error, retries, created_at FROM failed_enrichments ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.RecordID, &j.RecordName, &j.RunID, &j.Error, &j.Retries, &j.CreatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	j := &Job{}
	query := `SELECT id, record_id, record_name, run_id, error, retries, created_at FROM failed_enrichments WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&j.ID, &j.RecordID, &j.RecordName, &j.RunID, &j.Error, &j.Retries, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM failed_enrichments WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM failed_enrichments`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}

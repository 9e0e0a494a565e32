package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/example/aal-logistics/api-go/internal/model"
)

const jobColumns = `id, client_id, job_number, job_type, description, created_at, updated_at`

func (s *Store) CreateJob(ctx context.Context, job model.Job) (model.Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.CreatedAt

	_, err := s.exec(ctx, `
		INSERT INTO jobs (id, client_id, job_number, job_type, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.ClientID, job.JobNumber, string(job.JobType), job.Description, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return model.Job{}, fmt.Errorf("create job %s: %w", job.JobNumber, err)
	}
	return job, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (model.Job, error) {
	var job model.Job
	if err := s.get(ctx, &job, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id); err != nil {
		return model.Job{}, err
	}
	return job, nil
}

func (s *Store) ListJobs(ctx context.Context, filter model.JobFilter) ([]model.Job, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	var (
		where []string
		args  []any
	)
	if filter.JobType != nil {
		where = append(where, "job_type = ?")
		args = append(args, string(*filter.JobType))
	}
	if filter.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	out := []model.Job{}
	if err := s.selectAll(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// JobNumbersWithPrefix returns every stored job number starting with prefix.
// Callers must still check each value: LIKE is case-insensitive on sqlite.
func (s *Store) JobNumbersWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var numbers []string
	err := s.selectAll(ctx, &numbers,
		`SELECT job_number FROM jobs WHERE job_number LIKE ? ESCAPE '\'`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("scan bucket %s: %w", prefix, err)
	}
	return numbers, nil
}

// ListJobsByType returns jobs whose type is one of types, oldest first.
func (s *Store) ListJobsByType(ctx context.Context, types []model.JobType) ([]model.Job, error) {
	if len(types) == 0 {
		return nil, nil
	}
	raw := make([]string, len(types))
	for i, t := range types {
		raw[i] = string(t)
	}
	query, args, err := sqlx.In(`SELECT `+jobColumns+` FROM jobs WHERE job_type IN (?) ORDER BY created_at ASC, id ASC`, raw)
	if err != nil {
		return nil, err
	}
	out := []model.Job{}
	if err := s.selectAll(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListLegacyJobs returns every job still carrying a legacy type, oldest first.
func (s *Store) ListLegacyJobs(ctx context.Context) ([]model.Job, error) {
	return s.ListJobsByType(ctx, model.LegacyTypes())
}

// ReclassifyJob sets type and number together, but only while the job still
// has type from. It reports false when nothing matched.
func (s *Store) ReclassifyJob(ctx context.Context, id string, from, to model.JobType, number string) (bool, error) {
	res, err := s.exec(ctx, `
		UPDATE jobs
		SET job_type = ?, job_number = ?, updated_at = ?
		WHERE id = ? AND job_type = ?
	`, string(to), number, time.Now().UTC(), id, string(from))
	if err != nil {
		return false, fmt.Errorf("reclassify job %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, translate(err)
	}
	return rows > 0, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

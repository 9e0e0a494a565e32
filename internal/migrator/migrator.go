// Package migrator relabels jobs that still carry a legacy job type and gives
// them a freshly allocated number in the canonical type's bucket.
//
// Every job is handled in its own transaction, so a failed record is reported
// and skipped without touching the others, and re-running the batch only
// picks up jobs that are still legacy.
package migrator

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/aal-logistics/api-go/internal/allocator"
	"github.com/example/aal-logistics/api-go/internal/metrics"
	"github.com/example/aal-logistics/api-go/internal/model"
)

type Store interface {
	allocator.NumberSource
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	ListLegacyJobs(ctx context.Context) ([]model.Job, error)
	ReclassifyJob(ctx context.Context, id string, from, to model.JobType, number string) (bool, error)
}

type Config struct {
	// Mapping defaults to DefaultMapping.
	Mapping Mapping
	// BucketByCreationYear numbers jobs in the bucket of the year they were
	// created instead of the year the migration runs.
	BucketByCreationYear bool
	// MaxAttempts bounds allocations per job when the number is taken.
	MaxAttempts int
	Now         func() time.Time
	Logger      logrus.FieldLogger
}

type Migrator struct {
	store       Store
	alloc       *allocator.Allocator
	mapping     Mapping
	byCreation  bool
	maxAttempts int
	now         func() time.Time
	log         logrus.FieldLogger
}

func New(store Store, cfg Config) (*Migrator, error) {
	if cfg.Mapping == nil {
		cfg.Mapping = DefaultMapping()
	}
	if err := cfg.Mapping.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Migrator{
		store:       store,
		alloc:       allocator.New(store),
		mapping:     cfg.Mapping,
		byCreation:  cfg.BucketByCreationYear,
		maxAttempts: cfg.MaxAttempts,
		now:         cfg.Now,
		log:         cfg.Logger,
	}, nil
}

type Outcome string

const (
	Migrated Outcome = "migrated"
	Skipped  Outcome = "skipped"
	Failed   Outcome = "failed"
)

type Failure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Assignment records what a migrated job looked like before and after.
type Assignment struct {
	ID         string        `json:"id"`
	FromType   model.JobType `json:"fromType"`
	ToType     model.JobType `json:"toType"`
	FromNumber string        `json:"fromNumber"`
	ToNumber   string        `json:"toNumber"`
}

type Report struct {
	StartedAt   time.Time    `json:"startedAt"`
	FinishedAt  time.Time    `json:"finishedAt"`
	Migrated    []string     `json:"migrated"`
	Skipped     []string     `json:"skipped"`
	Failed      []Failure    `json:"failed"`
	Assignments []Assignment `json:"assignments"`
}

func newReport(start time.Time) Report {
	return Report{
		StartedAt:   start,
		Migrated:    []string{},
		Skipped:     []string{},
		Failed:      []Failure{},
		Assignments: []Assignment{},
	}
}

// MigrateAll migrates every legacy job, oldest first. Per-record failures are
// collected in the report. A systemic failure stops the batch and is returned
// together with the partial report.
func (m *Migrator) MigrateAll(ctx context.Context) (Report, error) {
	report := newReport(m.now().UTC())

	legacy, err := m.store.ListLegacyJobs(ctx)
	if err != nil {
		report.FinishedAt = m.now().UTC()
		return report, fmt.Errorf("list legacy jobs: %w", err)
	}
	m.log.WithField("count", len(legacy)).Info("job type migration started")

	for _, job := range legacy {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = m.now().UTC()
			return report, fmt.Errorf("migration interrupted before job %s: %w", job.ID, err)
		}

		entry := m.log.WithFields(logrus.Fields{"job_id": job.ID, "job_number": job.JobNumber, "job_type": job.JobType})
		assignment, outcome, err := m.migrateOne(ctx, job)
		metrics.RecordMigrationOutcome(string(outcome))
		switch outcome {
		case Migrated:
			report.Migrated = append(report.Migrated, job.ID)
			report.Assignments = append(report.Assignments, assignment)
			entry.WithField("new_job_number", assignment.ToNumber).Info("job migrated")
		case Skipped:
			report.Skipped = append(report.Skipped, job.ID)
			entry.Info("job no longer legacy, skipped")
		case Failed:
			report.Failed = append(report.Failed, Failure{ID: job.ID, Reason: err.Error()})
			if systemic(err) {
				entry.WithError(err).Error("job type migration aborted")
				report.FinishedAt = m.now().UTC()
				return report, fmt.Errorf("migration aborted at job %s: %w", job.ID, err)
			}
			entry.WithError(err).Warn("job migration failed")
		}
	}

	m.log.WithFields(logrus.Fields{
		"migrated": len(report.Migrated),
		"skipped":  len(report.Skipped),
		"failed":   len(report.Failed),
	}).Info("job type migration finished")
	report.FinishedAt = m.now().UTC()
	return report, nil
}

func (m *Migrator) migrateOne(ctx context.Context, job model.Job) (Assignment, Outcome, error) {
	to, ok := m.mapping[job.JobType]
	if !ok {
		return Assignment{}, Failed, fmt.Errorf("%w: no canonical mapping for %s", model.ErrValidation, job.JobType)
	}
	year := m.now().Year()
	if m.byCreation {
		year = job.CreatedAt.Year()
	}

	var err error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		var (
			number  model.JobNumber
			updated bool
		)
		err = m.store.InTx(ctx, func(ctx context.Context) error {
			var err error
			number, err = m.alloc.Allocate(ctx, to, year)
			if err != nil {
				return err
			}
			updated, err = m.store.ReclassifyJob(ctx, job.ID, job.JobType, to, number.String())
			return err
		})
		if err == nil {
			if !updated {
				return Assignment{}, Skipped, nil
			}
			return Assignment{
				ID:         job.ID,
				FromType:   job.JobType,
				ToType:     to,
				FromNumber: job.JobNumber,
				ToNumber:   number.String(),
			}, Migrated, nil
		}
		if !model.Retryable(err) {
			break
		}
	}
	return Assignment{}, Failed, err
}

// systemic reports failures that will hit every remaining record too.
func systemic(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone)
}

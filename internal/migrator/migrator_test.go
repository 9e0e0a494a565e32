package migrator_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/aal-logistics/api-go/internal/logging"
	"github.com/example/aal-logistics/api-go/internal/migrator"
	"github.com/example/aal-logistics/api-go/internal/model"
	"github.com/example/aal-logistics/api-go/internal/store"
	"github.com/example/aal-logistics/api-go/internal/store/storetest"
)

func clockAt(year int) func() time.Time {
	return func() time.Time { return time.Date(year, 2, 1, 8, 0, 0, 0, time.UTC) }
}

func newMigrator(t *testing.T, st migrator.Store, cfg migrator.Config) *migrator.Migrator {
	t.Helper()
	if cfg.Now == nil {
		cfg.Now = clockAt(2024)
	}
	cfg.Logger = logging.Discard()
	m, err := migrator.New(st, cfg)
	require.NoError(t, err)
	return m
}

func legacyJob(t *testing.T, s *store.Store, clientID, number string, typ model.JobType, created time.Time) model.Job {
	t.Helper()
	job, err := s.CreateJob(context.Background(), model.Job{ClientID: clientID, JobNumber: number, JobType: typ, CreatedAt: created})
	require.NoError(t, err)
	return job
}

func TestSeaFreightJoinsExistingBucket(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	clientID := storetest.Client(t, s, "acme")
	for i := 1; i <= 3; i++ {
		storetest.Job(t, s, clientID, fmt.Sprintf("AAL-SI-24-%03d", i), model.SeaFreightImport)
	}
	job := legacyJob(t, s, clientID, "SEA-0042", model.SeaFreight, time.Date(2023, 11, 3, 0, 0, 0, 0, time.UTC))

	report, err := newMigrator(t, s, migrator.Config{}).MigrateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, report.Migrated)
	assert.Empty(t, report.Failed)
	require.Len(t, report.Assignments, 1)
	assert.Equal(t, migrator.Assignment{
		ID:         job.ID,
		FromType:   model.SeaFreight,
		ToType:     model.SeaFreightImport,
		FromNumber: "SEA-0042",
		ToNumber:   "AAL-SI-24-004",
	}, report.Assignments[0])

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SeaFreightImport, got.JobType)
	assert.Equal(t, "AAL-SI-24-004", got.JobNumber)
}

func TestExecutionYearDiffersFromCreationYear(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	clientID := storetest.Client(t, s, "acme")
	storetest.Job(t, s, clientID, "AAL-SI-24-001", model.SeaFreightImport)
	job := legacyJob(t, s, clientID, "SEA-1", model.SeaFreight, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	_, err := newMigrator(t, s, migrator.Config{Now: clockAt(2025)}).MigrateAll(ctx)
	require.NoError(t, err)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "AAL-SI-25-001", got.JobNumber)
}

func TestBucketByCreationYear(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	clientID := storetest.Client(t, s, "acme")
	storetest.Job(t, s, clientID, "AAL-AI-23-001", model.AirFreightImport)
	job := legacyJob(t, s, clientID, "AIR-7", model.AirFreight, time.Date(2023, 7, 9, 0, 0, 0, 0, time.UTC))

	_, err := newMigrator(t, s, migrator.Config{BucketByCreationYear: true, Now: clockAt(2025)}).MigrateAll(ctx)
	require.NoError(t, err)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "AAL-AI-23-002", got.JobNumber)
}

func TestMigratesOldestFirstAndLeavesCanonicalJobsAlone(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	clientID := storetest.Client(t, s, "acme")
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	newer := legacyJob(t, s, clientID, "ROAD-2", model.RoadFreight, base.Add(48*time.Hour))
	older := legacyJob(t, s, clientID, "ROAD-1", model.RoadFreight, base)
	air := legacyJob(t, s, clientID, "AIR-1", model.AirFreight, base.Add(24*time.Hour))
	canonical := storetest.Job(t, s, clientID, "AAL-RE-24-001", model.RoadFreightExport)

	report, err := newMigrator(t, s, migrator.Config{}).MigrateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{older.ID, air.ID, newer.ID}, report.Migrated)

	want := map[string]string{
		older.ID:     "AAL-RI-24-001",
		newer.ID:     "AAL-RI-24-002",
		air.ID:       "AAL-AI-24-001",
		canonical.ID: "AAL-RE-24-001",
	}
	for id, number := range want {
		got, err := s.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, number, got.JobNumber)
		assert.False(t, got.JobType.IsLegacy())
	}

	legacy, err := s.ListLegacyJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, legacy)
}

func TestSecondRunIsNoOp(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	clientID := storetest.Client(t, s, "acme")
	legacyJob(t, s, clientID, "AIR-1", model.AirFreight, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	legacyJob(t, s, clientID, "SEA-1", model.SeaFreight, time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC))
	m := newMigrator(t, s, migrator.Config{})

	first, err := m.MigrateAll(ctx)
	require.NoError(t, err)
	assert.Len(t, first.Migrated, 2)

	second, err := m.MigrateAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.Migrated)
	assert.Empty(t, second.Failed)
	assert.Empty(t, second.Skipped)
}

func TestCustomMapping(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	clientID := storetest.Client(t, s, "acme")
	job := legacyJob(t, s, clientID, "AIR-1", model.AirFreight, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))

	mapping := migrator.DefaultMapping()
	mapping[model.AirFreight] = model.AirFreightExport
	_, err := newMigrator(t, s, migrator.Config{Mapping: mapping}).MigrateAll(ctx)
	require.NoError(t, err)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AirFreightExport, got.JobType)
	assert.Equal(t, "AAL-AE-24-001", got.JobNumber)
}

func TestNewRejectsPartialMapping(t *testing.T) {
	_, err := migrator.New(storetest.New(t), migrator.Config{Mapping: migrator.Mapping{model.AirFreight: model.AirFreightImport}})
	assert.ErrorIs(t, err, model.ErrValidation)
}

// flakyStore injects failures into ReclassifyJob for chosen job ids.
type flakyStore struct {
	*store.Store
	failures map[string][]error
}

func (f *flakyStore) ReclassifyJob(ctx context.Context, id string, from, to model.JobType, number string) (bool, error) {
	if errs := f.failures[id]; len(errs) > 0 {
		f.failures[id] = errs[1:]
		return false, errs[0]
	}
	return f.Store.ReclassifyJob(ctx, id, from, to, number)
}

func TestFailedRecordDoesNotStopBatch(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	clientID := storetest.Client(t, s, "acme")
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	a := legacyJob(t, s, clientID, "A", model.AirFreight, base)
	b := legacyJob(t, s, clientID, "B", model.AirFreight, base.Add(time.Hour))
	c := legacyJob(t, s, clientID, "C", model.AirFreight, base.Add(2*time.Hour))

	flaky := &flakyStore{Store: s, failures: map[string][]error{
		b.ID: {fmt.Errorf("%w: disk I/O error", model.ErrPersistence)},
	}}
	m := newMigrator(t, flaky, migrator.Config{})

	report, err := m.MigrateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, c.ID}, report.Migrated)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, b.ID, report.Failed[0].ID)
	assert.Contains(t, report.Failed[0].Reason, "disk I/O error")

	// b kept its legacy state; a second run resumes with it alone
	got, err := s.GetJob(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AirFreight, got.JobType)
	assert.Equal(t, "B", got.JobNumber)

	report, err = m.MigrateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, report.Migrated)
	assert.Equal(t, "AAL-AI-24-003", report.Assignments[0].ToNumber)
}

func TestUniquenessConflictIsRetried(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	clientID := storetest.Client(t, s, "acme")
	job := legacyJob(t, s, clientID, "SEA-1", model.SeaFreight, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))

	flaky := &flakyStore{Store: s, failures: map[string][]error{
		job.ID: {model.ErrUniquenessConflict},
	}}
	report, err := newMigrator(t, flaky, migrator.Config{}).MigrateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, report.Migrated)
}

func TestSerializationFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	clientID := storetest.Client(t, s, "acme")
	job := legacyJob(t, s, clientID, "AIR-9", model.AirFreight, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))

	flaky := &flakyStore{Store: s, failures: map[string][]error{
		job.ID: {fmt.Errorf("%w: pq: could not serialize access", model.ErrSerializationFailure)},
	}}
	report, err := newMigrator(t, flaky, migrator.Config{}).MigrateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, report.Migrated)
	assert.Empty(t, report.Failed)
}

func TestConflictsBeyondMaxAttemptsFailRecord(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	clientID := storetest.Client(t, s, "acme")
	job := legacyJob(t, s, clientID, "SEA-1", model.SeaFreight, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))

	flaky := &flakyStore{Store: s, failures: map[string][]error{
		job.ID: {model.ErrUniquenessConflict, model.ErrUniquenessConflict},
	}}
	report, err := newMigrator(t, flaky, migrator.Config{MaxAttempts: 2}).MigrateAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Migrated)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, job.ID, report.Failed[0].ID)
}

func TestSystemicFailureAbortsWithPartialReport(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	clientID := storetest.Client(t, s, "acme")
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	a := legacyJob(t, s, clientID, "A", model.RoadFreight, base)
	b := legacyJob(t, s, clientID, "B", model.RoadFreight, base.Add(time.Hour))
	c := legacyJob(t, s, clientID, "C", model.RoadFreight, base.Add(2*time.Hour))

	flaky := &flakyStore{Store: s, failures: map[string][]error{
		b.ID: {fmt.Errorf("%w: %w", model.ErrPersistence, driver.ErrBadConn)},
	}}
	report, err := newMigrator(t, flaky, migrator.Config{}).MigrateAll(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, driver.ErrBadConn))
	assert.Equal(t, []string{a.ID}, report.Migrated)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, b.ID, report.Failed[0].ID)

	got, err := s.GetJob(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoadFreight, got.JobType, "records after the abort stay untouched")
}

func TestCancelledContextStopsBatch(t *testing.T) {
	s := storetest.New(t)
	clientID := storetest.Client(t, s, "acme")
	legacyJob(t, s, clientID, "A", model.RoadFreight, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newMigrator(t, s, migrator.Config{}).MigrateAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

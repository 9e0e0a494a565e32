package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/aal-logistics/api-go/internal/migrator"
	"github.com/example/aal-logistics/api-go/internal/model"
	"github.com/example/aal-logistics/api-go/internal/store"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()
	assert.Equal(t, "aal-api", cmd.Use)
	assert.Equal(t, version, cmd.Version)

	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
		assert.NotNil(t, c.RunE, c.Name())
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate-job-types"])
	assert.True(t, names["next-job-number"])
}

func TestMigrateCommandFlags(t *testing.T) {
	cmd := buildMigrateCommand()
	mapping := cmd.Flags().Lookup("mapping")
	require.NotNil(t, mapping)
	assert.Equal(t, "m", mapping.Shorthand)
	assert.NotNil(t, cmd.Flags().Lookup("by-creation-year"))
}

// seed prepares a sqlite database in a temp data dir and points the
// environment at it.
func seed(t *testing.T, fn func(ctx context.Context, s *store.Store)) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AAL_DATA_DIR", dir)
	t.Setenv("AAL_LOG_LEVEL", "error")

	ctx := context.Background()
	s, err := store.Open(ctx, store.DriverSQLite, filepath.Join(dir, "aal.db"), store.Options{})
	require.NoError(t, err)
	fn(ctx, s)
	require.NoError(t, s.Close())
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := BuildCLI()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNextJobNumberCommand(t *testing.T) {
	seed(t, func(ctx context.Context, s *store.Store) {
		c, err := s.CreateClient(ctx, model.Client{Name: "acme"})
		require.NoError(t, err)
		_, err = s.CreateJob(ctx, model.Job{ClientID: c.ID, JobNumber: "AAL-AE-24-011", JobType: model.AirFreightExport})
		require.NoError(t, err)
	})

	out, err := run(t, "next-job-number", "--type", "AIR_FREIGHT_EXPORT", "--year", "2024")
	require.NoError(t, err)
	assert.Equal(t, "AAL-AE-24-012\n", out)

	_, err = run(t, "next-job-number", "--type", "AIR_FREIGHT")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestMigrateJobTypesCommand(t *testing.T) {
	var legacy model.Job
	dir := seed(t, func(ctx context.Context, s *store.Store) {
		c, err := s.CreateClient(ctx, model.Client{Name: "acme"})
		require.NoError(t, err)
		legacy, err = s.CreateJob(ctx, model.Job{
			ClientID:  c.ID,
			JobNumber: "ROAD-17",
			JobType:   model.RoadFreight,
			CreatedAt: time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	})

	out, err := run(t, "migrate-job-types", "--by-creation-year")
	require.NoError(t, err)

	var report migrator.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.Equal(t, []string{legacy.ID}, report.Migrated)
	require.Len(t, report.Assignments, 1)
	assert.Equal(t, "AAL-RI-22-001", report.Assignments[0].ToNumber)

	entries, err := os.ReadDir(filepath.Join(dir, "reports", "migration"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	out, err = run(t, "migrate-job-types")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.Empty(t, report.Migrated)
}

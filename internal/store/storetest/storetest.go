// Package storetest opens throwaway in-memory stores for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/aal-logistics/api-go/internal/model"
	"github.com/example/aal-logistics/api-go/internal/store"
)

// New returns a migrated in-memory sqlite store closed at test cleanup.
func New(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.DriverSQLite, ":memory:", store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Client inserts a client and returns its id.
func Client(t testing.TB, s *store.Store, name string) string {
	t.Helper()
	c, err := s.CreateClient(context.Background(), model.Client{Name: name, Email: name + "@example.com"})
	require.NoError(t, err)
	return c.ID
}

// Job inserts a job with a fixed number and type.
func Job(t testing.TB, s *store.Store, clientID, number string, jobType model.JobType) model.Job {
	t.Helper()
	job, err := s.CreateJob(context.Background(), model.Job{ClientID: clientID, JobNumber: number, JobType: jobType})
	require.NoError(t, err)
	return job
}

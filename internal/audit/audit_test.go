package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	run, err := s.BeginRun(ctx, "transform")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "running", run.Status)

	require.NoError(t, s.FinishRun(ctx, run.ID, "complete", "files=2 skips=1"))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "complete", runs[0].Status)
	assert.Equal(t, "files=2 skips=1", runs[0].Summary)
	require.NotNil(t, runs[0].FinishedAt)
}

func TestFinishUnknownRun(t *testing.T) {
	s := openTestStore(t)
	err := s.FinishRun(context.Background(), "nope", "complete", "")
	require.Error(t, err)
}

func TestRecordAndListEvents(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	run, err := s.BeginRun(ctx, "transform")
	require.NoError(t, err)

	require.NoError(t, s.RecordEvent(ctx, run.ID, KindSkip, "demanda_2021.xlsx", "row 14: unparseable date"))
	require.NoError(t, s.RecordEvent(ctx, run.ID, KindConflict, "year 2021", "2021-01-01 00:00:00 EPSA R summed"))

	events, err := s.ListEvents(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, KindSkip, events[0].Kind)
	assert.Equal(t, KindConflict, events[1].Kind)
	assert.Equal(t, run.ID, events[0].RunID)
}

func TestListRunsOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := s.BeginRun(ctx, "normalize")
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestListEventsEmpty(t *testing.T) {
	s := openTestStore(t)
	events, err := s.ListEvents(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, events)
}

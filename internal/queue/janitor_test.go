package queue

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qforge-dev/qforge/internal/storage"
)

// TestJanitor_SweepKeepsFreshData verifies a sweep never touches rows inside
// the retention window.
func TestJanitor_SweepKeepsFreshData(t *testing.T) {
	jobsDB := testJobsDB(t)
	resultsDB, err := storage.New(storage.Config{
		Path:    filepath.Join(t.TempDir(), "results.db"),
		Profile: storage.ProfileStandard,
		Name:    "results",
	})
	require.NoError(t, err)
	require.NoError(t, resultsDB.Migrate())
	t.Cleanup(func() { _ = resultsDB.Close() })

	manager := NewManager(jobsDB, nil, zerolog.Nop())
	results := storage.NewResultStore(resultsDB, zerolog.Nop())

	id, err := manager.Enqueue(testCircuit(), testConfig())
	require.NoError(t, err)
	require.NoError(t, manager.Cancel(id))

	j := NewJanitor(manager, results, jobsDB, resultsDB, 24, zerolog.Nop())
	j.Sweep()

	_, err = manager.Get(id)
	assert.NoError(t, err)
}

// TestJanitor_DisabledRetention verifies a non-positive window leaves the
// janitor idle.
func TestJanitor_DisabledRetention(t *testing.T) {
	jobsDB := testJobsDB(t)
	manager := NewManager(jobsDB, nil, zerolog.Nop())
	results := storage.NewResultStore(jobsDB, zerolog.Nop())

	j := NewJanitor(manager, results, jobsDB, jobsDB, 0, zerolog.Nop())
	require.NoError(t, j.Start())
	j.Stop()
}

package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersions_SortedAndEmbedded(t *testing.T) {
	versions, err := Versions()
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	assert.Equal(t, "0001_users", versions[0])
	assert.Contains(t, versions, "0002_batch_jobs")
	assert.IsIncreasing(t, versions)
}

func TestBatchJobsMigration_DeclaresActiveIndex(t *testing.T) {
	raw, err := migrationsFS.ReadFile("migrations/0002_batch_jobs.sql")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "batch_jobs_one_active_per_user_idx")
	assert.Contains(t, string(raw), "batch_jobs_finished_terminal_chk")
}

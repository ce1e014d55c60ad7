package reliability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testingpkg "github.com/aristath/mcvqe/internal/testing"
)

func TestDailyMaintenanceJob(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "runs")
	defer cleanup()

	tests := []struct {
		name    string
		free    uint64
		freeErr error
		wantErr bool
	}{
		{"plenty of space", 100e9, nil, false},
		{"low space only warns", 2e9, nil, false},
		{"critical space halts", 1e8, nil, true},
		{"stat failure", 0, errors.New("no fs"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewDailyMaintenanceJob(db, t.TempDir(), testLogger())
			job.diskFree = func(string) (uint64, error) { return tt.free, tt.freeErr }

			err := job.Run()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Equal(t, "daily_maintenance", NewDailyMaintenanceJob(db, "", testLogger()).Name())
}

func TestWeeklyMaintenanceJob(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "runs")
	defer cleanup()

	job := NewWeeklyMaintenanceJob(db, testLogger())
	require.NoError(t, job.Run())
	assert.Equal(t, "weekly_maintenance", job.Name())
}

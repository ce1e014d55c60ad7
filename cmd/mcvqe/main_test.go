package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/mcvqe/internal/modules/chromophore"
	"github.com/aristath/mcvqe/internal/modules/mcvqe"
	testingpkg "github.com/aristath/mcvqe/internal/testing"
)

func writeSites(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sites.txt")
	require.NoError(t, os.WriteFile(path, []byte(testingpkg.SiteFileText(testingpkg.NewSiteFixtures(n))), 0644))
	return path
}

// splitOutput separates the spectrum block from the trailing metadata JSON.
func splitOutput(t *testing.T, out string) (string, map[string]interface{}) {
	t.Helper()
	idx := strings.Index(out, "{")
	require.GreaterOrEqual(t, idx, 0, out)
	var md map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out[idx:]), &md))
	return out[:idx], md
}

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{"-data", "x.txt", "-n", "3", "-cyclic", "-interference=false", "-optimizer", "grid", "-v", "2"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "x.txt", o.dataPath)
	assert.Equal(t, 3, o.n)
	assert.True(t, o.cyclic)
	assert.False(t, o.interference)
	assert.Equal(t, "grid", o.optimizer)
	assert.Equal(t, 2, o.verbosity)

	o, err = parseFlags(nil, io.Discard)
	require.NoError(t, err)
	assert.True(t, o.interference)
	assert.Equal(t, "nelder-mead", o.optimizer)
	assert.Equal(t, 200, o.maxIter)

	_, err = parseFlags([]string{"-unknown"}, io.Discard)
	assert.Error(t, err)
}

func TestParseParams(t *testing.T) {
	x, err := parseParams("")
	require.NoError(t, err)
	assert.Nil(t, x)

	x, err = parseParams("0.1, -2,3e-1")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, -2, 0.3}, x)

	_, err = parseParams("1,abc")
	assert.Error(t, err)
}

func TestRun_Optimizes(t *testing.T) {
	var out bytes.Buffer
	o := cliOptions{
		dataPath:     writeSites(t, 2),
		n:            2,
		interference: true,
		optimizer:    "grid",
		verbosity:    0,
	}

	require.NoError(t, run(context.Background(), o, &out, zerolog.Nop()))

	spectrum, md := splitOutput(t, out.String())
	lines := strings.Split(strings.TrimSpace(spectrum), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "MC-VQE energy spectrum", lines[0])

	for _, key := range []string{"opt-average-energy", "circuit-depth", "n-gates", "opt-params", "opt-spectrum"} {
		assert.Contains(t, md, key)
	}
	params, ok := md["opt-params"].([]interface{})
	require.True(t, ok)
	assert.Len(t, params, 6)
}

func TestRun_EvaluateFixedParameters(t *testing.T) {
	var out bytes.Buffer
	o := cliOptions{
		dataPath:  writeSites(t, 2),
		n:         2,
		optimizer: "grid",
		params:    "0,0,0,0,0,0",
	}

	require.NoError(t, run(context.Background(), o, &out, zerolog.Nop()))

	spectrum, md := splitOutput(t, out.String())
	assert.Empty(t, strings.TrimSpace(spectrum))
	assert.NotContains(t, md, "opt-spectrum")
	assert.Equal(t, []interface{}{0.0, 0.0, 0.0, 0.0, 0.0, 0.0}, md["opt-params"])
}

func TestRun_Errors(t *testing.T) {
	path := writeSites(t, 2)

	tests := []struct {
		name string
		o    cliOptions
		is   error
	}{
		{"missing file", cliOptions{dataPath: filepath.Join(t.TempDir(), "none.txt"), n: 2, optimizer: "grid"}, chromophore.ErrMissingData},
		{"too few sites", cliOptions{dataPath: path, n: 3, optimizer: "grid"}, chromophore.ErrMissingData},
		{"bad optimizer", cliOptions{dataPath: path, n: 2, optimizer: "simplex"}, mcvqe.ErrInvalidOptions},
		{"bad params", cliOptions{dataPath: path, n: 2, optimizer: "grid", params: "x"}, mcvqe.ErrInvalidOptions},
		{"wrong param count", cliOptions{dataPath: path, n: 2, optimizer: "grid", params: "1,2"}, mcvqe.ErrInvalidOptions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), tt.o, io.Discard, zerolog.Nop())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)
		})
	}
}

package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/racelab/internal/scenarios"
)

func TestListText(t *testing.T) {
	out, _, err := executeRoot(t, "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(scenarios.Names())+1)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, out, "buggy,fixed,atomic")
	assert.Contains(t, out, "Race (flaky)")
	assert.Contains(t, out, "Deadlock")
}

func TestListJSON(t *testing.T) {
	out, _, err := executeRoot(t, "--format", "json", "list")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   []struct {
			Name  string   `json:"name"`
			Modes []string `json:"modes"`
			Flaky bool     `json:"flaky"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, len(scenarios.Names()))
	for _, e := range resp.Data {
		assert.Contains(t, e.Modes, "buggy", e.Name)
		assert.Contains(t, e.Modes, "fixed", e.Name)
	}
}

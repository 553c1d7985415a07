package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/aretw0/mintline/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mintline version dev")
}

func TestIssueThenManage(t *testing.T) {
	t.Setenv("MINTLINE_SIGNER_MODE", "memory")
	t.Setenv("MINTLINE_STORE_DRIVER", "file")
	t.Setenv("MINTLINE_STORE_DIR", t.TempDir())
	t.Setenv("MINTLINE_POLL_INTERVAL", "10ms")
	t.Setenv("MINTLINE_LOG_LEVEL", "error")

	out, err := run(t, "issue",
		"--creator", "GCREATOR",
		"--code", "song",
		"--name", "My Song",
		"--supply", "1000",
		"--tier", "vip",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "SUCCESS")
	assert.Contains(t, out, "1500 bps")

	out, err = run(t, "workflow", "ls", "--json")
	require.NoError(t, err)
	var states []*domain.WorkflowState
	require.NoError(t, json.Unmarshal([]byte(out), &states))
	require.Len(t, states, 1)
	assert.Equal(t, domain.StageSuccess, states[0].Stage)
	assert.Equal(t, "SONG", states[0].Request.AssetCode)
	id := states[0].ID

	out, err = run(t, "workflow", "inspect", id, "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Workflow "+id)
	assert.Contains(t, out, "850")

	out, err = run(t, "workflow", "rm", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed workflow '"+id+"'")

	_, err = run(t, "workflow", "inspect", id)
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
}

func TestIssue_InvalidTier(t *testing.T) {
	_, err := run(t, "issue",
		"--creator", "GCREATOR",
		"--code", "ABC",
		"--name", "Alpha",
		"--supply", "10",
		"--tier", "platinum",
	)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "tier")
}

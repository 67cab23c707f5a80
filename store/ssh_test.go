package store

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plansync/report"
)

// exitErr mimics the exit-status error a remote session returns.
type exitErr struct{ status int }

func (e exitErr) Error() string   { return fmt.Sprintf("Process exited with status %d", e.status) }
func (e exitErr) ExitStatus() int { return e.status }

func TestClassifyRemoteErr(t *testing.T) {
	err := classifyRemoteErr(exitErr{status: 127}, "sh: sha256sum: not found\n")
	assert.Equal(t, report.CodeMissingTool, report.CodeOf(err))
	assert.Contains(t, err.Error(), "not found")

	err = classifyRemoteErr(exitErr{status: 1}, "mkdir: permission denied")
	assert.Equal(t, report.CodeSSHCmdFailed, report.CodeOf(err))

	// an already classified error (a timeout) passes through untouched
	timeout := report.Errf(report.CodeSSHCmdFailed, "remote command timed out after 30s")
	assert.Equal(t, timeout, classifyRemoteErr(timeout, ""))
}

func TestDigestMissingToolIsChecksumUnavailable(t *testing.T) {
	runErr := classifyRemoteErr(exitErr{status: 127}, "sh: sha256sum: not found")
	_, err := digestFromOutput("", runErr)
	require.Error(t, err)
	assert.Equal(t, report.CodeChecksumUnavailable, report.CodeOf(err))
}

func TestDigestFromOutput(t *testing.T) {
	want := strings.Repeat("a", 64)
	d, err := digestFromOutput(want+"  plans/inbox/plan.json.part\n", nil)
	require.NoError(t, err)
	assert.Equal(t, want, d)

	_, err = digestFromOutput("garbage output\n", nil)
	assert.Equal(t, report.CodeChecksumUnavailable, report.CodeOf(err))

	other := report.Errf(report.CodeSSHCmdFailed, "session failed")
	_, err = digestFromOutput("", other)
	assert.Equal(t, report.CodeSSHCmdFailed, report.CodeOf(err))
}

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plansync/engine"
	"plansync/report"
	"plansync/store"
)

func TestFlagsMapToEngineOptions(t *testing.T) {
	require.NoError(t, rootCmd.PersistentFlags().Parse([]string{
		"--transport", "mount",
		"--root", "/tmp/lr",
		"--mount", "/tmp/usb",
		"--remote-root", "/plans",
		"--timeout", "7",
		"--dry-run",
		"--ack-remote",
		"--jobs", "4",
	}))

	o := buildOptions()
	assert.Equal(t, store.KindMount, o.Transport)
	assert.Equal(t, "/tmp/lr", o.LocalRoot)
	assert.Equal(t, "/tmp/usb", o.Mount)
	assert.Equal(t, "/plans", o.RemoteRoot)
	assert.Equal(t, 7*time.Second, o.Timeout)
	assert.True(t, o.DryRun)
	assert.True(t, o.AckRemote)
	assert.Equal(t, 4, o.Jobs)
	assert.True(t, o.Archive) // default on
}

func TestEveryOperationHasACommand(t *testing.T) {
	want := map[string]bool{
		string(engine.OpSend):      false,
		string(engine.OpReceive):   false,
		string(engine.OpProvision): false,
		string(engine.OpDiscover):  false,
		string(engine.OpProbe):     false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Use]; ok {
			want[c.Use] = true
		}
	}
	for op, seen := range want {
		assert.True(t, seen, op)
	}
}

func TestUsageErrorsMapOntoTaxonomy(t *testing.T) {
	err := classifyUsage(errors.New(`unknown command "defrag" for "plansync"`))
	assert.Equal(t, report.CodeUnsupported, report.CodeOf(err))

	err = classifyUsage(errors.New("unknown flag: --frob"))
	assert.Equal(t, report.CodeMissingArg, report.CodeOf(err))
}

func TestUsageFailureStillEmitsOneRecord(t *testing.T) {
	var buf bytes.Buffer
	rec := report.Fail(classifyUsage(errors.New("unknown flag: --frob")), "")
	require.NoError(t, report.Emit(&buf, rec, time.Now()))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "error", got["status"])
	assert.Equal(t, string(report.CodeMissingArg), got["code"])
}

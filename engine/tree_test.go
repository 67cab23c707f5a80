package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plansync/store"
)

func TestProvisionLocalCreatesLayout(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, ProvisionLocal(root, false))

	for _, d := range []string{DirInbox, DirOutbox, DirProcessed, DirArchive,
		StateDirName, filepath.Join(StateDirName, logsDirName)} {
		st, err := os.Stat(filepath.Join(root, d))
		require.NoError(t, err, d)
		assert.True(t, st.IsDir(), d)
	}
}

func TestProvisionLocalIsIdempotent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, ProvisionLocal(root, false))

	marker := filepath.Join(root, DirOutbox, "plan.json")
	require.NoError(t, os.WriteFile(marker, []byte("keep"), 0644))

	require.NoError(t, ProvisionLocal(root, false))
	bs, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(bs))
}

func TestProvisionLocalDryRunLeavesDataDirsAlone(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, ProvisionLocal(root, true))

	for _, d := range []string{DirInbox, DirOutbox, DirProcessed, DirArchive} {
		_, err := os.Stat(filepath.Join(root, d))
		assert.True(t, os.IsNotExist(err), d)
	}
	// the state dir still exists, the lock and log live there
	_, err := os.Stat(filepath.Join(root, StateDirName))
	assert.NoError(t, err)
}

func TestProvisionRemoteOverMount(t *testing.T) {
	usb := t.TempDir()
	m := store.NewMount(usb, "plans", time.Second)

	require.NoError(t, ProvisionRemote(m, "plans", false))
	for _, d := range []string{DirInbox, DirOutbox, DirProcessed, DirArchive, StateDirName} {
		st, err := os.Stat(filepath.Join(usb, "plans", d))
		require.NoError(t, err, d)
		assert.True(t, st.IsDir(), d)
	}
}

func TestProvisionRemoteDryRun(t *testing.T) {
	usb := t.TempDir()
	m := store.NewMount(usb, "plans", time.Second)

	require.NoError(t, ProvisionRemote(m, "plans", true))
	_, err := os.Stat(filepath.Join(usb, "plans"))
	assert.True(t, os.IsNotExist(err))
}

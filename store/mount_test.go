package store

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMount(t *testing.T) (*Mount, string) {
	usb := t.TempDir()
	return NewMount(usb, "plans", 5*time.Second), usb
}

func TestMountSendReceiveRoundtrip(t *testing.T) {
	m, usb := newTestMount(t)

	local := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, ioutil.WriteFile(local, []byte(`{"week":1}`), 0644))

	require.NoError(t, m.SendFile(local, "inbox/plan.json"))
	bs, err := ioutil.ReadFile(filepath.Join(usb, "plans", "inbox", "plan.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"week":1}`, string(bs))

	back := filepath.Join(t.TempDir(), "back.json")
	require.NoError(t, m.ReceiveFile("inbox/plan.json", back))
	bs, err = ioutil.ReadFile(back)
	require.NoError(t, err)
	assert.Equal(t, `{"week":1}`, string(bs))
}

func TestMountDigestMatchesLocal(t *testing.T) {
	m, _ := newTestMount(t)

	local := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, ioutil.WriteFile(local, []byte("17 bytes of plan\n"), 0644))
	want, err := Sha256File(local)
	require.NoError(t, err)

	require.NoError(t, m.SendFile(local, "inbox/plan.json"))
	got, err := m.Digest("inbox/plan.json")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMountRenameIsCommitPoint(t *testing.T) {
	m, usb := newTestMount(t)

	local := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, ioutil.WriteFile(local, []byte("x"), 0644))
	require.NoError(t, m.SendFile(local, "inbox/plan.json.part"))

	_, err := os.Stat(filepath.Join(usb, "plans", "inbox", "plan.json"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, m.Rename("inbox/plan.json.part", "inbox/plan.json"))
	_, err = os.Stat(filepath.Join(usb, "plans", "inbox", "plan.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(usb, "plans", "inbox", "plan.json.part"))
	assert.True(t, os.IsNotExist(err))
}

func TestMountRunCommandNotSupported(t *testing.T) {
	m, _ := newTestMount(t)
	_, err := m.RunCommand(NewCommand("true"))
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestMountReadDirMissing(t *testing.T) {
	m, _ := newTestMount(t)
	_, err := m.ReadDir("outbox")
	assert.Error(t, err)
}

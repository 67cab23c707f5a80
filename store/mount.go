package store

import (
	"io"
	"io/fs"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"plansync/report"
)

// Mount is the mounted-filesystem transport: the attached device is just a
// path, so every operation is a local filesystem call rooted under
// <mount>/<remote root>.
type Mount struct {
	mount   string
	root    string
	timeout time.Duration
}

func NewMount(mount, root string, timeout time.Duration) *Mount {
	mount, _ = filepath.Abs(mount)
	return &Mount{mount: mount, root: root, timeout: timeout}
}

func (m *Mount) Kind() Kind { return KindMount }

// MountPoint is the device's mount path, used by discovery.
func (m *Mount) MountPoint() string { return m.mount }

func (m *Mount) realPath(name string) string {
	return filepath.Join(m.mount, filepath.FromSlash(m.root), filepath.FromSlash(name))
}

func (m *Mount) HealthCheck() error {
	return checkWritableDir(m.mount)
}

func (m *Mount) SendFile(localPath, remotePath string) error {
	return runBounded(m.timeout, report.CodeSCPFailed, "copy to "+remotePath, func() error {
		return copyFile(localPath, m.realPath(remotePath))
	})
}

func (m *Mount) ReceiveFile(remotePath, localPath string) error {
	return runBounded(m.timeout, report.CodeSCPFailed, "copy from "+remotePath, func() error {
		return copyFile(m.realPath(remotePath), localPath)
	})
}

func copyFile(src, dest string) error {
	r, err := os.Open(src)
	if err != nil {
		return report.Wrap(report.CodePathNotFound, err, "%s", src)
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return report.Wrap(report.CodePathNotWritable, err, "%s", filepath.Dir(dest))
	}
	w, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return report.Wrap(report.CodePathNotWritable, err, "%s", dest)
	}
	defer w.Close()

	if _, err = io.Copy(w, r); err != nil {
		return report.Wrap(report.CodeSCPFailed, err, "copy %s to %s", src, dest)
	}
	return w.Sync()
}

func (m *Mount) ReadDir(dir string) ([]fs.FileInfo, error) {
	is, err := ioutil.ReadDir(m.realPath(dir))
	if err != nil {
		return nil, report.Wrap(report.CodePathNotFound, err, "%s", dir)
	}
	return is, nil
}

func (m *Mount) Stat(name string) (fs.FileInfo, error) {
	fi, err := os.Stat(m.realPath(name))
	if err != nil {
		return nil, report.Wrap(report.CodePathNotFound, err, "%s", name)
	}
	return fi, nil
}

func (m *Mount) Rename(old, new string) error {
	if err := os.MkdirAll(filepath.Dir(m.realPath(new)), 0755); err != nil {
		return err
	}
	return os.Rename(m.realPath(old), m.realPath(new))
}

func (m *Mount) Remove(name string) error {
	return os.Remove(m.realPath(name))
}

func (m *Mount) MkdirAll(name string) error {
	return os.MkdirAll(m.realPath(name), 0755)
}

// Digest re-reads the destination file; the device has no shell to ask.
func (m *Mount) Digest(name string) (string, error) {
	d, err := Sha256File(m.realPath(name))
	if err != nil {
		return "", report.Wrap(report.CodeChecksumUnavailable, err,
			"cannot hash %s on device", name)
	}
	return d, nil
}

func (m *Mount) RunCommand(cmd *Command) (string, error) {
	return "", ErrNotSupported
}

func (m *Mount) Close() error {
	return nil
}

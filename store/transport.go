// Package store provides the transports that reach the training device:
// a login-session transport over SSH and a mounted-filesystem transport for
// devices attached as removable storage. It also owns remote storage
// discovery and its per-host cache.
package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"plansync/report"
)

// Kind selects a transport implementation.
type Kind string

const (
	KindAuto  Kind = "auto"
	KindSSH   Kind = "ssh"
	KindMount Kind = "mount"
)

var ErrNotSupported = errors.New("operation is not supported")

// Transport is the capability surface the engine needs from either side of
// the wire. Paths are slash-separated and relative to the transport's root
// (the remote root for SSH, the remote root under the mount point for Mount).
type Transport interface {
	Kind() Kind

	// HealthCheck verifies the transport is usable before any transfer.
	HealthCheck() error

	// SendFile copies a local file to the given remote path.
	SendFile(localPath, remotePath string) error

	// ReceiveFile copies a remote file to the given local path.
	ReceiveFile(remotePath, localPath string) error

	ReadDir(dir string) ([]fs.FileInfo, error)
	Stat(name string) (fs.FileInfo, error)
	Rename(old, new string) error
	Remove(name string) error
	MkdirAll(name string) error

	// Digest returns the hex sha256 of a remote file, computed on the
	// remote side for SSH and by re-reading the file for Mount.
	Digest(name string) (string, error)

	// RunCommand executes a built command on the remote host and returns
	// its stdout. The mounted-filesystem transport returns ErrNotSupported.
	RunCommand(cmd *Command) (string, error)

	Close() error
}

// Options carries everything needed to build a transport.
type Options struct {
	Kind       Kind
	Host       string // user@host form accepted
	Port       int
	Password   string
	Mount      string // mount point of the attached device
	RemoteRoot string
	Timeout    time.Duration
}

// Resolve picks a transport. An explicit kind is honored as-is; auto prefers
// the mounted device when the mount point exists and is writable, because a
// physically attached volume needs no network, and falls back to SSH.
func Resolve(opts Options) (Transport, error) {
	switch opts.Kind {
	case KindSSH:
		if opts.Host == "" {
			return nil, report.Errf(report.CodeMissingArg, "ssh transport requires a host")
		}
		return NewSSH(opts)
	case KindMount:
		if opts.Mount == "" {
			return nil, report.Errf(report.CodeMissingArg, "mount transport requires a mount point")
		}
		if err := checkWritableDir(opts.Mount); err != nil {
			return nil, err
		}
		return NewMount(opts.Mount, opts.RemoteRoot, opts.Timeout), nil
	case KindAuto, "":
		if opts.Mount != "" {
			if err := checkWritableDir(opts.Mount); err == nil {
				logrus.Infof("auto transport: using mounted device at %s", opts.Mount)
				return NewMount(opts.Mount, opts.RemoteRoot, opts.Timeout), nil
			} else {
				logrus.Infof("auto transport: mount %s not usable: %v", opts.Mount, err)
			}
		}
		if opts.Host != "" {
			logrus.Infof("auto transport: using ssh to %s", opts.Host)
			return NewSSH(opts)
		}
		return nil, report.Errf(report.CodeNoTransport,
			"no usable mount point and no host configured")
	default:
		return nil, report.Errf(report.CodeUnsupported, "unknown transport %q", opts.Kind)
	}
}

// checkWritableDir probes a directory by creating and removing a dotfile.
// Permission bits lie on FAT-style removable media, writing is the only
// reliable test there.
func checkWritableDir(dir string) error {
	st, err := os.Stat(dir)
	if err != nil {
		return report.Wrap(report.CodePathNotFound, err, "mount point %s", dir)
	}
	if !st.IsDir() {
		return report.Errf(report.CodePathNotFound, "mount point %s is not a directory", dir)
	}
	probe := filepath.Join(dir, ".plansync-probe")
	f, err := os.OpenFile(probe, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return report.Wrap(report.CodePathNotWritable, err, "mount point %s", dir)
	}
	f.Close()
	return os.Remove(probe)
}

// runBounded runs f under a wall-clock deadline, following the engine's rule
// that a hung device is a hard failure, not a wait. A timeout carries the
// caller's code; a stalled copy and a stalled command are different failures.
func runBounded(timeout time.Duration, code report.Code, what string, f func() error) error {
	if timeout <= 0 {
		return f()
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	e := make(chan error, 1)
	go func() {
		e <- f()
	}()

	select {
	case err := <-e:
		return err
	case <-ctx.Done():
		return report.Errf(code, "%s timed out after %s", what, timeout)
	}
}

// SimpleFileInfo is a plain fs.FileInfo for entries assembled from command
// output rather than a stat call.
type SimpleFileInfo struct {
	FName    string
	FSize    int64
	FIsDir   bool
	FModTime time.Time
}

func (f SimpleFileInfo) Name() string       { return f.FName }
func (f SimpleFileInfo) Size() int64        { return f.FSize }
func (f SimpleFileInfo) Mode() fs.FileMode  { return 0644 }
func (f SimpleFileInfo) ModTime() time.Time { return f.FModTime }
func (f SimpleFileInfo) IsDir() bool        { return f.FIsDir }
func (f SimpleFileInfo) Sys() interface{}   { return nil }

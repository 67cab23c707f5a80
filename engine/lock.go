// Package engine coordinates one plansync invocation: it provisions the
// sync root, takes the root's lock, resolves a transport and runs the
// requested operation, producing exactly one report record.
package engine

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"plansync/report"
)

// Lock is an exclusive guard over a sync root. It is a directory, not a
// byte-range lock: mkdir is all-or-nothing on every filesystem this engine
// meets, including FAT volumes where advisory locks are unreliable.
type Lock struct {
	dir      string
	released bool
}

// AcquireLock takes the lock or fails immediately with LOCK_HELD. Callers
// must defer Release at the acquisition site so the lock survives no exit
// path.
func AcquireLock(root string) (*Lock, error) {
	dir := filepath.Join(root, StateDirName, "lock")
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return nil, report.Wrap(report.CodeLocalRootUnwritable, err, "%s", root)
	}

	err := os.Mkdir(dir, 0755)
	if os.IsExist(err) {
		holder := ""
		if bs, rerr := ioutil.ReadFile(filepath.Join(dir, "pid")); rerr == nil {
			holder = fmt.Sprintf(" (held by pid %s)", strings.TrimSpace(string(bs)))
		}
		return nil, report.Errf(report.CodeLockHeld, "sync root %s is locked%s", root, holder)
	}
	if err != nil {
		return nil, report.Wrap(report.CodeLocalRootUnwritable, err, "cannot lock %s", root)
	}

	if werr := ioutil.WriteFile(filepath.Join(dir, "pid"),
		[]byte(fmt.Sprintf("%d\n", os.Getpid())), 0644); werr != nil {
		logrus.Warnf("cannot write lock pid marker: %v", werr)
	}
	logrus.Debugf("acquired lock %s", dir)
	return &Lock{dir: dir}, nil
}

// Release drops the lock. Safe to call twice.
func (l *Lock) Release() {
	if l == nil || l.released {
		return
	}
	l.released = true
	_ = os.Remove(filepath.Join(l.dir, "pid"))
	if err := os.Remove(l.dir); err != nil {
		logrus.Warnf("cannot release lock %s: %v", l.dir, err)
		return
	}
	logrus.Debugf("released lock %s", l.dir)
}

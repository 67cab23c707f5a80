package engine

import (
	"errors"
	"os"
	"path"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"plansync/report"
	"plansync/store"
)

// The fixed layout of a sync root, both sides of the wire.
const (
	DirInbox     = "inbox"
	DirOutbox    = "outbox"
	DirProcessed = "processed"
	DirArchive   = "archive"

	StateDirName = ".plansync"
	logsDirName  = "logs"
)

var layout = []string{DirInbox, DirOutbox, DirProcessed, DirArchive, StateDirName}

// ProvisionLocal creates the five-directory layout under root. Idempotent;
// it never removes anything. In dry-run mode only the hidden state directory
// is created (the lock and log live there); the data directories are left
// untouched and missing ones are logged.
func ProvisionLocal(root string, dryRun bool) error {
	var merr *multierror.Error
	for _, d := range []string{StateDirName, filepath.Join(StateDirName, logsDirName)} {
		merr = multierror.Append(merr, os.MkdirAll(filepath.Join(root, d), 0755))
	}
	for _, d := range []string{DirInbox, DirOutbox, DirProcessed, DirArchive} {
		ph := filepath.Join(root, d)
		if dryRun {
			if _, err := os.Stat(ph); os.IsNotExist(err) {
				logrus.Infof("DRY-RUN would create %s", ph)
			}
			continue
		}
		merr = multierror.Append(merr, os.MkdirAll(ph, 0755))
	}
	if err := merr.ErrorOrNil(); err != nil {
		return report.Wrap(report.CodeLocalRootUnwritable, err, "cannot provision %s", root)
	}
	logrus.Debugf("provisioned local tree at %s", root)
	return nil
}

// ProvisionRemote creates the same layout on the other side: one mkdir -p
// for a login session, the local logic for a mounted device.
func ProvisionRemote(t store.Transport, remoteRoot string, dryRun bool) error {
	if dryRun {
		logrus.Infof("DRY-RUN would provision remote tree at %s", remoteRoot)
		return nil
	}

	dirs := make([]string, len(layout))
	for i, d := range layout {
		dirs[i] = path.Join(remoteRoot, d)
	}

	_, err := t.RunCommand(store.NewCommand("mkdir", "-p").Arg(dirs...))
	if errors.Is(err, store.ErrNotSupported) {
		var merr *multierror.Error
		for _, d := range layout {
			merr = multierror.Append(merr, t.MkdirAll(d))
		}
		err = merr.ErrorOrNil()
	}
	if err != nil {
		return err
	}
	logrus.Debugf("provisioned remote tree at %s", remoteRoot)
	return nil
}

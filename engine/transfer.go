package engine

import (
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"plansync/report"
	"plansync/store"
)

const stagingSuffix = ".part"

// send moves every regular file directly under the local outbox to the
// remote inbox, one at a time: hash, copy to a staging name, verify the
// destination hash, then rename. The rename is the only moment a file
// becomes visible under its final name. The first error aborts the batch.
func (e *Engine) send(t store.Transport) ([]report.TransferItem, int64, error) {
	items := []report.TransferItem{}
	var total int64

	e.cleanRemoteStaging(t, DirInbox)

	outbox := filepath.Join(e.opts.LocalRoot, DirOutbox)
	ls, err := ioutil.ReadDir(outbox)
	if err != nil {
		return items, 0, report.Wrap(report.CodePathNotFound, err, "%s", outbox)
	}

	var archiveTS string
	if e.opts.Archive && !e.opts.DryRun {
		archiveTS = ArchivePrefix(Timestamp(e.opts.NTPTime))
	}

	for _, fi := range ls {
		if !fi.Mode().IsRegular() {
			continue
		}
		name := fi.Name()
		src := filepath.Join(outbox, name)
		staging := path.Join(DirInbox, name+stagingSuffix)
		final := path.Join(DirInbox, name)

		digest, err := store.Sha256File(src)
		if err != nil {
			return items, total, report.Wrap(report.CodePathNotFound, err, "cannot hash %s", src)
		}

		if e.opts.DryRun {
			logrus.Infof("DRY-RUN would send %s (%s, sha256 %s) to %s",
				src, humanize.Bytes(uint64(fi.Size())), digest, final)
			if e.opts.Archive {
				logrus.Infof("DRY-RUN would archive %s", src)
			}
			items = append(items, report.TransferItem{
				Name: name, Size: fi.Size(), Digest: digest, Action: "sent"})
			total += fi.Size()
			continue
		}

		if err := t.SendFile(src, staging); err != nil {
			return items, total, err
		}
		if err := e.verify(t, staging, digest, name); err != nil {
			return items, total, err
		}
		if err := t.Rename(staging, final); err != nil {
			_ = t.Remove(staging)
			return items, total, err
		}
		logrus.Infof("sent %s (%s) sha256 %s", name, humanize.Bytes(uint64(fi.Size())), digest)

		if e.opts.Archive {
			e.archiveLocal(src, archiveTS, name)
		}

		items = append(items, report.TransferItem{
			Name: name, Size: fi.Size(), Digest: digest, Action: "sent"})
		total += fi.Size()
	}
	return items, total, nil
}

// receive mirrors send: remote outbox to local inbox through the same
// staging, verify, rename sequence. With AckRemote set, the verified source
// is archived on the remote side, best-effort.
func (e *Engine) receive(t store.Transport) ([]report.TransferItem, int64, error) {
	items := []report.TransferItem{}
	var total int64

	e.cleanLocalStaging()

	ls, err := t.ReadDir(DirOutbox)
	if err != nil {
		return items, 0, err
	}
	sort.Slice(ls, func(i, j int) bool { return ls[i].Name() < ls[j].Name() })

	var archiveTS string
	if e.opts.AckRemote && !e.opts.DryRun {
		archiveTS = ArchivePrefix(Timestamp(e.opts.NTPTime))
	}

	inbox := filepath.Join(e.opts.LocalRoot, DirInbox)
	for _, fi := range ls {
		name := fi.Name()
		if fi.IsDir() || strings.HasSuffix(name, stagingSuffix) {
			continue
		}
		rname := path.Join(DirOutbox, name)

		digest, err := t.Digest(rname)
		if err != nil {
			return items, total, err
		}

		if e.opts.DryRun {
			logrus.Infof("DRY-RUN would receive %s (sha256 %s) into %s",
				rname, digest, filepath.Join(inbox, name))
			if e.opts.AckRemote {
				logrus.Infof("DRY-RUN would archive remote %s", rname)
			}
			items = append(items, report.TransferItem{
				Name: name, Size: fi.Size(), Digest: digest, Action: "received"})
			total += fi.Size()
			continue
		}

		staging := filepath.Join(inbox, name+stagingSuffix)
		if err := t.ReceiveFile(rname, staging); err != nil {
			return items, total, err
		}

		st, err := os.Stat(staging)
		if err != nil {
			return items, total, report.Wrap(report.CodeSCPFailed, err, "staging %s vanished", staging)
		}
		local, err := store.Sha256File(staging)
		if err != nil {
			return items, total, report.Wrap(report.CodeChecksumUnavailable, err, "cannot hash %s", staging)
		}
		if local != digest {
			_ = os.Remove(staging)
			return items, total, report.Errf(report.CodeChecksumMismatch,
				"%s: source sha256 %s, downloaded %s", name, digest, local)
		}
		if err := os.Rename(staging, filepath.Join(inbox, name)); err != nil {
			_ = os.Remove(staging)
			return items, total, report.Wrap(report.CodeLocalRootUnwritable, err, "commit %s", name)
		}
		logrus.Infof("received %s (%s) sha256 %s", name, humanize.Bytes(uint64(st.Size())), digest)

		if e.opts.AckRemote {
			dest := path.Join(DirArchive, archiveTS+"_"+name)
			if err := t.Rename(rname, dest); err != nil {
				logrus.Warnf("cannot archive %s on remote: %v", rname, err)
			} else {
				logrus.Infof("archived remote %s as %s", rname, dest)
			}
		}

		items = append(items, report.TransferItem{
			Name: name, Size: st.Size(), Digest: digest, Action: "received"})
		total += st.Size()
	}
	return items, total, nil
}

// verify compares the destination digest of a staging artifact with the
// digest computed from the source before the copy. Any disagreement, and any
// inability to compute the destination digest, aborts the whole batch; a
// retry after a mismatch could mask a flaky link.
func (e *Engine) verify(t store.Transport, staging, want, name string) error {
	got, err := t.Digest(staging)
	if err != nil {
		_ = t.Remove(staging)
		return err
	}
	if got != want {
		_ = t.Remove(staging)
		return report.Errf(report.CodeChecksumMismatch,
			"%s: source sha256 %s, destination %s", name, want, got)
	}
	return nil
}

// archiveLocal moves a sent source into the local archive under a
// timestamp-prefixed name. Best-effort housekeeping: failure is logged and
// never fails the transfer it followed.
func (e *Engine) archiveLocal(src, ts, name string) {
	dest := filepath.Join(e.opts.LocalRoot, DirArchive, ts+"_"+name)

	var merr *multierror.Error
	merr = multierror.Append(merr, os.MkdirAll(filepath.Dir(dest), 0755))
	merr = multierror.Append(merr, os.Rename(src, dest))
	if err := merr.ErrorOrNil(); err != nil {
		logrus.Warnf("cannot archive %s: %v", src, err)
		return
	}
	logrus.Infof("archived %s as %s", src, dest)
}

// Staging artifacts from a crashed run are never authoritative; drop them
// before transferring.
func (e *Engine) cleanRemoteStaging(t store.Transport, dir string) {
	ls, err := t.ReadDir(dir)
	if err != nil {
		return
	}
	for _, fi := range ls {
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), stagingSuffix) {
			continue
		}
		if e.opts.DryRun {
			logrus.Infof("DRY-RUN would remove stale staging %s", path.Join(dir, fi.Name()))
			continue
		}
		if err := t.Remove(path.Join(dir, fi.Name())); err != nil {
			logrus.Warnf("cannot remove stale staging %s: %v", fi.Name(), err)
		}
	}
}

func (e *Engine) cleanLocalStaging() {
	parts, _ := filepath.Glob(filepath.Join(e.opts.LocalRoot, DirInbox, "*"+stagingSuffix))
	for _, p := range parts {
		if e.opts.DryRun {
			logrus.Infof("DRY-RUN would remove stale staging %s", p)
			continue
		}
		if err := os.Remove(p); err != nil {
			logrus.Warnf("cannot remove stale staging %s: %v", p, err)
		}
	}
}

package store

import (
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"plansync/report"
)

// Candidate storage roots walked on the device. $HOME expands remotely.
var candidateRoots = []string{"$HOME", "/media", "/mnt", "/run/media", "/srv", "/data"}

const discoverDepth = 2

// Discover enumerates writable storage candidates for the device behind t,
// serving from the per-host cache inside the staleness window unless refresh
// forces a live query. The verdict is "hit" or "miss".
func Discover(t Transport, opts Options, ttl time.Duration, refresh bool) ([]report.DiscoveryEntry, string, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	key := discoveryKey(opts)

	if !refresh {
		if entries, ok := readCache(key, ttl); ok {
			logrus.Infof("discovery cache hit for %s (%d entries)", key, len(entries))
			return entries, "hit", nil
		}
	}

	var entries []report.DiscoveryEntry
	var err error
	if m, ok := t.(*Mount); ok {
		entries, err = discoverMount(m.MountPoint())
	} else {
		entries, err = discoverRemote(t)
	}
	if err != nil {
		return nil, "", err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].FreeBytes != entries[j].FreeBytes {
			return entries[i].FreeBytes > entries[j].FreeBytes
		}
		return entries[i].Path < entries[j].Path
	})

	writeCache(key, ttl, entries)
	logrus.Infof("discovery found %d candidate directories for %s", len(entries), key)
	return entries, "miss", nil
}

// CachedDiscovery returns the cached candidates for opts when they are
// inside the staleness window. It never touches a transport, so callers can
// serve a warm cache without dialing the device at all.
func CachedDiscovery(opts Options, ttl time.Duration) ([]report.DiscoveryEntry, bool) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return readCache(discoveryKey(opts), ttl)
}

func discoveryKey(opts Options) string {
	if opts.Host != "" {
		return opts.Host
	}
	return "mount_" + opts.Mount
}

// discoverRemote issues one enumeration command; the per-directory report is
// assembled remotely so an unresponsive device costs one bounded round trip.
func discoverRemote(t Transport) ([]report.DiscoveryEntry, error) {
	var b strings.Builder
	b.WriteString("for r in")
	for _, r := range candidateRoots {
		if r == "$HOME" {
			b.WriteString(` "$HOME"`)
		} else {
			b.WriteString(" " + Quote(r))
		}
	}
	b.WriteString(`; do [ -d "$r" ] && find "$r" -maxdepth ` + strconv.Itoa(discoverDepth) +
		` -type d 2>/dev/null; done | while read -r d; do ` +
		`free=$(df -Pk "$d" 2>/dev/null | awk 'NR==2{print $4}'); ` +
		`owner=$(stat -c %U "$d" 2>/dev/null || stat -f %Su "$d" 2>/dev/null); ` +
		`[ -w "$d" ] && w=yes || w=no; ` +
		`printf '%s|%s|%s|%s\n' "$d" "${free:-0}" "${owner:-unknown}" "$w"; done`)

	out, err := t.RunCommand(NewCommand("sh", "-c", b.String()))
	if err != nil {
		return nil, err
	}
	return parseDiscoveryOutput(out), nil
}

func parseDiscoveryOutput(out string) []report.DiscoveryEntry {
	var entries []report.DiscoveryEntry
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(strings.TrimSpace(line), "|")
		if len(fields) != 4 || fields[0] == "" {
			continue
		}
		freeKB, _ := strconv.ParseInt(fields[1], 10, 64)
		entries = append(entries, report.DiscoveryEntry{
			Path:      fields[0],
			FreeBytes: freeKB * 1024,
			Owner:     fields[2],
			Writable:  fields[3] == "yes",
		})
	}
	return entries
}

// discoverMount walks the attached volume itself; there is no shell to ask,
// so free space and writability come from statfs and access(2).
func discoverMount(mount string) ([]report.DiscoveryEntry, error) {
	base := filepath.Clean(mount)
	var entries []report.DiscoveryEntry

	walkErr := filepath.Walk(base, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable subtree, skip
		}
		if !info.IsDir() {
			return nil
		}
		if pathDepth(base, p) > discoverDepth {
			return filepath.SkipDir
		}
		var st unix.Statfs_t
		if err := unix.Statfs(p, &st); err != nil {
			return nil
		}
		entries = append(entries, report.DiscoveryEntry{
			Path:      p,
			FreeBytes: int64(st.Bavail) * int64(st.Bsize),
			Owner:     ownerOf(info),
			Writable:  unix.Access(p, unix.W_OK) == nil,
		})
		return nil
	})
	if walkErr != nil {
		return nil, report.Wrap(report.CodePathNotFound, walkErr, "walk %s", mount)
	}
	return entries, nil
}

func pathDepth(base, p string) int {
	rel, err := filepath.Rel(base, p)
	if err != nil || rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}

func ownerOf(info os.FileInfo) string {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "unknown"
	}
	uid := strconv.Itoa(int(st.Uid))
	if u, err := user.LookupId(uid); err == nil {
		return u.Username
	}
	return uid
}

package store

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"plansync/report"
)

// DefaultCacheTTL is the staleness window of a discovery result.
const DefaultCacheTTL = 300 * time.Second

// mem fronts the on-disk cache for callers that discover repeatedly within
// one process (the desktop app keeps the engine resident).
var mem = gocache.New(DefaultCacheTTL, 2*DefaultCacheTTL)

// StateDir is the persistent per-user directory holding discovery caches and
// device profiles. PLANSYNC_HOME overrides the platform config dir.
func StateDir() string {
	home := os.Getenv("PLANSYNC_HOME")
	if home == "" {
		configDir, _ := os.UserConfigDir()
		home = filepath.Join(configDir, "plansync")
	}
	_ = os.MkdirAll(home, 0755)
	return home
}

// SanitizeHost turns a host identifier into a filesystem-safe cache key.
func SanitizeHost(host string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, host)
}

func cachePath(host string) string {
	dir := filepath.Join(StateDir(), "discovery")
	_ = os.MkdirAll(dir, 0755)
	return filepath.Join(dir, SanitizeHost(host)+".json")
}

// readCache returns the cached entries for host when they are younger than
// ttl, checking the in-process front before the per-host file.
func readCache(host string, ttl time.Duration) ([]report.DiscoveryEntry, bool) {
	if v, ok := mem.Get(SanitizeHost(host)); ok {
		return v.([]report.DiscoveryEntry), true
	}

	ph := cachePath(host)
	st, err := os.Stat(ph)
	if err != nil || time.Since(st.ModTime()) > ttl {
		return nil, false
	}
	bs, err := ioutil.ReadFile(ph)
	if err != nil {
		return nil, false
	}
	var entries []report.DiscoveryEntry
	if err := json.Unmarshal(bs, &entries); err != nil {
		logrus.Warnf("discarding corrupt discovery cache %s: %v", ph, err)
		return nil, false
	}
	return entries, true
}

// writeCache persists entries for host. Unlocked on purpose: concurrent
// writers race, the loser's entries are equivalent and time-bounded anyway.
func writeCache(host string, ttl time.Duration, entries []report.DiscoveryEntry) {
	mem.Set(SanitizeHost(host), entries, ttl)

	bs, err := json.Marshal(entries)
	if err == nil {
		err = ioutil.WriteFile(cachePath(host), bs, 0644)
	}
	if err != nil {
		logrus.Warnf("cannot write discovery cache for %s: %v", host, err)
	}
}

// FlushCache drops the cached entries for host, both layers.
func FlushCache(host string) {
	mem.Delete(SanitizeHost(host))
	_ = os.Remove(cachePath(host))
}

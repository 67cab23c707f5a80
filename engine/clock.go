package engine

import (
	"time"

	"github.com/beevik/ntp"
	"github.com/sirupsen/logrus"
)

const ntpHost = "0.beevik-ntp.pool.ntp.org"

// Timestamp returns the wall-clock time used to prefix archive entries.
// With useNTP set it asks a pool server once, because device and desktop
// clocks drift apart when the device only ever syncs over mass storage; any
// failure falls back to the local clock.
func Timestamp(useNTP bool) time.Time {
	if useNTP {
		if tm, err := ntp.QueryWithOptions(ntpHost, ntp.QueryOptions{Timeout: 2 * time.Second}); err == nil {
			return tm.Time
		} else {
			logrus.Warnf("ntp time unavailable, using local clock: %v", err)
		}
	}
	return time.Now()
}

// ArchivePrefix formats t the way archive entries are named:
// <prefix>_<original name>.
func ArchivePrefix(t time.Time) string {
	return t.Format("20060102-150405")
}

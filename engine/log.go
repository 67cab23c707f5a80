package engine

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"plansync/store"
)

// OpenLog creates the per-invocation log file and points logrus at it.
// Rooted invocations log under <root>/.plansync/logs; rootless ones (a bare
// discovery or probe) under the persistent state dir. At -v and above the
// same stream also goes to stderr; stdout stays reserved for the result
// record.
func OpenLog(root string, verbosity int) (string, func(), error) {
	dir := filepath.Join(store.StateDir(), logsDirName)
	if root != "" {
		dir = filepath.Join(root, StateDirName, logsDirName)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", nil, err
	}

	name := filepath.Join(dir, time.Now().Format("20060102-150405.000")+".log")
	f, err := os.Create(name)
	if err != nil {
		return "", nil, err
	}

	switch {
	case verbosity >= 2:
		logrus.SetLevel(logrus.DebugLevel)
	case verbosity == 1:
		logrus.SetLevel(logrus.InfoLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel) // the file always gets the narration
	}

	var out io.Writer = f
	if verbosity > 0 {
		out = io.MultiWriter(f, os.Stderr)
	}
	logrus.SetOutput(out)

	return name, func() {
		logrus.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}

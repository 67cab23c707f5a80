package engine

import (
	"time"

	"github.com/sirupsen/logrus"

	"plansync/report"
	"plansync/store"
)

// Op is one of the five operations of the command surface.
type Op string

const (
	OpSend      Op = "send"
	OpReceive   Op = "receive"
	OpProvision Op = "provision-remote"
	OpDiscover  Op = "discover-remote-storage"
	OpProbe     Op = "transport-probe"
)

// Options is the full configuration of one invocation. Everything is passed
// explicitly by the caller; there are no prompts.
type Options struct {
	Transport  store.Kind
	LocalRoot  string
	Host       string
	Port       int
	Password   string
	RemoteRoot string
	Mount      string
	DryRun     bool
	Timeout    time.Duration
	Verbosity  int
	Archive    bool
	AckRemote  bool
	Refresh    bool
	CacheTTL   time.Duration
	Jobs       int
	Profile    string
	NTPTime    bool
}

// Engine runs one operation against one sync root and produces one record.
type Engine struct {
	opts Options
}

func New(opts Options) *Engine {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Engine{opts: opts}
}

// Run executes op and returns the record to emit plus whether the invocation
// succeeded. Every path, including every failure, yields exactly one record.
func (e *Engine) Run(op Op) (interface{}, bool) {
	logPath, closeLog, err := OpenLog(e.opts.LocalRoot, e.opts.Verbosity)
	if err != nil {
		// fall back to the state-dir log before giving up on logging
		logPath, closeLog, err = OpenLog("", e.opts.Verbosity)
		if err != nil {
			closeLog = func() {}
		}
	}
	defer closeLog()

	rec, err := e.run(op, logPath)
	if err != nil {
		logrus.Errorf("%s failed: %v", op, err)
		return report.Fail(err, logPath), false
	}
	return rec, true
}

func (e *Engine) run(op Op, logPath string) (*report.Success, error) {
	logrus.Infof("plansync %s root=%s transport=%s dry-run=%v",
		op, e.opts.LocalRoot, e.opts.Transport, e.opts.DryRun)
	if e.opts.Jobs > 1 {
		logrus.Infof("jobs=%d requested; transfers stay sequential", e.opts.Jobs)
	}

	if e.opts.Profile != "" {
		p, err := LoadProfile(e.opts.Profile)
		if err != nil {
			return nil, err
		}
		p.ApplyTo(&e.opts)
		logrus.Infof("profile %q applied: host=%s mount=%s", e.opts.Profile, e.opts.Host, e.opts.Mount)
	}

	if err := e.checkArgs(op); err != nil {
		return nil, err
	}

	if e.opts.LocalRoot != "" {
		if err := ProvisionLocal(e.opts.LocalRoot, e.opts.DryRun); err != nil {
			return nil, err
		}
		lk, err := AcquireLock(e.opts.LocalRoot)
		if err != nil {
			return nil, err
		}
		defer lk.Release()
	}

	// A warm discovery cache answers before any transport is built; dialing
	// an idle host just to serve yesterday's directory list defeats the cache.
	if op == OpDiscover && !e.opts.Refresh {
		dopts := store.Options{Host: e.opts.Host, Mount: e.opts.Mount}
		if entries, ok := store.CachedDiscovery(dopts, e.opts.CacheTTL); ok {
			logrus.Infof("discovery served from cache, no remote contact")
			kind := e.opts.Transport
			if kind == "" {
				kind = store.KindAuto
			}
			rec := report.Ok(string(kind), logPath)
			rec.DryRun = e.opts.DryRun
			rec.Dirs = entries
			rec.Cache = "hit"
			return rec, nil
		}
	}

	t, err := store.Resolve(store.Options{
		Kind:       e.opts.Transport,
		Host:       e.opts.Host,
		Port:       e.opts.Port,
		Password:   e.opts.Password,
		Mount:      e.opts.Mount,
		RemoteRoot: e.opts.RemoteRoot,
		Timeout:    e.opts.Timeout,
	})
	if err != nil {
		return nil, err
	}
	defer t.Close()
	logrus.Infof("transport resolved: %s", t.Kind())

	rec := report.Ok(string(t.Kind()), logPath)
	rec.DryRun = e.opts.DryRun

	switch op {
	case OpProbe:
		if err := t.HealthCheck(); err != nil {
			return nil, err
		}

	case OpProvision:
		if err := ProvisionRemote(t, e.opts.RemoteRoot, e.opts.DryRun); err != nil {
			return nil, err
		}

	case OpSend, OpReceive:
		if err := ProvisionRemote(t, e.opts.RemoteRoot, e.opts.DryRun); err != nil {
			return nil, err
		}
		var items []report.TransferItem
		var bytes int64
		if op == OpSend {
			items, bytes, err = e.send(t)
		} else {
			items, bytes, err = e.receive(t)
		}
		if err != nil {
			return nil, err
		}
		rec.Files = items
		rec.Bytes = bytes

	case OpDiscover:
		entries, verdict, err := store.Discover(t, store.Options{
			Host:  e.opts.Host,
			Mount: e.opts.Mount,
		}, e.opts.CacheTTL, e.opts.Refresh)
		if err != nil {
			return nil, err
		}
		rec.Dirs = entries
		rec.Cache = verdict

	default:
		return nil, report.Errf(report.CodeUnsupported, "unknown operation %q", op)
	}

	return rec, nil
}

func (e *Engine) checkArgs(op Op) error {
	switch op {
	case OpSend, OpReceive:
		if e.opts.LocalRoot == "" {
			return report.Errf(report.CodeMissingArg, "%s requires a local root", op)
		}
	case OpProvision, OpDiscover:
		if e.opts.Host == "" && e.opts.Mount == "" {
			return report.Errf(report.CodeMissingArg, "%s requires a host or a mount point", op)
		}
	}
	return nil
}

// Package cli wires the five plansync operations to the command line. The
// only parseable output is the single JSON record on stdout; everything else
// goes to the per-invocation log (and stderr at -v).
package cli

import (
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"plansync/engine"
	"plansync/report"
	"plansync/store"
)

var opts struct {
	transport  string
	localRoot  string
	host       string
	port       int
	remoteRoot string
	mount      string
	dryRun     bool
	timeoutSec int
	verbosity  int
	archive    bool
	ackRemote  bool
	refresh    bool
	cacheTTL   int
	jobs       int
	profile    string
	ntpTime    bool
}

var rootCmd = &cobra.Command{
	Use:           "plansync",
	Short:         "synchronize training plans with a remote execution device",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.transport, "transport", "t", "auto", "transport: auto, ssh or mount")
	pf.StringVarP(&opts.localRoot, "root", "r", "", "local sync root")
	pf.StringVarP(&opts.host, "host", "H", "", "remote host (user@host accepted)")
	pf.IntVarP(&opts.port, "port", "p", 0, "remote ssh port (default 22)")
	pf.StringVarP(&opts.remoteRoot, "remote-root", "R", "", "sync root on the device")
	pf.StringVarP(&opts.mount, "mount", "m", "", "mount point of the attached device")
	pf.BoolVarP(&opts.dryRun, "dry-run", "n", false, "log intended operations without changing anything")
	pf.IntVar(&opts.timeoutSec, "timeout", 30, "timeout in seconds for remote operations")
	pf.CountVarP(&opts.verbosity, "verbose", "v", "narrate to stderr (-v info, -vv debug)")
	pf.BoolVar(&opts.archive, "archive", true, "archive sent files locally")
	pf.BoolVar(&opts.ackRemote, "ack-remote", false, "archive received files on the remote side")
	pf.BoolVar(&opts.refresh, "refresh", false, "bypass the discovery cache")
	pf.IntVar(&opts.cacheTTL, "cache-ttl", 300, "discovery cache staleness window in seconds")
	pf.IntVarP(&opts.jobs, "jobs", "j", 1, "accepted for compatibility; transfers are sequential")
	pf.StringVar(&opts.profile, "profile", "", "named device profile from the state dir")
	pf.BoolVar(&opts.ntpTime, "ntp-time", false, "stamp archive entries with NTP time")

	rootCmd.AddCommand(
		opCommand(engine.OpSend, "push outbox files to the device inbox"),
		opCommand(engine.OpReceive, "pull device outbox files into the local inbox"),
		opCommand(engine.OpProvision, "create the directory layout on the device"),
		opCommand(engine.OpDiscover, "rank writable storage candidates on the device"),
		opCommand(engine.OpProbe, "report which transport would be used"),
	)
}

func opCommand(op engine.Op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(op),
		Short: short,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			runOp(op)
		},
	}
}

var start = time.Now()

func buildOptions() engine.Options {
	return engine.Options{
		Transport:  store.Kind(opts.transport),
		LocalRoot:  opts.localRoot,
		Host:       opts.host,
		Port:       opts.port,
		Password:   os.Getenv("PLANSYNC_SSH_PASSWORD"),
		RemoteRoot: opts.remoteRoot,
		Mount:      opts.mount,
		DryRun:     opts.dryRun,
		Timeout:    time.Duration(opts.timeoutSec) * time.Second,
		Verbosity:  opts.verbosity,
		Archive:    opts.archive,
		AckRemote:  opts.ackRemote,
		Refresh:    opts.refresh,
		CacheTTL:   time.Duration(opts.cacheTTL) * time.Second,
		Jobs:       opts.jobs,
		Profile:    opts.profile,
		NTPTime:    opts.ntpTime,
	}
}

func runOp(op engine.Op) {
	rec, ok := engine.New(buildOptions()).Run(op)
	if err := report.Emit(os.Stdout, rec, start); err != nil {
		color.Red("cannot emit result: %v", err)
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}

// classifyUsage maps a cobra parse error onto the taxonomy: an unknown
// subcommand is UNSUPPORTED, everything else is a flag problem.
func classifyUsage(err error) error {
	if strings.Contains(err.Error(), "unknown command") {
		return report.Wrap(report.CodeUnsupported, err, "usage")
	}
	return report.Wrap(report.CodeMissingArg, err, "usage")
}

// Execute parses the command line and runs the chosen operation. Every
// invocation writes one record to stdout, parse failures included.
// processStart anchors the duration reported in the record.
func Execute(processStart time.Time) {
	start = processStart
	if err := rootCmd.Execute(); err != nil {
		color.Red("%v", err)
		_ = report.Emit(os.Stdout, report.Fail(classifyUsage(err), ""), start)
		os.Exit(1)
	}
}

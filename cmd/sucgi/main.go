//go:build !windows

// Command sucgi is a set-user-ID CGI helper: installed setuid-root
// under a web server's cgi-bin, it drops privileges to a script's
// owner before executing it, so that CGI scripts run as their owning
// user rather than as the web server's account.
//
// Invoked with no arguments it runs the full pipeline once and either
// execs the target script or exits non-zero with a syslog message.
// -h, -C, and -V are informational and exit without running the
// pipeline; like a plain run, they first open the log and suspend
// privileges.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/odkr/sucgi/internal/config"
	"github.com/odkr/sucgi/internal/envsan"
	"github.com/odkr/sucgi/internal/invocation"
	"github.com/odkr/sucgi/internal/logging"
	"github.com/odkr/sucgi/internal/pipeline"
	"github.com/odkr/sucgi/internal/privilege"
)

// version is set by the release build process; it stays "dev" for
// local builds.
var version = "dev"

// main follows spec.md §4.8's step order literally: static guards
// (step 1, enforced by internal/config's init before main ever runs)
// are already satisfied by the time this function's first statement
// executes. Everything below is steps 2-7 in order - save+clear env,
// open log, suspend privileges, parse argv, compile patterns, restore
// env - before cmd/sucgi hands off to pipeline.Run for step 8 onward.
func main() {
	environ := os.Environ()
	os.Clearenv()

	cfg := config.Default()

	logger, closeLog, err := logging.Open(cfg.SyslogFacility, cfg.SyslogMask, cfg.SyslogPError)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open log:", err)
		os.Exit(1)
	}
	defer closeLog()

	id := invocation.New()
	logger = logger.With("run_id", string(id))

	ctrl := privilege.New(logger)
	if err := ctrl.Suspend(); err != nil {
		logging.Fatal(logger, logging.StageSuspend, "privilege suspend failed", "", err)
	}

	help := flag.Bool("h", false, "print usage and exit")
	dumpConfig := flag.Bool("C", false, "print the compiled-in configuration and exit")
	showVersion := flag.Bool("V", false, "print the version and exit")
	flag.Parse()

	if flag.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "usage: sucgi [-h|-C|-V]")
		os.Exit(1)
	}

	switch {
	case *help:
		flag.Usage()
		return
	case *dumpConfig:
		out, err := config.Dump(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Print(out)
		return
	case *showVersion:
		fmt.Println("sucgi", version)
		return
	}

	patterns, err := cfg.Compiled()
	if err != nil {
		logging.Fatal(logger, logging.StagePatterns, "pattern compile failed", "", err)
	}

	saved, err := envsan.Clear(environ, cfg.MaxNVars)
	if err != nil {
		logging.Fatal(logger, logging.StageEnvSave, "environment save failed", "", err)
	}
	if err := envsan.Restore(saved, patterns, cfg.MaxVarNameLen, cfg.MaxVarLen, os.Setenv); err != nil {
		logging.Fatal(logger, logging.StageEnvRestore, "environment restore failed", "", err)
	}

	deps := pipeline.RealDeps(ctrl)
	if err := pipeline.Run(logger, id, cfg, deps); err != nil {
		logging.Fatal(logger, logging.StageDispatch, "sucgi invocation failed", "", err)
	}
}

//go:build !windows

// Package logging wires suCGI's single syslog-backed logger together
// and implements Fatal, the one routine spec.md §7 allows for turning
// an error into a process exit: every error is fatal, so there is
// exactly one way to report one.
package logging

import (
	"fmt"
	"log/slog"
	"log/syslog"
	"os"

	"golang.org/x/term"
)

// Stage identifies which step of the pipeline raised an error, so the
// syslog line can be searched for later without parsing free text.
// cmd/sucgi logs every error returned by pipeline.Run (steps 8 onward)
// under StageDispatch, whichever step failed; for those, the wrapped
// error text names the failing step.
type Stage string

// Pipeline stages that can fail fatally, matching the step numbering
// in spec.md §4.8.
const (
	StageGuards      Stage = "static_guards"
	StageEnvSave     Stage = "env_save"
	StageLogOpen     Stage = "log_open"
	StageSuspend     Stage = "privilege_suspend"
	StageArgv        Stage = "argv_parse"
	StagePatterns    Stage = "pattern_compile"
	StageEnvRestore  Stage = "env_restore"
	StageReadPath    Stage = "read_path_translated"
	StageCanonical   Stage = "canonicalize"
	StageStat        Stage = "stat"
	StageOwnerLookup Stage = "owner_lookup"
	StageGroups      Stage = "group_resolve"
	StageReelevate   Stage = "reelevate"
	StageDrop        Stage = "privilege_drop"
	StageUserDir     Stage = "user_dir_expand"
	StageContainment Stage = "containment_check"
	StageModeBits    Stage = "mode_bit_check"
	StageHidden      Stage = "hidden_check"
	StageWritability Stage = "writability_check"
	StageFinalEnv    Stage = "final_env"
	StageChdir       Stage = "chdir"
	StageDispatch    Stage = "dispatch"
)

// Open builds the logger suCGI uses for the whole run: syslog is
// always one of the fan-out targets (per spec.md §6's
// SYSLOG_FACILITY/_MASK/_OPTIONS), and stderr is added only when it's
// a terminal, matching LOG_PERROR's "also write to the controlling
// terminal" semantics instead of always duplicating output into a
// redirected stderr.
func Open(facility, minLevel string, alsoStderr bool) (*slog.Logger, func(), error) {
	prio, err := syslogPriority(facility)
	if err != nil {
		return nil, nil, err
	}

	writer, err := syslog.New(prio, "sucgi")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open syslog: %w", err)
	}

	level := parseLevel(minLevel)
	primary := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level})

	var secondary slog.Handler
	if alsoStderr && term.IsTerminal(int(os.Stderr.Fd())) {
		secondary = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(newFanOut(primary, secondary))
	closer := func() { _ = writer.Close() }
	return logger, closer, nil
}

func parseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func syslogPriority(facility string) (syslog.Priority, error) {
	switch facility {
	case "auth":
		return syslog.LOG_AUTH | syslog.LOG_ERR, nil
	case "authpriv":
		return syslog.LOG_AUTHPRIV | syslog.LOG_ERR, nil
	case "daemon":
		return syslog.LOG_DAEMON | syslog.LOG_ERR, nil
	case "user":
		return syslog.LOG_USER | syslog.LOG_ERR, nil
	default:
		return 0, fmt.Errorf("unknown syslog facility %q", facility)
	}
}

// Fatal logs one structured error identifying stage, a short human
// summary, and the failing path or identity when there is one, then
// terminates the process with a non-zero status. Per spec.md §7 this
// is the only way the pipeline ever reports an error: there is no
// retry and no partial recovery, so every call to Fatal is the last
// thing the process does.
func Fatal(logger *slog.Logger, stage Stage, detail string, subject string, err error) {
	attrs := []any{"stage", string(stage)}
	if subject != "" {
		attrs = append(attrs, "subject", subject)
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	logger.Error(detail, attrs...)
	os.Exit(1)
}

//go:build !windows

// Package pipeline sequences components C1 through C7 into the second
// half of the control flow spec.md §4.8 describes: resolve and
// validate the target script, drop privileges to its owner, and exec.
// Environment save/clear/restore (steps 2 and 7) happen in cmd/sucgi's
// main before Run is ever called, since step 2 must run before any
// allocator, regex, or logging call - earlier than Run's own
// arguments (a *slog.Logger, an invocation.ID) can exist. Every error
// Run can produce is fatal - there is no retry and no degraded mode,
// per spec.md §7 - so Run returns as soon as the first check fails,
// leaving the caller to log and exit.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/odkr/sucgi/internal/config"
	"github.com/odkr/sucgi/internal/groupres"
	"github.com/odkr/sucgi/internal/handler"
	"github.com/odkr/sucgi/internal/invocation"
	"github.com/odkr/sucgi/internal/path"
	"github.com/odkr/sucgi/internal/privilege"
	"github.com/odkr/sucgi/internal/userdir"
	"github.com/odkr/sucgi/internal/writability"
)

// Script is the fingerprint of the invocation target: its logical and
// canonical paths, its stat information, and its owner's passwd
// record.
type Script struct {
	Logical   string
	Canonical string
	Mode      os.FileMode
	UID       uint32
	GID       uint32
	Size      int64
	Owner     *user.User
}

// Identity is the target identity the pipeline drops privileges to.
type Identity struct {
	UID        uint32
	PrimaryGID uint32
	GIDs       []uint32
}

// PrivilegeController is the subset of *privilege.Controller the
// pipeline depends on; tests substitute a fake so the reelevate/drop
// sequence can be exercised without requiring the test binary to run
// as root. Suspend is called by cmd/sucgi directly, before Run starts
// (see the package doc), so it is not part of this narrower interface.
type PrivilegeController interface {
	Reelevate() error
	Drop(uid, gid int, gids []int) error
}

// Deps collects every side-effecting dependency the pipeline needs,
// so tests can exercise Run with fakes instead of real syscalls and
// a real filesystem. A production caller (cmd/sucgi) fills this with
// the real OS/unix/exec implementations.
type Deps struct {
	Environ     func() []string
	Setenv      func(name, value string) error
	Getenv      func(name string) string
	Stat        func(name string) (os.FileInfo, error)
	LookupUID   func(uid uint32) (*user.User, error)
	Privilege   PrivilegeController
	Groups      *groupres.Resolver
	Chdir       func(dir string) error
	Umask       func(mask int) int
	Exec        func(argv0 string, argv []string, envv []string) error
	SysGroupMax int
}

// RealDeps returns a Deps wired to the actual operating system.
func RealDeps(ctrl *privilege.Controller) Deps {
	return Deps{
		Environ: os.Environ,
		Setenv:  os.Setenv,
		Getenv:  os.Getenv,
		Stat:    os.Stat,
		LookupUID: func(uid uint32) (*user.User, error) {
			return user.LookupId(strconv.FormatUint(uint64(uid), 10))
		},
		Privilege:   ctrl,
		Groups:      groupres.New(),
		Chdir:       os.Chdir,
		Umask:       syscall.Umask,
		Exec: func(argv0 string, argv []string, envv []string) error {
			return unix.Exec(argv0, argv, envv)
		},
		SysGroupMax: sysGroupMax(),
	}
}

// sysGroupMax approximates NGROUPS_MAX. There is no portable runtime
// query for it through x/sys/unix across every target platform; 65536
// matches the modern Linux default and is only ever a truncation
// ceiling groupres.Resolve applies on top of the configured
// MaxNGroups, never a security boundary by itself.
func sysGroupMax() int {
	return 65536
}

// Run executes the pipeline from step 8 of spec.md §4.8 onward: by the
// time cmd/sucgi calls Run, the environment has already been saved,
// cleared, suspended-to-real-ids, argv-parsed, and restored against the
// allow-list (steps 1-7 run in cmd/sucgi's main; step 2 runs before the
// logger and invocation ID Run receives even exist - see main.go).
// logger already carries the run's invocation.ID; cfg is the
// compiled-in configuration; deps supplies every OS interaction.
func Run(logger *slog.Logger, id invocation.ID, cfg config.Config, deps Deps) error {
	logical := deps.Getenv("PATH_TRANSLATED")
	if logical == "" {
		return fmt.Errorf("PATH_TRANSLATED is unset or empty")
	}

	canonical, err := path.Canonicalize(logical, cfg.MaxFnameLen)
	if err != nil {
		return fmt.Errorf("canonicalize script: %w", err)
	}

	script, err := statScript(deps, logical, canonical)
	if err != nil {
		return err
	}

	if script.UID < cfg.MinUID || script.UID > cfg.MaxUID {
		return fmt.Errorf("script owned by uid %d, outside [%d,%d]", script.UID, cfg.MinUID, cfg.MaxUID)
	}

	gids, truncated, err := deps.Groups.Resolve(script.Owner.Username, script.GID, cfg.MinGID, cfg.MaxGID, cfg.MaxNGroups, deps.SysGroupMax)
	if err != nil {
		return fmt.Errorf("group resolve: %w", err)
	}
	if truncated {
		logger.Warn("supplementary groups truncated to system limit", "login", script.Owner.Username, "kept", len(gids))
	}

	if err := deps.Privilege.Reelevate(); err != nil {
		return fmt.Errorf("reelevate: %w", err)
	}

	identity := Identity{UID: script.UID, PrimaryGID: script.GID, GIDs: gids}
	if err := deps.Privilege.Drop(int(identity.UID), int(identity.PrimaryGID), gidsToInt(identity.GIDs)); err != nil {
		return fmt.Errorf("privilege drop: %w", err)
	}

	userDir, err := userdir.Expand(cfg.UserDir, userdir.User{LoginName: script.Owner.Username, HomeDir: script.Owner.HomeDir}, cfg.MaxFnameLen)
	if err != nil {
		return fmt.Errorf("user directory expand: %w", err)
	}

	canonicalUserDir, err := path.Canonicalize(userDir, cfg.MaxFnameLen)
	if err != nil {
		return fmt.Errorf("canonicalize user directory: %w", err)
	}

	contained, err := path.Contains(canonicalUserDir, script.Canonical, cfg.MaxFnameLen)
	if err != nil {
		return fmt.Errorf("containment check: %w", err)
	}
	if !contained {
		return fmt.Errorf("script %q is not in %s's user directory %q", script.Canonical, script.Owner.Username, canonicalUserDir)
	}

	if script.Mode&(os.ModeSetuid|os.ModeSetgid) != 0 {
		return fmt.Errorf("script %q has setuid or setgid bits set", script.Canonical)
	}

	if path.IsHidden(script.Canonical) {
		return fmt.Errorf("script %q is under a hidden path component", script.Canonical)
	}

	if err := writability.CheckChain(canonicalUserDir, script.Canonical, identity.UID); err != nil {
		return fmt.Errorf("writability check: %w", err)
	}

	if err := setFinalEnv(deps, cfg, script, canonicalUserDir); err != nil {
		return fmt.Errorf("final env: %w", err)
	}

	if err := deps.Chdir(canonicalUserDir); err != nil {
		return fmt.Errorf("chdir: %w", err)
	}
	deps.Umask(int(cfg.Umask))

	return dispatch(deps, cfg, script)
}

func statScript(deps Deps, logical, canonical string) (Script, error) {
	fi, err := deps.Stat(canonical)
	if err != nil {
		return Script{}, fmt.Errorf("stat: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return Script{}, fmt.Errorf("%q is not a regular file", canonical)
	}

	sys, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return Script{}, fmt.Errorf("unable to read raw stat information for %q", canonical)
	}

	owner, err := deps.LookupUID(sys.Uid)
	if err != nil {
		return Script{}, fmt.Errorf("owner lookup for uid %d: %w", sys.Uid, err)
	}

	return Script{
		Logical:   logical,
		Canonical: canonical,
		Mode:      fi.Mode(),
		UID:       sys.Uid,
		GID:       sys.Gid,
		Size:      fi.Size(),
		Owner:     owner,
	}, nil
}

func setFinalEnv(deps Deps, cfg config.Config, script Script, userDir string) error {
	vars := map[string]string{
		"DOCUMENT_ROOT":   userDir,
		"HOME":            script.Owner.HomeDir,
		"PATH":            cfg.Path,
		"PATH_TRANSLATED": script.Canonical,
		"SCRIPT_FILENAME": script.Canonical,
		"USER_NAME":       script.Owner.Username,
	}
	for name, value := range vars {
		if err := deps.Setenv(name, value); err != nil {
			return fmt.Errorf("setenv %s: %w", name, err)
		}
	}
	return nil
}

func dispatch(deps Deps, cfg config.Config, script Script) error {
	table := make(handler.Table, len(cfg.Handlers))
	for i, h := range cfg.Handlers {
		table[i] = handler.Entry{Suffix: h.Suffix, Program: h.Program}
	}

	program, err := handler.Find(table, script.Canonical, cfg.MaxStrLen)
	if err == nil {
		return deps.Exec(program, []string{program, script.Canonical}, deps.Environ())
	}
	if !errors.Is(err, path.ErrSuffix) && !errors.Is(err, handler.ErrNoMatch) {
		return fmt.Errorf("handler lookup: %w", err)
	}

	return deps.Exec(script.Canonical, []string{script.Canonical}, deps.Environ())
}

func gidsToInt(gids []uint32) []int {
	out := make([]int, len(gids))
	for i, g := range gids {
		out[i] = int(g)
	}
	return out
}

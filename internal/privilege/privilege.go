//go:build !windows

// Package privilege implements the two privilege-transition primitives
// suCGI needs: an early, defensive suspension of root privileges down to
// the invoking user (used while still loading compiled-in configuration
// and doing early setup), and the single irrevocable drop to the target
// script owner that follows all of the validations in internal/pipeline.
//
// Both operations use golang.org/x/sys/unix's three-argument
// Setresuid/Setresgid rather than the narrower standard-library syscall
// package: only the three-argument form lets this package set the real,
// effective, and saved-set IDs to the same value in one call, which is
// what spec.md §4.6 requires and which plain Setuid/Setgid cannot
// guarantee on every platform (some only touch the effective ID).
package privilege

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"
)

// ErrNotDropped is returned by Drop when, after changing to the target
// identity, any attempt to resume root-level privileges (setgroups,
// setgid, or setuid back to 0) unexpectedly succeeds. Per spec.md §4.6,
// this is the only robust cross-platform way to verify the drop actually
// stuck, because set*id return-value semantics for the saved ID differ
// across Unix flavors.
var ErrNotDropped = errors.New("privileges were not irrevocably dropped")

// Controller performs the suspend/drop sequence for one process.
type Controller struct {
	logger *slog.Logger
}

// New returns a Controller that logs its transitions through logger.
func New(logger *slog.Logger) *Controller {
	return &Controller{logger: logger}
}

// Suspend sets real, effective, and saved uid/gid to the process's real
// uid/gid, and trims supplementary groups to just the real gid. It is
// called once, early, while still running with an elevated effective
// uid, so that any subprocess a library dependency spawns before the
// pipeline's validations run (a regex engine, a malloc debugger) cannot
// inherit root. Suspend failures are always fatal to the caller.
func (c *Controller) Suspend() error {
	ruid := unix.Getuid()
	rgid := unix.Getgid()

	if err := unix.Setgroups([]int{rgid}); err != nil {
		return fmt.Errorf("failed to trim supplementary groups: %w", err)
	}
	if err := unix.Setresgid(rgid, rgid, rgid); err != nil {
		return fmt.Errorf("failed to suspend gid: %w", err)
	}
	if err := unix.Setresuid(ruid, ruid, ruid); err != nil {
		return fmt.Errorf("failed to suspend uid: %w", err)
	}

	c.logger.Info("privileges suspended", "uid", ruid, "gid", rgid)
	return nil
}

// Drop performs the irrevocable privilege drop described in spec.md
// §4.6: install the supplementary groups, then the gid, then the uid,
// setting real/effective/saved together at each step, and finally probe
// that root cannot be resumed. Every probe that succeeds indicates the
// drop did not stick and is treated as ErrNotDropped.
//
// Post-conditions are asserted, not merely hoped for: the caller gets an
// error unless getuid == geteuid == uid and getgid == getegid == gid
// hold after the sequence completes. Supplementary-group readback is
// deliberately not asserted, since getgroups is unreliable on some
// platforms (spec.md §4.6).
func (c *Controller) Drop(uid, gid int, gids []int) error {
	if err := unix.Setgroups(gids); err != nil {
		return fmt.Errorf("setgroups failed: %w", err)
	}
	if err := unix.Setresgid(gid, gid, gid); err != nil {
		return fmt.Errorf("setresgid failed: %w", err)
	}
	if err := unix.Setresuid(uid, uid, uid); err != nil {
		return fmt.Errorf("setresuid failed: %w", err)
	}

	if unix.Setgroups([]int{0}) == nil {
		return fmt.Errorf("%w: setgroups(0) unexpectedly succeeded", ErrNotDropped)
	}
	if unix.Setgid(0) == nil {
		return fmt.Errorf("%w: setgid(0) unexpectedly succeeded", ErrNotDropped)
	}
	if unix.Setuid(0) == nil {
		return fmt.Errorf("%w: setuid(0) unexpectedly succeeded", ErrNotDropped)
	}

	if got := unix.Getuid(); got != uid {
		return fmt.Errorf("%w: getuid()=%d after drop to %d", ErrNotDropped, got, uid)
	}
	if got := unix.Geteuid(); got != uid {
		return fmt.Errorf("%w: geteuid()=%d after drop to %d", ErrNotDropped, got, uid)
	}
	if got := unix.Getgid(); got != gid {
		return fmt.Errorf("%w: getgid()=%d after drop to %d", ErrNotDropped, got, gid)
	}
	if got := unix.Getegid(); got != gid {
		return fmt.Errorf("%w: getegid()=%d after drop to %d", ErrNotDropped, got, gid)
	}

	c.logger.Info("privileges dropped", "uid", uid, "gid", gid, "ngroups", len(gids))
	return nil
}

// Reelevate sets the effective uid to 0, the step the orchestrator takes
// between group resolution and the irrevocable drop. Failure here almost
// always means the binary is not installed set-user-ID-root.
func (c *Controller) Reelevate() error {
	if err := unix.Seteuid(0); err != nil {
		return fmt.Errorf("failed to re-elevate to root (binary not installed setuid-root?): %w", err)
	}
	return nil
}

//go:build !windows

// Package writability implements the writability-chain check: every
// filesystem entry from a script up to and including its owning user's
// base directory must be owned by that user and carry no group- or
// other-write bit.
//
// The walk is descriptor-relative (openat against the parent, never a
// freshly-built string path) so that a rename racing the check cannot
// substitute a different directory between the stat and the next
// openat, and it refuses to follow symlinks at any segment, mirroring
// the resolver's own no-symlink-surprises posture in internal/path.
package writability

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrNotExclusive means some path component is writable by someone
// other than the expected owner.
var ErrNotExclusive = errors.New("path component is not exclusively writable by its owner")

// ErrSymlink means a path component is a symlink; the chain refuses to
// follow it rather than risk resolving somewhere the caller didn't
// intend.
var ErrSymlink = errors.New("path component is a symlink")

// ErrOutsideBase means fname is not inside base, so there is no chain
// to walk.
var ErrOutsideBase = errors.New("path is not inside base directory")

// CheckChain walks every path segment from base down to and including
// fname, verifying each is owned by uid and has no write permission for
// group or other. It returns the first offending path on violation.
//
// base and fname must both be canonical (absolute, no "." or ".."
// segments) - callers are expected to have run them through
// internal/path.Canonicalize first, since this package does not resolve
// symlinks itself; it refuses them.
func CheckChain(base, fname string, uid uint32) error {
	if base != "/" && !strings.HasPrefix(fname, base+"/") && fname != base {
		return fmt.Errorf("%w: %q not under %q", ErrOutsideBase, fname, base)
	}

	segments, err := splitChain(base, fname)
	if err != nil {
		return err
	}

	dir, st, err := openBaseNoFollow(base)
	if err != nil {
		return err
	}
	if err := checkOwnerAndMode(base, st, uid); err != nil {
		unix.Close(dir)
		return err
	}

	for _, seg := range segments {
		child, st, err := openNoFollow(dir, seg)
		unix.Close(dir)
		if err != nil {
			return err
		}
		dir = child

		if err := checkOwnerAndMode(seg, st, uid); err != nil {
			unix.Close(dir)
			return err
		}
	}

	unix.Close(dir)
	return nil
}

// splitChain returns the path segments below base down to and including
// fname's final segment, in descent order, so CheckChain's openat walk only ever touches the
// tree under base - never base's own ancestors, which are outside the
// exclusivity property this package enforces.
func splitChain(base, fname string) ([]string, error) {
	if fname == "" || fname[0] != '/' {
		return nil, fmt.Errorf("%w: fname %q is not absolute", ErrOutsideBase, fname)
	}
	if fname == base {
		return nil, nil
	}

	rest := strings.TrimPrefix(fname, base)
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		return nil, nil
	}

	parts := strings.Split(rest, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// openBaseNoFollow opens base itself. Unlike openNoFollow it isn't
// relative to a parent descriptor - base is the trust root the caller
// already canonicalized, not an attacker-influenced path segment - so a
// direct open by absolute path is fine here; O_NOFOLLOW still refuses a
// symlinked base outright rather than silently resolving through it.
func openBaseNoFollow(base string) (int, *unix.Stat_t, error) {
	fd, err := unix.Open(base, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_DIRECTORY, 0)
	if err != nil {
		if errors.Is(err, unix.ELOOP) {
			return -1, nil, fmt.Errorf("%w: %q", ErrSymlink, base)
		}
		if errors.Is(err, unix.ENOTDIR) {
			fd, err = unix.Open(base, unix.O_RDONLY|unix.O_NOFOLLOW, 0)
			if errors.Is(err, unix.ELOOP) {
				return -1, nil, fmt.Errorf("%w: %q", ErrSymlink, base)
			}
			if err != nil {
				return -1, nil, fmt.Errorf("failed to open %q: %w", base, err)
			}
		} else {
			return -1, nil, fmt.Errorf("failed to open %q: %w", base, err)
		}
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("failed to stat %q: %w", base, err)
	}

	return fd, &st, nil
}

// openNoFollow opens name within the directory referenced by dirfd,
// refusing symlinks, and returns the new descriptor along with its
// Stat_t so the caller can check ownership and mode without a second
// syscall.
func openNoFollow(dirfd int, name string) (int, *unix.Stat_t, error) {
	fd, err := unix.Openat(dirfd, name, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_DIRECTORY, 0)
	if err != nil {
		if errors.Is(err, unix.ELOOP) {
			return -1, nil, fmt.Errorf("%w: %q", ErrSymlink, name)
		}
		if errors.Is(err, unix.ENOTDIR) {
			fd, err = unix.Openat(dirfd, name, unix.O_RDONLY|unix.O_NOFOLLOW, 0)
			if errors.Is(err, unix.ELOOP) {
				return -1, nil, fmt.Errorf("%w: %q", ErrSymlink, name)
			}
			if err != nil {
				return -1, nil, fmt.Errorf("failed to open %q: %w", name, err)
			}
		} else {
			return -1, nil, fmt.Errorf("failed to open %q: %w", name, err)
		}
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("failed to stat %q: %w", name, err)
	}

	return fd, &st, nil
}

// checkOwnerAndMode enforces the exclusivity property for one segment.
func checkOwnerAndMode(name string, st *unix.Stat_t, uid uint32) error {
	if st.Uid != uid {
		return fmt.Errorf("%w: %q is owned by uid %d, not %d", ErrNotExclusive, name, st.Uid, uid)
	}
	if st.Mode&(unix.S_IWGRP|unix.S_IWOTH) != 0 {
		return fmt.Errorf("%w: %q has group- or other-write permission", ErrNotExclusive, name)
	}
	return nil
}

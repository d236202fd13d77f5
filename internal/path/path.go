// Package path provides canonicalization, containment checking, and suffix
// extraction for filenames taken from an untrusted CGI environment.
//
// Canonicalize and Contains are bounded: they refuse inputs (and
// Canonicalize refuses results) at or beyond the caller's maxLen rather
// than truncating them. Suffix and IsHidden take no length limit.
package path

import (
	"errors"
	"fmt"
	"os"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// Sentinel errors for the outcomes spec'd for path operations. Every
// exported function here wraps one of these so callers can classify a
// failure with errors.Is without parsing a message string.
var (
	// ErrLen is returned when an input or output string would exceed its
	// configured length limit.
	ErrLen = errors.New("path exceeds length limit")
	// ErrSys is returned when the underlying filesystem resolution fails:
	// a missing component, a permission error, a symlink loop, and so on.
	ErrSys = errors.New("path resolution failed")
	// ErrSuffix is returned when a filename has no suffix a handler table
	// lookup could ever match.
	ErrSuffix = errors.New("filename has no usable suffix")
)

// Canonicalize resolves fname to an absolute, symlink-free path with no
// "." or ".." segments. It refuses inputs at or beyond maxLen bytes and
// refuses to return a result at or beyond maxLen bytes.
//
// Resolution is delegated to securejoin.SecureJoin with root "/": that
// function already does the openat2-based, TOCTOU-safe walk this needs,
// so canonicalization here gets the same race protection the writability
// chain (internal/writability) requires, instead of a second hand-rolled
// symlink-following loop that could disagree with it under a racing
// rename.
func Canonicalize(fname string, maxLen int) (string, error) {
	if len(fname) >= maxLen {
		return "", fmt.Errorf("%w: input is %d bytes, limit is %d", ErrLen, len(fname), maxLen)
	}

	real, err := securejoin.SecureJoin("/", fname)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSys, err)
	}
	if _, err := os.Stat(real); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSys, err)
	}

	if len(real) >= maxLen {
		return "", fmt.Errorf("%w: resolved path is %d bytes, limit is %d", ErrLen, len(real), maxLen)
	}

	return real, nil
}

// Contains reports whether fname names a file strictly inside basedir.
// Both arguments are assumed to already be canonical. Equality is never
// containment: a directory does not contain itself.
//
// "/" is treated as containing every absolute path other than itself;
// "." is treated as containing every relative path other than itself.
func Contains(basedir, fname string, maxLen int) (bool, error) {
	if len(basedir) >= maxLen || len(fname) >= maxLen {
		return false, fmt.Errorf("%w: basedir or fname at or beyond limit %d", ErrLen, maxLen)
	}

	if fname == "/" || fname == "." {
		return false, nil
	}

	if strings.HasPrefix(fname, "/") {
		if basedir == "/" {
			return true, nil
		}
	} else if basedir == "." {
		return true, nil
	}

	if len(fname) <= len(basedir) {
		return false, nil
	}
	if fname[len(basedir)] != '/' {
		return false, nil
	}
	return fname[:len(basedir)] == basedir, nil
}

// Suffix returns the filename suffix suitable for a handler table lookup:
// the substring starting at the last "." in the final path segment,
// including the dot. It rejects dotfiles (a leading "." in the final
// segment), a "." immediately preceded by "/", and a "suffix" made up
// only of trailing slashes.
func Suffix(fname string) (string, error) {
	dot := strings.LastIndexByte(fname, '.')
	if dot < 0 {
		return "", fmt.Errorf("%w: %q has no \".\"", ErrSuffix, fname)
	}
	if dot == 0 {
		return "", fmt.Errorf("%w: %q is a dotfile", ErrSuffix, fname)
	}
	if fname[dot-1] == '/' {
		return "", fmt.Errorf("%w: %q has a dotfile as its final segment", ErrSuffix, fname)
	}

	rest := fname[dot:]
	if strings.IndexByte(rest, '/') >= 0 {
		return "", fmt.Errorf("%w: %q has a slash after its last \".\"", ErrSuffix, fname)
	}

	return rest, nil
}

// IsHidden reports whether a canonical path has a dotfile anywhere in its
// segments, i.e. contains the substring "/.". This also matches ".git",
// ".htaccess" and any other hidden component, by design: spec.md §4.8
// step 19 rejects any script under a hidden component, not just the
// leaf.
func IsHidden(canonical string) bool {
	return strings.Contains(canonical, "/.")
}

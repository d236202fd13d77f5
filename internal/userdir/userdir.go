// Package userdir expands a compile-time user-directory pattern (e.g.
// "public_html" or "/srv/www/%s") against a passwd-style user record,
// treating the pattern as a tiny three-production grammar
// (literal | "%%" | "%s") rather than delegating to the platform's
// printf, which would also accept width modifiers and positional
// arguments the spec explicitly forbids.
package userdir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadPattern is returned when pattern contains anything but zero or
// one bare "%s" specifier (plus any number of literal "%%" escapes).
var ErrBadPattern = errors.New("user directory pattern is invalid")

// ErrLen is returned when the expanded result would exceed maxLen bytes.
var ErrLen = errors.New("expanded user directory exceeds length limit")

// User is the subset of a passwd entry the expansion needs.
type User struct {
	LoginName string
	HomeDir   string
}

// Expand expands pattern against user, per spec.md §4.4:
//
//  1. A pattern not starting with "/" expands to user.HomeDir + "/" + pattern.
//  2. An absolute pattern with zero "%s" specifiers expands to
//     pattern + "/" + user.LoginName.
//  3. An absolute pattern with exactly one "%s" specifier expands to
//     pattern with that "%s" replaced by user.LoginName.
//
// Any other absolute pattern - two or more specifiers, "%d", "%04s",
// positional arguments, or a bare "%" not starting "%%" or "%s" - is
// rejected with ErrBadPattern.
func Expand(pattern string, user User, maxLen int) (string, error) {
	var result string

	if !strings.HasPrefix(pattern, "/") {
		result = user.HomeDir + "/" + pattern
	} else {
		literal, specAt, err := parseSpecifiers(pattern)
		if err != nil {
			return "", err
		}
		if specAt >= 0 {
			result = literal[:specAt] + user.LoginName + literal[specAt:]
		} else {
			result = literal + "/" + user.LoginName
		}
	}

	if len(result) >= maxLen {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrLen, len(result), maxLen)
	}
	return result, nil
}

// parseSpecifiers walks pattern once, validating its printf-like
// directives against the tiny grammar this package supports. It returns
// pattern with every "%%" collapsed to a literal "%" and the "%s"
// specifier, if present, removed, together with the byte offset in that
// result where the specifier stood (-1 if there was none).
func parseSpecifiers(pattern string) (literal string, specAt int, err error) {
	var b strings.Builder
	b.Grow(len(pattern))
	specAt = -1

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}

		if i+1 >= len(pattern) {
			return "", -1, fmt.Errorf("%w: trailing %%", ErrBadPattern)
		}

		switch pattern[i+1] {
		case '%':
			b.WriteByte('%')
			i++
		case 's':
			if specAt >= 0 {
				return "", -1, fmt.Errorf("%w: more than one %%s specifier", ErrBadPattern)
			}
			specAt = b.Len()
			i++
		default:
			return "", -1, fmt.Errorf("%w: unsupported directive %%%c", ErrBadPattern, pattern[i+1])
		}
	}

	return b.String(), specAt, nil
}

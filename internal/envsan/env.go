// Package envsan implements allow-list based environment variable
// sanitization: the only channel through which an attacker-controlled web
// request reaches the privilege-transition pipeline is the process
// environment, so this package treats it as hostile by default.
//
// The allow-list is a fixed, compiled-in sequence of anchored regular
// expressions (see internal/config); it is never read from a file or
// extended at runtime.
package envsan

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Errors returned by Clear and Restore, matching the BAD/LEN/SYS kinds of
// spec.md §7.
var (
	ErrTooManyVars  = errors.New("environment has more variables than allowed")
	ErrMalformed    = errors.New("environment variable is malformed")
	ErrNameTooLong  = errors.New("environment variable name exceeds length limit")
	ErrValueTooLong = errors.New("environment variable value exceeds length limit")
)

var nameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Clear checks that environ, a snapshot of the environment taken by the
// caller, has at most maxVars entries and returns a caller-owned copy of
// it. It does not modify the process environment; emptying that is left
// to the caller (cmd/sucgi calls os.Clearenv right after taking the
// snapshot, before opening the log).
func Clear(environ []string, maxVars int) ([]string, error) {
	if len(environ) > maxVars {
		return nil, fmt.Errorf("%w: %d variables, limit %d", ErrTooManyVars, len(environ), maxVars)
	}

	saved := make([]string, len(environ))
	copy(saved, environ)
	return saved, nil
}

// Restore re-installs, via setenv, every variable from saved whose name
// matches the shell-identifier grammar and at least one compiled pattern
// in patterns. install is called once per variable that passes both
// checks; it is normally os.Setenv.
//
// A malformed entry (no "=", empty name), or one whose name or value
// exceeds the given limits, is fatal: spec.md §4.2 treats attacker-shaped
// garbage in the saved environment as a hard stop, not something to skip
// past silently.
func Restore(saved []string, patterns []*regexp.Regexp, maxNameLen, maxValLen int, install func(name, value string) error) error {
	for _, entry := range saved {
		name, value, ok := splitVar(entry)
		if !ok {
			return fmt.Errorf("%w: %q has no \"=\"", ErrMalformed, entry)
		}
		if name == "" {
			return fmt.Errorf("%w: empty variable name", ErrMalformed)
		}
		if len(name) > maxNameLen {
			return fmt.Errorf("%w: %q is %d bytes, limit %d", ErrNameTooLong, name, len(name), maxNameLen)
		}
		if len(value) > maxValLen {
			return fmt.Errorf("%w: %q is %d bytes, limit %d", ErrValueTooLong, name, len(value), maxValLen)
		}

		if !nameRE.MatchString(name) {
			continue
		}
		if !matchesAny(name, patterns) {
			continue
		}

		if err := install(name, value); err != nil {
			return fmt.Errorf("failed to restore %q: %w", name, err)
		}
	}

	return nil
}

func splitVar(entry string) (name, value string, ok bool) {
	idx := strings.IndexByte(entry, '=')
	if idx < 0 {
		return "", "", false
	}
	return entry[:idx], entry[idx+1:], true
}

func matchesAny(name string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

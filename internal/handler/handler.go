// Package handler maps a script's filename suffix to the interpreter
// program registered to run it.
package handler

import (
	"errors"
	"fmt"

	"github.com/odkr/sucgi/internal/path"
)

// Errors returned by Find.
var (
	// ErrNoMatch means the table was scanned to the end without a
	// matching suffix.
	ErrNoMatch = errors.New("no handler registered for suffix")
	// ErrNoInterpreter means the suffix matched an entry whose Program is
	// empty: the table deliberately refuses to run such scripts.
	ErrNoInterpreter = errors.New("suffix is registered with no interpreter")
	// ErrProgramTooLong means a registered program name exceeds the
	// configured length limit.
	ErrProgramTooLong = errors.New("handler program name exceeds length limit")
)

// Entry is one (suffix, program) pair in the handler table. Suffix
// matches are literal and are tried in table order; the first match
// wins. Program == "" means "refuse to run scripts with this suffix".
type Entry struct {
	Suffix  string
	Program string
}

// Table is an ordered handler table, read-only once constructed.
type Table []Entry

// Find extracts scriptPath's suffix and scans table for the first entry
// whose Suffix matches it. It returns path.ErrSuffix if scriptPath has no
// usable suffix, ErrNoInterpreter if the matching entry refuses to run,
// and ErrNoMatch if the table has no entry for that suffix.
func Find(table Table, scriptPath string, maxLen int) (program string, err error) {
	suffix, err := path.Suffix(scriptPath)
	if err != nil {
		return "", err
	}

	for _, entry := range table {
		if entry.Suffix != suffix {
			continue
		}
		if entry.Program == "" {
			return "", fmt.Errorf("%w: suffix %q", ErrNoInterpreter, suffix)
		}
		if len(entry.Program) >= maxLen {
			return "", fmt.Errorf("%w: %q", ErrProgramTooLong, entry.Program)
		}
		return entry.Program, nil
	}

	return "", fmt.Errorf("%w: suffix %q", ErrNoMatch, suffix)
}

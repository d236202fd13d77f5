// Package invocation issues the correlation ID that ties every log
// line for one process run together. suCGI runs once per request and
// exits, so there is no session or trace context to inherit one from;
// a freshly minted ULID gives operators a single value to grep syslog
// for when chasing one invocation across its fatal-error or
// successful-exec log lines.
package invocation

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a process-run correlation identifier.
type ID string

// New mints a fresh, time-sortable ID for the current process.
func New() ID {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ID(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

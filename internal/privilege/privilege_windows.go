//go:build windows

package privilege

import (
	"errors"
	"log/slog"
)

// ErrUnsupported is returned on platforms without POSIX set{uid,gid}
// semantics. suCGI's entire security model depends on the saved-set-ID
// triple, which Windows does not have; this build exists only so the
// module stays cross-compilable, not because suCGI can run here.
var ErrUnsupported = errors.New("privilege transitions are not supported on this platform")

// Controller is the no-op, always-failing Windows stand-in for the Unix
// Controller.
type Controller struct {
	logger *slog.Logger
}

// New returns a Controller whose operations always fail.
func New(logger *slog.Logger) *Controller {
	return &Controller{logger: logger}
}

// Suspend always fails on Windows.
func (c *Controller) Suspend() error { return ErrUnsupported }

// Drop always fails on Windows.
func (c *Controller) Drop(uid, gid int, gids []int) error { return ErrUnsupported }

// Reelevate always fails on Windows.
func (c *Controller) Reelevate() error { return ErrUnsupported }

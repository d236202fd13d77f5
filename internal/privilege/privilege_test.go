//go:build !windows

package privilege_test

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/odkr/sucgi/internal/privilege"
)

func requireRoot(t *testing.T) {
	t.Helper()
	if unix.Geteuid() != 0 {
		t.Skip("privilege transitions can only be exercised while running as root")
	}
}

func TestSuspendLeavesRealEffectiveSavedEqual(t *testing.T) {
	requireRoot(t)

	ctrl := privilege.New(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	ruid := unix.Getuid()
	rgid := unix.Getgid()

	require.NoError(t, ctrl.Suspend())

	assert.Equal(t, ruid, unix.Geteuid())
	assert.Equal(t, rgid, unix.Getegid())
}

func TestDropIsIrrevocable(t *testing.T) {
	requireRoot(t)

	ctrl := privilege.New(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	const targetUID, targetGID = 1, 1
	require.NoError(t, ctrl.Drop(targetUID, targetGID, []int{targetGID}))

	assert.Equal(t, targetUID, unix.Getuid())
	assert.Equal(t, targetUID, unix.Geteuid())
	assert.Equal(t, targetGID, unix.Getgid())
	assert.Equal(t, targetGID, unix.Getegid())

	assert.Error(t, unix.Setuid(0))
}

func TestReelevateFailsWithoutSetuidBit(t *testing.T) {
	if unix.Geteuid() == 0 {
		t.Skip("already root: Reelevate's failure path can't be exercised")
	}

	ctrl := privilege.New(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	assert.Error(t, ctrl.Reelevate())
}

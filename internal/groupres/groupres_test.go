package groupres_test

import (
	"os/user"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odkr/sucgi/internal/groupres"
)

func currentUser(t *testing.T) (*user.User, uint32) {
	t.Helper()
	u, err := user.Current()
	require.NoError(t, err)
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	require.NoError(t, err)
	return u, uint32(gid)
}

func TestResolvePrimaryGIDAtIndexZero(t *testing.T) {
	u, gid := currentUser(t)

	r := groupres.New()
	gids, truncated, err := r.Resolve(u.Username, gid, 0, 1<<31, 4096, 0)
	require.NoError(t, err)
	require.NotEmpty(t, gids)
	assert.Equal(t, gid, gids[0])
	assert.False(t, truncated)
}

func TestResolveDeduplicates(t *testing.T) {
	u, gid := currentUser(t)

	r := groupres.New()
	gids, _, err := r.Resolve(u.Username, gid, 0, 1<<31, 4096, 0)
	require.NoError(t, err)

	seen := map[uint32]bool{}
	for _, g := range gids {
		assert.False(t, seen[g], "duplicate gid %d", g)
		seen[g] = true
	}
}

func TestResolveRejectsOutOfRangeGID(t *testing.T) {
	u, gid := currentUser(t)

	r := groupres.New()
	_, _, err := r.Resolve(u.Username, gid, gid+1, gid+1, 4096, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, groupres.ErrGIDOutOfRange)
}

func TestResolveTruncatesToSystemLimitButKeepsPrimary(t *testing.T) {
	u, gid := currentUser(t)

	r := groupres.New()
	gids, truncated, err := r.Resolve(u.Username, gid, 0, 1<<31, 4096, 1)
	require.NoError(t, err)
	assert.True(t, truncated)
	require.Len(t, gids, 1)
	assert.Equal(t, gid, gids[0])
}

func TestResolveCachesResult(t *testing.T) {
	u, gid := currentUser(t)

	r := groupres.New()
	first, _, err := r.Resolve(u.Username, gid, 0, 1<<31, 4096, 0)
	require.NoError(t, err)
	second, _, err := r.Resolve(u.Username, gid, 0, 1<<31, 4096, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	r.ClearCache()
	third, _, err := r.Resolve(u.Username, gid, 0, 1<<31, 4096, 0)
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

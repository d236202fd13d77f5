// Package groupres enumerates a user's supplementary groups for the
// privilege drop (internal/privilege) and enforces the configured size
// and ID-range limits on the result.
//
// Adapted from the group-membership cache in the reference project's
// internal/groupmembership package: that package answers "is this user a
// member of this group" for write-permission checks, with a TTL'd cache
// because it may be called many times per file-validation pass. This
// package answers the dual question - "what are all of this user's
// groups" - once per invocation, but keeps the same cache-with-TTL
// shape so a future caller that resolves the same login name twice in
// one run doesn't walk the group database twice.
package groupres

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"
	"sync"
	"time"
)

// DefaultCacheTimeout mirrors the reference project's membership cache
// timeout; a single suCGI invocation never lives long enough for staleness
// to matter, but a long-lived caller (tests, a future daemon mode) gets
// the same bounded-staleness guarantee.
const DefaultCacheTimeout = 30 * time.Second

// Errors returned by Resolve.
var (
	// ErrTooManyGroups means the user belongs to more groups than
	// maxNGroups allows.
	ErrTooManyGroups = errors.New("user belongs to more groups than allowed")
	// ErrGIDOutOfRange means a resolved group ID falls outside
	// [minGID, maxGID].
	ErrGIDOutOfRange = errors.New("group ID is outside the allowed range")
	// ErrGIDMalformed means the underlying user database returned a
	// non-numeric group ID string.
	ErrGIDMalformed = errors.New("group ID returned by user database is not numeric")
)

// Resolver enumerates supplementary groups with a small TTL cache keyed
// on login name.
type Resolver struct {
	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	gids   []uint32
	expiry time.Time
}

// New returns an empty Resolver.
func New() *Resolver {
	return &Resolver{cache: make(map[string]cacheEntry)}
}

// Resolve returns loginName's supplementary groups with primaryGID
// guaranteed to occupy index 0, deduplicated, and every entry checked
// against [minGID, maxGID]. More than maxNGroups entries is
// ErrTooManyGroups.
//
// If the platform's own group-count limit (sysGroupMax) is lower than
// maxNGroups, the list is truncated to sysGroupMax with truncated=true so
// the caller can log a notice - the primary GID at index 0 is never dropped
// by this truncation, per spec.md §9's open question.
func (r *Resolver) Resolve(loginName string, primaryGID, minGID, maxGID uint32, maxNGroups, sysGroupMax int) (gids []uint32, truncated bool, err error) {
	gids, err = r.lookup(loginName, primaryGID, maxNGroups)
	if err != nil {
		return nil, false, err
	}

	for _, gid := range gids {
		if gid < minGID || gid > maxGID {
			return nil, false, fmt.Errorf("%w: gid %d (login %q)", ErrGIDOutOfRange, gid, loginName)
		}
	}

	limit := maxNGroups
	if sysGroupMax > 0 && sysGroupMax < limit {
		limit = sysGroupMax
	}
	if len(gids) > limit {
		truncated = true
		kept := make([]uint32, limit)
		kept[0] = primaryGID
		copy(kept[1:], gids[1:limit])
		gids = kept
	}

	return gids, truncated, nil
}

func (r *Resolver) lookup(loginName string, primaryGID uint32, maxNGroups int) ([]uint32, error) {
	r.mu.Lock()
	if entry, ok := r.cache[loginName]; ok && time.Now().Before(entry.expiry) {
		r.mu.Unlock()
		return entry.gids, nil
	}
	r.mu.Unlock()

	gids, err := enumerate(loginName, primaryGID, maxNGroups)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[loginName] = cacheEntry{gids: gids, expiry: time.Now().Add(DefaultCacheTimeout)}
	r.mu.Unlock()

	return gids, nil
}

// enumerate walks the user's group memberships via the platform's user
// database, storing primaryGID at index 0 and appending every other
// distinct group the user belongs to, in the order the database reports
// them - the same ordering contract as spec.md §4.5's getgrent walk.
func enumerate(loginName string, primaryGID uint32, maxNGroups int) ([]uint32, error) {
	u, err := user.Lookup(loginName)
	if err != nil {
		return nil, fmt.Errorf("group lookup failed for %q: %w", loginName, err)
	}

	idStrs, err := u.GroupIds()
	if err != nil {
		return nil, fmt.Errorf("failed to list groups for %q: %w", loginName, err)
	}

	seen := map[uint32]bool{primaryGID: true}
	gids := []uint32{primaryGID}

	for _, s := range idStrs {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrGIDMalformed, s)
		}
		gid := uint32(n)
		if seen[gid] {
			continue
		}
		seen[gid] = true
		gids = append(gids, gid)

		if len(gids) > maxNGroups {
			return nil, fmt.Errorf("%w: login %q has at least %d groups, limit %d", ErrTooManyGroups, loginName, len(gids), maxNGroups)
		}
	}

	return gids, nil
}

// ClearCache discards every cached entry. Primarily useful for tests.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]cacheEntry)
}

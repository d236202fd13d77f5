//go:build !windows

package pipeline_test

import (
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"testing"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odkr/sucgi/internal/config"
	"github.com/odkr/sucgi/internal/groupres"
	"github.com/odkr/sucgi/internal/invocation"
	"github.com/odkr/sucgi/internal/pipeline"
)

// fakePrivilege stands in for the real Controller so tests never need
// to run as root to exercise the pipeline's control flow. Suspend is
// no longer part of pipeline.PrivilegeController - cmd/sucgi calls it
// directly before Run starts - but the fake still provides it so it
// can also double as the real type's drop-in in any future test that
// drives the suspend step explicitly.
type fakePrivilege struct {
	dropped bool
	gotUID  int
	gotGID  int
}

func (f *fakePrivilege) Suspend() error   { return nil }
func (f *fakePrivilege) Reelevate() error { return nil }
func (f *fakePrivilege) Drop(uid, gid int, gids []int) error {
	f.dropped = true
	f.gotUID = uid
	f.gotGID = gid
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func baseDeps(environ map[string]string) (pipeline.Deps, *fakePrivilege, *string) {
	env := map[string]string{}
	for k, v := range environ {
		env[k] = v
	}

	var chdirTo string
	fp := &fakePrivilege{}

	return pipeline.Deps{
		Environ: func() []string {
			out := make([]string, 0, len(env))
			for k, v := range env {
				out = append(out, k+"="+v)
			}
			return out
		},
		Setenv: func(name, value string) error {
			env[name] = value
			return nil
		},
		Getenv: func(name string) string { return env[name] },
		Stat:   os.Stat,
		LookupUID: func(uid uint32) (*user.User, error) {
			return user.LookupId(strconv.FormatUint(uint64(uid), 10))
		},
		Privilege: fp,
		Groups:    groupres.New(),
		Chdir: func(dir string) error {
			chdirTo = dir
			return nil
		},
		Umask:       func(mask int) int { return 0 },
		Exec:        func(argv0 string, argv []string, envv []string) error { return nil },
		SysGroupMax: 1024,
	}, fp, &chdirTo
}

func currentUser(t *testing.T) (*user.User, uint32) {
	t.Helper()
	u, err := user.Current()
	require.NoError(t, err)
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	require.NoError(t, err)
	return u, uint32(gid)
}

func wideOpenConfig() config.Config {
	cfg := config.Default()
	cfg.MinUID, cfg.MaxUID = 0, 1<<31-1
	cfg.MinGID, cfg.MaxGID = 0, 1<<31-1
	return cfg
}

func TestRunFailsFastWhenPathTranslatedUnset(t *testing.T) {
	deps, _, _ := baseDeps(nil)

	err := pipeline.Run(testLogger(), invocation.New(), wideOpenConfig(), deps)
	assert.ErrorContains(t, err, "PATH_TRANSLATED")
}

func TestRunRejectsScriptOutsideUserDirectory(t *testing.T) {
	u, _ := currentUser(t)

	base := t.TempDir()
	require.NoError(t, os.Chmod(base, 0o700))
	require.NoError(t, os.Mkdir(filepath.Join(base, "public_html"), 0o700))

	outside := filepath.Join(t.TempDir(), "evil.sh")
	require.NoError(t, os.WriteFile(outside, []byte("#!/bin/sh\n"), 0o700))

	cfg := wideOpenConfig()
	cfg.UserDir = "public_html"

	deps, _, _ := baseDeps(map[string]string{"PATH_TRANSLATED": outside})
	deps.LookupUID = func(uint32) (*user.User, error) {
		u2 := *u
		u2.HomeDir = base
		return &u2, nil
	}

	err := pipeline.Run(testLogger(), invocation.New(), cfg, deps)
	assert.ErrorContains(t, err, "user directory")
}

func TestRunHappyPathDropsToOwnerAndExecs(t *testing.T) {
	u, gid := currentUser(t)

	base := t.TempDir()
	require.NoError(t, os.Chmod(base, 0o700))
	userDir := filepath.Join(base, "public_html")
	require.NoError(t, os.Mkdir(userDir, 0o700))

	script := filepath.Join(userDir, "index.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0o700))

	cfg := wideOpenConfig()
	cfg.UserDir = "public_html"
	cfg.Handlers = nil

	deps, fp, chdirTo := baseDeps(map[string]string{"PATH_TRANSLATED": script})
	deps.LookupUID = func(uint32) (*user.User, error) {
		u2 := *u
		u2.HomeDir = base
		u2.Gid = strconv.FormatUint(uint64(gid), 10)
		return &u2, nil
	}

	var execProgram string
	deps.Exec = func(argv0 string, argv []string, envv []string) error {
		execProgram = argv0
		return nil
	}

	err := pipeline.Run(testLogger(), invocation.New(), cfg, deps)
	require.NoError(t, err)
	assert.True(t, fp.dropped)
	assert.Equal(t, script, execProgram)
	assert.Equal(t, userDir, *chdirTo)
}

func TestRunDispatchesThroughHandlerTable(t *testing.T) {
	u, _ := currentUser(t)

	base := t.TempDir()
	require.NoError(t, os.Chmod(base, 0o700))
	userDir := filepath.Join(base, "public_html")
	require.NoError(t, os.Mkdir(userDir, 0o700))

	script := filepath.Join(userDir, "index.php")
	require.NoError(t, os.WriteFile(script, []byte("<?php\n"), 0o700))

	cfg := wideOpenConfig()
	cfg.UserDir = "public_html"
	cfg.Handlers = []config.Handler{{Suffix: ".php", Program: "php"}}

	deps, _, _ := baseDeps(map[string]string{"PATH_TRANSLATED": script})
	deps.LookupUID = func(uint32) (*user.User, error) {
		u2 := *u
		u2.HomeDir = base
		return &u2, nil
	}

	var execProgram string
	var execArgv []string
	deps.Exec = func(argv0 string, argv []string, envv []string) error {
		execProgram = argv0
		execArgv = argv
		return nil
	}

	err := pipeline.Run(testLogger(), invocation.New(), cfg, deps)
	require.NoError(t, err)
	assert.Equal(t, "php", execProgram)
	assert.Equal(t, []string{"php", script}, execArgv)
}

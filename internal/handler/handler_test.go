package handler_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odkr/sucgi/internal/handler"
	"github.com/odkr/sucgi/internal/path"
)

var table = handler.Table{
	{Suffix: ".php", Program: "php"},
	{Suffix: ".sh", Program: "sh"},
	{Suffix: ".disabled", Program: ""},
}

func TestFindMatches(t *testing.T) {
	program, err := handler.Find(table, "/srv/www/index.php", 4096)
	require.NoError(t, err)
	assert.Equal(t, "php", program)
}

func TestFindNoSuffix(t *testing.T) {
	_, err := handler.Find(table, "bin/tool", 4096)
	require.Error(t, err)
	assert.True(t, errors.Is(err, path.ErrSuffix))
}

func TestFindNoMatch(t *testing.T) {
	_, err := handler.Find(table, "script.rb", 4096)
	require.Error(t, err)
	assert.ErrorIs(t, err, handler.ErrNoMatch)
}

func TestFindRefusesEmptyProgram(t *testing.T) {
	_, err := handler.Find(table, "script.disabled", 4096)
	require.Error(t, err)
	assert.ErrorIs(t, err, handler.ErrNoInterpreter)
}

func TestFindFirstMatchWins(t *testing.T) {
	dup := handler.Table{
		{Suffix: ".sh", Program: "first"},
		{Suffix: ".sh", Program: "second"},
	}
	program, err := handler.Find(dup, "a.sh", 4096)
	require.NoError(t, err)
	assert.Equal(t, "first", program)
}

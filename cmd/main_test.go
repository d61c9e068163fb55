package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Kyz7/identity/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags(nil)
	require.NoError(t, err)
	assert.False(t, opts.migrateDown)

	opts, err = parseFlags([]string{"-migrate-down"})
	require.NoError(t, err)
	assert.True(t, opts.migrateDown)

	_, err = parseFlags([]string{"-unknown"})
	assert.Error(t, err)
}

type closer struct {
	err    error
	closed bool
}

func (c *closer) Close() error {
	c.closed = true
	return c.err
}

func TestCloseLogged(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, "info")

	ok := &closer{}
	closeLogged(log, "reset notifier", ok)
	assert.True(t, ok.closed)
	assert.Empty(t, buf.String())

	failing := &closer{err: errors.New("broker unreachable")}
	closeLogged(log, "reset notifier", failing)
	assert.True(t, failing.closed)
	assert.Contains(t, buf.String(), "broker unreachable")
	assert.Contains(t, buf.String(), "reset notifier")
}

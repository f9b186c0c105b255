package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirbookd/server/internal/audit"
	"github.com/dirbookd/server/internal/directory"
)

func TestAddMainPrintMain(t *testing.T) {
	dataDir := t.TempDir()
	d, err := directory.Open(dataDir, 4)
	require.NoError(t, err)

	var out bytes.Buffer
	in := strings.NewReader("add-main Mario 123\nprint main\n")
	c := New(d, nil, in, &out, func() {})
	c.Run()

	assert.Contains(t, out.String(), "ok")
	assert.Contains(t, out.String(), "Mario:123")
}

func TestAddPrivThenDelPriv(t *testing.T) {
	dataDir := t.TempDir()
	d, err := directory.Open(dataDir, 4)
	require.NoError(t, err)

	var out bytes.Buffer
	in := strings.NewReader("add-priv root hunter123\nprint users\ndel-priv root\nprint users\n")
	c := New(d, nil, in, &out, func() {})
	c.Run()

	lines := out.String()
	assert.Contains(t, lines, "root")
	assert.True(t, strings.Count(lines, "root") == 1, "root should be listed once before deletion, absent after")
}

func TestAddPrivPromotesExistingNormalUser(t *testing.T) {
	dataDir := t.TempDir()
	d, err := directory.Open(dataDir, 4)
	require.NoError(t, err)

	var out bytes.Buffer
	in := strings.NewReader("add-norm carol hunter123\nadd-priv carol anything7\nprint users\n")
	c := New(d, nil, in, &out, func() {})
	c.Run()

	lines := out.String()
	idxPriv := strings.Index(lines, "privileged:")
	idxNorm := strings.Index(lines, "normal:")
	require.True(t, idxPriv >= 0 && idxNorm > idxPriv)
	assert.Contains(t, lines[idxPriv:idxNorm], "carol")
	assert.NotContains(t, lines[idxNorm:], "carol")
}

func TestShutdownCommandStopsConsole(t *testing.T) {
	dataDir := t.TempDir()
	d, err := directory.Open(dataDir, 4)
	require.NoError(t, err)

	called := false
	var out bytes.Buffer
	in := strings.NewReader("shutdown\nprint main\n")
	c := New(d, nil, in, &out, func() { called = true })
	c.Run()

	assert.True(t, called)
	assert.NotContains(t, out.String(), "print main")
}

func TestListAuditWithNilLog(t *testing.T) {
	dataDir := t.TempDir()
	d, err := directory.Open(dataDir, 4)
	require.NoError(t, err)

	var out bytes.Buffer
	in := strings.NewReader("list-audit\n")
	c := New(d, nil, in, &out, func() {})
	c.Run()
	assert.Contains(t, out.String(), "not available")
}

func TestListAuditWithLog(t *testing.T) {
	dataDir := t.TempDir()
	d, err := directory.Open(dataDir, 4)
	require.NoError(t, err)

	a, err := audit.Open(dataDir + "/audit.db")
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Record(audit.Event{Username: "alice", Outcome: "success"}))

	var out bytes.Buffer
	in := strings.NewReader("list-audit\n")
	c := New(d, a, in, &out, func() {})
	c.Run()
	assert.Contains(t, out.String(), "alice")
}

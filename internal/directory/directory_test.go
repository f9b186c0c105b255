package directory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirbookd/server/internal/types"
)

func TestAddSearchDeleteSearch(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir, 4)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, d.AddMain(ctx, "Mario Rossi", "1234567,+3900"))

	val, ok, err := d.SearchMain(ctx, "Mario Rossi")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1234567,+3900", val)

	require.NoError(t, d.DeleteMain(ctx, "Mario Rossi"))
	_, ok, err = d.SearchMain(ctx, "Mario Rossi")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddPrivilegedUserPromotesExistingNormal(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir, 4)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, d.AddNormalUser(ctx, "carol", strings.Repeat("n", types.HashLen)))
	require.NoError(t, d.AddPrivilegedUser(ctx, "carol", "ignored-hash"))

	_, ok := d.Users.Privileged.Find("carol")
	assert.True(t, ok)
	_, ok = d.Users.Normal.Find("carol")
	assert.False(t, ok)
}

func TestAddNormalUserDemotesExistingPrivileged(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir, 4)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, d.AddPrivilegedUser(ctx, "root", strings.Repeat("p", types.HashLen)))
	require.NoError(t, d.AddNormalUser(ctx, "root", "ignored-hash"))

	_, ok := d.Users.Normal.Find("root")
	assert.True(t, ok)
	_, ok = d.Users.Privileged.Find("root")
	assert.False(t, ok)
}

func TestUserMutationsSurviveCrashRecovery(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	d, err := Open(dir, 4)
	require.NoError(t, err)
	require.NoError(t, d.AddNormalUser(ctx, "dave", strings.Repeat("d", types.HashLen)))
	require.NoError(t, d.AddPrivilegedUser(ctx, "root", strings.Repeat("r", types.HashLen)))
	require.NoError(t, d.AddPrivilegedUser(ctx, "dave", "ignored"))
	require.NoError(t, d.CloseJournal())

	reopened, err := Open(dir, 4)
	require.NoError(t, err)

	_, ok := reopened.Users.Privileged.Find("dave")
	assert.True(t, ok)
	_, ok = reopened.Users.Normal.Find("dave")
	assert.False(t, ok)
	_, ok = reopened.Users.Privileged.Find("root")
	assert.True(t, ok)
}

func TestSnapshotThenRetireJournal(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir, 4)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, d.AddMain(ctx, "Anna Bianchi", "111"))
	require.NoError(t, d.Snapshot())
	require.NoError(t, d.RetireJournal())

	_, err = os.Stat(filepath.Join(dir, journalFile))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(dir, mainSnapshotFile))
	assert.NoError(t, err)
}

func TestCrashRecoveryReplaysJournal(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	d, err := Open(dir, 4)
	require.NoError(t, err)
	require.NoError(t, d.AddMain(ctx, "A", ""))
	require.NoError(t, d.AddMain(ctx, "B", ""))
	require.NoError(t, d.AddMain(ctx, "C", ""))
	require.NoError(t, d.Snapshot())

	// The journal is not retired after the snapshot, so it still holds the
	// A/B/C adds plus whatever comes next. Simulate a crash: add D and
	// delete B, then close (not retire) the journal and reopen fresh.
	require.NoError(t, d.AddMain(ctx, "D", "1"))
	require.NoError(t, d.DeleteMain(ctx, "B"))
	require.NoError(t, d.CloseJournal())

	reopened, err := Open(dir, 4)
	require.NoError(t, err)

	_, ok, _ := reopened.SearchMain(ctx, "A")
	assert.True(t, ok)
	_, ok, _ = reopened.SearchMain(ctx, "B")
	assert.False(t, ok)
	_, ok, _ = reopened.SearchMain(ctx, "C")
	assert.True(t, ok)
	val, ok, _ := reopened.SearchMain(ctx, "D")
	assert.True(t, ok)
	assert.Equal(t, "1", val)
}

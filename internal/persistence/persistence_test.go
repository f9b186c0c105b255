package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirbookd/server/internal/store"
	"github.com/dirbookd/server/internal/types"
)

func TestExportImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main_db.txt")

	s := store.New(types.MainKind)
	require.NoError(t, s.Insert("Anna Bianchi", "1234567"))
	require.NoError(t, s.Insert("Mario Rossi", "7654321,+390612345"))
	require.NoError(t, s.Insert("Zeno Conti", ""))

	require.NoError(t, Export(s, path))

	imported, err := Import(path, types.MainKind, nil)
	require.NoError(t, err)

	assert.Equal(t, s.Snapshot(), imported.Snapshot())
}

func TestExportIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main_db.txt")

	s1 := store.New(types.MainKind)
	require.NoError(t, s1.Insert("Anna Bianchi", "111"))
	require.NoError(t, Export(s1, path))

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	s2 := store.New(types.MainKind)
	require.NoError(t, s2.Insert("Mario Rossi", "222"))
	require.NoError(t, Export(s2, path))

	after, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
	assert.Contains(t, string(after), "Mario Rossi:222")

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be unlinked after export")
}

func TestImportSkipsInvalidLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main_db.txt")

	content := "Anna Bianchi:123\nnot a valid name because way too long aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa:9\nMario Rossi:456\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	var invalid []string
	imported, err := Import(path, types.MainKind, func(lineNo int, line string) {
		invalid = append(invalid, line)
	})
	require.NoError(t, err)

	assert.Equal(t, 2, imported.Len())
	assert.Len(t, invalid, 1)
}

func TestImportMissingFileYieldsEmptyStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does_not_exist.txt")

	s, err := Import(path, types.MainKind, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

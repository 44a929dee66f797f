package uploads

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashHex(t *testing.T) {
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", ContentHashHex([]byte("hello world")))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ContentHashHex(nil))
	assert.NotEqual(t, ContentHashHex([]byte("aaa")), ContentHashHex([]byte("bbb")))
}

func TestRegistry_SaveOpenAndReload(t *testing.T) {
	dir := t.TempDir()
	reg, err := Open(dir, time.Hour, nil)
	require.NoError(t, err)

	s, err := reg.Save("../../График ТО.xlsx", []byte("workbook"))
	require.NoError(t, err)
	assert.Equal(t, "График ТО.xlsx", s.Filename)
	assert.Equal(t, s.ID+".xlsx", s.StoredName())
	assert.FileExists(t, filepath.Join(dir, s.StoredName()))

	f, got, err := reg.Open(s.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, "workbook", string(data))
	assert.Equal(t, s, got)

	reloaded, err := Open(dir, time.Hour, nil)
	require.NoError(t, err)
	list := reloaded.List()
	require.Len(t, list, 1)
	assert.Equal(t, s.ID, list[0].ID)
	assert.Equal(t, s.Filename, list[0].Filename)
}

func TestRegistry_SaveDeduplicatesContent(t *testing.T) {
	reg, err := Open(t.TempDir(), time.Hour, nil)
	require.NoError(t, err)

	a, err := reg.Save("a.xlsx", []byte("same"))
	require.NoError(t, err)
	b, err := reg.Save("b.xlsx", []byte("same"))
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Len(t, reg.List(), 1)
}

func TestRegistry_OpenRejectsUnknownIDs(t *testing.T) {
	reg, err := Open(t.TempDir(), time.Hour, nil)
	require.NoError(t, err)

	_, _, err = reg.Open("../index")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = reg.Open("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_CleanupEvictsExpired(t *testing.T) {
	dir := t.TempDir()
	reg, err := Open(dir, time.Hour, nil)
	require.NoError(t, err)

	base := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return base }
	old, err := reg.Save("old.xlsx", []byte("old"))
	require.NoError(t, err)

	reg.now = func() time.Time { return base.Add(50 * time.Minute) }
	fresh, err := reg.Save("fresh.xlsx", []byte("fresh"))
	require.NoError(t, err)

	reg.now = func() time.Time { return base.Add(90 * time.Minute) }
	assert.Equal(t, 1, reg.Cleanup())

	_, ok := reg.Get(old.ID)
	assert.False(t, ok)
	_, err = os.Stat(filepath.Join(dir, old.StoredName()))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, ok = reg.Get(fresh.ID)
	assert.True(t, ok)

	reloaded, err := Open(dir, time.Hour, nil)
	require.NoError(t, err)
	assert.Len(t, reloaded.List(), 1)
}

func TestJanitor_StopsCleanly(t *testing.T) {
	reg, err := Open(t.TempDir(), time.Nanosecond, nil)
	require.NoError(t, err)
	_, err = reg.Save("x.xlsx", []byte("x"))
	require.NoError(t, err)

	j := NewJanitor(reg, time.Millisecond)
	j.Start(context.Background())
	assert.Eventually(t, func() bool { return len(reg.List()) == 0 }, time.Second, 5*time.Millisecond)
	j.Stop()
}

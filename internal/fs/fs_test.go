package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())

	info, err := f.Stat()
	assert.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	assert.NoError(t, f.Close())

	data, err := ReadFile(lfs, fpath)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	entries, err := lfs.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	newPath := filepath.Join(dir, "renamed.txt")
	assert.NoError(t, lfs.Rename(fpath, newPath))

	assert.NoError(t, lfs.Remove(newPath))
	_, err = lfs.Stat(newPath)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFSWriteLimit(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("faulty", Fault{FailAfterBytes: 5})

	f, err := ffs.OpenFile(filepath.Join(tmp, "faulty.txt"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = f.Write([]byte("!"))
	assert.ErrorIs(t, err, ErrInjected)

	// Files that match no rule are unaffected.
	g, err := ffs.OpenFile(filepath.Join(tmp, "other.txt"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer g.Close()
	_, err = g.Write([]byte("hello world"))
	assert.NoError(t, err)
}

func TestFaultyFSRules(t *testing.T) {
	tmp := t.TempDir()
	boom := errors.New("boom")
	path := filepath.Join(tmp, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	ffs := NewFaultyFS(LocalFS{})

	t.Run("Open", func(t *testing.T) {
		ffs.ClearRules()
		ffs.AddRule("data", Fault{FailAfterBytes: -1, FailOnOpen: true, Err: boom})
		_, err := ffs.OpenFile(path, os.O_RDONLY, 0)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Read", func(t *testing.T) {
		ffs.ClearRules()
		ffs.AddRule("data", Fault{FailAfterBytes: -1, FailOnRead: true})
		_, err := ReadFile(ffs, path)
		assert.ErrorIs(t, err, ErrInjected)
	})

	t.Run("Sync and Close", func(t *testing.T) {
		ffs.ClearRules()
		ffs.AddRule("data", Fault{FailAfterBytes: -1, FailOnSync: true, FailOnClose: true})
		f, err := ffs.OpenFile(path, os.O_RDWR, 0)
		require.NoError(t, err)
		assert.ErrorIs(t, f.Sync(), ErrInjected)
		assert.ErrorIs(t, f.Close(), ErrInjected)
	})

	t.Run("Rename", func(t *testing.T) {
		ffs.ClearRules()
		ffs.AddRule("target", Fault{FailAfterBytes: -1, FailOnRename: true})
		err := ffs.Rename(path, filepath.Join(tmp, "target.bin"))
		assert.ErrorIs(t, err, ErrInjected)
	})

	t.Run("Longest pattern wins", func(t *testing.T) {
		ffs.ClearRules()
		ffs.AddRule(".bin", Fault{FailAfterBytes: -1, FailOnOpen: true})
		ffs.AddRule("data.bin", Fault{FailAfterBytes: -1})
		f, err := ffs.OpenFile(path, os.O_RDONLY, 0)
		require.NoError(t, err)
		assert.NoError(t, f.Close())
	})
}

package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(old) }
}

func TestEnsureSubDir_CreatesDirectoryInCWD(t *testing.T) {
	tmp, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	defer chdir(t, tmp)()

	got, err := EnsureSubDir("", "formsync-data")
	require.NoError(t, err)

	want := filepath.Join(tmp, "formsync-data")
	require.Equal(t, want, got)

	fi, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		perm := fi.Mode().Perm()
		require.Equal(t, os.FileMode(0o700), perm&0o700)
	}
}

func TestEnsureSubDir_UnderBase(t *testing.T) {
	base := t.TempDir()

	got, err := EnsureSubDir(base, "queue")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "queue"), got)
}

func TestEnsureSubDir_Idempotent(t *testing.T) {
	base := t.TempDir()

	first, err := EnsureSubDir(base, "queue")
	require.NoError(t, err)

	second, err := EnsureSubDir(base, "queue")
	require.NoError(t, err)

	require.Equal(t, first, second)
	fi, err := os.Stat(second)
	require.NoError(t, err)
	require.True(t, fi.IsDir())
}

func TestEnsureSubDir_FailsIfFileWithSameNameExists(t *testing.T) {
	base := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(base, "queue"), []byte("x"), 0o660))

	_, err := EnsureSubDir(base, "queue")
	require.Error(t, err, "should fail when a file exists with the same name")
}

func TestEnsureSubDir_AbsoluteNameIgnoresBase(t *testing.T) {
	target := filepath.Join(t.TempDir(), "abs")

	got, err := EnsureSubDir("/somewhere/else", target)
	require.NoError(t, err)
	require.Equal(t, target, got)
}

package fsroot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_StaysWithinRoot(t *testing.T) {
	root := t.TempDir()
	got, err := Resolve(root, "/a/b.html")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "b.html"), got)
}

func TestResolve_RejectsDotDotEscape(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "/../../etc/passwd")
	assert.ErrorIs(t, err, ErrEscapesRoot)
}

func TestResolve_RejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "secret.html")
	require.NoError(t, os.WriteFile(target, []byte("secret"), 0o644))
	require.NoError(t, os.Symlink(target, filepath.Join(root, "link.html")))

	_, err := Resolve(root, "/link.html")
	assert.ErrorIs(t, err, ErrEscapesRoot)
}

func TestWriteAtomic_ThenReadBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.html")
	require.NoError(t, WriteAtomic(path, []byte("<p>hi</p>")))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", string(body))
}

func TestAppendAtomic_AppendsToExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, WriteAtomic(path, []byte("a")))
	require.NoError(t, AppendAtomic(path, []byte("b")))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(body))
}

func TestContentType_KnownAndUnknownExtensions(t *testing.T) {
	assert.Equal(t, "text/html; charset=utf-8", ContentType("/x/index.html"))
	assert.Equal(t, "application/octet-stream", ContentType("/x/file.bin"))
}

func TestIsHTML(t *testing.T) {
	assert.True(t, IsHTML("/x/index.htm"))
	assert.False(t, IsHTML("/x/style.css"))
}

func TestLockAndRLock_SerializeAndUnlock(t *testing.T) {
	path := "/tmp/does-not-need-to-exist.html"
	unlock := Lock(path)
	unlock()

	unlockR := RLock(path)
	unlockR()
}

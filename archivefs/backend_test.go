package archivefs

import (
	"archive/tar"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Krishna8167/archivefscache/metacache"
)

func newTestMeta() *metacache.MetaCache {
	return metacache.New(64, time.Minute, 64, time.Minute)
}

func mountTestArchive(t *testing.T, entries map[string]string) (*Backend, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.tar")

	f, err := os.Create(path)
	require.NoError(t, err)
	tw := tar.NewWriter(f)
	for name, body := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(body)), Mode: 0o644}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, f.Close())

	b, err := Mount(context.Background(), MountSpec{"file": path, "format": "1"}, newTestMeta(), zap.NewNop())
	require.NoError(t, err)
	return b, path
}

func TestMountScansEntriesIntoTree(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"dir/a.txt": "hello", "dir/b.txt": "world"})

	infos, err := b.Enumerate(context.Background(), "/dir", metacache.NewAttributeMatcher("*"), metacache.QueryFlagsNone)
	require.NoError(t, err)
	require.Len(t, infos, 2)
}

func TestMountCreateBuildsEmptyWritableArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fresh.tar")

	b, err := Mount(context.Background(), MountSpec{"file": path, "create": "", "format": "1"}, newTestMeta(), zap.NewNop())
	require.NoError(t, err)
	require.True(t, b.writable)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr, "create must leave a real archive file on disk")
}

func TestQueryInfoNotFound(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"a.txt": "hi"})
	_, err := b.QueryInfo(context.Background(), "/missing.txt", metacache.NewAttributeMatcher("*"), metacache.QueryFlagsNone)
	require.Error(t, err)
	require.Equal(t, ErrNotFound, KindOf(err))
}

func TestQueryInfoCachesAcrossCalls(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"a.txt": "hi"})
	m := metacache.NewAttributeMatcher("*")

	info1, err := b.QueryInfo(context.Background(), "/a.txt", m, metacache.QueryFlagsNone)
	require.NoError(t, err)
	require.Equal(t, int64(2), info1.Size())

	require.Equal(t, uint64(0), b.meta.Info.Stats().Hits)
	_, err = b.QueryInfo(context.Background(), "/a.txt", m, metacache.QueryFlagsNone)
	require.NoError(t, err)
	require.Equal(t, uint64(1), b.meta.Info.Stats().Hits)
}

func TestEnumerateOnNonDirectoryFails(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"a.txt": "hi"})
	_, err := b.Enumerate(context.Background(), "/a.txt", metacache.NewAttributeMatcher("*"), metacache.QueryFlagsNone)
	require.Error(t, err)
	require.Equal(t, ErrNotDirectory, KindOf(err))
}

func TestOpenForReadReturnsEntryContents(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"a.txt": "hello world"})
	h, err := b.OpenForRead(context.Background(), "/a.txt")
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, _ := h.Read(buf)
	require.Equal(t, "hello world", string(buf[:n]))
	require.NoError(t, h.Close())
}

func TestOpenForReadOnDirectoryFails(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"dir/a.txt": "hi"})
	_, err := b.OpenForRead(context.Background(), "/dir")
	require.Error(t, err)
	require.Equal(t, ErrIsDirectory, KindOf(err))
}

func TestSetDisplayNameRenamesEntryAndInvalidatesCache(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"a.txt": "hi"})
	m := metacache.NewAttributeMatcher("*")
	_, _ = b.QueryInfo(context.Background(), "/a.txt", m, metacache.QueryFlagsNone)

	newPath, err := b.SetDisplayName(context.Background(), "/a.txt", "renamed.txt")
	require.NoError(t, err)
	require.Equal(t, "/renamed.txt", newPath)

	_, err = b.QueryInfo(context.Background(), "/a.txt", m, metacache.QueryFlagsNone)
	require.Error(t, err, "the old name must no longer resolve after rename")

	info, err := b.QueryInfo(context.Background(), "/renamed.txt", m, metacache.QueryFlagsNone)
	require.NoError(t, err)
	require.Equal(t, "renamed.txt", info.Name())
}

func TestSetDisplayNameToItsOwnNameIsNoop(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"a.txt": "hi"})
	newPath, err := b.SetDisplayName(context.Background(), "/a.txt", "a.txt")
	require.NoError(t, err)
	require.Equal(t, "/a.txt", newPath)

	info, err := b.QueryInfo(context.Background(), "/a.txt", metacache.NewAttributeMatcher("*"), metacache.QueryFlagsNone)
	require.NoError(t, err)
	require.Equal(t, "a.txt", info.Name())
}

func TestMoveRelocatesSubtree(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"src/a.txt": "hi", "dst/.keep": ""})
	err := b.Move(context.Background(), "/src/a.txt", "/dst/a.txt", OverwriteNone)
	require.NoError(t, err)

	_, err = b.QueryInfo(context.Background(), "/src/a.txt", metacache.NewAttributeMatcher("*"), metacache.QueryFlagsNone)
	require.Error(t, err)

	_, err = b.QueryInfo(context.Background(), "/dst/a.txt", metacache.NewAttributeMatcher("*"), metacache.QueryFlagsNone)
	require.NoError(t, err)
}

func TestMoveUnderItselfIsRefused(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"dir/a.txt": "hi"})
	err := b.Move(context.Background(), "/dir", "/dir/sub", OverwriteNone)
	require.Error(t, err)
	require.Equal(t, ErrWouldRecurse, KindOf(err))
}

func TestMoveOntoExistingDirectoryFailsWithWouldMerge(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"src/.keep": "", "dst/.keep": ""})
	err := b.Move(context.Background(), "/src", "/dst", OverwriteAllowed)
	require.Error(t, err)
	require.Equal(t, ErrWouldMerge, KindOf(err))
}

func TestMoveIsNoopWhenSourceAndDestinationAreTheSame(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"a.txt": "hi"})
	require.NoError(t, b.Move(context.Background(), "/a.txt", "/a.txt", OverwriteNone))

	info, err := b.QueryInfo(context.Background(), "/a.txt", metacache.NewAttributeMatcher("*"), metacache.QueryFlagsNone)
	require.NoError(t, err)
	require.Equal(t, "a.txt", info.Name())
}

func TestMoveOntoExistingFileWithoutOverwriteFails(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"src.txt": "hi", "dst.txt": "ho"})
	err := b.Move(context.Background(), "/src.txt", "/dst.txt", OverwriteNone)
	require.Error(t, err)
	require.Equal(t, ErrExists, KindOf(err))
}

func TestMoveOntoExistingFileWithOverwriteReplacesIt(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"src.txt": "hi", "dst.txt": "ho"})
	require.NoError(t, b.Move(context.Background(), "/src.txt", "/dst.txt", OverwriteAllowed))

	_, err := b.QueryInfo(context.Background(), "/src.txt", metacache.NewAttributeMatcher("*"), metacache.QueryFlagsNone)
	require.Error(t, err)

	h, err := b.OpenForRead(context.Background(), "/dst.txt")
	require.NoError(t, err)
	buf := make([]byte, 32)
	n, _ := h.Read(buf)
	require.Equal(t, "hi", string(buf[:n]))
	require.NoError(t, h.Close())
}

func TestDeleteNonEmptyDirectoryIsRefused(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"dir/a.txt": "hi"})
	err := b.Delete(context.Background(), "/dir")
	require.Error(t, err)
	require.Equal(t, ErrWouldRecurse, KindOf(err))
}

func TestDeleteRemovesEntryAndInvalidatesParentEnumeration(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"a.txt": "hi", "b.txt": "ho"})
	_, _ = b.Enumerate(context.Background(), "/", metacache.NewAttributeMatcher("*"), metacache.QueryFlagsNone)

	require.NoError(t, b.Delete(context.Background(), "/a.txt"))

	infos, err := b.Enumerate(context.Background(), "/", metacache.NewAttributeMatcher("*"), metacache.QueryFlagsNone)
	require.NoError(t, err)
	require.Len(t, infos, 1)
}

func TestMakeDirectoryCreatesEmptyDirectory(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"a.txt": "hi"})
	require.NoError(t, b.MakeDirectory(context.Background(), "/newdir"))

	info, err := b.QueryInfo(context.Background(), "/newdir", metacache.NewAttributeMatcher("*"), metacache.QueryFlagsNone)
	require.NoError(t, err)
	require.Equal(t, metacache.TypeDirectory, info.Type())
}

func TestMakeDirectoryOnExistingPathFails(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"dir/a.txt": "hi"})
	err := b.MakeDirectory(context.Background(), "/dir")
	require.Error(t, err)
	require.Equal(t, ErrExists, KindOf(err))
}

func TestPushWritesLocalFileIntoArchive(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{".keep": ""})

	localDir := t.TempDir()
	localPath := filepath.Join(localDir, "upload.bin")
	require.NoError(t, os.WriteFile(localPath, []byte("payload"), 0o644))

	require.NoError(t, b.Push(context.Background(), "/upload.bin", localPath, OverwriteNone, false))

	h, err := b.OpenForRead(context.Background(), "/upload.bin")
	require.NoError(t, err)
	buf := make([]byte, 32)
	n, _ := h.Read(buf)
	require.Equal(t, "payload", string(buf[:n]))
	require.NoError(t, h.Close())

	_, statErr := os.Stat(localPath)
	require.NoError(t, statErr, "remove_source=false must leave the local file in place")
}

func TestPushOfSymlinkSourceNeverFollows(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{".keep": ""})

	localDir := t.TempDir()
	target := filepath.Join(localDir, "real.txt")
	require.NoError(t, os.WriteFile(target, []byte("real contents"), 0o644))
	link := filepath.Join(localDir, "link")
	require.NoError(t, os.Symlink(target, link))

	require.NoError(t, b.Push(context.Background(), "/link", link, OverwriteNone, false))

	info, err := b.QueryInfo(context.Background(), "/link", metacache.NewAttributeMatcher("*"), metacache.QueryFlagsNone)
	require.NoError(t, err)
	require.Equal(t, metacache.TypeSymbolicLink, info.Type())
	require.Equal(t, target, info.SymlinkTarget())
}

func TestPushOntoExistingEntryWithoutOverwriteFails(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"file.txt": "already here"})

	localDir := t.TempDir()
	localPath := filepath.Join(localDir, "file.txt")
	require.NoError(t, os.WriteFile(localPath, []byte("new contents"), 0o644))

	err := b.Push(context.Background(), "/file.txt", localPath, OverwriteNone, false)
	require.Error(t, err)
	require.Equal(t, ErrExists, KindOf(err))

	h, rerr := b.OpenForRead(context.Background(), "/file.txt")
	require.NoError(t, rerr)
	buf := make([]byte, 32)
	n, _ := h.Read(buf)
	require.Equal(t, "already here", string(buf[:n]))
	require.NoError(t, h.Close())
}

func TestPushWithRemoveSourceDeletesLocalFileAfterCommit(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{".keep": ""})

	localDir := t.TempDir()
	localPath := filepath.Join(localDir, "upload.bin")
	require.NoError(t, os.WriteFile(localPath, []byte("payload"), 0o644))

	require.NoError(t, b.Push(context.Background(), "/upload.bin", localPath, OverwriteNone, true))

	_, statErr := os.Stat(localPath)
	require.True(t, os.IsNotExist(statErr), "remove_source=true must delete the local file after a successful commit")
}

func TestConcurrentWritersFailFastWithErrBusy(t *testing.T) {
	b, _ := mountTestArchive(t, map[string]string{"a.txt": "hi"})

	b.writeLock.Lock()
	defer b.writeLock.Unlock()

	err := b.Delete(context.Background(), "/a.txt")
	require.Error(t, err)
	require.Equal(t, ErrBusy, KindOf(err))
}

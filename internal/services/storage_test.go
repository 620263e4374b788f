package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/rohits-web03/nimbus/internal/apperr"
	"github.com/rohits-web03/nimbus/internal/lock"
	"github.com/rohits-web03/nimbus/internal/models"
	"github.com/rohits-web03/nimbus/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type storageEnv struct {
	db      *gorm.DB
	root    string
	blobs   repositories.BlobStore
	storage *Storage
}

func newStorageEnv(t *testing.T) *storageEnv {
	t.Helper()
	db := openTestDB(t)
	root := t.TempDir()
	blobs, err := repositories.NewFilesystemBlobStore(root)
	require.NoError(t, err)
	return newStorageEnvWith(t, db, root, blobs)
}

func newStorageEnvWith(t *testing.T, db *gorm.DB, root string, blobs repositories.BlobStore) *storageEnv {
	t.Helper()
	metrics := newTestMetrics()
	s := NewStorage(db, blobs, NewQuota(db, metrics), lock.NewKeyed(), zap.NewNop(), metrics)
	return &storageEnv{db: db, root: root, blobs: blobs, storage: s}
}

func (e *storageEnv) blobCount(t *testing.T) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(e.root, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

// failingReader fails the test if the upload body is ever read.
type failingReader struct{ t *testing.T }

func (r failingReader) Read([]byte) (int, error) {
	r.t.Error("body must not be read")
	return 0, io.EOF
}

func TestStorage_UploadAndOpen(t *testing.T) {
	ctx := context.Background()
	env := newStorageEnv(t)
	user := createUser(t, env.db, "alice", "Free")

	file, err := env.storage.UploadFile(ctx, user, UploadInput{
		Name: "Quarterly Report.txt",
		Body: strings.NewReader("hello world"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Report.txt", file.Filename)
	assert.Equal(t, int64(11), file.Size)
	assert.Contains(t, file.ContentType, "text/plain")
	assert.NotEqual(t, uuid.Nil, file.UniqueLink)
	assert.True(t, strings.HasPrefix(file.BlobKey, "user_"+user.ID.String()+"/quarterly-report-"))
	assert.True(t, strings.HasSuffix(file.BlobKey, ".txt"))

	rc, err := env.storage.OpenFile(ctx, file)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "hello world", string(data))

	byLink, err := env.storage.FileByLink(ctx, file.UniqueLink)
	require.NoError(t, err)
	assert.Equal(t, file.ID, byLink.ID)

	_, ok, err := env.storage.PresignDownload(ctx, file)
	require.NoError(t, err)
	assert.False(t, ok, "filesystem store cannot presign")
}

func TestStorage_UploadValidation(t *testing.T) {
	ctx := context.Background()
	env := newStorageEnv(t)
	user := createUser(t, env.db, "alice", "Free")

	_, err := env.storage.UploadFile(ctx, user, UploadInput{Name: "  ", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	missing := uuid.New()
	_, err = env.storage.UploadFile(ctx, user, UploadInput{Name: "a.txt", Body: strings.NewReader("x"), FolderID: &missing})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	other := createUser(t, env.db, "bob", "Free")
	folder, err := env.storage.CreateFolder(ctx, other.ID, "Bob's")
	require.NoError(t, err)
	_, err = env.storage.UploadFile(ctx, user, UploadInput{Name: "a.txt", Body: strings.NewReader("x"), FolderID: &folder.ID})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, 0, env.blobCount(t))
}

func TestStorage_DeclaredSizeCheckedBeforeReading(t *testing.T) {
	env := newStorageEnv(t)
	user := createUser(t, env.db, "alice", "")
	withPackage(t, env.db, user, "Tiny", 100)

	_, err := env.storage.UploadFile(context.Background(), user, UploadInput{
		Name:         "big.bin",
		Body:         failingReader{t},
		DeclaredSize: 101,
	})
	assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)
}

func TestStorage_ActualSizeWinsOverDeclared(t *testing.T) {
	ctx := context.Background()
	env := newStorageEnv(t)
	user := createUser(t, env.db, "alice", "")
	withPackage(t, env.db, user, "Tiny", 100)

	_, err := env.storage.UploadFile(ctx, user, UploadInput{
		Name:         "liar.bin",
		Body:         bytes.NewReader(make([]byte, 500)),
		DeclaredSize: 10,
	})
	require.ErrorIs(t, err, apperr.ErrQuotaExceeded)
	assert.Equal(t, 0, env.blobCount(t), "rejected blob must be removed")

	var count int64
	require.NoError(t, env.db.Model(&models.File{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestStorage_ConcurrentUploadsStayUnderCap(t *testing.T) {
	ctx := context.Background()
	env := newStorageEnv(t)
	user := createUser(t, env.db, "alice", "")
	withPackage(t, env.db, user, "Tiny", 100)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.storage.UploadFile(ctx, user, UploadInput{
				Name: "chunk.bin",
				Body: bytes.NewReader(make([]byte, 30)),
			})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)
		}()
	}
	wg.Wait()

	used, err := NewQuota(env.db, newTestMetrics()).Used(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, success)
	assert.Equal(t, int64(90), used)
	assert.Equal(t, 3, env.blobCount(t))
}

func TestStorage_ListRoot(t *testing.T) {
	ctx := context.Background()
	env := newStorageEnv(t)
	user := createUser(t, env.db, "alice", "Free")

	_, err := env.storage.CreateFolder(ctx, user.ID, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	folder, err := env.storage.CreateFolder(ctx, user.ID, "Photos")
	require.NoError(t, err)
	_, err = env.storage.UploadFile(ctx, user, UploadInput{Name: "in.txt", Body: strings.NewReader("a"), FolderID: &folder.ID})
	require.NoError(t, err)
	_, err = env.storage.UploadFile(ctx, user, UploadInput{Name: "root.txt", Body: strings.NewReader("b")})
	require.NoError(t, err)

	listing, err := env.storage.ListRoot(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, listing.Folders, 1)
	require.Len(t, listing.Folders[0].Files, 1)
	assert.Equal(t, "in.txt", listing.Folders[0].Files[0].Filename)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, "root.txt", listing.Files[0].Filename)
}

func TestStorage_DeleteFolderCascades(t *testing.T) {
	ctx := context.Background()
	env := newStorageEnv(t)
	user := createUser(t, env.db, "alice", "Free")
	other := createUser(t, env.db, "bob", "Free")

	folder, err := env.storage.CreateFolder(ctx, user.ID, "Docs")
	require.NoError(t, err)
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := env.storage.UploadFile(ctx, user, UploadInput{Name: name, Body: strings.NewReader(name), FolderID: &folder.ID})
		require.NoError(t, err)
	}
	_, err = env.storage.UploadFile(ctx, user, UploadInput{Name: "keep.txt", Body: strings.NewReader("keep")})
	require.NoError(t, err)

	_, err = env.storage.DeleteFolder(ctx, other.ID, folder.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	res, err := env.storage.DeleteFolder(ctx, user.ID, folder.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.FilesRemoved)
	assert.NoError(t, res.Warning)

	assert.Equal(t, 1, env.blobCount(t))
	var files, folders int64
	require.NoError(t, env.db.Model(&models.File{}).Count(&files).Error)
	require.NoError(t, env.db.Model(&models.Folder{}).Count(&folders).Error)
	assert.Equal(t, int64(1), files)
	assert.Zero(t, folders)

	_, err = env.storage.FolderByLink(ctx, folder.UniqueLink)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

type flakyDeleteStore struct {
	repositories.BlobStore
	fail string
}

func (s flakyDeleteStore) Delete(ctx context.Context, key string) error {
	if strings.Contains(key, s.fail) {
		return errors.New("bucket unavailable")
	}
	return s.BlobStore.Delete(ctx, key)
}

func TestStorage_DeleteFolderReportsBlobFailures(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	root := t.TempDir()
	fs, err := repositories.NewFilesystemBlobStore(root)
	require.NoError(t, err)
	env := newStorageEnvWith(t, db, root, flakyDeleteStore{BlobStore: fs, fail: "broken"})
	user := createUser(t, db, "alice", "Free")

	folder, err := env.storage.CreateFolder(ctx, user.ID, "Docs")
	require.NoError(t, err)
	for _, name := range []string{"ok.txt", "broken.txt"} {
		_, err := env.storage.UploadFile(ctx, user, UploadInput{Name: name, Body: strings.NewReader(name), FolderID: &folder.ID})
		require.NoError(t, err)
	}

	res, err := env.storage.DeleteFolder(ctx, user.ID, folder.ID)
	require.NoError(t, err)
	require.Error(t, res.Warning)
	assert.Contains(t, res.Warning.Error(), "broken.txt")

	var files int64
	require.NoError(t, db.Model(&models.File{}).Count(&files).Error)
	assert.Zero(t, files, "records are removed even when a blob is stuck")
}

func TestStorage_DeleteFile(t *testing.T) {
	ctx := context.Background()
	env := newStorageEnv(t)
	user := createUser(t, env.db, "alice", "Free")
	other := createUser(t, env.db, "bob", "Free")

	file, err := env.storage.UploadFile(ctx, user, UploadInput{Name: "a.txt", Body: strings.NewReader("a")})
	require.NoError(t, err)

	_, err = env.storage.DeleteFile(ctx, other.ID, file.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = env.storage.DeleteFile(ctx, user.ID, file.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, env.blobCount(t))

	_, err = env.storage.FileForOwner(ctx, user.ID, file.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStorage_FolderArchive(t *testing.T) {
	ctx := context.Background()
	env := newStorageEnv(t)
	user := createUser(t, env.db, "alice", "Free")

	empty, err := env.storage.CreateFolder(ctx, user.ID, "Empty")
	require.NoError(t, err)
	_, err = env.storage.FolderByLink(ctx, empty.UniqueLink)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	folder, err := env.storage.CreateFolder(ctx, user.ID, "Notes")
	require.NoError(t, err)
	contents := []string{"first", "second", "third"}
	for i, name := range []string{"a.txt", "a.txt", "b.txt"} {
		_, err := env.storage.UploadFile(ctx, user, UploadInput{Name: name, Body: strings.NewReader(contents[i]), FolderID: &folder.ID})
		require.NoError(t, err)
	}

	shared, err := env.storage.FolderByLink(ctx, folder.UniqueLink)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, env.storage.WriteFolderArchive(ctx, shared, &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	got := map[string]string{}
	for _, f := range zr.File {
		assert.Equal(t, zip.Deflate, f.Method)
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		got[f.Name] = string(data)
	}
	assert.Equal(t, map[string]string{
		"a.txt":     "first",
		"a (2).txt": "second",
		"b.txt":     "third",
	}, got)
}

func TestBlobKey(t *testing.T) {
	userID := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	folderID := uuid.MustParse("66666666-7777-8888-9999-000000000000")
	fileID := uuid.MustParse("abcdef01-2345-6789-abcd-ef0123456789")

	assert.Equal(t,
		"user_11111111-2222-3333-4444-555555555555/my-photo-abcdef01.jpg",
		BlobKey(userID, nil, "My Photo.JPG", fileID))
	assert.Equal(t,
		"user_11111111-2222-3333-4444-555555555555/66666666-7777-8888-9999-000000000000/file-abcdef01",
		BlobKey(userID, &folderID, "???.a b", fileID))
}

func TestCleanFilename(t *testing.T) {
	assert.Equal(t, "report.pdf", cleanFilename("../../etc/report.pdf"))
	assert.Equal(t, "evil.exe", cleanFilename(`C:\Users\me\evil.exe`))
	assert.Equal(t, "", cleanFilename(".."))
	assert.Equal(t, "", cleanFilename(""))
	assert.Len(t, cleanFilename(strings.Repeat("x", 300)+".txt"), 255)
}

func TestArchiveName(t *testing.T) {
	seen := map[string]bool{}
	assert.Equal(t, "a.txt", archiveName("a.txt", seen))
	assert.Equal(t, "a (2).txt", archiveName("a.txt", seen))
	assert.Equal(t, "a (3).txt", archiveName("a.txt", seen))
	assert.Equal(t, "README", archiveName("README", seen))
	assert.Equal(t, "README (2)", archiveName("README", seen))
}

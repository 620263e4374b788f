package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/rohits-web03/nimbus/internal/apperr"
	"github.com/rohits-web03/nimbus/internal/lock"
	"github.com/rohits-web03/nimbus/internal/models"
	"github.com/rohits-web03/nimbus/internal/observability"
	"github.com/rohits-web03/nimbus/internal/repositories"
	"github.com/rohits-web03/nimbus/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	// blobDeleteConcurrency bounds parallel blob removals in a folder delete.
	blobDeleteConcurrency = 4
	// sniffLen is how much of an upload is buffered for content type detection.
	sniffLen = 3072
	// PresignTTL is the lifetime of presigned download URLs.
	PresignTTL = 15 * time.Minute
)

var extPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,16}$`)

// UploadInput describes one incoming file. DeclaredSize is what the client
// claims, zero or negative when unknown. It is never trusted for accounting.
type UploadInput struct {
	Name         string
	Body         io.Reader
	DeclaredSize int64
	FolderID     *uuid.UUID
}

// Listing is a user's root view: folders with their files, and files
// outside any folder.
type Listing struct {
	Folders []models.Folder `json:"folders"`
	Files   []models.File   `json:"files"`
}

// DeleteResult reports what a delete removed. Warning aggregates blob
// removal failures, the records are gone either way.
type DeleteResult struct {
	FilesRemoved int
	Warning      error
}

type Storage struct {
	db      *gorm.DB
	blobs   repositories.BlobStore
	quota   *Quota
	locks   *lock.Keyed
	log     *zap.Logger
	metrics *observability.Metrics
}

func NewStorage(db *gorm.DB, blobs repositories.BlobStore, quota *Quota, locks *lock.Keyed, log *zap.Logger, metrics *observability.Metrics) *Storage {
	return &Storage{db: db, blobs: blobs, quota: quota, locks: locks, log: log, metrics: metrics}
}

func storageKey(userID uuid.UUID) string { return "storage:" + userID.String() }

func (s *Storage) CreateFolder(ctx context.Context, userID uuid.UUID, name string) (*models.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("Folder name is required")
	}
	if len(name) > 255 {
		return nil, apperr.Validation("Folder name is too long")
	}
	folder := &models.Folder{UserID: userID, Name: name, Files: []models.File{}}
	if err := s.db.WithContext(ctx).Create(folder).Error; err != nil {
		return nil, fmt.Errorf("create folder: %w", err)
	}
	return folder, nil
}

// UploadFile stores a file for user, who must have its package loaded.
// The blob is written through a reader capped one byte past the remaining
// allowance, so a lying client can never push the user over the cap.
func (s *Storage) UploadFile(ctx context.Context, user *models.User, in UploadInput) (*models.File, error) {
	name := cleanFilename(in.Name)
	if name == "" {
		return nil, apperr.Validation("No file provided")
	}
	if in.Body == nil {
		return nil, apperr.Validation("No file provided")
	}

	unlock := s.locks.Lock(storageKey(user.ID))
	defer unlock()

	if in.FolderID != nil {
		if _, err := s.ownedFolder(ctx, user.ID, *in.FolderID); err != nil {
			return nil, err
		}
	}

	limit := Limit(user)
	used, err := s.quota.Used(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if in.DeclaredSize > 0 {
		if err := s.quota.check(limit, used, in.DeclaredSize); err != nil {
			return nil, err
		}
	}
	allowance := max(limit-used, 0)
	body := io.LimitReader(in.Body, allowance+1)

	head := make([]byte, sniffLen)
	hn, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:hn]
	contentType := mimetype.Detect(head).String()

	fileID := uuid.New()
	key := BlobKey(user.ID, in.FolderID, name, fileID)
	n, err := s.blobs.Put(ctx, key, io.MultiReader(bytes.NewReader(head), body))
	if err != nil {
		s.removeBlob(ctx, key)
		return nil, fmt.Errorf("store blob: %w", err)
	}
	if err := s.quota.check(limit, used, n); err != nil {
		s.removeBlob(ctx, key)
		return nil, err
	}

	file := &models.File{
		ID:             fileID,
		UserID:         user.ID,
		BlobKey:        key,
		Filename:       name,
		Size:           n,
		ContentType:    contentType,
		ParentFolderID: in.FolderID,
	}
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		s.removeBlob(ctx, key)
		return nil, fmt.Errorf("record file: %w", err)
	}
	s.metrics.UploadedBytes.Add(float64(n))
	s.log.Info("file uploaded",
		zap.String("user_id", user.ID.String()),
		zap.String("file_id", file.ID.String()),
		zap.Int64("size", n),
	)
	return file, nil
}

func (s *Storage) ListRoot(ctx context.Context, userID uuid.UUID) (*Listing, error) {
	db := s.db.WithContext(ctx)
	listing := &Listing{Folders: []models.Folder{}, Files: []models.File{}}
	err := db.Preload("Files", orderFiles).
		Where("user_id = ?", userID).
		Order("created_at, id").
		Find(&listing.Folders).Error
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	err = db.Where("user_id = ? AND parent_folder_id IS NULL", userID).
		Order("uploaded_at, id").
		Find(&listing.Files).Error
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return listing, nil
}

// DeleteFolder removes every blob in the folder, then the file and folder
// records in one transaction.
func (s *Storage) DeleteFolder(ctx context.Context, userID, folderID uuid.UUID) (*DeleteResult, error) {
	unlock := s.locks.Lock(storageKey(userID))
	defer unlock()

	folder, err := s.ownedFolder(ctx, userID, folderID)
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(blobDeleteConcurrency)
	for _, f := range folder.Files {
		g.Go(func() error {
			if err := s.blobs.Delete(ctx, f.BlobKey); err != nil {
				s.log.Warn("failed to delete blob",
					zap.String("file_id", f.ID.String()),
					zap.String("key", f.BlobKey),
					zap.Error(err),
				)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", f.Filename, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parent_folder_id = ?", folder.ID).Delete(&models.File{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Folder{}, "id = ?", folder.ID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("delete folder records: %w", err)
	}

	return &DeleteResult{FilesRemoved: len(folder.Files), Warning: errors.Join(errs...)}, nil
}

func (s *Storage) DeleteFile(ctx context.Context, userID, fileID uuid.UUID) (*DeleteResult, error) {
	unlock := s.locks.Lock(storageKey(userID))
	defer unlock()

	file, err := s.FileForOwner(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	res := &DeleteResult{FilesRemoved: 1}
	if err := s.blobs.Delete(ctx, file.BlobKey); err != nil {
		s.log.Warn("failed to delete blob",
			zap.String("file_id", file.ID.String()),
			zap.String("key", file.BlobKey),
			zap.Error(err),
		)
		res.Warning = fmt.Errorf("%s: %w", file.Filename, err)
	}
	if err := s.db.WithContext(ctx).Delete(&models.File{}, "id = ?", file.ID).Error; err != nil {
		return nil, fmt.Errorf("delete file record: %w", err)
	}
	return res, nil
}

// FolderByLink resolves a share link. Empty folders count as missing since
// there is nothing to archive.
func (s *Storage) FolderByLink(ctx context.Context, link uuid.UUID) (*models.Folder, error) {
	var folder models.Folder
	err := s.db.WithContext(ctx).Preload("Files", orderFiles).
		Where("unique_link = ?", link).First(&folder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Folder not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get folder: %w", err)
	}
	if len(folder.Files) == 0 {
		return nil, apperr.NotFound("Folder is empty")
	}
	return &folder, nil
}

func (s *Storage) FileByLink(ctx context.Context, link uuid.UUID) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).Where("unique_link = ?", link).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("File not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return &file, nil
}

func (s *Storage) FileForOwner(ctx context.Context, userID, fileID uuid.UUID) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", fileID, userID).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("File not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return &file, nil
}

// OpenFile opens the blob behind a file record.
func (s *Storage) OpenFile(ctx context.Context, file *models.File) (io.ReadCloser, error) {
	rc, err := s.blobs.Open(ctx, file.BlobKey)
	if errors.Is(err, repositories.ErrBlobNotFound) {
		s.log.Warn("file record without blob", zap.String("file_id", file.ID.String()))
		return nil, apperr.NotFound("File content not found")
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return rc, nil
}

// PresignDownload returns a direct download URL when the blob store can
// sign one. ok is false for stores that cannot.
func (s *Storage) PresignDownload(ctx context.Context, file *models.File) (url string, ok bool, err error) {
	p, can := s.blobs.(repositories.Presigner)
	if !can {
		return "", false, nil
	}
	url, err = p.PresignGet(ctx, file.BlobKey, file.Filename, PresignTTL)
	if err != nil {
		return "", false, fmt.Errorf("presign download: %w", err)
	}
	return url, true, nil
}

// WriteFolderArchive streams a deflate zip of the folder's files into w.
// Files whose blob is gone are skipped with a warning.
func (s *Storage) WriteFolderArchive(ctx context.Context, folder *models.Folder, w io.Writer) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]bool, len(folder.Files))
	for _, f := range folder.Files {
		rc, err := s.blobs.Open(ctx, f.BlobKey)
		if errors.Is(err, repositories.ErrBlobNotFound) {
			s.log.Warn("skipping missing blob in archive",
				zap.String("folder_id", folder.ID.String()),
				zap.String("file_id", f.ID.String()),
			)
			continue
		}
		if err != nil {
			return fmt.Errorf("open blob %s: %w", f.ID, err)
		}
		err = s.writeEntry(zw, archiveName(path.Base(f.Filename), seen), f, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return zw.Close()
}

func (s *Storage) writeEntry(zw *zip.Writer, name string, f models.File, r io.Reader) error {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: f.UploadedAt,
	}
	ew, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create archive entry: %w", err)
	}
	if _, err := io.Copy(ew, r); err != nil {
		return fmt.Errorf("write archive entry: %w", err)
	}
	return nil
}

func (s *Storage) ownedFolder(ctx context.Context, userID, folderID uuid.UUID) (*models.Folder, error) {
	var folder models.Folder
	err := s.db.WithContext(ctx).Preload("Files", orderFiles).
		Where("id = ? AND user_id = ?", folderID, userID).First(&folder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Folder not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get folder: %w", err)
	}
	return &folder, nil
}

func (s *Storage) removeBlob(ctx context.Context, key string) {
	// the request context may already be gone
	ctx = context.WithoutCancel(ctx)
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.log.Warn("failed to remove rejected blob", zap.String("key", key), zap.Error(err))
	}
}

func orderFiles(db *gorm.DB) *gorm.DB {
	return db.Order("uploaded_at, id")
}

// BlobKey builds user_<uid>/[<folder>/]<slug>-<8 hex of file id><ext>.
func BlobKey(userID uuid.UUID, folderID *uuid.UUID, filename string, fileID uuid.UUID) string {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	slug := utils.Slugify(stem)
	if slug == "" {
		slug = "file"
	}
	var b strings.Builder
	b.WriteString("user_")
	b.WriteString(userID.String())
	b.WriteByte('/')
	if folderID != nil {
		b.WriteString(folderID.String())
		b.WriteByte('/')
	}
	b.WriteString(slug)
	b.WriteByte('-')
	b.WriteString(strings.ReplaceAll(fileID.String(), "-", "")[:8])
	b.WriteString(strings.ToLower(ext))
	return b.String()
}

// cleanFilename keeps only the base name a client sent.
func cleanFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(path.Base(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	if len(name) > 255 {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = strings.ToValidUTF8(name[:255-len(ext)], "") + ext
	}
	return name
}

// archiveName returns name, or "stem (n)ext" with the lowest n >= 2 not
// used yet, and marks the result as taken.
func archiveName(name string, seen map[string]bool) string {
	if name == "" || name == "." || name == "/" {
		name = "file"
	}
	candidate := name
	if seen[candidate] {
		ext := path.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		for n := 2; ; n++ {
			candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
			if !seen[candidate] {
				break
			}
		}
	}
	seen[candidate] = true
	return candidate
}

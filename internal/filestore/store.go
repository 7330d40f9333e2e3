// Package filestore imports, exports and manages encrypted files. Every file
// row is paired with one blob in the data directory; the row is the source
// of truth and the store never leaves a row pointing at a blob it did not
// finish writing.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/filex"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/models"
	"github.com/dmitrijs2005/filevault/internal/storage"
	"github.com/google/uuid"

	filerepo "github.com/dmitrijs2005/filevault/internal/repositories/files"
)

var (
	errNotRegular  = errors.New("not a regular file")
	errPlaceholder = errors.New("file has no blob")
)

// IOError is returned by import and export when a source file or blob
// cannot be read or written.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error { return e.Err }

// Cipher turns files into blobs and back.
type Cipher interface {
	EncryptFile(srcPath, dstPath string) error
	DecryptFile(srcPath, dstPath string) error
}

// FolderCreator is the part of the folder manager ImportDirectory needs.
type FolderCreator interface {
	CreateFolder(ctx context.Context, name, description string, parentID *int64) (*models.Folder, error)
}

type Store struct {
	db      *storage.Store
	cipher  Cipher
	dataDir string
	log     logging.Logger

	now   func() time.Time
	newID func() string
}

func NewStore(db *storage.Store, cipher Cipher, dataDir string, log logging.Logger) *Store {
	return &Store{
		db:      db,
		cipher:  cipher,
		dataDir: dataDir,
		log:     log.With("module", "filestore"),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

func (s *Store) files() filerepo.Repository {
	return filerepo.NewSQLRepository(s.db.DB())
}

// DataDir returns the directory holding the blobs.
func (s *Store) DataDir() string {
	return s.dataDir
}

// ImportFile encrypts sourcePath into a new blob and records it in folder
// under the source's base name.
func (s *Store) ImportFile(ctx context.Context, sourcePath string, folder *models.Folder) (*models.EncryptedFile, error) {
	return s.ImportFileAs(ctx, sourcePath, filepath.Base(sourcePath), folder)
}

// ImportFileAs is ImportFile with an explicit display name.
func (s *Store) ImportFileAs(ctx context.Context, sourcePath, name string, folder *models.Folder) (*models.EncryptedFile, error) {
	if folder == nil {
		return nil, fmt.Errorf("%w: target folder is nil", common.ErrInvalidArgument)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: file name must not be empty", common.ErrInvalidArgument)
	}

	st, err := checkReadable(sourcePath)
	if err != nil {
		return nil, &IOError{Op: "import", Path: sourcePath, Err: err}
	}

	if err := filex.EnsurePrivateDir(s.dataDir); err != nil {
		return nil, &IOError{Op: "import", Path: s.dataDir, Err: err}
	}
	blob := filepath.Join(s.dataDir, s.newID())

	if err := s.cipher.EncryptFile(sourcePath, blob); err != nil {
		s.discardBlob(ctx, blob)
		return nil, &IOError{Op: "encrypt", Path: sourcePath, Err: err}
	}

	now := s.now()
	rec := &models.EncryptedFile{
		FolderID:      folder.ID,
		OriginalName:  name,
		EncryptedPath: blob,
		SizeBytes:     st.Size(),
		MimeType:      detectMimeType(sourcePath, name),
		CreatedAt:     &now,
	}

	id, err := s.files().Create(ctx, rec)
	if err == nil && id <= 0 {
		err = errors.New("no id returned")
	}
	if err != nil {
		s.discardBlob(ctx, blob)
		return nil, fmt.Errorf("record imported file %q: %w", name, err)
	}
	rec.ID = id

	s.log.Info(ctx, "file imported", "id", id, "name", name, "folder_id", folder.ID, "size", rec.SizeBytes)
	return rec, nil
}

// ImportDirectory creates a subfolder of parent named after dir and imports
// every regular file directly inside dir into it. Files that fail are
// logged and skipped. It returns the new folder and the number of files
// imported.
func (s *Store) ImportDirectory(ctx context.Context, dir string, parent *models.Folder, folders FolderCreator) (*models.Folder, int, error) {
	if parent == nil {
		return nil, 0, fmt.Errorf("%w: target folder is nil", common.ErrInvalidArgument)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, 0, &IOError{Op: "import directory", Path: dir, Err: err}
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, 0, &IOError{Op: "import directory", Path: abs, Err: err}
	}

	folder, err := folders.CreateFolder(ctx, filepath.Base(abs), "Imported from: "+abs, &parent.ID)
	if err != nil {
		return nil, 0, err
	}

	imported := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if _, err := s.ImportFile(ctx, filepath.Join(abs, e.Name()), folder); err != nil {
			s.log.Error(ctx, "failed to import file", "path", filepath.Join(abs, e.Name()), "error", err)
			continue
		}
		imported++
	}

	s.log.Info(ctx, "directory imported", "path", abs, "folder_id", folder.ID, "files", imported)
	return folder, imported, nil
}

// ExportFile decrypts f into destPath and records the access time. The
// access time update is best-effort.
func (s *Store) ExportFile(ctx context.Context, f *models.EncryptedFile, destPath string) error {
	if f == nil {
		return fmt.Errorf("%w: file is nil", common.ErrInvalidArgument)
	}
	if !f.Materialized() {
		return &IOError{Op: "export", Path: f.OriginalName, Err: errPlaceholder}
	}
	if _, err := checkReadable(f.EncryptedPath); err != nil {
		return &IOError{Op: "export", Path: f.EncryptedPath, Err: err}
	}

	if err := s.cipher.DecryptFile(f.EncryptedPath, destPath); err != nil {
		s.log.Error(ctx, "file export failed", "id", f.ID, "error", err)
		return fmt.Errorf("export %q: %w", f.OriginalName, err)
	}

	now := s.now()
	n, err := s.files().TouchLastAccess(ctx, f.ID, now)
	switch {
	case err != nil:
		s.log.Warn(ctx, "failed to update last access", "id", f.ID, "error", err)
	case n != 1:
		s.log.Warn(ctx, "last access update matched no row", "id", f.ID)
	default:
		f.LastAccess = &now
	}

	s.log.Info(ctx, "file exported", "id", f.ID, "name", f.OriginalName)
	return nil
}

// DeleteFile removes the row and then the blob. It reports true only when
// exactly one row was deleted; a blob that cannot be removed is logged and
// left behind.
func (s *Store) DeleteFile(ctx context.Context, f *models.EncryptedFile) bool {
	if f == nil {
		return false
	}

	n, err := s.files().Delete(ctx, f.ID)
	if err != nil {
		s.log.Error(ctx, "file delete failed", "id", f.ID, "error", err)
		return false
	}
	if n != 1 {
		s.log.Warn(ctx, "file delete matched no row", "id", f.ID)
		return false
	}

	if f.Materialized() {
		s.discardBlob(ctx, f.EncryptedPath)
	}
	s.log.Info(ctx, "file deleted", "id", f.ID, "name", f.OriginalName)
	return true
}

// RenameFile changes the display name of f in the store and in f itself.
func (s *Store) RenameFile(ctx context.Context, f *models.EncryptedFile, newName string) bool {
	newName = strings.TrimSpace(newName)
	if f == nil || newName == "" {
		return false
	}

	n, err := s.files().UpdateName(ctx, f.ID, newName)
	if err != nil {
		s.log.Error(ctx, "file rename failed", "id", f.ID, "error", err)
		return false
	}
	if n != 1 {
		return false
	}
	f.OriginalName = newName
	return true
}

// MoveFile reassigns f to target in the store and in f itself.
func (s *Store) MoveFile(ctx context.Context, f *models.EncryptedFile, target *models.Folder) bool {
	if f == nil || target == nil {
		return false
	}

	n, err := s.files().UpdateFolder(ctx, f.ID, target.ID)
	if err != nil {
		s.log.Error(ctx, "file move failed", "id", f.ID, "target", target.ID, "error", err)
		return false
	}
	if n != 1 {
		return false
	}
	f.FolderID = target.ID
	return true
}

// GetFilesInFolder lists the files of folder ordered by name.
func (s *Store) GetFilesInFolder(ctx context.Context, folder *models.Folder) ([]models.EncryptedFile, error) {
	if folder == nil {
		return nil, fmt.Errorf("%w: folder is nil", common.ErrInvalidArgument)
	}
	return s.GetFilesByFolderID(ctx, folder.ID)
}

func (s *Store) GetFilesByFolderID(ctx context.Context, folderID int64) ([]models.EncryptedFile, error) {
	return s.files().GetByFolderID(ctx, folderID)
}

func (s *Store) GetAllFiles(ctx context.Context) ([]models.EncryptedFile, error) {
	return s.files().GetAll(ctx)
}

// GetFileByID returns common.ErrNotFound for an unknown id.
func (s *Store) GetFileByID(ctx context.Context, id int64) (*models.EncryptedFile, error) {
	return s.files().GetByID(ctx, id)
}

// ReloadFromDatabase does nothing: the store keeps no cache and every read
// goes to the database.
func (s *Store) ReloadFromDatabase() {}

func (s *Store) discardBlob(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn(ctx, "failed to remove blob", "path", path, "error", err)
	}
}

func checkReadable(path string) (os.FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsRegular() {
		return nil, errNotRegular
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	_ = f.Close()
	return st, nil
}

// detectMimeType guesses from the extension first and falls back to
// sniffing the first 512 bytes.
func detectMimeType(path, name string) string {
	t := mime.TypeByExtension(filepath.Ext(name))
	if t == "" {
		if f, err := os.Open(path); err == nil {
			buf := make([]byte, 512)
			n, _ := io.ReadFull(f, buf)
			_ = f.Close()
			if n > 0 {
				t = http.DetectContentType(buf[:n])
			}
		}
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil && mt != "" {
		return mt
	}
	return common.DefaultMimeType
}

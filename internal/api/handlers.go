package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/models"
)

const tokenSubject = "owner"

type authRequest struct {
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"token"`
}

type createFolderRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ParentID    *int64 `json:"parent_id"`
}

type updateFolderRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type updateFileRequest struct {
	Name     *string `json:"name"`
	FolderID *int64  `json:"folder_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body", common.ErrInvalidArgument)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad id %q", common.ErrInvalidArgument, r.PathValue("id"))
	}
	return id, nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrIllegalState):
		return http.StatusConflict
	case errors.Is(err, common.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func (s *Server) banner(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "filevault control API\n")
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if ip := clientIP(r); !s.limiter.Allow(ip) {
		s.log.Warn(r.Context(), "auth rate limit exceeded", "ip", ip)
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	var req authRequest
	if err := decodeJSON(r, &req); err != nil {
		s.log.Debug(r.Context(), "malformed auth request", "error", err)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := s.auth.Verify(r.Context(), []byte(req.Password)); err != nil {
		if !errors.Is(err, common.ErrUnauthorized) {
			s.log.Error(r.Context(), "password check failed", "error", err)
		}
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	token, err := s.tokens.GenerateToken(tokenSubject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info(r.Context(), "token issued", "ip", clientIP(r))
	writeJSON(w, http.StatusOK, authResponse{Token: token})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.tokens.InvalidateToken(tokenFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listFolders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.folders.GetAllFolders())
}

func (s *Server) folderFromPath(r *http.Request) (*models.Folder, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	f := s.folders.GetFolderByID(id)
	if f == nil {
		return nil, fmt.Errorf("folder %d: %w", id, common.ErrNotFound)
	}
	return f, nil
}

func (s *Server) createFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	f, err := s.folders.CreateFolder(r.Context(), req.Name, req.Description, req.ParentID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.notifier.NotifyChangeListeners(ActionFolderCreated)
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) updateFolder(w http.ResponseWriter, r *http.Request) {
	f, err := s.folderFromPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req updateFolderRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Name == nil && req.Description == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	if req.Name != nil {
		ok, err := s.folders.RenameFolder(r.Context(), f, *req.Name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !ok {
			writeError(w, http.StatusInternalServerError, "rename failed")
			return
		}
	}
	if req.Description != nil && !s.folders.UpdateDescription(r.Context(), f, *req.Description) {
		if req.Name != nil {
			s.notifier.NotifyChangeListeners(ActionFolderRenamed)
		}
		writeError(w, http.StatusInternalServerError, "description update failed")
		return
	}

	s.notifier.NotifyChangeListeners(ActionFolderRenamed)
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) deleteFolder(w http.ResponseWriter, r *http.Request) {
	f, err := s.folderFromPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	recursive := false
	if v := r.URL.Query().Get("recursive"); v != "" {
		if recursive, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "recursive must be true or false")
			return
		}
	}

	if recursive {
		err = s.folders.DeleteFolderRecursive(r.Context(), f)
	} else {
		err = s.folders.DeleteFolder(r.Context(), f)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.notifier.NotifyChangeListeners(ActionFolderDeleted)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	f, err := s.folderFromPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	files, err := s.files.GetFilesInFolder(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if files == nil {
		files = []models.EncryptedFile{}
	}
	writeJSON(w, http.StatusOK, files)
}

// uploadFile stores the raw request body as a new file in the folder. The
// display name comes from the name query parameter.
func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	f, err := s.folderFromPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if r.ContentLength > s.opts.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	tmp, err := os.CreateTemp("", "filevault-upload-*")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, r.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.fail(w, r, fmt.Errorf("receive upload: %w", err))
		return
	}

	rec, err := s.files.ImportFileAs(r.Context(), tmp.Name(), name, f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.notifier.NotifyChangeListeners(ActionFileImported)
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) fileFromPath(r *http.Request) (*models.EncryptedFile, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	return s.files.GetFileByID(r.Context(), id)
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	f, err := s.fileFromPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// downloadFile decrypts the file into a private temp directory and streams
// it back.
func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	f, err := s.fileFromPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	dir, err := os.MkdirTemp("", "filevault-export-*")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "content")
	if err := s.files.ExportFile(r.Context(), f, out); err != nil {
		s.fail(w, r, err)
		return
	}

	src, err := os.Open(out)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer src.Close()

	w.Header().Set("Content-Type", f.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.OriginalName))
	w.Header().Set("Content-Length", strconv.FormatInt(f.SizeBytes, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, src); err != nil {
		s.log.Warn(r.Context(), "download interrupted", "id", f.ID, "error", err)
	}
}

func (s *Server) updateFile(w http.ResponseWriter, r *http.Request) {
	f, err := s.fileFromPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req updateFileRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Name == nil && req.FolderID == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		writeError(w, http.StatusBadRequest, "file name must not be empty")
		return
	}

	if req.FolderID != nil {
		target := s.folders.GetFolderByID(*req.FolderID)
		if target == nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("folder %d does not exist", *req.FolderID))
			return
		}
		if !s.files.MoveFile(r.Context(), f, target) {
			writeError(w, http.StatusInternalServerError, "move failed")
			return
		}
	}
	if req.Name != nil && !s.files.RenameFile(r.Context(), f, *req.Name) {
		if req.FolderID != nil {
			s.notifier.NotifyChangeListeners(ActionFileUpdated)
		}
		writeError(w, http.StatusInternalServerError, "rename failed")
		return
	}

	s.notifier.NotifyChangeListeners(ActionFileUpdated)
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	f, err := s.fileFromPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !s.files.DeleteFile(r.Context(), f) {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	s.notifier.NotifyChangeListeners(ActionFileDeleted)
	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/filestore"
	"github.com/dmitrijs2005/filevault/internal/folders"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/models"
	"github.com/dmitrijs2005/filevault/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse"

type fakeVerifier struct{ password string }

func (f fakeVerifier) Verify(_ context.Context, password []byte) error {
	if string(password) != f.password {
		return common.ErrUnauthorized
	}
	return nil
}

type testEnv struct {
	srv      *Server
	handler  http.Handler
	tokens   *TokenManager
	notifier *Notifier
	folders  *folders.Manager
	files    *filestore.Store
	events   *recorder
}

func newEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := storage.Open(ctx, storage.DriverSQLite, storage.SQLiteDSN(filepath.Join(dir, "vault.db")), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dataDir := filepath.Join(dir, "data")
	fm := folders.NewManager(db, dataDir, logging.Discard())
	require.NoError(t, fm.Initialize(ctx))

	key, err := cryptox.RandBytes(cryptox.KeySize)
	require.NoError(t, err)
	cipher, err := cryptox.NewFileCipher(key)
	require.NoError(t, err)
	fs := filestore.NewStore(db, cipher, dataDir, logging.Discard())

	tokens, err := NewTokenManager()
	require.NoError(t, err)
	notifier := NewNotifier(logging.Discard())
	t.Cleanup(notifier.Close)

	events := &recorder{}
	notifier.AddChangeListener(events.listen)

	srv := NewServer(opts, fakeVerifier{password: testPassword}, fm, fs, tokens, notifier, logging.Discard())
	return &testEnv{
		srv:      srv,
		handler:  srv.Handler(),
		tokens:   tokens,
		notifier: notifier,
		folders:  fm,
		files:    fs,
		events:   events,
	}
}

func (e *testEnv) do(t *testing.T, method, target, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set(common.AuthorizationHeader, token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, target, token string, v any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return e.do(t, method, target, token, bytes.NewReader(b))
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	rec := e.doJSON(t, http.MethodPost, "/api/auth", "", authRequest{Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (e *testEnv) settledEvents(t *testing.T, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(e.events.get()) >= n }, time.Second, 5*time.Millisecond)
	return e.events.get()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAuth(t *testing.T) {
	env := newEnv(t, Options{})

	token := env.login(t)
	assert.True(t, env.tokens.IsValidToken(token))

	rec := env.doJSON(t, http.MethodPost, "/api/auth", "", authRequest{Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.doJSON(t, http.MethodPost, "/api/auth", "", authRequest{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth", "", strings.NewReader("{"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth", "", strings.NewReader(`{"password":"x","extra":1}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec = env.do(t, m, "/api/auth", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, m)
		assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	}
}

func TestAuth_RateLimited(t *testing.T) {
	env := newEnv(t, Options{AuthRateLimit: 2, AuthRateWindow: time.Minute})

	for i := 0; i < 2; i++ {
		rec := env.doJSON(t, http.MethodPost, "/api/auth", "", authRequest{Password: "wrong"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := env.doJSON(t, http.MethodPost, "/api/auth", "", authRequest{Password: testPassword})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestFolders_RequireToken(t *testing.T) {
	env := newEnv(t, Options{})

	rec := env.do(t, http.MethodGet, "/api/folders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/folders", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := env.login(t)
	env.tokens.InvalidateToken(token)
	rec = env.do(t, http.MethodGet, "/api/folders", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	fresh := env.login(t)
	rec = env.do(t, http.MethodGet, "/api/folders", fresh, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.Folder](t, rec)
	assert.Len(t, list, 1+len(folders.BaseSubfolders))

	rec = env.do(t, http.MethodGet, "/api/folders", "Bearer "+fresh, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBannerIsPublic(t *testing.T) {
	env := newEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "filevault")

	rec = env.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogout(t *testing.T) {
	env := newEnv(t, Options{})
	token := env.login(t)

	rec := env.do(t, http.MethodPost, "/api/logout", "Bearer "+token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, env.tokens.IsValidToken(token))

	rec = env.do(t, http.MethodGet, "/api/folders", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFolderMutationsNotify(t *testing.T) {
	env := newEnv(t, Options{})
	token := env.login(t)
	vault := env.folders.GetFolderByName(folders.BaseFolderName)
	require.NotNil(t, vault)

	rec := env.doJSON(t, http.MethodPost, "/api/folders", token, createFolderRequest{Name: "Taxes", ParentID: &vault.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	taxes := decode[models.Folder](t, rec)
	assert.Equal(t, vault.ID, *taxes.ParentID)

	rec = env.doJSON(t, http.MethodPost, "/api/folders", token, createFolderRequest{Name: "taxes", ParentID: &vault.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "case-insensitive duplicate")

	rec = env.doJSON(t, http.MethodPost, "/api/folders", token, createFolderRequest{Name: "2024", ParentID: &taxes.ID})
	require.Equal(t, http.StatusCreated, rec.Code)

	name := "Tax returns"
	rec = env.doJSON(t, http.MethodPatch, fmt.Sprintf("/api/folders/%d", taxes.ID), token, updateFolderRequest{Name: &name})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, name, decode[models.Folder](t, rec).Name)

	rec = env.doJSON(t, http.MethodPatch, fmt.Sprintf("/api/folders/%d", taxes.ID), token, updateFolderRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/folders/%d", taxes.ID), token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/folders/%d?recursive=maybe", taxes.ID), token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/folders/%d?recursive=true", taxes.ID), token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, env.folders.GetFolderByID(taxes.ID))

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/folders/%d", taxes.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/folders/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, []string{
		ActionFolderCreated,
		ActionFolderCreated,
		ActionFolderRenamed,
		ActionFolderDeleted,
	}, env.settledEvents(t, 4))
}

func TestFileRoutes(t *testing.T) {
	env := newEnv(t, Options{})
	token := env.login(t)
	docs := env.folders.GetFolderByName("Documents")
	other := env.folders.GetFolderByName("Other")
	require.NotNil(t, docs)
	require.NotNil(t, other)

	content := "quarterly numbers"
	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/folders/%d/files?name=report.txt", docs.ID), token, strings.NewReader(content))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	file := decode[models.EncryptedFile](t, rec)
	assert.Equal(t, "report.txt", file.OriginalName)
	assert.Equal(t, int64(len(content)), file.SizeBytes)
	assert.NotContains(t, rec.Body.String(), "encrypted_path")

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/folders/%d/files", docs.ID), token, strings.NewReader(content))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/folders/%d/files", docs.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.EncryptedFile](t, rec), 1)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/folders/%d/files", other.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/files/%d/content", file.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content, rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/files/%d", file.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, decode[models.EncryptedFile](t, rec).LastAccess)

	newName := "q3.txt"
	rec = env.doJSON(t, http.MethodPatch, fmt.Sprintf("/api/files/%d", file.ID), token, updateFileRequest{Name: &newName, FolderID: &other.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[models.EncryptedFile](t, rec)
	assert.Equal(t, newName, updated.OriginalName)
	assert.Equal(t, other.ID, updated.FolderID)

	missing := int64(9999)
	rec = env.doJSON(t, http.MethodPatch, fmt.Sprintf("/api/files/%d", file.ID), token, updateFileRequest{FolderID: &missing})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	blank := " "
	rec = env.doJSON(t, http.MethodPatch, fmt.Sprintf("/api/files/%d", file.ID), token, updateFileRequest{Name: &blank})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/files/%d", file.ID), token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/files/%d", file.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []string{ActionFileImported, ActionFileUpdated, ActionFileDeleted}, env.settledEvents(t, 3))
}

func TestUpload_SizeLimit(t *testing.T) {
	env := newEnv(t, Options{MaxUploadBytes: 8})
	token := env.login(t)
	docs := env.folders.GetFolderByName("Documents")
	require.NotNil(t, docs)
	target := fmt.Sprintf("/api/folders/%d/files?name=note.txt", docs.ID)

	rec := env.do(t, http.MethodPost, target, token, strings.NewReader("12345678"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, target, token, strings.NewReader("123456789"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	// no Content-Length, so the limit is hit while reading
	rec = env.do(t, http.MethodPost, target, token, io.MultiReader(strings.NewReader("123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	files, err := env.files.GetFilesInFolder(context.Background(), docs)
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Equal(t, []string{ActionFileImported}, env.settledEvents(t, 1))
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	env := newEnv(t, Options{})
	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/logout"},
		{http.MethodPost, "/api/folders"},
		{http.MethodPatch, "/api/folders/1"},
		{http.MethodDelete, "/api/folders/1"},
		{http.MethodGet, "/api/folders/1/files"},
		{http.MethodPost, "/api/folders/1/files"},
		{http.MethodGet, "/api/files/1"},
		{http.MethodGet, "/api/files/1/content"},
		{http.MethodPatch, "/api/files/1"},
		{http.MethodDelete, "/api/files/1"},
	}
	for _, r := range routes {
		rec := env.do(t, r.method, r.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, r.method+" "+r.path)
	}
	assert.Empty(t, env.events.get())
}

func TestServe_GracefulShutdown(t *testing.T) {
	env := newEnv(t, Options{ShutdownTimeout: time.Second})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/filestore"
	"github.com/dmitrijs2005/filevault/internal/folders"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	changedFrom, changedTo string
	err                    error
}

func (f *fakeAuth) IsInitialized(context.Context) (bool, error)   { return true, nil }
func (f *fakeAuth) Setup(context.Context, []byte) error            { return nil }
func (f *fakeAuth) Unlock(context.Context, []byte) ([]byte, error) { return nil, nil }
func (f *fakeAuth) Verify(context.Context, []byte) error           { return nil }
func (f *fakeAuth) ChangePassword(_ context.Context, oldPw, newPw []byte) error {
	if f.err != nil {
		return f.err
	}
	f.changedFrom, f.changedTo = string(oldPw), string(newPw)
	return nil
}

type shellEnv struct {
	deps    Deps
	dataDir string
	workDir string
	auth    *fakeAuth
}

func newShellEnv(t *testing.T) *shellEnv {
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

	log, ring := logging.New(logging.Options{Output: &bytes.Buffer{}})
	auth := &fakeAuth{}

	workDir := filepath.Join(dir, "work")
	require.NoError(t, os.MkdirAll(workDir, 0o700))

	return &shellEnv{
		deps: Deps{
			Store:   db,
			Folders: fm,
			Files:   filestore.NewStore(db, cipher, dataDir, log),
			Auth:    auth,
			Ring:    ring,
			Log:     log,
		},
		dataDir: dataDir,
		workDir: workDir,
		auth:    auth,
	}
}

func (e *shellEnv) run(t *testing.T, script ...string) string {
	t.Helper()
	var out bytes.Buffer
	s := NewSession(e.deps, strings.NewReader(strings.Join(script, "\n")+"\n"), &out)
	require.NoError(t, s.Run(context.Background()))
	return out.String()
}

func TestSession_FolderNavigation(t *testing.T) {
	env := newShellEnv(t)

	out := env.run(t,
		"tree",
		"cd documents",
		`mkdir "Tax returns" yearly filings`,
		`mkdir "tax returns"`,
		"ls",
		"cd ..",
		"exit",
	)

	assert.Contains(t, out, "filevault:/Vault> ")
	assert.Contains(t, out, "filevault:/Vault/Documents> ")
	assert.Contains(t, out, "created folder Tax returns")
	assert.Contains(t, out, "already exists")
	assert.Contains(t, out, "[dir] Tax returns/")
	assert.Contains(t, out, "Bye!")

	f := env.deps.Folders.GetFolderByName("Tax returns")
	require.NotNil(t, f)
	assert.Equal(t, "yearly filings", f.Description)
	assert.Equal(t, folders.BaseFolderName, env.deps.Folders.GetCurrentFolder().Name)
}

func TestSession_SelectionSurvivesRestart(t *testing.T) {
	env := newShellEnv(t)
	env.run(t, "cd Images")

	fm := folders.NewManager(env.deps.Store, env.dataDir, logging.Discard())
	require.NoError(t, fm.Initialize(context.Background()))
	env.deps.Folders = fm

	out := env.run(t, "exit")
	assert.Contains(t, out, "filevault:/Vault/Images> ")
}

func TestSession_FileCommands(t *testing.T) {
	env := newShellEnv(t)
	src := filepath.Join(env.workDir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("top secret"), 0o600))
	exported := filepath.Join(env.workDir, "out.txt")

	out := env.run(t,
		"cd Documents",
		"import "+src,
		"ls",
		"export #1 "+exported,
		"rename 1 plans.txt",
		"mv 1 ..",
		"rm 1",
		"rm 1",
		"export x y",
	)

	assert.Contains(t, out, "imported notes.txt as #1 (10 B)")
	assert.Contains(t, out, "notes.txt")
	assert.Contains(t, out, "text/plain")
	assert.Contains(t, out, "renamed #1 to plans.txt")
	assert.Contains(t, out, "moved plans.txt to Vault")
	assert.Contains(t, out, "deleted plans.txt")
	assert.Contains(t, out, "not found")
	assert.Contains(t, out, "is not a number")

	got, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Equal(t, "top secret", string(got))

	entries, err := os.ReadDir(env.dataDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "blob removed with the file")
}

func TestSession_ExportIntoDirectory(t *testing.T) {
	env := newShellEnv(t)
	src := filepath.Join(env.workDir, "a.bin")
	require.NoError(t, os.WriteFile(src, []byte{1, 2, 3}, 0o600))
	destDir := filepath.Join(env.workDir, "exports")
	require.NoError(t, os.MkdirAll(destDir, 0o700))

	env.run(t, "import "+src, "export 1 "+destDir)

	got, err := os.ReadFile(filepath.Join(destDir, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestSession_ImportDir(t *testing.T) {
	env := newShellEnv(t)
	dir := filepath.Join(env.workDir, "trip")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jpg"), []byte("b"), 0o600))

	out := env.run(t, "import-dir "+dir, "cd trip", "ls")
	assert.Contains(t, out, "imported 2 file(s) into trip")
	assert.Contains(t, out, "image/jpeg")
}

func TestSession_Rmdir(t *testing.T) {
	env := newShellEnv(t)

	out := env.run(t, "rmdir Documents", "rmdir Nope")
	assert.Contains(t, out, "deleted folder Documents")
	assert.Contains(t, out, `folder "Nope": not found`)
	assert.Nil(t, env.deps.Folders.GetFolderByName("Documents"))

	out = env.run(t, "cd Music", "mkdir Live", "cd ..", "rmdir Music", "rmdir -r Music")
	assert.Contains(t, out, "use rmdir -r")
	assert.Nil(t, env.deps.Folders.GetFolderByName("Music"))
	assert.Nil(t, env.deps.Folders.GetFolderByName("Live"))
}

func TestSession_RenameFolder(t *testing.T) {
	env := newShellEnv(t)
	out := env.run(t, "rename-folder Videos Movies", "rename-folder Movies images", "rename-folder Movies")
	assert.Contains(t, out, "renamed to Movies")
	assert.Contains(t, out, "already exists")
	assert.Contains(t, out, "usage: rename-folder <name> <new>")
	assert.NotNil(t, env.deps.Folders.GetFolderByName("Movies"))
}

func TestSession_ReloadsAfterExternalChange(t *testing.T) {
	env := newShellEnv(t)
	ctx := context.Background()
	vault := env.deps.Folders.GetFolderByName(folders.BaseFolderName)
	require.NotNil(t, vault)

	_, err := env.deps.Store.DB().ExecContext(ctx,
		env.deps.Store.DB().Rebind(`INSERT INTO folders (name, parent_id) VALUES (?, ?)`), "FromAPI", vault.ID)
	require.NoError(t, err)
	assert.Nil(t, env.deps.Folders.GetFolderByName("FromAPI"))

	var out bytes.Buffer
	s := NewSession(env.deps, strings.NewReader("tree\n"), &out)
	s.OnChange("folder.created")
	require.NoError(t, s.Run(ctx))

	assert.Contains(t, out.String(), "vault changed via API (folder.created), reloaded")
	assert.Contains(t, out.String(), "FromAPI")
	assert.NotNil(t, env.deps.Folders.GetFolderByName("FromAPI"))
}

func TestSession_Passwd(t *testing.T) {
	env := newShellEnv(t)

	orig := readPassword
	t.Cleanup(func() { readPassword = orig })
	answers := []string{"old-password", "new-password", "new-password"}
	readPassword = func(int) ([]byte, error) {
		a := answers[0]
		answers = answers[1:]
		return []byte(a), nil
	}

	out := env.run(t, "passwd")
	assert.Contains(t, out, "master password changed")
	assert.Equal(t, "old-password", env.auth.changedFrom)
	assert.Equal(t, "new-password", env.auth.changedTo)

	answers = []string{"old-password", "new-password", "typo"}
	out = env.run(t, "passwd")
	assert.Contains(t, out, ErrPasswordMismatch.Error())

	env.auth.err = common.ErrUnauthorized
	answers = []string{"bad", "new-password", "new-password"}
	out = env.run(t, "passwd")
	assert.Contains(t, out, "unauthorized")

	readPassword = func(int) ([]byte, error) { return nil, errors.New("no tty") }
	out = env.run(t, "passwd")
	assert.Contains(t, out, "no tty")
}

func TestSession_MiscCommands(t *testing.T) {
	env := newShellEnv(t)
	env.deps.Log.Info(context.Background(), "hello from the log")

	out := env.run(t, "help", "frobnicate", `mkdir "broken`, "logs 5", "logs zero", "cd")
	assert.Contains(t, out, "import-dir <path>")
	assert.Contains(t, out, `unknown command "frobnicate"`)
	assert.Contains(t, out, "unterminated quote")
	assert.Contains(t, out, "hello from the log")
	assert.Contains(t, out, "usage: logs [n]")
	assert.Contains(t, out, "usage: cd")
}

func TestSession_StopsOnCancelledContext(t *testing.T) {
	env := newShellEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	s := NewSession(env.deps, strings.NewReader("mkdir Never\n"), &out)
	require.NoError(t, s.Run(ctx))
	assert.Nil(t, env.deps.Folders.GetFolderByName("Never"))
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: "ls", want: []string{"ls"}},
		{in: "  mkdir   a  b ", want: []string{"mkdir", "a", "b"}},
		{in: `mkdir "Tax returns" desc`, want: []string{"mkdir", "Tax returns", "desc"}},
		{in: `rename 1 ""`, want: []string{"rename", "1", ""}},
		{in: "", want: nil},
		{in: `mkdir "open`, wantErr: true},
	}
	for _, tt := range tests {
		got, err := splitArgs(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	v, err := GetSimpleText(bufioReader("  value \n"), "Name", &out)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
	assert.Equal(t, "Name: ", out.String())

	v, err = GetSimpleText(bufioReader("partial"), "Name", &out)
	require.NoError(t, err)
	assert.Equal(t, "partial", v)

	_, err = GetSimpleText(bufioReader(""), "Name", &out)
	require.Error(t, err)
}

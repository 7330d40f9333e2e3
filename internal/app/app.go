// Package app wires every filevault component into one context object and
// runs it: storage, the master password, the folder tree, the encrypted
// file store, the control API and the interactive shell.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/filevault/internal/api"
	"github.com/dmitrijs2005/filevault/internal/cli"
	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/config"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/filestore"
	"github.com/dmitrijs2005/filevault/internal/folders"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/services"
	"github.com/dmitrijs2005/filevault/internal/storage"
)

// MaxUnlockAttempts is how often Login asks for the password.
const MaxUnlockAttempts = 3

type App struct {
	config *config.Config
	logger logging.Logger
	ring   *logging.Ring

	store    *storage.Store
	auth     services.AuthService
	cipher   *cryptox.FileCipher
	folders  *folders.Manager
	files    *filestore.Store
	tokens   *api.TokenManager
	notifier *api.Notifier

	in  io.Reader
	out io.Writer
}

func NewApp(c *config.Config, logger logging.Logger, ring *logging.Ring) *App {
	return &App{
		config: c,
		logger: logger.With("module", "app"),
		ring:   ring,
		in:     os.Stdin,
		out:    os.Stdout,
	}
}

// SetIO replaces the shell's input and output streams.
func (a *App) SetIO(in io.Reader, out io.Writer) {
	a.in, a.out = in, out
}

// Open connects to the database and applies migrations.
func (a *App) Open(ctx context.Context) error {
	store, err := storage.Open(ctx, a.config.DBDriver, a.config.DSN(), a.logger)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	a.store = store
	a.auth = services.NewAuthService(store, a.logger)
	return nil
}

// Unlock sets the vault up on first use, otherwise checks password, and
// builds the components that need the data key.
func (a *App) Unlock(ctx context.Context, password []byte) error {
	if a.store == nil {
		return fmt.Errorf("%w: storage is not open", common.ErrIllegalState)
	}

	ok, err := a.auth.IsInitialized(ctx)
	if err != nil {
		return err
	}
	if !ok {
		if err := a.auth.Setup(ctx, password); err != nil {
			return err
		}
	}

	dataKey, err := a.auth.Unlock(ctx, password)
	if err != nil {
		return err
	}
	cipher, err := cryptox.NewFileCipher(dataKey)
	cryptox.Wipe(dataKey)
	if err != nil {
		return err
	}

	fm := folders.NewManager(a.store, a.config.BlobDir(), a.logger)
	if err := fm.Initialize(ctx); err != nil {
		cipher.Close()
		return err
	}

	tokens, err := api.NewTokenManager()
	if err != nil {
		cipher.Close()
		return err
	}

	a.cipher = cipher
	a.folders = fm
	a.files = filestore.NewStore(a.store, cipher, a.config.BlobDir(), a.logger)
	a.tokens = tokens
	a.notifier = api.NewNotifier(a.logger)
	return nil
}

// Login prompts for the master password on the terminal, asking for a new
// one when the vault has not been set up yet.
func (a *App) Login(ctx context.Context) error {
	ok, err := a.auth.IsInitialized(ctx)
	if err != nil {
		return err
	}

	if !ok {
		fmt.Fprintln(a.out, "No vault found, choose a master password.")
		pw, err := cli.PromptNewPassword("New master password", a.out)
		if err != nil {
			return err
		}
		defer cryptox.Wipe(pw)
		return a.Unlock(ctx, pw)
	}

	for i := 0; i < MaxUnlockAttempts; i++ {
		pw, err := cli.GetPassword("Master password", a.out)
		if err != nil {
			return err
		}
		err = a.Unlock(ctx, pw)
		cryptox.Wipe(pw)
		if !errors.Is(err, common.ErrUnauthorized) {
			return err
		}
		fmt.Fprintln(a.out, "Wrong password.")
	}
	return common.ErrUnauthorized
}

func (a *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

func (a *App) startAPIServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := api.NewServer(api.Options{
		Addr:            a.config.APIAddr,
		AuthRateLimit:   a.config.AuthRateLimit,
		AuthRateWindow:  a.config.AuthRateWindow,
		ShutdownTimeout: a.config.ShutdownTimeout,
		MaxUploadBytes:  a.config.MaxUploadBytes,
	}, a.auth, a.folders, a.files, a.tokens, a.notifier, a.logger)

	if err := s.Run(ctx); err != nil {
		a.logger.Error(ctx, "API server stopped", "error", err)
		cancelFunc()
	}
}

// Run serves the control API and the shell until the user exits or a
// termination signal arrives. Unlock must have succeeded first.
func (a *App) Run(ctx context.Context) error {
	if a.folders == nil {
		return fmt.Errorf("%w: vault is not unlocked", common.ErrLocked)
	}

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	a.logger.Info(ctx, "Starting app...")
	a.initSignalHandler(ctx, cancelFunc)

	var wg sync.WaitGroup

	if a.config.APIEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.startAPIServer(ctx, cancelFunc)
		}()
	}

	session := cli.NewSession(cli.Deps{
		Store:   a.store,
		Folders: a.folders,
		Files:   a.files,
		Auth:    a.auth,
		Ring:    a.ring,
		Log:     a.logger,
	}, a.in, a.out)
	id := a.notifier.AddChangeListener(session.OnChange)
	defer a.notifier.RemoveChangeListener(id)

	// The shell blocks on input, so it is not waited for after a signal.
	shellErr := make(chan error, 1)
	go func() {
		shellErr <- session.Run(ctx)
		cancelFunc()
	}()

	var err error
	select {
	case err = <-shellErr:
	case <-ctx.Done():
	}

	cancelFunc()
	wg.Wait()
	a.logger.Info(context.Background(), "App stopped")
	return err
}

// Close releases everything Open and Unlock acquired. It is safe to call
// more than once.
func (a *App) Close() error {
	if a.notifier != nil {
		a.notifier.Close()
	}
	if a.tokens != nil {
		a.tokens.InvalidateAll()
	}
	if a.cipher != nil {
		a.cipher.Close()
		a.cipher = nil
	}
	if a.store != nil {
		err := a.store.Close()
		a.store = nil
		return err
	}
	return nil
}

func (a *App) Folders() *folders.Manager { return a.folders }

func (a *App) Files() *filestore.Store { return a.files }

func (a *App) Notifier() *api.Notifier { return a.notifier }

func (a *App) Tokens() *api.TokenManager { return a.tokens }

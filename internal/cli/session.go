package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/filevault/internal/filestore"
	"github.com/dmitrijs2005/filevault/internal/folders"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/services"
	"github.com/dmitrijs2005/filevault/internal/storage"
	"github.com/fatih/color"

	settingsrepo "github.com/dmitrijs2005/filevault/internal/repositories/settings"
)

// Deps are the components a Session drives.
type Deps struct {
	Store   *storage.Store
	Folders *folders.Manager
	Files   *filestore.Store
	Auth    services.AuthService
	Ring    *logging.Ring
	Log     logging.Logger
}

type Session struct {
	store   *storage.Store
	folders *folders.Manager
	files   *filestore.Store
	auth    services.AuthService
	ring    *logging.Ring
	log     logging.Logger

	in  *bufio.Reader
	out io.Writer

	stale   atomic.Bool
	mu      sync.Mutex
	pending []string
}

func NewSession(d Deps, in io.Reader, out io.Writer) *Session {
	return &Session{
		store:   d.Store,
		folders: d.Folders,
		files:   d.Files,
		auth:    d.Auth,
		ring:    d.Ring,
		log:     d.Log.With("module", "cli"),
		in:      bufio.NewReader(in),
		out:     out,
	}
}

// OnChange is registered as a change listener. It runs on the notifier's
// goroutine and only records the event; the REPL goroutine applies it.
func (s *Session) OnChange(action string) {
	s.mu.Lock()
	s.pending = append(s.pending, action)
	s.mu.Unlock()
	s.stale.Store(true)
}

// resync reloads the folder tree if change events arrived since the last
// command and reports what happened.
func (s *Session) resync(ctx context.Context) {
	if !s.stale.Swap(false) {
		return
	}
	s.mu.Lock()
	actions := s.pending
	s.pending = nil
	s.mu.Unlock()

	if err := s.folders.ReloadFromDatabase(ctx); err != nil {
		s.errorf("reload after external change failed: %v", err)
		return
	}
	s.files.ReloadFromDatabase()
	fmt.Fprintln(s.out, color.CyanString("↻")+" vault changed via API ("+strings.Join(actions, ", ")+"), reloaded")
}

// restoreSelection selects the folder saved by a previous session.
func (s *Session) restoreSelection(ctx context.Context) {
	v, ok, err := s.settings().Get(ctx, settingsrepo.KeyCurrentFolder)
	if err != nil || !ok {
		return
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return
	}
	s.folders.SetCurrentFolder(s.folders.GetFolderByID(id))
}

func (s *Session) saveSelection(ctx context.Context) {
	cur := s.folders.GetCurrentFolder()
	if cur == nil {
		return
	}
	if err := s.settings().Set(ctx, settingsrepo.KeyCurrentFolder, strconv.FormatInt(cur.ID, 10)); err != nil {
		s.log.Warn(ctx, "failed to save current folder", "error", err)
	}
}

func (s *Session) settings() *settingsrepo.SQLRepository {
	return settingsrepo.NewSQLRepository(s.store.DB())
}

func (s *Session) prompt() string {
	cur := s.folders.GetCurrentFolder()
	if cur == nil {
		return "filevault> "
	}
	return fmt.Sprintf("filevault:/%s> ", s.folders.Path(cur.ID))
}

// Run is the read-eval-print loop. It returns nil on exit or end of input.
func (s *Session) Run(ctx context.Context) error {
	s.restoreSelection(ctx)
	fmt.Fprintln(s.out, "filevault shell (type 'help' for commands)")

	for {
		if ctx.Err() != nil {
			return nil
		}
		s.resync(ctx)

		fmt.Fprint(s.out, s.prompt())
		line, err := s.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := errors.Is(err, io.EOF)

		args, perr := splitArgs(strings.TrimSpace(line))
		if perr != nil {
			s.errorf("%v", perr)
		} else if len(args) > 0 {
			s.resync(ctx)
			if !s.exec(ctx, args[0], args[1:]) {
				fmt.Fprintln(s.out, "Bye!")
				return nil
			}
		}
		if eof {
			fmt.Fprintln(s.out)
			return nil
		}
	}
}

// exec runs one command and reports whether the loop should continue.
func (s *Session) exec(ctx context.Context, cmd string, args []string) bool {
	var err error
	switch cmd {
	case "help", "?":
		s.help()
	case "tree":
		s.tree()
	case "ls":
		err = s.ls(ctx)
	case "cd":
		err = s.cd(ctx, args)
	case "mkdir":
		err = s.mkdir(ctx, args)
	case "rename-folder":
		err = s.renameFolder(ctx, args)
	case "rmdir":
		err = s.rmdir(ctx, args)
	case "import":
		err = s.importFile(ctx, args)
	case "import-dir":
		err = s.importDir(ctx, args)
	case "export":
		err = s.export(ctx, args)
	case "mv":
		err = s.move(ctx, args)
	case "rename":
		err = s.renameFile(ctx, args)
	case "rm":
		err = s.remove(ctx, args)
	case "passwd":
		err = s.passwd(ctx)
	case "logs":
		err = s.logs(args)
	case "exit", "quit":
		return false
	default:
		s.errorf("unknown command %q, type 'help'", cmd)
	}
	if err != nil {
		s.errorf("%v", err)
	}
	return true
}

func (s *Session) errorf(format string, args ...any) {
	fmt.Fprintln(s.out, color.RedString("✗")+" "+fmt.Sprintf(format, args...))
}

func (s *Session) okf(format string, args ...any) {
	fmt.Fprintln(s.out, color.GreenString("✓")+" "+fmt.Sprintf(format, args...))
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/models"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

var errUsage = errors.New("usage")

func usage(s string) error {
	return fmt.Errorf("%w: %s", errUsage, s)
}

const helpText = `Folders:
  tree                          show the whole folder tree
  ls                            list subfolders and files of the current folder
  cd <name|..|/>                change the current folder
  mkdir <name> [description]    create a subfolder
  rename-folder <name> <new>    rename a subfolder
  rmdir [-r] <name>             delete a subfolder (-r with everything below it)
Files:
  import <path>                 encrypt a file into the current folder
  import-dir <path>             import every file of a directory as a new subfolder
  export <id> <dest>            decrypt a file to dest
  mv <id> <folder>              move a file to a subfolder name, '..' or a folder id
  rename <id> <new>             rename a file
  rm <id>                       delete a file
Other:
  passwd                        change the master password
  logs [n]                      show the last n log entries
  exit                          leave the shell
Names with spaces go in double quotes.`

func (s *Session) help() {
	fmt.Fprintln(s.out, helpText)
}

func (s *Session) current() (*models.Folder, error) {
	cur := s.folders.GetCurrentFolder()
	if cur == nil {
		return nil, fmt.Errorf("%w: no folder selected", common.ErrIllegalState)
	}
	return cur, nil
}

// child finds a direct subfolder of parent by name, ignoring case.
func (s *Session) child(parent *models.Folder, name string) (*models.Folder, error) {
	var pid *int64
	if parent != nil {
		pid = &parent.ID
	}
	for _, f := range s.folders.GetSubfolders(pid) {
		if models.SameName(f.Name, name) {
			return &f, nil
		}
	}
	return nil, fmt.Errorf("folder %q: %w", name, common.ErrNotFound)
}

func (s *Session) tree() {
	cur := s.folders.GetCurrentFolder()
	var walk func(parent *int64, depth int)
	walk = func(parent *int64, depth int) {
		for _, f := range s.folders.GetSubfolders(parent) {
			marker := " "
			if cur != nil && cur.ID == f.ID {
				marker = color.GreenString("*")
			}
			fmt.Fprintf(s.out, "%s %s%s\n", marker, strings.Repeat("  ", depth), f.Name)
			walk(&f.ID, depth+1)
		}
	}
	if s.folders.Count() == 0 {
		fmt.Fprintln(s.out, "(empty vault)")
		return
	}
	walk(nil, 0)
}

func (s *Session) ls(ctx context.Context) error {
	cur, err := s.current()
	if err != nil {
		return err
	}
	for _, f := range s.folders.GetSubfolders(&cur.ID) {
		fmt.Fprintf(s.out, "  %s %s/\n", color.BlueString("[dir]"), f.Name)
	}
	files, err := s.files.GetFilesInFolder(ctx, cur)
	if err != nil {
		return err
	}
	for _, f := range files {
		added := "-"
		if f.CreatedAt != nil {
			added = f.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(s.out, "  #%-5d %-30s %10s  %-24s %s\n",
			f.ID, f.OriginalName, humanize.IBytes(uint64(max(f.SizeBytes, 0))), f.MimeType, added)
	}
	return nil
}

func (s *Session) cd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("cd <name|..|/>")
	}
	cur := s.folders.GetCurrentFolder()

	var target *models.Folder
	switch args[0] {
	case "/":
		top := s.folders.GetSubfolders(nil)
		if len(top) == 0 {
			return fmt.Errorf("%w: vault has no folders", common.ErrNotFound)
		}
		target = &top[0]
	case "..":
		if cur == nil || cur.ParentID == nil {
			return nil
		}
		target = s.folders.GetFolderByID(*cur.ParentID)
	default:
		f, err := s.child(cur, args[0])
		if err != nil {
			return err
		}
		target = f
	}

	s.folders.SetCurrentFolder(target)
	s.saveSelection(ctx)
	return nil
}

func (s *Session) mkdir(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("mkdir <name> [description]")
	}
	var parent *int64
	if cur := s.folders.GetCurrentFolder(); cur != nil {
		parent = &cur.ID
	}
	f, err := s.folders.CreateFolder(ctx, args[0], strings.Join(args[1:], " "), parent)
	if err != nil {
		return err
	}
	s.okf("created folder %s (id %d)", f.Name, f.ID)
	return nil
}

func (s *Session) renameFolder(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("rename-folder <name> <new>")
	}
	f, err := s.child(s.folders.GetCurrentFolder(), args[0])
	if err != nil {
		return err
	}
	ok, err := s.folders.RenameFolder(ctx, f, args[1])
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("rename failed, see logs")
	}
	s.okf("renamed to %s", f.Name)
	return nil
}

func (s *Session) rmdir(ctx context.Context, args []string) error {
	recursive := false
	if len(args) > 0 && args[0] == "-r" {
		recursive = true
		args = args[1:]
	}
	if len(args) != 1 {
		return usage("rmdir [-r] <name>")
	}
	f, err := s.child(s.folders.GetCurrentFolder(), args[0])
	if err != nil {
		return err
	}

	if recursive {
		err = s.folders.DeleteFolderRecursive(ctx, f)
	} else {
		err = s.folders.DeleteFolder(ctx, f)
	}
	if errors.Is(err, common.ErrIllegalState) {
		return fmt.Errorf("%w (use rmdir -r)", err)
	}
	if err != nil {
		return err
	}
	s.okf("deleted folder %s", f.Name)
	return nil
}

// withSpinner shows a spinner while fn runs. Nothing is drawn when out is
// not a terminal.
func (s *Session) withSpinner(msg string, fn func() error) error {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(s.out))
	sp.Suffix = " " + msg
	_ = sp.Color("cyan")
	sp.Start()
	err := fn()
	sp.Stop()
	return err
}

func (s *Session) importFile(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("import <path>")
	}
	cur, err := s.current()
	if err != nil {
		return err
	}

	var f *models.EncryptedFile
	err = s.withSpinner("encrypting "+filepath.Base(args[0]), func() error {
		var ierr error
		f, ierr = s.files.ImportFile(ctx, args[0], cur)
		return ierr
	})
	if err != nil {
		return err
	}
	s.okf("imported %s as #%d (%s)", f.OriginalName, f.ID, humanize.IBytes(uint64(f.SizeBytes)))
	return nil
}

func (s *Session) importDir(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("import-dir <path>")
	}
	cur, err := s.current()
	if err != nil {
		return err
	}

	var (
		folder *models.Folder
		n      int
	)
	err = s.withSpinner("importing "+args[0], func() error {
		var ierr error
		folder, n, ierr = s.files.ImportDirectory(ctx, args[0], cur, s.folders)
		return ierr
	})
	if err != nil {
		return err
	}
	s.okf("imported %d file(s) into %s", n, folder.Name)
	return nil
}

func (s *Session) fileArg(ctx context.Context, arg string) (*models.EncryptedFile, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: file id %q is not a number", common.ErrInvalidArgument, arg)
	}
	return s.files.GetFileByID(ctx, id)
}

func (s *Session) export(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("export <id> <dest>")
	}
	f, err := s.fileArg(ctx, args[0])
	if err != nil {
		return err
	}

	dest := args[1]
	if st, serr := statDir(dest); serr == nil && st {
		dest = filepath.Join(dest, filepath.Base(f.OriginalName))
	}

	err = s.withSpinner("decrypting "+f.OriginalName, func() error {
		return s.files.ExportFile(ctx, f, dest)
	})
	if err != nil {
		return err
	}
	s.okf("exported #%d to %s", f.ID, dest)
	return nil
}

// folderArg resolves a move target: "..", a subfolder name of the current
// folder or a numeric folder id.
func (s *Session) folderArg(arg string) (*models.Folder, error) {
	cur := s.folders.GetCurrentFolder()
	if arg == ".." {
		if cur == nil || cur.ParentID == nil {
			return nil, fmt.Errorf("%w: no parent folder", common.ErrNotFound)
		}
		return s.folders.GetFolderByID(*cur.ParentID), nil
	}
	if f, err := s.child(cur, arg); err == nil {
		return f, nil
	}
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if f := s.folders.GetFolderByID(id); f != nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("folder %q: %w", arg, common.ErrNotFound)
}

func (s *Session) move(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("mv <id> <folder>")
	}
	f, err := s.fileArg(ctx, args[0])
	if err != nil {
		return err
	}
	target, err := s.folderArg(args[1])
	if err != nil {
		return err
	}
	if !s.files.MoveFile(ctx, f, target) {
		return errors.New("move failed, see logs")
	}
	s.okf("moved %s to %s", f.OriginalName, s.folders.Path(target.ID))
	return nil
}

func (s *Session) renameFile(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("rename <id> <new>")
	}
	f, err := s.fileArg(ctx, args[0])
	if err != nil {
		return err
	}
	if !s.files.RenameFile(ctx, f, args[1]) {
		return errors.New("rename failed, see logs")
	}
	s.okf("renamed #%d to %s", f.ID, f.OriginalName)
	return nil
}

func (s *Session) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("rm <id>")
	}
	f, err := s.fileArg(ctx, args[0])
	if err != nil {
		return err
	}
	if !s.files.DeleteFile(ctx, f) {
		return errors.New("delete failed, see logs")
	}
	s.okf("deleted %s", f.OriginalName)
	return nil
}

func (s *Session) passwd(ctx context.Context) error {
	if s.auth == nil {
		return fmt.Errorf("%w: password change is not available", common.ErrIllegalState)
	}
	old, err := GetPassword("Current password", s.out)
	if err != nil {
		return err
	}
	defer cryptox.Wipe(old)

	next, err := PromptNewPassword("New password", s.out)
	if err != nil {
		return err
	}
	defer cryptox.Wipe(next)

	if err := s.auth.ChangePassword(ctx, old, next); err != nil {
		return err
	}
	s.okf("master password changed")
	return nil
}

func (s *Session) logs(args []string) error {
	if s.ring == nil {
		return nil
	}
	n := 20
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return usage("logs [n]")
		}
		n = v
	}
	entries := s.ring.Entries()
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	for _, e := range entries {
		fmt.Fprintln(s.out, e.String())
	}
	return nil
}

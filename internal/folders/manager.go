// Package folders maintains the in-memory tree of virtual folders and keeps
// it consistent with the database.
//
// Folders are held in a single arena indexed by id. Parent/child links are
// expressed by ParentID only; child lists are computed from the arena when
// needed, so there is no second structure that could drift. The database is
// always written first and memory is updated only after a successful write
// or commit. ReloadFromDatabase replaces the arena wholesale and is the
// resync point after another actor (the control API) changed the store.
package folders

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/filex"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/models"
	"github.com/dmitrijs2005/filevault/internal/storage"

	filerepo "github.com/dmitrijs2005/filevault/internal/repositories/files"
	folderrepo "github.com/dmitrijs2005/filevault/internal/repositories/folders"
)

// Default tree created for an empty vault.
const BaseFolderName = "Vault"

var BaseSubfolders = []string{"Documents", "Images", "Videos", "Music", "Other"}

type Manager struct {
	store   *storage.Store
	dataDir string
	log     logging.Logger
	now     func() time.Time

	mu      sync.RWMutex
	nodes   map[int64]models.Folder
	order   []int64
	current int64
}

func NewManager(store *storage.Store, dataDir string, log logging.Logger) *Manager {
	return &Manager{
		store:   store,
		dataDir: dataDir,
		log:     log.With("module", "folders"),
		now:     func() time.Time { return time.Now().UTC() },
		nodes:   make(map[int64]models.Folder),
	}
}

func (m *Manager) folders(db dbx.DBTX) folderrepo.Repository {
	return folderrepo.NewSQLRepository(db)
}

func (m *Manager) files(db dbx.DBTX) filerepo.Repository {
	return filerepo.NewSQLRepository(db)
}

// Initialize makes sure the data directory exists, loads all folders and
// seeds the base structure when the vault has none.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := filex.EnsurePrivateDir(m.dataDir); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	if err := m.ReloadFromDatabase(ctx); err != nil {
		return err
	}

	m.mu.RLock()
	empty := len(m.nodes) == 0
	m.mu.RUnlock()

	if empty {
		root, err := m.CreateBaseStructure(ctx)
		if err != nil {
			return err
		}
		m.SetCurrentFolder(root)
	}

	m.log.Info(ctx, "folder tree initialized", "folders", m.Count())
	return nil
}

// CreateBaseStructure creates the default top-level folder and its category
// subfolders and returns the top-level folder.
func (m *Manager) CreateBaseStructure(ctx context.Context) (*models.Folder, error) {
	root, err := m.CreateFolder(ctx, BaseFolderName, "", nil)
	if err != nil {
		return nil, err
	}
	for _, name := range BaseSubfolders {
		if _, err := m.CreateFolder(ctx, name, "", &root.ID); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// siblingExists reports whether parentID already has a child called name,
// ignoring case. skip excludes one folder id from the check.
func (m *Manager) siblingExists(parentID *int64, name string, skip int64) bool {
	for _, id := range m.order {
		f := m.nodes[id]
		if id != skip && f.HasParent(parentID) && models.SameName(f.Name, name) {
			return true
		}
	}
	return false
}

func (m *Manager) hasChildren(id int64) bool {
	for _, f := range m.nodes {
		if f.ParentID != nil && *f.ParentID == id {
			return true
		}
	}
	return false
}

func (m *Manager) childrenOf(parentID *int64) []models.Folder {
	var out []models.Folder
	for _, id := range m.order {
		if f := m.nodes[id]; f.HasParent(parentID) {
			out = append(out, f)
		}
	}
	return out
}

// CreateFolder validates and persists a new folder, then adds it to the
// tree. parentID nil creates a top-level folder.
func (m *Manager) CreateFolder(ctx context.Context, name, description string, parentID *int64) (*models.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: folder name must not be empty", common.ErrInvalidArgument)
	}
	if parentID != nil {
		if _, ok := m.nodes[*parentID]; !ok {
			return nil, fmt.Errorf("%w: parent folder %d does not exist", common.ErrInvalidArgument, *parentID)
		}
		parentID = models.Int64Ptr(*parentID)
	}
	if m.siblingExists(parentID, name, 0) {
		return nil, fmt.Errorf("%w: a folder named %q already exists here", common.ErrInvalidArgument, name)
	}

	f := models.Folder{Name: name, Description: description, ParentID: parentID, CreatedAt: m.now()}
	id, err := m.folders(m.store.DB()).Create(ctx, &f)
	if err != nil {
		return nil, fmt.Errorf("create folder %q: %w", name, err)
	}
	f.ID = id

	m.nodes[id] = f
	m.order = append(m.order, id)

	m.log.Info(ctx, "folder created", "id", id, "name", name)
	return &f, nil
}

// RenameFolder persists a new name, keeping the description. A blank or
// duplicate name is a validation error; a failed or non-matching update
// reports false.
func (m *Manager) RenameFolder(ctx context.Context, folder *models.Folder, newName string) (bool, error) {
	if folder == nil {
		return false, fmt.Errorf("%w: folder is nil", common.ErrInvalidArgument)
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return false, fmt.Errorf("%w: folder name must not be empty", common.ErrInvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.nodes[folder.ID]
	if !ok {
		current = *folder
	}
	if m.siblingExists(current.ParentID, newName, folder.ID) {
		return false, fmt.Errorf("%w: a folder named %q already exists here", common.ErrInvalidArgument, newName)
	}

	if !m.update(ctx, folder.ID, newName, current.Description) {
		return false, nil
	}

	current.Name = newName
	if ok {
		m.nodes[folder.ID] = current
	}
	folder.Name = newName
	return true, nil
}

// UpdateDescription persists a new description for folder.
func (m *Manager) UpdateDescription(ctx context.Context, folder *models.Folder, description string) bool {
	if folder == nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.nodes[folder.ID]
	if !ok {
		current = *folder
	}
	if !m.update(ctx, folder.ID, current.Name, description) {
		return false
	}

	current.Description = description
	if ok {
		m.nodes[folder.ID] = current
	}
	folder.Description = description
	return true
}

func (m *Manager) update(ctx context.Context, id int64, name, description string) bool {
	n, err := m.folders(m.store.DB()).Update(ctx, id, name, description)
	if err != nil {
		m.log.Error(ctx, "folder update failed", "id", id, "error", err)
		return false
	}
	if n != 1 {
		m.log.Warn(ctx, "folder update matched no row", "id", id)
		return false
	}
	return true
}

// DeleteFolder removes an empty-of-subfolders folder and all files in it in
// one transaction. It fails with common.ErrIllegalState if the folder still
// has subfolders.
func (m *Manager) DeleteFolder(ctx context.Context, folder *models.Folder) error {
	if folder == nil {
		return fmt.Errorf("%w: folder is nil", common.ErrInvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hasChildren(folder.ID) {
		return fmt.Errorf("%w: folder %q has subfolders", common.ErrIllegalState, folder.Name)
	}

	blobs, err := m.deleteRows(ctx, []int64{folder.ID})
	if err != nil {
		return fmt.Errorf("delete folder %q: %w", folder.Name, err)
	}

	m.forget([]int64{folder.ID}, folder.ParentID)
	m.removeBlobs(ctx, blobs)
	m.log.Info(ctx, "folder deleted", "id", folder.ID, "name", folder.Name)
	return nil
}

// DeleteFolderRecursive removes folder with every descendant folder and
// file. Rows are deleted depth-first, descendants before ancestors, inside
// a single transaction, so either the whole subtree goes or nothing does.
func (m *Manager) DeleteFolderRecursive(ctx context.Context, folder *models.Folder) error {
	if folder == nil {
		return fmt.Errorf("%w: folder is nil", common.ErrInvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.postOrder(folder.ID)

	blobs, err := m.deleteRows(ctx, ids)
	if err != nil {
		return fmt.Errorf("delete folder %q recursively: %w", folder.Name, err)
	}

	m.forget(ids, folder.ParentID)
	m.removeBlobs(ctx, blobs)
	m.log.Info(ctx, "folder subtree deleted", "id", folder.ID, "name", folder.Name, "folders", len(ids))
	return nil
}

// postOrder lists the subtree rooted at id, children before parents.
func (m *Manager) postOrder(id int64) []int64 {
	var out []int64
	seen := make(map[int64]bool)

	var walk func(id int64)
	walk = func(id int64) {
		if seen[id] {
			return
		}
		seen[id] = true
		for _, child := range m.childrenOf(&id) {
			walk(child.ID)
		}
		out = append(out, id)
	}
	walk(id)
	return out
}

// deleteRows deletes files and then the folder row for every id, in order,
// inside one transaction, and returns the blob paths that belonged to the
// deleted files.
func (m *Manager) deleteRows(ctx context.Context, ids []int64) ([]string, error) {
	var blobs []string

	err := m.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		files := m.files(tx)
		folders := m.folders(tx)

		for _, id := range ids {
			paths, err := files.BlobPathsByFolderID(ctx, id)
			if err != nil {
				return err
			}
			if _, err := files.DeleteByFolderID(ctx, id); err != nil {
				return err
			}
			n, err := folders.Delete(ctx, id)
			if err != nil {
				return err
			}
			if n == 0 && id == ids[len(ids)-1] {
				return fmt.Errorf("folder %d: %w", id, common.ErrNotFound)
			}
			blobs = append(blobs, paths...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blobs, nil
}

// forget drops ids from the arena and moves the selection off any of them.
func (m *Manager) forget(ids []int64, parentID *int64) {
	currentGone := false
	for _, id := range ids {
		delete(m.nodes, id)
		if id == m.current {
			currentGone = true
		}
	}
	m.order = slices.DeleteFunc(m.order, func(id int64) bool {
		_, ok := m.nodes[id]
		return !ok
	})

	if currentGone {
		m.current = 0
		if parentID != nil {
			if _, ok := m.nodes[*parentID]; ok {
				m.current = *parentID
			}
		}
		if m.current == 0 && len(m.order) > 0 {
			m.current = m.order[0]
		}
	}
}

func (m *Manager) removeBlobs(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.log.Warn(ctx, "failed to remove blob", "path", p, "error", err)
		}
	}
}

// GetSubfolders returns the direct children of parentID, nil meaning the
// top level.
func (m *Manager) GetSubfolders(parentID *int64) []models.Folder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.childrenOf(parentID)
}

// GetFolderByName returns the first folder whose name matches exactly.
func (m *Manager) GetFolderByName(name string) *models.Folder {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		if f := m.nodes[id]; f.Name == name {
			return &f
		}
	}
	return nil
}

// GetFolderByID returns the folder with id or nil.
func (m *Manager) GetFolderByID(id int64) *models.Folder {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if f, ok := m.nodes[id]; ok {
		return &f
	}
	return nil
}

// GetFolders returns a copy of every folder in tree order of loading.
func (m *Manager) GetFolders() []models.Folder {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Folder, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.nodes[id])
	}
	return out
}

// GetAllFolders is an alias of GetFolders.
func (m *Manager) GetAllFolders() []models.Folder {
	return m.GetFolders()
}

// Count returns the number of folders in the tree.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// Path renders the slash-separated path of folder id, e.g. "Vault/Documents".
func (m *Manager) Path(id int64) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var parts []string
	seen := make(map[int64]bool)
	for {
		f, ok := m.nodes[id]
		if !ok || seen[id] {
			break
		}
		seen[id] = true
		parts = append(parts, f.Name)
		if f.ParentID == nil {
			break
		}
		id = *f.ParentID
	}
	slices.Reverse(parts)
	return strings.Join(parts, "/")
}

// SetCurrentFolder selects folder. It does nothing when folder is nil or
// not part of the tree.
func (m *Manager) SetCurrentFolder(folder *models.Folder) {
	if folder == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[folder.ID]; ok {
		m.current = folder.ID
	}
}

// GetCurrentFolder returns the selected folder or nil.
func (m *Manager) GetCurrentFolder() *models.Folder {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if f, ok := m.nodes[m.current]; ok {
		return &f
	}
	return nil
}

// ReloadFromDatabase replaces the tree with the rows in the database. The
// previous selection is kept if it still exists, otherwise the first folder
// is selected, or none when the vault is empty. The lock is held across the
// read so a concurrent create cannot land between the read and the swap.
func (m *Manager) ReloadFromDatabase(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.folders(m.store.DB()).GetAll(ctx)
	if err != nil {
		return fmt.Errorf("reload folders: %w", err)
	}

	nodes := make(map[int64]models.Folder, len(all))
	order := make([]int64, 0, len(all))
	for _, f := range all {
		nodes[f.ID] = f
		order = append(order, f.ID)
	}
	for _, f := range all {
		if f.ParentID != nil {
			if _, ok := nodes[*f.ParentID]; !ok {
				m.log.Warn(ctx, "folder references missing parent", "id", f.ID, "parent_id", *f.ParentID)
			}
		}
	}

	m.nodes = nodes
	m.order = order
	if _, ok := m.nodes[m.current]; !ok {
		m.current = 0
		if len(m.order) > 0 {
			m.current = m.order[0]
		}
	}

	m.log.Debug(ctx, "folders reloaded", "count", len(m.nodes))
	return nil
}

package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 250 * time.Millisecond

// file is the on-disk registry layout.
type file struct {
	Workspaces []Workspace `yaml:"workspaces"`
}

// Registry is the set of known workspaces. It is safe for concurrent use and
// can hot-reload from its YAML file.
type Registry struct {
	path string

	mu         sync.RWMutex
	workspaces map[string]*Workspace
	order      []string
}

// NewRegistry builds an in-memory registry.
func NewRegistry(workspaces ...Workspace) (*Registry, error) {
	r := &Registry{}
	if err := r.replace(workspaces); err != nil {
		return nil, err
	}
	return r, nil
}

// Load reads a registry from a YAML file.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the backing file, or "" for in-memory registries.
func (r *Registry) Path() string {
	return r.path
}

// Reload re-reads the backing file. On error the previous set is kept.
func (r *Registry) Reload() error {
	if r.path == "" {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return amerrors.New(amerrors.ErrCodeConfigNotFound, "workspaces file not found: "+r.path, err).
				WithSuggestion("Create it or set workspaces_file in .amanrag.yaml")
		}
		return amerrors.New(amerrors.ErrCodeFileNotFound, "read workspaces file", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return amerrors.ConfigError("parse workspaces file "+r.path, err)
	}
	return r.replace(f.Workspaces)
}

func (r *Registry) replace(list []Workspace) error {
	byID := make(map[string]*Workspace, len(list))
	order := make([]string, 0, len(list))
	for i := range list {
		ws := list[i].Clone()
		if err := ws.Validate(); err != nil {
			return amerrors.ConfigError(err.Error(), err)
		}
		if _, dup := byID[ws.ID]; dup {
			return amerrors.ConfigError(fmt.Sprintf("duplicate workspace id %s", ws.ID), nil)
		}
		byID[ws.ID] = ws
		order = append(order, ws.ID)
	}

	r.mu.Lock()
	r.workspaces = byID
	r.order = order
	r.mu.Unlock()
	return nil
}

// Get returns a copy of the workspace with the given id.
func (r *Registry) Get(id string) (*Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ws, ok := r.workspaces[id]
	if !ok {
		return nil, amerrors.WorkspaceNotFound(id)
	}
	return ws.Clone(), nil
}

// List returns copies of all workspaces in file order.
func (r *Registry) List() []*Workspace {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Workspace, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.workspaces[id].Clone())
	}
	return out
}

// Watch reloads the registry whenever its file changes, until ctx is done.
// The parent directory is watched so atomic rename-on-save is picked up.
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(r.path)
	if err != nil {
		return fmt.Errorf("resolve workspaces path: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	reload := func() {
		if err := r.Reload(); err != nil {
			slog.Warn("workspaces_reload_failed",
				slog.String("path", r.path),
				slog.String("error", err.Error()))
			return
		}
		slog.Info("workspaces_reloaded",
			slog.String("path", r.path),
			slog.Int("count", len(r.List())))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, reload)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("workspaces_watch_error", slog.String("error", err.Error()))
		}
	}
}

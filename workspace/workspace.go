// Package workspace holds the projects declared by a set of manifests.
//
// Projects are loaded eagerly and opened lazily: the first Get of a project
// opens it, concurrent first calls share one open, and a project stays open
// until the workspace is closed.
package workspace

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/robert-malhotra/virelay/errdefs"
	"github.com/robert-malhotra/virelay/internal/logging"
	"github.com/robert-malhotra/virelay/project"
)

// Summary describes a project without opening it.
type Summary struct {
	ID          int
	UUID        uuid.UUID
	Name        string
	Model       string
	DatasetName string
	Manifest    string
}

type entry struct {
	summary Summary
	project *project.Project
}

// Workspace is the read-only set of projects built at startup.
type Workspace struct {
	entries []*entry
	byName  map[string]int
	byUUID  map[uuid.UUID]int
	logger  *slog.Logger

	group  singleflight.Group
	mu     sync.Mutex
	closed atomic.Bool
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger for the workspace and its projects.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) {
		w.logger = l
	}
}

// ProjectUUID derives the stable identifier of the manifest at path.
func ProjectUUID(path string) (uuid.UUID, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(abs))), nil
}

// Load loads one project per manifest, in order. Project IDs are positions
// in paths. Two manifests declaring the same project name are a
// configuration error.
func Load(paths []string, opts ...Option) (*Workspace, error) {
	const op = "workspace load"
	w := &Workspace{
		byName: make(map[string]int, len(paths)),
		byUUID: make(map[uuid.UUID]int, len(paths)),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.OrNop(w.logger)

	for id, path := range paths {
		p, err := project.Load(path, project.WithLogger(w.logger))
		if err != nil {
			return nil, err
		}
		if prev, dup := w.byName[p.Name()]; dup {
			return nil, errdefs.Configurationf(op, p.Path(), "project.name",
				"project %q already declared by %s", p.Name(), w.entries[prev].summary.Manifest)
		}
		u, err := ProjectUUID(p.Path())
		if err != nil {
			return nil, errdefs.Configuration(op, path, "", err)
		}
		w.entries = append(w.entries, &entry{
			summary: Summary{
				ID:          id,
				UUID:        u,
				Name:        p.Name(),
				Model:       p.Model(),
				DatasetName: p.DatasetName(),
				Manifest:    p.Path(),
			},
			project: p,
		})
		w.byName[p.Name()] = id
		w.byUUID[u] = id
	}
	w.logger.Debug("workspace loaded", "projects", len(w.entries))
	return w, nil
}

// Len returns the number of projects.
func (w *Workspace) Len() int { return len(w.entries) }

// List returns every project summary in ID order. It opens nothing.
func (w *Workspace) List() []Summary {
	out := make([]Summary, len(w.entries))
	for i, e := range w.entries {
		out[i] = e.summary
	}
	return out
}

// Summary returns the summary of project id.
func (w *Workspace) Summary(id int) (Summary, error) {
	if id < 0 || id >= len(w.entries) {
		return Summary{}, errdefs.NotFound("workspace summary", "project", strconv.Itoa(id))
	}
	return w.entries[id].summary, nil
}

// Get returns project id, opening it on first use.
func (w *Workspace) Get(id int) (*project.Project, error) {
	const op = "workspace get"
	if id < 0 || id >= len(w.entries) {
		return nil, errdefs.NotFound(op, "project", strconv.Itoa(id))
	}
	return w.open(op, w.entries[id])
}

// GetByName returns the project called name, opening it on first use.
func (w *Workspace) GetByName(name string) (*project.Project, error) {
	const op = "workspace get"
	id, ok := w.byName[name]
	if !ok {
		return nil, errdefs.NotFound(op, "project", name)
	}
	return w.open(op, w.entries[id])
}

// GetByUUID returns the project with the given identifier, opening it on
// first use.
func (w *Workspace) GetByUUID(u uuid.UUID) (*project.Project, error) {
	const op = "workspace get"
	id, ok := w.byUUID[u]
	if !ok {
		return nil, errdefs.NotFound(op, "project", u.String())
	}
	return w.open(op, w.entries[id])
}

func (w *Workspace) open(op string, e *entry) (*project.Project, error) {
	if w.closed.Load() {
		return nil, errdefs.Closed(op, "workspace")
	}
	if e.project.State() == project.Open {
		return e.project, nil
	}
	_, err, _ := w.group.Do(strconv.Itoa(e.summary.ID), func() (any, error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.closed.Load() {
			return nil, errdefs.Closed(op, "workspace")
		}
		start := time.Now()
		if err := e.project.Open(); err != nil {
			return nil, err
		}
		w.logger.Info("workspace opened project", "project", e.summary.Name, "id", e.summary.ID, "duration", time.Since(start))
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return e.project, nil
}

// Close closes every project. It is safe to call more than once; Get fails
// with errdefs.ErrClosed afterwards.
func (w *Workspace) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, e := range w.entries {
		errs = append(errs, e.project.Close())
	}
	w.logger.Debug("workspace closed", "projects", len(w.entries))
	return errors.Join(errs...)
}

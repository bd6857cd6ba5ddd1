// Package project bundles the dataset, attribution database and analysis
// databases described by one project manifest and owns their lifecycle.
//
// A project moves through Unopened, Open and Closed. Open acquires every
// resource or none. Reads fail with errdefs.ErrClosed unless the project is
// Open, and every value they return stays valid after Close.
package project

import (
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/robert-malhotra/virelay/analysis"
	"github.com/robert-malhotra/virelay/attribution"
	"github.com/robert-malhotra/virelay/dataset"
	"github.com/robert-malhotra/virelay/errdefs"
	"github.com/robert-malhotra/virelay/internal/logging"
	"github.com/robert-malhotra/virelay/internal/metrics"
	"github.com/robert-malhotra/virelay/labels"
)

// State is the lifecycle state of a project.
type State int

const (
	Unopened State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Project is one model/dataset pairing with its attributions and analyses.
type Project struct {
	path    string
	spec    Spec
	lm      *labels.Map
	methods []string
	sources map[string][]string
	logger  *slog.Logger

	mu           sync.RWMutex
	state        State
	dataset      dataset.Dataset
	attributions *attribution.Database
	analyses     map[string]*analysis.Database
}

// Option configures a Project.
type Option func(*Project)

// WithLogger sets the logger for lifecycle events and passes it on to the
// project's resources.
func WithLogger(l *slog.Logger) Option {
	return func(p *Project) {
		p.logger = l
	}
}

// Load parses the manifest at path, loads its label map and validates the
// dataset configuration. Nothing else is opened. Relative paths in the
// manifest are taken relative to its directory.
func Load(path string, opts ...Option) (*Project, error) {
	const op = "project load"
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errdefs.Configuration(op, path, "", err)
	}
	m, err := ReadManifest(abs)
	if err != nil {
		return nil, err
	}
	spec := m.Project
	spec.resolve(filepath.Dir(abs))

	p := &Project{path: abs, spec: spec, sources: make(map[string][]string)}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.OrNop(p.logger).With("project", spec.Name)

	lm, err := labels.Load(spec.LabelMap)
	if err != nil {
		var e *errdefs.Error
		if errors.As(err, &e) && e.Field == "" {
			e.Field = "project.label_map"
		}
		return nil, err
	}
	p.lm = lm

	if d := spec.Dataset; d != nil {
		kind, _ := d.kind()
		if kind == KindDirectory {
			if err := d.directory().Validate(); err != nil {
				var e *errdefs.Error
				if errors.As(err, &e) {
					e.Op, e.Path, e.Field = op, abs, "project.dataset."+e.Field
				}
				return nil, err
			}
		}
	}

	// Entries repeating a method add their sources to it.
	for _, a := range spec.Analyses {
		if _, seen := p.sources[a.Method]; !seen {
			p.methods = append(p.methods, a.Method)
		}
		p.sources[a.Method] = append(p.sources[a.Method], a.Sources...)
	}
	return p, nil
}

// Path returns the absolute manifest path.
func (p *Project) Path() string { return p.path }

// Name returns the project name.
func (p *Project) Name() string { return p.spec.Name }

// Model returns the model name.
func (p *Project) Model() string { return p.spec.Model }

// DatasetName returns the dataset's display name, or "" without a dataset.
func (p *Project) DatasetName() string {
	if p.spec.Dataset == nil {
		return ""
	}
	return p.spec.Dataset.Name
}

// AttributionMethod returns the attribution method, or "".
func (p *Project) AttributionMethod() string {
	if p.spec.Attributions == nil {
		return ""
	}
	return p.spec.Attributions.Method
}

// AttributionStrategy returns the attribution strategy, or "".
func (p *Project) AttributionStrategy() string {
	if p.spec.Attributions == nil {
		return ""
	}
	return p.spec.Attributions.Strategy
}

// LabelMap returns the project's label map.
func (p *Project) LabelMap() *labels.Map { return p.lm }

// HasDataset reports whether the manifest declares a dataset.
func (p *Project) HasDataset() bool { return p.spec.Dataset != nil }

// HasAttributions reports whether the manifest declares attributions.
func (p *Project) HasAttributions() bool { return p.spec.Attributions != nil }

// HasAnalysis reports whether the manifest declares the analysis method.
func (p *Project) HasAnalysis(method string) bool {
	_, ok := p.sources[method]
	return ok
}

// AnalysisMethods returns the declared analysis methods in manifest order.
func (p *Project) AnalysisMethods() []string { return slices.Clone(p.methods) }

// State returns the lifecycle state.
func (p *Project) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Open acquires the dataset, the attribution database and every analysis
// database, in that order. If any of them fails, those already acquired are
// released and the project stays Unopened. Opening an open project is a
// no-op; a closed project cannot be reopened.
func (p *Project) Open() (err error) {
	const op = "project open"
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case Open:
		return nil
	case Closed:
		return errdefs.Closed(op, p.spec.Name)
	}

	start := time.Now()
	defer func() {
		if err != nil {
			p.logger.Warn("project open rolled back", "error", err)
			p.release()
		}
	}()

	if d := p.spec.Dataset; d != nil {
		kind, _ := d.kind()
		dsOpts := []dataset.Option{dataset.WithLogger(p.logger)}
		if kind == KindDirectory {
			dir, err := dataset.OpenDirectory(d.directory(), p.lm, dsOpts...)
			if err != nil {
				return err
			}
			p.dataset = dir
		} else {
			c, err := dataset.OpenContainer(d.Name, d.Path, p.lm, dsOpts...)
			if err != nil {
				return err
			}
			p.dataset = c
		}
	}
	if a := p.spec.Attributions; a != nil {
		if p.attributions, err = attribution.Open(a.Sources, p.lm, attribution.WithLogger(p.logger)); err != nil {
			return err
		}
	}
	p.analyses = make(map[string]*analysis.Database, len(p.methods))
	for _, method := range p.methods {
		db, err := analysis.Open(method, p.sources[method], p.lm, analysis.WithLogger(p.logger))
		if err != nil {
			return err
		}
		p.analyses[method] = db
	}

	p.state = Open
	metrics.ProjectsOpen.Inc()
	metrics.ProjectOpenDuration.Observe(time.Since(start).Seconds())
	p.logger.Info("project opened", "duration", time.Since(start))
	return nil
}

// Close releases every resource and moves the project to Closed. It is safe
// to call more than once and on a project that was never opened.
func (p *Project) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Closed {
		return nil
	}
	wasOpen := p.state == Open
	p.state = Closed
	if !wasOpen {
		return nil
	}
	metrics.ProjectsOpen.Dec()
	err := p.release()
	p.logger.Info("project closed")
	return err
}

// release closes whatever resources are held. Callers hold mu.
func (p *Project) release() error {
	var errs []error
	if p.dataset != nil {
		errs = append(errs, p.dataset.Close())
		p.dataset = nil
	}
	if p.attributions != nil {
		errs = append(errs, p.attributions.Close())
		p.attributions = nil
	}
	for _, method := range p.methods {
		if db := p.analyses[method]; db != nil {
			errs = append(errs, db.Close())
		}
	}
	p.analyses = nil
	return errors.Join(errs...)
}

// checkOpen fails unless the project is Open. Callers hold mu for reading.
func (p *Project) checkOpen(op string) error {
	if p.state != Open {
		return errdefs.Closed(op, p.spec.Name)
	}
	return nil
}

func (p *Project) openDataset(op string) (dataset.Dataset, error) {
	if err := p.checkOpen(op); err != nil {
		return nil, err
	}
	if p.dataset == nil {
		return nil, errdefs.NotFound(op, "dataset", p.spec.Name)
	}
	return p.dataset, nil
}

func (p *Project) openAttributions(op string) (*attribution.Database, error) {
	if err := p.checkOpen(op); err != nil {
		return nil, err
	}
	if p.attributions == nil {
		return nil, errdefs.NotFound(op, "attributions", p.spec.Name)
	}
	return p.attributions, nil
}

func (p *Project) openAnalysis(op, method string) (*analysis.Database, error) {
	if err := p.checkOpen(op); err != nil {
		return nil, err
	}
	db, ok := p.analyses[method]
	if !ok {
		return nil, errdefs.NotFound(op, "method", method)
	}
	return db, nil
}

// SampleCount returns the number of samples in the dataset.
func (p *Project) SampleCount() (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ds, err := p.openDataset("project sample count")
	if err != nil {
		return 0, err
	}
	return ds.Len(), nil
}

// Sample returns the dataset sample at index.
func (p *Project) Sample(index int) (dataset.Sample, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ds, err := p.openDataset("project get sample")
	if err != nil {
		return dataset.Sample{}, err
	}
	return ds.Sample(index)
}

// AttributionIndices returns every sample index that has an attribution.
func (p *Project) AttributionIndices() ([]int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	db, err := p.openAttributions("project attribution indices")
	if err != nil {
		return nil, err
	}
	return db.Indices(), nil
}

// Attribution returns the attribution of the sample at index.
func (p *Project) Attribution(index int) (attribution.Attribution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	db, err := p.openAttributions("project get attribution")
	if err != nil {
		return attribution.Attribution{}, err
	}
	return db.Get(index)
}

// Attributions returns the attributions of every index, all or nothing.
func (p *Project) Attributions(indices []int) ([]attribution.Attribution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	db, err := p.openAttributions("project get attributions")
	if err != nil {
		return nil, err
	}
	return db.GetMany(indices)
}

// Categories lists the categories of an analysis method.
func (p *Project) Categories(method string) ([]analysis.Category, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	db, err := p.openAnalysis("project analysis categories", method)
	if err != nil {
		return nil, err
	}
	return db.Categories()
}

// Clusterings lists the clusterings of one category.
func (p *Project) Clusterings(method, category string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	db, err := p.openAnalysis("project analysis clusterings", method)
	if err != nil {
		return nil, err
	}
	return db.Clusterings(category)
}

// Embeddings lists the embeddings of one category.
func (p *Project) Embeddings(method, category string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	db, err := p.openAnalysis("project analysis embeddings", method)
	if err != nil {
		return nil, err
	}
	return db.Embeddings(category)
}

// Analysis returns one analysis selection.
func (p *Project) Analysis(method, category, clustering, embedding string) (analysis.Analysis, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	db, err := p.openAnalysis("project get analysis", method)
	if err != nil {
		return analysis.Analysis{}, err
	}
	return db.Get(category, clustering, embedding)
}

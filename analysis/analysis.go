// Package analysis reads precomputed clustering and embedding results.
//
// One Database serves one analysis method. Its containers are laid out as
//
//	/<category>/index                  attribution index of every row
//	/<category>/cluster/<clustering>   cluster id of every row
//	/<category>/embedding/<embedding>  (rows, dimensions) embedding values
//
// An embedding dataset may carry the attributes `eigenvalue`, `embedding`
// (the name of the embedding it was computed from) and `index` (the axes of
// that base embedding it uses).
package analysis

import (
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/virelay/errdefs"
	"github.com/robert-malhotra/virelay/internal/container"
	"github.com/robert-malhotra/virelay/internal/logging"
	"github.com/robert-malhotra/virelay/internal/metrics"
	"github.com/robert-malhotra/virelay/labels"
)

// Category is one analysed subset of attributions, usually one class.
type Category struct {
	Name string
	// DisplayName is the label name when Name resolves through the label
	// map as an index or ontology id, and empty otherwise.
	DisplayName string
}

// Embedding is one point of an analysis.
type Embedding struct {
	AttributionIndex int
	Cluster          int
	Value            []float64
}

// Analysis is one (category, clustering, embedding) selection. It owns all
// of its data.
type Analysis struct {
	CategoryName        string
	CategoryDisplayName string
	ClusteringName      string
	EmbeddingName       string
	Embedding           []Embedding
	// Eigenvalues are nil when neither the embedding nor its base embedding
	// stores any. They are in stored order.
	Eigenvalues       []float64
	BaseEmbeddingName string
	BaseEmbeddingAxes []int
}

// Clusters returns the number of distinct cluster ids.
func (a Analysis) Clusters() int {
	seen := make(map[int]struct{})
	for _, e := range a.Embedding {
		seen[e.Cluster] = struct{}{}
	}
	return len(seen)
}

// Dimensions returns the length shared by every embedding value.
func (a Analysis) Dimensions() int {
	if len(a.Embedding) == 0 {
		return 0
	}
	return len(a.Embedding[0].Value)
}

// Database serves the analyses of one method.
type Database struct {
	method     string
	files      []*container.File
	categories map[string]*container.File
	names      []string
	lm         *labels.Map
	closed     atomic.Bool
	logger     *slog.Logger
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger used for open diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Database) {
		d.logger = l
	}
}

// Open opens the containers of one analysis method concurrently. A category
// stored in two containers is a data-integrity error.
func Open(method string, paths []string, lm *labels.Map, opts ...Option) (_ *Database, err error) {
	const op = "analysis open"
	d := &Database{method: method, categories: make(map[string]*container.File), lm: lm}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.OrNop(d.logger).With("method", method)

	files := make([]*container.File, len(paths))
	var g errgroup.Group
	for i, path := range paths {
		g.Go(func() error {
			f, err := container.Open(op, path)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	waitErr := g.Wait()
	for _, f := range files {
		if f != nil {
			d.files = append(d.files, f)
		}
	}
	defer func() {
		if err != nil {
			d.release()
		}
	}()
	if waitErr != nil {
		return nil, waitErr
	}

	for _, f := range d.files {
		members, err := f.Members("/")
		if err != nil {
			return nil, err
		}
		for _, name := range members {
			ok, err := f.HasGroup(op, name)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if prev, dup := d.categories[name]; dup {
				return nil, errdefs.Integrity(op, f.Path(), "category %q also stored in %s", name, prev.Path())
			}
			d.categories[name] = f
			d.names = append(d.names, name)
		}
		d.logger.Debug("opened analysis source", "path", f.Path(), "categories", len(members))
	}
	slices.Sort(d.names)
	return d, nil
}

// Method returns the analysis method name.
func (d *Database) Method() string { return d.method }

// Categories lists every category in name order.
func (d *Database) Categories() ([]Category, error) {
	if d.closed.Load() {
		return nil, errdefs.Closed("analysis categories", d.method)
	}
	out := make([]Category, len(d.names))
	for i, name := range d.names {
		out[i] = Category{Name: name}
		if l, err := d.lm.Resolve(name); err == nil {
			out[i].DisplayName = l.Name
		}
	}
	return out, nil
}

// Clusterings lists the clusterings stored for category.
func (d *Database) Clusterings(category string) ([]string, error) {
	return d.members("analysis clusterings", category, "cluster")
}

// Embeddings lists the embeddings stored for category.
func (d *Database) Embeddings(category string) ([]string, error) {
	return d.members("analysis embeddings", category, "embedding")
}

func (d *Database) members(op, category, group string) ([]string, error) {
	if d.closed.Load() {
		return nil, errdefs.Closed(op, d.method)
	}
	f, ok := d.categories[category]
	if !ok {
		return nil, errdefs.NotFound(op, "category", category)
	}
	names, err := f.Members(category + "/" + group)
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

// Has reports whether the selection exists.
func (d *Database) Has(category, clustering, embedding string) bool {
	if d.closed.Load() {
		return false
	}
	f, ok := d.categories[category]
	if !ok {
		return false
	}
	for _, name := range []string{category + "/cluster/" + clustering, category + "/embedding/" + embedding} {
		if ok, err := f.HasDataset("analysis has", name); err != nil || !ok {
			return false
		}
	}
	return true
}

// Get materializes one analysis. A missing key fails as not found naming its
// level. Row counts of index, clustering and embedding must agree.
func (d *Database) Get(category, clustering, embedding string) (a Analysis, err error) {
	const op = "analysis get"
	defer func(start time.Time) { metrics.ObserveRead(metrics.ComponentAnalysis, start, err) }(time.Now())

	if d.closed.Load() {
		return Analysis{}, errdefs.Closed(op, d.method)
	}
	f, ok := d.categories[category]
	if !ok {
		return Analysis{}, errdefs.NotFound(op, "category", category)
	}
	path := f.Path()

	clu, err := f.Lookup(op, category+"/cluster/"+clustering, "clustering", clustering)
	if err != nil {
		return Analysis{}, err
	}
	emb, err := f.Lookup(op, category+"/embedding/"+embedding, "embedding", embedding)
	if err != nil {
		return Analysis{}, err
	}
	idx, err := f.Dataset(op, category+"/index")
	if err != nil {
		return Analysis{}, err
	}

	indices, err := container.ReadAll[int64](op, path, idx)
	if err != nil {
		return Analysis{}, err
	}
	clusters, err := container.ReadAll[int64](op, path, clu)
	if err != nil {
		return Analysis{}, err
	}
	values, err := container.ReadAll[float64](op, path, emb)
	if err != nil {
		return Analysis{}, err
	}

	n := len(indices)
	if len(clusters) != n {
		return Analysis{}, errdefs.Integrity(op, path, "%s/%s has %d rows, index has %d", category, clustering, len(clusters), n)
	}
	var dims int
	switch emb.Rank() {
	case 1:
		dims = 1
	case 2:
		dims = int(emb.Shape()[1])
	default:
		return Analysis{}, errdefs.Integrity(op, path, "embedding %s has rank %d, want 2", embedding, emb.Rank())
	}
	if rows := container.Rows(emb); rows != n {
		return Analysis{}, errdefs.Integrity(op, path, "embedding %s has %d rows, index has %d", embedding, rows, n)
	}
	if n > 0 && dims == 0 {
		return Analysis{}, errdefs.Integrity(op, path, "embedding %s has zero-length rows", embedding)
	}

	a = Analysis{
		CategoryName:        category,
		CategoryDisplayName: category,
		ClusteringName:      clustering,
		EmbeddingName:       embedding,
		Embedding:           make([]Embedding, n),
	}
	if l, err := d.lm.Resolve(category); err == nil {
		a.CategoryDisplayName = l.Name
	}
	for i := range n {
		if clusters[i] < 0 {
			return Analysis{}, errdefs.IntegrityIndex(op, path, i, "negative cluster id %d", clusters[i])
		}
		a.Embedding[i] = Embedding{
			AttributionIndex: int(indices[i]),
			Cluster:          int(clusters[i]),
			Value:            slices.Clone(values[i*dims : (i+1)*dims]),
		}
	}

	if a.Eigenvalues, err = container.AttrFloats(op, path, emb, "eigenvalue"); err != nil {
		return Analysis{}, err
	}
	if a.BaseEmbeddingName, err = container.AttrString(op, path, emb, "embedding"); err != nil {
		return Analysis{}, err
	}
	if a.BaseEmbeddingAxes, err = container.AttrInts(op, path, emb, "index"); err != nil {
		return Analysis{}, err
	}
	if a.Eigenvalues == nil && a.BaseEmbeddingName != "" {
		base, err := f.Lookup(op, category+"/embedding/"+a.BaseEmbeddingName, "embedding", a.BaseEmbeddingName)
		if err != nil {
			return Analysis{}, errdefs.Integrity(op, path, "embedding %s names missing base embedding %q", embedding, a.BaseEmbeddingName)
		}
		if a.Eigenvalues, err = container.AttrFloats(op, path, base, "eigenvalue"); err != nil {
			return Analysis{}, err
		}
	}
	return a, nil
}

// Close releases every container. It is safe to call more than once.
func (d *Database) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	return d.release()
}

func (d *Database) release() error {
	var first error
	for _, f := range d.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

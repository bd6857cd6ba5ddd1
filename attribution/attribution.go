// Package attribution reads precomputed per-sample relevance maps.
//
// A database is backed by one or more HDF5 containers. Each container holds
// parallel `attribution`, `label` and `prediction` arrays, plus an optional
// `index` array giving the global sample index of every row. Without it, row
// i is sample i.
package attribution

import (
	"cmp"
	"errors"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/robert-malhotra/virelay/errdefs"
	"github.com/robert-malhotra/virelay/hdf5"
	"github.com/robert-malhotra/virelay/internal/container"
	"github.com/robert-malhotra/virelay/internal/logging"
	"github.com/robert-malhotra/virelay/internal/metrics"
	"github.com/robert-malhotra/virelay/labels"
	"github.com/robert-malhotra/virelay/tensor"
)

// Attribution is the relevance map computed for one sample.
type Attribution struct {
	// Index is the sample index, shared with the dataset.
	Index  int
	Labels []labels.Label
	// Prediction is the model output for the sample.
	Prediction []float64
	// Data holds raw signed relevance values, channels-last for images.
	Data *tensor.Tensor[float32]
	// Width and Height are the spatial extent of Data.
	Width, Height int
}

// Score is one class of a prediction vector.
type Score struct {
	Index int
	Value float64
}

// TopPredictions returns the k highest scoring classes, best first. Ties
// keep class order.
func (a Attribution) TopPredictions(k int) []Score {
	scores := make([]Score, len(a.Prediction))
	for i, v := range a.Prediction {
		scores[i] = Score{Index: i, Value: v}
	}
	slices.SortStableFunc(scores, func(x, y Score) int {
		return cmp.Compare(y.Value, x.Value)
	})
	return scores[:min(max(k, 0), len(scores))]
}

func newAttribution(index int, ls []labels.Label, pred []float64, data *tensor.Tensor[float32]) Attribution {
	data = data.ChannelsLast()
	a := Attribution{Index: index, Labels: ls, Prediction: pred, Data: data}
	switch data.Rank() {
	case 0:
		a.Width, a.Height = 1, 1
	case 1:
		a.Width, a.Height = data.Dim(0), 1
	default:
		a.Height, a.Width = data.Dim(0), data.Dim(1)
	}
	return a
}

type source struct {
	file        *container.File
	attribution *hdf5.Dataset
	label       *hdf5.Dataset
	prediction  *hdf5.Dataset
}

type location struct {
	source int
	row    int
}

// Database resolves global sample indices to attribution rows.
type Database struct {
	sources []*source
	where   map[int]location
	indices []int
	lm      *labels.Map
	closed  atomic.Bool
	logger  *slog.Logger
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger used for open diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Database) {
		d.logger = l
	}
}

// Open opens every source container and builds the index map. A global
// index claimed by two rows is a data-integrity error.
func Open(paths []string, lm *labels.Map, opts ...Option) (_ *Database, err error) {
	const op = "attribution open"
	d := &Database{where: make(map[int]location), lm: lm}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.OrNop(d.logger)
	defer func() {
		if err != nil {
			d.release()
		}
	}()

	for si, path := range paths {
		src, rows, err := openSource(op, path)
		if err != nil {
			return nil, err
		}
		d.sources = append(d.sources, src)
		for row, global := range rows {
			if prev, dup := d.where[global]; dup {
				return nil, errdefs.IntegrityIndex(op, path, global,
					"index also stored in %s row %d", d.sources[prev.source].file.Path(), prev.row)
			}
			d.where[global] = location{source: si, row: row}
			d.indices = append(d.indices, global)
		}
		d.logger.Debug("opened attribution source", "path", path, "rows", len(rows))
	}
	slices.Sort(d.indices)
	return d, nil
}

// openSource opens one container and returns the global index of each row.
func openSource(op, path string) (_ *source, _ []int, err error) {
	f, err := container.Open(op, path)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err != nil {
			f.Close()
		}
	}()

	src := &source{file: f}
	if src.attribution, err = f.Dataset(op, "attribution"); err != nil {
		return nil, nil, err
	}
	if src.label, err = f.Dataset(op, "label"); err != nil {
		return nil, nil, err
	}
	if src.prediction, err = f.Dataset(op, "prediction"); err != nil {
		return nil, nil, err
	}

	n := container.Rows(src.attribution)
	if l := container.Rows(src.label); l != n {
		return nil, nil, errdefs.Integrity(op, path, "label has %d rows, attribution has %d", l, n)
	}
	if p := container.Rows(src.prediction); p != n {
		return nil, nil, errdefs.Integrity(op, path, "prediction has %d rows, attribution has %d", p, n)
	}

	rows := make([]int, n)
	hasIndex, err := f.HasDataset(op, "index")
	if err != nil {
		return nil, nil, err
	}
	if !hasIndex {
		for i := range rows {
			rows[i] = i
		}
		return src, rows, nil
	}
	ds, err := f.Dataset(op, "index")
	if err != nil {
		return nil, nil, err
	}
	stored, err := container.ReadAll[int64](op, path, ds)
	if err != nil {
		return nil, nil, err
	}
	if len(stored) != n {
		return nil, nil, errdefs.Integrity(op, path, "index has %d rows, attribution has %d", len(stored), n)
	}
	for i, v := range stored {
		if v < 0 {
			return nil, nil, errdefs.IntegrityIndex(op, path, i, "negative sample index %d", v)
		}
		rows[i] = int(v)
	}
	return src, rows, nil
}

// Len returns the number of attributions across all sources.
func (d *Database) Len() int { return len(d.indices) }

// Indices returns every stored sample index in ascending order.
func (d *Database) Indices() []int { return slices.Clone(d.indices) }

// Has reports whether an attribution exists for index.
func (d *Database) Has(index int) bool {
	_, ok := d.where[index]
	return ok
}

// Get reads the attribution for index.
func (d *Database) Get(index int) (a Attribution, err error) {
	const op = "attribution get"
	defer func(start time.Time) { metrics.ObserveRead(metrics.ComponentAttribution, start, err) }(time.Now())

	if d.closed.Load() {
		return Attribution{}, errdefs.Closed(op, "attribution database")
	}
	loc, ok := d.where[index]
	if !ok {
		return Attribution{}, errdefs.NotFoundIndex(op, index)
	}
	return d.read(op, index, loc)
}

// GetMany reads the attributions for every index, in order. Every index is
// validated before any data is read; on error nothing is returned and the
// error names the first offending index.
func (d *Database) GetMany(indices []int) (out []Attribution, err error) {
	const op = "attribution get many"
	defer func(start time.Time) { metrics.ObserveRead(metrics.ComponentAttribution, start, err) }(time.Now())

	if d.closed.Load() {
		return nil, errdefs.Closed(op, "attribution database")
	}
	locs := make([]location, len(indices))
	for i, index := range indices {
		loc, ok := d.where[index]
		if !ok {
			return nil, errdefs.NotFoundIndex(op, index)
		}
		locs[i] = loc
	}
	out = make([]Attribution, len(indices))
	for i, index := range indices {
		if out[i], err = d.read(op, index, locs[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *Database) read(op string, index int, loc location) (Attribution, error) {
	src := d.sources[loc.source]
	path := src.file.Path()

	data, err := container.ReadRow[float32](op, path, src.attribution, loc.row)
	if err != nil {
		return Attribution{}, reindex(err, index)
	}
	pred, err := container.ReadRow[float64](op, path, src.prediction, loc.row)
	if err != nil {
		return Attribution{}, reindex(err, index)
	}
	ls, err := container.ReadLabels(op, path, src.label, loc.row, d.lm)
	if err != nil {
		return Attribution{}, reindex(err, index)
	}
	return newAttribution(index, ls, pred.Data(), data), nil
}

// reindex reports a row-level read failure against the global index the
// caller asked for.
func reindex(err error, index int) error {
	var e *errdefs.Error
	if errors.As(err, &e) {
		if _, ok := e.Index(); ok {
			e.WithIndex(index)
		}
	}
	return err
}

// Close releases every source. It is safe to call more than once.
func (d *Database) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	return d.release()
}

func (d *Database) release() error {
	var first error
	for _, s := range d.sources {
		if err := s.file.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

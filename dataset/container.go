package dataset

import (
	"reflect"
	"sync/atomic"
	"time"

	"github.com/robert-malhotra/virelay/errdefs"
	"github.com/robert-malhotra/virelay/hdf5"
	"github.com/robert-malhotra/virelay/internal/container"
	"github.com/robert-malhotra/virelay/internal/metrics"
	"github.com/robert-malhotra/virelay/labels"
)

// Container is a dataset stored as parallel `data` and `label` arrays in one
// HDF5 file. An optional `index` array remaps sample i to data row index[i].
type Container struct {
	name   string
	file   *container.File
	lm     *labels.Map
	data   *hdf5.Dataset
	label  *hdf5.Dataset
	remap  []int64
	n      int
	bytes  bool
	closed atomic.Bool
	opts   *options
}

var uint8Type = reflect.TypeOf(uint8(0))

// OpenContainer opens the container dataset at path. The label and index
// arrays must agree in length, and every remapped row must exist in data.
func OpenContainer(name, path string, lm *labels.Map, opts ...Option) (_ *Container, err error) {
	const op = "dataset open"
	o := applyOptions(name, opts)

	f, err := container.Open(op, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			f.Close()
		}
	}()

	data, err := f.Dataset(op, "data")
	if err != nil {
		return nil, err
	}
	label, err := f.Dataset(op, "label")
	if err != nil {
		return nil, err
	}
	if data.Rank() == 0 {
		return nil, errdefs.Integrity(op, path, "data is a scalar")
	}

	c := &Container{name: name, file: f, lm: lm, data: data, label: label, opts: o}
	c.n = container.Rows(label)

	hasIndex, err := f.HasDataset(op, "index")
	if err != nil {
		return nil, err
	}
	if hasIndex {
		idx, err := f.Dataset(op, "index")
		if err != nil {
			return nil, err
		}
		if c.remap, err = container.ReadAll[int64](op, path, idx); err != nil {
			return nil, err
		}
		if len(c.remap) != c.n {
			return nil, errdefs.Integrity(op, path, "index has %d rows, label has %d", len(c.remap), c.n)
		}
		rows := int64(container.Rows(data))
		for i, r := range c.remap {
			if r < 0 || r >= rows {
				return nil, errdefs.IntegrityIndex(op, path, i, "index points at data row %d of %d", r, rows)
			}
		}
	} else if rows := container.Rows(data); rows != c.n {
		return nil, errdefs.Integrity(op, path, "data has %d rows, label has %d", rows, c.n)
	}

	if t, err := data.GoType(); err == nil && t == uint8Type {
		c.bytes = true
	}
	o.logger.Debug("opened container dataset", "path", path, "samples", c.n, "remapped", c.remap != nil)
	return c, nil
}

// Name returns the dataset's display name.
func (c *Container) Name() string { return c.name }

// Len returns the number of samples.
func (c *Container) Len() int { return c.n }

// Sample reads sample index. Indices outside [0, Len()) are out of range.
func (c *Container) Sample(index int) (s Sample, err error) {
	const op = "dataset get sample"
	defer func(start time.Time) { metrics.ObserveRead(metrics.ComponentDataset, start, err) }(time.Now())

	if c.closed.Load() {
		return Sample{}, errdefs.Closed(op, c.name)
	}
	if index < 0 || index >= c.n {
		return Sample{}, errdefs.OutOfRange(op, index, c.n).WithPath(c.file.Path())
	}

	row := index
	if c.remap != nil {
		row = int(c.remap[index])
	}
	data, err := container.ReadRow[float32](op, c.file.Path(), c.data, row)
	if err != nil {
		return Sample{}, err
	}
	ls, err := container.ReadLabels(op, c.file.Path(), c.label, index, c.lm)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Index: index, Labels: ls, Data: data.ChannelsLast(), bytes: c.bytes}, nil
}

// Close releases the container. Further reads fail as closed.
func (c *Container) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.file.Close()
}

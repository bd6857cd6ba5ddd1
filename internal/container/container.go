// Package container adapts the hdf5 package to the data-access layer. Every
// error it returns is an *errdefs.Error; hdf5 errors are only ever causes.
package container

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/robert-malhotra/virelay/errdefs"
	"github.com/robert-malhotra/virelay/hdf5"
	"github.com/robert-malhotra/virelay/tensor"
)

// File is one opened container. It is owned by exactly one component.
type File struct {
	path string
	h5   *hdf5.File
}

// Open opens the container at path. A missing or non-HDF5 file is a
// configuration error since the path came from a manifest.
func Open(op, path string) (*File, error) {
	h5, err := hdf5.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, hdf5.ErrNotHDF5) {
			return nil, errdefs.Configuration(op, path, "", err)
		}
		return nil, errdefs.Integrity(op, path, "unreadable container").WithCause(err)
	}
	return &File{path: path, h5: h5}, nil
}

// Path returns the container's file path.
func (f *File) Path() string { return f.path }

// Version returns the container's superblock version.
func (f *File) Version() int { return f.h5.Version() }

// Close releases the file handle. It is safe to call more than once.
func (f *File) Close() error {
	return f.h5.Close()
}

// HasDataset reports whether name resolves to a dataset. A missing name or
// one naming a group is absent; any other failure is a data-integrity error.
func (f *File) HasDataset(op, name string) (bool, error) {
	_, err := f.h5.OpenDataset(name)
	return f.present(op, name, err)
}

// HasGroup reports whether name resolves to a group, with the error rules
// of HasDataset.
func (f *File) HasGroup(op, name string) (bool, error) {
	_, err := f.h5.OpenGroup(name)
	return f.present(op, name, err)
}

func (f *File) present(op, name string, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case absent(err):
		return false, nil
	case errors.Is(err, hdf5.ErrClosed):
		return false, errdefs.Closed(op, f.path).WithCause(err)
	}
	return false, errdefs.Integrity(op, f.path, "opening %q", name).WithCause(err)
}

// absent reports whether err means the object is not there, or is not of
// the kind asked for.
func absent(err error) bool {
	return errors.Is(err, hdf5.ErrNotFound) || errors.Is(err, hdf5.ErrNotGroup) || errors.Is(err, hdf5.ErrNotDataset)
}

// Dataset opens a dataset the caller requires to exist. Absence means the
// container does not follow its layout, which is a data-integrity error.
func (f *File) Dataset(op, name string) (*hdf5.Dataset, error) {
	ds, err := f.h5.OpenDataset(name)
	if err != nil {
		if errors.Is(err, hdf5.ErrClosed) {
			return nil, errdefs.Closed(op, f.path).WithCause(err)
		}
		return nil, errdefs.Integrity(op, f.path, "missing dataset %q", name).WithCause(err)
	}
	return ds, nil
}

// Lookup opens a dataset addressed by a caller-supplied key path. Absence is
// a not-found error naming key at level.
func (f *File) Lookup(op, name, level, key string) (*hdf5.Dataset, error) {
	ds, err := f.h5.OpenDataset(name)
	if err != nil {
		if errors.Is(err, hdf5.ErrClosed) {
			return nil, errdefs.Closed(op, f.path).WithCause(err)
		}
		return nil, errdefs.NotFound(op, level, key).WithPath(f.path).WithCause(err)
	}
	return ds, nil
}

// Members lists the children of group, or nil when the group is absent.
// A group that cannot be read is a data-integrity error.
func (f *File) Members(group string) ([]string, error) {
	g, err := f.h5.OpenGroup(group)
	if err != nil {
		if absent(err) {
			return nil, nil
		}
		if errors.Is(err, hdf5.ErrClosed) {
			return nil, errdefs.Closed("container members", f.path).WithCause(err)
		}
		return nil, errdefs.Integrity("container members", f.path, "opening %q", group).WithCause(err)
	}
	names, err := g.Members()
	if err != nil {
		return nil, errdefs.Integrity("container members", f.path, "listing %q", group).WithCause(err)
	}
	return names, nil
}

// Walk visits every group and dataset in the container.
func (f *File) Walk(fn hdf5.WalkFunc) error {
	return hdf5.Walk(f.h5.Root(), fn)
}

// WalkAttrs visits every attribute in the container.
func (f *File) WalkAttrs(fn func(hdf5.AttrInfo) error) error {
	return f.h5.WalkAttrs(fn)
}

// ReadAll reads a whole dataset into an owned slice.
func ReadAll[T tensor.Number](op, path string, ds *hdf5.Dataset) ([]T, error) {
	var out []T
	if err := ds.Read(&out); err != nil {
		return nil, errdefs.Integrity(op, path, "reading %s", ds.Path()).WithCause(err)
	}
	if uint64(len(out)) != ds.NumElements() {
		return nil, errdefs.Integrity(op, path, "%s: read %d of %d elements", ds.Path(), len(out), ds.NumElements())
	}
	return out, nil
}

// ReadRow reads entry row along the first axis as a tensor shaped like the
// dataset's trailing dimensions. row is bounds checked against the first
// axis and reported as out of range.
func ReadRow[T tensor.Number](op, path string, ds *hdf5.Dataset, row int) (*tensor.Tensor[T], error) {
	n := int(ds.Len())
	if row < 0 || row >= n {
		return nil, errdefs.OutOfRange(op, row, n).WithPath(path)
	}
	var out []T
	if err := ds.ReadRows(uint64(row), 1, &out); err != nil {
		if errors.Is(err, hdf5.ErrOutOfBounds) {
			return nil, errdefs.OutOfRange(op, row, n).WithPath(path).WithCause(err)
		}
		return nil, errdefs.IntegrityIndex(op, path, row, "reading %s", ds.Path()).WithCause(err)
	}
	shape := tensor.FromUint64(ds.RowShape())
	t, err := tensor.New(shape, out)
	if err != nil {
		return nil, errdefs.IntegrityIndex(op, path, row, "%s row", ds.Path()).WithCause(err)
	}
	return t, nil
}

// Rows returns the extent of the first axis of ds.
func Rows(ds *hdf5.Dataset) int {
	return int(ds.Len())
}

// AttrFloats reads a numeric attribute, returning nil when it is absent.
func AttrFloats(op, path string, ds *hdf5.Dataset, name string) ([]float64, error) {
	a := ds.Attr(name)
	if a == nil {
		return nil, nil
	}
	v, err := a.ReadFloat64()
	if err != nil {
		return nil, errdefs.Integrity(op, path, "attribute %s@%s", ds.Path(), name).WithCause(err)
	}
	return v, nil
}

// AttrInts reads an integer attribute, returning nil when it is absent.
func AttrInts(op, path string, ds *hdf5.Dataset, name string) ([]int, error) {
	a := ds.Attr(name)
	if a == nil {
		return nil, nil
	}
	v, err := a.ReadInt64()
	if err != nil {
		return nil, errdefs.Integrity(op, path, "attribute %s@%s", ds.Path(), name).WithCause(err)
	}
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out, nil
}

// AttrString reads a string attribute, returning "" when it is absent.
func AttrString(op, path string, ds *hdf5.Dataset, name string) (string, error) {
	a := ds.Attr(name)
	if a == nil {
		return "", nil
	}
	if s, err := a.ReadScalarString(); err == nil {
		return s, nil
	}
	v, err := a.ReadString()
	if err != nil || len(v) == 0 {
		return "", errdefs.Integrity(op, path, "attribute %s@%s", ds.Path(), name).WithCause(err)
	}
	return v[0], nil
}

// Describe returns a one-line summary of ds for diagnostics.
func Describe(ds *hdf5.Dataset) string {
	return fmt.Sprintf("%s %v class=%d size=%d", ds.Path(), ds.Shape(), ds.DtypeClass(), ds.DtypeSize())
}

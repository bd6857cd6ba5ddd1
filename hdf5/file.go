package hdf5

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/robert-malhotra/virelay/internal/alloc"
	"github.com/robert-malhotra/virelay/internal/binary"
	"github.com/robert-malhotra/virelay/internal/object"
	"github.com/robert-malhotra/virelay/internal/superblock"
)

// File is an open HDF5 file. Lookups and reads may run concurrently; writes,
// Flush and Close must not overlap with any other call.
type File struct {
	path       string
	file       *os.File
	reader     *binary.Reader
	superblock *superblock.Superblock
	root       *Group
	closed     bool

	mu       sync.Mutex // guards external
	external map[string]*File

	// set on files opened for writing
	writer    *binary.Writer
	allocator *alloc.Allocator
	groups    map[string]*Group
}

// Open opens an HDF5 file for reading.
func Open(path string) (*File, error) {
	return open(path, false)
}

// OpenReadWrite opens an existing HDF5 file for reading and adding groups
// and datasets.
func OpenReadWrite(path string) (*File, error) {
	return open(path, true)
}

func open(path string, writable bool) (*File, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	osf, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	sb, err := superblock.Read(osf)
	if err != nil {
		osf.Close()
		return nil, fmt.Errorf("reading superblock: %w", err)
	}
	f := &File{
		path:       path,
		file:       osf,
		reader:     binary.NewReader(osf, sb.ReaderConfig()),
		superblock: sb,
	}
	if writable {
		f.writer = binary.NewWriter(osf, sb.ReaderConfig())
		f.allocator = alloc.New(sb.EOFAddress)
		f.groups = make(map[string]*Group)
	}
	if f.root, err = f.openGroupAt(sb.RootGroupAddress, "/"); err != nil {
		osf.Close()
		return nil, fmt.Errorf("opening root group: %w", err)
	}
	return f, nil
}

// Close flushes a writable file and closes it together with any external
// files its links opened. Closing twice is a no-op.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	var err error
	if f.writable() {
		err = f.Flush()
	}
	f.closed = true
	f.mu.Lock()
	for _, ext := range f.external {
		ext.Close()
	}
	f.external = nil
	f.mu.Unlock()
	if cerr := f.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Root returns the root group.
func (f *File) Root() *Group {
	return f.root
}

// Path returns the path the file was opened with.
func (f *File) Path() string {
	return f.path
}

// Version returns the superblock version.
func (f *File) Version() int {
	return int(f.superblock.Version)
}

// IsWritable reports whether the file accepts new groups and datasets.
func (f *File) IsWritable() bool {
	return f.writable()
}

func (f *File) writable() bool {
	return f.writer != nil
}

// OpenGroup opens a group by absolute path.
func (f *File) OpenGroup(path string) (*Group, error) {
	if f.closed {
		return nil, ErrClosed
	}
	return f.root.OpenGroup(path)
}

// OpenDataset opens a dataset by absolute path.
func (f *File) OpenDataset(path string) (*Dataset, error) {
	if f.closed {
		return nil, ErrClosed
	}
	return f.root.OpenDataset(path)
}

// GetAttr returns the attribute addressed by an attribute path such as
// "/data@units" or "/@version".
func (f *File) GetAttr(path string) (*Attribute, error) {
	if f.closed {
		return nil, ErrClosed
	}
	objectPath, name, err := ParseAttrPath(path)
	if err != nil {
		return nil, err
	}
	obj, err := f.root.open(objectPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", objectPath, err)
	}
	var a *Attribute
	switch o := obj.(type) {
	case *Group:
		a = o.Attr(name)
	case *Dataset:
		a = o.Attr(name)
	}
	if a == nil {
		return nil, fmt.Errorf("%w: attribute %s", ErrNotFound, path)
	}
	return a, nil
}

// ReadAttr returns the value of the attribute at path; see Attribute.Value.
func (f *File) ReadAttr(path string) (any, error) {
	a, err := f.GetAttr(path)
	if err != nil {
		return nil, err
	}
	return a.Value()
}

// openGroupAt opens the group whose header is at address. Groups of a
// writable file are shared per path so pending links are seen by every
// handle.
func (f *File) openGroupAt(address uint64, path string) (*Group, error) {
	if g, ok := f.groups[path]; ok && path != "" {
		return g, nil
	}
	header, err := object.Read(f.reader, address)
	if err != nil {
		return nil, fmt.Errorf("reading object header: %w", err)
	}
	g := &Group{node: node{file: f, path: path, header: header}, addr: address}
	if f.groups != nil && path != "" {
		f.groups[path] = g
	}
	return g, nil
}

func (f *File) openDatasetAt(address uint64, path string) (*Dataset, error) {
	header, err := object.Read(f.reader, address)
	if err != nil {
		return nil, fmt.Errorf("reading object header: %w", err)
	}
	return newDataset(f, path, header)
}

// openExternal opens the file an external link names, relative to this
// file's directory. Opened files are kept until Close.
func (f *File) openExternal(name string) (*File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ext, ok := f.external[name]; ok {
		return ext, nil
	}
	ext, err := Open(filepath.Join(filepath.Dir(f.path), name))
	if err != nil {
		return nil, fmt.Errorf("opening external file %q: %w", name, err)
	}
	if f.external == nil {
		f.external = make(map[string]*File)
	}
	f.external[name] = ext
	return ext, nil
}

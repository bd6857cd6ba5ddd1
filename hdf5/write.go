package hdf5

import (
	"cmp"
	"fmt"
	"maps"
	"math"
	"os"
	"path"
	"reflect"
	"slices"
	"strings"

	"github.com/robert-malhotra/virelay/internal/alloc"
	"github.com/robert-malhotra/virelay/internal/binary"
	"github.com/robert-malhotra/virelay/internal/dtype"
	"github.com/robert-malhotra/virelay/internal/filter"
	"github.com/robert-malhotra/virelay/internal/layout"
	"github.com/robert-malhotra/virelay/internal/message"
	"github.com/robert-malhotra/virelay/internal/object"
	"github.com/robert-malhotra/virelay/internal/superblock"
)

// Create creates an HDF5 file at path, truncating any existing file. Group
// headers are written by Flush and Close.
func Create(path string, opts ...FileOption) (*File, error) {
	o := fileOptions{offsetSize: 8, lengthSize: 8}
	for _, opt := range opts {
		opt(&o)
	}
	osf, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	sb := superblock.New()
	sb.OffsetSize, sb.LengthSize = uint8(o.offsetSize), uint8(o.lengthSize)
	cfg := binary.DefaultConfig()
	cfg.OffsetSize, cfg.LengthSize = o.offsetSize, o.lengthSize

	f := &File{
		path:       path,
		file:       osf,
		reader:     binary.NewReader(osf, cfg),
		superblock: sb,
		writer:     binary.NewWriter(osf, cfg),
		allocator:  alloc.New(uint64(sb.Size())),
		groups:     make(map[string]*Group),
	}
	f.root = &Group{node: node{file: f, path: "/"}, loaded: true, dirty: true}
	f.groups["/"] = f.root
	if err := f.Flush(); err != nil {
		osf.Close()
		os.Remove(path)
		return nil, err
	}
	return f, nil
}

// Flush writes the headers of groups changed since the last flush, deepest
// first so that each parent links to its child's new header, then the
// superblock.
func (f *File) Flush() error {
	if f.closed {
		return ErrClosed
	}
	if !f.writable() {
		return nil
	}
	groups := slices.SortedFunc(maps.Values(f.groups), func(a, b *Group) int {
		return cmp.Compare(len(SplitPath(b.path)), len(SplitPath(a.path)))
	})
	for _, g := range groups {
		if g.dirty {
			if err := g.writeHeader(); err != nil {
				return fmt.Errorf("writing group %s: %w", g.path, err)
			}
		}
	}
	f.superblock.EOFAddress = f.allocator.EOFAddr()
	if _, err := f.superblock.Write(f.writer.At(f.superblock.FileOffset)); err != nil {
		return fmt.Errorf("writing superblock: %w", err)
	}
	return f.file.Sync()
}

// AllocStats reports the space handed out since the file was opened for
// writing.
func (f *File) AllocStats() alloc.Stats {
	if f.allocator == nil {
		return alloc.Stats{}
	}
	return f.allocator.Stats()
}

func (f *File) allocate(size int64) uint64 {
	return f.allocator.Alloc(uint64(size))
}

// writeBlock stores b in newly allocated space and returns its address.
func (f *File) writeBlock(b []byte) (uint64, error) {
	addr := f.allocate(int64(len(b)))
	return addr, f.writer.At(int64(addr)).WriteBytes(b)
}

// writeHeader stores the group's header at a new address and points the
// parent's link at it. The old header is left in place.
func (g *Group) writeHeader() error {
	msgs := object.NewGroupHeader(g.links)
	if g.header != nil {
		for _, a := range g.header.Attributes() {
			msgs = append(msgs, a)
		}
	}
	b, err := object.Encode(g.file.writer, msgs, object.MinGroupChunkSize)
	if err != nil {
		return err
	}
	addr, err := g.file.writeBlock(b)
	if err != nil {
		return err
	}
	g.addr, g.dirty = addr, false
	if g.path == "/" {
		g.file.superblock.RootGroupAddress = addr
		return nil
	}
	parent, ok := g.file.groups[path.Dir(g.path)]
	if !ok {
		return fmt.Errorf("parent of %s is not open", g.path)
	}
	if err := parent.loadLinks(); err != nil {
		return err
	}
	name := path.Base(g.path)
	for _, l := range parent.links {
		if l.Name == name && l.IsHard() {
			l.ObjectAddress = addr
			parent.dirty = true
			return nil
		}
	}
	return fmt.Errorf("%w: link %s in %s", ErrNotFound, name, parent.path)
}

// loadLinks copies the group's links into its pending set.
func (g *Group) loadLinks() error {
	if g.loaded {
		return nil
	}
	links, err := g.entries()
	if err != nil {
		return err
	}
	g.links = make([]*message.Link, len(links))
	for i, l := range links {
		c := *l
		g.links[i] = &c
	}
	g.loaded = true
	return nil
}

// addLink checks that name is a new member of a writable group and links it
// to addr.
func (g *Group) addLink(name string, addr uint64) error {
	return g.add(message.NewHardLink(name, addr))
}

func (g *Group) add(link *message.Link) error {
	if err := g.loadLinks(); err != nil {
		return err
	}
	for _, l := range g.links {
		if l.Name == link.Name {
			return fmt.Errorf("%s: %w", path.Join(g.path, link.Name), ErrExists)
		}
	}
	g.links = append(g.links, link)
	g.dirty = true
	return nil
}

// CreateSoftLink adds a link to target, an absolute path or one relative to
// g. The target need not exist yet.
func (g *Group) CreateSoftLink(name, target string) error {
	if err := g.checkWrite(name); err != nil {
		return err
	}
	return g.add(message.NewSoftLink(name, target))
}

// CreateExternalLink adds a link to the object at objectPath in another
// file, named relative to this file's directory.
func (g *Group) CreateExternalLink(name, file, objectPath string) error {
	if err := g.checkWrite(name); err != nil {
		return err
	}
	return g.add(&message.Link{
		Version:      1,
		Name:         name,
		LinkType:     message.LinkTypeExternal,
		ExternalFile: file,
		ExternalPath: CleanPath(objectPath),
	})
}

// checkWrite reports whether name can be added to g.
func (g *Group) checkWrite(name string) error {
	if g.file.closed {
		return ErrClosed
	}
	if !g.file.writable() {
		return ErrReadOnly
	}
	if g.file.groups[g.path] != g {
		return fmt.Errorf("%w: writing through a linked group %s", ErrUnsupported, g.path)
	}
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return fmt.Errorf("invalid member name %q", name)
	}
	if err := g.loadLinks(); err != nil {
		return err
	}
	for _, l := range g.links {
		if l.Name == name {
			return fmt.Errorf("%s: %w", path.Join(g.path, name), ErrExists)
		}
	}
	return nil
}

// CreateGroup adds an empty subgroup.
func (g *Group) CreateGroup(name string) (*Group, error) {
	if err := g.checkWrite(name); err != nil {
		return nil, err
	}
	if err := g.addLink(name, 0); err != nil {
		return nil, err
	}
	child := &Group{node: node{file: g.file, path: path.Join(g.path, name)}, loaded: true, dirty: true}
	g.file.groups[child.path] = child
	return child, nil
}

// CreateDataset writes data as a new dataset. data is a number, bool or
// string, or a flat slice or array of one of those; WithShape gives it more
// than one dimension. The element type follows the Go type.
func (g *Group) CreateDataset(name string, data any, opts ...DatasetOption) (*Dataset, error) {
	if err := g.checkWrite(name); err != nil {
		return nil, err
	}
	var o datasetOptions
	for _, opt := range opts {
		opt(&o)
	}

	dt, n, scalar, err := datatypeOf(data)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", name, err)
	}
	dims := []uint64{n}
	if o.shape != nil {
		if product(o.shape) != n {
			return nil, fmt.Errorf("dataset %s: shape %v does not hold %d elements", name, o.shape, n)
		}
		dims, scalar = o.shape, false
	}
	if o.maxDims != nil && len(o.maxDims) != len(dims) {
		return nil, fmt.Errorf("dataset %s: max dims %v for rank %d", name, o.maxDims, len(dims))
	}
	space := message.NewDataspace(dims, o.maxDims)
	if scalar {
		space = message.NewScalarDataspace()
	}
	raw, err := dtype.Encode(dt, data)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: encoding: %w", name, err)
	}

	var fp *message.FilterPipeline
	var lm *message.DataLayout
	switch {
	case o.chunks != nil:
		chunkDims, err := chunkShape(o.chunks, dims)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", name, err)
		}
		if len(o.filters) > 0 {
			fp = &message.FilterPipeline{Filters: slices.Clone(o.filters)}
			for i, fi := range fp.Filters {
				if fi.ID == message.FilterShuffle {
					fp.Filters[i].ClientData = []uint32{dt.Size}
				}
			}
		}
		pipeline, err := filter.NewPipeline(fp)
		if err != nil {
			return nil, err
		}
		if lm, err = layout.WriteChunked(g.file.writer, g.file.allocate, raw, dims, chunkDims, dt.Size, pipeline); err != nil {
			return nil, fmt.Errorf("dataset %s: writing chunks: %w", name, err)
		}
	case len(o.filters) > 0:
		return nil, fmt.Errorf("dataset %s: filters need chunked storage", name)
	default:
		addr, err := g.file.writeBlock(raw)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: writing data: %w", name, err)
		}
		lm = message.NewContiguousLayout(addr, uint64(len(raw)))
	}

	attrs := make([]*message.Attribute, 0, len(o.attributes))
	for _, a := range o.attributes {
		m, err := attributeMessage(a.name, a.value)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: attribute %s: %w", name, a.name, err)
		}
		attrs = append(attrs, m)
	}
	b, err := object.Encode(g.file.writer, object.NewDatasetHeader(space, dt, lm, fp, attrs), 0)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", name, err)
	}
	addr, err := g.file.writeBlock(b)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: writing header: %w", name, err)
	}
	if err := g.addLink(name, addr); err != nil {
		return nil, err
	}
	return g.file.openDatasetAt(addr, path.Join(g.path, name))
}

func chunkShape(chunks, dims []uint64) ([]uint32, error) {
	if len(chunks) != len(dims) {
		return nil, fmt.Errorf("chunk rank %d does not match dataset rank %d", len(chunks), len(dims))
	}
	out := make([]uint32, len(chunks))
	for i, c := range chunks {
		if c == 0 || c > math.MaxUint32 {
			return nil, fmt.Errorf("chunk dimension %d out of range", c)
		}
		out[i] = uint32(c)
	}
	return out, nil
}

// datatypeOf picks the element type of a value to write and counts its
// elements. Strings get a fixed length that fits the longest.
func datatypeOf(v any) (dt *message.Datatype, n uint64, scalar bool, err error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, 0, false, fmt.Errorf("%w: nil value", ErrUnsupported)
	}
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	elem := rv.Type()
	n, scalar = 1, true
	if k := rv.Kind(); k == reflect.Slice || k == reflect.Array {
		elem, n, scalar = elem.Elem(), uint64(rv.Len()), false
	}
	switch elem.Kind() {
	case reflect.Slice, reflect.Array:
		return nil, 0, false, fmt.Errorf("%w: nested slices; pass a flat slice with WithShape", ErrUnsupported)
	case reflect.String:
		strs := make([]string, n)
		if scalar {
			strs[0] = rv.String()
		} else {
			for i := range strs {
				strs[i] = rv.Index(i).String()
			}
		}
		return dtype.StringDatatype(strs...), n, scalar, nil
	}
	dt, err = dtype.GoTypeToDatatype(elem)
	return dt, n, scalar, err
}

func attributeMessage(name string, value any) (*message.Attribute, error) {
	dt, n, scalar, err := datatypeOf(value)
	if err != nil {
		return nil, err
	}
	raw, err := dtype.Encode(dt, value)
	if err != nil {
		return nil, err
	}
	space := message.NewScalarDataspace()
	if !scalar {
		space = message.NewDataspace([]uint64{n}, nil)
	}
	return message.NewAttribute(name, dt, space, raw), nil
}

func product(dims []uint64) uint64 {
	n := uint64(1)
	for _, d := range dims {
		n *= d
	}
	return n
}

package hdf5

import (
	"fmt"
	"path"
	"strings"

	"github.com/robert-malhotra/virelay/internal/btree"
	"github.com/robert-malhotra/virelay/internal/heap"
	"github.com/robert-malhotra/virelay/internal/message"
	"github.com/robert-malhotra/virelay/internal/object"
)

// Group is an HDF5 group.
type Group struct {
	node
	addr uint64

	// links is the member set of a group being written; loaded says it
	// replaced the header's links.
	links  []*message.Link
	loaded bool
	dirty  bool
}

// OpenGroup opens a group by path relative to g. Absolute paths resolve
// from the root.
func (g *Group) OpenGroup(p string) (*Group, error) {
	obj, err := g.open(p)
	if err != nil {
		return nil, err
	}
	grp, ok := obj.(*Group)
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotGroup)
	}
	return grp, nil
}

// OpenDataset opens a dataset by path relative to g. Absolute paths
// resolve from the root.
func (g *Group) OpenDataset(p string) (*Dataset, error) {
	obj, err := g.open(p)
	if err != nil {
		return nil, err
	}
	ds, ok := obj.(*Dataset)
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotDataset)
	}
	return ds, nil
}

// Members returns the link names of the group in storage order.
func (g *Group) Members() ([]string, error) {
	links, err := g.entries()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(links))
	for i, l := range links {
		names[i] = l.Name
	}
	return names, nil
}

// NumObjects returns the number of links in the group.
func (g *Group) NumObjects() (int, error) {
	links, err := g.entries()
	return len(links), err
}

func (g *Group) open(p string) (any, error) {
	return g.openDepth(p, 0)
}

// openDepth resolves p one component at a time. depth counts the soft and
// external links followed so far.
func (g *Group) openDepth(p string, depth int) (any, error) {
	if g.file.closed {
		return nil, ErrClosed
	}
	cur := g
	if strings.HasPrefix(p, "/") {
		cur = g.file.root
	}
	parts := SplitPath(p)
	if len(parts) == 0 {
		return cur, nil
	}
	for i, name := range parts {
		obj, err := cur.child(name, depth)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", path.Join(cur.path, name), err)
		}
		if i == len(parts)-1 {
			return obj, nil
		}
		next, ok := obj.(*Group)
		if !ok {
			return nil, fmt.Errorf("%s: %w", path.Join(cur.path, name), ErrNotGroup)
		}
		cur = next
	}
	return cur, nil
}

// child opens the object the named link leads to.
func (g *Group) child(name string, depth int) (any, error) {
	links, err := g.entries()
	if err != nil {
		return nil, err
	}
	var link *message.Link
	for _, l := range links {
		if l.Name == name {
			link = l
			break
		}
	}
	if link == nil {
		return nil, ErrNotFound
	}

	full := path.Join(g.path, name)
	switch {
	case link.IsHard():
		if cached, ok := g.file.groups[full]; ok {
			return cached, nil
		}
		header, err := object.Read(g.file.reader, link.ObjectAddress)
		if err != nil {
			return nil, fmt.Errorf("reading object header: %w", err)
		}
		if header.IsDataset() {
			return newDataset(g.file, full, header)
		}
		grp := &Group{node: node{file: g.file, path: full, header: header}, addr: link.ObjectAddress}
		if g.file.groups != nil {
			g.file.groups[full] = grp
		}
		return grp, nil

	case link.IsSoft():
		if depth >= MaxLinkDepth {
			return nil, ErrLinkDepth
		}
		target := link.SoftLinkValue
		if !strings.HasPrefix(target, "/") {
			target = path.Join(g.path, target)
		}
		return g.file.root.openDepth(target, depth+1)

	case link.IsExternal():
		if depth >= MaxLinkDepth {
			return nil, ErrLinkDepth
		}
		ext, err := g.file.openExternal(link.ExternalFile)
		if err != nil {
			return nil, err
		}
		return ext.root.openDepth(link.ExternalPath, depth+1)
	}
	return nil, fmt.Errorf("%w: link type %d", ErrUnsupported, link.LinkType)
}

// entries lists the group's links: the pending set of a group being
// written, the link messages of a compact group, or the symbol table of an
// old-style group.
func (g *Group) entries() ([]*message.Link, error) {
	if g.loaded {
		return g.links, nil
	}
	if g.header == nil {
		return nil, nil
	}
	if links := g.header.Links(); len(links) > 0 {
		return links, nil
	}
	if li := g.header.LinkInfo(); li != nil && li.Dense {
		return nil, fmt.Errorf("%w: dense link storage in %s", ErrUnsupported, g.path)
	}
	st := g.header.SymbolTable()
	if st == nil && g.path == "/" && g.file.superblock.RootGroupBTreeAddress != 0 {
		// cached in the superblock's root symbol table entry
		st = &message.SymbolTable{
			BTreeAddress:     g.file.superblock.RootGroupBTreeAddress,
			LocalHeapAddress: g.file.superblock.RootGroupLocalHeapAddress,
		}
	}
	if st == nil {
		return nil, nil
	}
	return g.symbolTableLinks(st)
}

func (g *Group) symbolTableLinks(st *message.SymbolTable) ([]*message.Link, error) {
	lh, err := heap.ReadLocalHeap(g.file.reader, st.LocalHeapAddress)
	if err != nil {
		return nil, fmt.Errorf("reading local heap: %w", err)
	}
	entries, err := btree.ReadGroupEntries(g.file.reader, st.BTreeAddress, lh)
	if err != nil {
		return nil, fmt.Errorf("reading group B-tree: %w", err)
	}
	links := make([]*message.Link, len(entries))
	for i, e := range entries {
		if e.LinkType == 1 {
			links[i] = message.NewSoftLink(e.Name, e.SoftLinkValue)
		} else {
			links[i] = message.NewHardLink(e.Name, e.ObjectAddress)
		}
	}
	return links, nil
}

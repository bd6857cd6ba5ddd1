package hdf5

import (
	"errors"
	"io/fs"
	"path"
)

// WalkFunc is called for every object Walk reaches. obj is a *Group or a
// *Dataset, or nil when opening the object failed with err. Returning
// fs.SkipAll stops the walk without error; any other error stops it and is
// returned by Walk.
type WalkFunc func(path string, obj any, err error) error

// Walk visits g and everything below it, parents before children. A group
// reachable along more than one path is descended into once.
func Walk(g *Group, fn WalkFunc) error {
	w := walker{fn: fn, seen: make(map[groupKey]bool)}
	if err := w.group(g, g.Path()); err != nil && !errors.Is(err, fs.SkipAll) {
		return err
	}
	return nil
}

type groupKey struct {
	file *File
	addr uint64
	path string
}

type walker struct {
	fn   WalkFunc
	seen map[groupKey]bool
}

func (w *walker) group(g *Group, p string) error {
	if err := w.fn(p, g, nil); err != nil {
		return err
	}
	// new groups have no address until flushed
	key := groupKey{file: g.file, addr: g.addr}
	if g.addr == 0 {
		key.path = g.path
	}
	if w.seen[key] {
		return nil
	}
	w.seen[key] = true

	members, err := g.Members()
	if err != nil {
		return w.fn(p, nil, err)
	}
	for _, name := range members {
		childPath := path.Join(p, name)
		obj, err := g.open(name)
		if err != nil {
			if err := w.fn(childPath, nil, err); err != nil {
				return err
			}
			continue
		}
		if sub, ok := obj.(*Group); ok {
			err = w.group(sub, childPath)
		} else {
			err = w.fn(childPath, obj, nil)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// AttrInfo describes one attribute met by WalkAttrs.
type AttrInfo struct {
	// Path is the attribute path, e.g. "/group/dataset@attr".
	Path       string
	ObjectPath string
	Attr       *Attribute
	// Value is the decoded value, nil when Err is set.
	Value any
	Err   error
}

// WalkAttrs calls fn for every attribute of every group and dataset in the
// file. Its stopping rules are those of Walk.
func (f *File) WalkAttrs(fn func(AttrInfo) error) error {
	if f.closed {
		return ErrClosed
	}
	return Walk(f.root, func(p string, obj any, err error) error {
		if err != nil {
			return nil
		}
		var n *node
		switch o := obj.(type) {
		case *Group:
			n = &o.node
		case *Dataset:
			n = &o.node
		}
		for _, name := range n.Attrs() {
			a := n.Attr(name)
			info := AttrInfo{Path: JoinAttrPath(p, name), ObjectPath: p, Attr: a}
			info.Value, info.Err = a.Value()
			if err := fn(info); err != nil {
				return err
			}
		}
		return nil
	})
}

package hdf5

import (
	"path"

	"github.com/robert-malhotra/virelay/internal/object"
)

// node is what groups and datasets share: a place in the file and an
// object header, which groups created since the last flush do not have yet.
type node struct {
	file   *File
	path   string
	header *object.Header
}

// Name returns the last component of the object's path.
func (n *node) Name() string {
	return path.Base(n.path)
}

// Path returns the absolute path the object was opened at.
func (n *node) Path() string {
	return n.path
}

// Attrs returns the names of the object's attributes.
func (n *node) Attrs() []string {
	if n.header == nil {
		return nil
	}
	var names []string
	for _, a := range n.header.Attributes() {
		names = append(names, a.Name)
	}
	return names
}

// Attr returns the named attribute, or nil.
func (n *node) Attr(name string) *Attribute {
	if n.header == nil {
		return nil
	}
	for _, a := range n.header.Attributes() {
		if a.Name == name {
			return &Attribute{msg: a, reader: n.file.reader}
		}
	}
	return nil
}

// HasAttr reports whether the object has the named attribute.
func (n *node) HasAttr(name string) bool {
	return n.Attr(name) != nil
}

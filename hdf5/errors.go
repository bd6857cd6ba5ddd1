// Package hdf5 reads and writes HDF5 files in pure Go.
//
// Reading covers superblock versions 0 to 3, old and new style groups with
// hard, soft and external links, and compact, contiguous and chunked
// datasets whose chunks may be deflated, shuffled or checksummed. Writing
// produces version 3 superblocks with compact new-style groups.
package hdf5

import (
	"errors"

	"github.com/robert-malhotra/virelay/internal/layout"
	"github.com/robert-malhotra/virelay/internal/superblock"
)

var (
	ErrNotHDF5     = superblock.ErrNotHDF5
	ErrNotFound    = errors.New("object not found")
	ErrExists      = errors.New("object already exists")
	ErrNotDataset  = errors.New("object is not a dataset")
	ErrNotGroup    = errors.New("object is not a group")
	ErrUnsupported = errors.New("unsupported feature")
	ErrClosed      = errors.New("file is closed")
	ErrLinkDepth   = errors.New("maximum link depth exceeded")
	ErrReadOnly    = errors.New("file is not writable")
	ErrOutOfBounds = layout.ErrOutOfBounds
	ErrCorrupt     = layout.ErrCorrupt
)

// MaxLinkDepth bounds the soft and external links followed while resolving
// one path.
const MaxLinkDepth = 100

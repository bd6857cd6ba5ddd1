package filter

import (
	"fmt"

	"github.com/robert-malhotra/virelay/internal/message"
)

// Pipeline is the ordered filter list of one dataset. Position i matches
// bit i of a chunk's filter mask; skipped optional filters leave a nil slot.
type Pipeline struct {
	filters []Filter
}

// NewPipeline builds the pipeline of fp, which may be nil.
func NewPipeline(fp *message.FilterPipeline) (*Pipeline, error) {
	if fp == nil {
		return &Pipeline{}, nil
	}
	p := &Pipeline{filters: make([]Filter, len(fp.Filters))}
	for i, info := range fp.Filters {
		f, err := New(info)
		if err != nil {
			return nil, err
		}
		p.filters[i] = f
	}
	return p, nil
}

// Decode applies the filters last to first, skipping those whose bit is
// set in mask.
func (p *Pipeline) Decode(input []byte, mask uint32) ([]byte, error) {
	data := input
	for i := len(p.filters) - 1; i >= 0; i-- {
		f := p.filters[i]
		if f == nil || mask&(1<<uint(i)) != 0 {
			continue
		}
		var err error
		if data, err = f.Decode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", filterNames[f.ID()], err)
		}
	}
	return data, nil
}

// Encode applies the filters first to last.
func (p *Pipeline) Encode(input []byte) ([]byte, error) {
	data := input
	for _, f := range p.filters {
		if f == nil {
			continue
		}
		var err error
		if data, err = f.Encode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", filterNames[f.ID()], err)
		}
	}
	return data, nil
}

// Empty reports whether the pipeline changes nothing.
func (p *Pipeline) Empty() bool {
	for _, f := range p.filters {
		if f != nil {
			return false
		}
	}
	return true
}

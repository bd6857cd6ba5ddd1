package errdefs

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindMatching(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    Kind
		matches []error
		misses  []error
	}{
		{
			name:    "configuration",
			err:     Configuration("project load", "p.yaml", "dataset.path", fs.ErrNotExist),
			kind:    KindConfiguration,
			matches: []error{ErrConfiguration, fs.ErrNotExist},
			misses:  []error{ErrNotFound, ErrClosed},
		},
		{
			name:    "not found",
			err:     NotFound("analysis get", "category", "dog"),
			kind:    KindNotFound,
			matches: []error{ErrNotFound},
			misses:  []error{ErrOutOfRange, ErrDataIntegrity},
		},
		{
			name:    "out of range folds into not found",
			err:     OutOfRange("attribution get", 17, 10),
			kind:    KindOutOfRange,
			matches: []error{ErrOutOfRange, ErrNotFound},
			misses:  []error{ErrClosed},
		},
		{
			name:    "closed",
			err:     Closed("project sample", "demo"),
			kind:    KindClosed,
			matches: []error{ErrClosed},
			misses:  []error{ErrNotFound},
		},
		{
			name:    "integrity",
			err:     Integrity("analysis open", "a.h5", "rows %d != %d", 3, 4),
			kind:    KindDataIntegrity,
			matches: []error{ErrDataIntegrity},
			misses:  []error{ErrConfiguration},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.Equal(t, tt.kind, KindOf(wrapped))
			for _, target := range tt.matches {
				assert.ErrorIs(t, wrapped, target)
			}
			for _, target := range tt.misses {
				assert.NotErrorIs(t, wrapped, target)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "attribution get: index 17: out of range: valid range is [0, 10)",
		OutOfRange("attribution get", 17, 10).Error())
	assert.Equal(t, `analysis get: embedding "tsne": not found`,
		NotFound("analysis get", "embedding", "tsne").Error())
	assert.Equal(t, "project load: p.yaml: field name: configuration error: required",
		Configurationf("project load", "p.yaml", "name", "required").Error())
	assert.Equal(t, `project sample: "demo": resource closed`,
		Closed("project sample", "demo").Error())
}

func TestIndexOf(t *testing.T) {
	idx, ok := IndexOf(fmt.Errorf("batch: %w", NotFoundIndex("attribution get", 5)))
	require.True(t, ok)
	assert.Equal(t, 5, idx)

	_, ok = IndexOf(NotFound("workspace get", "project", "x"))
	assert.False(t, ok)

	_, ok = IndexOf(errors.New("plain"))
	assert.False(t, ok)
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "out_of_range", KindOutOfRange.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

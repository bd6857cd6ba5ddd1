package container

import (
	"errors"

	"github.com/robert-malhotra/virelay/errdefs"
	"github.com/robert-malhotra/virelay/hdf5"
	"github.com/robert-malhotra/virelay/labels"
)

// ReadLabels decodes the labels stored at row of a label dataset. A rank-1
// dataset holds one label index per row; a rank-2 dataset holds an n-hot
// vector per row. A label index missing from lm is a data-integrity error:
// the container references a label the project does not define.
func ReadLabels(op, path string, ds *hdf5.Dataset, row int, lm *labels.Map) ([]labels.Label, error) {
	t, err := ReadRow[int64](op, path, ds, row)
	if err != nil {
		return nil, err
	}
	var out []labels.Label
	switch ds.Rank() {
	case 1:
		l, err := lm.Label(int(t.Data()[0]))
		if err != nil {
			return nil, undefinedLabel(op, path, row, err)
		}
		out = []labels.Label{l}
	case 2:
		hot := make([]bool, t.Len())
		for i, v := range t.Data() {
			hot[i] = v != 0
		}
		out, err = lm.FromNHot(hot)
		if err != nil {
			return nil, undefinedLabel(op, path, row, err)
		}
	default:
		return nil, errdefs.IntegrityIndex(op, path, row, "%s has rank %d, want 1 or 2", ds.Path(), ds.Rank())
	}
	return out, nil
}

func undefinedLabel(op, path string, row int, err error) error {
	var e *errdefs.Error
	if errors.As(err, &e) {
		return errdefs.IntegrityIndex(op, path, row, "undefined label %s", e.Key)
	}
	return errdefs.IntegrityIndex(op, path, row, "undefined label")
}

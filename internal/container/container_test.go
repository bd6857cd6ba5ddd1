package container

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/virelay/errdefs"
	"github.com/robert-malhotra/virelay/hdf5"
	"github.com/robert-malhotra/virelay/labels"
)

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.h5")
	f, err := hdf5.Create(path)
	require.NoError(t, err)
	root := f.Root()
	_, err = root.CreateDataset("data", []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, hdf5.WithShape(3, 2, 2),
		hdf5.WithAttribute("scale", []float64{0.5, 2}),
		hdf5.WithAttribute("index", []int64{4, 5}),
		hdf5.WithAttribute("kind", "pixels"))
	require.NoError(t, err)
	_, err = root.CreateDataset("label", []int64{0, 2, 7})
	require.NoError(t, err)
	_, err = root.CreateDataset("multi", []int64{1, 0, 1, 0, 0, 0}, hdf5.WithShape(2, 3))
	require.NoError(t, err)
	g, err := root.CreateGroup("group")
	require.NoError(t, err)
	_, err = g.CreateDataset("values", []int64{1, 2})
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return path
}

func TestOpenErrors(t *testing.T) {
	_, err := Open("test", filepath.Join(t.TempDir(), "missing.h5"))
	assert.ErrorIs(t, err, errdefs.ErrConfiguration)

	junk := filepath.Join(t.TempDir(), "junk.h5")
	require.NoError(t, os.WriteFile(junk, []byte("not a container at all"), 0o644))
	_, err = Open("test", junk)
	assert.Error(t, err)
	assert.NotEqual(t, errdefs.KindUnknown, errdefs.KindOf(err))
}

func TestUnreadableIsNotAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.h5")
	h, err := hdf5.Create(path)
	require.NoError(t, err)
	require.NoError(t, h.Root().CreateSoftLink("a", "/b"))
	require.NoError(t, h.Root().CreateSoftLink("b", "/a"))
	require.NoError(t, h.Close())

	f, err := Open("test", path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.HasGroup("test", "a")
	assert.ErrorIs(t, err, errdefs.ErrDataIntegrity)
	_, err = f.HasDataset("test", "a")
	assert.ErrorIs(t, err, errdefs.ErrDataIntegrity)
	_, err = f.Members("a")
	assert.ErrorIs(t, err, errdefs.ErrDataIntegrity)

	require.NoError(t, f.Close())
	_, err = f.HasGroup("test", "a")
	assert.ErrorIs(t, err, errdefs.ErrClosed)
}

func TestLookupAndRows(t *testing.T) {
	path := writeFixture(t)
	f, err := Open("test", path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, path, f.Path())
	has := func(ok bool, err error) bool {
		require.NoError(t, err)
		return ok
	}
	assert.True(t, has(f.HasDataset("test", "data")))
	assert.False(t, has(f.HasDataset("test", "group")))
	assert.False(t, has(f.HasDataset("test", "absent")))
	assert.True(t, has(f.HasGroup("test", "group")))
	assert.False(t, has(f.HasGroup("test", "data")))

	_, err = f.Dataset("test", "absent")
	assert.ErrorIs(t, err, errdefs.ErrDataIntegrity)
	_, err = f.Lookup("test", "group/absent", "category", "absent")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	names, err := f.Members("group")
	require.NoError(t, err)
	assert.Equal(t, []string{"values"}, names)
	names, err = f.Members("nowhere")
	require.NoError(t, err)
	assert.Nil(t, names)

	ds, err := f.Dataset("test", "data")
	require.NoError(t, err)
	assert.Equal(t, 3, Rows(ds))

	row, err := ReadRow[float32]("test", path, ds, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, row.Shape())
	assert.Equal(t, []float32{4, 5, 6, 7}, row.Data())

	_, err = ReadRow[float32]("test", path, ds, 3)
	assert.ErrorIs(t, err, errdefs.ErrOutOfRange)
	idx, ok := errdefs.IndexOf(err)
	assert.True(t, ok)
	assert.Equal(t, 3, idx)

	all, err := ReadAll[float32]("test", path, ds)
	require.NoError(t, err)
	assert.Len(t, all, 12)

	scale, err := AttrFloats("test", path, ds, "scale")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 2}, scale)
	index, err := AttrInts("test", path, ds, "index")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, index)
	kind, err := AttrString("test", path, ds, "kind")
	require.NoError(t, err)
	assert.Equal(t, "pixels", kind)

	missing, err := AttrFloats("test", path, ds, "absent")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Contains(t, Describe(ds), "/data [3 2 2]")
}

func TestReadLabels(t *testing.T) {
	path := writeFixture(t)
	f, err := Open("test", path)
	require.NoError(t, err)
	defer f.Close()

	lm, err := labels.New([]labels.Label{
		{Index: 0, Name: "dog"},
		{Index: 1, Name: "cat"},
		{Index: 2, Name: "bird"},
	})
	require.NoError(t, err)

	single, err := f.Dataset("test", "label")
	require.NoError(t, err)
	got, err := ReadLabels("test", path, single, 1, lm)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bird", got[0].Name)

	_, err = ReadLabels("test", path, single, 2, lm)
	assert.ErrorIs(t, err, errdefs.ErrDataIntegrity)
	assert.Contains(t, err.Error(), "undefined label")

	multi, err := f.Dataset("test", "multi")
	require.NoError(t, err)
	got, err = ReadLabels("test", path, multi, 0, lm)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "dog", got[0].Name)
	assert.Equal(t, "bird", got[1].Name)
	got, err = ReadLabels("test", path, multi, 1, lm)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWalk(t *testing.T) {
	f, err := Open("test", writeFixture(t))
	require.NoError(t, err)
	defer f.Close()

	var groups, datasets []string
	require.NoError(t, f.Walk(func(path string, obj any, err error) error {
		require.NoError(t, err)
		switch obj.(type) {
		case *hdf5.Group:
			groups = append(groups, path)
		case *hdf5.Dataset:
			datasets = append(datasets, path)
		}
		return nil
	}))
	assert.ElementsMatch(t, []string{"/", "/group"}, groups)
	assert.ElementsMatch(t, []string{"/data", "/label", "/multi", "/group/values"}, datasets)

	require.NoError(t, f.Close())
	_, err = f.Dataset("test", "data")
	assert.ErrorIs(t, err, errdefs.ErrClosed)
}

package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/virelay/analysis"
	"github.com/robert-malhotra/virelay/errdefs"
	"github.com/robert-malhotra/virelay/internal/demo"
	"github.com/robert-malhotra/virelay/internal/metrics"
)

func writeDemo(t *testing.T, opts demo.Options) *demo.Layout {
	t.Helper()
	l, err := demo.Write(t.TempDir(), opts)
	require.NoError(t, err)
	return l
}

func openDemo(t *testing.T, opts demo.Options) *Project {
	t.Helper()
	p, err := Load(writeDemo(t, opts).Manifest)
	require.NoError(t, err)
	require.NoError(t, p.Open())
	t.Cleanup(func() { p.Close() })
	return p
}

func TestLoadMetadata(t *testing.T) {
	l := writeDemo(t, demo.Options{})
	p, err := Load(l.Manifest)
	require.NoError(t, err)

	assert.Equal(t, l.Manifest, p.Path())
	assert.Equal(t, "demo", p.Name())
	assert.Equal(t, "demo-cnn", p.Model())
	assert.Equal(t, "demo samples", p.DatasetName())
	assert.Equal(t, "lrp", p.AttributionMethod())
	assert.Equal(t, "true_label", p.AttributionStrategy())
	assert.True(t, p.HasDataset())
	assert.True(t, p.HasAttributions())
	assert.True(t, p.HasAnalysis(demo.AnalysisMethod))
	assert.False(t, p.HasAnalysis("umap"))
	assert.Equal(t, []string{demo.AnalysisMethod}, p.AnalysisMethods())
	assert.Equal(t, 3, p.LabelMap().Len())
	assert.Equal(t, Unopened, p.State())

	_, err = p.Sample(0)
	assert.ErrorIs(t, err, errdefs.ErrClosed)
	_, err = p.Attribution(0)
	assert.ErrorIs(t, err, errdefs.ErrClosed)
	_, err = p.Analysis(demo.AnalysisMethod, "n02084071", "kmeans-2", "tsne")
	assert.ErrorIs(t, err, errdefs.ErrClosed)
}

func TestOpenReadClose(t *testing.T) {
	before := testutil.ToFloat64(metrics.ProjectsOpen)
	p, err := Load(writeDemo(t, demo.Options{}).Manifest)
	require.NoError(t, err)
	require.NoError(t, p.Open())
	require.NoError(t, p.Open())
	assert.Equal(t, Open, p.State())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ProjectsOpen))

	n, err := p.SampleCount()
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	s, err := p.Sample(4)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Index)
	require.Len(t, s.Labels, 1)
	assert.Equal(t, "cat", s.Labels[0].Name)
	assert.Equal(t, []int{8, 8, 3}, s.Data.Shape())
	assert.InDelta(t, demo.Pixel(4, 2, 5, 1), s.Data.At(1, 5, 2), 1e-6)

	indices, err := p.AttributionIndices()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, indices)

	a, err := p.Attribution(3)
	require.NoError(t, err)
	assert.Equal(t, "dog", a.Labels[0].Name)
	assert.Equal(t, []int{8, 8, 3}, a.Data.Shape())
	assert.Equal(t, 0, a.TopPredictions(1)[0].Index)
	assert.InDelta(t, demo.Relevance(3, 1, 2, 6), a.Data.At(6, 2, 1), 1e-6)

	_, err = p.Attributions([]int{0, 1, 99})
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
	idx, ok := errdefs.IndexOf(err)
	require.True(t, ok)
	assert.Equal(t, 99, idx)

	cats, err := p.Categories(demo.AnalysisMethod)
	require.NoError(t, err)
	assert.Equal(t, []analysis.Category{
		{Name: "n01503061", DisplayName: "bird"},
		{Name: "n02084071", DisplayName: "dog"},
		{Name: "n02121808", DisplayName: "cat"},
	}, cats)
	clus, err := p.Clusterings(demo.AnalysisMethod, "n02084071")
	require.NoError(t, err)
	assert.Equal(t, []string{"kmeans-2"}, clus)
	embs, err := p.Embeddings(demo.AnalysisMethod, "n02084071")
	require.NoError(t, err)
	assert.Equal(t, []string{"spectral", "tsne"}, embs)

	an, err := p.Analysis(demo.AnalysisMethod, "n02084071", "kmeans-2", "tsne")
	require.NoError(t, err)
	assert.Equal(t, "dog", an.CategoryDisplayName)
	assert.Equal(t, []analysis.Embedding{
		{AttributionIndex: 0, Cluster: 0, Value: []float64{0, 0}},
		{AttributionIndex: 3, Cluster: 1, Value: []float64{0.3, -0.3}},
	}, an.Embedding)
	assert.Equal(t, []float64{0.9, 0.5, 0.1}, an.Eigenvalues)

	_, err = p.Categories("umap")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
	var e *errdefs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "method", e.Level)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, Closed, p.State())
	assert.Equal(t, before, testutil.ToFloat64(metrics.ProjectsOpen))

	// returned values outlive the project
	assert.Equal(t, []float64{0.3, -0.3}, an.Embedding[1].Value)
	assert.Equal(t, []int{8, 8, 3}, a.Data.Shape())

	_, err = p.Sample(0)
	assert.ErrorIs(t, err, errdefs.ErrClosed)
	_, err = p.Attributions([]int{0})
	assert.ErrorIs(t, err, errdefs.ErrClosed)
	_, err = p.Analysis(demo.AnalysisMethod, "n02084071", "kmeans-2", "tsne")
	assert.ErrorIs(t, err, errdefs.ErrClosed)
	assert.ErrorIs(t, p.Open(), errdefs.ErrClosed)
}

func TestOpenRollsBack(t *testing.T) {
	l := writeDemo(t, demo.Options{})
	require.NoError(t, os.Remove(l.Analysis))
	p, err := Load(l.Manifest)
	require.NoError(t, err)

	before := testutil.ToFloat64(metrics.ProjectsOpen)
	err = p.Open()
	assert.ErrorIs(t, err, errdefs.ErrConfiguration)
	assert.Equal(t, Unopened, p.State())
	assert.Equal(t, before, testutil.ToFloat64(metrics.ProjectsOpen))
	_, err = p.Sample(0)
	assert.ErrorIs(t, err, errdefs.ErrClosed)
	require.NoError(t, p.Close())
}

func TestDirectoryProject(t *testing.T) {
	p := openDemo(t, demo.Options{Directory: true, Samples: 4})

	n, err := p.SampleCount()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	s, err := p.Sample(1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Index)
	require.Len(t, s.Labels, 1)
	assert.Equal(t, "cat", s.Labels[0].Name)
	assert.Equal(t, "n02121808", s.Labels[0].OntologyID)

	px := s.Pixels()
	assert.Equal(t, []int{8, 8, 3}, px.Shape())
	want := uint8(demo.Pixel(1, 0, 3, 2)*255 + 0.5)
	assert.Equal(t, want, px.At(2, 3, 0))
}

const labelJSON = `[{"index": 0, "word_net_id": "n02084071", "name": "dog"}]`

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels.json"), []byte(labelJSON), 0o644))
	path := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestManifestErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"empty", ``, "project"},
		{"missing name", "project:\n  model: m\n  label_map: labels.json\n", "project.name"},
		{"missing label map", "project:\n  name: p\n  model: m\n", "project.label_map"},
		{"label map file", "project:\n  name: p\n  model: m\n  label_map: nope.json\n", "project.label_map"},
		{"dataset path", "project:\n  name: p\n  model: m\n  label_map: labels.json\n  dataset:\n    name: d\n    kind: container\n", "project.dataset.path"},
		{"dataset kind", "project:\n  name: p\n  model: m\n  label_map: labels.json\n  dataset:\n    name: d\n    kind: tarball\n    path: x\n", "project.dataset.kind"},
		{"no kind", "project:\n  name: p\n  model: m\n  label_map: labels.json\n  dataset:\n    name: d\n    path: x\n", "project.dataset.kind"},
		{"kind contradicts type", "project:\n  name: p\n  model: m\n  label_map: labels.json\n  dataset:\n    name: d\n    kind: directory\n    type: hdf5\n    path: x\n", "project.dataset.kind"},
		{"bad pattern", "project:\n  name: p\n  model: m\n  label_map: labels.json\n  dataset:\n    name: d\n    type: image_directory\n    path: x\n    label_index_regex: '\\d+'\n", "project.dataset.label_index_regex"},
		{"bad method", "project:\n  name: p\n  model: m\n  label_map: labels.json\n  dataset:\n    name: d\n    kind: directory\n    path: x\n    label_index_regex: '(\\d+)'\n    up_sampling_method: stretch\n", "project.dataset.up_sampling_method"},
		{"attribution sources", "project:\n  name: p\n  model: m\n  label_map: labels.json\n  attributions:\n    attribution_method: lrp\n", "project.attributions.sources"},
		{"analysis method", "project:\n  name: p\n  model: m\n  label_map: labels.json\n  analyses:\n    - sources: [a.h5]\n", "project.analyses[0].analysis_method"},
		{"analysis sources", "project:\n  name: p\n  model: m\n  label_map: labels.json\n  analyses:\n    - analysis_method: s\n      sources: ['']\n", "project.analyses[0].sources[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeManifest(t, tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, errdefs.ErrConfiguration)
			var e *errdefs.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.field, e.Field)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, errdefs.ErrConfiguration)
}

func TestManifestWithoutResources(t *testing.T) {
	path := writeManifest(t, `project:
  name: bare
  model: m
  label_map: labels.json
  dataset:
    name: images
    type: hdf5
    path: data/set.h5
  analyses:
    - analysis_method: a
      sources: [one.h5]
    - analysis_method: b
      sources: [two.h5]
    - analysis_method: a
      sources: [three.h5]
`)
	p, err := Load(path)
	require.NoError(t, err)
	assert.True(t, p.HasDataset())
	assert.False(t, p.HasAttributions())
	assert.Empty(t, p.AttributionMethod())
	assert.Equal(t, []string{"a", "b"}, p.AnalysisMethods())
	dir := filepath.Dir(path)
	assert.Equal(t, []string{filepath.Join(dir, "one.h5"), filepath.Join(dir, "three.h5")}, p.sources["a"])
	assert.Equal(t, filepath.Join(dir, "data", "set.h5"), p.spec.Dataset.Path)

	bare := writeManifest(t, "project:\n  name: bare\n  model: m\n  label_map: labels.json\n")
	p, err = Load(bare)
	require.NoError(t, err)
	require.NoError(t, p.Open())
	defer p.Close()
	assert.False(t, p.HasDataset())
	_, err = p.Sample(0)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
	_, err = p.Attribution(0)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
	assert.Empty(t, p.AnalysisMethods())
}

// Package demo writes small, self-consistent projects: a label map, a
// dataset, attributions for every sample, one analysis method and the
// manifest tying them together.
package demo

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/robert-malhotra/virelay/hdf5"
)

// AnalysisMethod is the analysis method every demo project declares.
const AnalysisMethod = "spectral-analysis"

// Labels are the classes of a demo project. Sample i has label i mod 3.
var Labels = []struct {
	Index      int    `json:"index"`
	OntologyID string `json:"word_net_id"`
	Name       string `json:"name"`
}{
	{0, "n02084071", "dog"},
	{1, "n02121808", "cat"},
	{2, "n01503061", "bird"},
}

// Options sizes a demo project.
type Options struct {
	// Name is the project name, "demo" by default.
	Name string
	// Samples is the sample count, 6 by default.
	Samples int
	// Width and Height are the sample size, 8x8 by default.
	Width, Height int
	// Directory writes the dataset as PNG files instead of a container.
	Directory bool
}

func (o *Options) defaults() {
	if o.Name == "" {
		o.Name = "demo"
	}
	if o.Samples <= 0 {
		o.Samples = 6
	}
	if o.Width <= 0 {
		o.Width = 8
	}
	if o.Height <= 0 {
		o.Height = 8
	}
}

// Layout lists the files of a written project.
type Layout struct {
	Manifest     string
	LabelMap     string
	Dataset      string
	Attributions string
	Analysis     string
	Options      Options
}

// Pixel returns channel c of pixel (x, y) of sample i, in [0, 1].
func Pixel(i, c, x, y int) float32 {
	return float32((i+c+x+y)%8) / 7
}

// Relevance returns channel c of pixel (x, y) of the attribution of sample
// i. Even samples have positive relevance only.
func Relevance(i, c, x, y int) float32 {
	v := float32(x+y+c+1) / 10
	if i%2 == 1 && x < y {
		v = -v
	}
	return v
}

// Write creates a demo project below dir and returns where its files are.
func Write(dir string, opts Options) (*Layout, error) {
	opts.defaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	l := &Layout{
		Manifest:     filepath.Join(dir, opts.Name+".yaml"),
		LabelMap:     filepath.Join(dir, "labels.json"),
		Attributions: filepath.Join(dir, "attribution.h5"),
		Analysis:     filepath.Join(dir, "analysis.h5"),
		Options:      opts,
	}
	if opts.Directory {
		l.Dataset = filepath.Join(dir, "images")
	} else {
		l.Dataset = filepath.Join(dir, "dataset.h5")
	}

	steps := []struct {
		what string
		fn   func(*Layout) error
	}{
		{"label map", writeLabels},
		{"dataset", writeDataset},
		{"attributions", writeAttributions},
		{"analysis", writeAnalysis},
		{"manifest", writeManifest},
	}
	for _, s := range steps {
		if err := s.fn(l); err != nil {
			return nil, fmt.Errorf("writing demo %s: %w", s.what, err)
		}
	}
	return l, nil
}

func writeLabels(l *Layout) error {
	raw, err := json.MarshalIndent(Labels, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.LabelMap, raw, 0o644)
}

// samples returns the samples as (N, 3, H, W) values built by f.
func samples(o Options, f func(i, c, x, y int) float32) []float32 {
	out := make([]float32, 0, o.Samples*3*o.Width*o.Height)
	for i := 0; i < o.Samples; i++ {
		for c := 0; c < 3; c++ {
			for y := 0; y < o.Height; y++ {
				for x := 0; x < o.Width; x++ {
					out = append(out, f(i, c, x, y))
				}
			}
		}
	}
	return out
}

func labelOf(i int) int64 { return int64(i % len(Labels)) }

func sampleLabels(o Options) []int64 {
	out := make([]int64, o.Samples)
	for i := range out {
		out[i] = labelOf(i)
	}
	return out
}

// withFile creates path, runs fn on its root group and closes it.
func withFile(path string, fn func(root *hdf5.Group) error) (err error) {
	f, err := hdf5.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(f.Root())
}

func writeDataset(l *Layout) error {
	o := l.Options
	if o.Directory {
		return writeImages(l)
	}
	return withFile(l.Dataset, func(root *hdf5.Group) error {
		n, h, w := uint64(o.Samples), uint64(o.Height), uint64(o.Width)
		if _, err := root.CreateDataset("data", samples(o, Pixel), hdf5.WithShape(n, 3, h, w)); err != nil {
			return err
		}
		_, err := root.CreateDataset("label", sampleLabels(o))
		return err
	})
}

func writeImages(l *Layout) error {
	o := l.Options
	if err := os.MkdirAll(l.Dataset, 0o755); err != nil {
		return err
	}
	for i := 0; i < o.Samples; i++ {
		img := image.NewRGBA(image.Rect(0, 0, o.Width, o.Height))
		for y := 0; y < o.Height; y++ {
			for x := 0; x < o.Width; x++ {
				px := func(c int) uint8 { return uint8(Pixel(i, c, x, y)*255 + 0.5) }
				img.Set(x, y, color.RGBA{px(0), px(1), px(2), 0xff})
			}
		}
		name := fmt.Sprintf("%d_%s_sample.png", labelOf(i), Labels[labelOf(i)].OntologyID)
		if err := writePNG(filepath.Join(l.Dataset, fmt.Sprintf("%03d", i), name), img); err != nil {
			return err
		}
	}
	return nil
}

func writePNG(path string, img image.Image) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return png.Encode(f, img)
}

func writeAttributions(l *Layout) error {
	o := l.Options
	return withFile(l.Attributions, func(root *hdf5.Group) error {
		n, h, w := uint64(o.Samples), uint64(o.Height), uint64(o.Width)
		// one chunk per sample keeps row reads to a single chunk
		if _, err := root.CreateDataset("attribution", samples(o, Relevance),
			hdf5.WithShape(n, 3, h, w), hdf5.WithChunks(1, 3, h, w),
			hdf5.WithShuffle(), hdf5.WithDeflate(4)); err != nil {
			return err
		}
		if _, err := root.CreateDataset("label", sampleLabels(o)); err != nil {
			return err
		}
		pred := make([]float64, 0, o.Samples*len(Labels))
		index := make([]int64, o.Samples)
		for i := 0; i < o.Samples; i++ {
			for c := range Labels {
				p := 0.1
				if int64(c) == labelOf(i) {
					p = 0.8
				}
				pred = append(pred, p)
			}
			index[i] = int64(i)
		}
		if _, err := root.CreateDataset("prediction", pred, hdf5.WithShape(n, uint64(len(Labels)))); err != nil {
			return err
		}
		_, err := root.CreateDataset("index", index)
		return err
	})
}

// writeAnalysis stores one category per label, named by its ontology id,
// with a two-cluster clustering, a spectral embedding and a 2-d embedding
// derived from it.
func writeAnalysis(l *Layout) error {
	o := l.Options
	return withFile(l.Analysis, func(root *hdf5.Group) error {
		for li, lab := range Labels {
			var index, clusters []int64
			var spectral, tsne []float64
			for i := 0; i < o.Samples; i++ {
				if i%len(Labels) != li {
					continue
				}
				row := int64(len(index))
				index = append(index, int64(i))
				clusters = append(clusters, row%2)
				s := float64(i) / 10
				spectral = append(spectral, s, -s, s*s)
				tsne = append(tsne, s, -s)
			}
			if len(index) == 0 {
				continue
			}
			cat, err := root.CreateGroup(lab.OntologyID)
			if err != nil {
				return err
			}
			if _, err := cat.CreateDataset("index", index); err != nil {
				return err
			}
			clu, err := cat.CreateGroup("cluster")
			if err != nil {
				return err
			}
			if _, err := clu.CreateDataset("kmeans-2", clusters); err != nil {
				return err
			}
			emb, err := cat.CreateGroup("embedding")
			if err != nil {
				return err
			}
			rows := uint64(len(index))
			if _, err := emb.CreateDataset("spectral", spectral, hdf5.WithShape(rows, 3),
				hdf5.WithAttribute("eigenvalue", []float64{0.9, 0.5, 0.1})); err != nil {
				return err
			}
			if _, err := emb.CreateDataset("tsne", tsne, hdf5.WithShape(rows, 2),
				hdf5.WithAttribute("embedding", "spectral"),
				hdf5.WithAttribute("index", []int64{0, 1})); err != nil {
				return err
			}
		}
		return nil
	})
}

type manifest struct {
	Project struct {
		Name         string           `yaml:"name"`
		Model        string           `yaml:"model"`
		LabelMap     string           `yaml:"label_map"`
		Dataset      map[string]any   `yaml:"dataset"`
		Attributions map[string]any   `yaml:"attributions"`
		Analyses     []map[string]any `yaml:"analyses"`
	} `yaml:"project"`
}

func writeManifest(l *Layout) error {
	o := l.Options
	rel := func(p string) string {
		r, err := filepath.Rel(filepath.Dir(l.Manifest), p)
		if err != nil {
			return p
		}
		return r
	}
	var m manifest
	m.Project.Name = o.Name
	m.Project.Model = "demo-cnn"
	m.Project.LabelMap = rel(l.LabelMap)
	m.Project.Dataset = map[string]any{"name": o.Name + " samples", "path": rel(l.Dataset)}
	if o.Directory {
		m.Project.Dataset["kind"] = "directory"
		m.Project.Dataset["label_index_regex"] = `(\d+)_n`
		m.Project.Dataset["label_word_net_id_regex"] = `(n\d{8})`
		m.Project.Dataset["input_width"] = o.Width
		m.Project.Dataset["input_height"] = o.Height
		m.Project.Dataset["down_sampling_method"] = "center_crop"
		m.Project.Dataset["up_sampling_method"] = "fill_zeros"
	} else {
		m.Project.Dataset["kind"] = "container"
	}
	m.Project.Attributions = map[string]any{
		"attribution_method":   "lrp",
		"attribution_strategy": "true_label",
		"sources":              []string{rel(l.Attributions)},
	}
	m.Project.Analyses = []map[string]any{{
		"analysis_method": AnalysisMethod,
		"sources":         []string{rel(l.Analysis)},
	}}

	raw, err := yaml.Marshal(&m)
	if err != nil {
		return err
	}
	return os.WriteFile(l.Manifest, raw, 0o644)
}

package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robert-malhotra/virelay/errdefs"
	"github.com/robert-malhotra/virelay/internal/metrics"
	"github.com/robert-malhotra/virelay/labels"
	"github.com/robert-malhotra/virelay/tensor"
)

// DirectoryConfig describes a dataset of image files below Root.
type DirectoryConfig struct {
	Name string
	Root string
	// IndexPattern extracts the label index from a sample's relative path.
	// It uses the group named "index", or its first group.
	IndexPattern string
	// OntologyPattern extracts the ontology id. It uses the group named
	// "ontology_id", or its first group.
	OntologyPattern string
	// Width and Height are the model input size. Zero disables resampling.
	Width, Height int
	DownSampling  DownSampling
	UpSampling    UpSampling
}

// Directory is a dataset with one image file per sample. The sample order is
// the sorted file list.
type Directory struct {
	cfg      DirectoryConfig
	lm       *labels.Map
	files    []string
	index    *capture
	ontology *capture
	closed   atomic.Bool
	opts     *options
}

// capture extracts one label field from a sample path. Patterns anchored at
// "^/" match the absolute path; all others match the path relative to the
// dataset root, so directories above the root never supply a label.
type capture struct {
	re       *regexp.Regexp
	group    int
	absolute bool
}

func (c *capture) find(rel, abs string) (string, bool) {
	s := rel
	if c.absolute {
		s = filepath.ToSlash(abs)
	}
	if m := c.re.FindStringSubmatch(s); m != nil && m[c.group] != "" {
		return m[c.group], true
	}
	return "", false
}

func compileCapture(op, root, field, pattern, name string) (*capture, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errdefs.Configuration(op, root, field, err)
	}
	if re.NumSubexp() == 0 {
		return nil, errdefs.Configurationf(op, root, field, "pattern %q has no capture group", pattern)
	}
	group := re.SubexpIndex(name)
	if group < 0 {
		group = 1
	}
	return &capture{re: re, group: group, absolute: strings.HasPrefix(pattern, "^/")}, nil
}

// Validate checks the label patterns, input size and resampling methods
// without touching the file system. Errors name the manifest field at fault.
func (cfg DirectoryConfig) Validate() error {
	_, _, err := cfg.compile("dataset validate")
	return err
}

func (cfg DirectoryConfig) compile(op string) (index, ontology *capture, err error) {
	if cfg.IndexPattern == "" && cfg.OntologyPattern == "" {
		return nil, nil, errdefs.Configurationf(op, cfg.Root, "label_index_regex", "one of label_index_regex or label_word_net_id_regex is required")
	}
	if cfg.IndexPattern != "" {
		if index, err = compileCapture(op, cfg.Root, "label_index_regex", cfg.IndexPattern, "index"); err != nil {
			return nil, nil, err
		}
	}
	if cfg.OntologyPattern != "" {
		if ontology, err = compileCapture(op, cfg.Root, "label_word_net_id_regex", cfg.OntologyPattern, "ontology_id"); err != nil {
			return nil, nil, err
		}
	}
	if cfg.Width < 0 || cfg.Height < 0 {
		return nil, nil, errdefs.Configurationf(op, cfg.Root, "input_width", "negative input size %dx%d", cfg.Width, cfg.Height)
	}
	if !cfg.DownSampling.valid() {
		return nil, nil, errdefs.Configurationf(op, cfg.Root, "down_sampling_method", "unknown method %q", cfg.DownSampling)
	}
	if !cfg.UpSampling.valid() {
		return nil, nil, errdefs.Configurationf(op, cfg.Root, "up_sampling_method", "unknown method %q", cfg.UpSampling)
	}
	return index, ontology, nil
}

// OpenDirectory lists the sample files of a directory dataset and validates
// its configuration. The file list comes from a sibling "<root>_paths.txt"
// when present, holding paths relative to the directory containing root.
func OpenDirectory(cfg DirectoryConfig, lm *labels.Map, opts ...Option) (*Directory, error) {
	const op = "dataset open"
	o := applyOptions(cfg.Name, opts)
	d := &Directory{cfg: cfg, lm: lm, opts: o}

	var err error
	if d.index, d.ontology, err = cfg.compile(op); err != nil {
		return nil, err
	}
	if d.files, err = listSamples(op, cfg.Root); err != nil {
		return nil, err
	}
	o.logger.Debug("opened directory dataset", "root", cfg.Root, "samples", len(d.files))
	return d, nil
}

func listSamples(op, root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errdefs.Configuration(op, root, "path", err)
	}
	if !info.IsDir() {
		return nil, errdefs.Configurationf(op, root, "path", "not a directory")
	}

	var files []string
	list := strings.TrimRight(root, string(filepath.Separator)) + "_paths.txt"
	if f, err := os.Open(list); err == nil {
		defer f.Close()
		base := filepath.Dir(list)
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			if !filepath.IsAbs(line) {
				line = filepath.Join(base, line)
			}
			files = append(files, line)
		}
		if err := sc.Err(); err != nil {
			return nil, errdefs.Configuration(op, list, "", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, errdefs.Configuration(op, list, "", err)
	} else {
		err := filepath.WalkDir(root, func(path string, e fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := e.Name()
			if e.IsDir() {
				if path != root && strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasPrefix(name, ".") && filepath.Ext(name) != "" {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, errdefs.Configuration(op, root, "path", err)
		}
	}
	if len(files) == 0 {
		return nil, errdefs.Configurationf(op, root, "path", "no sample files")
	}
	slices.Sort(files)
	return files, nil
}

// Name returns the dataset's display name.
func (d *Directory) Name() string { return d.cfg.Name }

// Len returns the number of sample files.
func (d *Directory) Len() int { return len(d.files) }

// Path returns the file backing sample index.
func (d *Directory) Path(index int) (string, error) {
	if index < 0 || index >= len(d.files) {
		return "", errdefs.OutOfRange("dataset sample path", index, len(d.files)).WithPath(d.cfg.Root)
	}
	return d.files[index], nil
}

// Sample decodes the image at index, resamples it to the configured input
// size and resolves its label from the file name.
func (d *Directory) Sample(index int) (s Sample, err error) {
	const op = "dataset get sample"
	defer func(start time.Time) { metrics.ObserveRead(metrics.ComponentDataset, start, err) }(time.Now())

	if d.closed.Load() {
		return Sample{}, errdefs.Closed(op, d.cfg.Name)
	}
	path, err := d.Path(index)
	if err != nil {
		return Sample{}, err
	}
	label, err := d.resolve(op, index, path)
	if err != nil {
		return Sample{}, err
	}

	img, err := decodeImage(path)
	if err != nil {
		return Sample{}, errdefs.IntegrityIndex(op, path, index, "decoding image").WithCause(err)
	}
	rgba := resample(toRGBA(img), d.cfg.Width, d.cfg.Height, d.cfg.DownSampling, d.cfg.UpSampling)
	return Sample{Index: index, Labels: []labels.Label{label}, Data: pixelsOf(rgba), bytes: true}, nil
}

func (d *Directory) resolve(op string, index int, path string) (labels.Label, error) {
	rel, err := filepath.Rel(d.cfg.Root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	var ontologyID string
	if d.ontology != nil {
		id, ok := d.ontology.find(rel, abs)
		if !ok {
			return labels.Label{}, errdefs.IntegrityIndex(op, path, index, "no ontology id in file name")
		}
		ontologyID = id
	}

	if d.index == nil {
		l, err := d.lm.ByOntologyID(ontologyID)
		if err != nil {
			return labels.Label{}, errdefs.IntegrityIndex(op, path, index, "undefined ontology id %q", ontologyID)
		}
		return l, nil
	}

	raw, ok := d.index.find(rel, abs)
	if !ok {
		return labels.Label{}, errdefs.IntegrityIndex(op, path, index, "no label index in file name")
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return labels.Label{}, errdefs.IntegrityIndex(op, path, index, "label index %q is not an integer", raw)
	}
	l, err := d.lm.Label(n)
	if err != nil {
		return labels.Label{}, errdefs.IntegrityIndex(op, path, index, "undefined label %d", n)
	}
	if ontologyID != "" && l.OntologyID != "" && l.OntologyID != ontologyID {
		return labels.Label{}, errdefs.IntegrityIndex(op, path, index, "label %d is %s, file name says %s", n, l.OntologyID, ontologyID)
	}
	if l.OntologyID == "" {
		l.OntologyID = ontologyID
	}
	return l, nil
}

// Close marks the dataset closed. It holds no open handles.
func (d *Directory) Close() error {
	d.closed.Store(true)
	return nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// pixelsOf returns the RGB channels of img as a (height, width, 3) tensor.
func pixelsOf(img *image.RGBA) *tensor.Tensor[float32] {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float32, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+3]
			out = append(out, float32(p[0]), float32(p[1]), float32(p[2]))
		}
	}
	t, _ := tensor.New([]int{h, w, 3}, out)
	return t
}

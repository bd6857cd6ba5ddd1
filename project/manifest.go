package project

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/robert-malhotra/virelay/dataset"
	"github.com/robert-malhotra/virelay/errdefs"
)

// DatasetKind selects the dataset backend.
type DatasetKind string

const (
	KindDirectory DatasetKind = "directory"
	KindContainer DatasetKind = "container"
)

// legacy dataset type names accepted in place of kind.
var legacyKinds = map[string]DatasetKind{
	"image_directory": KindDirectory,
	"hdf5":            KindContainer,
}

// Manifest is the on-disk form of a project file.
type Manifest struct {
	Project Spec `yaml:"project" validate:"required"`
}

// Spec describes one project. Paths are relative to the manifest's directory
// until Load resolves them.
type Spec struct {
	Name         string           `yaml:"name" validate:"required"`
	Model        string           `yaml:"model" validate:"required"`
	LabelMap     string           `yaml:"label_map" validate:"required"`
	Dataset      *DatasetSpec     `yaml:"dataset"`
	Attributions *AttributionSpec `yaml:"attributions"`
	Analyses     []AnalysisSpec   `yaml:"analyses" validate:"dive"`
}

// DatasetSpec describes the project's dataset. The directory fields only
// apply to directory datasets.
type DatasetSpec struct {
	Name string      `yaml:"name" validate:"required"`
	Kind DatasetKind `yaml:"kind" validate:"omitempty,oneof=directory container"`
	// Type is the older spelling of Kind.
	Type string `yaml:"type" validate:"omitempty,oneof=image_directory hdf5"`
	Path string `yaml:"path" validate:"required"`

	LabelIndexRegex      string `yaml:"label_index_regex"`
	LabelOntologyIDRegex string `yaml:"label_word_net_id_regex"`
	InputWidth           int    `yaml:"input_width" validate:"gte=0"`
	InputHeight          int    `yaml:"input_height" validate:"gte=0"`
	DownSamplingMethod   string `yaml:"down_sampling_method"`
	UpSamplingMethod     string `yaml:"up_sampling_method"`
}

// AttributionSpec lists the attribution containers of a project.
type AttributionSpec struct {
	Method   string   `yaml:"attribution_method" validate:"required"`
	Strategy string   `yaml:"attribution_strategy"`
	Sources  []string `yaml:"sources" validate:"required,min=1,dive,required"`
}

// AnalysisSpec lists the containers of one analysis method.
type AnalysisSpec struct {
	Method  string   `yaml:"analysis_method" validate:"required"`
	Sources []string `yaml:"sources" validate:"required,min=1,dive,required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ReadManifest parses and validates a manifest without resolving paths.
func ReadManifest(path string) (*Manifest, error) {
	const op = "project load"
	f, err := os.Open(path)
	if err != nil {
		return nil, errdefs.Configuration(op, path, "", err)
	}
	defer f.Close()

	var m Manifest
	if err := yaml.NewDecoder(f).Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errdefs.Configurationf(op, path, "project", "empty manifest")
		}
		return nil, errdefs.Configuration(op, path, "", err)
	}
	if err := validate.Struct(&m); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			fe := fields[0]
			return nil, errdefs.Configurationf(op, path, fieldPath(fe.Namespace()), "failed %q check", fe.Tag())
		}
		return nil, errdefs.Configuration(op, path, "", err)
	}
	if d := m.Project.Dataset; d != nil {
		if _, err := d.kind(); err != nil {
			return nil, errdefs.Configuration(op, path, "project.dataset.kind", err)
		}
	}
	return &m, nil
}

// fieldPath drops the Go type name from a validator namespace.
func fieldPath(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}

func (d *DatasetSpec) kind() (DatasetKind, error) {
	legacy, hasLegacy := legacyKinds[d.Type]
	switch {
	case d.Kind == "" && !hasLegacy:
		return "", errors.New("one of kind or type is required")
	case d.Kind == "":
		return legacy, nil
	case hasLegacy && legacy != d.Kind:
		return "", fmt.Errorf("kind %q contradicts type %q", d.Kind, d.Type)
	}
	return d.Kind, nil
}

// directory returns the directory dataset configuration for d.
func (d *DatasetSpec) directory() dataset.DirectoryConfig {
	return dataset.DirectoryConfig{
		Name:            d.Name,
		Root:            d.Path,
		IndexPattern:    d.LabelIndexRegex,
		OntologyPattern: d.LabelOntologyIDRegex,
		Width:           d.InputWidth,
		Height:          d.InputHeight,
		DownSampling:    dataset.DownSampling(d.DownSamplingMethod),
		UpSampling:      dataset.UpSampling(d.UpSamplingMethod),
	}
}

// resolve makes every path in s absolute against dir.
func (s *Spec) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	s.LabelMap = abs(s.LabelMap)
	if s.Dataset != nil {
		s.Dataset.Path = abs(s.Dataset.Path)
	}
	if s.Attributions != nil {
		for i, p := range s.Attributions.Sources {
			s.Attributions.Sources[i] = abs(p)
		}
	}
	for i := range s.Analyses {
		for j, p := range s.Analyses[i].Sources {
			s.Analyses[i].Sources[j] = abs(p)
		}
	}
}

// Package labels maps numeric label indices to structured labels.
package labels

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/robert-malhotra/virelay/errdefs"
)

// Label is one entry of a label map.
type Label struct {
	Index int
	// OntologyID is an external identifier such as a WordNet synset id.
	// It may be empty.
	OntologyID string
	Name       string
}

func (l Label) String() string {
	if l.OntologyID == "" {
		return fmt.Sprintf("%d:%s", l.Index, l.Name)
	}
	return fmt.Sprintf("%d:%s(%s)", l.Index, l.Name, l.OntologyID)
}

// Map is an immutable lookup from label index to Label.
type Map struct {
	path       string
	labels     []Label
	byIndex    map[int]int
	byOntology map[string]int
}

// record is the on-disk form of one label. word_net_id and ontology_id are
// synonyms.
type record struct {
	Index      *int   `json:"index" yaml:"index"`
	WordNetID  string `json:"word_net_id" yaml:"word_net_id"`
	OntologyID string `json:"ontology_id" yaml:"ontology_id"`
	Name       string `json:"name" yaml:"name"`
}

// Load reads a label manifest. Files ending in .yaml or .yml are parsed as
// YAML, everything else as JSON. The manifest is a list of
// {index, word_net_id, name} records.
func Load(path string) (*Map, error) {
	const op = "label map load"
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.Configuration(op, path, "", err)
	}

	var recs []record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &recs)
	default:
		err = json.Unmarshal(raw, &recs)
	}
	if err != nil {
		return nil, errdefs.Configuration(op, path, "", err)
	}

	ls := make([]Label, 0, len(recs))
	for i, r := range recs {
		field := fmt.Sprintf("[%d]", i)
		if r.Index == nil {
			return nil, errdefs.Configurationf(op, path, field+".index", "required")
		}
		if strings.TrimSpace(r.Name) == "" {
			return nil, errdefs.Configurationf(op, path, field+".name", "required")
		}
		id := r.OntologyID
		if id == "" {
			id = r.WordNetID
		}
		ls = append(ls, Label{Index: *r.Index, OntologyID: id, Name: r.Name})
	}
	return build(op, path, ls)
}

// New builds a map from in-memory labels with the same validation as Load.
func New(ls []Label) (*Map, error) {
	return build("label map new", "", slices.Clone(ls))
}

func build(op, path string, ls []Label) (*Map, error) {
	m := &Map{
		path:       path,
		labels:     ls,
		byIndex:    make(map[int]int, len(ls)),
		byOntology: make(map[string]int, len(ls)),
	}
	for i, l := range ls {
		field := fmt.Sprintf("[%d]", i)
		if l.Index < 0 {
			return nil, errdefs.Configurationf(op, path, field+".index", "negative index %d", l.Index)
		}
		if prev, dup := m.byIndex[l.Index]; dup {
			return nil, errdefs.Configurationf(op, path, field+".index", "index %d already defined by entry %d", l.Index, prev)
		}
		m.byIndex[l.Index] = i
		if l.OntologyID != "" {
			if prev, dup := m.byOntology[l.OntologyID]; dup {
				return nil, errdefs.Configurationf(op, path, field+".word_net_id", "id %q already defined by entry %d", l.OntologyID, prev)
			}
			m.byOntology[l.OntologyID] = i
		}
	}
	return m, nil
}

// Path returns the file the map was loaded from, if any.
func (m *Map) Path() string { return m.path }

// Len returns the number of labels.
func (m *Map) Len() int { return len(m.labels) }

// All returns every label in manifest order.
func (m *Map) All() []Label { return slices.Clone(m.labels) }

// Label returns the structured label for index.
func (m *Map) Label(index int) (Label, error) {
	i, ok := m.byIndex[index]
	if !ok {
		return Label{}, errdefs.NotFound("label map get", "label", strconv.Itoa(index)).WithPath(m.path)
	}
	return m.labels[i], nil
}

// Name returns only the display name for index.
func (m *Map) Name(index int) (string, error) {
	l, err := m.Label(index)
	if err != nil {
		return "", err
	}
	return l.Name, nil
}

// Labels resolves every index, failing on the first undefined one.
func (m *Map) Labels(indices []int) ([]Label, error) {
	out := make([]Label, len(indices))
	for i, idx := range indices {
		l, err := m.Label(idx)
		if err != nil {
			return nil, err
		}
		out[i] = l
	}
	return out, nil
}

// Names resolves the display name of every index.
func (m *Map) Names(indices []int) ([]string, error) {
	ls, err := m.Labels(indices)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.Name
	}
	return out, nil
}

// ByOntologyID returns the label carrying the given ontology id.
func (m *Map) ByOntologyID(id string) (Label, error) {
	i, ok := m.byOntology[id]
	if !ok {
		return Label{}, errdefs.NotFound("label map get", "ontology id", id).WithPath(m.path)
	}
	return m.labels[i], nil
}

// FromNHot returns the labels whose positions are set in an n-hot vector.
func (m *Map) FromNHot(v []bool) ([]Label, error) {
	var out []Label
	for i, set := range v {
		if !set {
			continue
		}
		l, err := m.Label(i)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// Resolve interprets ref as a label index when it is numeric and as an
// ontology id otherwise.
func (m *Map) Resolve(ref string) (Label, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		return m.Label(n)
	}
	return m.ByOntologyID(ref)
}

package hdf5

import (
	"errors"
	"reflect"
	"testing"
)

func TestAttributes(t *testing.T) {
	p := create(t, func(root *Group) error {
		g, err := root.CreateGroup("g")
		if err != nil {
			return err
		}
		_, err = g.CreateDataset("d", []float32{1, 2},
			WithAttribute("scale", []float64{0.5, 2}),
			WithAttribute("count", int64(7)),
			WithAttribute("size", uint32(3)),
			WithAttribute("units", "meters"),
			WithAttribute("labels", []string{"x", "yy"}),
			WithAttribute("valid", true))
		return err
	})
	f := reopen(t, p)

	ds, err := f.OpenDataset("/g/d")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"scale", "count", "size", "units", "labels", "valid"}
	if got := ds.Attrs(); !reflect.DeepEqual(got, want) {
		t.Errorf("Attrs = %v", got)
	}
	if !ds.HasAttr("units") || ds.HasAttr("missing") {
		t.Error("HasAttr")
	}

	values := map[string]any{
		"/g/d@scale":  []float64{0.5, 2},
		"/g/d@count":  int64(7),
		"/g/d@size":   uint64(3),
		"/g/d@units":  "meters",
		"/g/d@labels": []string{"x", "yy"},
		"/g/d@valid":  true,
		"g/d@count":   int64(7),
	}
	for p, want := range values {
		got, err := f.ReadAttr(p)
		if err != nil {
			t.Errorf("ReadAttr(%s): %v", p, err)
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ReadAttr(%s) = %#v, want %#v", p, got, want)
		}
	}

	a, err := f.GetAttr("/g/d@scale")
	if err != nil {
		t.Fatal(err)
	}
	if a.Name() != "scale" || a.IsScalar() || !reflect.DeepEqual(a.Shape(), []uint64{2}) {
		t.Errorf("scale: name %q shape %v", a.Name(), a.Shape())
	}
	if ints, err := ds.Attr("count").ReadInt64(); err != nil || !reflect.DeepEqual(ints, []int64{7}) {
		t.Errorf("count as ints = %v, %v", ints, err)
	}
	if s, err := ds.Attr("labels").ReadScalarString(); err != nil || s != "x" {
		t.Errorf("first label = %q, %v", s, err)
	}
	if _, err := ds.Attr("units").ReadFloat64(); err == nil {
		t.Error("string attribute read as floats")
	}

	if _, err := f.GetAttr("/g/d@missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing attribute: got %v", err)
	}
	if _, err := f.GetAttr("/nowhere@x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing object: got %v", err)
	}
	if _, err := f.GetAttr("/g/d"); err == nil {
		t.Error("path without '@' accepted")
	}
}

func TestAttrPaths(t *testing.T) {
	parse := []struct {
		in, obj, name string
	}{
		{"/a/b@x", "/a/b", "x"},
		{"a/b/@x", "/a/b", "x"},
		{"@x", "/", "x"},
		{"/@x", "/", "x"},
		{"/a@b@c", "/a@b", "c"},
	}
	for _, tt := range parse {
		obj, name, err := ParseAttrPath(tt.in)
		if err != nil || obj != tt.obj || name != tt.name {
			t.Errorf("ParseAttrPath(%q) = %q, %q, %v", tt.in, obj, name, err)
		}
		if back := JoinAttrPath(obj, name); back != JoinAttrPath(tt.obj, tt.name) {
			t.Errorf("JoinAttrPath(%q, %q) = %q", obj, name, back)
		}
	}
	for _, bad := range []string{"/a/b", "/a@"} {
		if _, _, err := ParseAttrPath(bad); err == nil {
			t.Errorf("ParseAttrPath(%q) accepted", bad)
		}
	}
	if got := JoinAttrPath("/", "v"); got != "/@v" {
		t.Errorf("root = %q", got)
	}
	if got := JoinAttrPath("a/b/", "v"); got != "/a/b@v" {
		t.Errorf("nested = %q", got)
	}
	if got := SplitPath("//a/./b/"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("SplitPath = %v", got)
	}
	if got := CleanPath("a//b/"); got != "/a/b" {
		t.Errorf("CleanPath = %q", got)
	}
	if got := CleanPath(""); got != "/" {
		t.Errorf("CleanPath(\"\") = %q", got)
	}
}

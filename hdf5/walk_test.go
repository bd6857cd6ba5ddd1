package hdf5

import (
	"errors"
	"io/fs"
	"reflect"
	"testing"
)

func walkFixture(t *testing.T) *File {
	t.Helper()
	return reopen(t, create(t, func(root *Group) error {
		a, err := root.CreateGroup("a")
		if err != nil {
			return err
		}
		if _, err := a.CreateDataset("x", []int8{1}, WithAttribute("unit", "m")); err != nil {
			return err
		}
		b, err := a.CreateGroup("b")
		if err != nil {
			return err
		}
		if _, err := b.CreateDataset("y", []float64{1, 2}, WithAttribute("scale", 2.0)); err != nil {
			return err
		}
		if err := root.CreateSoftLink("self", "/"); err != nil {
			return err
		}
		return root.CreateSoftLink("broken", "/missing")
	}))
}

func TestWalk(t *testing.T) {
	f := walkFixture(t)

	var visited []string
	var failed []string
	err := Walk(f.Root(), func(p string, obj any, err error) error {
		if err != nil {
			failed = append(failed, p)
			return nil
		}
		switch obj.(type) {
		case *Group:
			visited = append(visited, "g "+p)
		case *Dataset:
			visited = append(visited, "d "+p)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	// the soft link back to the root is reported but not descended into
	want := []string{"g /", "g /a", "d /a/x", "g /a/b", "d /a/b/y", "g /self"}
	if !reflect.DeepEqual(visited, want) {
		t.Errorf("visited %v\nwant %v", visited, want)
	}
	if !reflect.DeepEqual(failed, []string{"/broken"}) {
		t.Errorf("failed %v", failed)
	}
}

func TestWalkStop(t *testing.T) {
	f := walkFixture(t)

	n := 0
	err := Walk(f.Root(), func(string, any, error) error {
		n++
		if n == 2 {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil || n != 2 {
		t.Errorf("SkipAll: n=%d err=%v", n, err)
	}

	stop := errors.New("stop")
	if err := Walk(f.Root(), func(string, any, error) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("got %v", err)
	}
}

func TestWalkAttrs(t *testing.T) {
	f := walkFixture(t)

	got := map[string]any{}
	err := f.WalkAttrs(func(info AttrInfo) error {
		if info.Err != nil {
			return info.Err
		}
		got[info.Path] = info.Value
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"/a/x@unit": "m", "/a/b/y@scale": 2.0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("WalkAttrs = %v", got)
	}

	f.Close()
	if err := f.WalkAttrs(func(AttrInfo) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("closed: got %v", err)
	}
}

package hdf5

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

func TestNestedGroups(t *testing.T) {
	p := create(t, func(root *Group) error {
		a, err := root.CreateGroup("a")
		if err != nil {
			return err
		}
		b, err := a.CreateGroup("b")
		if err != nil {
			return err
		}
		if _, err := a.CreateGroup("empty"); err != nil {
			return err
		}
		c, err := b.CreateGroup("c")
		if err != nil {
			return err
		}
		_, err = c.CreateDataset("d", []int32{42})
		return err
	})
	f := reopen(t, p)

	d, err := f.OpenDataset("/a/b/c/d")
	if err != nil {
		t.Fatal(err)
	}
	if d.Path() != "/a/b/c/d" {
		t.Errorf("Path = %q", d.Path())
	}
	a, err := f.OpenGroup("a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.OpenDataset("b/c/d"); err != nil {
		t.Errorf("relative open: %v", err)
	}
	if _, err := a.OpenDataset("/a/b/c/d"); err != nil {
		t.Errorf("absolute open from a subgroup: %v", err)
	}
	members, err := a.Members()
	if err != nil || !reflect.DeepEqual(members, []string{"b", "empty"}) {
		t.Errorf("Members = %v, %v", members, err)
	}
	if n, _ := a.NumObjects(); n != 2 {
		t.Errorf("NumObjects = %d", n)
	}

	if _, err := f.OpenGroup("/a/b/c/d"); !errors.Is(err, ErrNotGroup) {
		t.Errorf("dataset as group: got %v", err)
	}
	if _, err := f.OpenDataset("/a/b"); !errors.Is(err, ErrNotDataset) {
		t.Errorf("group as dataset: got %v", err)
	}
	if _, err := f.OpenDataset("/a/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: got %v", err)
	}
	if _, err := f.OpenDataset("/a/b/c/d/e"); !errors.Is(err, ErrNotGroup) {
		t.Errorf("path through a dataset: got %v", err)
	}
}

func TestGroupHandlesShared(t *testing.T) {
	create(t, func(root *Group) error {
		if _, err := root.CreateGroup("g"); err != nil {
			return err
		}
		f := root.file
		g1, err := f.OpenGroup("/g")
		if err != nil {
			return err
		}
		g2, err := root.OpenGroup("g")
		if err != nil {
			return err
		}
		if g1 != g2 {
			t.Error("two handles for one group of a writable file")
		}
		if _, err := g1.CreateDataset("x", []float32{1}); err != nil {
			return err
		}
		if _, err := f.OpenDataset("/g/x"); err != nil {
			t.Errorf("dataset not visible before flush: %v", err)
		}
		return f.Flush()
	})
}

func TestSoftLinks(t *testing.T) {
	p := create(t, func(root *Group) error {
		g, err := root.CreateGroup("data")
		if err != nil {
			return err
		}
		if _, err := g.CreateDataset("values", []int64{1, 2, 3}); err != nil {
			return err
		}
		for name, target := range map[string]string{
			"alias":    "/data/values",
			"dir":      "/data",
			"relative": "data/values",
			"dangling": "/nowhere",
			"loop1":    "/loop2",
			"loop2":    "/loop1",
		} {
			if err := root.CreateSoftLink(name, target); err != nil {
				return err
			}
		}
		return nil
	})
	f := reopen(t, p)

	ds, err := f.OpenDataset("/alias")
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := ds.ReadInt64(); !reflect.DeepEqual(got, []int64{1, 2, 3}) {
		t.Errorf("alias = %v", got)
	}
	if ds.Path() != "/data/values" {
		t.Errorf("alias resolves to %q", ds.Path())
	}
	if _, err := f.OpenDataset("/dir/values"); err != nil {
		t.Errorf("through a linked group: %v", err)
	}
	if _, err := f.OpenDataset("relative"); err != nil {
		t.Errorf("relative target: %v", err)
	}
	if _, err := f.OpenDataset("dangling"); !errors.Is(err, ErrNotFound) {
		t.Errorf("dangling: got %v", err)
	}
	if _, err := f.OpenDataset("loop1"); !errors.Is(err, ErrLinkDepth) {
		t.Errorf("loop: got %v", err)
	}
}

func TestExternalLinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.h5")
	tf, err := Create(target)
	if err != nil {
		t.Fatal(err)
	}
	g, err := tf.Root().CreateGroup("inner")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.CreateDataset("v", []float64{9, 8}); err != nil {
		t.Fatal(err)
	}
	if err := tf.Close(); err != nil {
		t.Fatal(err)
	}

	mainPath := filepath.Join(dir, "main.h5")
	mf, err := Create(mainPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := mf.Root().CreateExternalLink("ext", "target.h5", "/inner"); err != nil {
		t.Fatal(err)
	}
	if err := mf.Close(); err != nil {
		t.Fatal(err)
	}

	f := reopen(t, mainPath)
	ds, err := f.OpenDataset("/ext/v")
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := ds.ReadFloat64(); !reflect.DeepEqual(got, []float64{9, 8}) {
		t.Errorf("external = %v", got)
	}
}

func TestCreateGroupErrors(t *testing.T) {
	create(t, func(root *Group) error {
		if _, err := root.CreateGroup("g"); err != nil {
			return err
		}
		if _, err := root.CreateGroup("g"); !errors.Is(err, ErrExists) {
			t.Errorf("duplicate: got %v", err)
		}
		for _, name := range []string{"", ".", "..", "x/y"} {
			if _, err := root.CreateGroup(name); err == nil {
				t.Errorf("name %q accepted", name)
			}
		}
		if err := root.CreateSoftLink("g", "/x"); !errors.Is(err, ErrExists) {
			t.Errorf("soft link over group: got %v", err)
		}
		return nil
	})
}

func TestConcurrentReads(t *testing.T) {
	dir := t.TempDir()
	tf, err := Create(filepath.Join(dir, "target.h5"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tf.Root().CreateDataset("v", []int32{5, 6, 7}, WithChunks(2), WithDeflate(1)); err != nil {
		t.Fatal(err)
	}
	if err := tf.Close(); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, "main.h5")
	mf, err := Create(p)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mf.Root().CreateDataset("local", []float64{1, 2, 3, 4}, WithShape(2, 2)); err != nil {
		t.Fatal(err)
	}
	if err := mf.Root().CreateExternalLink("ext", "target.h5", "/v"); err != nil {
		t.Fatal(err)
	}
	if err := mf.Close(); err != nil {
		t.Fatal(err)
	}

	f := reopen(t, p)
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				ext, err := f.OpenDataset("ext")
				if err != nil {
					errs <- err
					return
				}
				if got, err := ext.ReadInt64(); err != nil || !reflect.DeepEqual(got, []int64{5, 6, 7}) {
					errs <- fmt.Errorf("ext = %v, %v", got, err)
					return
				}
				local, err := f.OpenDataset("local")
				if err != nil {
					errs <- err
					return
				}
				var row []float64
				if err := local.ReadRows(1, 1, &row); err != nil || !reflect.DeepEqual(row, []float64{3, 4}) {
					errs <- fmt.Errorf("row = %v, %v", row, err)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

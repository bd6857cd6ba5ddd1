package hdf5

import (
	"path/filepath"
	"testing"
)

// create writes a new file through fn and returns its path.
func create(t *testing.T, fn func(root *Group) error) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "test.h5")
	f, err := Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := fn(f.Root()); err != nil {
		f.Close()
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return p
}

// reopen opens p for reading until the test ends.
func reopen(t *testing.T, p string) *File {
	t.Helper()
	f, err := Open(p)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

package alloc

import (
	"sync"
	"testing"
)

func TestAllocAppends(t *testing.T) {
	a := New(96)
	steps := []struct {
		size, want uint64
	}{
		{16, 96},
		{0, 112},
		{100, 112},
		{8, 212},
	}
	for _, s := range steps {
		if got := a.Alloc(s.size); got != s.want {
			t.Fatalf("Alloc(%d) = %d, want %d", s.size, got, s.want)
		}
	}
	if got := a.EOFAddr(); got != 220 {
		t.Errorf("EOFAddr() = %d, want 220", got)
	}
	want := Stats{Allocations: 3, Bytes: 124, Largest: 100}
	if got := a.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestAllocConcurrent(t *testing.T) {
	a := New(0)
	var wg sync.WaitGroup
	seen := make([]uint64, 64)
	for i := range seen {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen[i] = a.Alloc(8)
		}()
	}
	wg.Wait()

	used := make(map[uint64]bool, len(seen))
	for _, addr := range seen {
		if addr%8 != 0 || used[addr] {
			t.Fatalf("address %d reused or misaligned", addr)
		}
		used[addr] = true
	}
	if got := a.EOFAddr(); got != 512 {
		t.Errorf("EOFAddr() = %d, want 512", got)
	}
}

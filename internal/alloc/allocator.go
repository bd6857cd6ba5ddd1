// Package alloc hands out file space to the container writer. Space is
// appended at the end of the file and never reused.
package alloc

import "sync"

// Allocator tracks the end of an HDF5 file being written.
type Allocator struct {
	mu    sync.Mutex
	eof   uint64
	stats Stats
}

// Stats summarises what an Allocator handed out.
type Stats struct {
	Allocations uint64
	Bytes       uint64
	Largest     uint64
}

// New returns an allocator whose first block starts at base.
func New(base uint64) *Allocator {
	return &Allocator{eof: base}
}

// Alloc reserves size bytes and returns their address. A zero size returns
// the current end of file without reserving anything.
func (a *Allocator) Alloc(size uint64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	addr := a.eof
	if size == 0 {
		return addr
	}
	a.eof += size
	a.stats.Allocations++
	a.stats.Bytes += size
	a.stats.Largest = max(a.stats.Largest, size)
	return addr
}

// EOFAddr returns the address the next allocation will start at.
func (a *Allocator) EOFAddr() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eof
}

// Stats returns a snapshot of the allocation counters.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

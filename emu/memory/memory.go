package memory

/*
 * OSEmu - Demand paged memory manager
 *
 * Copyright 2025, The OSEmu Authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/csopesy/osemu/emu/backstore"
)

var (
	ErrInvalidSize      = errors.New("memory size must be a power of two between 8 and 65536")
	ErrAlreadyAllocated = errors.New("process already has memory allocated")
	ErrNoMemory         = errors.New("not enough memory available")
)

// One physical memory slot. Holds at most one page at a time.
type frame struct {
	occupied bool
	process  string
	page     int
	data     []uint16
}

// One fixed size slice of a process virtual address space. Before its
// first page out the data buffer of a non resident page holds its
// contents (zeros); after a page out the buffer is zeroed and the
// backing store record is authoritative. While resident the frame copy
// is authoritative and writes are mirrored into both.
type page struct {
	number   int
	process  string
	resident bool
	frame    int
	swapped  bool // a backing store record exists for this page
	data     []uint16
}

// FIFO victim queue entry.
type pageRef struct {
	process string
	page    int
}

// Per process memory usage reported by Snapshot.
type ProcessUsage struct {
	Name  string
	Bytes int
}

// Point in time view of the manager state and counters.
type Snapshot struct {
	TotalMemory int
	UsedMemory  int
	FreeMemory  int
	Processes   []ProcessUsage

	PagesIn     int
	PagesOut    int
	PageFaults  int
	IdleTicks   int
	ActiveTicks int
	TotalTicks  int
}

// Manager owns the frame table, the per process page tables, the FIFO
// victim queue and the backing store. All public operations serialize
// on a single mutex, including the page fault path.
type Manager struct {
	mu sync.Mutex

	totalMemory int
	pageSize    int
	frames      []frame
	tables      map[string][]page
	fifo        []pageRef
	store       *backstore.Store

	pagesIn     int
	pagesOut    int
	pageFaults  int
	idleTicks   int
	activeTicks int
	totalTicks  int
}

// NewManager builds the frame table sized totalMemory/frameSize and
// truncates the backing store file. Page size equals frame size.
func NewManager(totalMemory, frameSize int, storePath string) (*Manager, error) {
	if frameSize <= 0 || totalMemory < frameSize {
		return nil, errors.New("total memory must be at least one frame")
	}
	store, err := backstore.New(storePath)
	if err != nil {
		return nil, err
	}

	numFrames := totalMemory / frameSize
	mgr := &Manager{
		totalMemory: totalMemory,
		pageSize:    frameSize,
		frames:      make([]frame, numFrames),
		tables:      make(map[string][]page),
		store:       store,
	}
	for i := range mgr.frames {
		mgr.frames[i].page = -1
		mgr.frames[i].data = make([]uint16, frameSize/2)
	}
	return mgr, nil
}

// PageSize reports the page/frame size fixed at construction.
func (m *Manager) PageSize() int {
	return m.pageSize
}

func validSize(size int) bool {
	if size < 8 || size > 65536 {
		return false
	}
	return size&(size-1) == 0
}

// Allocate creates the page table for a process. All pages start out
// zero filled and not resident; frames are only taken on first touch.
func (m *Manager) Allocate(name string, size int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !validSize(size) {
		return ErrInvalidSize
	}
	if _, ok := m.tables[name]; ok {
		return ErrAlreadyAllocated
	}
	if m.usedLocked()+size > m.totalMemory {
		return ErrNoMemory
	}

	numPages := (size + m.pageSize - 1) / m.pageSize
	pages := make([]page, numPages)
	for i := range pages {
		pages[i] = page{
			number:  i,
			process: name,
			frame:   -1,
			data:    make([]uint16, m.pageSize/2),
		}
	}
	m.tables[name] = pages
	return nil
}

// Deallocate pages out every resident page of the process, frees its
// frames, drops its FIFO entries preserving the order of the rest and
// removes the page table.
func (m *Manager) Deallocate(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pages, ok := m.tables[name]
	if !ok {
		return
	}
	for i := range pages {
		if pages[i].resident {
			m.pageOutLocked(name, i)
		}
	}

	kept := m.fifo[:0]
	for _, ref := range m.fifo {
		if ref.process != name {
			kept = append(kept, ref)
		}
	}
	m.fifo = kept

	delete(m.tables, name)
}

// Read returns the 16 bit word at the virtual address. The second
// result is true when the address is outside the process allocation;
// the value is then zero and no fault is serviced.
func (m *Manager) Read(name string, addr int) (uint16, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.validAddrLocked(name, addr) {
		return 0, true
	}

	pageNum := addr / m.pageSize
	offset := (addr % m.pageSize) / 2

	pg := &m.tables[name][pageNum]
	if !pg.resident {
		if !m.pageFaultLocked(name, pageNum) {
			return 0, false
		}
	}
	return m.frames[pg.frame].data[offset], false
}

// Write stores a 16 bit word at the virtual address, mirroring it into
// the page buffer so a later eviction keeps the latest value. Returns
// true when the address is invalid; the write is then dropped.
func (m *Manager) Write(name string, addr int, value uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.validAddrLocked(name, addr) {
		return true
	}

	pageNum := addr / m.pageSize
	offset := (addr % m.pageSize) / 2

	pg := &m.tables[name][pageNum]
	if !pg.resident {
		if !m.pageFaultLocked(name, pageNum) {
			return false
		}
	}
	m.frames[pg.frame].data[offset] = value
	pg.data[offset] = value
	return false
}

// Tick accounts one dispatcher pass against the CPU tick counters.
func (m *Manager) Tick(active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalTicks++
	if active {
		m.activeTicks++
	} else {
		m.idleTicks++
	}
}

// Snapshot returns totals, per process usage and the counters.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.usedLocked()
	snap := Snapshot{
		TotalMemory: m.totalMemory,
		UsedMemory:  used,
		FreeMemory:  m.totalMemory - used,
		PagesIn:     m.pagesIn,
		PagesOut:    m.pagesOut,
		PageFaults:  m.pageFaults,
		IdleTicks:   m.idleTicks,
		ActiveTicks: m.activeTicks,
		TotalTicks:  m.totalTicks,
	}

	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		snap.Processes = append(snap.Processes, ProcessUsage{
			Name:  name,
			Bytes: len(m.tables[name]) * m.pageSize,
		})
	}
	return snap
}

func (m *Manager) usedLocked() int {
	used := 0
	for _, pages := range m.tables {
		used += len(pages) * m.pageSize
	}
	return used
}

func (m *Manager) validAddrLocked(name string, addr int) bool {
	pages, ok := m.tables[name]
	if !ok {
		return false
	}
	return addr >= 0 && addr < len(pages)*m.pageSize
}

// Service a fault for one page. Returns false when no frame is free
// and no victim can be evicted; the caller then drops the access.
func (m *Manager) pageFaultLocked(name string, pageNum int) bool {
	m.pageFaults++

	pg := &m.tables[name][pageNum]
	if pg.resident {
		return true
	}

	frameNum := -1
	for i := range m.frames {
		if !m.frames[i].occupied {
			frameNum = i
			break
		}
	}

	if frameNum == -1 {
		if len(m.fifo) == 0 {
			return false
		}
		victim := m.fifo[0]
		m.fifo = m.fifo[1:]

		for i := range m.frames {
			if m.frames[i].occupied && m.frames[i].process == victim.process &&
				m.frames[i].page == victim.page {
				frameNum = i
				break
			}
		}
		if frameNum == -1 {
			return false
		}
		m.pageOutLocked(victim.process, victim.page)
	}

	m.pageInLocked(name, pageNum, frameNum)
	return true
}

// Write the frame contents of a resident page to the backing store,
// free its frame and zero the in memory buffer. The store copy is now
// authoritative.
func (m *Manager) pageOutLocked(name string, pageNum int) {
	pg := &m.tables[name][pageNum]
	if !pg.resident {
		return
	}

	fr := &m.frames[pg.frame]
	if err := m.store.WritePage(name, pageNum, fr.data); err != nil {
		slog.Error("backing store write failed: " + err.Error())
	}

	fr.occupied = false
	fr.process = ""
	fr.page = -1
	fr.data = make([]uint16, m.pageSize/2)

	pg.resident = false
	pg.frame = -1
	pg.swapped = true
	pg.data = make([]uint16, m.pageSize/2)

	m.pagesOut++
}

// Load a page into the given frame. Only a page that was swapped out
// during the lifetime of its table reads the backing store; anything
// else would resurrect stale records left by a deallocated namesake.
func (m *Manager) pageInLocked(name string, pageNum, frameNum int) {
	pg := &m.tables[name][pageNum]

	if pg.swapped {
		if words, ok := m.store.ReadPage(name, pageNum, m.pageSize/2); ok {
			pg.data = words
		}
	}

	fr := &m.frames[frameNum]
	fr.occupied = true
	fr.process = name
	fr.page = pageNum
	copy(fr.data, pg.data)

	pg.resident = true
	pg.frame = frameNum

	m.fifo = append(m.fifo, pageRef{process: name, page: pageNum})
	m.pagesIn++
}

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
	"path/filepath"
	"testing"
)

func newTestManager(t *testing.T, total, frame int) *Manager {
	t.Helper()
	mgr, err := NewManager(total, frame, filepath.Join(t.TempDir(), "backing-store.txt"))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return mgr
}

// Resident pages, occupied frames and FIFO entries stay equal.
func checkResidency(t *testing.T, m *Manager) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	resident := 0
	for _, pages := range m.tables {
		for _, pg := range pages {
			if pg.resident {
				resident++
			}
		}
	}
	occupied := 0
	for _, fr := range m.frames {
		if fr.occupied {
			occupied++
		}
	}
	if resident != occupied || occupied != len(m.fifo) {
		t.Errorf("residency invariant broken: resident %d occupied %d fifo %d",
			resident, occupied, len(m.fifo))
	}
}

func TestAllocateSize(t *testing.T) {
	tests := []struct {
		size int
		err  error
	}{
		{size: 4, err: ErrInvalidSize},
		{size: 7, err: ErrInvalidSize},
		{size: 8},
		{size: 12, err: ErrInvalidSize},
		{size: 64},
		{size: 100, err: ErrInvalidSize},
		{size: 65536, err: ErrNoMemory}, // larger than total
		{size: 131072, err: ErrInvalidSize},
		{size: -8, err: ErrInvalidSize},
		{size: 0, err: ErrInvalidSize},
	}

	for _, test := range tests {
		m := newTestManager(t, 1024, 64)
		err := m.Allocate("p1", test.size)
		if !errors.Is(err, test.err) {
			t.Errorf("Allocate(%d) got: %v expected: %v", test.size, err, test.err)
		}
	}
}

func TestAllocateTwice(t *testing.T) {
	m := newTestManager(t, 1024, 64)
	if err := m.Allocate("p1", 64); err != nil {
		t.Fatalf("first Allocate failed: %v", err)
	}
	if err := m.Allocate("p1", 64); !errors.Is(err, ErrAlreadyAllocated) {
		t.Errorf("second Allocate got: %v expected: %v", err, ErrAlreadyAllocated)
	}
}

func TestAllocateOverCommit(t *testing.T) {
	m := newTestManager(t, 256, 64)
	if err := m.Allocate("p1", 128); err != nil {
		t.Fatalf("Allocate p1 failed: %v", err)
	}
	if err := m.Allocate("p2", 128); err != nil {
		t.Fatalf("Allocate p2 failed: %v", err)
	}
	if err := m.Allocate("p3", 8); !errors.Is(err, ErrNoMemory) {
		t.Errorf("Allocate p3 got: %v expected: %v", err, ErrNoMemory)
	}
}

// Reads of never written addresses return zero.
func TestZeroInitialized(t *testing.T) {
	m := newTestManager(t, 256, 32)
	if err := m.Allocate("p1", 64); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	for addr := 0; addr < 64; addr += 2 {
		v, fault := m.Read("p1", addr)
		if fault {
			t.Fatalf("Read(%d) reported invalid address", addr)
		}
		if v != 0 {
			t.Errorf("Read(%d) not zero got: %d", addr, v)
		}
	}
	checkResidency(t, m)
}

// write then read returns the value, for any valid address.
func TestReadWriteRoundTrip(t *testing.T) {
	m := newTestManager(t, 256, 32)
	if err := m.Allocate("p1", 128); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	for addr := 0; addr < 128; addr += 2 {
		m.Write("p1", addr, uint16(addr)*3)
	}
	for addr := 0; addr < 128; addr += 2 {
		v, fault := m.Read("p1", addr)
		if fault {
			t.Fatalf("Read(%d) reported invalid address", addr)
		}
		if v != uint16(addr)*3 {
			t.Errorf("Read(%d) got: %d expected: %d", addr, v, uint16(addr)*3)
		}
	}
	checkResidency(t, m)
}

func TestInvalidAddress(t *testing.T) {
	m := newTestManager(t, 256, 32)
	if err := m.Allocate("p1", 32); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	for _, addr := range []int{-2, 32, 4096, 0x1000} {
		if v, fault := m.Read("p1", addr); !fault || v != 0 {
			t.Errorf("Read(%d) got: (%d, %t) expected: (0, true)", addr, v, fault)
		}
		if fault := m.Write("p1", addr, 1); !fault {
			t.Errorf("Write(%d) not reported invalid", addr)
		}
	}

	// Unknown process is always invalid.
	if _, fault := m.Read("nobody", 0); !fault {
		t.Errorf("Read for unknown process not reported invalid")
	}
}

// Test total 64, frame 32: writes to two processes force FIFO
// eviction; the evicted data survives the round trip through the
// backing store, and the queue shows p2 ahead of the re-paged p1.
func TestPageFaultEviction(t *testing.T) {
	m := newTestManager(t, 64, 32)
	if err := m.Allocate("p1", 64); err != nil {
		t.Fatalf("Allocate p1 failed: %v", err)
	}
	if err := m.Allocate("p2", 64); err != nil {
		t.Fatalf("Allocate p2 failed: %v", err)
	}

	for addr := 0; addr < 64; addr += 2 {
		m.Write("p1", addr, 0xAAAA)
	}
	for addr := 0; addr < 64; addr += 2 {
		m.Write("p2", addr, 0xBBBB)
	}

	// Both frames now hold p2; p1 lives in the backing store.
	v, fault := m.Read("p1", 0)
	if fault {
		t.Fatalf("Read p1[0] reported invalid address")
	}
	if v != 0xAAAA {
		t.Errorf("Read p1[0] got: %#x expected: %#x", v, 0xAAAA)
	}

	m.mu.Lock()
	if len(m.fifo) != 2 {
		t.Fatalf("fifo length got: %d expected: 2", len(m.fifo))
	}
	if m.fifo[0].process != "p2" {
		t.Errorf("fifo head got: %s expected: p2", m.fifo[0].process)
	}
	if m.fifo[1].process != "p1" || m.fifo[1].page != 0 {
		t.Errorf("fifo tail got: %s:%d expected: p1:0", m.fifo[1].process, m.fifo[1].page)
	}
	m.mu.Unlock()

	checkResidency(t, m)

	snap := m.Snapshot()
	if snap.PageFaults == 0 || snap.PagesOut == 0 || snap.PagesIn == 0 {
		t.Errorf("counters not advanced: faults %d in %d out %d",
			snap.PageFaults, snap.PagesIn, snap.PagesOut)
	}
}

// Every word written before heavy cross process paging reads back
// unchanged afterwards.
func TestEvictionPreservesAllWords(t *testing.T) {
	m := newTestManager(t, 64, 32)
	for _, name := range []string{"p1", "p2"} {
		if err := m.Allocate(name, 64); err != nil {
			t.Fatalf("Allocate %s failed: %v", name, err)
		}
	}

	for addr := 0; addr < 64; addr += 2 {
		m.Write("p1", addr, uint16(addr+1))
		m.Write("p2", addr, uint16(addr+100))
	}
	for addr := 0; addr < 64; addr += 2 {
		if v, _ := m.Read("p1", addr); v != uint16(addr+1) {
			t.Errorf("p1[%d] got: %d expected: %d", addr, v, addr+1)
		}
		if v, _ := m.Read("p2", addr); v != uint16(addr+100) {
			t.Errorf("p2[%d] got: %d expected: %d", addr, v, addr+100)
		}
	}
	checkResidency(t, m)
}

// Deallocation drops FIFO entries for the process but keeps the
// relative order of the remaining entries.
func TestDeallocate(t *testing.T) {
	m := newTestManager(t, 256, 32)
	for _, name := range []string{"p1", "p2", "p3"} {
		if err := m.Allocate(name, 64); err != nil {
			t.Fatalf("Allocate %s failed: %v", name, err)
		}
	}

	// Page in: p1:0, p2:0, p1:1, p3:0.
	m.Write("p1", 0, 1)
	m.Write("p2", 0, 2)
	m.Write("p1", 32, 3)
	m.Write("p3", 0, 4)

	m.Deallocate("p1")
	checkResidency(t, m)

	m.mu.Lock()
	if len(m.fifo) != 2 {
		t.Fatalf("fifo length got: %d expected: 2", len(m.fifo))
	}
	if m.fifo[0].process != "p2" || m.fifo[1].process != "p3" {
		t.Errorf("fifo order got: [%s %s] expected: [p2 p3]",
			m.fifo[0].process, m.fifo[1].process)
	}
	m.mu.Unlock()

	snap := m.Snapshot()
	if snap.UsedMemory != 128 {
		t.Errorf("used memory got: %d expected: 128", snap.UsedMemory)
	}
	if _, fault := m.Read("p1", 0); !fault {
		t.Errorf("deallocated process still readable")
	}
}

// allocate, deallocate, allocate again: the new incarnation sees
// zeros everywhere even though the old one flushed data to the
// backing store.
func TestReallocateSeesZeros(t *testing.T) {
	m := newTestManager(t, 64, 32)
	if err := m.Allocate("p1", 64); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	for addr := 0; addr < 64; addr += 2 {
		m.Write("p1", addr, 0xDEAD)
	}
	m.Deallocate("p1")

	if err := m.Allocate("p1", 64); err != nil {
		t.Fatalf("second Allocate failed: %v", err)
	}
	for addr := 0; addr < 64; addr += 2 {
		if v, _ := m.Read("p1", addr); v != 0 {
			t.Errorf("reallocated p1[%d] not zero got: %#x", addr, v)
		}
	}
}

func TestTick(t *testing.T) {
	m := newTestManager(t, 256, 32)
	for i := 0; i < 10; i++ {
		m.Tick(i%2 == 0)
	}

	snap := m.Snapshot()
	if snap.TotalTicks != 10 {
		t.Errorf("total ticks got: %d expected: 10", snap.TotalTicks)
	}
	if snap.ActiveTicks != 5 {
		t.Errorf("active ticks got: %d expected: 5", snap.ActiveTicks)
	}
	if snap.IdleTicks != 5 {
		t.Errorf("idle ticks got: %d expected: 5", snap.IdleTicks)
	}
}

func TestSnapshot(t *testing.T) {
	m := newTestManager(t, 256, 32)
	if err := m.Allocate("beta", 64); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := m.Allocate("alpha", 32); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	snap := m.Snapshot()
	if snap.TotalMemory != 256 || snap.UsedMemory != 96 || snap.FreeMemory != 160 {
		t.Errorf("snapshot totals got: %d/%d/%d expected: 256/96/160",
			snap.TotalMemory, snap.UsedMemory, snap.FreeMemory)
	}
	if len(snap.Processes) != 2 {
		t.Fatalf("snapshot processes got: %d expected: 2", len(snap.Processes))
	}
	if snap.Processes[0].Name != "alpha" || snap.Processes[0].Bytes != 32 {
		t.Errorf("first process got: %s/%d expected: alpha/32",
			snap.Processes[0].Name, snap.Processes[0].Bytes)
	}
	if snap.Processes[1].Name != "beta" || snap.Processes[1].Bytes != 64 {
		t.Errorf("second process got: %s/%d expected: beta/64",
			snap.Processes[1].Name, snap.Processes[1].Bytes)
	}
}

package scheduler

/*
 * OSEmu - Multi core scheduler, FCFS and Round Robin policies
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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/csopesy/osemu/emu/memory"
	"github.com/csopesy/osemu/emu/process"
)

func newTestMemory(t *testing.T, total, frame int) *memory.Manager {
	t.Helper()
	mem, err := memory.NewManager(total, frame, filepath.Join(t.TempDir(), "backing-store.txt"))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return mem
}

func newPrintProcess(t *testing.T, mem *memory.Manager, id int, name string, burst int) *process.Process {
	t.Helper()
	p := process.New(id, name, 1, mem)
	lines := make([]string, burst)
	for i := range lines {
		lines[i] = `PRINT "x"`
	}
	if err := p.SetProgram(lines); err != nil {
		t.Fatalf("SetProgram failed: %v", err)
	}
	if err := mem.Allocate(name, 64); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	return p
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

// Scenario: one core, three processes of burst three admitted as
// A, B, C. FCFS completes them in admission order and exports one log
// file each.
func TestFCFSCompletionOrder(t *testing.T) {
	chdirTemp(t)
	mem := newTestMemory(t, 1024, 64)
	s := New(FCFS, 1, 1, 0, mem)

	names := []string{"A", "B", "C"}
	for i, name := range names {
		s.AddProcess(newPrintProcess(t, mem, i+1, name, 3))
	}

	s.Start()
	waitFor(t, "all processes to finish", func() bool {
		return len(s.FinishedProcesses()) == 3 && s.AllProcessesFinished()
	})
	s.Stop()

	finished := s.FinishedProcesses()
	for i, name := range names {
		if finished[i].Name() != name {
			t.Errorf("finished[%d] got: %s expected: %s", i, finished[i].Name(), name)
		}
		if finished[i].Status() != process.StatusFinished {
			t.Errorf("%s status got: %s expected: %s", name, finished[i].Status(), process.StatusFinished)
		}
	}

	for _, name := range names {
		data, err := os.ReadFile(name + ".txt")
		if err != nil {
			t.Fatalf("log file for %s missing: %v", name, err)
		}
		if !strings.Contains(string(data), "Lines of code: 3") ||
			!strings.Contains(string(data), "Finished!") {
			t.Errorf("log file for %s not complete:\n%s", name, string(data))
		}
	}
}

// Scenario: quantum two bounds every dispatch; a burst five process
// takes three dispatches of 2, 2 and 1 instructions.
func TestRRQuantum(t *testing.T) {
	mem := newTestMemory(t, 1024, 64)
	s := New(RoundRobin, 1, 0, 2, mem)
	core := s.cores[0]
	core.running.Store(true)

	p := newPrintProcess(t, mem, 1, "p1", 5)

	done := s.runProcess(core, p)
	if done || p.CurrentBurst() != 2 {
		t.Errorf("dispatch 1 got: burst %d done %t expected: burst 2, not done",
			p.CurrentBurst(), done)
	}

	done = s.runProcess(core, p)
	if done || p.CurrentBurst() != 4 {
		t.Errorf("dispatch 2 got: burst %d done %t expected: burst 4, not done",
			p.CurrentBurst(), done)
	}

	done = s.runProcess(core, p)
	if !done || p.CurrentBurst() != 5 {
		t.Errorf("dispatch 3 got: burst %d done %t expected: burst 5, done",
			p.CurrentBurst(), done)
	}
}

// A process that outlives its quantum re-enters the ready queue at
// the tail and still completes.
func TestRRRequeue(t *testing.T) {
	chdirTemp(t)
	mem := newTestMemory(t, 1024, 64)
	s := New(RoundRobin, 1, 1, 2, mem)

	s.AddProcess(newPrintProcess(t, mem, 1, "p1", 5))
	s.AddProcess(newPrintProcess(t, mem, 2, "p2", 2))

	s.Start()
	waitFor(t, "all processes to finish", func() bool {
		return len(s.FinishedProcesses()) == 2 && s.AllProcessesFinished()
	})
	s.Stop()

	// p2 needs one dispatch, p1 three; interleaving finishes p2 first.
	finished := s.FinishedProcesses()
	if finished[0].Name() != "p2" || finished[1].Name() != "p1" {
		t.Errorf("completion order got: [%s %s] expected: [p2 p1]",
			finished[0].Name(), finished[1].Name())
	}
	for _, p := range finished {
		if p.CurrentBurst() != p.TotalBurst() {
			t.Errorf("%s burst got: %d expected: %d", p.Name(), p.CurrentBurst(), p.TotalBurst())
		}
	}

	// The RR dispatcher accounted CPU ticks.
	if snap := mem.Snapshot(); snap.TotalTicks == 0 {
		t.Errorf("no CPU ticks accounted")
	}
}

// A violated process is retired to the finished list and never runs
// again.
func TestViolationRetires(t *testing.T) {
	chdirTemp(t)
	mem := newTestMemory(t, 1024, 64)
	s := New(FCFS, 1, 1, 0, mem)

	p := process.New(1, "bad", 1, mem)
	if err := p.SetProgram([]string{"WRITE 0x1000 42", `PRINT "never"`}); err != nil {
		t.Fatalf("SetProgram failed: %v", err)
	}
	if err := mem.Allocate("bad", 16); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	s.AddProcess(p)
	s.Start()
	waitFor(t, "violated process to retire", func() bool {
		return len(s.FinishedProcesses()) == 1
	})
	s.Stop()

	if !p.Violated() {
		t.Fatalf("violation not raised")
	}
	if p.CurrentBurst() != 1 {
		t.Errorf("burst got: %d expected: 1 (PRINT must not run)", p.CurrentBurst())
	}
}

// Multi core FCFS drains everything and reports utilization in the
// status snapshot.
func TestMultiCoreDrain(t *testing.T) {
	chdirTemp(t)
	mem := newTestMemory(t, 4096, 64)
	s := New(FCFS, 4, 1, 0, mem)

	for i := 1; i <= 8; i++ {
		s.AddProcess(newPrintProcess(t, mem, i, "p"+string(rune('0'+i)), 4))
	}

	s.Start()
	waitFor(t, "all processes to finish", func() bool {
		return len(s.FinishedProcesses()) == 8 && s.AllProcessesFinished()
	})
	s.Stop()

	var sb strings.Builder
	s.PrintStatus(&sb)
	status := sb.String()
	if !strings.Contains(status, "CPU utilization: 0%") {
		t.Errorf("idle utilization not reported:\n%s", status)
	}
	if !strings.Contains(status, "Finished processes:") {
		t.Errorf("finished section missing:\n%s", status)
	}
	if strings.Count(status, "Finished  ") != 8 {
		t.Errorf("finished lines got: %d expected: 8", strings.Count(status, "Finished  "))
	}
}

// Stop while a long process is in flight abandons the work but keeps
// the accumulated state.
func TestStopAbandonsInFlight(t *testing.T) {
	chdirTemp(t)
	mem := newTestMemory(t, 1024, 64)
	s := New(FCFS, 1, 5, 0, mem)

	// SetProgram takes at most 50 lines; a loop makes the run long.
	p := process.New(1, "slow", 1, mem)
	if err := p.SetProgram([]string{"FOR 1000", `PRINT "x"`, "ENDLOOP"}); err != nil {
		t.Fatalf("SetProgram failed: %v", err)
	}
	if err := mem.Allocate("slow", 64); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	s.AddProcess(p)
	s.Start()
	waitFor(t, "some progress", func() bool { return p.CurrentBurst() > 0 })
	s.Stop()

	if p.CurrentBurst() >= 1000 {
		t.Errorf("process ran to completion despite stop")
	}
	if len(p.Logs()) == 0 {
		t.Errorf("logs lost on abandon")
	}
	if !s.AllProcessesFinished() {
		t.Errorf("core still busy after stop")
	}
}

func TestAllProcessesFinishedEmpty(t *testing.T) {
	mem := newTestMemory(t, 1024, 64)
	s := New(FCFS, 2, 1, 0, mem)
	if !s.AllProcessesFinished() {
		t.Errorf("idle scheduler not reported finished")
	}

	s.AddProcess(newPrintProcess(t, mem, 1, "p1", 1))
	if s.AllProcessesFinished() {
		t.Errorf("queued work reported finished")
	}
}

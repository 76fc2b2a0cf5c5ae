package process

/*
 * OSEmu - Process (screen) state and lifecycle
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
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/csopesy/osemu/emu/memory"
)

// Lifecycle states.
const (
	StatusCreated  = "CREATED"
	StatusReady    = "READY"
	StatusRunning  = "RUNNING"
	StatusFinished = "FINISHED"
	StatusWaiting  = "WAITING"
)

const (
	maxVariables = 32 // symbol table fills the first 64 bytes
	maxLoopDepth = 3
)

const timestampFormat = "01/02/2006 03:04:05PM"

type Opcode int

const (
	OpPrint Opcode = iota
	OpDeclare
	OpAdd
	OpSubtract
	OpSleep
	OpFor
	OpEndLoop
	OpRead
	OpWrite
)

// One tagged instruction record.
type Instruction struct {
	Op   Opcode
	Args []string
}

// One append only log record.
type LogEntry struct {
	Time    time.Time
	Core    int
	Message string
}

// Line renders the entry the way the per process log file expects it.
func (e LogEntry) Line() string {
	return fmt.Sprintf("(%s)\tCore: %d\t%s", e.Time.Format(timestampFormat), e.Core, e.Message)
}

// Permanent memory access violation marker.
type Violation struct {
	Addr int
	When time.Time
}

type loopContext struct {
	iterations int
	current    int
	start      int
	depth      int
}

// Process holds one process identity, its instruction program, its
// variable table, loop stack, program counter, sleep countdown, log
// buffer and lifecycle status. The owning worker drives Step; status
// and logs may be read concurrently by the status printer, so shared
// fields sit behind a mutex.
type Process struct {
	mu sync.Mutex

	id         int
	name       string
	created    time.Time
	status     string
	totalBurst int
	burst      int
	memSize    int

	program []Instruction
	pc      int
	sleep   int

	vars     map[string]uint16
	varOrder []string
	loops    []loopContext

	logs      []LogEntry
	violation *Violation

	mem *memory.Manager
}

// New creates a process and generates a pseudorandom program whose
// full run dispatches totalBurst instructions (loops make the program
// itself shorter). The memory manager backs DECLARE, ADD,
// SUBTRACT, READ and WRITE instructions.
func New(id int, name string, totalBurst int, mem *memory.Manager) *Process {
	p := &Process{
		id:         id,
		name:       name,
		created:    time.Now(),
		status:     StatusCreated,
		totalBurst: totalBurst,
		vars:       make(map[string]uint16),
		mem:        mem,
	}
	p.generate()
	return p
}

func (p *Process) ID() int {
	return p.id
}

func (p *Process) Name() string {
	return p.name
}

func (p *Process) CreatedAt() time.Time {
	return p.created
}

func (p *Process) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Process) SetStatus(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

func (p *Process) CurrentBurst() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.burst
}

func (p *Process) TotalBurst() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalBurst
}

func (p *Process) MemorySize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.memSize
}

func (p *Process) SetMemorySize(size int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.memSize = size
}

// Finished reports whether the program counter passed the end of the
// program with no sleep pending.
func (p *Process) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pc >= len(p.program) && p.sleep == 0
}

// Violated reports whether a memory access violation is active. The
// flag is permanent for the process lifetime.
func (p *Process) Violated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.violation != nil
}

// GetViolation returns the violation record, if any.
func (p *Process) GetViolation() (Violation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.violation == nil {
		return Violation{}, false
	}
	return *p.violation, true
}

// ViolationReport renders the shutdown line shown by screen -r.
func (p *Process) ViolationReport() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.violation == nil {
		return ""
	}
	return fmt.Sprintf("Process %s shut down due to memory access violation error that occurred at %s. 0x%X invalid.",
		p.name, p.violation.When.Format(timestampFormat), p.violation.Addr)
}

// Logs returns a copy of the log buffer.
func (p *Process) Logs() []LogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	logs := make([]LogEntry, len(p.logs))
	copy(logs, p.logs)
	return logs
}

func (p *Process) logLocked(core int, message string) {
	p.logs = append(p.logs, LogEntry{Time: time.Now(), Core: core, Message: message})
}

// ExportLogs writes the per process log file <name>.txt.
func (p *Process) ExportLogs() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	file, err := os.Create(p.name + ".txt")
	if err != nil {
		return err
	}
	defer file.Close()

	fmt.Fprintf(file, "Process name: %s\n", p.name)
	fmt.Fprintf(file, "ID: %d\n", p.id)
	fmt.Fprintf(file, "Logs:\n")
	for _, entry := range p.logs {
		fmt.Fprintln(file, entry.Line())
	}
	fmt.Fprintf(file, "\nCurrent instruction line: %d\n", p.burst)
	fmt.Fprintf(file, "Lines of code: %d\n", p.totalBurst)
	if p.burst >= p.totalBurst {
		fmt.Fprintln(file, "Finished!")
	}
	return nil
}

// WriteLogs prints the same report to the given writer, used by the
// process-smi sub command of an attached screen.
func (p *Process) WriteLogs(out io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(out, "\nProcess name: %s\n", p.name)
	fmt.Fprintf(out, "ID: %d\n", p.id)
	fmt.Fprintln(out, "Logs:")
	if len(p.logs) == 0 {
		fmt.Fprintln(out, "  No logs available")
	}
	for _, entry := range p.logs {
		fmt.Fprintln(out, entry.Line())
	}
	fmt.Fprintf(out, "\nCurrent instruction line: %d\n", p.burst)
	fmt.Fprintf(out, "Lines of code: %d\n", p.totalBurst)
	if p.burst >= p.totalBurst {
		fmt.Fprintln(out, "Finished!")
	}
}

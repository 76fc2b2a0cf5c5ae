/*
   OSEmu - Kernel: ties configuration, memory, scheduler and spawner.

   Copyright 2025, The OSEmu Authors

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
   FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER
   DEALINGS IN THE SOFTWARE.

*/

package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"

	"github.com/csopesy/osemu/config/configparser"
	"github.com/csopesy/osemu/emu/memory"
	"github.com/csopesy/osemu/emu/process"
	"github.com/csopesy/osemu/emu/scheduler"
	"github.com/csopesy/osemu/emu/spawner"
)

const backingStoreFile = "csopesy-backing-store.txt"

// Kernel is the single value constructed at boot. It owns the memory
// manager, the scheduler, the spawner and the ordered process table,
// and is threaded explicitly through the shell.
type Kernel struct {
	mu sync.Mutex

	cfg    *configparser.Config
	mem    *memory.Manager
	sched  *scheduler.Scheduler
	spawn  *spawner.Spawner
	procs  []*process.Process
	byName map[string]*process.Process
	nextID int

	schedRunning bool
}

// NewKernel boots the core subsystems from a validated configuration.
func NewKernel(cfg *configparser.Config) (*Kernel, error) {
	mem, err := memory.NewManager(cfg.MaxOverallMem, cfg.MemPerFrame, backingStoreFile)
	if err != nil {
		return nil, err
	}

	policy := scheduler.FCFS
	if cfg.Scheduler == "RR" {
		policy = scheduler.RoundRobin
	}

	k := &Kernel{
		cfg:    cfg,
		mem:    mem,
		sched:  scheduler.New(policy, cfg.NumCPU, cfg.DelayPerExec, cfg.QuantumCycles, mem),
		byName: make(map[string]*process.Process),
		nextID: 1,
	}
	k.spawn = spawner.New(cfg.BatchProcessFreq, cfg.DelayPerExec, cfg.EvaluationMode, k.spawnBatchProcess)
	return k, nil
}

func (k *Kernel) Config() *configparser.Config {
	return k.cfg
}

func (k *Kernel) Memory() *memory.Manager {
	return k.mem
}

func (k *Kernel) Scheduler() *scheduler.Scheduler {
	return k.sched
}

func (k *Kernel) Spawner() *spawner.Spawner {
	return k.spawn
}

// StartScheduler starts the worker cores and the batch spawner.
func (k *Kernel) StartScheduler() {
	k.mu.Lock()
	if !k.schedRunning {
		k.sched.Start()
		k.schedRunning = true
	}
	k.mu.Unlock()
	k.spawn.Start()
}

// SchedulerRunning reports whether the cores were started.
func (k *Kernel) SchedulerRunning() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.schedRunning
}

// StopSpawner halts batch creation; the scheduler keeps draining.
func (k *Kernel) StopSpawner() {
	k.spawn.Stop()
}

// Shutdown stops the spawner and the scheduler. Finished process logs
// are flushed by the scheduler on stop.
func (k *Kernel) Shutdown() {
	k.spawn.Stop()
	k.mu.Lock()
	running := k.schedRunning
	k.schedRunning = false
	k.mu.Unlock()
	if running {
		k.sched.Stop()
	}
}

// FindProcess looks a process up by name.
func (k *Kernel) FindProcess(name string) (*process.Process, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.byName[name]
	return p, ok
}

// Processes returns the process table in creation order.
func (k *Kernel) Processes() []*process.Process {
	k.mu.Lock()
	defer k.mu.Unlock()
	procs := make([]*process.Process, len(k.procs))
	copy(procs, k.procs)
	return procs
}

// CreateProcess builds a process with a generated program, allocates
// its memory and admits it. Used by screen -s; allocation failure
// refuses the process outright.
func (k *Kernel) CreateProcess(name string, memSize int) (*process.Process, error) {
	k.mu.Lock()
	if _, ok := k.byName[name]; ok {
		k.mu.Unlock()
		return nil, errors.New("screen '" + name + "' already exists")
	}
	id := k.nextID
	k.nextID++
	burst := k.randomBurst()
	k.mu.Unlock()

	p := process.New(id, name, burst, k.mem)
	if err := k.mem.Allocate(name, memSize); err != nil {
		return nil, fmt.Errorf("allocate %d bytes for '%s': %w", memSize, name, err)
	}
	p.SetMemorySize(memSize)

	k.register(p)
	k.sched.AddProcess(p)
	return p, nil
}

// CreateCustomProcess builds a process from an explicit instruction
// list, the screen -c path.
func (k *Kernel) CreateCustomProcess(name string, memSize int, instructions []string) (*process.Process, error) {
	k.mu.Lock()
	if _, ok := k.byName[name]; ok {
		k.mu.Unlock()
		return nil, errors.New("screen '" + name + "' already exists")
	}
	id := k.nextID
	k.nextID++
	k.mu.Unlock()

	p := process.New(id, name, len(instructions), k.mem)
	if err := p.SetProgram(instructions); err != nil {
		return nil, err
	}
	if err := k.mem.Allocate(name, memSize); err != nil {
		return nil, fmt.Errorf("allocate %d bytes for '%s': %w", memSize, name, err)
	}
	p.SetMemorySize(memSize)

	k.register(p)
	k.sched.AddProcess(p)
	return p, nil
}

// spawnBatchProcess runs on the spawner goroutine: a monotonically
// named process with a random burst and a random memory request. When
// the allocation fails the process waits instead of being admitted.
func (k *Kernel) spawnBatchProcess() {
	k.mu.Lock()
	id := k.nextID
	k.nextID++
	burst := k.randomBurst()
	k.mu.Unlock()

	name := fmt.Sprintf("screen_%02d", id)
	p := process.New(id, name, burst, k.mem)

	memSize := k.randomMemSize()
	if err := k.mem.Allocate(name, memSize); err != nil {
		slog.Info(fmt.Sprintf("process %s waiting: %v", name, err))
		p.SetStatus(process.StatusWaiting)
		k.register(p)
		return
	}
	p.SetMemorySize(memSize)

	k.register(p)
	k.sched.AddProcess(p)
}

func (k *Kernel) register(p *process.Process) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.procs = append(k.procs, p)
	k.byName[p.Name()] = p
}

func (k *Kernel) randomBurst() int {
	return k.cfg.MinIns + rand.Intn(k.cfg.MaxIns-k.cfg.MinIns+1)
}

// Memory requests draw a random power of two inside the configured
// bounds, keeping the allocator's size rule satisfied.
func (k *Kernel) randomMemSize() int {
	lo := k.cfg.MinMemPerProc
	hi := k.cfg.MaxMemPerProc

	sizes := []int{}
	for size := 8; size <= 65536; size *= 2 {
		if size >= lo && size <= hi {
			sizes = append(sizes, size)
		}
	}
	if len(sizes) == 0 {
		return lo
	}
	return sizes[rand.Intn(len(sizes))]
}

// ReportUtil dumps the scheduler status to the given file.
func (k *Kernel) ReportUtil(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	k.sched.PrintStatus(file)
	return nil
}

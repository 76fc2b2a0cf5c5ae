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
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/csopesy/osemu/emu/memory"
	"github.com/csopesy/osemu/emu/process"
)

// Scheduling policy. The two policies share the core pool, ready
// queue and condition variable; the worker loop branches on quantum
// accounting.
type Policy int

const (
	FCFS Policy = iota
	RoundRobin
)

func (p Policy) String() string {
	if p == RoundRobin {
		return "RR"
	}
	return "FCFS"
}

// One worker slot. The busy flag and assignment are guarded by the
// scheduler mutex; the running flag is checked between instruction
// steps without the lock.
type cpuCore struct {
	id      int
	busy    bool
	current *process.Process
	running atomic.Bool
}

// Scheduler owns a bounded pool of worker cores, a FIFO ready queue,
// a finished list and one dispatcher. A single mutex serializes all
// queue mutations; one condition variable coordinates work arrival.
type Scheduler struct {
	policy  Policy
	quantum int
	delay   time.Duration
	mem     *memory.Manager

	mu       sync.Mutex
	cond     *sync.Cond
	cores    []*cpuCore
	ready    []*process.Process
	finished []*process.Process

	running    atomic.Bool
	started    bool
	dispatchWG sync.WaitGroup
	workerWG   sync.WaitGroup
}

// New builds a scheduler with the given core count. The quantum is
// only honored under RoundRobin. delayMS is slept between dispatch
// passes and between instruction steps.
func New(policy Policy, cores, delayMS, quantum int, mem *memory.Manager) *Scheduler {
	s := &Scheduler{
		policy:  policy,
		quantum: quantum,
		delay:   time.Duration(delayMS) * time.Millisecond,
		mem:     mem,
	}
	s.cond = sync.NewCond(&s.mu)
	for i := 0; i < cores; i++ {
		s.cores = append(s.cores, &cpuCore{id: i})
	}
	return s
}

func (s *Scheduler) Policy() Policy {
	return s.policy
}

// Start spawns one worker per core and the dispatcher.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.running.Store(true)

	for _, core := range s.cores {
		core.running.Store(true)
		s.workerWG.Add(1)
		go s.worker(core)
	}
	s.dispatchWG.Add(1)
	go s.dispatch()
}

// Stop shuts the scheduler down cooperatively: the dispatcher first,
// then the workers. In flight work is abandoned in its current state;
// finished process logs are flushed to disk.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.running.Store(false)
	s.cond.Broadcast()
	s.dispatchWG.Wait()

	for _, core := range s.cores {
		core.running.Store(false)
	}
	s.cond.Broadcast()
	s.workerWG.Wait()

	s.writeFinishedLogs()
}

// AddProcess admits a process to the tail of the ready queue.
func (s *Scheduler) AddProcess(p *process.Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.SetStatus(process.StatusReady)
	s.ready = append(s.ready, p)
	s.cond.Broadcast()
}

// AllProcessesFinished is true when no core is busy and the ready
// queue is empty.
func (s *Scheduler) AllProcessesFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, core := range s.cores {
		if core.busy {
			return false
		}
	}
	return len(s.ready) == 0
}

// FinishedProcesses returns a copy of the finished list in completion
// order.
func (s *Scheduler) FinishedProcesses() []*process.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	finished := make([]*process.Process, len(s.finished))
	copy(finished, s.finished)
	return finished
}

// Dispatcher loop. Scans cores in id order each pass; the lowest
// index idle core takes the head of the ready queue. Under RR, every
// pass also accounts one CPU tick against the memory manager.
func (s *Scheduler) dispatch() {
	defer s.dispatchWG.Done()
	for s.running.Load() {
		s.mu.Lock()
		assigned := false
		anyBusy := false
		for _, core := range s.cores {
			if core.busy {
				anyBusy = true
				continue
			}
			if len(s.ready) == 0 {
				continue
			}
			p := s.ready[0]
			s.ready = s.ready[1:]
			core.busy = true
			core.current = p
			p.SetStatus(process.StatusRunning)
			assigned = true
		}
		if assigned {
			s.cond.Broadcast()
		}
		s.mu.Unlock()

		if s.policy == RoundRobin {
			s.mem.Tick(assigned || anyBusy)
		}
		time.Sleep(s.delay)
	}
}

// Worker loop for one core. Waits for an assignment, runs the process
// per policy, then retires it to the finished list or the back of the
// ready queue.
func (s *Scheduler) worker(core *cpuCore) {
	defer s.workerWG.Done()
	for {
		s.mu.Lock()
		for core.running.Load() && core.current == nil {
			s.cond.Wait()
		}
		if !core.running.Load() {
			s.mu.Unlock()
			return
		}
		p := core.current
		s.mu.Unlock()

		done := s.runProcess(core, p)

		s.mu.Lock()
		switch {
		case done:
			p.SetStatus(process.StatusFinished)
			s.finished = append(s.finished, p)
		case core.running.Load() && s.running.Load():
			p.SetStatus(process.StatusReady)
			s.ready = append(s.ready, p)
		default:
			// Shutdown while busy: the process keeps its state
			// and logs but is not requeued.
		}
		core.busy = false
		core.current = nil
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// Run one assignment on a core. FCFS runs the process to completion;
// RR runs at most quantum dispatches, each preceded by a synthetic
// instruction fetch through the memory manager. Returns true when the
// process finished or took a memory access violation and must not run
// again.
func (s *Scheduler) runProcess(core *cpuCore, p *process.Process) bool {
	executed := 0
	for core.running.Load() {
		if p.Finished() || p.Violated() {
			break
		}
		if s.policy == RoundRobin {
			if executed >= s.quantum {
				break
			}
			s.mem.Read(p.Name(), 4*p.CurrentBurst())
		}
		p.Step(core.id)
		executed++
		time.Sleep(s.delay)
	}
	return p.Finished() || p.Violated()
}

// PrintStatus writes a human readable snapshot: utilization, per core
// running processes, the ready queue (RR only) and the finished list.
func (s *Scheduler) PrintStatus(out io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	busy := 0
	for _, core := range s.cores {
		if core.busy {
			busy++
		}
	}
	util := busy * 100 / len(s.cores)

	fmt.Fprintf(out, "\nCPU utilization: %d%%\n", util)
	fmt.Fprintf(out, "Cores used: %d\n", busy)
	fmt.Fprintf(out, "Cores available: %d\n", len(s.cores)-busy)
	fmt.Fprintln(out, "--------------------------------------")

	fmt.Fprintln(out, "\nRunning processes:")
	for _, core := range s.cores {
		if core.busy && core.current != nil {
			p := core.current
			fmt.Fprintf(out, "%s\t(%s)\tCore: %d\t%d / %d\n",
				p.Name(), p.CreatedAt().Format("01/02/2006 03:04:05PM"),
				core.id, p.CurrentBurst(), p.TotalBurst())
		}
	}

	if s.policy == RoundRobin {
		fmt.Fprintln(out, "\nReady queue:")
		for _, p := range s.ready {
			fmt.Fprintf(out, "%s\t%d / %d\n", p.Name(), p.CurrentBurst(), p.TotalBurst())
		}
	}

	fmt.Fprintln(out, "\nFinished processes:")
	for _, p := range s.finished {
		fmt.Fprintf(out, "%s\t(%s)\tFinished  %d / %d\n",
			p.Name(), p.CreatedAt().Format("01/02/2006 03:04:05PM"),
			p.CurrentBurst(), p.TotalBurst())
	}
	fmt.Fprintln(out, "--------------------------------------")
}

func (s *Scheduler) writeFinishedLogs() {
	s.mu.Lock()
	finished := make([]*process.Process, len(s.finished))
	copy(finished, s.finished)
	s.mu.Unlock()

	for _, p := range finished {
		if err := p.ExportLogs(); err != nil {
			slog.Error("export logs for " + p.Name() + ": " + err.Error())
		}
	}
}

package spawner

/*
 * OSEmu - Batch process spawner
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
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// In evaluation mode the spawner stops itself after this many
// processes.
const evaluationLimit = 10

// Spawner periodically hands new processes to the scheduler. Every
// frequency-th cycle the create callback runs once; cycles tick at
// the configured delay. Cancellation is observed at the next wait
// boundary.
type Spawner struct {
	frequency  int
	delay      time.Duration
	evaluation bool
	create     func()

	running atomic.Bool
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// New builds a spawner. The create callback is invoked from the
// spawner goroutine; it is expected to allocate memory, register the
// process and admit it to the scheduler.
func New(frequency, delayMS int, evaluation bool, create func()) *Spawner {
	if frequency < 1 {
		frequency = 1
	}
	return &Spawner{
		frequency:  frequency,
		delay:      time.Duration(delayMS) * time.Millisecond,
		evaluation: evaluation,
		create:     create,
		done:       make(chan struct{}),
	}
}

// Start launches the spawner goroutine.
func (s *Spawner) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go s.run()
}

// Stop cancels the spawner and waits for it to exit. Safe to call
// more than once, and after an evaluation mode self stop.
func (s *Spawner) Stop() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
	s.running.Store(false)
}

// Running reports whether the spawner goroutine is still active.
func (s *Spawner) Running() bool {
	return s.running.Load()
}

func (s *Spawner) run() {
	defer s.wg.Done()
	defer s.running.Store(false)

	cycles := 0
	created := 0
	for {
		select {
		case <-s.done:
			return
		case <-time.After(s.delay):
		}

		cycles++
		if cycles%s.frequency != 0 {
			continue
		}

		s.create()
		created++

		if s.evaluation && created >= evaluationLimit {
			slog.Info("spawner stopped after evaluation batch")
			return
		}
	}
}

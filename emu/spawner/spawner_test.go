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
	"sync/atomic"
	"testing"
	"time"
)

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

// In evaluation mode the spawner stops itself after ten processes.
func TestEvaluationModeStops(t *testing.T) {
	var created atomic.Int32
	s := New(1, 1, true, func() { created.Add(1) })

	s.Start()
	waitFor(t, "evaluation batch", func() bool { return !s.Running() })
	if got := created.Load(); got != 10 {
		t.Errorf("created got: %d expected: 10", got)
	}

	// Stop after a self stop must not hang.
	s.Stop()
}

// Only every frequency-th cycle creates a process.
func TestFrequency(t *testing.T) {
	var created atomic.Int32
	var firstAfter atomic.Int64
	start := time.Now()
	s := New(3, 1, true, func() {
		firstAfter.CompareAndSwap(0, int64(time.Since(start)))
		created.Add(1)
	})

	s.Start()
	waitFor(t, "first creation", func() bool { return created.Load() >= 1 })
	s.Stop()

	// With frequency 3 the first creation waits three cycles of at
	// least 1ms each.
	if d := time.Duration(firstAfter.Load()); d < 3*time.Millisecond {
		t.Errorf("first creation after: %v expected: >= 3ms", d)
	}

	// Evaluation mode caps the count at ten.
	if created.Load() > 10 {
		t.Errorf("created got: %d expected: <= 10", created.Load())
	}
}

// Stop cancels at the next wait boundary and no creations happen
// afterwards.
func TestStop(t *testing.T) {
	var created atomic.Int32
	s := New(1, 1, false, func() { created.Add(1) })

	s.Start()
	waitFor(t, "some creations", func() bool { return created.Load() >= 3 })
	s.Stop()
	if s.Running() {
		t.Errorf("spawner still running after stop")
	}

	after := created.Load()
	time.Sleep(20 * time.Millisecond)
	if created.Load() != after {
		t.Errorf("creations continued after stop: %d -> %d", after, created.Load())
	}
}

/*
 * OSEmu - Configuration file parser
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

package configparser

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

/* Configuration file format: one key=value per line, '#' starts a
 * comment. Recognized keys:
 *
 *   num-cpu            positive integer
 *   scheduler          FCFS | RR
 *   quantum-cycles     positive integer, RR only
 *   batch-process-freq positive integer, in scheduler ticks
 *   min-ins, max-ins   instruction burst range
 *   delay-per-exec     milliseconds
 *   max-overall-mem    bytes, must exceed mem-per-frame
 *   mem-per-frame      bytes, must divide max-overall-mem
 *   min-mem-per-proc   bytes, power of 2 in [8, 65536]
 *   max-mem-per-proc   bytes, power of 2 in [8, 65536]
 *   is-evaluation-mode true | false
 */

type Config struct {
	NumCPU           int
	Scheduler        string
	QuantumCycles    int
	BatchProcessFreq int
	MinIns           int
	MaxIns           int
	DelayPerExec     int
	MaxOverallMem    int
	MemPerFrame      int
	MinMemPerProc    int
	MaxMemPerProc    int
	EvaluationMode   bool
}

// Keys the scheduler cannot start without.
var requiredKeys = []string{
	"num-cpu", "scheduler", "max-overall-mem", "mem-per-frame",
	"min-mem-per-proc", "max-mem-per-proc",
}

// Default returns the optional key defaults.
func Default() *Config {
	return &Config{
		BatchProcessFreq: 1,
		MinIns:           1000,
		MaxIns:           2000,
		DelayPerExec:     1,
	}
}

// LoadConfigFile parses a key=value configuration file. Unknown keys
// and malformed values are logged and skipped; missing required keys
// and inconsistent values are errors.
func LoadConfigFile(name string) (*Config, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := Default()
	seen := map[string]bool{}

	lineNumber := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			slog.Warn(fmt.Sprintf("config line %d: no '=', skipped", lineNumber))
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if err := cfg.setKey(key, value); err != nil {
			slog.Warn(fmt.Sprintf("config line %d: %v, key skipped", lineNumber, err))
			continue
		}
		seen[key] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for _, key := range requiredKeys {
		if !seen[key] {
			return nil, errors.New("missing required config key: " + key)
		}
	}
	if cfg.Scheduler == "RR" && !seen["quantum-cycles"] {
		return nil, errors.New("missing required config key: quantum-cycles")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) setKey(key, value string) error {
	// A malformed value leaves the field unchanged.
	atoi := func(dst *int) error {
		v, err := strconv.Atoi(value)
		if err != nil {
			return errors.New("invalid value for " + key + ": " + value)
		}
		*dst = v
		return nil
	}

	var err error
	switch key {
	case "num-cpu":
		err = atoi(&cfg.NumCPU)
	case "scheduler":
		if value != "FCFS" && value != "RR" {
			return errors.New("scheduler must be FCFS or RR")
		}
		cfg.Scheduler = value
	case "quantum-cycles":
		err = atoi(&cfg.QuantumCycles)
	case "batch-process-freq":
		err = atoi(&cfg.BatchProcessFreq)
	case "min-ins":
		err = atoi(&cfg.MinIns)
	case "max-ins":
		err = atoi(&cfg.MaxIns)
	case "delay-per-exec":
		err = atoi(&cfg.DelayPerExec)
	case "max-overall-mem":
		err = atoi(&cfg.MaxOverallMem)
	case "mem-per-frame":
		err = atoi(&cfg.MemPerFrame)
	case "min-mem-per-proc":
		err = atoi(&cfg.MinMemPerProc)
	case "max-mem-per-proc":
		err = atoi(&cfg.MaxMemPerProc)
	case "is-evaluation-mode":
		switch value {
		case "true":
			cfg.EvaluationMode = true
		case "false":
			cfg.EvaluationMode = false
		default:
			return errors.New("is-evaluation-mode must be true or false")
		}
	default:
		return errors.New("unknown key: " + key)
	}
	return err
}

func powerOfTwo(v int) bool {
	return v >= 8 && v <= 65536 && v&(v-1) == 0
}

// Validate checks cross field consistency.
func (cfg *Config) Validate() error {
	if cfg.NumCPU < 1 {
		return errors.New("num-cpu must be positive")
	}
	if cfg.Scheduler != "FCFS" && cfg.Scheduler != "RR" {
		return errors.New("scheduler must be FCFS or RR")
	}
	if cfg.Scheduler == "RR" && cfg.QuantumCycles < 1 {
		return errors.New("quantum-cycles must be positive")
	}
	if cfg.BatchProcessFreq < 1 {
		return errors.New("batch-process-freq must be positive")
	}
	if cfg.MinIns < 1 || cfg.MaxIns < cfg.MinIns {
		return errors.New("instruction range must satisfy 1 <= min-ins <= max-ins")
	}
	if cfg.DelayPerExec < 0 {
		return errors.New("delay-per-exec must not be negative")
	}
	if cfg.MemPerFrame < 2 {
		return errors.New("mem-per-frame must be at least one word")
	}
	if cfg.MaxOverallMem <= cfg.MemPerFrame {
		return errors.New("max-overall-mem must exceed mem-per-frame")
	}
	if cfg.MaxOverallMem%cfg.MemPerFrame != 0 {
		return errors.New("mem-per-frame must divide max-overall-mem")
	}
	if !powerOfTwo(cfg.MinMemPerProc) || !powerOfTwo(cfg.MaxMemPerProc) {
		return errors.New("per process memory bounds must be powers of 2 in [8, 65536]")
	}
	if cfg.MinMemPerProc > cfg.MaxMemPerProc {
		return errors.New("min-mem-per-proc must not exceed max-mem-per-proc")
	}
	return nil
}

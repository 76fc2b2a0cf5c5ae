/*
 * OSEmu - Shell command handlers.
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

package parser

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/csopesy/osemu/config/configparser"
	"github.com/csopesy/osemu/emu/core"
	"github.com/csopesy/osemu/emu/process"
)

const reportFile = "csopesy_log.txt"

// PrintHeader shows the startup banner.
func PrintHeader() {
	fmt.Print(`
   _____  _____  ____  _____  ______  _______     __
  / ____|/ ____|/ __ \|  __ \|  ____|/ ____\ \   / /
 | |    | (___ | |  | | |__) | |__  | (___  \ \_/ /
 | |     \___ \| |  | |  ___/|  __|  \___ \  \   /
 | |____ ____) | |__| | |    | |____ ____) |  | |
  \_____|_____/ \____/|_|    |______|_____/   |_|

`)
	fmt.Println("\033[1;32mHello, Welcome to the CSOPESY commandline!\033[0m")
	fmt.Println("\033[1;33mType 'exit' to quit, 'clear' to clear the screen\033[0m")
}

func (sh *Shell) requireKernel() (*core.Kernel, error) {
	if sh.kernel == nil {
		return nil, errors.New("not initialized, run 'initialize' first")
	}
	return sh.kernel, nil
}

func initialize(sh *Shell, line *cmdLine) (bool, error) {
	if sh.kernel != nil {
		return false, errors.New("already initialized")
	}

	configFile := line.getWord()
	if configFile == "" {
		configFile = "config.txt"
	}

	cfg, err := configparser.LoadConfigFile(configFile)
	if err != nil {
		return false, err
	}
	kernel, err := core.NewKernel(cfg)
	if err != nil {
		return false, err
	}
	sh.kernel = kernel

	fmt.Println("System initialized with configuration:")
	fmt.Printf("  Number of Cores: %d\n", cfg.NumCPU)
	fmt.Printf("  Scheduling Algorithm: %s\n", cfg.Scheduler)
	if cfg.Scheduler == "RR" {
		fmt.Printf("  Quantum Cycles: %d\n", cfg.QuantumCycles)
	}
	fmt.Printf("  Batch Process Frequency: %d\n", cfg.BatchProcessFreq)
	fmt.Printf("  Minimum Instructions: %d\n", cfg.MinIns)
	fmt.Printf("  Maximum Instructions: %d\n", cfg.MaxIns)
	fmt.Printf("  Delays per Execution: %d\n", cfg.DelayPerExec)
	fmt.Printf("  Max Overall Memory: %d bytes\n", cfg.MaxOverallMem)
	fmt.Printf("  Memory per Frame: %d bytes\n", cfg.MemPerFrame)
	fmt.Printf("  Min Memory per Process: %d bytes\n", cfg.MinMemPerProc)
	fmt.Printf("  Max Memory per Process: %d bytes\n", cfg.MaxMemPerProc)
	fmt.Printf("  Evaluation Mode: %t\n", cfg.EvaluationMode)
	return false, nil
}

func schedulerStart(sh *Shell, _ *cmdLine) (bool, error) {
	kernel, err := sh.requireKernel()
	if err != nil {
		return false, err
	}

	kernel.StartScheduler()
	fmt.Println("Scheduler started")
	fmt.Println("Automatic process creation started")
	if kernel.Config().EvaluationMode {
		fmt.Println("Evaluation mode: Will create 10 processes")
	}
	return false, nil
}

func schedulerStop(sh *Shell, _ *cmdLine) (bool, error) {
	kernel, err := sh.requireKernel()
	if err != nil {
		return false, err
	}

	if !kernel.Spawner().Running() {
		fmt.Println("Automatic creation not running")
		return false, nil
	}
	kernel.StopSpawner()
	fmt.Println("Automatic process creation stopped")
	return false, nil
}

func screenComplete(_ *cmdLine) []string {
	return []string{"-s ", "-c ", "-r ", "-ls "}
}

func screen(sh *Shell, line *cmdLine) (bool, error) {
	kernel, err := sh.requireKernel()
	if err != nil {
		return false, err
	}

	switch opt := line.getWord(); opt {
	case "-s":
		return false, screenCreate(kernel, line)
	case "-c":
		return false, screenCustom(kernel, line)
	case "-r":
		return false, screenAttach(kernel, line)
	case "-ls":
		kernel.Scheduler().PrintStatus(os.Stdout)
		return false, nil
	default:
		fmt.Println("Usage:")
		fmt.Println("  screen -s <name> [<mem>]                     create screen")
		fmt.Println("  screen -c <name> <mem> \"<ins;ins;...>\"       create screen with instructions")
		fmt.Println("  screen -r <name>                             attach to screen")
		fmt.Println("  screen -ls                                   list running/finished processes")
		return false, nil
	}
}

func screenCreate(kernel *core.Kernel, line *cmdLine) error {
	name := line.getWord()
	if name == "" {
		return errors.New("process name cannot be empty")
	}

	memSize := kernel.Config().MinMemPerProc
	if arg := line.getWord(); arg != "" {
		var err error
		memSize, err = strconv.Atoi(arg)
		if err != nil {
			return errors.New("invalid memory size format")
		}
	}

	p, err := kernel.CreateProcess(name, memSize)
	if err != nil {
		return err
	}
	fmt.Printf("Process '%s' created with %d bytes of memory.\n", p.Name(), p.MemorySize())
	return nil
}

func screenCustom(kernel *core.Kernel, line *cmdLine) error {
	name := line.getWord()
	if name == "" {
		return errors.New("process name cannot be empty")
	}
	memArg := line.getWord()
	memSize, err := strconv.Atoi(memArg)
	if err != nil {
		return errors.New("invalid memory size format")
	}

	quoted, ok := line.quoted()
	if !ok {
		return errors.New("usage: screen -c <name> <mem> \"<ins;ins;...>\"")
	}

	instructions := []string{}
	for _, ins := range strings.Split(quoted, ";") {
		ins = strings.TrimSpace(ins)
		if ins != "" {
			instructions = append(instructions, ins)
		}
	}

	p, err := kernel.CreateCustomProcess(name, memSize, instructions)
	if err != nil {
		return err
	}
	fmt.Printf("Process '%s' created with %d bytes of memory and %d custom instructions.\n",
		p.Name(), p.MemorySize(), len(instructions))
	return nil
}

func screenAttach(kernel *core.Kernel, line *cmdLine) error {
	name := line.getWord()
	if name == "" {
		return errors.New("process name cannot be empty")
	}

	p, ok := kernel.FindProcess(name)
	if !ok {
		fmt.Printf("Process %s not found.\n", name)
		return nil
	}
	if p.Violated() {
		fmt.Println(p.ViolationReport())
		return nil
	}
	enterScreen(p)
	return nil
}

// enterScreen runs the per process sub shell until exit.
func enterScreen(p *process.Process) {
	drawScreen(p)
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print(">>")
		sub, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		switch strings.TrimSpace(sub) {
		case "exit":
			clearTerminal()
			PrintHeader()
			return
		case "process-smi":
			p.WriteLogs(os.Stdout)
		case "report-util":
			if err := p.ExportLogs(); err != nil {
				fmt.Println("Error: " + err.Error())
				continue
			}
			fmt.Printf("Report generated as: %s.txt\n", p.Name())
		case "execute":
			if p.Finished() || p.Violated() {
				fmt.Println("Process has finished execution")
				continue
			}
			p.Step(-1)
			fmt.Println("Executed one instruction")
		default:
			fmt.Println("Unknown sub-command.")
		}
	}
}

func drawScreen(p *process.Process) {
	clearTerminal()
	fmt.Println("==============================		SCREEN		========================")
	fmt.Println()
	fmt.Printf("Process name:			%s\n", p.Name())
	fmt.Printf("Instruction line:		%d / %d\n", p.CurrentBurst(), p.TotalBurst())
	fmt.Printf("Created at:			%s\n\n", p.CreatedAt().Format("01/02/2006 03:04:05PM"))
	fmt.Println("================================================================================")
	fmt.Println("Type 'exit' to return to main menu")
	fmt.Println("Type 'process-smi' to view logs")
	fmt.Println("Type 'report-util' to export detailed report")
}

func clearTerminal() {
	fmt.Print("\033[2J\033[H")
}

func processSMI(sh *Shell, _ *cmdLine) (bool, error) {
	kernel, err := sh.requireKernel()
	if err != nil {
		return false, err
	}
	snap := kernel.Memory().Snapshot()

	cpuUtil := 0
	if snap.TotalTicks > 0 {
		cpuUtil = snap.ActiveTicks * 100 / snap.TotalTicks
	}
	memUtil := 0
	if snap.TotalMemory > 0 {
		memUtil = snap.UsedMemory * 100 / snap.TotalMemory
	}

	fmt.Println("-------------------------------------------")
	fmt.Println("| PROCESS-SMI V01.00 Driver Version: 01.00|")
	fmt.Println("-------------------------------------------")
	fmt.Printf("CPU-Util: %d%%\n", cpuUtil)
	fmt.Printf("Memory Usage: %d bytes/ %d bytes\n", snap.UsedMemory, snap.TotalMemory)
	fmt.Printf("Memory Util: %d%%\n", memUtil)
	fmt.Println()
	fmt.Println("===========================================")
	fmt.Println("Running processes and memory usage:")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Process", "Memory"})
	for _, usage := range snap.Processes {
		table.Append([]string{usage.Name, fmt.Sprintf("%d bytes", usage.Bytes)})
	}
	table.Render()
	fmt.Println("-------------------------------------------")
	return false, nil
}

func vmstat(sh *Shell, _ *cmdLine) (bool, error) {
	kernel, err := sh.requireKernel()
	if err != nil {
		return false, err
	}
	snap := kernel.Memory().Snapshot()

	fmt.Println("=========================================================================")
	fmt.Println("Memory Statistics:")
	fmt.Printf("Total Memory: %d bytes\n", snap.TotalMemory)
	fmt.Printf("Used Memory: %d bytes\n", snap.UsedMemory)
	fmt.Printf("Free Memory: %d bytes\n", snap.FreeMemory)
	fmt.Printf("Idle CPU Ticks: %d\n", snap.IdleTicks)
	fmt.Printf("Active CPU Ticks: %d\n", snap.ActiveTicks)
	fmt.Printf("Total CPU Ticks: %d\n", snap.TotalTicks)
	fmt.Printf("Num Paged In: %d\n", snap.PagesIn)
	fmt.Printf("Num Paged Out: %d\n", snap.PagesOut)
	fmt.Println("=========================================================================")
	return false, nil
}

func reportUtil(sh *Shell, _ *cmdLine) (bool, error) {
	kernel, err := sh.requireKernel()
	if err != nil {
		return false, err
	}
	if err := kernel.ReportUtil(reportFile); err != nil {
		return false, err
	}

	dir, err := os.Getwd()
	if err != nil {
		dir = "."
	}
	fmt.Printf("Report generated at: %s\n", filepath.Join(dir, reportFile))
	return false, nil
}

func clearScreen(_ *Shell, _ *cmdLine) (bool, error) {
	clearTerminal()
	PrintHeader()
	return false, nil
}

func help(_ *Shell, _ *cmdLine) (bool, error) {
	fmt.Println("Commands:")
	fmt.Println("  initialize [<config>]   load configuration and boot the kernel")
	fmt.Println("  scheduler-start         start scheduler and batch process creation")
	fmt.Println("  scheduler-stop          stop batch process creation")
	fmt.Println("  screen -s|-c|-r|-ls     manage process screens")
	fmt.Println("  process-smi             memory manager status")
	fmt.Println("  vmstat                  memory and CPU tick counters")
	fmt.Println("  report-util             dump scheduler status to " + reportFile)
	fmt.Println("  clear                   clear the screen")
	fmt.Println("  exit                    orderly shutdown")
	return false, nil
}

func exitShell(sh *Shell, _ *cmdLine) (bool, error) {
	if sh.kernel != nil {
		sh.kernel.Shutdown()
		fmt.Println("Scheduler stopped")
	}
	return true, nil
}

/*
 * OSEmu - Shell command parser.
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
	"errors"
	"strings"
	"unicode"

	"github.com/csopesy/osemu/emu/core"
)

// Shell holds the kernel once initialize has run. Commands that need
// the kernel report an error before that.
type Shell struct {
	kernel *core.Kernel
}

func NewShell() *Shell {
	return &Shell{}
}

// Kernel exposes the booted kernel, nil before initialize.
func (sh *Shell) Kernel() *core.Kernel {
	return sh.kernel
}

type cmd struct {
	name     string // Command name.
	min      int    // Minimum match size.
	process  func(*Shell, *cmdLine) (bool, error)
	complete func(*cmdLine) []string
}

type cmdLine struct {
	line string // Current command.
	pos  int    // Position in line.
}

var cmdList = []cmd{
	{name: "initialize", min: 4, process: initialize},
	{name: "scheduler-start", min: 13, process: schedulerStart},
	{name: "scheduler-stop", min: 13, process: schedulerStop},
	{name: "screen", min: 6, process: screen, complete: screenComplete},
	{name: "process-smi", min: 7, process: processSMI},
	{name: "vmstat", min: 2, process: vmstat},
	{name: "report-util", min: 3, process: reportUtil},
	{name: "clear", min: 2, process: clearScreen},
	{name: "help", min: 4, process: help},
	{name: "exit", min: 4, process: exitShell},
}

// ProcessCommand executes one command line. The first result is true
// when the shell should quit.
func (sh *Shell) ProcessCommand(commandLine string) (bool, error) {
	line := cmdLine{line: commandLine}
	command := line.getWord()
	if command == "" {
		return false, nil
	}

	match := matchList(command)
	if len(match) == 0 {
		return false, errors.New("command not found: " + command)
	}
	if len(match) > 1 {
		return false, errors.New("unique command not found: " + command)
	}

	return match[0].process(sh, &line)
}

// CompleteCmd completes a command line during line editing.
func CompleteCmd(commandLine string) []string {
	line := cmdLine{line: commandLine}
	name := line.getWord()

	if !line.isEOL() && line.line[line.pos] == ' ' {
		line.skipSpace()
		match := matchList(name)
		if len(match) != 1 || match[0].complete == nil {
			return nil
		}
		return match[0].complete(&line)
	}

	matches := []string{}
	for _, m := range matchList(name) {
		matches = append(matches, m.name)
	}
	return matches
}

// Check if command matches at least to minimum length.
func matchCommand(match cmd, command string) bool {
	if len(command) > len(match.name) {
		return false
	}
	for i := 0; i < len(command); i++ {
		if match.name[i] != command[i] {
			return false
		}
	}
	return len(command) >= match.min
}

// Match against the command table.
func matchList(command string) []cmd {
	if command == "" {
		return nil
	}
	var match []cmd
	for _, m := range cmdList {
		if matchCommand(m, command) {
			match = append(match, m)
		}
	}
	return match
}

// Skip forward over line until none whitespace character found.
func (line *cmdLine) skipSpace() {
	for line.pos < len(line.line) && unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
}

// Check if at end of line.
func (line *cmdLine) isEOL() bool {
	return line.pos >= len(line.line)
}

// Return the next whitespace separated word, empty at end of line.
func (line *cmdLine) getWord() string {
	line.skipSpace()
	start := line.pos
	for line.pos < len(line.line) && !unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
	return line.line[start:line.pos]
}

// Return the rest of the line, trimmed.
func (line *cmdLine) rest() string {
	return strings.TrimSpace(line.line[line.pos:])
}

// Return the text between the first and last double quote of the
// remaining line.
func (line *cmdLine) quoted() (string, bool) {
	rest := line.line[line.pos:]
	start := strings.IndexByte(rest, '"')
	end := strings.LastIndexByte(rest, '"')
	if start < 0 || end <= start {
		return "", false
	}
	return rest[start+1 : end], true
}

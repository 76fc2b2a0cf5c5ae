package process

/*
 * OSEmu - Program generation and parsing
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
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// Generate a pseudorandom program whose dispatched instruction count
// equals the requested burst. Loop bodies are budgeted so that their
// repeated execution stays inside the burst; the total burst is then
// the exact number of instructions a full run dispatches.
func (p *Process) generate() {
	if p.totalBurst < 1 {
		p.totalBurst = 1
	}
	prog, cost := genBlock(p.name, 1, p.totalBurst)
	p.program = prog
	p.totalBurst = cost
}

// genBlock emits instructions worth exactly budget dispatches. With
// probability 1/10, and while the depth and remaining budget allow, a
// FOR/ENDLOOP pair encloses a recursively generated body.
func genBlock(name string, depth, budget int) ([]Instruction, int) {
	var prog []Instruction
	cost := 0
	for cost < budget {
		remaining := budget - cost
		if depth <= maxLoopDepth && remaining > 3 && rand.Intn(10) == 0 {
			iters := 2 + rand.Intn(4)
			maxBody := (remaining - 2) / iters
			if maxBody >= 1 {
				bodyBudget := 1 + rand.Intn(maxBody)
				body, bodyCost := genBlock(name, depth+1, bodyBudget)
				prog = append(prog, Instruction{Op: OpFor, Args: []string{strconv.Itoa(iters)}})
				prog = append(prog, body...)
				prog = append(prog, Instruction{Op: OpEndLoop})
				cost += 2 + iters*bodyCost
				continue
			}
		}
		prog = append(prog, randomInstruction(name))
		cost++
	}
	return prog, cost
}

func randomVar() string {
	return string(rune('a' + rand.Intn(26)))
}

func randomAddress() string {
	return fmt.Sprintf("0x%X", 0x1000+rand.Intn(0x1001))
}

func randomInstruction(name string) Instruction {
	switch rand.Intn(7) {
	case 1:
		return Instruction{Op: OpDeclare, Args: []string{randomVar(), strconv.Itoa(rand.Intn(100))}}
	case 2:
		return Instruction{Op: OpAdd, Args: []string{randomVar(), randomVar(), randomVar()}}
	case 3:
		return Instruction{Op: OpSubtract, Args: []string{randomVar(), randomVar(), randomVar()}}
	case 4:
		return Instruction{Op: OpSleep, Args: []string{strconv.Itoa(1 + rand.Intn(5))}}
	case 5:
		return Instruction{Op: OpRead, Args: []string{randomVar(), randomAddress()}}
	case 6:
		return Instruction{Op: OpWrite, Args: []string{randomAddress(), strconv.Itoa(rand.Intn(100))}}
	default:
		return Instruction{Op: OpPrint, Args: []string{"\"Hello world from " + name + "!\""}}
	}
}

// SetProgram replaces the generated program with an explicit sequence
// of textual instructions, the screen -c path. Unknown opcodes fall
// back to a PRINT of the raw text.
func (p *Process) SetProgram(lines []string) error {
	if len(lines) < 1 || len(lines) > 50 {
		return errors.New("instruction count must be between 1 and 50")
	}

	prog := make([]Instruction, 0, len(lines))
	for _, line := range lines {
		prog = append(prog, parseInstruction(line))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.program = prog
	p.pc = 0
	p.burst = 0
	p.sleep = 0
	p.loops = nil
	p.totalBurst = dispatchCost(prog)
	return nil
}

// Parse one textual instruction.
func parseInstruction(line string) Instruction {
	text := strings.TrimSpace(line)
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Instruction{Op: OpPrint, Args: []string{text}}
	}

	rest := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
	switch strings.ToUpper(fields[0]) {
	case "PRINT":
		return Instruction{Op: OpPrint, Args: []string{rest}}
	case "DECLARE":
		if len(fields) >= 3 {
			return Instruction{Op: OpDeclare, Args: fields[1:3]}
		}
	case "ADD":
		if len(fields) >= 4 {
			return Instruction{Op: OpAdd, Args: fields[1:4]}
		}
	case "SUBTRACT":
		if len(fields) >= 4 {
			return Instruction{Op: OpSubtract, Args: fields[1:4]}
		}
	case "SLEEP":
		if len(fields) >= 2 {
			return Instruction{Op: OpSleep, Args: fields[1:2]}
		}
	case "FOR":
		if len(fields) >= 2 {
			return Instruction{Op: OpFor, Args: fields[1:2]}
		}
	case "ENDLOOP":
		return Instruction{Op: OpEndLoop}
	case "READ":
		if len(fields) >= 3 {
			return Instruction{Op: OpRead, Args: fields[1:3]}
		}
	case "WRITE":
		if len(fields) >= 3 {
			return Instruction{Op: OpWrite, Args: fields[1:3]}
		}
	}
	return Instruction{Op: OpPrint, Args: []string{text}}
}

// dispatchCost computes how many instructions a full run of the
// program dispatches, counting each loop body once per iteration and
// each ENDLOOP once.
func dispatchCost(prog []Instruction) int {
	cost, _ := blockCost(prog, 0, 0)
	return cost
}

func blockCost(prog []Instruction, pos, depth int) (int, int) {
	total := 0
	for pos < len(prog) {
		switch prog[pos].Op {
		case OpFor:
			iters, err := strconv.Atoi(strings.TrimSpace(prog[pos].Args[0]))
			if err != nil || iters < 1 {
				iters = 1
			}
			inner, next := blockCost(prog, pos+1, depth+1)
			total += 1 + iters*inner + 1
			pos = next
		case OpEndLoop:
			if depth == 0 {
				// Stray ENDLOOP, dispatched once as an error.
				total++
				pos++
				continue
			}
			return total, pos + 1
		default:
			total++
			pos++
		}
	}
	return total, pos
}

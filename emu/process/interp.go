package process

/*
 * OSEmu - Instruction interpreter
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
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Step executes one scheduling tick on the given core. A pending sleep
// consumes the tick without advancing the program counter or the burst
// count. Every other dispatched instruction counts one burst, except
// an ENDLOOP that jumps back into the loop body; the ENDLOOP counts
// once, on loop exit.
func (p *Process) Step(coreID int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sleep > 0 {
		p.sleep--
		p.logLocked(coreID, fmt.Sprintf("SLEEP: %d ticks remaining", p.sleep))
		return
	}

	if p.pc >= len(p.program) {
		return
	}

	inst := p.program[p.pc]
	countBurst := true
	var msg string

	switch inst.Op {
	case OpPrint:
		msg = "PRINT: " + p.expandLocked(inst.Args[0])
		p.pc++

	case OpDeclare:
		name := strings.TrimSpace(inst.Args[0])
		if _, ok := p.vars[name]; ok {
			msg = "REDECLARE: " + name
		} else if len(p.varOrder) >= maxVariables {
			msg = "DECLARE: symbol table full, " + name + " ignored"
		} else {
			value := p.parseValueLocked(inst.Args[1])
			p.setVarLocked(coreID, name, value)
			msg = fmt.Sprintf("DECLARE: %s = %d", name, value)
		}
		p.pc++

	case OpAdd, OpSubtract:
		dst := strings.TrimSpace(inst.Args[0])
		a := p.parseValueLocked(inst.Args[1])
		b := p.parseValueLocked(inst.Args[2])

		var result uint16
		var op byte
		if inst.Op == OpAdd {
			result = a + b
			op = '+'
		} else {
			op = '-'
			if a > b {
				result = a - b
			}
		}

		_, exists := p.vars[dst]
		if !exists && len(p.varOrder) >= maxVariables {
			msg = "ARITH: symbol table full, " + dst + " ignored"
		} else {
			p.setVarLocked(coreID, dst, result)
			verb := "ADD"
			if inst.Op == OpSubtract {
				verb = "SUBTRACT"
			}
			msg = fmt.Sprintf("%s: %s = %d %c %d", verb, dst, a, op, b)
		}
		p.pc++

	case OpSleep:
		ticks := p.parseValueLocked(inst.Args[0]) & 0xff
		p.sleep = int(ticks)
		p.pc++
		if ticks > 0 {
			msg = fmt.Sprintf("SLEEP: %d ticks started", ticks)
		} else {
			msg = "SLEEP: Zero ticks - no op"
		}

	case OpFor:
		depth := len(p.loops) + 1
		if depth > maxLoopDepth {
			msg = "FOR loop skipped (max depth exceeded)"
			p.pc++
			break
		}
		ctx := loopContext{
			iterations: int(p.parseValueLocked(inst.Args[0])),
			current:    1,
			start:      p.pc + 1,
			depth:      depth,
		}
		p.loops = append(p.loops, ctx)
		msg = fmt.Sprintf("[D%d] FOR started (%d iterations)", depth, ctx.iterations)
		p.pc = ctx.start

	case OpEndLoop:
		if len(p.loops) == 0 {
			msg = "ERROR: ENDLOOP without matching FOR"
			p.pc++
			break
		}
		ctx := &p.loops[len(p.loops)-1]
		ctx.current++
		if ctx.current <= ctx.iterations {
			msg = fmt.Sprintf("[D%d] Iteration %d/%d", ctx.depth, ctx.current, ctx.iterations)
			p.pc = ctx.start
			countBurst = false
		} else {
			msg = fmt.Sprintf("[D%d] FOR completed", ctx.depth)
			p.loops = p.loops[:len(p.loops)-1]
			p.pc++
		}

	case OpRead:
		name := strings.TrimSpace(inst.Args[0])
		addr, err := parseAddress(inst.Args[1])
		if err != nil {
			addr = -1
		}
		value, fault := p.mem.Read(p.name, addr)
		if fault {
			msg = p.violateLocked(addr)
		} else {
			_, exists := p.vars[name]
			if !exists && len(p.varOrder) >= maxVariables {
				msg = "READ: symbol table full, " + name + " ignored"
			} else {
				p.setVarLocked(coreID, name, value)
				msg = fmt.Sprintf("READ: %s = %d from 0x%X", name, value, addr)
			}
		}
		p.pc++

	case OpWrite:
		addr, err := parseAddress(inst.Args[0])
		if err != nil {
			addr = -1
		}
		value := p.parseValueLocked(inst.Args[1])
		if p.mem.Write(p.name, addr, value) {
			msg = p.violateLocked(addr)
		} else {
			msg = fmt.Sprintf("WRITE: %d to 0x%X", value, addr)
		}
		p.pc++

	default:
		msg = "UNKNOWN INSTRUCTION"
		p.pc++
	}

	p.logLocked(coreID, msg)
	if countBurst {
		p.burst++
	}
}

// Record a permanent memory access violation.
func (p *Process) violateLocked(addr int) string {
	if p.violation == nil {
		p.violation = &Violation{Addr: addr, When: time.Now()}
	}
	return fmt.Sprintf("memory access violation at 0x%X", addr)
}

// Insert or update a variable and mirror it into the symbol table area
// of the address space at twice its table index.
func (p *Process) setVarLocked(coreID int, name string, value uint16) {
	if _, ok := p.vars[name]; !ok {
		p.varOrder = append(p.varOrder, name)
	}
	p.vars[name] = value

	for i, n := range p.varOrder {
		if n == name {
			p.mem.Write(p.name, 2*i, value)
			break
		}
	}
}

// Resolve a literal or a variable reference; unknown variables read
// as zero.
func (p *Process) parseValueLocked(arg string) uint16 {
	s := strings.TrimSpace(arg)
	if s == "" {
		return 0
	}
	digits := true
	for _, r := range s {
		if !unicode.IsDigit(r) {
			digits = false
			break
		}
	}
	if digits {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0
		}
		return uint16(v)
	}
	return p.vars[s]
}

// Template is either a quoted literal, or a literal concatenated with
// a variable reference via " + ".
func (p *Process) expandLocked(template string) string {
	text := strings.TrimSpace(template)
	if idx := strings.LastIndex(text, " + "); idx >= 0 {
		varName := strings.TrimSpace(text[idx+3:])
		lit := strings.Trim(strings.TrimSpace(text[:idx]), "\"")
		return lit + strconv.Itoa(int(p.vars[varName]))
	}
	return strings.Trim(text, "\"")
}

// Addresses parse from decimal or 0x prefixed hex.
func parseAddress(arg string) (int, error) {
	s := strings.TrimSpace(arg)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	v, err := strconv.ParseInt(s, base, 32)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

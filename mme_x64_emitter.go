// mme_x64_emitter.go - x86-64 machine code emitter for the macro JIT

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
License: GPLv3 or later
*/

package main

import (
	"encoding/binary"
	"fmt"
)

type x64Reg byte

const (
	x64RAX x64Reg = iota
	x64RCX
	x64RDX
	x64RBX
	x64RSP
	x64RBP
	x64RSI
	x64RDI
	x64R8
	x64R9
	x64R10
	x64R11
	x64R12
	x64R13
	x64R14
	x64R15
)

// Condition codes for Jcc/SETcc (low nibble of the opcode)
const (
	x64CondB  = 0x2 // CF=1
	x64CondAE = 0x3 // CF=0
	x64CondE  = 0x4
	x64CondNE = 0x5
)

// Group-1 ALU opcodes, r/m,r form. The /ext digit for the immediate form is
// opcode>>3.
const (
	x64OpAdd  = 0x01
	x64OpOr   = 0x09
	x64OpAdc  = 0x11
	x64OpSbb  = 0x19
	x64OpAnd  = 0x21
	x64OpSub  = 0x29
	x64OpXor  = 0x31
	x64OpCmp  = 0x39
	x64OpTest = 0x85
	x64OpMov  = 0x89
)

const (
	x64ShiftLeft  = 4
	x64ShiftRight = 5
)

// x64Mem is a [base + index*scale + disp32] operand. scale is log2.
type x64Mem struct {
	base     x64Reg
	index    x64Reg
	scale    byte
	hasIndex bool
	disp     int32
}

func x64Disp(base x64Reg, disp int32) x64Mem {
	return x64Mem{base: base, disp: disp}
}

func x64Indexed(base, index x64Reg, scale byte, disp int32) x64Mem {
	return x64Mem{base: base, index: index, scale: scale, hasIndex: true, disp: disp}
}

type x64Label int

type x64Fixup struct {
	at    int // offset of the rel32 field
	label x64Label
}

// x64Emitter assembles into a growable byte slice. Branch targets are
// labels; every reference is a rel32 patched by finish.
type x64Emitter struct {
	code   []byte
	labels []int
	fixups []x64Fixup
}

func newX64Emitter() *x64Emitter {
	return &x64Emitter{code: make([]byte, 0, 4096)}
}

func (e *x64Emitter) len() int { return len(e.code) }

func (e *x64Emitter) emit(bs ...byte) {
	e.code = append(e.code, bs...)
}

func (e *x64Emitter) emitU32(v uint32) {
	e.code = binary.LittleEndian.AppendUint32(e.code, v)
}

func (e *x64Emitter) newLabel() x64Label {
	e.labels = append(e.labels, -1)
	return x64Label(len(e.labels) - 1)
}

func (e *x64Emitter) bind(l x64Label) {
	e.labels[l] = len(e.code)
}

func (e *x64Emitter) bound(l x64Label) bool {
	return e.labels[l] >= 0
}

func (e *x64Emitter) rel32(l x64Label) {
	e.fixups = append(e.fixups, x64Fixup{at: len(e.code), label: l})
	e.emitU32(0)
}

// finish patches every label reference and returns the code.
func (e *x64Emitter) finish() ([]byte, error) {
	for _, f := range e.fixups {
		target := e.labels[f.label]
		if target < 0 {
			return nil, fmt.Errorf("x64 emitter: label %d referenced but never bound", f.label)
		}
		binary.LittleEndian.PutUint32(e.code[f.at:], uint32(int32(target-(f.at+4))))
	}
	return e.code, nil
}

func (e *x64Emitter) rex(w bool, reg, index, base x64Reg) {
	b := byte(0x40)
	if w {
		b |= 0x08
	}
	if reg >= 8 {
		b |= 0x04
	}
	if index >= 8 {
		b |= 0x02
	}
	if base >= 8 {
		b |= 0x01
	}
	if b != 0x40 {
		e.emit(b)
	}
}

func x64ModRM(mod, reg, rm byte) byte {
	return (mod << 6) | ((reg & 7) << 3) | (rm & 7)
}

func (e *x64Emitter) rexMem(w bool, reg x64Reg, m x64Mem) {
	idx := x64Reg(0)
	if m.hasIndex {
		idx = m.index
	}
	e.rex(w, reg, idx, m.base)
}

// modRMMem always uses the disp32 form; it needs no special case for
// RBP/R13 and RSP/R12 only need the SIB byte.
func (e *x64Emitter) modRMMem(reg byte, m x64Mem) {
	switch {
	case m.hasIndex:
		e.emit(x64ModRM(2, reg, 4), (m.scale<<6)|(byte(m.index&7)<<3)|byte(m.base&7))
	case m.base&7 == 4:
		e.emit(x64ModRM(2, reg, 4), 0x24)
	default:
		e.emit(x64ModRM(2, reg, byte(m.base)))
	}
	e.emitU32(uint32(m.disp))
}

func (e *x64Emitter) push(r x64Reg) {
	e.rex(false, 0, 0, r)
	e.emit(0x50 + byte(r&7))
}

func (e *x64Emitter) pop(r x64Reg) {
	e.rex(false, 0, 0, r)
	e.emit(0x58 + byte(r&7))
}

func (e *x64Emitter) ret() { e.emit(0xC3) }

func (e *x64Emitter) cmc() { e.emit(0xF5) }

// aluRR emits op dst, src on 32-bit registers (64-bit with w).
func (e *x64Emitter) aluRR(op byte, dst, src x64Reg, w bool) {
	e.rex(w, src, 0, dst)
	e.emit(op, x64ModRM(3, byte(src), byte(dst)))
}

// aluRI emits op dst, imm using the sign-extended imm8 form when it fits.
func (e *x64Emitter) aluRI(op byte, dst x64Reg, imm int32, w bool) {
	e.rex(w, 0, 0, dst)
	ext := op >> 3
	if imm >= -128 && imm <= 127 {
		e.emit(0x83, x64ModRM(3, ext, byte(dst)), byte(int8(imm)))
		return
	}
	e.emit(0x81, x64ModRM(3, ext, byte(dst)))
	e.emitU32(uint32(imm))
}

func (e *x64Emitter) movRR32(dst, src x64Reg) {
	if dst == src {
		return
	}
	e.aluRR(x64OpMov, dst, src, false)
}

func (e *x64Emitter) movRR64(dst, src x64Reg) {
	e.aluRR(x64OpMov, dst, src, true)
}

// movRI32 loads a 32-bit immediate, zero-extending into the full register.
func (e *x64Emitter) movRI32(dst x64Reg, imm uint32) {
	if imm == 0 {
		e.aluRR(x64OpXor, dst, dst, false)
		return
	}
	e.rex(false, 0, 0, dst)
	e.emit(0xB8 + byte(dst&7))
	e.emitU32(imm)
}

func (e *x64Emitter) load32(dst x64Reg, m x64Mem) {
	e.rexMem(false, dst, m)
	e.emit(0x8B)
	e.modRMMem(byte(dst), m)
}

func (e *x64Emitter) load64(dst x64Reg, m x64Mem) {
	e.rexMem(true, dst, m)
	e.emit(0x8B)
	e.modRMMem(byte(dst), m)
}

func (e *x64Emitter) store32(m x64Mem, src x64Reg) {
	e.rexMem(false, src, m)
	e.emit(0x89)
	e.modRMMem(byte(src), m)
}

func (e *x64Emitter) store64(m x64Mem, src x64Reg) {
	e.rexMem(true, src, m)
	e.emit(0x89)
	e.modRMMem(byte(src), m)
}

func (e *x64Emitter) storeImm32(m x64Mem, imm uint32) {
	e.rexMem(false, 0, m)
	e.emit(0xC7)
	e.modRMMem(0, m)
	e.emitU32(imm)
}

// setccMem writes 1 or 0 to the byte at m.
func (e *x64Emitter) setccMem(cond byte, m x64Mem) {
	e.rexMem(false, 0, m)
	e.emit(0x0F, 0x90|cond)
	e.modRMMem(0, m)
}

// btMem copies bit n of the dword at m into CF.
func (e *x64Emitter) btMem(m x64Mem, bit byte) {
	e.rexMem(false, 0, m)
	e.emit(0x0F, 0xBA)
	e.modRMMem(4, m)
	e.emit(bit)
}

func (e *x64Emitter) not32(r x64Reg) {
	e.rex(false, 0, 0, r)
	e.emit(0xF7, x64ModRM(3, 2, byte(r)))
}

func (e *x64Emitter) shiftRI(ext byte, r x64Reg, n byte) {
	if n == 0 {
		return
	}
	e.rex(false, 0, 0, r)
	e.emit(0xC1, x64ModRM(3, ext, byte(r)), n)
}

// shiftRCL shifts by CL; the processor masks the count to 5 bits.
func (e *x64Emitter) shiftRCL(ext byte, r x64Reg) {
	e.rex(false, 0, 0, r)
	e.emit(0xD3, x64ModRM(3, ext, byte(r)))
}

func (e *x64Emitter) jmp(l x64Label) {
	e.emit(0xE9)
	e.rel32(l)
}

func (e *x64Emitter) jcc(cond byte, l x64Label) {
	e.emit(0x0F, 0x80|cond)
	e.rel32(l)
}

func (e *x64Emitter) jmpR(r x64Reg) {
	e.rex(false, 0, 0, r)
	e.emit(0xFF, x64ModRM(3, 4, byte(r)))
}

// leaRIP loads the absolute address of a label into dst.
func (e *x64Emitter) leaRIP(dst x64Reg, l x64Label) {
	e.rex(true, dst, 0, 0)
	e.emit(0x8D, x64ModRM(0, byte(dst), 5))
	e.rel32(l)
}

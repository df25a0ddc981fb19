// mme_jit_x64.go - MME to x86-64 recompiler

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

/*
mme_jit_x64.go - Macro JIT Backend

Translates a macro into straight-line x86-64 code, one block per
instruction word in address order. The generated code never calls back
into Go. Sends are appended to a queue inside macroJITState; the code
returns to the Go driver (a "yield") whenever the queue fills, a register
read is needed, the macro exits or a fault is detected. The driver drains
the queue into CallMethod, services the read, and re-enters at the saved
resume address.

Native register assignment:

	RBX  macroJITState pointer
	R12  next parameter pointer
	R13  end of parameters
	R14D method address register
	R15  branch holder (delay-slot continuation, zero outside a delay slot)
	EAX  instruction result
	ECX, EDX scratch

All other macro state lives in macroJITState. R12, R14 and R15 are written
back on every yield and reloaded by the prologue.

Delay slots: a taken branch without annul stores its target in R15 and
falls into the next word. Every non-branch word ends with a check of R15
and jumps through it when set. An exit stores the exit stub in R15 the
same way, so the following word runs as its delay slot. Programs without
any non-annulled branch only ever hold the exit request in R15, and test
it with a single conditional jump.
*/

package main

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
	"unsafe"

	"golang.org/x/arch/x86/x86asm"
)

type macroJITSend struct {
	method uint32
	value  uint32
}

// macroJITState is shared between the driver and generated code. Field
// offsets are baked into the code through unsafe.Offsetof.
type macroJITState struct {
	registers     [MME_NUM_REGISTERS]uint32
	carry         uint32
	methodAddress uint32
	params        uintptr
	paramsEnd     uintptr
	branchHolder  uintptr
	resume        uintptr
	yieldReason   uint32
	yieldValue    uint32
	yieldPC       uint32
	sendCount     uint32
	sends         [MME_JIT_SEND_QUEUE]macroJITSend
}

var (
	jitOffRegisters     = int32(unsafe.Offsetof(macroJITState{}.registers))
	jitOffCarry         = int32(unsafe.Offsetof(macroJITState{}.carry))
	jitOffMethodAddress = int32(unsafe.Offsetof(macroJITState{}.methodAddress))
	jitOffParams        = int32(unsafe.Offsetof(macroJITState{}.params))
	jitOffParamsEnd     = int32(unsafe.Offsetof(macroJITState{}.paramsEnd))
	jitOffBranchHolder  = int32(unsafe.Offsetof(macroJITState{}.branchHolder))
	jitOffResume        = int32(unsafe.Offsetof(macroJITState{}.resume))
	jitOffYieldReason   = int32(unsafe.Offsetof(macroJITState{}.yieldReason))
	jitOffYieldValue    = int32(unsafe.Offsetof(macroJITState{}.yieldValue))
	jitOffYieldPC       = int32(unsafe.Offsetof(macroJITState{}.yieldPC))
	jitOffSendCount     = int32(unsafe.Offsetof(macroJITState{}.sendCount))
	jitOffSends         = int32(unsafe.Offsetof(macroJITState{}.sends))
)

// Yield reasons returned by generated code
const (
	jitYieldExit uint32 = iota + 1
	jitYieldFlush
	jitYieldRead
	jitYieldParamOverrun
	jitYieldBranchInDelaySlot
	jitYieldUnsupported
	jitYieldPCOutOfRange
)

func jitYieldError(reason uint32) error {
	switch reason {
	case jitYieldParamOverrun:
		return ErrMacroParameterOverrun
	case jitYieldBranchInDelaySlot:
		return ErrMacroBranchInDelaySlot
	case jitYieldUnsupported:
		return ErrMacroUnsupportedOperation
	case jitYieldPCOutOfRange:
		return ErrMacroPCOutOfRange
	}
	return fmt.Errorf("unknown JIT yield reason %d", reason)
}

const (
	jitState    = x64RBX
	jitParams   = x64R12
	jitParamEnd = x64R13
	jitMethod   = x64R14
	jitBranch   = x64R15
	jitResult   = x64RAX
)

// macroOptimizerFlags are whole-program facts gathered before emission.
type macroOptimizerFlags struct {
	skipCarry    bool // no AddWithCarry/SubtractWithBorrow, carry is never observed
	hasDelayedPC bool // at least one branch without annul
}

func scanOptimizerFlags(code []uint32) macroOptimizerFlags {
	flags := macroOptimizerFlags{skipCarry: true}
	for _, w := range code {
		op := MacroOpcode(w)
		switch op.Operation() {
		case MacroOpALU:
			alu := op.ALUOperation()
			if alu == MacroALUAddWithCarry || alu == MacroALUSubtractWithBorrow {
				flags.skipCarry = false
			}
		case MacroOpBranch:
			if !op.BranchAnnul() {
				flags.hasDelayedPC = true
			}
		}
	}
	return flags
}

type macroJITStub struct {
	label  x64Label
	pc     uint32
	reason uint32
}

type macroJITCompiler struct {
	e     *x64Emitter
	code  []uint32
	flags macroOptimizerFlags

	words       []x64Label
	wordOffsets []int
	outOfRange  map[int]x64Label
	stubs       []macroJITStub
	faults      map[uint32]x64Label
	exit        x64Label
	epilogue    x64Label
}

// macroNativeCode is the output of compileMacroX64.
type macroNativeCode struct {
	bytes       []byte
	wordOffsets []int // native offset of each instruction word
	flags       macroOptimizerFlags
}

// compileMacroX64 emits position independent code for the macro. It runs on
// any host; only executing the result needs amd64.
func compileMacroX64(code []uint32) (*macroNativeCode, error) {
	c := &macroJITCompiler{
		e:          newX64Emitter(),
		code:       code,
		flags:      scanOptimizerFlags(code),
		outOfRange: make(map[int]x64Label),
		faults:     make(map[uint32]x64Label),
	}
	c.words = make([]x64Label, len(code))
	for i := range c.words {
		c.words[i] = c.e.newLabel()
	}
	c.wordOffsets = make([]int, len(code))
	c.exit = c.e.newLabel()
	c.epilogue = c.e.newLabel()

	c.emitPrologue()
	for i := range code {
		c.e.bind(c.words[i])
		c.wordOffsets[i] = c.e.len()
		c.emitWord(i)
		if c.e.len() > MME_JIT_MAX_CODE_SIZE {
			return nil, fmt.Errorf("%w: macro of %d words", ErrMacroCodeBufferFull, len(code))
		}
	}
	c.emitTrailer()

	native, err := c.e.finish()
	if err != nil {
		return nil, err
	}
	if len(native) > MME_JIT_MAX_CODE_SIZE {
		return nil, fmt.Errorf("%w: %d bytes", ErrMacroCodeBufferFull, len(native))
	}
	return &macroNativeCode{bytes: native, wordOffsets: c.wordOffsets, flags: c.flags}, nil
}

func stateField(off int32) x64Mem { return x64Disp(jitState, off) }

func macroRegField(r uint32) x64Mem {
	return x64Disp(jitState, jitOffRegisters+int32(r)*4)
}

// targetLabel resolves a word index. Indices outside the program land on a
// stub that faults with that pc.
func (c *macroJITCompiler) targetLabel(pc int) x64Label {
	if pc >= 0 && pc < len(c.code) {
		return c.words[pc]
	}
	if l, ok := c.outOfRange[pc]; ok {
		return l
	}
	l := c.e.newLabel()
	c.outOfRange[pc] = l
	c.stubs = append(c.stubs, macroJITStub{label: l, pc: uint32(pc), reason: jitYieldPCOutOfRange})
	return l
}

func (c *macroJITCompiler) faultStub(pc int, reason uint32) x64Label {
	l := c.e.newLabel()
	c.stubs = append(c.stubs, macroJITStub{label: l, pc: uint32(pc), reason: reason})
	return l
}

func (c *macroJITCompiler) faultLabel(reason uint32) x64Label {
	if l, ok := c.faults[reason]; ok {
		return l
	}
	l := c.e.newLabel()
	c.faults[reason] = l
	return l
}

func (c *macroJITCompiler) emitPrologue() {
	e := c.e
	for _, r := range []x64Reg{x64RBX, x64RBP, x64R12, x64R13, x64R14, x64R15} {
		e.push(r)
	}
	e.movRR64(jitState, x64RDI)
	e.load64(jitParams, stateField(jitOffParams))
	e.load64(jitParamEnd, stateField(jitOffParamsEnd))
	e.load32(jitMethod, stateField(jitOffMethodAddress))
	e.load64(jitBranch, stateField(jitOffBranchHolder))
	e.load64(x64RAX, stateField(jitOffResume))
	e.aluRR(x64OpTest, x64RAX, x64RAX, true)
	e.jcc(x64CondE, c.targetLabel(0))
	e.jmpR(x64RAX)
}

// emitYield saves the live native registers and returns reason to the
// driver. With a resume label the next entry continues there.
func (c *macroJITCompiler) emitYield(reason uint32, resume *x64Label) {
	e := c.e
	e.store64(stateField(jitOffParams), jitParams)
	e.store32(stateField(jitOffMethodAddress), jitMethod)
	e.store64(stateField(jitOffBranchHolder), jitBranch)
	if resume != nil {
		e.leaRIP(x64RAX, *resume)
	} else {
		e.movRI32(x64RAX, 0)
	}
	e.store64(stateField(jitOffResume), x64RAX)
	e.storeImm32(stateField(jitOffYieldReason), reason)
	e.movRI32(x64RAX, reason)
	e.jmp(c.epilogue)
}

func (c *macroJITCompiler) emitTrailer() {
	e := c.e
	// Falling off the last word is a fetch at len(code), unless an exit is
	// pending: its delay slot would be past the end, so the macro stops.
	end := c.targetLabel(len(c.code))
	e.bind(end)
	if c.flags.hasDelayedPC {
		e.leaRIP(x64RAX, c.exit)
		e.aluRR(x64OpCmp, jitBranch, x64RAX, true)
		e.jcc(x64CondE, c.exit)
	} else {
		e.aluRR(x64OpTest, jitBranch, jitBranch, true)
		e.jcc(x64CondNE, c.exit)
	}
	e.storeImm32(stateField(jitOffYieldPC), uint32(len(c.code)))
	e.jmp(c.faultLabel(jitYieldPCOutOfRange))

	for _, s := range c.stubs {
		if e.bound(s.label) {
			continue
		}
		e.bind(s.label)
		e.storeImm32(stateField(jitOffYieldPC), s.pc)
		e.jmp(c.faultLabel(s.reason))
	}

	e.bind(c.exit)
	c.emitYield(jitYieldExit, nil)

	for _, reason := range []uint32{jitYieldParamOverrun, jitYieldBranchInDelaySlot, jitYieldUnsupported, jitYieldPCOutOfRange} {
		l, ok := c.faults[reason]
		if !ok {
			continue
		}
		e.bind(l)
		c.emitYield(reason, nil)
	}

	e.bind(c.epilogue)
	for _, r := range []x64Reg{x64R15, x64R14, x64R13, x64R12, x64RBP, x64RBX} {
		e.pop(r)
	}
	e.ret()
}

func (c *macroJITCompiler) loadReg(dst x64Reg, r uint32) {
	if r == MME_ZERO_REGISTER {
		c.e.movRI32(dst, 0)
		return
	}
	c.e.load32(dst, macroRegField(r))
}

func (c *macroJITCompiler) storeReg(r uint32, src x64Reg) {
	if r == MME_ZERO_REGISTER {
		return
	}
	c.e.store32(macroRegField(r), src)
}

func (c *macroJITCompiler) setCarryConst(v bool) {
	if c.flags.skipCarry {
		return
	}
	var imm uint32
	if v {
		imm = 1
	}
	c.e.storeImm32(stateField(jitOffCarry), imm)
}

func (c *macroJITCompiler) emitWord(i int) {
	op := MacroOpcode(c.code[i])
	e := c.e

	switch op.Operation() {
	case MacroOpALU:
		if !op.ALUOperation().valid() {
			e.jmp(c.faultStub(i, jitYieldUnsupported))
			return
		}
		if !c.emitZeroFoldedALU(op) {
			c.emitALU(op)
		}
		c.emitResult(i, op.ResultOperation(), op.Dst())

	case MacroOpAddImmediate:
		switch {
		case op.Dst() == MME_ZERO_REGISTER && op.ResultOperation() == MacroResultMove:
			// no observable effect
		case c.redundantSetMethod(i):
			// the next word replaces both the register and the method address
		default:
			c.loadImmediateSum(op)
			c.emitResult(i, op.ResultOperation(), op.Dst())
		}

	case MacroOpExtractInsert:
		c.loadReg(jitResult, op.SrcA())
		c.loadReg(x64RCX, op.SrcB())
		e.shiftRI(x64ShiftRight, x64RCX, byte(op.BfSrcBit()))
		e.aluRI(x64OpAnd, x64RCX, int32(op.BitfieldMask()), false)
		e.shiftRI(x64ShiftLeft, x64RCX, byte(op.BfDstBit()))
		e.aluRI(x64OpAnd, jitResult, int32(^(op.BitfieldMask() << op.BfDstBit())), false)
		e.aluRR(x64OpOr, jitResult, x64RCX, false)
		c.emitResult(i, op.ResultOperation(), op.Dst())

	case MacroOpExtractShiftLeftImmediate:
		c.loadReg(x64RCX, op.SrcA())
		c.loadReg(jitResult, op.SrcB())
		e.shiftRCL(x64ShiftRight, jitResult)
		e.aluRI(x64OpAnd, jitResult, int32(op.BitfieldMask()), false)
		e.shiftRI(x64ShiftLeft, jitResult, byte(op.BfDstBit()))
		c.emitResult(i, op.ResultOperation(), op.Dst())

	case MacroOpExtractShiftLeftRegister:
		c.loadReg(x64RCX, op.SrcA())
		c.loadReg(jitResult, op.SrcB())
		e.shiftRI(x64ShiftRight, jitResult, byte(op.BfSrcBit()))
		e.aluRI(x64OpAnd, jitResult, int32(op.BitfieldMask()), false)
		e.shiftRCL(x64ShiftLeft, jitResult)
		c.emitResult(i, op.ResultOperation(), op.Dst())

	case MacroOpRead:
		c.loadImmediateSum(op)
		e.store32(stateField(jitOffYieldValue), jitResult)
		back := e.newLabel()
		c.emitYield(jitYieldRead, &back)
		e.bind(back)
		e.load32(jitResult, stateField(jitOffYieldValue))
		c.emitResult(i, op.ResultOperation(), op.Dst())

	case MacroOpBranch:
		c.emitBranch(i, op)
		return

	default:
		e.jmp(c.faultStub(i, jitYieldUnsupported))
		return
	}

	c.emitTail(i, op.IsExit())
}

// loadImmediateSum computes src_a + immediate into the result register.
func (c *macroJITCompiler) loadImmediateSum(op MacroOpcode) {
	if op.SrcA() == MME_ZERO_REGISTER {
		c.e.movRI32(jitResult, uint32(op.Immediate()))
		return
	}
	c.loadReg(jitResult, op.SrcA())
	if imm := op.Immediate(); imm != 0 {
		c.e.aluRI(x64OpAdd, jitResult, imm, false)
	}
}

// emitZeroFoldedALU handles ALU words with an r0 operand whose result (and
// carry) is known without the operation.
func (c *macroJITCompiler) emitZeroFoldedALU(op MacroOpcode) bool {
	a, b := op.SrcA(), op.SrcB()
	if a != MME_ZERO_REGISTER && b != MME_ZERO_REGISTER {
		return false
	}
	other := a
	if a == MME_ZERO_REGISTER {
		other = b
	}
	switch op.ALUOperation() {
	case MacroALUAdd:
		c.loadReg(jitResult, other)
		c.setCarryConst(false)
	case MacroALUSubtract:
		if b != MME_ZERO_REGISTER {
			return false
		}
		c.loadReg(jitResult, a)
		c.setCarryConst(true)
	case MacroALUXor, MacroALUOr:
		c.loadReg(jitResult, other)
	case MacroALUAnd:
		c.e.movRI32(jitResult, 0)
	case MacroALUAndNot:
		if b == MME_ZERO_REGISTER {
			c.loadReg(jitResult, a)
		} else {
			c.e.movRI32(jitResult, 0)
		}
	case MacroALUNand:
		c.e.movRI32(jitResult, 0xFFFFFFFF)
	default:
		return false
	}
	return true
}

func (c *macroJITCompiler) emitALU(op MacroOpcode) {
	e := c.e
	carry := stateField(jitOffCarry)
	c.loadReg(jitResult, op.SrcA())
	c.loadReg(x64RCX, op.SrcB())
	switch op.ALUOperation() {
	case MacroALUAdd:
		e.aluRR(x64OpAdd, jitResult, x64RCX, false)
		if !c.flags.skipCarry {
			e.setccMem(x64CondB, carry)
		}
	case MacroALUAddWithCarry:
		e.btMem(carry, 0)
		e.aluRR(x64OpAdc, jitResult, x64RCX, false)
		e.setccMem(x64CondB, carry)
	case MacroALUSubtract:
		e.aluRR(x64OpSub, jitResult, x64RCX, false)
		if !c.flags.skipCarry {
			e.setccMem(x64CondAE, carry)
		}
	case MacroALUSubtractWithBorrow:
		// carry set means no borrow, the inverse of CF
		e.btMem(carry, 0)
		e.cmc()
		e.aluRR(x64OpSbb, jitResult, x64RCX, false)
		e.setccMem(x64CondAE, carry)
	case MacroALUXor:
		e.aluRR(x64OpXor, jitResult, x64RCX, false)
	case MacroALUOr:
		e.aluRR(x64OpOr, jitResult, x64RCX, false)
	case MacroALUAnd:
		e.aluRR(x64OpAnd, jitResult, x64RCX, false)
	case MacroALUAndNot:
		e.not32(x64RCX)
		e.aluRR(x64OpAnd, jitResult, x64RCX, false)
	case MacroALUNand:
		e.aluRR(x64OpAnd, jitResult, x64RCX, false)
		e.not32(jitResult)
	}
}

// redundantSetMethod reports whether word i is an AddImmediate whose
// register and method address writes are both overwritten by word i+1
// before anything can observe them.
func (c *macroJITCompiler) redundantSetMethod(i int) bool {
	op := MacroOpcode(c.code[i])
	if op.Operation() != MacroOpAddImmediate || op.ResultOperation() != MacroResultMoveAndSetMethod || op.IsExit() {
		return false
	}
	if i > 0 {
		prev := MacroOpcode(c.code[i-1])
		if prev.IsExit() || prev.Operation() == MacroOpBranch {
			return false
		}
	}
	if i+1 >= len(c.code) {
		return false
	}
	next := MacroOpcode(c.code[i+1])
	switch next.Operation() {
	case MacroOpBranch, MacroOpUnused:
		return false
	case MacroOpALU:
		if !next.ALUOperation().valid() {
			return false
		}
	}
	return next.ResultOperation() == MacroResultMoveAndSetMethod &&
		next.Dst() == op.Dst() &&
		!next.readsRegister(op.Dst())
}

// fetchParameter loads the next parameter into dst or faults.
func (c *macroJITCompiler) fetchParameter(i int, dst x64Reg) {
	e := c.e
	e.aluRR(x64OpCmp, jitParams, jitParamEnd, true)
	e.jcc(x64CondAE, c.faultStub(i, jitYieldParamOverrun))
	e.load32(dst, x64Disp(jitParams, 0))
	e.aluRI(x64OpAdd, jitParams, 4, true)
}

func (c *macroJITCompiler) setMethod(src x64Reg) {
	c.e.movRR32(jitMethod, src)
}

// emitSend queues (method address, EDX) and advances the method address.
// A full queue yields so the driver can drain it.
func (c *macroJITCompiler) emitSend() {
	e := c.e
	e.load32(x64RCX, stateField(jitOffSendCount))
	e.movRR32(x64RAX, jitMethod)
	e.aluRI(x64OpAnd, x64RAX, MME_METHOD_ADDRESS_MASK, false)
	e.store32(x64Indexed(jitState, x64RCX, 3, jitOffSends), x64RAX)
	e.store32(x64Indexed(jitState, x64RCX, 3, jitOffSends+4), x64RDX)
	e.aluRI(x64OpAdd, x64RCX, 1, false)
	e.store32(stateField(jitOffSendCount), x64RCX)

	e.movRR32(x64RAX, jitMethod)
	e.shiftRI(x64ShiftRight, x64RAX, MME_METHOD_INCREMENT_SHIFT)
	e.aluRI(x64OpAnd, x64RAX, MME_METHOD_INCREMENT_MASK, false)
	e.aluRR(x64OpAdd, x64RAX, jitMethod, false)
	e.aluRI(x64OpAnd, x64RAX, MME_METHOD_ADDRESS_MASK, false)
	e.aluRI(x64OpAnd, jitMethod, ^int32(MME_METHOD_ADDRESS_MASK), false)
	e.aluRR(x64OpOr, jitMethod, x64RAX, false)

	done := e.newLabel()
	e.aluRI(x64OpCmp, x64RCX, MME_JIT_SEND_QUEUE, false)
	e.jcc(x64CondB, done)
	c.emitYield(jitYieldFlush, &done)
	e.bind(done)
}

// emitResult applies the result operation to EAX.
func (c *macroJITCompiler) emitResult(i int, r MacroResultOperation, dst uint32) {
	e := c.e
	switch r {
	case MacroResultIgnoreAndFetch:
		c.fetchParameter(i, x64RCX)
		c.storeReg(dst, x64RCX)
	case MacroResultMove:
		c.storeReg(dst, jitResult)
	case MacroResultMoveAndSetMethod:
		c.storeReg(dst, jitResult)
		c.setMethod(jitResult)
	case MacroResultFetchAndSend:
		c.fetchParameter(i, x64RCX)
		c.storeReg(dst, x64RCX)
		e.movRR32(x64RDX, jitResult)
		c.emitSend()
	case MacroResultMoveAndSend:
		c.storeReg(dst, jitResult)
		e.movRR32(x64RDX, jitResult)
		c.emitSend()
	case MacroResultFetchAndSetMethod:
		c.fetchParameter(i, x64RCX)
		c.storeReg(dst, x64RCX)
		c.setMethod(jitResult)
	case MacroResultMoveAndSetMethodFetchAndSend:
		c.storeReg(dst, jitResult)
		c.setMethod(jitResult)
		c.fetchParameter(i, x64RDX)
		c.emitSend()
	case MacroResultMoveAndSetMethodSend:
		c.storeReg(dst, jitResult)
		c.setMethod(jitResult)
		e.movRR32(x64RDX, jitResult)
		e.shiftRI(x64ShiftRight, x64RDX, MME_METHOD_INCREMENT_SHIFT)
		e.aluRI(x64OpAnd, x64RDX, MME_METHOD_INCREMENT_MASK, false)
		c.emitSend()
	}
}

// emitTail decides where control goes after a non-branch word.
func (c *macroJITCompiler) emitTail(i int, exit bool) {
	e := c.e
	if !c.flags.hasDelayedPC {
		// R15 can only hold a pending exit.
		e.aluRR(x64OpTest, jitBranch, jitBranch, true)
		e.jcc(x64CondNE, c.exit)
		if exit {
			e.storeImm32(stateField(jitOffYieldPC), uint32(i))
			e.movRI32(jitBranch, 1)
		}
		return
	}

	// A word inside a delay slot continues at the holder, exit flag or not.
	next := e.newLabel()
	e.aluRR(x64OpTest, jitBranch, jitBranch, true)
	e.jcc(x64CondE, next)
	c.takeBranchHolder()
	e.bind(next)
	if exit {
		e.storeImm32(stateField(jitOffYieldPC), uint32(i))
		e.leaRIP(jitBranch, c.exit)
	}
}

func (c *macroJITCompiler) takeBranchHolder() {
	c.e.movRR64(x64RAX, jitBranch)
	c.e.aluRR(x64OpXor, jitBranch, jitBranch, false)
	c.e.jmpR(x64RAX)
}

func (c *macroJITCompiler) emitBranch(i int, op MacroOpcode) {
	e := c.e
	e.aluRR(x64OpTest, jitBranch, jitBranch, true)
	e.jcc(x64CondNE, c.faultStub(i, jitYieldBranchInDelaySlot))

	target := c.targetLabel(i + int(op.BranchTarget()))
	takeIfZero := op.BranchCondition() == MacroBranchZero

	notTaken := e.newLabel()
	if op.SrcA() == MME_ZERO_REGISTER {
		if !takeIfZero {
			// never taken
			if op.IsExit() {
				c.emitTail(i, true)
			}
			return
		}
	} else {
		c.loadReg(jitResult, op.SrcA())
		e.aluRR(x64OpTest, jitResult, jitResult, false)
		if takeIfZero {
			e.jcc(x64CondNE, notTaken)
		} else {
			e.jcc(x64CondE, notTaken)
		}
	}

	if op.BranchAnnul() {
		e.jmp(target)
	} else {
		e.leaRIP(jitBranch, target)
		e.jmp(c.targetLabel(i + 1))
	}

	e.bind(notTaken)
	if op.IsExit() {
		c.emitTail(i, true)
	}
}

// MacroJIT is the x86-64 recompiling backend.
type MacroJIT struct {
	host MacroHost
}

// NewMacroJIT fails with ErrMacroJITUnavailable on hosts that cannot run
// generated code.
func NewMacroJIT(host MacroHost) (*MacroJIT, error) {
	if err := macroJITSupported(); err != nil {
		return nil, err
	}
	return &MacroJIT{host: host}, nil
}

func (m *MacroJIT) Name() string { return "jit-x64" }

func (m *MacroJIT) Compile(code []uint32) (CachedMacro, error) {
	native, err := compileMacroX64(code)
	if err != nil {
		return nil, err
	}
	mem, err := mapMacroCode(native.bytes)
	if err != nil {
		return nil, err
	}
	return &macroJITProgram{
		host:   m.host,
		code:   slices.Clone(code),
		native: native,
		mem:    mem,
		state:  new(macroJITState),
	}, nil
}

type macroJITProgram struct {
	host   MacroHost
	code   []uint32
	native *macroNativeCode
	mem    *macroExecMemory
	state  *macroJITState
	params []uint32
	method uint32
}

func (p *macroJITProgram) Execute(parameters []uint32, method uint32) error {
	s := p.state
	*s = macroJITState{}
	p.method = method
	if len(parameters) == 0 {
		return newMacroFault(method, 0, 0, ErrMacroNoParameters)
	}
	if p.mem == nil {
		return fmt.Errorf("macro 0x%X: %w: program destroyed", method, ErrMacroJITUnavailable)
	}

	p.params = append(p.params[:0], parameters...)
	base := uintptr(unsafe.Pointer(&p.params[0]))
	s.registers[MME_PARAM_REGISTER] = p.params[0]
	s.params = base + 4
	s.paramsEnd = base + uintptr(len(p.params))*4
	defer runtime.KeepAlive(p.params)

	for {
		reason := runMacroCode(p.mem.entry(), s)
		p.drainSends()
		switch reason {
		case jitYieldFlush:
		case jitYieldRead:
			s.yieldValue = p.host.GetRegisterValue(s.yieldValue)
		case jitYieldExit:
			if s.params != s.paramsEnd {
				return p.fault(ErrMacroParameterMismatch)
			}
			return nil
		default:
			return p.fault(jitYieldError(reason))
		}
	}
}

func (p *macroJITProgram) drainSends() {
	s := p.state
	for i := uint32(0); i < s.sendCount; i++ {
		p.host.CallMethod(s.sends[i].method, s.sends[i].value, true)
	}
	s.sendCount = 0
}

func (p *macroJITProgram) fault(err error) error {
	pc := p.state.yieldPC
	var word uint32
	if int(pc) < len(p.code) {
		word = p.code[pc]
	}
	return newMacroFault(p.method, pc, word, err)
}

func (p *macroJITProgram) Registers() [MME_NUM_REGISTERS]uint32 { return p.state.registers }

func (p *macroJITProgram) CarryFlag() bool { return p.state.carry != 0 }

// CarryTracked is false for programs compiled without carry updates, where
// CarryFlag stays false whatever the last Add or Subtract produced.
func (p *macroJITProgram) CarryTracked() bool { return !p.native.flags.skipCarry }

func (p *macroJITProgram) MethodAddress() MacroMethodAddress {
	return MacroMethodAddress(p.state.methodAddress)
}

// Destroy unmaps the native code. The program faults if executed again.
func (p *macroJITProgram) Destroy() {
	if p.mem == nil {
		return
	}
	if err := p.mem.release(); err != nil {
		mmeLogf("releasing JIT code: %v", err)
	}
	p.mem = nil
}

// Disassembly lists the generated machine code with the instruction word
// each block was compiled from.
func (p *macroJITProgram) Disassembly() string {
	return disassembleNative(p.native, p.code)
}

func disassembleNative(native *macroNativeCode, code []uint32) string {
	var b strings.Builder
	fmt.Fprintf(&b, "; %d bytes, skip_carry=%v, delayed_pc=%v\n",
		len(native.bytes), native.flags.skipCarry, native.flags.hasDelayedPC)
	next := 0
	buf := native.bytes
	for off := 0; off < len(buf); {
		for next < len(native.wordOffsets) && native.wordOffsets[next] <= off {
			fmt.Fprintf(&b, "; word %d: %08X\n", next, code[next])
			next++
		}
		inst, err := x86asm.Decode(buf[off:], 64)
		if err != nil {
			fmt.Fprintf(&b, "%04x  %02x  (bad)\n", off, buf[off])
			off++
			continue
		}
		fmt.Fprintf(&b, "%04x  %-24x %s\n", off, buf[off:off+inst.Len], x86asm.IntelSyntax(inst, uint64(off), nil))
		off += inst.Len
	}
	return b.String()
}

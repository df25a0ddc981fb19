// mme_interpreter_test.go - Tests for the macro interpreter

package main

import (
	"errors"
	"testing"
)

func expectMacroFault(t *testing.T, err error, want error, pc uint32) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	var fault *MacroFault
	if !errors.As(err, &fault) {
		t.Fatalf("expected *MacroFault, got %T", err)
	}
	if fault.PC != pc {
		t.Fatalf("fault pc: expected %d, got %d", pc, fault.PC)
	}
}

func TestMacroInterpreter_EndToEnd(t *testing.T) {
	code := []uint32{
		encodeMacroALU(MacroALUAdd, MacroResultMove, 1, 0, 0),
		withExit(encodeMacroAddImmediate(MacroResultMove, 0, 0, 0)),
	}
	host, p, err := interpretMacro(t, code, 5)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if r := p.Registers()[1]; r != 0 {
		t.Fatalf("r1: expected 0, got 0x%X", r)
	}
	expectSends(t, host)
}

func TestMacroInterpreter_FirstParameterAndFetch(t *testing.T) {
	code := mustAssemble(t, `
		addi r0, r0, #0x1123 / move.setm
		addi r0, r1, #0 / move.send
		addi r2, r0, #0 / fetch
		addi r0, r2, #0 / move.send .exit
		addi r0, r0, #0 / move
	`)
	host, p, err := interpretMacro(t, code, 0xAAAA, 0xBBBB)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	expectSends(t, host, [2]uint32{0x123, 0xAAAA}, [2]uint32{0x124, 0xBBBB})
	if p.Registers()[1] != 0xAAAA || p.Registers()[2] != 0xBBBB {
		t.Fatalf("registers: %08X", p.Registers())
	}
	if p.nextParam != 2 {
		t.Fatalf("fetch cursor: expected 2, got %d", p.nextParam)
	}
	for _, c := range host.calls {
		if !c.Last {
			t.Fatal("macro sends must be single-method writes")
		}
	}
}

// carryProgram computes op(p0, p1) into r3 and copies the carry into r4.
func carryProgram(t *testing.T, op string) []uint32 {
	return mustAssemble(t, `
		addi r2, r0, #0 / fetch
		`+op+` r3, r1, r2 / move
		addc r4, r0, r0 / move .exit
		addi r0, r0, #0 / move
	`)
}

func TestMacroInterpreter_CarryConventions(t *testing.T) {
	tests := []struct {
		name   string
		op     string
		a, b   uint32
		result uint32
		carry  uint32
	}{
		{"add no overflow", "add", 1, 2, 3, 0},
		{"add exactly 2^32", "add", 0x80000000, 0x80000000, 0, 1},
		{"add max plus one", "add", 0xFFFFFFFF, 1, 0, 1},
		{"add max plus zero", "add", 0xFFFFFFFF, 0, 0xFFFFFFFF, 0},
		{"sub equal", "sub", 5, 5, 0, 1},
		{"sub greater", "sub", 5, 4, 1, 1},
		{"sub borrow", "sub", 4, 5, 0xFFFFFFFF, 0},
		{"sub zero minus one", "sub", 0, 1, 0xFFFFFFFF, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, p, err := interpretMacro(t, carryProgram(t, tt.op), tt.a, tt.b)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			regs := p.Registers()
			if regs[3] != tt.result {
				t.Fatalf("result: expected 0x%X, got 0x%X", tt.result, regs[3])
			}
			if regs[4] != tt.carry {
				t.Fatalf("carry: expected %d, got %d", tt.carry, regs[4])
			}
		})
	}
}

func TestMacroInterpreter_AddWithCarryIn(t *testing.T) {
	code := mustAssemble(t, `
		addi r2, r0, #0 / fetch
		add r5, r1, r1 / move       ; 0x80000000*2 sets carry
		addc r3, r2, r0 / move .exit
		addi r0, r0, #0 / move
	`)
	_, p, err := interpretMacro(t, code, 0x80000000, 41)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := p.Registers()[3]; got != 42 {
		t.Fatalf("addc: expected 42, got %d", got)
	}
	if p.CarryFlag() {
		t.Fatal("addc without overflow must clear carry")
	}
}

func TestMacroInterpreter_SubtractWithBorrow(t *testing.T) {
	tests := []struct {
		name   string
		setup  string
		result uint32
	}{
		// 0 - 0 does not borrow: carry set, nothing extra subtracted
		{"carry set", "sub r5, r0, r0 / move", 7},
		// 0 - p0 borrows: carry clear, one extra subtracted
		{"carry clear", "sub r5, r0, r1 / move", 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := mustAssemble(t, `
				addi r2, r0, #0 / fetch
				`+tt.setup+`
				subb r3, r1, r2 / move .exit
				addi r0, r0, #0 / move
			`)
			_, p, err := interpretMacro(t, code, 10, 3)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if got := p.Registers()[3]; got != tt.result {
				t.Fatalf("subb: expected %d, got %d", tt.result, got)
			}
		})
	}
}

func TestMacroInterpreter_LogicOperations(t *testing.T) {
	tests := []struct {
		op   string
		want uint32
	}{
		{"xor", 0xF0F0 ^ 0xFF00},
		{"or", 0xF0F0 | 0xFF00},
		{"and", 0xF0F0 & 0xFF00},
		{"andn", 0xF0F0 &^ 0xFF00},
		{"nand", ^uint32(0xF0F0 & 0xFF00)},
	}
	for _, tt := range tests {
		_, p, err := interpretMacro(t, carryProgram(t, tt.op), 0xF0F0, 0xFF00)
		if err != nil {
			t.Fatalf("%s: %v", tt.op, err)
		}
		if got := p.Registers()[3]; got != tt.want {
			t.Fatalf("%s: expected 0x%08X, got 0x%08X", tt.op, tt.want, got)
		}
	}
}

func TestMacroInterpreter_RegisterZero(t *testing.T) {
	code := mustAssemble(t, `
		addi r0, r0, #7 / move
		addi r0, r0, #9 / fetch
		add r0, r1, r1 / move.setm
		addi r2, r0, #0 / move .exit
		addi r0, r0, #0 / move
	`)
	_, p, err := interpretMacro(t, code, 0x10, 42)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	regs := p.Registers()
	if regs[0] != 0 || regs[2] != 0 {
		t.Fatalf("r0 must read zero: r0=%X r2=%X", regs[0], regs[2])
	}
	if p.MethodAddress().Address() != 0x20 {
		t.Fatalf("setm through r0 still sets the method: got 0x%X", p.MethodAddress().Address())
	}
}

func TestMacroInterpreter_DelaySlot(t *testing.T) {
	tests := []struct {
		name   string
		branch string
		want   [][2]uint32
	}{
		{"taken", "bz r0, +3", [][2]uint32{{1, 0xA}, {2, 0xC}}},
		{"annulled", "bz.a r0, +3", [][2]uint32{{1, 0xC}}},
		{"not taken", "bnz r0, +3", [][2]uint32{{1, 0xA}, {2, 0xB}, {3, 0xC}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := mustAssemble(t, `
				addi r0, r0, #0x1001 / move.setm
				`+tt.branch+`
				addi r0, r0, #0xA / move.send
				addi r0, r0, #0xB / move.send
				addi r0, r0, #0xC / move.send .exit
				addi r0, r0, #0 / move
			`)
			host, _, err := interpretMacro(t, code, 0)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			expectSends(t, host, tt.want...)
		})
	}
}

func TestMacroInterpreter_BackwardBranchLoop(t *testing.T) {
	// Send p0 down to 1, counting with a label target.
	code := mustAssemble(t, `
		addi r0, r0, #0x0040 / move.setm
	loop:
		addi r0, r1, #0 / move.send
		addi r1, r1, #-1 / move
		bnz r1, loop
		addi r0, r0, #0 / move      ; delay slot
		addi r0, r0, #0 / move .exit
		addi r0, r0, #0 / move
	`)
	host, _, err := interpretMacro(t, code, 3)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// increment 0: every send lands on 0x40
	expectSends(t, host, [2]uint32{0x40, 3}, [2]uint32{0x40, 2}, [2]uint32{0x40, 1})
}

func TestMacroInterpreter_ExitDelay(t *testing.T) {
	code := mustAssemble(t, `
		addi r0, r0, #0x1001 / move.setm
		addi r0, r0, #1 / move.send .exit
		addi r0, r0, #2 / move.send
		addi r0, r0, #3 / move.send
	`)
	host, _, err := interpretMacro(t, code, 0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	expectSends(t, host, [2]uint32{1, 1}, [2]uint32{2, 2})
}

func TestMacroInterpreter_ExitInDelaySlotIgnored(t *testing.T) {
	code := mustAssemble(t, `
		addi r0, r0, #0x1001 / move.setm
		bz r0, +2
		addi r0, r0, #2 / move.send .exit
		addi r0, r0, #3 / move.send .exit
		addi r0, r0, #4 / move.send
		addi r0, r0, #5 / move.send
	`)
	host, _, err := interpretMacro(t, code, 0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	expectSends(t, host, [2]uint32{1, 2}, [2]uint32{2, 3}, [2]uint32{3, 4})
}

func TestMacroInterpreter_ParameterConsumption(t *testing.T) {
	code := mustAssemble(t, `
		addi r2, r0, #0 / fetch
		addi r3, r0, #0 / fetch .exit
		addi r0, r0, #0 / move
	`)

	_, p, err := interpretMacro(t, code, 1, 2, 3)
	if err != nil {
		t.Fatalf("K+1 parameters: %v", err)
	}
	if p.nextParam != 3 {
		t.Fatalf("fetch cursor: expected 3, got %d", p.nextParam)
	}

	_, _, err = interpretMacro(t, code, 1, 2)
	expectMacroFault(t, err, ErrMacroParameterOverrun, 1)

	_, _, err = interpretMacro(t, code, 1, 2, 3, 4)
	expectMacroFault(t, err, ErrMacroParameterMismatch, 1)

	_, _, err = interpretMacro(t, code)
	expectMacroFault(t, err, ErrMacroNoParameters, 0)
}

func TestMacroInterpreter_Faults(t *testing.T) {
	tests := []struct {
		name string
		code []uint32
		want error
		pc   uint32
	}{
		{
			"branch in delay slot",
			[]uint32{encodeMacroBranch(MacroBranchZero, false, 0, 2), encodeMacroBranch(MacroBranchZero, false, 0, 1)},
			ErrMacroBranchInDelaySlot, 1,
		},
		{"unused operation", []uint32{uint32(MacroOpUnused)}, ErrMacroUnsupportedOperation, 0},
		{"undefined alu", []uint32{encodeMacroALU(5, MacroResultMove, 1, 1, 1)}, ErrMacroUnsupportedOperation, 0},
		{"fall off the end", []uint32{encodeMacroAddImmediate(MacroResultMove, 2, 0, 1)}, ErrMacroPCOutOfRange, 1},
		{
			"branch out of range",
			[]uint32{encodeMacroBranch(MacroBranchZero, true, 0, -4)},
			ErrMacroPCOutOfRange, 0xFFFFFFFC,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := interpretMacro(t, tt.code, 1)
			expectMacroFault(t, err, tt.want, tt.pc)
		})
	}
}

func TestMacroInterpreter_SendsBeforeFaultStay(t *testing.T) {
	code := mustAssemble(t, `
		addi r0, r0, #0x1001 / move.setm
		addi r0, r0, #5 / move.send
		addi r2, r0, #0 / fetch
	`)
	host, _, err := interpretMacro(t, code, 0)
	expectMacroFault(t, err, ErrMacroParameterOverrun, 2)
	expectSends(t, host, [2]uint32{1, 5})
}

func TestMacroInterpreter_ResultOperations(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		params []uint32
		want   [][2]uint32
	}{
		{
			"fetch and send",
			"addi r0, r0, #0x1010 / move.setm\naddi r2, r0, #0x77 / fetch.send .exit\naddi r0, r0, #0 / move",
			[]uint32{0, 9},
			[][2]uint32{{0x10, 0x77}},
		},
		{
			"fetch and set method",
			"addi r2, r0, #0x1030 / fetch.setm\naddi r0, r2, #0 / move.send .exit\naddi r0, r0, #0 / move",
			[]uint32{0, 0x55},
			[][2]uint32{{0x30, 0x55}},
		},
		{
			"set method fetch and send",
			"addi r0, r0, #0x1020 / move.setm.fetch.send .exit\naddi r0, r0, #0 / move",
			[]uint32{0, 0x99},
			[][2]uint32{{0x20, 0x99}},
		},
		{
			"set method send increment",
			"addi r0, r0, #0x3050 / move.setm.send\naddi r0, r0, #1 / move.send .exit\naddi r0, r0, #0 / move",
			[]uint32{0},
			[][2]uint32{{0x50, 3}, {0x53, 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, _, err := interpretMacro(t, mustAssemble(t, tt.src), tt.params...)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			expectSends(t, host, tt.want...)
		})
	}
}

func TestMacroInterpreter_Bitfields(t *testing.T) {
	tests := []struct {
		name string
		src  string
		a, b uint32
		want uint32
	}{
		// r3 = r1 with bits [16,24) replaced by r2 bits [4,12)
		{"extins", "extins r3, r1, r2, #4, #8, #16 / move", 0xFFFFFFFF, 0xAB0, 0xFFABFFFF},
		// r3 = ((r2 >> r1) & 0xF) << 8
		{"extshli", "extshli r3, r1, r2, #4, #8 / move", 4, 0x00000560, 0x600},
		// shift amounts wrap at 32
		{"extshli wraps", "extshli r3, r1, r2, #4, #8 / move", 36, 0x00000560, 0x600},
		// r3 = ((r2 >> 8) & 0xFF) << r1
		{"extshlr", "extshlr r3, r1, r2, #8, #8 / move", 4, 0x0000AB00, 0xAB0},
		{"extshlr wraps", "extshlr r3, r1, r2, #8, #8 / move", 33, 0x0000AB00, 0x156},
		{"size zero", "extins r3, r1, r2, #0, #0, #0 / move", 0x1234, 0xFFFF, 0x1234},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := mustAssemble(t, "addi r2, r0, #0 / fetch\n"+tt.src+" .exit\naddi r0, r0, #0 / move")
			_, p, err := interpretMacro(t, code, tt.a, tt.b)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if got := p.Registers()[3]; got != tt.want {
				t.Fatalf("expected 0x%08X, got 0x%08X", tt.want, got)
			}
		})
	}
}

func TestMacroInterpreter_Read(t *testing.T) {
	code := mustAssemble(t, `
		read r2, r1, #0x10 / move .exit
		addi r0, r0, #0 / move
	`)
	host := newRecordingHost()
	host.regs[0x110] = 0xCAFE
	prog, _ := NewMacroInterpreter(host).Compile(code)
	p := prog.(*macroInterpreterProgram)
	if err := p.Execute([]uint32{0x100}, 0); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if p.Registers()[2] != 0xCAFE {
		t.Fatalf("read: expected 0xCAFE, got 0x%X", p.Registers()[2])
	}
}

func TestMacroInterpreter_StateResetsBetweenRuns(t *testing.T) {
	code := mustAssemble(t, `
		addi r0, r0, #0x0008 / move.setm
		addi r2, r2, #1 / move.send .exit
		addi r0, r0, #0 / move
	`)
	host := newRecordingHost()
	prog, _ := NewMacroInterpreter(host).Compile(code)
	for i := 0; i < 3; i++ {
		if err := prog.Execute([]uint32{0}, 0); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	expectSends(t, host, [2]uint32{8, 1}, [2]uint32{8, 1}, [2]uint32{8, 1})
}

// mme_x64_emitter_test.go - Tests for the x86-64 instruction emitter

package main

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

// decodeOne decodes the only instruction the emitter produced.
func decodeOne(t *testing.T, e *x64Emitter) x86asm.Inst {
	t.Helper()
	code, err := e.finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		t.Fatalf("decode % x: %v", code, err)
	}
	if inst.Len != len(code) {
		t.Fatalf("decoded %d of %d bytes (% x)", inst.Len, len(code), code)
	}
	return inst
}

func expectMem(t *testing.T, arg x86asm.Arg, base, index x86asm.Reg, disp int64) {
	t.Helper()
	m, ok := arg.(x86asm.Mem)
	if !ok {
		t.Fatalf("expected memory operand, got %v", arg)
	}
	if m.Base != base || m.Index != index || m.Disp != disp {
		t.Fatalf("memory operand: expected base=%v index=%v disp=%d, got %+v", base, index, disp, m)
	}
}

func TestX64Emitter_RegisterForms(t *testing.T) {
	tests := []struct {
		name string
		emit func(e *x64Emitter)
		op   x86asm.Op
		args []x86asm.Arg
	}{
		{"mov r14d imm", func(e *x64Emitter) { e.movRI32(x64R14, 0x1234) }, x86asm.MOV, []x86asm.Arg{x86asm.R14L, x86asm.Imm(0x1234)}},
		{"mov eax zero", func(e *x64Emitter) { e.movRI32(x64RAX, 0) }, x86asm.XOR, []x86asm.Arg{x86asm.EAX, x86asm.EAX}},
		{"add eax ecx", func(e *x64Emitter) { e.aluRR(x64OpAdd, x64RAX, x64RCX, false) }, x86asm.ADD, []x86asm.Arg{x86asm.EAX, x86asm.ECX}},
		{"cmp r15 rax", func(e *x64Emitter) { e.aluRR(x64OpCmp, x64R15, x64RAX, true) }, x86asm.CMP, []x86asm.Arg{x86asm.R15, x86asm.RAX}},
		{"test r15 r15", func(e *x64Emitter) { e.aluRR(x64OpTest, x64R15, x64R15, true) }, x86asm.TEST, []x86asm.Arg{x86asm.R15, x86asm.R15}},
		{"mov rbx rdi", func(e *x64Emitter) { e.movRR64(x64RBX, x64RDI) }, x86asm.MOV, []x86asm.Arg{x86asm.RBX, x86asm.RDI}},
		{"mov r14d eax", func(e *x64Emitter) { e.movRR32(x64R14, x64RAX) }, x86asm.MOV, []x86asm.Arg{x86asm.R14L, x86asm.EAX}},
		{"and edx imm8", func(e *x64Emitter) { e.aluRI(x64OpAnd, x64RDX, 0x3F, false) }, x86asm.AND, []x86asm.Arg{x86asm.EDX, x86asm.Imm(0x3F)}},
		{"add r12 imm8", func(e *x64Emitter) { e.aluRI(x64OpAdd, x64R12, 4, true) }, x86asm.ADD, []x86asm.Arg{x86asm.R12, x86asm.Imm(4)}},
		{"and eax imm32", func(e *x64Emitter) { e.aluRI(x64OpAnd, x64RAX, 0xFFF, false) }, x86asm.AND, []x86asm.Arg{x86asm.EAX, x86asm.Imm(0xFFF)}},
		{"cmp ecx imm8", func(e *x64Emitter) { e.aluRI(x64OpCmp, x64RCX, 64, false) }, x86asm.CMP, []x86asm.Arg{x86asm.ECX, x86asm.Imm(64)}},
		{"not ecx", func(e *x64Emitter) { e.not32(x64RCX) }, x86asm.NOT, []x86asm.Arg{x86asm.ECX}},
		{"shr eax", func(e *x64Emitter) { e.shiftRI(x64ShiftRight, x64RAX, 12) }, x86asm.SHR, []x86asm.Arg{x86asm.EAX, x86asm.Imm(12)}},
		{"shl eax cl", func(e *x64Emitter) { e.shiftRCL(x64ShiftLeft, x64RAX) }, x86asm.SHL, []x86asm.Arg{x86asm.EAX, x86asm.CL}},
		{"push r15", func(e *x64Emitter) { e.push(x64R15) }, x86asm.PUSH, []x86asm.Arg{x86asm.R15}},
		{"pop rbx", func(e *x64Emitter) { e.pop(x64RBX) }, x86asm.POP, []x86asm.Arg{x86asm.RBX}},
		{"jmp rax", func(e *x64Emitter) { e.jmpR(x64RAX) }, x86asm.JMP, []x86asm.Arg{x86asm.RAX}},
		{"jmp r15", func(e *x64Emitter) { e.jmpR(x64R15) }, x86asm.JMP, []x86asm.Arg{x86asm.R15}},
		{"cmc", func(e *x64Emitter) { e.cmc() }, x86asm.CMC, nil},
		{"ret", func(e *x64Emitter) { e.ret() }, x86asm.RET, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newX64Emitter()
			tt.emit(e)
			inst := decodeOne(t, e)
			if inst.Op != tt.op {
				t.Fatalf("op: expected %v, got %v", tt.op, inst.Op)
			}
			for i, want := range tt.args {
				if inst.Args[i] != want {
					t.Fatalf("arg %d: expected %v, got %v", i, want, inst.Args[i])
				}
			}
		})
	}
}

func TestX64Emitter_ShiftByZeroEmitsNothing(t *testing.T) {
	e := newX64Emitter()
	e.shiftRI(x64ShiftLeft, x64RAX, 0)
	e.movRR32(x64RAX, x64RAX)
	if e.len() != 0 {
		t.Fatalf("expected no code, got %d bytes", e.len())
	}
}

func TestX64Emitter_MemoryForms(t *testing.T) {
	t.Run("load32 rbx+disp", func(t *testing.T) {
		e := newX64Emitter()
		e.load32(x64RAX, x64Disp(x64RBX, 8))
		inst := decodeOne(t, e)
		if inst.Op != x86asm.MOV || inst.Args[0] != x86asm.EAX {
			t.Fatalf("got %v", inst)
		}
		expectMem(t, inst.Args[1], x86asm.RBX, 0, 8)
	})
	t.Run("load64 r12 base needs sib", func(t *testing.T) {
		e := newX64Emitter()
		e.load64(x64RCX, x64Disp(x64R12, 0x30))
		inst := decodeOne(t, e)
		if inst.Op != x86asm.MOV || inst.Args[0] != x86asm.RCX {
			t.Fatalf("got %v", inst)
		}
		expectMem(t, inst.Args[1], x86asm.R12, 0, 0x30)
	})
	t.Run("load32 r13 base", func(t *testing.T) {
		e := newX64Emitter()
		e.load32(x64RDX, x64Disp(x64R13, 0))
		inst := decodeOne(t, e)
		expectMem(t, inst.Args[1], x86asm.R13, 0, 0)
	})
	t.Run("store32 indexed", func(t *testing.T) {
		e := newX64Emitter()
		e.store32(x64Indexed(x64RBX, x64RCX, 3, 0x40), x64RDX)
		inst := decodeOne(t, e)
		if inst.Op != x86asm.MOV || inst.Args[1] != x86asm.EDX {
			t.Fatalf("got %v", inst)
		}
		expectMem(t, inst.Args[0], x86asm.RBX, x86asm.RCX, 0x40)
		if m := inst.Args[0].(x86asm.Mem); m.Scale != 8 {
			t.Fatalf("scale: expected 8, got %d", m.Scale)
		}
	})
	t.Run("store64 r15", func(t *testing.T) {
		e := newX64Emitter()
		e.store64(x64Disp(x64RBX, 0x28), x64R15)
		inst := decodeOne(t, e)
		if inst.Op != x86asm.MOV || inst.Args[1] != x86asm.R15 {
			t.Fatalf("got %v", inst)
		}
		expectMem(t, inst.Args[0], x86asm.RBX, 0, 0x28)
	})
	t.Run("store immediate", func(t *testing.T) {
		e := newX64Emitter()
		e.storeImm32(x64Disp(x64RBX, 0x10), 7)
		inst := decodeOne(t, e)
		if inst.Op != x86asm.MOV || inst.Args[1] != x86asm.Imm(7) {
			t.Fatalf("got %v", inst)
		}
		expectMem(t, inst.Args[0], x86asm.RBX, 0, 0x10)
	})
	t.Run("setb", func(t *testing.T) {
		e := newX64Emitter()
		e.setccMem(x64CondB, x64Disp(x64RBX, 0x20))
		inst := decodeOne(t, e)
		if inst.Op != x86asm.SETB {
			t.Fatalf("got %v", inst)
		}
		expectMem(t, inst.Args[0], x86asm.RBX, 0, 0x20)
	})
	t.Run("bt", func(t *testing.T) {
		e := newX64Emitter()
		e.btMem(x64Disp(x64RBX, 0x20), 0)
		inst := decodeOne(t, e)
		if inst.Op != x86asm.BT || inst.Args[1] != x86asm.Imm(0) {
			t.Fatalf("got %v", inst)
		}
		expectMem(t, inst.Args[0], x86asm.RBX, 0, 0x20)
	})
}

func TestX64Emitter_LabelsPatchRelative(t *testing.T) {
	e := newX64Emitter()
	l := e.newLabel()
	e.jmp(l) // 5 bytes
	e.ret()  // 1 byte
	e.bind(l)
	e.ret()

	code, err := e.finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inst.Op != x86asm.JMP || inst.Args[0] != x86asm.Rel(1) {
		t.Fatalf("expected jmp +1, got %v", inst)
	}

	e = newX64Emitter()
	back := e.newLabel()
	e.bind(back)
	e.jcc(x64CondNE, back)
	code, _ = e.finish()
	inst, err = x86asm.Decode(code, 64)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inst.Op != x86asm.JNE || inst.Args[0] != x86asm.Rel(-6) {
		t.Fatalf("expected jne -6, got %v", inst)
	}
}

func TestX64Emitter_LeaRIP(t *testing.T) {
	e := newX64Emitter()
	l := e.newLabel()
	e.leaRIP(x64R15, l) // 7 bytes
	e.bind(l)
	inst := decodeOne(t, e)
	if inst.Op != x86asm.LEA || inst.Args[0] != x86asm.R15 {
		t.Fatalf("got %v", inst)
	}
	expectMem(t, inst.Args[1], x86asm.RIP, 0, 0)
}

func TestX64Emitter_UnboundLabel(t *testing.T) {
	e := newX64Emitter()
	e.jmp(e.newLabel())
	if _, err := e.finish(); err == nil {
		t.Fatal("expected error for unbound label")
	}
}

func TestCompileMacroX64_ListingDecodes(t *testing.T) {
	code := mustAssemble(t, `
		addi r0, r0, #0x1001 / move.setm
		addi r2, r0, #0 / fetch
	loop:
		add r3, r3, r2 / move.send
		subb r2, r2, r1 / move
		bnz r2, loop
		read r4, r3, #4 / move
		extins r5, r4, r3, #1, #5, #9 / move
		extshli r6, r5, r4, #3, #2 / move.setm.send
		extshlr r7, r6, r5, #2, #3 / fetch.setm .exit
		addi r0, r0, #0 / move
	`)
	native, err := compileMacroX64(code)
	if err != nil {
		t.Fatalf("compileMacroX64: %v", err)
	}
	if !native.flags.hasDelayedPC || native.flags.skipCarry {
		t.Fatalf("flags: %+v", native.flags)
	}
	if len(native.wordOffsets) != len(code) {
		t.Fatalf("word offsets: expected %d, got %d", len(code), len(native.wordOffsets))
	}
	for i := 1; i < len(native.wordOffsets); i++ {
		if native.wordOffsets[i] < native.wordOffsets[i-1] {
			t.Fatalf("word offsets not ascending at %d: %v", i, native.wordOffsets)
		}
	}
	listing := disassembleNative(native, code)
	if strings.Contains(listing, "(bad)") {
		t.Fatalf("listing has undecodable bytes:\n%s", listing)
	}
	if n := strings.Count(listing, "; word "); n != len(code) {
		t.Fatalf("expected %d word markers, got %d", len(code), n)
	}
}

func TestCompileMacroX64_CodeSizeCap(t *testing.T) {
	code := make([]uint32, 8192)
	for i := range code {
		code[i] = encodeMacroAddImmediate(MacroResultMoveAndSend, 1, 1, 1)
	}
	_, err := compileMacroX64(code)
	if !errors.Is(err, ErrMacroCodeBufferFull) {
		t.Fatalf("expected ErrMacroCodeBufferFull, got %v", err)
	}
}

func TestScanOptimizerFlags(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		skipCarry bool
		delayed   bool
	}{
		{"plain", "add r1, r1, r1 / move .exit\naddi r0, r0, #0 / move", true, false},
		{"carry user", "addc r1, r1, r1 / move .exit\naddi r0, r0, #0 / move", false, false},
		{"borrow user", "subb r1, r1, r1 / move .exit\naddi r0, r0, #0 / move", false, false},
		{"annulled only", "bz.a r1, +1\naddi r0, r0, #0 / move .exit\naddi r0, r0, #0 / move", true, false},
		{"delay slot", "bz r1, +1\naddi r0, r0, #0 / move .exit\naddi r0, r0, #0 / move", true, true},
	}
	for _, tt := range tests {
		f := scanOptimizerFlags(mustAssemble(t, tt.src))
		if f.skipCarry != tt.skipCarry || f.hasDelayedPC != tt.delayed {
			t.Fatalf("%s: got %+v", tt.name, f)
		}
	}
}

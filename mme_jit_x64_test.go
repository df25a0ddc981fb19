// mme_jit_x64_test.go - Tests for the x86-64 macro JIT against the interpreter

package main

import (
	"errors"
	"math/rand"
	"testing"
)

var validMacroALUOps = []MacroALUOperation{
	MacroALUAdd, MacroALUAddWithCarry, MacroALUSubtract, MacroALUSubtractWithBorrow,
	MacroALUXor, MacroALUOr, MacroALUAnd, MacroALUAndNot, MacroALUNand,
}

// randomMacroWord builds a word for position i of an n word program.
// Branches only go forward so every program terminates.
func randomMacroWord(rng *rand.Rand, i, n int) uint32 {
	reg := func() uint32 { return uint32(rng.Intn(MME_NUM_REGISTERS)) }
	result := MacroResultOperation(rng.Intn(8))
	imm := func() int32 {
		if rng.Intn(4) == 0 {
			return int32(rng.Intn(MME_IMMEDIATE_MAX-MME_IMMEDIATE_MIN+1)) + MME_IMMEDIATE_MIN
		}
		return int32(rng.Intn(64)) - 16
	}
	bf := func() uint32 { return uint32(rng.Intn(32)) }

	var w uint32
	switch k := rng.Intn(100); {
	case k < 30:
		w = encodeMacroALU(validMacroALUOps[rng.Intn(len(validMacroALUOps))], result, reg(), reg(), reg())
	case k < 50:
		w = encodeMacroAddImmediate(result, reg(), reg(), imm())
	case k < 58:
		w = encodeMacroExtractInsert(result, reg(), reg(), reg(), bf(), bf(), bf())
	case k < 64:
		w = encodeMacroExtractShiftLeftImmediate(result, reg(), reg(), reg(), bf(), bf())
	case k < 70:
		w = encodeMacroExtractShiftLeftRegister(result, reg(), reg(), reg(), bf(), bf())
	case k < 76:
		w = encodeMacroRead(result, reg(), reg(), imm())
	case k < 97:
		offset := int32(1 + rng.Intn(n-i))
		w = encodeMacroBranch(MacroBranchCondition(rng.Intn(2)), rng.Intn(2) == 0, reg(), offset)
	case k < 98:
		w = uint32(MacroOpUnused)
	default:
		w = encodeMacroALU(MacroALUOperation(4+rng.Intn(4)), result, reg(), reg(), reg())
	}
	if rng.Intn(10) == 0 {
		w = withExit(w)
	}
	return w
}

func randomMacroProgram(rng *rand.Rand) []uint32 {
	n := 2 + rng.Intn(24)
	code := make([]uint32, 0, n+2)
	for i := 0; i < n; i++ {
		code = append(code, randomMacroWord(rng, i, n+2))
	}
	return append(code,
		withExit(encodeMacroAddImmediate(MacroResultMove, 0, 0, 0)),
		encodeMacroAddImmediate(MacroResultMove, 0, 0, 0))
}

type macroRun struct {
	host  *recordingHost
	err   error
	state MacroProgramState
}

func runMacroOn(backend MacroBackend, host *recordingHost, code, params []uint32) macroRun {
	prog, err := backend.Compile(code)
	if err != nil {
		return macroRun{host: host, err: err}
	}
	if d, ok := prog.(macroDestroyer); ok {
		defer d.Destroy()
	}
	err = prog.Execute(params, 0x1000)
	v := prog.(macroStateView)
	return macroRun{
		host: host,
		err:  err,
		state: MacroProgramState{
			Registers:     v.Registers(),
			Carry:         v.CarryFlag(),
			MethodAddress: v.MethodAddress(),
		},
	}
}

func seedHostRegisters(rng *rand.Rand, h *recordingHost) {
	for i := 0; i < 32; i++ {
		h.regs[uint32(rng.Intn(64))] = rng.Uint32()
	}
}

func compareMacroRuns(t *testing.T, code []uint32, params []uint32, want, got macroRun) {
	t.Helper()
	fail := func(format string, args ...any) {
		t.Helper()
		t.Fatalf("program %08X params %X:\n%s\n"+format,
			append([]any{code, params, formatMacroListing(disassembleMacro(code, 0), -1)}, args...)...)
	}

	wantSends, gotSends := want.host.sends(), got.host.sends()
	if len(wantSends) != len(gotSends) {
		fail("sends: interpreter %X, jit %X", wantSends, gotSends)
	}
	for i := range wantSends {
		if wantSends[i] != gotSends[i] {
			fail("send %d: interpreter %X, jit %X", i, wantSends[i], gotSends[i])
		}
	}

	if (want.err == nil) != (got.err == nil) {
		fail("errors: interpreter %v, jit %v", want.err, got.err)
	}
	if want.err != nil {
		var wf, gf *MacroFault
		if !errors.As(want.err, &wf) || !errors.As(got.err, &gf) {
			fail("non-fault errors: interpreter %v, jit %v", want.err, got.err)
		}
		if !errors.Is(gf, wf.Err) || wf.PC != gf.PC {
			fail("faults: interpreter %v, jit %v", want.err, got.err)
		}
		return
	}

	if want.state.Registers != got.state.Registers {
		fail("registers: interpreter %08X, jit %08X", want.state.Registers, got.state.Registers)
	}
	if want.state.MethodAddress != got.state.MethodAddress {
		fail("method: interpreter %X, jit %X", want.state.MethodAddress, got.state.MethodAddress)
	}
	if !scanOptimizerFlags(code).skipCarry && want.state.Carry != got.state.Carry {
		fail("carry: interpreter %t, jit %t", want.state.Carry, got.state.Carry)
	}
}

func TestMacroJIT_MatchesInterpreter(t *testing.T) {
	requireMacroJIT(t)
	rng := rand.New(rand.NewSource(0x4D4D45))

	for iter := 0; iter < 2000; iter++ {
		code := randomMacroProgram(rng)
		params := make([]uint32, 1+rng.Intn(6))
		for i := range params {
			params[i] = rng.Uint32()
		}
		regSeed := rng.Int63()

		ih, jh := newRecordingHost(), newRecordingHost()
		seedHostRegisters(rand.New(rand.NewSource(regSeed)), ih)
		seedHostRegisters(rand.New(rand.NewSource(regSeed)), jh)

		jit, _ := NewMacroJIT(jh)
		want := runMacroOn(NewMacroInterpreter(ih), ih, code, params)
		got := runMacroOn(jit, jh, code, params)
		compareMacroRuns(t, code, params, want, got)
	}
}

func TestMacroJIT_HandWrittenPrograms(t *testing.T) {
	requireMacroJIT(t)
	tests := []struct {
		name   string
		src    string
		params []uint32
	}{
		{"end to end", "add r1, r0, r0 / move\naddi r0, r0, #0 / move .exit", []uint32{5}},
		{"carry chain", "addi r2, r0, #0 / fetch\nadd r3, r1, r2 / move\naddc r4, r0, r0 / move\nsub r5, r1, r2 / move\nsubb r6, r1, r2 / move .exit\naddi r0, r0, #0 / move", []uint32{0xFFFFFFFF, 1}},
		{"delay slot", "addi r0, r0, #0x1001 / move.setm\nbz r0, +3\naddi r0, r0, #0xA / move.send\naddi r0, r0, #0xB / move.send\naddi r0, r0, #0xC / move.send .exit\naddi r0, r0, #0 / move", []uint32{0}},
		{"annulled", "addi r0, r0, #0x1001 / move.setm\nbz.a r0, +3\naddi r0, r0, #0xA / move.send\naddi r0, r0, #0xB / move.send\naddi r0, r0, #0xC / move.send .exit\naddi r0, r0, #0 / move", []uint32{0}},
		{"exit in delay slot", "addi r0, r0, #0x1001 / move.setm\nbz r0, +2\naddi r0, r0, #2 / move.send .exit\naddi r0, r0, #3 / move.send .exit\naddi r0, r0, #4 / move.send\naddi r0, r0, #5 / move.send", []uint32{0}},
		{"loop", "addi r0, r0, #0x40 / move.setm\nloop: addi r0, r1, #0 / move.send\naddi r1, r1, #-1 / move\nbnz r1, loop\naddi r0, r0, #0 / move\naddi r0, r0, #0 / move .exit\naddi r0, r0, #0 / move", []uint32{20}},
		{"redundant setm", "addi r2, r0, #0x1010 / move.setm\naddi r2, r0, #0x1020 / move.setm\naddi r0, r1, #0 / move.send .exit\naddi r0, r0, #0 / move", []uint32{7}},
		{"set method sends", "addi r0, r0, #0x3050 / move.setm.send\naddi r0, r0, #0x1020 / move.setm.fetch.send .exit\naddi r0, r0, #0 / move", []uint32{0, 9}},
		{"parameter overrun", "addi r2, r0, #0 / fetch\naddi r3, r0, #0 / fetch .exit\naddi r0, r0, #0 / move", []uint32{1, 2}},
		{"parameter mismatch", "addi r2, r0, #0 / fetch .exit\naddi r0, r0, #0 / move", []uint32{1, 2, 3}},
		{"fall off", "addi r2, r0, #1 / move", []uint32{1}},
		{"branch out", "bz.a r0, +9", []uint32{1}},
		{"branch in delay slot", "bz r0, +2\nbz r0, +1", []uint32{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := mustAssemble(t, tt.src)
			ih, jh := newRecordingHost(), newRecordingHost()
			jit, _ := NewMacroJIT(jh)
			want := runMacroOn(NewMacroInterpreter(ih), ih, code, tt.params)
			got := runMacroOn(jit, jh, code, tt.params)
			compareMacroRuns(t, code, tt.params, want, got)
		})
	}
}

func TestMacroJIT_SendQueueFlush(t *testing.T) {
	jit := requireMacroJIT(t)
	host := newRecordingHost()
	jit.host = host

	// Three times the queue depth, one send per iteration.
	code := mustAssemble(t, `
		addi r0, r0, #0x1000 / move.setm
	loop:
		addi r1, r1, #-1 / move.send
		bnz.a r1, loop
		addi r0, r0, #0 / move .exit
		addi r0, r0, #0 / move
	`)
	prog, err := jit.Compile(code)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer prog.(macroDestroyer).Destroy()

	n := 3 * MME_JIT_SEND_QUEUE
	if err := prog.Execute([]uint32{uint32(n)}, 0x1000); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(host.calls) != n {
		t.Fatalf("expected %d sends, got %d", n, len(host.calls))
	}
	for i, c := range host.calls {
		if c.Method != uint32(i)&MME_METHOD_ADDRESS_MASK || c.Value != uint32(n-1-i) {
			t.Fatalf("send %d: got [%03X]=%d", i, c.Method, c.Value)
		}
	}
}

func TestMacroJIT_ReadYieldsToHost(t *testing.T) {
	jit := requireMacroJIT(t)
	host := newRecordingHost()
	host.regs[0x205] = 0x1111
	host.regs[0x206] = 0x2222
	jit.host = host

	code := mustAssemble(t, `
		read r2, r1, #5 / move
		read r3, r1, #6 / move
		add r4, r2, r3 / move .exit
		addi r0, r0, #0 / move
	`)
	prog, err := jit.Compile(code)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer prog.(macroDestroyer).Destroy()
	if err := prog.Execute([]uint32{0x200}, 0x1000); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if r := prog.(macroStateView).Registers()[4]; r != 0x3333 {
		t.Fatalf("r4: expected 0x3333, got 0x%X", r)
	}
}

func TestMacroJIT_DestroyedProgramFails(t *testing.T) {
	jit := requireMacroJIT(t)
	prog, err := jit.Compile(mustAssemble(t, "addi r0, r0, #0 / move .exit\naddi r0, r0, #0 / move"))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	p := prog.(*macroJITProgram)
	if err := p.Execute([]uint32{0}, 1); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	p.Destroy()
	p.Destroy()
	if err := p.Execute([]uint32{0}, 1); !errors.Is(err, ErrMacroJITUnavailable) {
		t.Fatalf("expected ErrMacroJITUnavailable after Destroy, got %v", err)
	}
}

func TestMacroJIT_Listing(t *testing.T) {
	jit := requireMacroJIT(t)
	prog, err := jit.Compile(mustAssemble(t, "addi r2, r1, #3 / move.send .exit\naddi r0, r0, #0 / move"))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer prog.(macroDestroyer).Destroy()
	listing := prog.(macroLister).Disassembly()
	if len(listing) == 0 {
		t.Fatal("empty listing")
	}
}

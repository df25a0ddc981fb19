// macro_monitor_test.go - Tests for the macro monitor commands

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func newTestMonitor(t *testing.T) (*MacroMonitor, *Engine3D, *bytes.Buffer) {
	t.Helper()
	e := newTestEngine3D(t)
	var out bytes.Buffer
	return NewMacroMonitor(e, &out), e, &out
}

// monitorRun executes one command and returns what it printed.
func monitorRun(t *testing.T, m *MacroMonitor, out *bytes.Buffer, line string) string {
	t.Helper()
	out.Reset()
	if !m.ExecuteCommand(line) {
		t.Fatalf("%q ended the monitor", line)
	}
	return out.String()
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{"10", 0x10, true},
		{"$ff", 0xFF, true},
		{"0x1F", 0x1F, true},
		{"0X20", 0x20, true},
		{"#100", 100, true},
		{"#1F", 0, false},
		{"", 0, false},
		{"zz", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAddress(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseAddress(%q) = %d, %v; expected %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseCommand(t *testing.T) {
	cmd := ParseCommand("  UPLOAD 0 91  11 ")
	if cmd.Name != "upload" || len(cmd.Args) != 3 || cmd.Args[2] != "11" {
		t.Fatalf("parsed %+v", cmd)
	}
	if ParseCommand("   ").Name != "" {
		t.Fatal("blank line must parse empty")
	}
}

func TestMacroMonitor_Session(t *testing.T) {
	m, e, out := newTestMonitor(t)

	if got := monitorRun(t, m, out, "upload 0 91 11"); got != "2 words at 0000\n" {
		t.Fatalf("upload: %q", got)
	}
	monitorRun(t, m, out, "bind 2 0")
	if e.MacroPosition(2) != 0 || e.GetRegisterValue(ENGINE3D_MME_START_ADDRESS_PTR) != 3 {
		t.Fatal("bind did not go through the start address methods")
	}
	if got := monitorRun(t, m, out, "call 2 5"); got != "" {
		t.Fatalf("call: %q", got)
	}

	got := monitorRun(t, m, out, "regs 0")
	if !strings.Contains(got, "r1=00000005") || !strings.Contains(got, "carry=false") {
		t.Fatalf("regs: %q", got)
	}

	got = monitorRun(t, m, out, "dis 0")
	if !strings.Contains(got, "0000  00000091  addi r0, r0, #0 / move .exit") ||
		!strings.Contains(got, "0001  00000011  addi r0, r0, #0 / move") {
		t.Fatalf("dis: %q", got)
	}

	got = monitorRun(t, m, out, "cache")
	if !strings.HasPrefix(got, "0000  ") || !strings.Contains(got, "2 words  interpreter") ||
		!strings.Contains(got, "hle=-") {
		t.Fatalf("cache: %q", got)
	}

	got = monitorRun(t, m, out, "stats")
	for _, want := range []string{"backend      interpreter", "compiles     1", "lle runs     1", "refreshes    1"} {
		if !strings.Contains(got, want) {
			t.Fatalf("stats missing %q: %q", want, got)
		}
	}

	monitorRun(t, m, out, "reg 100 2A")
	if got := monitorRun(t, m, out, "reg 100"); got != "0100 = 0000002A\n" {
		t.Fatalf("reg: %q", got)
	}

	monitorRun(t, m, out, "clear 0")
	if got := monitorRun(t, m, out, "cache"); got != "cache empty\n" {
		t.Fatalf("cache after clear: %q", got)
	}
	if got := monitorRun(t, m, out, "dis 0"); !strings.Contains(got, "error: nothing uploaded at 0000") {
		t.Fatalf("dis after clear: %q", got)
	}
}

func TestMacroMonitor_AsmAndExec(t *testing.T) {
	m, e, out := newTestMonitor(t)
	path := filepath.Join(t.TempDir(), "send.mme")
	writeTestFile(t, path, sendParamPlusOneSrc)

	if got := monitorRun(t, m, out, "asm 10 "+path); got != "3 words at 0010\n" {
		t.Fatalf("asm: %q", got)
	}
	if got := monitorRun(t, m, out, "exec 10 #41"); got != "" {
		t.Fatalf("exec: %q", got)
	}
	if e.GetRegisterValue(8) != 42 {
		t.Fatalf("method 8: %d", e.GetRegisterValue(8))
	}

	bad := filepath.Join(t.TempDir(), "bad.mme")
	writeTestFile(t, bad, "addi r0, r0, #0\nfrob\n")
	if got := monitorRun(t, m, out, "asm 20 "+bad); !strings.Contains(got, "line 2: unknown mnemonic") {
		t.Fatalf("asm error: %q", got)
	}
}

func TestMacroMonitor_Errors(t *testing.T) {
	m, _, out := newTestMonitor(t)
	tests := []struct {
		line string
		want string
	}{
		{"frobnicate", `error: unknown command "frobnicate"`},
		{"upload 0", "error: usage: upload"},
		{"upload 0 zz", `error: bad value "zz"`},
		{"bind 80 0", "error: macro 128 out of range"},
		{"exec 5 1", "not uploaded"},
		{"call 0 1", "not uploaded"},
		{"regs 5", "error: no compiled program at 0005"},
		{"dis 0 x64", "error: no native code for 0000"},
		{"reg", "error: usage: reg"},
		{"asm 0 /nonexistent/file.mme", "error: "},
	}
	for _, tt := range tests {
		if got := monitorRun(t, m, out, tt.line); !strings.Contains(got, tt.want) {
			t.Errorf("%q: expected %q, got %q", tt.line, tt.want, got)
		}
	}
}

func TestMacroMonitor_HelpAndQuit(t *testing.T) {
	m, _, out := newTestMonitor(t)
	if got := monitorRun(t, m, out, "help"); !strings.Contains(got, "bind <n> <pos>") {
		t.Fatalf("help: %q", got)
	}
	if got := monitorRun(t, m, out, ""); got != "" {
		t.Fatalf("blank line printed %q", got)
	}
	for _, q := range []string{"quit", "exit", "q", "QUIT"} {
		if m.ExecuteCommand(q) {
			t.Fatalf("%q did not end the monitor", q)
		}
	}
}

func TestMacroMonitor_ListingsAndMemory(t *testing.T) {
	m, e, out := newTestMonitor(t)

	if got := monitorRun(t, m, out, "uploads"); got != "nothing uploaded\n" {
		t.Fatalf("uploads: %q", got)
	}
	monitorRun(t, m, out, "upload 10 91 11")
	monitorRun(t, m, out, "upload 2 11 91 11")
	if got := monitorRun(t, m, out, "uploads"); got != "0002     3 words\n0010     2 words\n" {
		t.Fatalf("uploads: %q", got)
	}

	got := monitorRun(t, m, out, "hle")
	if !strings.Contains(got, "ee4d0004bec8ecf4  clear-memory\n") {
		t.Fatalf("hle: %q", got)
	}
	if n := strings.Count(got, "\n"); n != len(hleNatives) {
		t.Fatalf("hle listed %d replacements", n)
	}

	monitorRun(t, m, out, "mem 100001000 DEADBEEF")
	if e.ReadGPUWord(0x1_0000_1000) != 0xDEADBEEF {
		t.Fatal("mem write did not reach GPU memory")
	}
	if got := monitorRun(t, m, out, "mem $100001000"); got != "0100001000 = DEADBEEF\n" {
		t.Fatalf("mem: %q", got)
	}
	if got := monitorRun(t, m, out, "mem zz"); !strings.Contains(got, `error: bad address "zz"`) {
		t.Fatalf("mem error: %q", got)
	}
	if got := monitorRun(t, m, out, "mem"); !strings.Contains(got, "error: usage: mem") {
		t.Fatalf("mem usage: %q", got)
	}
}

func TestMacroMonitor_ExecRejectsNestedCalls(t *testing.T) {
	m, e, out := newTestMonitor(t)
	// The program calls macro 0, which is bound to itself.
	path := filepath.Join(t.TempDir(), "nested.mme")
	writeTestFile(t, path, `
		addi r0, r0, #0xE00 / move.setm
		addi r0, r1, #0 / move.send .exit
		addi r0, r0, #0
	`)
	monitorRun(t, m, out, "asm 20 "+path)
	monitorRun(t, m, out, "bind 0 20")
	if got := monitorRun(t, m, out, "exec 20 5"); got != "" {
		t.Fatalf("exec: %q", got)
	}
	if e.Macros().Stats().LLERuns != 1 {
		t.Fatalf("stats: %+v", e.Macros().Stats())
	}
}

func TestMacroMonitor_RegsUntrackedCarry(t *testing.T) {
	requireMacroJIT(t)
	silenceMacroLog(t)
	e := NewEngine3D(DefaultMacroConfig())
	t.Cleanup(e.Destroy)
	var out bytes.Buffer
	m := NewMacroMonitor(e, &out)

	monitorRun(t, m, &out, "upload 0 91 11")
	monitorRun(t, m, &out, "exec 0 1")
	if got := monitorRun(t, m, &out, "regs 0"); !strings.Contains(got, "carry=- ") {
		t.Fatalf("regs: %q", got)
	}
}

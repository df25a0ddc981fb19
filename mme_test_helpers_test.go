// mme_test_helpers_test.go - Test helpers for the macro engine.

package main

import (
	"bytes"
	"io"
	"os"
	"testing"
)

type recordedCall struct {
	Method uint32
	Value  uint32
	Last   bool
}

// recordingHost is a MacroHost that keeps every method write.
type recordingHost struct {
	calls     []recordedCall
	regs      map[uint32]uint32
	refreshes int
}

func newRecordingHost() *recordingHost {
	return &recordingHost{regs: make(map[uint32]uint32)}
}

func (h *recordingHost) CallMethod(method, argument uint32, isLastCall bool) {
	h.calls = append(h.calls, recordedCall{Method: method, Value: argument, Last: isLastCall})
	h.regs[method] = argument
}

func (h *recordingHost) GetRegisterValue(method uint32) uint32 {
	return h.regs[method]
}

func (h *recordingHost) RefreshParameters() {
	h.refreshes++
}

// sends returns the recorded writes without the isLastCall flag.
func (h *recordingHost) sends() [][2]uint32 {
	out := make([][2]uint32, len(h.calls))
	for i, c := range h.calls {
		out[i] = [2]uint32{c.Method, c.Value}
	}
	return out
}

func (h *recordingHost) reset() {
	h.calls = nil
}

func expectSends(t *testing.T, h *recordingHost, want ...[2]uint32) {
	t.Helper()
	got := h.sends()
	if len(got) != len(want) {
		t.Fatalf("expected %d sends %X, got %d %X", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("send %d: expected [%03X]=%08X, got [%03X]=%08X",
				i, want[i][0], want[i][1], got[i][0], got[i][1])
		}
	}
}

// silenceMacroLog discards engine diagnostics for the rest of the test.
func silenceMacroLog(t *testing.T) {
	t.Helper()
	old := mmeLogOutput
	mmeLogOutput = io.Discard
	t.Cleanup(func() { mmeLogOutput = old })
}

// captureMacroLog collects engine diagnostics for the rest of the test.
func captureMacroLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := mmeLogOutput
	mmeLogOutput = &buf
	t.Cleanup(func() { mmeLogOutput = old })
	return &buf
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func mustAssemble(t *testing.T, src string) []uint32 {
	t.Helper()
	code, err := assembleMacro(src)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	return code
}

// interpretMacro runs code once on a fresh interpreter.
func interpretMacro(t *testing.T, code []uint32, params ...uint32) (*recordingHost, *macroInterpreterProgram, error) {
	t.Helper()
	host := newRecordingHost()
	prog, err := NewMacroInterpreter(host).Compile(code)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	p := prog.(*macroInterpreterProgram)
	return host, p, p.Execute(params, 0x1000)
}

// newTestMacroEngine builds an engine over a recording host with
// diagnostics silenced.
func newTestMacroEngine(t *testing.T, config MacroConfig) (*MacroEngine, *recordingHost) {
	t.Helper()
	silenceMacroLog(t)
	host := newRecordingHost()
	m := NewMacroEngine(host, config)
	t.Cleanup(m.Destroy)
	return m, host
}

func uploadMacro(m *MacroEngine, method uint32, code []uint32) {
	for _, w := range code {
		m.AddCode(method, w)
	}
}

// requireMacroJIT skips unless the host can run generated code.
func requireMacroJIT(t *testing.T) *MacroJIT {
	t.Helper()
	jit, err := NewMacroJIT(newRecordingHost())
	if err != nil {
		t.Skipf("macro JIT unavailable: %v", err)
	}
	return jit
}

//go:build amd64 && (linux || darwin || freebsd || netbsd || openbsd)

// mme_jit_exec_amd64.go - Executable memory and entry trampoline for the macro JIT.

package main

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/cpu"
	"golang.org/x/sys/unix"
)

func init() {
	compiledFeatures = append(compiledFeatures, "jit:x86-64")
}

// callMacroCode enters generated code with DI = state and returns its
// yield reason. Implemented in mme_jit_exec_amd64.s.
//
//go:noescape
func callMacroCode(code uintptr, state unsafe.Pointer) uint32

// macroExecMemory is one read+execute mapping holding a compiled macro.
type macroExecMemory struct {
	mem []byte
}

func macroJITSupported() error {
	// Generated code is baseline x86-64; SSE2 doubles as a sanity check
	// that feature detection ran at all.
	if !cpu.X86.HasSSE2 {
		return fmt.Errorf("%w: host CPU reports no SSE2", ErrMacroJITUnavailable)
	}
	return nil
}

// mapMacroCode copies code into fresh pages and seals them read+execute.
func mapMacroCode(code []byte) (*macroExecMemory, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: empty code", ErrMacroJITUnavailable)
	}
	page := unix.Getpagesize()
	size := (len(code) + page - 1) &^ (page - 1)
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap JIT code: %w", err)
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("mprotect JIT code: %w", err)
	}
	return &macroExecMemory{mem: mem}, nil
}

func (m *macroExecMemory) entry() uintptr {
	return uintptr(unsafe.Pointer(&m.mem[0]))
}

func (m *macroExecMemory) release() error {
	err := unix.Munmap(m.mem)
	m.mem = nil
	return err
}

func runMacroCode(entry uintptr, state *macroJITState) uint32 {
	return callMacroCode(entry, unsafe.Pointer(state))
}

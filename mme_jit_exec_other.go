//go:build !(amd64 && (linux || darwin || freebsd || netbsd || openbsd))

package main

func init() {
	compiledFeatures = append(compiledFeatures, "jit:unavailable")
}

type macroExecMemory struct{}

func macroJITSupported() error {
	return ErrMacroJITUnavailable
}

func mapMacroCode(code []byte) (*macroExecMemory, error) {
	return nil, ErrMacroJITUnavailable
}

func (m *macroExecMemory) entry() uintptr { return 0 }

func (m *macroExecMemory) release() error { return nil }

func runMacroCode(entry uintptr, state *macroJITState) uint32 {
	return jitYieldPCOutOfRange
}

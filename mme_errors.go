// mme_errors.go - MME fault types and diagnostic output

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
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrMacroNotUploaded          = errors.New("macro code not uploaded")
	ErrMacroBranchInDelaySlot    = errors.New("branch in delay slot")
	ErrMacroParameterOverrun     = errors.New("parameter fetch past end of parameter list")
	ErrMacroParameterMismatch    = errors.New("macro did not consume every parameter")
	ErrMacroUnsupportedOperation = errors.New("unsupported macro operation")
	ErrMacroPCOutOfRange         = errors.New("program counter outside macro code")
	ErrMacroNoParameters         = errors.New("macro called with no parameters")
	ErrMacroHLEScript            = errors.New("HLE script error")
	ErrMacroReentered            = errors.New("macro engine entered from a running macro")

	ErrMacroCodeBufferFull = errors.New("JIT code buffer full")
	ErrMacroJITUnavailable = errors.New("macro JIT not available on this host")
)

// MacroFault reports a guest-visible error raised while running a macro.
// Err is one of the ErrMacro* sentinels, possibly wrapped.
type MacroFault struct {
	Method uint32 // macro method the program was invoked through
	PC     uint32 // word index of the faulting instruction
	Word   uint32 // the instruction word, when one was being executed
	Err    error
}

func (f *MacroFault) Error() string {
	return fmt.Sprintf("macro 0x%X: pc=%d word=0x%08X: %v", f.Method, f.PC, f.Word, f.Err)
}

func (f *MacroFault) Unwrap() error { return f.Err }

func newMacroFault(method, pc, word uint32, err error) *MacroFault {
	return &MacroFault{Method: method, PC: pc, Word: word, Err: err}
}

// mmeLogOutput receives engine diagnostics. Tests swap it for io.Discard or
// a buffer.
var mmeLogOutput io.Writer = os.Stderr

func mmeLogf(format string, args ...any) {
	fmt.Fprintf(mmeLogOutput, "mme: "+format+"\n", args...)
}

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// TerminalHost owns stdin/stdout while the macro monitor runs. On a real
// terminal it switches to raw mode and edits lines with term.Terminal
// (history, cursor keys); otherwise it reads plain lines so the monitor can
// be scripted through a pipe.
// Only instantiated in main.go for interactive use, never in tests.
type TerminalHost struct {
	in           *os.File
	out          io.Writer
	fd           int
	oldTermState *term.State
	terminal     *term.Terminal
	lines        *bufio.Reader
}

// NewTerminalHost creates a host adapter over in and out.
func NewTerminalHost(in *os.File, out io.Writer) *TerminalHost {
	return &TerminalHost{in: in, out: out, fd: int(in.Fd())}
}

// Start puts the terminal in raw mode when stdin is one. Call Stop() to
// restore it.
func (h *TerminalHost) Start(prompt string) {
	if !term.IsTerminal(h.fd) {
		h.lines = bufio.NewReader(h.in)
		return
	}
	oldState, err := term.MakeRaw(h.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "terminal_host: failed to set raw mode: %v\n", err)
		h.lines = bufio.NewReader(h.in)
		return
	}
	h.oldTermState = oldState
	h.terminal = term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{h.in, h.out}, prompt)
}

// ReadLine returns the next command line without its terminator.
func (h *TerminalHost) ReadLine() (string, error) {
	if h.terminal != nil {
		return h.terminal.ReadLine()
	}
	line, err := h.lines.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Write sends monitor output to the terminal. Raw mode needs CRLF, which
// term.Terminal inserts itself.
func (h *TerminalHost) Write(p []byte) (int, error) {
	if h.terminal != nil {
		return h.terminal.Write(p)
	}
	return h.out.Write(p)
}

// Stop restores the terminal state saved by Start.
func (h *TerminalHost) Stop() {
	if h.oldTermState != nil {
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
	}
	h.terminal = nil
}

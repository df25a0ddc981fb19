// command_stream.go - Text pushbuffer replay for the 3D engine

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
command_stream.go - Command Stream Replay

A command stream is a text capture of the method writes a guest pushes to
the 3D engine, one batch per line:

	# upload a macro at instruction RAM position 0
	0x45 0
	0x46 0x00000091 0x00000011
	0x47 0
	0x48 0
	# call macro 0 with one parameter
	0xE00 1

Numbers are decimal or 0x-prefixed hex. Everything after '#' or ';' is a
comment. A line ending in '+' leaves the batch open, so the next line
continues it (needed to feed a macro's first parameter and the rest through
separate methods):

	0xE00 7 +
	0xE01 8 9

Each line becomes one CallMultiMethod. Replay stops at the first macro
fault.
*/

package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type commandStreamLine struct {
	method  uint32
	args    []uint32
	pending bool // batch continues on the next line
}

func parseCommandStreamLine(text string) (commandStreamLine, bool, error) {
	if i := strings.IndexAny(text, "#;"); i >= 0 {
		text = text[:i]
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return commandStreamLine{}, false, nil
	}

	var l commandStreamLine
	if fields[len(fields)-1] == "+" {
		l.pending = true
		fields = fields[:len(fields)-1]
	}
	if len(fields) < 2 {
		return commandStreamLine{}, false, fmt.Errorf("expected method and at least one argument")
	}
	method, err := strconv.ParseUint(fields[0], 0, 32)
	if err != nil {
		return commandStreamLine{}, false, fmt.Errorf("method %q: %w", fields[0], err)
	}
	l.method = uint32(method)
	for _, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 0, 32)
		if err != nil {
			return commandStreamLine{}, false, fmt.Errorf("argument %q: %w", f, err)
		}
		l.args = append(l.args, uint32(v))
	}
	return l, true, nil
}

// ReplayCommandStream feeds a text command stream into e. It returns the
// first parse error or macro fault, prefixed with its line number.
func ReplayCommandStream(r io.Reader, e *Engine3D) error {
	e.takeMacroFault()

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		l, ok, err := parseCommandStreamLine(sc.Text())
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if !ok {
			continue
		}
		pending := uint32(len(l.args))
		if l.pending {
			pending++
		}
		e.CallMultiMethod(l.method, l.args, pending)
		if err := e.takeMacroFault(); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return sc.Err()
}

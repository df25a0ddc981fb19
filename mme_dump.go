// mme_dump.go - Macro bytecode dumps for offline inspection

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
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// dumpMacro writes e under dir/macros:
//
//	<hash>.macro            raw little-endian words
//	decompiled_<hash>.macro same, when an HLE replacement runs instead
//	<hash>.txt              bytecode listing
//	<hash>.x64.txt          native listing, JIT programs only
//
// An existing <hash>.macro is renamed rather than rewritten when the macro
// turns out to be replaced. Failures are logged and otherwise ignored.
func dumpMacro(dir string, e *macroCacheEntry) {
	macroDir := filepath.Join(dir, MME_DUMP_SUBDIR)
	if err := os.MkdirAll(macroDir, 0o755); err != nil {
		mmeLogf("dump: creating %s: %v", macroDir, err)
		return
	}

	stem := fmt.Sprintf("%016x", e.hash)
	name := filepath.Join(macroDir, stem+MME_DUMP_EXTENSION)
	if e.hle != nil {
		decompiled := filepath.Join(macroDir, MME_DUMP_DECOMPILED_PREFIX+stem+MME_DUMP_EXTENSION)
		if _, err := os.Stat(name); err == nil {
			if err := os.Rename(name, decompiled); err != nil {
				mmeLogf("dump: renaming %s: %v", name, err)
			}
			return
		}
		name = decompiled
	}

	if err := writeMacroFile(name, e.code); err != nil {
		mmeLogf("dump: %v", err)
		return
	}

	var b strings.Builder
	for _, line := range disassembleMacro(e.code, 0) {
		fmt.Fprintf(&b, "%04X  %08X  %s\n", line.Address, line.Word, line.Mnemonic)
	}
	if err := os.WriteFile(filepath.Join(macroDir, stem+".txt"), []byte(b.String()), 0o644); err != nil {
		mmeLogf("dump: %v", err)
	}

	if l, ok := e.lle.(macroLister); ok {
		if err := os.WriteFile(filepath.Join(macroDir, stem+".x64.txt"), []byte(l.Disassembly()), 0o644); err != nil {
			mmeLogf("dump: %v", err)
		}
	}
}

// loadMacroFile reads a raw little-endian word file as written by dumpMacro.
func loadMacroFile(path string) ([]uint32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%s: length %d is not a whole number of words", path, len(raw))
	}
	code := make([]uint32, len(raw)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return code, nil
}

// writeMacroFile stores code as raw little-endian words.
func writeMacroFile(path string, code []uint32) error {
	raw := make([]byte, 0, len(code)*4)
	for _, w := range code {
		raw = binary.LittleEndian.AppendUint32(raw, w)
	}
	return os.WriteFile(path, raw, 0o644)
}

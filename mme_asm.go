// mme_asm.go - MME assembler

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
mme_asm.go - Macro Assembler

Assembles the listing syntax produced by disassembleMacro back into
instruction words, so dumps can be edited and replayed:

	loop:   addi r2, r2, #-1 / move
	        bnz r2, loop          ; label or signed word offset (+3, -1)
	        extins r3, r3, r1, #0, #8, #16 / move.send
	        addi r0, r0, #0 / move .exit
	        .word 0x00000021

Operations: add addc sub subb xor or and andn nand (rD, rA, rB),
addi and read (rD, rA, #imm), extins (rD, rA, rB, #src, #size, #dst),
extshli (rD, rA, rB, #size, #dst), extshlr (rD, rA, rB, #src, #size),
bz/bnz with optional .a (annul). The result operation follows a slash and
defaults to move. A trailing .exit sets the exit flag.
*/

package main

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------
// Operand parsing
// ---------------------------------------------------------------------

func parseMacroRegister(s string) (uint32, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) == 2 && s[0] == 'r' && s[1] >= '0' && s[1] <= '7' {
		return uint32(s[1] - '0'), nil
	}
	return 0, fmt.Errorf("bad register %q", s)
}

func parseMacroNumber(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	var v int64
	var err error
	if strings.HasPrefix(s, "$") {
		var u uint64
		u, err = strconv.ParseUint(s[1:], 16, 32)
		v = int64(u)
	} else {
		var u uint64
		u, err = strconv.ParseUint(s, 0, 32)
		v = int64(u)
	}
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	if neg {
		v = -v
	}
	return v, nil
}

func parseMacroImmediate(s string) (int32, error) {
	v, err := parseMacroNumber(s)
	if err != nil {
		return 0, err
	}
	if v < MME_IMMEDIATE_MIN || v > MME_IMMEDIATE_MAX {
		return 0, fmt.Errorf("immediate %d outside [%d, %d]", v, MME_IMMEDIATE_MIN, MME_IMMEDIATE_MAX)
	}
	return int32(v), nil
}

func parseMacroBitfield(s string) (uint32, error) {
	v, err := parseMacroNumber(s)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > MME_BF_FIELD_MASK {
		return 0, fmt.Errorf("bitfield value %d outside [0, %d]", v, MME_BF_FIELD_MASK)
	}
	return uint32(v), nil
}

func parseMacroResult(s string) (MacroResultOperation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range macroResultMnemonics {
		if name == s {
			return MacroResultOperation(i), nil
		}
	}
	return 0, fmt.Errorf("unknown result operation %q", s)
}

func splitMacroOperands(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ---------------------------------------------------------------------
// Assembly
// ---------------------------------------------------------------------

type macroAsmLine struct {
	num  int
	pc   int
	text string
}

// assembleMacro assembles src into instruction words. Errors carry the
// source line number.
func assembleMacro(src string) ([]uint32, error) {
	labels := make(map[string]int)
	var lines []macroAsmLine

	// Pass 1: labels and word addresses
	for i, raw := range strings.Split(src, "\n") {
		text := strings.TrimSpace(stripMacroComment(raw))
		for {
			colon := strings.Index(text, ":")
			if colon < 0 || strings.ContainsAny(text[:colon], " \t,") {
				break
			}
			name := text[:colon]
			if _, dup := labels[name]; dup {
				return nil, fmt.Errorf("line %d: duplicate label %q", i+1, name)
			}
			labels[name] = len(lines)
			text = strings.TrimSpace(text[colon+1:])
		}
		if text == "" {
			continue
		}
		lines = append(lines, macroAsmLine{num: i + 1, pc: len(lines), text: text})
	}

	// Pass 2: encode
	code := make([]uint32, 0, len(lines))
	for _, l := range lines {
		w, err := assembleMacroLine(l, labels)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", l.num, err)
		}
		code = append(code, w)
	}
	return code, nil
}

// stripMacroComment drops ';' comments and whole-line '#' comments. A '#'
// elsewhere prefixes an immediate.
func stripMacroComment(line string) string {
	if strings.HasPrefix(strings.TrimSpace(line), "#") {
		return ""
	}
	if i := strings.Index(line, ";"); i >= 0 {
		return line[:i]
	}
	return line
}

func assembleMacroLine(l macroAsmLine, labels map[string]int) (uint32, error) {
	text := l.text
	exit := false
	if strings.HasSuffix(text, ".exit") {
		exit = true
		text = strings.TrimSpace(strings.TrimSuffix(text, ".exit"))
	}

	mnemonic, rest := text, ""
	if i := strings.IndexAny(text, " \t"); i >= 0 {
		mnemonic, rest = text[:i], text[i+1:]
	}
	mnemonic = strings.ToLower(mnemonic)
	result := MacroResultMove
	if operands, res, ok := strings.Cut(rest, "/"); ok {
		r, err := parseMacroResult(res)
		if err != nil {
			return 0, err
		}
		result = r
		rest = operands
	}
	ops := splitMacroOperands(rest)

	want := func(n int) error {
		if len(ops) != n {
			return fmt.Errorf("%s takes %d operands, got %d", mnemonic, n, len(ops))
		}
		return nil
	}
	regs := func(n int) ([]uint32, error) {
		out := make([]uint32, n)
		for i := 0; i < n; i++ {
			r, err := parseMacroRegister(ops[i])
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}

	var w uint32
	switch mnemonic {
	case ".word":
		if exit {
			return 0, fmt.Errorf(".word cannot carry .exit")
		}
		if err := want(1); err != nil {
			return 0, err
		}
		v, err := parseMacroNumber(ops[0])
		if err != nil {
			return 0, err
		}
		return uint32(v), nil

	case "addi", "read":
		if err := want(3); err != nil {
			return 0, err
		}
		r, err := regs(2)
		if err != nil {
			return 0, err
		}
		imm, err := parseMacroImmediate(ops[2])
		if err != nil {
			return 0, err
		}
		if mnemonic == "addi" {
			w = encodeMacroAddImmediate(result, r[0], r[1], imm)
		} else {
			w = encodeMacroRead(result, r[0], r[1], imm)
		}

	case "extins":
		if err := want(6); err != nil {
			return 0, err
		}
		r, err := regs(3)
		if err != nil {
			return 0, err
		}
		bf, err := parseMacroBitfields(ops[3:])
		if err != nil {
			return 0, err
		}
		w = encodeMacroExtractInsert(result, r[0], r[1], r[2], bf[0], bf[1], bf[2])

	case "extshli", "extshlr":
		if err := want(5); err != nil {
			return 0, err
		}
		r, err := regs(3)
		if err != nil {
			return 0, err
		}
		bf, err := parseMacroBitfields(ops[3:])
		if err != nil {
			return 0, err
		}
		if mnemonic == "extshli" {
			w = encodeMacroExtractShiftLeftImmediate(result, r[0], r[1], r[2], bf[0], bf[1])
		} else {
			w = encodeMacroExtractShiftLeftRegister(result, r[0], r[1], r[2], bf[0], bf[1])
		}

	case "bz", "bnz", "bz.a", "bnz.a":
		if err := want(2); err != nil {
			return 0, err
		}
		r, err := parseMacroRegister(ops[0])
		if err != nil {
			return 0, err
		}
		offset, err := macroBranchOffset(ops[1], l.pc, labels)
		if err != nil {
			return 0, err
		}
		cond := MacroBranchZero
		if strings.HasPrefix(mnemonic, "bnz") {
			cond = MacroBranchNotZero
		}
		w = encodeMacroBranch(cond, strings.HasSuffix(mnemonic, ".a"), r, offset)

	default:
		alu, ok := macroALUByMnemonic(mnemonic)
		if !ok {
			return 0, fmt.Errorf("unknown mnemonic %q", mnemonic)
		}
		if err := want(3); err != nil {
			return 0, err
		}
		r, err := regs(3)
		if err != nil {
			return 0, err
		}
		w = encodeMacroALU(alu, result, r[0], r[1], r[2])
	}

	if exit {
		w = withExit(w)
	}
	return w, nil
}

func parseMacroBitfields(ops []string) ([]uint32, error) {
	out := make([]uint32, len(ops))
	for i, s := range ops {
		v, err := parseMacroBitfield(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func macroBranchOffset(s string, pc int, labels map[string]int) (int32, error) {
	if target, ok := labels[s]; ok {
		return int32(target - pc), nil
	}
	return parseMacroImmediate(s)
}

func macroALUByMnemonic(s string) (MacroALUOperation, bool) {
	for op, name := range macroALUMnemonics {
		if name == s {
			return op, true
		}
	}
	return 0, false
}

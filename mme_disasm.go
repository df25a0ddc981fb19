// mme_disasm.go - MME bytecode disassembler

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
	"fmt"
	"strings"
)

// DisassembledLine is one instruction word and its listing text.
type DisassembledLine struct {
	Address  uint32 // word index
	Word     uint32
	Mnemonic string
}

var macroALUMnemonics = map[MacroALUOperation]string{
	MacroALUAdd:                "add",
	MacroALUAddWithCarry:       "addc",
	MacroALUSubtract:           "sub",
	MacroALUSubtractWithBorrow: "subb",
	MacroALUXor:                "xor",
	MacroALUOr:                 "or",
	MacroALUAnd:                "and",
	MacroALUAndNot:             "andn",
	MacroALUNand:               "nand",
}

var macroResultMnemonics = [8]string{
	MacroResultIgnoreAndFetch:               "fetch",
	MacroResultMove:                         "move",
	MacroResultMoveAndSetMethod:             "move.setm",
	MacroResultFetchAndSend:                 "fetch.send",
	MacroResultMoveAndSend:                  "move.send",
	MacroResultFetchAndSetMethod:            "fetch.setm",
	MacroResultMoveAndSetMethodFetchAndSend: "move.setm.fetch.send",
	MacroResultMoveAndSetMethodSend:         "move.setm.send",
}

// disassembleMacro lists code starting at word index base. Words that the
// assembler would not reproduce bit for bit (stray bits in unused fields,
// undefined operations) are listed as .word with the decoding as a comment.
func disassembleMacro(code []uint32, base uint32) []DisassembledLine {
	lines := make([]DisassembledLine, 0, len(code))
	for i, w := range code {
		text, canonical := disassembleMacroWord(w)
		if !canonical {
			text = fmt.Sprintf(".word 0x%08X ; %s", w, text)
		}
		lines = append(lines, DisassembledLine{Address: base + uint32(i), Word: w, Mnemonic: text})
	}
	return lines
}

// disassembleMacroWord renders one word and reports whether assembling the
// text gives the same word back.
func disassembleMacroWord(w uint32) (string, bool) {
	op := MacroOpcode(w)
	result := macroResultMnemonics[op.ResultOperation()]
	var text string
	var canon uint32

	switch op.Operation() {
	case MacroOpALU:
		name, ok := macroALUMnemonics[op.ALUOperation()]
		if !ok {
			return fmt.Sprintf("alu.%d r%d, r%d, r%d / %s", op.ALUOperation(), op.Dst(), op.SrcA(), op.SrcB(), result), false
		}
		text = fmt.Sprintf("%s r%d, r%d, r%d / %s", name, op.Dst(), op.SrcA(), op.SrcB(), result)
		canon = encodeMacroALU(op.ALUOperation(), op.ResultOperation(), op.Dst(), op.SrcA(), op.SrcB())

	case MacroOpAddImmediate:
		text = fmt.Sprintf("addi r%d, r%d, #%d / %s", op.Dst(), op.SrcA(), op.Immediate(), result)
		canon = encodeMacroAddImmediate(op.ResultOperation(), op.Dst(), op.SrcA(), op.Immediate())

	case MacroOpExtractInsert:
		text = fmt.Sprintf("extins r%d, r%d, r%d, #%d, #%d, #%d / %s",
			op.Dst(), op.SrcA(), op.SrcB(), op.BfSrcBit(), op.BfSize(), op.BfDstBit(), result)
		canon = encodeMacroExtractInsert(op.ResultOperation(), op.Dst(), op.SrcA(), op.SrcB(),
			op.BfSrcBit(), op.BfSize(), op.BfDstBit())

	case MacroOpExtractShiftLeftImmediate:
		text = fmt.Sprintf("extshli r%d, r%d, r%d, #%d, #%d / %s",
			op.Dst(), op.SrcA(), op.SrcB(), op.BfSize(), op.BfDstBit(), result)
		canon = encodeMacroExtractShiftLeftImmediate(op.ResultOperation(), op.Dst(), op.SrcA(), op.SrcB(),
			op.BfSize(), op.BfDstBit())

	case MacroOpExtractShiftLeftRegister:
		text = fmt.Sprintf("extshlr r%d, r%d, r%d, #%d, #%d / %s",
			op.Dst(), op.SrcA(), op.SrcB(), op.BfSrcBit(), op.BfSize(), result)
		canon = encodeMacroExtractShiftLeftRegister(op.ResultOperation(), op.Dst(), op.SrcA(), op.SrcB(),
			op.BfSrcBit(), op.BfSize())

	case MacroOpRead:
		text = fmt.Sprintf("read r%d, r%d, #%d / %s", op.Dst(), op.SrcA(), op.Immediate(), result)
		canon = encodeMacroRead(op.ResultOperation(), op.Dst(), op.SrcA(), op.Immediate())

	case MacroOpBranch:
		name := "bz"
		if op.BranchCondition() == MacroBranchNotZero {
			name = "bnz"
		}
		if op.BranchAnnul() {
			name += ".a"
		}
		text = fmt.Sprintf("%s r%d, %+d", name, op.SrcA(), op.BranchTarget())
		canon = encodeMacroBranch(op.BranchCondition(), op.BranchAnnul(), op.SrcA(), op.BranchTarget())

	default:
		return "unused", false
	}

	if op.IsExit() {
		text += " .exit"
		canon = withExit(canon)
	}
	return text, canon == w
}

// formatMacroListing renders lines the way the monitor and dumps print them.
func formatMacroListing(lines []DisassembledLine, pc int) string {
	var b strings.Builder
	for _, l := range lines {
		marker := "  "
		if int(l.Address) == pc {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%04X  %08X  %s\n", marker, l.Address, l.Word, l.Mnemonic)
	}
	return b.String()
}

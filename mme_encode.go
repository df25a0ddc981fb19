// mme_encode.go - MME instruction word builders

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

func macroRegFields(dst, srcA, srcB uint32) uint32 {
	return (dst&MME_REG_MASK)<<MME_DST_SHIFT |
		(srcA&MME_REG_MASK)<<MME_SRC_A_SHIFT |
		(srcB&MME_REG_MASK)<<MME_SRC_B_SHIFT
}

func macroImmediateField(imm int32) uint32 {
	return uint32(imm) << MME_IMMEDIATE_SHIFT
}

func macroResultField(r MacroResultOperation) uint32 {
	return (uint32(r) & MME_RESULT_MASK) << MME_RESULT_SHIFT
}

func encodeMacroALU(alu MacroALUOperation, result MacroResultOperation, dst, srcA, srcB uint32) uint32 {
	return uint32(MacroOpALU) | macroResultField(result) | macroRegFields(dst, srcA, srcB) |
		(uint32(alu)&MME_ALU_MASK)<<MME_ALU_SHIFT
}

func encodeMacroAddImmediate(result MacroResultOperation, dst, srcA uint32, imm int32) uint32 {
	return uint32(MacroOpAddImmediate) | macroResultField(result) |
		(dst&MME_REG_MASK)<<MME_DST_SHIFT | (srcA&MME_REG_MASK)<<MME_SRC_A_SHIFT |
		macroImmediateField(imm)
}

func encodeMacroRead(result MacroResultOperation, dst, srcA uint32, imm int32) uint32 {
	return uint32(MacroOpRead) | macroResultField(result) |
		(dst&MME_REG_MASK)<<MME_DST_SHIFT | (srcA&MME_REG_MASK)<<MME_SRC_A_SHIFT |
		macroImmediateField(imm)
}

func macroBitfields(srcBit, size, dstBit uint32) uint32 {
	return (srcBit&MME_BF_FIELD_MASK)<<MME_BF_SRC_BIT_SHIFT |
		(size&MME_BF_FIELD_MASK)<<MME_BF_SIZE_SHIFT |
		(dstBit&MME_BF_FIELD_MASK)<<MME_BF_DST_BIT_SHIFT
}

func encodeMacroExtractInsert(result MacroResultOperation, dst, srcA, srcB, srcBit, size, dstBit uint32) uint32 {
	return uint32(MacroOpExtractInsert) | macroResultField(result) |
		macroRegFields(dst, srcA, srcB) | macroBitfields(srcBit, size, dstBit)
}

func encodeMacroExtractShiftLeftImmediate(result MacroResultOperation, dst, srcA, srcB, size, dstBit uint32) uint32 {
	return uint32(MacroOpExtractShiftLeftImmediate) | macroResultField(result) |
		macroRegFields(dst, srcA, srcB) | macroBitfields(0, size, dstBit)
}

func encodeMacroExtractShiftLeftRegister(result MacroResultOperation, dst, srcA, srcB, srcBit, size uint32) uint32 {
	return uint32(MacroOpExtractShiftLeftRegister) | macroResultField(result) |
		macroRegFields(dst, srcA, srcB) | macroBitfields(srcBit, size, 0)
}

// encodeMacroBranch builds a conditional branch on srcA. offset is in words
// relative to the branch itself.
func encodeMacroBranch(cond MacroBranchCondition, annul bool, srcA uint32, offset int32) uint32 {
	w := uint32(MacroOpBranch) |
		(uint32(cond)&MME_BRANCH_COND_MASK)<<MME_BRANCH_COND_SHIFT |
		(srcA&MME_REG_MASK)<<MME_SRC_A_SHIFT |
		macroImmediateField(offset)
	if annul {
		w |= MME_BRANCH_ANNUL_MASK << MME_BRANCH_ANNUL_SHIFT
	}
	return w
}

func withExit(word uint32) uint32 {
	return word | MME_EXIT_MASK<<MME_EXIT_SHIFT
}

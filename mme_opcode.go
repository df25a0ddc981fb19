// mme_opcode.go - MME instruction decoder

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

import "fmt"

// MacroOperation is the primary operation of an instruction word.
type MacroOperation uint32

const (
	MacroOpALU                       MacroOperation = 0
	MacroOpAddImmediate              MacroOperation = 1
	MacroOpExtractInsert             MacroOperation = 2
	MacroOpExtractShiftLeftImmediate MacroOperation = 3
	MacroOpExtractShiftLeftRegister  MacroOperation = 4
	MacroOpRead                      MacroOperation = 5
	MacroOpUnused                    MacroOperation = 6 // decodes, faults when executed
	MacroOpBranch                    MacroOperation = 7
)

// MacroALUOperation selects the ALU function. Values 4-7 and 13-31 are
// undefined and fault when executed.
type MacroALUOperation uint32

const (
	MacroALUAdd                MacroALUOperation = 0
	MacroALUAddWithCarry       MacroALUOperation = 1
	MacroALUSubtract           MacroALUOperation = 2
	MacroALUSubtractWithBorrow MacroALUOperation = 3
	MacroALUXor                MacroALUOperation = 8
	MacroALUOr                 MacroALUOperation = 9
	MacroALUAnd                MacroALUOperation = 10
	MacroALUAndNot             MacroALUOperation = 11
	MacroALUNand               MacroALUOperation = 12
)

// MacroResultOperation describes what happens to a computed value.
type MacroResultOperation uint32

const (
	MacroResultIgnoreAndFetch               MacroResultOperation = 0
	MacroResultMove                         MacroResultOperation = 1
	MacroResultMoveAndSetMethod             MacroResultOperation = 2
	MacroResultFetchAndSend                 MacroResultOperation = 3
	MacroResultMoveAndSend                  MacroResultOperation = 4
	MacroResultFetchAndSetMethod            MacroResultOperation = 5
	MacroResultMoveAndSetMethodFetchAndSend MacroResultOperation = 6
	MacroResultMoveAndSetMethodSend         MacroResultOperation = 7
)

// MacroBranchCondition is the test applied to src_a by a branch.
type MacroBranchCondition uint32

const (
	MacroBranchZero    MacroBranchCondition = 0
	MacroBranchNotZero MacroBranchCondition = 1
)

// MacroOpcode is one raw MME instruction word. Every 32-bit value decodes;
// the accessors below only slice bits.
type MacroOpcode uint32

func (op MacroOpcode) Operation() MacroOperation {
	return MacroOperation((uint32(op) >> MME_OPERATION_SHIFT) & MME_OPERATION_MASK)
}

func (op MacroOpcode) ResultOperation() MacroResultOperation {
	return MacroResultOperation((uint32(op) >> MME_RESULT_SHIFT) & MME_RESULT_MASK)
}

func (op MacroOpcode) BranchCondition() MacroBranchCondition {
	return MacroBranchCondition((uint32(op) >> MME_BRANCH_COND_SHIFT) & MME_BRANCH_COND_MASK)
}

// BranchAnnul reports whether a taken branch skips its delay slot.
func (op MacroOpcode) BranchAnnul() bool {
	return (uint32(op)>>MME_BRANCH_ANNUL_SHIFT)&MME_BRANCH_ANNUL_MASK != 0
}

func (op MacroOpcode) IsExit() bool {
	return (uint32(op)>>MME_EXIT_SHIFT)&MME_EXIT_MASK != 0
}

func (op MacroOpcode) Dst() uint32 {
	return (uint32(op) >> MME_DST_SHIFT) & MME_REG_MASK
}

func (op MacroOpcode) SrcA() uint32 {
	return (uint32(op) >> MME_SRC_A_SHIFT) & MME_REG_MASK
}

func (op MacroOpcode) SrcB() uint32 {
	return (uint32(op) >> MME_SRC_B_SHIFT) & MME_REG_MASK
}

// Immediate is the sign-extended 18-bit field at the top of the word.
func (op MacroOpcode) Immediate() int32 {
	return int32(op) >> MME_IMMEDIATE_SHIFT
}

func (op MacroOpcode) ALUOperation() MacroALUOperation {
	return MacroALUOperation((uint32(op) >> MME_ALU_SHIFT) & MME_ALU_MASK)
}

func (op MacroOpcode) BfSrcBit() uint32 {
	return (uint32(op) >> MME_BF_SRC_BIT_SHIFT) & MME_BF_FIELD_MASK
}

func (op MacroOpcode) BfSize() uint32 {
	return (uint32(op) >> MME_BF_SIZE_SHIFT) & MME_BF_FIELD_MASK
}

func (op MacroOpcode) BfDstBit() uint32 {
	return (uint32(op) >> MME_BF_DST_BIT_SHIFT) & MME_BF_FIELD_MASK
}

// BitfieldMask returns the low BfSize() bits set.
func (op MacroOpcode) BitfieldMask() uint32 {
	return (uint32(1) << op.BfSize()) - 1
}

// BranchTarget is the signed word offset of a branch, relative to the
// address of the branch instruction itself.
func (op MacroOpcode) BranchTarget() int32 {
	return op.Immediate()
}

// readsRegister reports whether executing op reads register reg. Used by
// the JIT to prove a folded write is dead.
func (op MacroOpcode) readsRegister(reg uint32) bool {
	switch op.Operation() {
	case MacroOpALU, MacroOpExtractInsert, MacroOpExtractShiftLeftImmediate, MacroOpExtractShiftLeftRegister:
		return op.SrcA() == reg || op.SrcB() == reg
	case MacroOpAddImmediate, MacroOpRead, MacroOpBranch:
		return op.SrcA() == reg
	}
	return false
}

// consumesParameter reports whether the result operation fetches a parameter.
func (r MacroResultOperation) consumesParameter() bool {
	switch r {
	case MacroResultIgnoreAndFetch, MacroResultFetchAndSend, MacroResultFetchAndSetMethod,
		MacroResultMoveAndSetMethodFetchAndSend:
		return true
	}
	return false
}

func (o MacroOperation) String() string {
	switch o {
	case MacroOpALU:
		return "ALU"
	case MacroOpAddImmediate:
		return "AddImmediate"
	case MacroOpExtractInsert:
		return "ExtractInsert"
	case MacroOpExtractShiftLeftImmediate:
		return "ExtractShiftLeftImmediate"
	case MacroOpExtractShiftLeftRegister:
		return "ExtractShiftLeftRegister"
	case MacroOpRead:
		return "Read"
	case MacroOpUnused:
		return "Unused"
	case MacroOpBranch:
		return "Branch"
	}
	return fmt.Sprintf("Operation(%d)", uint32(o))
}

func (a MacroALUOperation) String() string {
	switch a {
	case MacroALUAdd:
		return "Add"
	case MacroALUAddWithCarry:
		return "AddWithCarry"
	case MacroALUSubtract:
		return "Subtract"
	case MacroALUSubtractWithBorrow:
		return "SubtractWithBorrow"
	case MacroALUXor:
		return "Xor"
	case MacroALUOr:
		return "Or"
	case MacroALUAnd:
		return "And"
	case MacroALUAndNot:
		return "AndNot"
	case MacroALUNand:
		return "Nand"
	}
	return fmt.Sprintf("ALUOperation(%d)", uint32(a))
}

// valid reports whether the ALU operation is one of the defined functions.
func (a MacroALUOperation) valid() bool {
	switch a {
	case MacroALUAdd, MacroALUAddWithCarry, MacroALUSubtract, MacroALUSubtractWithBorrow,
		MacroALUXor, MacroALUOr, MacroALUAnd, MacroALUAndNot, MacroALUNand:
		return true
	}
	return false
}

// MacroMethodAddress is the method register: a 12-bit target address and a
// 6-bit increment applied after every Send.
type MacroMethodAddress uint32

func (m MacroMethodAddress) Address() uint32 {
	return uint32(m) & MME_METHOD_ADDRESS_MASK
}

func (m MacroMethodAddress) Increment() uint32 {
	return (uint32(m) >> MME_METHOD_INCREMENT_SHIFT) & MME_METHOD_INCREMENT_MASK
}

// Advance moves the address field forward by the increment. The address
// wraps within its 12 bits; every other bit is preserved.
func (m MacroMethodAddress) Advance() MacroMethodAddress {
	next := (m.Address() + m.Increment()) & MME_METHOD_ADDRESS_MASK
	return MacroMethodAddress((uint32(m) &^ MME_METHOD_ADDRESS_MASK) | next)
}

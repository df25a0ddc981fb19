// mme_constants.go - Macro Method Engine (MME) instruction set definitions

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
mme_constants.go - MME Bytecode Field Layout and Engine Limits

The MME is the small register machine that sits in front of the 3D engine.
Guest drivers upload macros (32-bit instruction words) into instruction RAM
and later invoke them through the macro method range; a running macro drives
further method writes into the 3D engine through its Send result operations.

Instruction word layout (bit ranges are [lo, hi)):

	[0,3)   operation
	[4,7)   result operation          (overlaps branch condition / annul)
	[4,5)   branch condition
	[5,6)   branch annul
	[7,8)   exit flag
	[8,11)  dst register
	[11,14) src_a register
	[14,17) src_b register
	[14,32) signed immediate          (overlaps src_b and the ALU operation)
	[17,22) ALU operation / bitfield source bit
	[22,27) bitfield size
	[27,32) bitfield destination bit
*/

package main

// Register file
const (
	MME_NUM_REGISTERS  = 8 // r0 is hardwired to zero
	MME_ZERO_REGISTER  = 0
	MME_PARAM_REGISTER = 1 // receives the first parameter before execution
)

// Instruction field shifts and masks
const (
	MME_OPERATION_SHIFT = 0
	MME_OPERATION_MASK  = 0x7

	MME_RESULT_SHIFT = 4
	MME_RESULT_MASK  = 0x7

	MME_BRANCH_COND_SHIFT  = 4
	MME_BRANCH_COND_MASK   = 0x1
	MME_BRANCH_ANNUL_SHIFT = 5
	MME_BRANCH_ANNUL_MASK  = 0x1

	MME_EXIT_SHIFT = 7
	MME_EXIT_MASK  = 0x1

	MME_DST_SHIFT   = 8
	MME_SRC_A_SHIFT = 11
	MME_SRC_B_SHIFT = 14
	MME_REG_MASK    = 0x7

	MME_IMMEDIATE_SHIFT = 14
	MME_IMMEDIATE_BITS  = 18
	MME_IMMEDIATE_MIN   = -(1 << (MME_IMMEDIATE_BITS - 1))
	MME_IMMEDIATE_MAX   = (1 << (MME_IMMEDIATE_BITS - 1)) - 1

	MME_ALU_SHIFT = 17
	MME_ALU_MASK  = 0x1F

	MME_BF_SRC_BIT_SHIFT = 17
	MME_BF_SIZE_SHIFT    = 22
	MME_BF_DST_BIT_SHIFT = 27
	MME_BF_FIELD_MASK    = 0x1F
)

// Method address register: a target address plus a post-send increment
const (
	MME_METHOD_ADDRESS_MASK    = 0xFFF
	MME_METHOD_INCREMENT_SHIFT = 12
	MME_METHOD_INCREMENT_MASK  = 0x3F
)

// JIT limits
const (
	MME_JIT_MAX_CODE_SIZE = 0x10000 // bytes of native code per macro
	MME_JIT_SEND_QUEUE    = 64      // sends buffered before yielding to Go
)

// Dump layout
const (
	MME_DUMP_SUBDIR            = "macros"
	MME_DUMP_EXTENSION         = ".macro"
	MME_DUMP_DECOMPILED_PREFIX = "decompiled_"
)

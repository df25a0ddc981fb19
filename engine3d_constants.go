// engine3d_constants.go - 3D engine method (register) map

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
engine3d_constants.go - 3D Engine Method Definitions

Method numbers are register indices (byte offset / 4) into the 3D engine's
register file. Only the registers the macro subsystem and its replacements
touch are named here; every other method is stored and otherwise ignored.

Methods at or above ENGINE3D_MACRO_REGISTERS_START do not address registers:
an even method starts a macro call and the following odd method carries its
remaining parameters.
*/

package main

// Register file
const (
	ENGINE3D_NUM_REGS              = 0xE00
	ENGINE3D_MACRO_REGISTERS_START = 0xE00
	ENGINE3D_NUM_MACRO_POSITIONS   = 0x80
)

// Macro upload (load_mme)
const (
	ENGINE3D_MME_INSTRUCTION_PTR   = 0x45 // write: clear code at pointer
	ENGINE3D_MME_INSTRUCTION       = 0x46 // write: append word at pointer
	ENGINE3D_MME_START_ADDRESS_PTR = 0x47
	ENGINE3D_MME_START_ADDRESS     = 0x48 // write: bind position[ptr++]
	ENGINE3D_SHADOW_RAM_CONTROL    = 0x49
)

// Shadow RAM control modes
const (
	ENGINE3D_SHADOW_TRACK             = 0
	ENGINE3D_SHADOW_TRACK_WITH_FILTER = 1
	ENGINE3D_SHADOW_PASSTHROUGH       = 2
	ENGINE3D_SHADOW_REPLAY            = 3
)

// Inline upload engine
const (
	ENGINE3D_UPLOAD_LINE_LENGTH_IN = 0x60 // bytes per line
	ENGINE3D_UPLOAD_LINE_COUNT     = 0x61
	ENGINE3D_UPLOAD_DEST_ADDR_HIGH = 0x62
	ENGINE3D_UPLOAD_DEST_ADDR_LOW  = 0x63
	ENGINE3D_LAUNCH_DMA            = 0x6C
	ENGINE3D_INLINE_DATA           = 0x6D

	ENGINE3D_LAUNCH_DMA_PITCH_INLINE = 0x1011 // pitch layout, completion release
)

// Rasterizer state touched by replacements
const (
	ENGINE3D_RASTER_BOUNDING_BOX        = 0xBB
	ENGINE3D_CONSERVATIVE_RASTER_ENABLE = 0x452
)

// Transform feedback
const (
	ENGINE3D_TFB_BUFFERS              = 0xE0
	ENGINE3D_TFB_BUFFER_STRIDE        = 8
	ENGINE3D_TFB_BUFFER_START_OFFSET  = 4
	ENGINE3D_NUM_TFB_BUFFERS          = 4
	ENGINE3D_TFB_CONTROLS             = 0x1C0
	ENGINE3D_TFB_CONTROL_STRIDE       = 4
	ENGINE3D_TFB_CONTROL_STRIDE_FIELD = 2
	ENGINE3D_TFB_ENABLED              = 0x1D1
)

// Shader pipelines
const (
	ENGINE3D_PIPELINES       = 0x800
	ENGINE3D_PIPELINE_STRIDE = 0x10
	ENGINE3D_PIPELINE_OFFSET = 1
	ENGINE3D_NUM_PIPELINES   = 6
)

// Const buffer window and bind groups
const (
	ENGINE3D_CB_SIZE      = 0x8E0
	ENGINE3D_CB_ADDR_HIGH = 0x8E1
	ENGINE3D_CB_ADDR_LOW  = 0x8E2
	ENGINE3D_CB_OFFSET    = 0x8E3
	ENGINE3D_CB_DATA      = 0x8E4 // 16 aliases, 0x8E4-0x8F3
	ENGINE3D_CB_DATA_END  = 0x8F3

	ENGINE3D_BIND_GROUPS       = 0x900
	ENGINE3D_BIND_GROUP_STRIDE = 8
	ENGINE3D_BIND_GROUP_CONFIG = 4 // raw_config: bit 0 valid, bits 4-8 slot
	ENGINE3D_NUM_BIND_GROUPS   = 5
	ENGINE3D_NUM_CB_SLOTS      = 18
	ENGINE3D_BIND_VALID_MASK   = 0x1
	ENGINE3D_BIND_SLOT_SHIFT   = 4
	ENGINE3D_BIND_SLOT_MASK    = 0x1F
)

// Driver scratch space
const (
	ENGINE3D_FIRMWARE_CALL4     = 0x8C4 // falcon[4]: sets shadow_scratch[0]
	ENGINE3D_SHADOW_SCRATCH     = 0xD00
	ENGINE3D_NUM_SHADOW_SCRATCH = 0x100
)

// mme_hle.go - Native replacements for well-known guest macros

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
mme_hle.go - HLE Macro Registry

Some guest drivers upload the same handful of macros in every title. When
the content hash of an uploaded macro matches an entry here, the engine runs
the Go replacement instead of the bytecode. Replacements only touch the GPU
through the host: plain register stores go through SetRegister when the host
offers it (so shadow RAM replay does not rewrite them), everything with a
side effect goes through CallMethod.

The registry also holds Lua replacements loaded from <hash>.lua files; see
mme_hle_lua.go. A native entry wins over a script with the same hash.
*/

package main

import (
	"fmt"
	"slices"
)

// macroRegisterWriter is implemented by hosts that can store a register
// without running its method side effects.
type macroRegisterWriter interface {
	SetRegister(method, value uint32)
}

type hleNative struct {
	name      string
	minParams int
	run       func(p *hleNativeProgram, params []uint32)
}

var hleNatives = map[uint64]hleNative{
	0xC713C83D8F63CCF3: {"const-buffer-from-scratch", 1, hleConstBufferFromScratch},
	0xD7333D26E0A93EDE: {"const-buffer-from-scratch-indexed", 1, hleConstBufferFromScratchIndexed},
	0xEB29B2A09AA06D38: {"bind-shader", 5, hleBindShader},
	0xDB1341DBEB4C8AF7: {"raster-bounding-box", 1, hleRasterBoundingBox},
	0x6C97861D891EDF7E: {"clear-const-buffer-5f00", 3, hleClearConstBuffer(0x5F00)},
	0xD246FDDF3A6173D7: {"clear-const-buffer-7000", 3, hleClearConstBuffer(0x7000)},
	0xEE4D0004BEC8ECF4: {"clear-memory", 3, hleClearMemory},
	0xFC0CF27F5FFAA661: {"transform-feedback-setup", 2, hleTransformFeedbackSetup},
}

// HLEMacroRegistry maps macro content hashes to replacements.
type HLEMacroRegistry struct {
	host    MacroHost
	natives map[uint64]hleNative
	scripts map[uint64]hleScript
}

func NewHLEMacroRegistry(host MacroHost) *HLEMacroRegistry {
	return &HLEMacroRegistry{
		host:    host,
		natives: hleNatives,
		scripts: make(map[uint64]hleScript),
	}
}

// GetHLEProgram builds a fresh replacement for hash, bound to the host.
func (r *HLEMacroRegistry) GetHLEProgram(hash uint64) (CachedMacro, bool) {
	if n, ok := r.natives[hash]; ok {
		return &hleNativeProgram{host: r.host, native: n}, true
	}
	if s, ok := r.scripts[hash]; ok {
		prog, err := newLuaHLEProgram(r.host, s)
		if err != nil {
			mmeLogf("HLE script %s: %v", s.name, err)
			return nil, false
		}
		return prog, true
	}
	return nil, false
}

// Hashes lists every hash with a replacement, ascending.
func (r *HLEMacroRegistry) Hashes() []uint64 {
	out := make([]uint64, 0, len(r.natives)+len(r.scripts))
	for h := range r.natives {
		out = append(out, h)
	}
	for h := range r.scripts {
		if _, dup := r.natives[h]; !dup {
			out = append(out, h)
		}
	}
	slices.Sort(out)
	return out
}

// Describe names the replacement for hash.
func (r *HLEMacroRegistry) Describe(hash uint64) string {
	if n, ok := r.natives[hash]; ok {
		return n.name
	}
	if s, ok := r.scripts[hash]; ok {
		return "lua:" + s.name
	}
	return ""
}

type hleNativeProgram struct {
	host   MacroHost
	native hleNative
}

func (p *hleNativeProgram) Name() string { return p.native.name }

func (p *hleNativeProgram) Execute(parameters []uint32, method uint32) error {
	if len(parameters) < p.native.minParams {
		return newMacroFault(method, 0, 0, fmt.Errorf("%w: %s takes %d parameters, got %d",
			ErrMacroParameterOverrun, p.native.name, p.native.minParams, len(parameters)))
	}
	p.host.RefreshParameters()
	p.native.run(p, parameters)
	return nil
}

func (p *hleNativeProgram) set(method, value uint32) {
	if w, ok := p.host.(macroRegisterWriter); ok {
		w.SetRegister(method, value)
		return
	}
	p.host.CallMethod(method, value, true)
}

func (p *hleNativeProgram) get(method uint32) uint32 {
	return p.host.GetRegisterValue(method)
}

func (p *hleNativeProgram) scratch(i uint32) uint32 {
	return p.get(ENGINE3D_SHADOW_SCRATCH + i)
}

// setConstBuffer points the const buffer window at a 256-byte aligned
// address packed as address>>8.
func (p *hleNativeProgram) setConstBuffer(size, address uint32) {
	p.set(ENGINE3D_CB_SIZE, size)
	p.set(ENGINE3D_CB_ADDR_HIGH, (address>>24)&0xFF)
	p.set(ENGINE3D_CB_ADDR_LOW, address<<8)
}

func hleConstBufferFromScratch(p *hleNativeProgram, params []uint32) {
	offset := (params[0] & 0x3FFFFFFF) << 2
	p.setConstBuffer(0x7000, p.scratch(24))
	p.set(ENGINE3D_CB_OFFSET, offset)
}

func hleConstBufferFromScratchIndexed(p *hleNativeProgram, params []uint32) {
	index := params[0]
	address := p.scratch(42 + index)
	size := p.scratch(47 + index)
	p.setConstBuffer(size, address)
}

func hleBindShader(p *hleNativeProgram, params []uint32) {
	index := params[0]
	if params[1] == p.scratch(28+index) {
		return
	}
	p.set(ENGINE3D_PIPELINES+(index&0xF)*ENGINE3D_PIPELINE_STRIDE+ENGINE3D_PIPELINE_OFFSET, params[2])
	p.set(ENGINE3D_SHADOW_SCRATCH+28+index, params[1])
	p.set(ENGINE3D_SHADOW_SCRATCH+34+index, params[2])

	p.setConstBuffer(0x10000, params[4])

	group := params[3] & 0x7F
	if group >= ENGINE3D_NUM_BIND_GROUPS {
		mmeLogf("bind-shader: bind group %d out of range", group)
		return
	}
	p.host.CallMethod(ENGINE3D_BIND_GROUPS+group*ENGINE3D_BIND_GROUP_STRIDE+ENGINE3D_BIND_GROUP_CONFIG, 0x11, true)
}

func hleRasterBoundingBox(p *hleNativeProgram, params []uint32) {
	pad := (p.scratch(52) & p.get(ENGINE3D_CONSERVATIVE_RASTER_ENABLE)) & 0xFF
	p.set(ENGINE3D_RASTER_BOUNDING_BOX, (params[0]&0xFFFFF00F)|pad<<4)
}

func hleClearConstBuffer(baseSize uint32) func(*hleNativeProgram, []uint32) {
	return func(p *hleNativeProgram, params []uint32) {
		p.set(ENGINE3D_CB_SIZE, baseSize)
		p.set(ENGINE3D_CB_ADDR_HIGH, params[0])
		p.set(ENGINE3D_CB_ADDR_LOW, params[1])
		p.set(ENGINE3D_CB_OFFSET, 0)
		words := min(params[2]*4, baseSize)
		for i := uint32(0); i < words; i++ {
			p.host.CallMethod(ENGINE3D_CB_DATA, 0, true)
		}
	}
}

func hleClearMemory(p *hleNativeProgram, params []uint32) {
	words := params[2] / 4
	p.set(ENGINE3D_UPLOAD_LINE_LENGTH_IN, params[2])
	p.set(ENGINE3D_UPLOAD_LINE_COUNT, 1)
	p.set(ENGINE3D_UPLOAD_DEST_ADDR_HIGH, params[0])
	p.set(ENGINE3D_UPLOAD_DEST_ADDR_LOW, params[1])
	p.host.CallMethod(ENGINE3D_LAUNCH_DMA, ENGINE3D_LAUNCH_DMA_PITCH_INLINE, true)
	for i := uint32(0); i < words; i++ {
		p.host.CallMethod(ENGINE3D_INLINE_DATA, 0, i == words-1)
	}
}

func hleTransformFeedbackSetup(p *hleNativeProgram, params []uint32) {
	p.set(ENGINE3D_TFB_ENABLED, 1)
	for i := uint32(0); i < ENGINE3D_NUM_TFB_BUFFERS; i++ {
		p.set(ENGINE3D_TFB_BUFFERS+i*ENGINE3D_TFB_BUFFER_STRIDE+ENGINE3D_TFB_BUFFER_START_OFFSET, 0)
	}
	p.set(ENGINE3D_UPLOAD_LINE_LENGTH_IN, 4)
	p.set(ENGINE3D_UPLOAD_LINE_COUNT, 1)
	p.set(ENGINE3D_UPLOAD_DEST_ADDR_HIGH, params[0])
	p.set(ENGINE3D_UPLOAD_DEST_ADDR_LOW, params[1])
	p.host.CallMethod(ENGINE3D_LAUNCH_DMA, ENGINE3D_LAUNCH_DMA_PITCH_INLINE, true)
	p.host.CallMethod(ENGINE3D_INLINE_DATA, p.get(ENGINE3D_TFB_CONTROLS+ENGINE3D_TFB_CONTROL_STRIDE_FIELD), true)
}

// engine3d.go - 3D engine method interface driving the macro engine

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
engine3d.go - 3D Engine (macro host)

The 3D engine is the device the macro subsystem serves. It is emulated at
the method level only: every method write lands in a shadow register file
and a small set of methods have side effects.

Programming model:
1. Write the upload pointer to MME_INSTRUCTION_PTR (clears code there), then
   stream instruction words to MME_INSTRUCTION.
2. Write the start address pointer to MME_START_ADDRESS_PTR, then bind
   macro entry points by writing instruction RAM positions to
   MME_START_ADDRESS (the pointer auto-increments).
3. Call macro N by writing its first parameter to method 0xE00 + 2N and any
   further parameters to 0xE01 + 2N. The macro runs on the last write of
   the batch.

Side effects modelled:
- Shadow RAM: track, track-with-filter, passthrough and replay
- Const buffer window: data writes land in GPU memory at
  address + offset and advance the offset; bind groups capture it
- Inline upload: LAUNCH_DMA arms a transfer, INLINE_DATA streams words
- Firmware call 4 marks shadow_scratch[0]

GPU memory is a sparse word map; only what the macros write is kept.
The engine is driven from one goroutine.
*/

package main

// Engine3DConstBuffer is one bound const buffer slot.
type Engine3DConstBuffer struct {
	Enabled bool
	Address uint64
	Size    uint32
}

type engine3DUpload struct {
	active  bool
	dest    uint64
	size    uint32
	written uint32
}

// Engine3D implements MacroHost over a method-level register file.
type Engine3D struct {
	regs          [ENGINE3D_NUM_REGS]uint32
	shadow        [ENGINE3D_NUM_REGS]uint32
	shadowControl uint32

	macros         *MacroEngine
	macroPositions [ENGINE3D_NUM_MACRO_POSITIONS]uint32
	executingMacro uint32
	macroParams    []uint32
	inMacro        bool

	memory       map[uint64]uint32
	constBuffers [ENGINE3D_NUM_BIND_GROUPS][ENGINE3D_NUM_CB_SLOTS]Engine3DConstBuffer
	upload       engine3DUpload

	refreshes    uint64
	lastFault    error
	pendingFault error
	trace        func(method, value uint32)
}

// NewEngine3D creates a 3D engine with its own macro engine.
func NewEngine3D(config MacroConfig) *Engine3D {
	e := &Engine3D{memory: make(map[uint64]uint32)}
	e.macros = NewMacroEngine(e, config)
	return e
}

func (e *Engine3D) Macros() *MacroEngine { return e.macros }

// SetMethodTrace installs an observer called for every register method
// write, after shadow RAM processing. nil removes it.
func (e *Engine3D) SetMethodTrace(fn func(method, value uint32)) {
	e.trace = fn
}

// CallMethod writes one method.
func (e *Engine3D) CallMethod(method, argument uint32, isLastCall bool) {
	if e.executingMacro != 0 && method != e.executingMacro+1 {
		mmeLogf("engine3d: method 0x%X written while macro 0x%X collects parameters", method, e.executingMacro)
	}
	if method >= ENGINE3D_MACRO_REGISTERS_START {
		e.processMacro(method, []uint32{argument}, isLastCall)
		return
	}
	if method >= ENGINE3D_NUM_REGS {
		mmeLogf("engine3d: invalid register 0x%X", method)
		return
	}

	value := e.processShadowRAM(method, argument)
	e.regs[method] = value
	if e.trace != nil {
		e.trace(method, value)
	}
	e.processMethodCall(method, value, argument, isLastCall)
}

// CallMultiMethod writes a run of arguments to one method. methodsPending
// counts the writes still queued for it, these included.
func (e *Engine3D) CallMultiMethod(method uint32, arguments []uint32, methodsPending uint32) {
	if len(arguments) == 0 {
		return
	}
	if method >= ENGINE3D_MACRO_REGISTERS_START {
		e.processMacro(method, arguments, uint32(len(arguments)) == methodsPending)
		return
	}
	switch {
	case method >= ENGINE3D_CB_DATA && method <= ENGINE3D_CB_DATA_END:
		for _, v := range arguments {
			e.regs[method] = v
		}
		e.processCBData(arguments)
	case method == ENGINE3D_INLINE_DATA:
		for i, v := range arguments {
			e.regs[method] = v
			e.processUploadData(v, i == len(arguments)-1)
		}
	default:
		for i, v := range arguments {
			e.CallMethod(method, v, methodsPending-uint32(i) <= 1)
		}
	}
}

func (e *Engine3D) GetRegisterValue(method uint32) uint32 {
	if method >= ENGINE3D_NUM_REGS {
		mmeLogf("engine3d: read of invalid register 0x%X", method)
		return 0
	}
	return e.regs[method]
}

// SetRegister stores a register without shadow RAM or side effects.
func (e *Engine3D) SetRegister(method, value uint32) {
	if method >= ENGINE3D_NUM_REGS {
		mmeLogf("engine3d: write of invalid register 0x%X", method)
		return
	}
	e.regs[method] = value
	if e.trace != nil {
		e.trace(method, value)
	}
}

// RefreshParameters would re-read macro parameters fetched from GPU memory.
// Parameters here always arrive inline, so it only counts.
func (e *Engine3D) RefreshParameters() {
	e.refreshes++
}

func (e *Engine3D) RefreshCount() uint64 { return e.refreshes }

func (e *Engine3D) processShadowRAM(method, argument uint32) uint32 {
	switch e.shadowControl {
	case ENGINE3D_SHADOW_TRACK, ENGINE3D_SHADOW_TRACK_WITH_FILTER:
		e.shadow[method] = argument
		return argument
	case ENGINE3D_SHADOW_REPLAY:
		return e.shadow[method]
	}
	return argument
}

func (e *Engine3D) processMethodCall(method, argument, nonShadowArgument uint32, isLastCall bool) {
	switch {
	case method == ENGINE3D_SHADOW_RAM_CONTROL:
		e.shadowControl = nonShadowArgument
	case method == ENGINE3D_MME_INSTRUCTION_PTR:
		e.macros.ClearCode(e.regs[ENGINE3D_MME_INSTRUCTION_PTR])
	case method == ENGINE3D_MME_INSTRUCTION:
		e.macros.AddCode(e.regs[ENGINE3D_MME_INSTRUCTION_PTR], argument)
	case method == ENGINE3D_MME_START_ADDRESS:
		e.processMacroBind(argument)
	case method == ENGINE3D_FIRMWARE_CALL4:
		e.regs[ENGINE3D_SHADOW_SCRATCH] = 1
	case method >= ENGINE3D_CB_DATA && method <= ENGINE3D_CB_DATA_END:
		e.processCBData([]uint32{argument})
	case method >= ENGINE3D_BIND_GROUPS &&
		method < ENGINE3D_BIND_GROUPS+ENGINE3D_NUM_BIND_GROUPS*ENGINE3D_BIND_GROUP_STRIDE &&
		(method-ENGINE3D_BIND_GROUPS)%ENGINE3D_BIND_GROUP_STRIDE == ENGINE3D_BIND_GROUP_CONFIG:
		e.processCBBind((method - ENGINE3D_BIND_GROUPS) / ENGINE3D_BIND_GROUP_STRIDE)
	case method == ENGINE3D_LAUNCH_DMA:
		e.processUploadExec()
	case method == ENGINE3D_INLINE_DATA:
		e.processUploadData(argument, isLastCall)
	}
}

// ---------------------------------------------------------------------
// Macro calls
// ---------------------------------------------------------------------

func (e *Engine3D) processMacroBind(position uint32) {
	ptr := e.regs[ENGINE3D_MME_START_ADDRESS_PTR]
	if ptr >= ENGINE3D_NUM_MACRO_POSITIONS {
		mmeLogf("engine3d: macro position %d out of range", ptr)
		return
	}
	e.macroPositions[ptr] = position
	e.regs[ENGINE3D_MME_START_ADDRESS_PTR] = ptr + 1
}

func (e *Engine3D) processMacro(method uint32, arguments []uint32, isLastCall bool) {
	if e.inMacro {
		mmeLogf("engine3d: macro method 0x%X written from inside a macro, ignored", method)
		return
	}
	if e.executingMacro == 0 {
		if method%2 != 0 {
			mmeLogf("engine3d: macro call cannot start at argument method 0x%X", method)
			return
		}
		e.executingMacro = method
	}
	e.macroParams = append(e.macroParams, arguments...)
	if isLastCall {
		e.callMacroMethod(e.executingMacro, e.macroParams)
		e.macroParams = e.macroParams[:0]
	}
}

func (e *Engine3D) callMacroMethod(method uint32, parameters []uint32) {
	e.executingMacro = 0
	entry := ((method - ENGINE3D_MACRO_REGISTERS_START) >> 1) % ENGINE3D_NUM_MACRO_POSITIONS

	if err := e.ExecuteMacro(e.macroPositions[entry], parameters); err != nil {
		e.pendingFault = err
	}
}

// ExecuteMacro runs the program at instruction RAM position pos directly,
// without a macro method call. Macro methods it writes are rejected like
// those of any running macro.
func (e *Engine3D) ExecuteMacro(pos uint32, parameters []uint32) error {
	e.inMacro = true
	err := e.macros.Execute(pos, parameters)
	e.inMacro = false
	if err != nil {
		e.lastFault = err
	}
	return err
}

// MacroPosition returns the instruction RAM position bound to macro n.
func (e *Engine3D) MacroPosition(n uint32) uint32 {
	return e.macroPositions[n%ENGINE3D_NUM_MACRO_POSITIONS]
}

// LastMacroFault is the most recent error returned by a macro.
func (e *Engine3D) LastMacroFault() error { return e.lastFault }

// takeMacroFault returns the fault raised since the previous call, if any.
func (e *Engine3D) takeMacroFault() error {
	err := e.pendingFault
	e.pendingFault = nil
	return err
}

// ---------------------------------------------------------------------
// Const buffers
// ---------------------------------------------------------------------

func (e *Engine3D) constBufferAddress() uint64 {
	return uint64(e.regs[ENGINE3D_CB_ADDR_HIGH])<<32 | uint64(e.regs[ENGINE3D_CB_ADDR_LOW])
}

func (e *Engine3D) processCBData(values []uint32) {
	base := e.constBufferAddress()
	if base == 0 {
		mmeLogf("engine3d: const buffer write with no buffer address")
		return
	}
	offset := e.regs[ENGINE3D_CB_OFFSET]
	if offset > e.regs[ENGINE3D_CB_SIZE] {
		mmeLogf("engine3d: const buffer offset 0x%X past size 0x%X", offset, e.regs[ENGINE3D_CB_SIZE])
		return
	}
	for i, v := range values {
		e.memory[base+uint64(offset)+uint64(i)*4] = v
	}
	e.regs[ENGINE3D_CB_OFFSET] = offset + uint32(len(values))*4
}

func (e *Engine3D) processCBBind(stage uint32) {
	config := e.regs[ENGINE3D_BIND_GROUPS+stage*ENGINE3D_BIND_GROUP_STRIDE+ENGINE3D_BIND_GROUP_CONFIG]
	slot := (config >> ENGINE3D_BIND_SLOT_SHIFT) & ENGINE3D_BIND_SLOT_MASK
	if slot >= ENGINE3D_NUM_CB_SLOTS {
		mmeLogf("engine3d: const buffer slot %d out of range", slot)
		return
	}
	e.constBuffers[stage][slot] = Engine3DConstBuffer{
		Enabled: config&ENGINE3D_BIND_VALID_MASK != 0,
		Address: e.constBufferAddress(),
		Size:    e.regs[ENGINE3D_CB_SIZE],
	}
}

// ConstBuffer returns the binding of slot in a shader stage.
func (e *Engine3D) ConstBuffer(stage, slot uint32) Engine3DConstBuffer {
	if stage >= ENGINE3D_NUM_BIND_GROUPS || slot >= ENGINE3D_NUM_CB_SLOTS {
		return Engine3DConstBuffer{}
	}
	return e.constBuffers[stage][slot]
}

// ---------------------------------------------------------------------
// Inline upload and GPU memory
// ---------------------------------------------------------------------

func (e *Engine3D) processUploadExec() {
	e.upload = engine3DUpload{
		active: true,
		dest:   uint64(e.regs[ENGINE3D_UPLOAD_DEST_ADDR_HIGH])<<32 | uint64(e.regs[ENGINE3D_UPLOAD_DEST_ADDR_LOW]),
		size:   e.regs[ENGINE3D_UPLOAD_LINE_LENGTH_IN] * e.regs[ENGINE3D_UPLOAD_LINE_COUNT],
	}
}

func (e *Engine3D) processUploadData(value uint32, isLastCall bool) {
	if !e.upload.active {
		mmeLogf("engine3d: inline data 0x%08X with no upload in progress", value)
		return
	}
	if e.upload.written < e.upload.size {
		e.memory[e.upload.dest+uint64(e.upload.written)] = value
		e.upload.written += 4
	}
	if isLastCall || e.upload.written >= e.upload.size {
		e.upload.active = false
	}
}

// ReadGPUWord returns the word at a GPU virtual address, zero if it was
// never written.
func (e *Engine3D) ReadGPUWord(addr uint64) uint32 {
	return e.memory[addr]
}

// WriteGPUWord stores a word in GPU memory.
func (e *Engine3D) WriteGPUWord(addr uint64, value uint32) {
	e.memory[addr] = value
}

func (e *Engine3D) Destroy() {
	e.macros.Destroy()
}

// mme_engine.go - Macro upload buffer, program cache and dispatcher

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
mme_engine.go - Macro Engine

The engine owns everything the guest uploads through the macro interface:

  - uploaded: method -> instruction words, appended by AddCode
  - cache:    method -> compiled program (always) plus an optional HLE
              replacement found by content hash

Execute resolves a method through the cache. On a miss the code is looked up
(directly, or as the tail of a larger upload that covers the method), hashed,
compiled with the configured backend and checked against the HLE registry.
The compiled program is kept even when a replacement wins so dumps and the
monitor can still reach the original bytecode.

The engine is driven from the GPU command path and is not safe for
concurrent use.
*/

package main

import (
	"fmt"
	"slices"
)

// MacroHost is the GPU engine a macro drives.
type MacroHost interface {
	// CallMethod writes argument to a method. isLastCall marks the final
	// write of a batch.
	CallMethod(method, argument uint32, isLastCall bool)
	GetRegisterValue(method uint32) uint32
	// RefreshParameters brings lazily tracked state up to date before a
	// macro that may Read it.
	RefreshParameters()
}

// CachedMacro is one runnable program, interpreted, native or HLE.
type CachedMacro interface {
	Execute(parameters []uint32, method uint32) error
}

// MacroBackend turns bytecode into a CachedMacro.
type MacroBackend interface {
	Name() string
	Compile(code []uint32) (CachedMacro, error)
}

// Optional CachedMacro capabilities.
type (
	macroDestroyer interface{ Destroy() }
	macroNamer     interface{ Name() string }
	macroLister    interface{ Disassembly() string }
)

// MacroConfig replaces the global switches of a full emulator.
type MacroConfig struct {
	DisableMacroJIT bool   // force the interpreter engine-wide
	DisableMacroHLE bool   // always run the uploaded bytecode
	DumpMacros      bool   // write every compiled macro under DumpDir
	DumpDir         string // root of the dump tree; macros go in DumpDir/macros
	HLEScriptDir    string // directory of <hash>.lua replacements, empty for none
}

func DefaultMacroConfig() MacroConfig {
	return MacroConfig{DumpDir: "dump"}
}

type macroCacheEntry struct {
	hash    uint64
	code    []uint32
	lle     CachedMacro
	backend string
	hle     CachedMacro
}

func (e *macroCacheEntry) destroy() {
	if d, ok := e.lle.(macroDestroyer); ok {
		d.Destroy()
	}
	if d, ok := e.hle.(macroDestroyer); ok {
		d.Destroy()
	}
}

// MacroCacheInfo describes a cache entry for diagnostics.
type MacroCacheInfo struct {
	Hash    uint64
	Words   int
	Backend string
	HLE     string // empty when the bytecode runs
}

// MacroEngineStats counts dispatcher events since construction.
type MacroEngineStats struct {
	Uploads      uint64
	Clears       uint64
	ColdCompiles uint64
	LLERuns      uint64
	HLERuns      uint64
	JITFallbacks uint64
	Faults       uint64
}

type MacroEngine struct {
	host        MacroHost
	config      MacroConfig
	backend     MacroBackend
	interpreter *MacroInterpreter
	hle         *HLEMacroRegistry

	uploaded map[uint32][]uint32
	aliases  map[uint32]uint32 // materialised method -> base it was cut from
	cache    map[uint32]*macroCacheEntry

	stats   MacroEngineStats
	running bool
}

// NewMacroEngine builds an engine bound to host. The JIT is used when the
// host can run it and config does not disable it.
func NewMacroEngine(host MacroHost, config MacroConfig) *MacroEngine {
	m := &MacroEngine{
		host:        host,
		config:      config,
		interpreter: NewMacroInterpreter(host),
		hle:         NewHLEMacroRegistry(host),
		uploaded:    make(map[uint32][]uint32),
		aliases:     make(map[uint32]uint32),
		cache:       make(map[uint32]*macroCacheEntry),
	}
	m.backend = m.interpreter
	if !config.DisableMacroJIT {
		if jit, err := NewMacroJIT(host); err == nil {
			m.backend = jit
		} else {
			mmeLogf("using interpreter: %v", err)
		}
	}
	if config.HLEScriptDir != "" {
		if n, err := m.hle.LoadHLEScripts(config.HLEScriptDir); err != nil {
			mmeLogf("loading HLE scripts: %v", err)
		} else {
			mmeLogf("loaded %d HLE scripts from %s", n, config.HLEScriptDir)
		}
	}
	return m
}

// Backend is the name of the default LLE backend.
func (m *MacroEngine) Backend() string { return m.backend.Name() }

func (m *MacroEngine) HLE() *HLEMacroRegistry { return m.hle }

// AddCode appends one word to the upload buffer for method.
func (m *MacroEngine) AddCode(method, data uint32) {
	m.uploaded[method] = append(m.uploaded[method], data)
	m.stats.Uploads++
}

// ClearCode forgets the upload buffer and cached program for method, and
// for every method whose code was cut from it.
func (m *MacroEngine) ClearCode(method uint32) {
	m.erase(method)
	for alias, base := range m.aliases {
		if base == method {
			m.erase(alias)
		}
	}
	m.stats.Clears++
}

func (m *MacroEngine) erase(method uint32) {
	if e, ok := m.cache[method]; ok {
		e.destroy()
		delete(m.cache, method)
	}
	delete(m.uploaded, method)
	delete(m.aliases, method)
}

// Execute runs the macro bound to method. Faults are logged and returned;
// sends the macro issued before faulting stay issued. A host that calls
// Execute again from inside a send gets ErrMacroReentered.
func (m *MacroEngine) Execute(method uint32, parameters []uint32) error {
	if m.running {
		m.stats.Faults++
		err := newMacroFault(method, 0, 0, ErrMacroReentered)
		mmeLogf("%v", err)
		return err
	}
	entry, ok := m.cache[method]
	if !ok {
		var err error
		if entry, err = m.compile(method); err != nil {
			m.stats.Faults++
			mmeLogf("%v", err)
			return err
		}
	}
	m.running = true
	err := m.run(entry, method, parameters)
	m.running = false
	if err != nil {
		m.stats.Faults++
		mmeLogf("%v", err)
	}
	return err
}

func (m *MacroEngine) run(e *macroCacheEntry, method uint32, parameters []uint32) error {
	if e.hle != nil {
		m.stats.HLERuns++
		return e.hle.Execute(parameters, method)
	}
	m.stats.LLERuns++
	m.host.RefreshParameters()
	return e.lle.Execute(parameters, method)
}

func (m *MacroEngine) compile(method uint32) (*macroCacheEntry, error) {
	code, ok := m.uploaded[method]
	if !ok {
		base, found := m.findAliasBase(method)
		if !found {
			return nil, newMacroFault(method, 0, 0, ErrMacroNotUploaded)
		}
		code = slices.Clone(m.uploaded[base][method-base:])
		m.uploaded[method] = code
		m.aliases[method] = base
	}
	if len(code) == 0 {
		return nil, newMacroFault(method, 0, 0, ErrMacroNotUploaded)
	}

	e := &macroCacheEntry{hash: hashMacroCode(code), code: slices.Clone(code)}
	prog, err := m.backend.Compile(code)
	e.backend = m.backend.Name()
	if err != nil {
		m.stats.JITFallbacks++
		mmeLogf("macro 0x%X: %s failed, interpreting: %v", method, m.backend.Name(), err)
		if prog, err = m.interpreter.Compile(code); err != nil {
			return nil, fmt.Errorf("macro 0x%X: %w", method, err)
		}
		e.backend = m.interpreter.Name()
	}
	e.lle = prog

	if !m.config.DisableMacroHLE {
		if hle, ok := m.hle.GetHLEProgram(e.hash); ok {
			e.hle = hle
		}
	}
	if m.config.DumpMacros {
		dumpMacro(m.config.DumpDir, e)
	}
	m.cache[method] = e
	m.stats.ColdCompiles++
	return e, nil
}

// findAliasBase returns the lowest uploaded method whose code covers
// method.
func (m *MacroEngine) findAliasBase(method uint32) (uint32, bool) {
	bases := make([]uint32, 0, len(m.uploaded))
	for base := range m.uploaded {
		bases = append(bases, base)
	}
	slices.Sort(bases)
	for _, base := range bases {
		if base > method {
			break
		}
		if int(method-base) < len(m.uploaded[base]) {
			return base, true
		}
	}
	return 0, false
}

// hashMacroCode folds the words with the boost hash_combine mix.
func hashMacroCode(code []uint32) uint64 {
	var seed uint64
	for _, w := range code {
		seed ^= uint64(w) + 0x9e3779b9 + (seed << 6) + (seed >> 2)
	}
	return seed
}

func (m *MacroEngine) Stats() MacroEngineStats { return m.stats }

// CachedMethods lists methods with a compiled program, ascending.
func (m *MacroEngine) CachedMethods() []uint32 {
	out := make([]uint32, 0, len(m.cache))
	for method := range m.cache {
		out = append(out, method)
	}
	slices.Sort(out)
	return out
}

// UploadedMethods lists methods with an upload buffer, ascending.
func (m *MacroEngine) UploadedMethods() []uint32 {
	out := make([]uint32, 0, len(m.uploaded))
	for method := range m.uploaded {
		out = append(out, method)
	}
	slices.Sort(out)
	return out
}

func (m *MacroEngine) UploadedCode(method uint32) []uint32 {
	return slices.Clone(m.uploaded[method])
}

func (m *MacroEngine) CacheEntry(method uint32) (MacroCacheInfo, bool) {
	e, ok := m.cache[method]
	if !ok {
		return MacroCacheInfo{}, false
	}
	info := MacroCacheInfo{Hash: e.hash, Words: len(e.code), Backend: e.backend}
	if e.hle != nil {
		info.HLE = "native"
		if n, ok := e.hle.(macroNamer); ok {
			info.HLE = n.Name()
		}
	}
	return info, true
}

// NativeListing returns the generated machine code for method, if its
// program was compiled by the JIT.
func (m *MacroEngine) NativeListing(method uint32) (string, bool) {
	e, ok := m.cache[method]
	if !ok {
		return "", false
	}
	l, ok := e.lle.(macroLister)
	if !ok {
		return "", false
	}
	return l.Disassembly(), true
}

// MacroProgramState is the machine state a bytecode program was left in.
type MacroProgramState struct {
	Registers     [MME_NUM_REGISTERS]uint32
	Carry         bool
	CarryTracked  bool // false when the program never computed the carry
	MethodAddress MacroMethodAddress
}

type macroStateView interface {
	Registers() [MME_NUM_REGISTERS]uint32
	CarryFlag() bool
	MethodAddress() MacroMethodAddress
}

// macroCarryTracker is implemented by programs that may skip the carry.
type macroCarryTracker interface{ CarryTracked() bool }

// ProgramState reports the state left by the last bytecode run of method.
// HLE runs do not touch it.
func (m *MacroEngine) ProgramState(method uint32) (MacroProgramState, bool) {
	e, ok := m.cache[method]
	if !ok {
		return MacroProgramState{}, false
	}
	v, ok := e.lle.(macroStateView)
	if !ok {
		return MacroProgramState{}, false
	}
	st := MacroProgramState{
		Registers:     v.Registers(),
		Carry:         v.CarryFlag(),
		CarryTracked:  true,
		MethodAddress: v.MethodAddress(),
	}
	if c, ok := e.lle.(macroCarryTracker); ok && !c.CarryTracked() {
		st.Carry, st.CarryTracked = false, false
	}
	return st, true
}

// Destroy releases every cached program.
func (m *MacroEngine) Destroy() {
	for method, e := range m.cache {
		e.destroy()
		delete(m.cache, method)
	}
}

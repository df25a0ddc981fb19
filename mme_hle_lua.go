// mme_hle_lua.go - Lua scripted macro replacements

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
mme_hle_lua.go - Scripted HLE

A replacement script is a file named after the macro hash, for example
c713c83d8f63ccf3.lua, defining

	function execute(params, method) ... end

params is a 1-based array of the macro parameters. The script reaches the
GPU through the gpu table:

	gpu.call(method, value [, last])  method write, last defaults to true
	gpu.read(method)                  register read
	gpu.refresh()                     RefreshParameters
	gpu.fault(message)                abort with a macro fault

and a bit table (band, bor, bxor, bnot, lshift, rshift) for 32-bit
arithmetic. Only the base, table, string and math libraries are opened.
Each program owns its own interpreter state; scripts are compiled once at
load time and the bytecode is shared.
*/

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

func init() {
	compiledFeatures = append(compiledFeatures, "hle:lua")
}

type hleScript struct {
	name  string
	proto *lua.FunctionProto
}

// LoadHLEScripts registers every <16 hex digits>.lua file in dir and
// returns how many were loaded. A script that fails to compile aborts the
// load.
func (r *HLEMacroRegistry) LoadHLEScripts(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, entry := range entries {
		name := entry.Name()
		stem, ok := strings.CutSuffix(name, ".lua")
		if !ok || entry.IsDir() || len(stem) != 16 {
			continue
		}
		hash, err := strconv.ParseUint(stem, 16, 64)
		if err != nil {
			continue
		}
		src, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return n, err
		}
		if err := r.AddHLEScript(hash, name, string(src)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// AddHLEScript compiles source and registers it for hash.
func (r *HLEMacroRegistry) AddHLEScript(hash uint64, name, source string) error {
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if _, native := r.natives[hash]; native {
		mmeLogf("HLE script %s shadowed by native replacement %s", name, r.natives[hash].name)
	}
	r.scripts[hash] = hleScript{name: name, proto: proto}
	return nil
}

type luaHLEProgram struct {
	host MacroHost
	name string
	L    *lua.LState
}

func newLuaHLEProgram(host MacroHost, s hleScript) (*luaHLEProgram, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, err
		}
	}

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}

	p := &luaHLEProgram{host: host, name: s.name, L: L}
	p.registerGPU()
	registerLuaBit(L)

	L.Push(L.NewFunctionFromProto(s.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, err
	}
	if L.GetGlobal("execute").Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("%s does not define execute(params, method)", s.name)
	}
	return p, nil
}

func (p *luaHLEProgram) Name() string { return "lua:" + p.name }

func (p *luaHLEProgram) Execute(parameters []uint32, method uint32) error {
	if p.L == nil {
		return newMacroFault(method, 0, 0, fmt.Errorf("%w: %s: program destroyed", ErrMacroHLEScript, p.name))
	}
	params := p.L.NewTable()
	for i, v := range parameters {
		params.RawSetInt(i+1, lua.LNumber(v))
	}
	err := p.L.CallByParam(lua.P{Fn: p.L.GetGlobal("execute"), NRet: 0, Protect: true},
		params, lua.LNumber(method))
	if err != nil {
		return newMacroFault(method, 0, 0, fmt.Errorf("%w: %s: %v", ErrMacroHLEScript, p.name, err))
	}
	return nil
}

func (p *luaHLEProgram) Destroy() {
	if p.L != nil {
		p.L.Close()
		p.L = nil
	}
}

func (p *luaHLEProgram) registerGPU() {
	L := p.L
	gpu := L.NewTable()
	L.SetField(gpu, "call", L.NewFunction(func(L *lua.LState) int {
		method := luaCheckU32(L, 1)
		value := luaCheckU32(L, 2)
		last := true
		if L.GetTop() >= 3 {
			last = L.ToBool(3)
		}
		p.host.CallMethod(method, value, last)
		return 0
	}))
	L.SetField(gpu, "read", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(p.host.GetRegisterValue(luaCheckU32(L, 1))))
		return 1
	}))
	L.SetField(gpu, "refresh", L.NewFunction(func(L *lua.LState) int {
		p.host.RefreshParameters()
		return 0
	}))
	L.SetField(gpu, "fault", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("%s", L.CheckString(1))
		return 0
	}))
	L.SetGlobal("gpu", gpu)
}

func luaCheckU32(L *lua.LState, n int) uint32 {
	return uint32(int64(L.CheckNumber(n)))
}

func registerLuaBit(L *lua.LState) {
	bit := L.NewTable()
	binary := func(op func(a, b uint32) uint32) *lua.LFunction {
		return L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LNumber(op(luaCheckU32(L, 1), luaCheckU32(L, 2))))
			return 1
		})
	}
	L.SetField(bit, "band", binary(func(a, b uint32) uint32 { return a & b }))
	L.SetField(bit, "bor", binary(func(a, b uint32) uint32 { return a | b }))
	L.SetField(bit, "bxor", binary(func(a, b uint32) uint32 { return a ^ b }))
	L.SetField(bit, "lshift", binary(func(a, b uint32) uint32 { return a << (b & 31) }))
	L.SetField(bit, "rshift", binary(func(a, b uint32) uint32 { return a >> (b & 31) }))
	L.SetField(bit, "bnot", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(^luaCheckU32(L, 1)))
		return 1
	}))
	L.SetGlobal("bit", bit)
}

// macro_monitor.go - Interactive macro monitor

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
macro_monitor.go - Macro Monitor

A line-oriented monitor over a live Engine3D. Commands:

	upload <pos> <word>...       load words at instruction RAM position pos
	asm <pos> <file>             assemble a source file and upload it
	clear <pos>                  forget the code and program at pos
	bind <n> <pos>               bind macro n to position pos
	call <n> <param>...          call macro n through its methods
	exec <pos> <param>...        run the program at pos directly
	dis <pos> [x64]              list uploaded code, or the native code
	cache                        list compiled programs
	regs <pos>                   registers left by the last run of pos
	reg <method> [value]         read or write an engine register
	mem <addr> [value]           read or write a GPU memory word
	uploads                      list uploaded positions
	hle                          list HLE replacements by hash
	stats                        engine counters
	help                         this list
	quit                         leave the monitor

Numbers accept $hex, 0xhex, #decimal or bare hex, like the machine monitor.
*/

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// MonitorCommand is a parsed command with name and arguments.
type MonitorCommand struct {
	Name string
	Args []string
}

// ParseCommand splits a raw input line into a command name and arguments.
func ParseCommand(input string) MonitorCommand {
	input = strings.TrimSpace(input)
	if input == "" {
		return MonitorCommand{}
	}
	parts := strings.Fields(input)
	return MonitorCommand{
		Name: strings.ToLower(parts[0]),
		Args: parts[1:],
	}
}

// ParseAddress parses a monitor number in various formats:
// $hex, 0xhex, bare hex, #decimal
func ParseAddress(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	// #decimal
	if strings.HasPrefix(s, "#") {
		v, err := strconv.ParseUint(s[1:], 10, 64)
		return v, err == nil
	}

	// $hex
	if strings.HasPrefix(s, "$") {
		v, err := strconv.ParseUint(s[1:], 16, 64)
		return v, err == nil
	}

	// 0x or 0X hex
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		return v, err == nil
	}

	v, err := strconv.ParseUint(s, 16, 64)
	return v, err == nil
}

func parseMonitorWords(args []string) ([]uint32, error) {
	out := make([]uint32, 0, len(args))
	for _, a := range args {
		v, ok := ParseAddress(a)
		if !ok || v > 0xFFFFFFFF {
			return nil, fmt.Errorf("bad value %q", a)
		}
		out = append(out, uint32(v))
	}
	return out, nil
}

// MacroMonitor runs monitor commands against an engine.
type MacroMonitor struct {
	engine *Engine3D
	out    io.Writer
}

func NewMacroMonitor(engine *Engine3D, out io.Writer) *MacroMonitor {
	return &MacroMonitor{engine: engine, out: out}
}

var errMonitorQuit = errors.New("quit")

// ExecuteCommand runs one line. It returns false when the monitor should
// exit.
func (m *MacroMonitor) ExecuteCommand(line string) bool {
	cmd := ParseCommand(line)
	if cmd.Name == "" {
		return true
	}
	err := m.dispatch(cmd)
	if errors.Is(err, errMonitorQuit) {
		return false
	}
	if err != nil {
		fmt.Fprintf(m.out, "error: %v\n", err)
	}
	return true
}

func (m *MacroMonitor) dispatch(cmd MonitorCommand) error {
	switch cmd.Name {
	case "upload":
		return m.cmdUpload(cmd.Args)
	case "asm":
		return m.cmdAsm(cmd.Args)
	case "clear":
		return m.cmdClear(cmd.Args)
	case "bind":
		return m.cmdBind(cmd.Args)
	case "call":
		return m.cmdCall(cmd.Args)
	case "exec":
		return m.cmdExec(cmd.Args)
	case "dis":
		return m.cmdDis(cmd.Args)
	case "cache":
		return m.cmdCache()
	case "regs":
		return m.cmdRegs(cmd.Args)
	case "reg":
		return m.cmdReg(cmd.Args)
	case "mem":
		return m.cmdMem(cmd.Args)
	case "uploads":
		m.cmdUploads()
		return nil
	case "hle":
		m.cmdHLE()
		return nil
	case "stats":
		return m.cmdStats()
	case "help", "?":
		m.cmdHelp()
		return nil
	case "quit", "exit", "q":
		return errMonitorQuit
	}
	return fmt.Errorf("unknown command %q (try help)", cmd.Name)
}

func (m *MacroMonitor) upload(pos uint32, words []uint32) {
	m.engine.CallMethod(ENGINE3D_MME_INSTRUCTION_PTR, pos, true)
	m.engine.CallMultiMethod(ENGINE3D_MME_INSTRUCTION, words, uint32(len(words)))
	fmt.Fprintf(m.out, "%d words at %04X\n", len(words), pos)
}

func (m *MacroMonitor) cmdUpload(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: upload <pos> <word>...")
	}
	words, err := parseMonitorWords(args)
	if err != nil {
		return err
	}
	m.upload(words[0], words[1:])
	return nil
}

func (m *MacroMonitor) cmdAsm(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: asm <pos> <file>")
	}
	pos, err := parseMonitorWords(args[:1])
	if err != nil {
		return err
	}
	src, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	words, err := assembleMacro(string(src))
	if err != nil {
		return fmt.Errorf("%s: %w", args[1], err)
	}
	m.upload(pos[0], words)
	return nil
}

func (m *MacroMonitor) cmdClear(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: clear <pos>")
	}
	pos, err := parseMonitorWords(args)
	if err != nil {
		return err
	}
	m.engine.Macros().ClearCode(pos[0])
	return nil
}

func (m *MacroMonitor) cmdBind(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: bind <n> <pos>")
	}
	v, err := parseMonitorWords(args)
	if err != nil {
		return err
	}
	if v[0] >= ENGINE3D_NUM_MACRO_POSITIONS {
		return fmt.Errorf("macro %d out of range", v[0])
	}
	m.engine.CallMethod(ENGINE3D_MME_START_ADDRESS_PTR, v[0], true)
	m.engine.CallMethod(ENGINE3D_MME_START_ADDRESS, v[1], true)
	return nil
}

func (m *MacroMonitor) cmdCall(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: call <n> <param>...")
	}
	v, err := parseMonitorWords(args)
	if err != nil {
		return err
	}
	m.engine.takeMacroFault()
	method := ENGINE3D_MACRO_REGISTERS_START + (v[0]%ENGINE3D_NUM_MACRO_POSITIONS)*2
	m.engine.CallMultiMethod(method, v[1:], uint32(len(v)-1))
	return m.engine.takeMacroFault()
}

func (m *MacroMonitor) cmdExec(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: exec <pos> <param>...")
	}
	v, err := parseMonitorWords(args)
	if err != nil {
		return err
	}
	return m.engine.ExecuteMacro(v[0], v[1:])
}

func (m *MacroMonitor) cmdDis(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: dis <pos> [x64]")
	}
	pos, err := parseMonitorWords(args[:1])
	if err != nil {
		return err
	}
	if len(args) == 2 {
		listing, ok := m.engine.Macros().NativeListing(pos[0])
		if !ok {
			return fmt.Errorf("no native code for %04X", pos[0])
		}
		fmt.Fprint(m.out, listing)
		return nil
	}
	code := m.engine.Macros().UploadedCode(pos[0])
	if len(code) == 0 {
		return fmt.Errorf("nothing uploaded at %04X", pos[0])
	}
	fmt.Fprint(m.out, formatMacroListing(disassembleMacro(code, pos[0]), -1))
	return nil
}

func (m *MacroMonitor) cmdCache() error {
	methods := m.engine.Macros().CachedMethods()
	if len(methods) == 0 {
		fmt.Fprintln(m.out, "cache empty")
		return nil
	}
	for _, method := range methods {
		info, _ := m.engine.Macros().CacheEntry(method)
		hle := info.HLE
		if hle == "" {
			hle = "-"
		}
		fmt.Fprintf(m.out, "%04X  %016x  %4d words  %-12s  hle=%s\n",
			method, info.Hash, info.Words, info.Backend, hle)
	}
	return nil
}

func (m *MacroMonitor) cmdRegs(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: regs <pos>")
	}
	pos, err := parseMonitorWords(args)
	if err != nil {
		return err
	}
	st, ok := m.engine.Macros().ProgramState(pos[0])
	if !ok {
		return fmt.Errorf("no compiled program at %04X", pos[0])
	}
	for i, r := range st.Registers {
		fmt.Fprintf(m.out, "r%d=%08X ", i, r)
		if i == 3 {
			fmt.Fprintln(m.out)
		}
	}
	carry := "-"
	if st.CarryTracked {
		carry = strconv.FormatBool(st.Carry)
	}
	fmt.Fprintf(m.out, "\ncarry=%s method=%03X inc=%d\n",
		carry, st.MethodAddress.Address(), st.MethodAddress.Increment())
	return nil
}

func (m *MacroMonitor) cmdReg(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: reg <method> [value]")
	}
	v, err := parseMonitorWords(args)
	if err != nil {
		return err
	}
	if len(v) == 2 {
		m.engine.CallMethod(v[0], v[1], true)
		return m.engine.takeMacroFault()
	}
	fmt.Fprintf(m.out, "%04X = %08X\n", v[0], m.engine.GetRegisterValue(v[0]))
	return nil
}

func (m *MacroMonitor) cmdMem(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: mem <addr> [value]")
	}
	addr, ok := ParseAddress(args[0])
	if !ok {
		return fmt.Errorf("bad address %q", args[0])
	}
	if len(args) == 2 {
		v, err := parseMonitorWords(args[1:])
		if err != nil {
			return err
		}
		m.engine.WriteGPUWord(addr, v[0])
		return nil
	}
	fmt.Fprintf(m.out, "%010X = %08X\n", addr, m.engine.ReadGPUWord(addr))
	return nil
}

func (m *MacroMonitor) cmdUploads() {
	methods := m.engine.Macros().UploadedMethods()
	if len(methods) == 0 {
		fmt.Fprintln(m.out, "nothing uploaded")
		return
	}
	for _, method := range methods {
		fmt.Fprintf(m.out, "%04X  %4d words\n", method, len(m.engine.Macros().UploadedCode(method)))
	}
}

func (m *MacroMonitor) cmdHLE() {
	hle := m.engine.Macros().HLE()
	for _, h := range hle.Hashes() {
		fmt.Fprintf(m.out, "%016x  %s\n", h, hle.Describe(h))
	}
}

func (m *MacroMonitor) cmdStats() error {
	s := m.engine.Macros().Stats()
	fmt.Fprintf(m.out, "backend      %s\n", m.engine.Macros().Backend())
	fmt.Fprintf(m.out, "uploads      %d\n", s.Uploads)
	fmt.Fprintf(m.out, "clears       %d\n", s.Clears)
	fmt.Fprintf(m.out, "compiles     %d\n", s.ColdCompiles)
	fmt.Fprintf(m.out, "lle runs     %d\n", s.LLERuns)
	fmt.Fprintf(m.out, "hle runs     %d\n", s.HLERuns)
	fmt.Fprintf(m.out, "jit fallback %d\n", s.JITFallbacks)
	fmt.Fprintf(m.out, "faults       %d\n", s.Faults)
	fmt.Fprintf(m.out, "refreshes    %d\n", m.engine.RefreshCount())
	return nil
}

func (m *MacroMonitor) cmdHelp() {
	fmt.Fprintln(m.out, "upload <pos> <word>...   asm <pos> <file>   clear <pos>")
	fmt.Fprintln(m.out, "bind <n> <pos>           call <n> <param>...")
	fmt.Fprintln(m.out, "exec <pos> <param>...    dis <pos> [x64]    cache")
	fmt.Fprintln(m.out, "regs <pos>               reg <method> [value]")
	fmt.Fprintln(m.out, "mem <addr> [value]       uploads            hle")
	fmt.Fprintln(m.out, "stats                    help               quit")
}

// RunMacroMonitor drives the monitor from stdin until quit or end of input.
func RunMacroMonitor(engine *Engine3D) error {
	host := NewTerminalHost(os.Stdin, os.Stdout)
	host.Start("mme> ")
	defer host.Stop()

	mon := NewMacroMonitor(engine, host)
	for {
		line, err := host.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if !mon.ExecuteCommand(line) {
			return nil
		}
	}
}

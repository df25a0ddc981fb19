// main.go - Main entry point for the Intuition MME macro engine tools

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
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func boilerPlate() {
	fmt.Println("\n\033[38;2;255;20;147m ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████\033[0m\n\033[38;2;255;50;147m▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀\033[0m\n\033[38;2;255;80;147m▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███\033[0m\n\033[38;2;255;110;147m░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄\033[0m\n\033[38;2;255;140;147m░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒\033[0m\n\033[38;2;255;170;147m░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░\033[0m\n\033[38;2;255;200;147m ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░\033[0m\n\033[38;2;255;230;147m ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░\033[0m\n\033[38;2;255;255;147m ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░\033[0m")
	fmt.Println("\nGPU macro engine: interpreter, x86-64 JIT and HLE replacements.")
	fmt.Println("(c) 2024 - 2026 Zayn Otley")
	fmt.Println("https://github.com/IntuitionAmiga/IntuitionEngine")
	fmt.Println("License: GPLv3 or later")
}

func main() {
	var (
		replayFile   string
		disFile      string
		asmFile      string
		outFile      string
		runFile      string
		paramList    string
		modeMonitor  bool
		noJIT        bool
		noHLE        bool
		dump         bool
		dumpDir      string
		hleScriptDir string
		features     bool
		trace        bool
	)

	defaults := DefaultMacroConfig()
	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&replayFile, "replay", "", "Replay a text command stream")
	flagSet.StringVar(&disFile, "dis", "", "Disassemble a raw macro file")
	flagSet.StringVar(&asmFile, "asm", "", "Assemble a macro source file")
	flagSet.StringVar(&outFile, "o", "", "Output file for -asm (hex listing on stdout if empty)")
	flagSet.StringVar(&runFile, "run", "", "Run one macro (raw .macro file or source)")
	flagSet.StringVar(&paramList, "params", "", "Comma separated parameters for -run")
	flagSet.BoolVar(&modeMonitor, "monitor", false, "Start the interactive macro monitor")
	flagSet.BoolVar(&noJIT, "no-jit", false, "Always interpret macros")
	flagSet.BoolVar(&noHLE, "no-hle", false, "Never substitute HLE replacements")
	flagSet.BoolVar(&dump, "dump", false, "Dump every compiled macro")
	flagSet.StringVar(&dumpDir, "dump-dir", defaults.DumpDir, "Dump directory")
	flagSet.StringVar(&hleScriptDir, "hle-scripts", "", "Directory of <hash>.lua HLE scripts")
	flagSet.BoolVar(&features, "features", false, "Print compiled features and exit")
	flagSet.BoolVar(&trace, "trace", false, "Print every register write")

	flagSet.Usage = func() {
		flagSet.SetOutput(os.Stdout)
		fmt.Println("Usage: ./intuition_mme -replay file | -dis file | -asm file [-o out] | -run file [-params a,b] | -monitor")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if features {
		printFeatures()
		return
	}

	modeCount := 0
	for _, set := range []bool{replayFile != "", disFile != "", asmFile != "", runFile != "", modeMonitor} {
		if set {
			modeCount++
		}
	}
	if modeCount != 1 {
		fmt.Println("Error: select exactly one of -replay, -dis, -asm, -run or -monitor")
		os.Exit(1)
	}

	// Offline tools need no engine
	if disFile != "" {
		if err := runDisassemble(disFile); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if asmFile != "" {
		if err := runAssemble(asmFile, outFile); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	config := MacroConfig{
		DisableMacroJIT: noJIT,
		DisableMacroHLE: noHLE,
		DumpMacros:      dump,
		DumpDir:         dumpDir,
		HLEScriptDir:    hleScriptDir,
	}
	engine := NewEngine3D(config)
	defer engine.Destroy()

	if trace || runFile != "" {
		engine.SetMethodTrace(func(method, value uint32) {
			fmt.Printf("  [%04X] <- %08X\n", method, value)
		})
	}

	var err error
	switch {
	case replayFile != "":
		err = runReplay(engine, replayFile)
	case runFile != "":
		err = runSingleMacro(engine, runFile, paramList)
	case modeMonitor:
		boilerPlate()
		fmt.Printf("Macro backend: %s\n\n", engine.Macros().Backend())
		err = RunMacroMonitor(engine)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		engine.Destroy()
		os.Exit(1)
	}
}

func runReplay(engine *Engine3D, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := ReplayCommandStream(f, engine); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	s := engine.Macros().Stats()
	fmt.Printf("Replayed %s: %d compiles, %d LLE runs, %d HLE runs, %d faults\n",
		path, s.ColdCompiles, s.LLERuns, s.HLERuns, s.Faults)
	return nil
}

// loadMacroSource reads a raw .macro/.bin word file, or assembles anything
// else.
func loadMacroSource(path string) ([]uint32, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case MME_DUMP_EXTENSION, ".bin":
		return loadMacroFile(path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	code, err := assembleMacro(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return code, nil
}

func runDisassemble(path string) error {
	code, err := loadMacroFile(path)
	if err != nil {
		return err
	}
	fmt.Printf("; %s  hash %016x  %d words\n", path, hashMacroCode(code), len(code))
	for _, l := range disassembleMacro(code, 0) {
		fmt.Printf("\t%s\n", l.Mnemonic)
	}
	return nil
}

func runAssemble(path, out string) error {
	code, err := loadMacroSource(path)
	if err != nil {
		return err
	}
	if out != "" {
		return writeMacroFile(out, code)
	}
	for i, w := range code {
		fmt.Printf("%04X  %08X\n", i, w)
	}
	fmt.Printf("hash %016x\n", hashMacroCode(code))
	return nil
}

func runSingleMacro(engine *Engine3D, path, paramList string) error {
	code, err := loadMacroSource(path)
	if err != nil {
		return err
	}
	params, err := parseParamList(paramList)
	if err != nil {
		return err
	}
	for _, w := range code {
		engine.Macros().AddCode(0, w)
	}
	fmt.Printf("Running %s (%d words, %s) with %d parameters\n",
		path, len(code), engine.Macros().Backend(), len(params))
	if err := engine.ExecuteMacro(0, params); err != nil {
		return err
	}
	if info, ok := engine.Macros().CacheEntry(0); ok && info.HLE != "" {
		fmt.Printf("Ran HLE replacement %s\n", info.HLE)
	}
	return nil
}

func parseParamList(s string) ([]uint32, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []uint32
	for _, f := range strings.Split(s, ",") {
		v, err := parseUint32Flag(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("invalid -params entry %q: %w", f, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseUint32Flag(value string) (uint32, error) {
	parsed, err := strconv.ParseUint(value, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(parsed), nil
}

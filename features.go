package main

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sys/cpu"
)

// Version is stamped by the release build with -ldflags "-X main.Version=...".
var Version = "dev"

// compiledFeatures tracks build-time feature flags via init() registration.
var compiledFeatures []string

func hostCPUFeatures() []string {
	var out []string
	if runtime.GOARCH != "amd64" {
		return out
	}
	for _, f := range []struct {
		name string
		ok   bool
	}{
		{"sse2", cpu.X86.HasSSE2},
		{"sse4.2", cpu.X86.HasSSE42},
		{"popcnt", cpu.X86.HasPOPCNT},
		{"avx2", cpu.X86.HasAVX2},
		{"bmi1", cpu.X86.HasBMI1},
		{"bmi2", cpu.X86.HasBMI2},
	} {
		if f.ok {
			out = append(out, f.name)
		}
	}
	return out
}

func printFeatures() {
	fmt.Printf("Intuition MME %s\n", Version)
	fmt.Printf("  Go version: %s\n", runtime.Version())
	fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if bits := hostCPUFeatures(); len(bits) > 0 {
		fmt.Printf("  Host CPU:   %s\n", strings.Join(bits, " "))
	}
	fmt.Println()
	fmt.Println("Compiled features:")

	sort.Strings(compiledFeatures)
	for _, f := range compiledFeatures {
		fmt.Printf("  %s\n", f)
	}
	if len(compiledFeatures) == 0 {
		fmt.Println("  (none)")
	}
}

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"regexp"
	"time"

	"github.com/hallgrim/dotmatrix/internal/emu"
)

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gb)")
	bootPath := flag.String("bootrom", "", "optional DMG boot ROM to run from 0x0000 until FF50 disables it")
	fastBoot := flag.Bool("fastboot", false, "use the built-in fast boot ROM")
	maxFrames := flag.Int("frames", 1800, "max frames to run")
	trace := flag.Bool("trace", false, "print PC/opcodes per instruction")
	traceOnFail := flag.Bool("traceOnFail", false, "on failure, print a recent instruction window")
	traceWindow := flag.Int("traceWindow", 200, "instructions to keep for -traceOnFail")
	timeout := flag.Duration("timeout", 0, "optional wall-clock timeout (e.g. 30s); 0 disables")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("-rom is required")
	}
	rom, err := os.ReadFile(*romPath)
	if err != nil {
		log.Fatalf("read rom: %v", err)
	}
	var boot []byte
	if *bootPath != "" {
		if boot, err = os.ReadFile(*bootPath); err != nil {
			log.Fatalf("read bootrom: %v", err)
		}
	} else if *fastBoot {
		boot = emu.FastBootROM()
	}

	m := emu.New(emu.Config{Trace: *trace})
	if err := m.LoadCartridge(rom, boot); err != nil {
		log.Fatalf("load cart: %v", err)
	}
	// Echo serial to stdout on top of the harness capture.
	h := emu.NewHarness(m, emu.HarnessOptions{MaxFrames: *maxFrames, Echo: os.Stdout})

	start := time.Now()
	var deadline time.Time
	if *timeout > 0 {
		deadline = start.Add(*timeout)
	}
	// Test markers like "11:01" in Blargg sub-test output.
	stageRe := regexp.MustCompile(`\b(\d{2}:\d{2})\b`)

	type traceEntry struct {
		snap emu.Snapshot
		op   byte
		cyc  int
	}
	window := *traceWindow
	if window <= 0 {
		window = 1
	}
	ring := make([]traceEntry, window)
	ringIdx, ringFill := 0, 0

	dumpTrace := func() {
		if ringFill == 0 {
			return
		}
		fmt.Printf("\n--- recent trace (last %d instructions) ---\n", ringFill)
		startIdx := (ringIdx - ringFill + window) % window
		for j := 0; j < ringFill; j++ {
			te := ring[(startIdx+j)%window]
			s := te.snap
			fmt.Printf("PC=%04X OP=%02X cyc=%d A=%02X F=%02X B=%02X C=%02X D=%02X E=%02X H=%02X L=%02X SP=%04X IME=%t IF=%02X IE=%02X\n",
				s.PC, te.op, te.cyc, s.A, s.F, s.B, s.C, s.D, s.E, s.H, s.L, s.SP, s.IME, s.IF, s.IE)
		}
		fmt.Printf("--- end trace ---\n")
	}

	finish := func(res emu.HarnessResult, frames int) {
		out := h.SerialOutput()
		if mm := stageRe.FindAllString(out, -1); len(mm) > 0 {
			fmt.Printf("\nLast stage seen: %s\n", mm[len(mm)-1])
		}
		fmt.Printf("\nResult: %v  frames=%d elapsed=%s\n",
			res, frames, time.Since(start).Truncate(time.Millisecond))
		switch res {
		case emu.HarnessPassed:
			os.Exit(0)
		case emu.HarnessTimeout:
			os.Exit(2)
		default:
			if *traceOnFail {
				dumpTrace()
			}
			if tail := out; tail != "" {
				if len(tail) > 8192 {
					tail = tail[len(tail)-8192:]
				}
				fmt.Printf("\n--- serial tail ---\n%s\n--- end serial ---\n", tail)
			}
			os.Exit(1)
		}
	}

	wantTrace := *trace || *traceOnFail
	for frame := 0; frame < *maxFrames; frame++ {
		dots := 0
		for dots < emu.FrameDots {
			var op byte
			if wantTrace {
				op = m.Peek(m.CPU().PC)
			}
			cyc, err := m.Step()
			if err != nil {
				log.Printf("cpu fault: %v", err)
				finish(emu.HarnessFailed, frame)
			}
			dots += cyc
			if wantTrace {
				te := traceEntry{snap: m.Snapshot(), op: op, cyc: cyc}
				if *trace {
					s := te.snap
					fmt.Printf("PC=%04X OP=%02X cyc=%d A=%02X F=%02X B=%02X C=%02X D=%02X E=%02X H=%02X L=%02X SP=%04X IME=%t IF=%02X IE=%02X\n",
						s.PC, te.op, te.cyc, s.A, s.F, s.B, s.C, s.D, s.E, s.H, s.L, s.SP, s.IME, s.IF, s.IE)
				}
				ring[ringIdx] = te
				ringIdx = (ringIdx + 1) % window
				if ringFill < window {
					ringFill++
				}
			}
		}
		if res := h.Check(); res != emu.HarnessRunning {
			finish(res, frame+1)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			fmt.Printf("\nTimeout after %s.\n", time.Since(start).Truncate(time.Millisecond))
			finish(emu.HarnessTimeout, frame+1)
		}
	}
	finish(emu.HarnessTimeout, *maxFrames)
}

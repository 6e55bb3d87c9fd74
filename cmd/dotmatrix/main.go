package main

import (
	"flag"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hallgrim/dotmatrix/internal/cart"
	"github.com/hallgrim/dotmatrix/internal/emu"
	"github.com/hallgrim/dotmatrix/internal/ui"
)

type CLIFlags struct {
	ROMPath  string
	BootROM  string
	FastBoot bool
	Scale    int
	Title    string
	GreenLCD bool
	SaveRAM  bool // persist battery RAM next to ROM (.sav)

	// headless
	Headless bool
	Frames   int
	PNGOut   string
	Expect   string // expected framebuffer CRC32 hex (e.g., "1a2b3c4d")
}

func parseFlags() CLIFlags {
	var f CLIFlags
	flag.StringVar(&f.ROMPath, "rom", "", "path to ROM (.gb)")
	flag.StringVar(&f.BootROM, "bootrom", "", "optional 256-byte DMG boot ROM")
	flag.BoolVar(&f.FastBoot, "fastboot", false, "use the built-in fast boot ROM instead of -bootrom")
	flag.IntVar(&f.Scale, "scale", 3, "window scale")
	flag.StringVar(&f.Title, "title", "dotmatrix", "window title")
	flag.BoolVar(&f.GreenLCD, "green", false, "DMG green shades instead of grayscale")
	flag.BoolVar(&f.SaveRAM, "save", true, "persist battery RAM to ROM.sav on exit and load on start")

	// headless options
	flag.BoolVar(&f.Headless, "headless", false, "run without a window")
	flag.IntVar(&f.Frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&f.PNGOut, "outpng", "", "write last frame to PNG at path")
	flag.StringVar(&f.Expect, "expect", "", "assert frame CRC32 (hex)")
	flag.Parse()
	return f
}

func runHeadless(m *emu.Machine, frames int, pngPath, expectCRC string) error {
	if frames <= 0 {
		frames = 1
	}

	start := time.Now()
	if err := m.RunFrames(frames); err != nil {
		return err
	}
	dur := time.Since(start)

	frame := m.Frame() // 160x144 shade indices
	crc := crc32.ChecksumIEEE(frame)
	fps := float64(frames) / dur.Seconds()

	log.Printf("headless: frames=%d elapsed=%s fps=%.2f frame_crc32=%08x",
		frames, dur.Truncate(time.Millisecond), fps, crc)

	if pngPath != "" {
		if err := saveFramePNG(frame, pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", pngPath)
	}

	if expectCRC != "" {
		want := strings.TrimPrefix(strings.ToLower(expectCRC), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

var pngShades = [4]byte{0xFF, 0xC0, 0x60, 0x00}

func saveFramePNG(frame []byte, path string) error {
	img := &image.RGBA{
		Pix:    make([]byte, len(frame)*4),
		Stride: 4 * emu.ScreenWidth,
		Rect:   image.Rect(0, 0, emu.ScreenWidth, emu.ScreenHeight),
	}
	for i, s := range frame {
		g := pngShades[s&3]
		img.Pix[i*4+0] = g
		img.Pix[i*4+1] = g
		img.Pix[i*4+2] = g
		img.Pix[i*4+3] = 0xFF
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func mustRead(path string) []byte {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return b
}

func main() {
	f := parseFlags()
	if f.ROMPath == "" {
		log.Fatal("-rom is required")
	}
	rom := mustRead(f.ROMPath)
	boot := mustRead(f.BootROM)
	if f.FastBoot && len(boot) == 0 {
		boot = emu.FastBootROM()
	}

	if h, err := cart.ParseHeader(rom); err == nil {
		log.Printf("ROM: %q type=%s banks=%d ram=%dB", h.Title, h.CartTypeStr, h.ROMBanks, h.RAMSizeBytes)
	}

	m := emu.New(emu.Config{LimitFPS: !f.Headless})
	if err := m.LoadCartridge(rom, boot); err != nil {
		log.Fatalf("load cart: %v", err)
	}
	if abs, err := filepath.Abs(f.ROMPath); err == nil {
		m.SetROMPath(abs)
	} else {
		m.SetROMPath(f.ROMPath)
	}

	// Battery RAM: load .sav if present
	var savPath string
	if f.SaveRAM {
		savPath = strings.TrimSuffix(f.ROMPath, filepath.Ext(f.ROMPath)) + ".sav"
		if data, err := os.ReadFile(savPath); err == nil {
			if m.LoadBattery(data) {
				log.Printf("loaded save RAM: %s (%d bytes)", savPath, len(data))
			}
		}
	}
	saveBattery := func() {
		if !f.SaveRAM || savPath == "" {
			return
		}
		if data, ok := m.SaveBattery(); ok {
			if err := os.WriteFile(savPath, data, 0644); err != nil {
				log.Printf("write %s: %v", savPath, err)
			} else {
				log.Printf("wrote %s", savPath)
			}
		}
	}

	if f.Headless {
		if err := runHeadless(m, f.Frames, f.PNGOut, f.Expect); err != nil {
			log.Fatal(err)
		}
		saveBattery()
		return
	}

	app := ui.NewApp(ui.Config{Title: f.Title, Scale: f.Scale, GreenLCD: f.GreenLCD}, m)
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
	saveBattery()
}

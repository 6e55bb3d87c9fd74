package emu

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
)

// findROMs recursively collects .gb files under dir.
func findROMs(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".gb") {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func moduleRoot() string {
	if _, file, _, ok := runtime.Caller(0); ok {
		dir := filepath.Dir(file)
		for {
			if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
				return dir
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// TestROMSuite scans testroms/ (or TESTROM_DIR) and runs every .gb found
// through the harness. Opt-in via RUN_TESTROMS to keep default runs fast.
func TestROMSuite(t *testing.T) {
	if os.Getenv("RUN_TESTROMS") == "" {
		t.Skip("set RUN_TESTROMS=1 and place ROMs under testroms/ or set TESTROM_DIR to run")
	}

	base := os.Getenv("TESTROM_DIR")
	if base == "" {
		base = filepath.Join(moduleRoot(), "testroms")
	}
	if _, err := os.Stat(base); err != nil {
		t.Skipf("test ROM dir missing: %s", base)
	}
	roms, err := findROMs(base)
	if err != nil {
		t.Fatalf("scan ROMs: %v", err)
	}
	if len(roms) == 0 {
		t.Skipf("no ROMs found in %s", base)
	}

	maxFrames := 1800
	if v := os.Getenv("TESTROM_MAX_FRAMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxFrames = n
		}
	}

	for _, rom := range roms {
		rom := rom
		name := strings.TrimSuffix(filepath.Base(rom), filepath.Ext(rom))
		t.Run(name, func(t *testing.T) {
			m := New(Config{})
			if err := m.LoadROMFromFile(rom); err != nil {
				t.Fatalf("load ROM: %v", err)
			}
			h := NewHarness(m, HarnessOptions{MaxFrames: maxFrames})
			res, err := h.Run()
			if err != nil {
				t.Fatalf("%s: %v\nserial:\n%s", filepath.Base(rom), err, h.SerialOutput())
			}
			if res != HarnessPassed {
				t.Fatalf("%s: %v\nserial:\n%s", filepath.Base(rom), res, h.SerialOutput())
			}
		})
	}
}

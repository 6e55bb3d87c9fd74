package cart

import (
	"errors"
	"testing"
)

func TestNew_SelectsMapperByHeader(t *testing.T) {
	cases := []struct {
		name     string
		cartType byte
		want     string
	}{
		{"rom_only", 0x00, "*cart.ROMOnly"},
		{"mbc1", 0x01, "*cart.MBC1"},
		{"mbc2", 0x05, "*cart.MBC2"},
		{"mbc3", 0x11, "*cart.MBC3"},
		{"mbc5", 0x19, "*cart.MBC5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rom := buildROM("TEST", tc.cartType, 0x01, 0x02, 64*1024)
			c, err := New(rom)
			if err != nil {
				t.Fatalf("New error: %v", err)
			}
			var got string
			switch c.(type) {
			case *ROMOnly:
				got = "*cart.ROMOnly"
			case *MBC1:
				got = "*cart.MBC1"
			case *MBC2:
				got = "*cart.MBC2"
			case *MBC3:
				got = "*cart.MBC3"
			case *MBC5:
				got = "*cart.MBC5"
			}
			if got != tc.want {
				t.Fatalf("mapper got %s want %s", got, tc.want)
			}
		})
	}
}

func TestNew_UnsupportedMapperIsFatal(t *testing.T) {
	rom := buildROM("TEST", 0xFC, 0x01, 0x00, 64*1024) // POCKET CAMERA
	_, err := New(rom)
	if err == nil {
		t.Fatalf("expected error for unsupported mapper, got nil")
	}
	var ume *UnsupportedMapperError
	if !errors.As(err, &ume) {
		t.Fatalf("error type got %T want *UnsupportedMapperError", err)
	}
	if ume.Code != 0xFC {
		t.Fatalf("mapper code got %#02x want 0xFC", ume.Code)
	}
}

func TestNew_BadHeaderChecksumIsFatal(t *testing.T) {
	rom := buildROM("TEST", 0x00, 0x00, 0x00, 32*1024)
	rom[0x0147] = 0x01 // change a header byte without fixing the checksum
	if _, err := New(rom); !errors.Is(err, ErrHeaderChecksum) {
		t.Fatalf("err got %v want ErrHeaderChecksum", err)
	}
}

func TestNew_TruncatedROMIsFatal(t *testing.T) {
	// Header declares 64KiB but the file only holds 48KiB.
	rom := buildROM("TEST", 0x01, 0x01, 0x00, 64*1024)[:48*1024]
	if _, err := New(rom); !errors.Is(err, ErrROMSizeMismatch) {
		t.Fatalf("err got %v want ErrROMSizeMismatch", err)
	}
}

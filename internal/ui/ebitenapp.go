package ui

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/hallgrim/dotmatrix/internal/emu"
)

// grayShades and greenShades map the machine's post-palette shade indices
// (0 = lightest) to RGBA.
var grayShades = [4][4]byte{
	{0xFF, 0xFF, 0xFF, 0xFF},
	{0xC0, 0xC0, 0xC0, 0xFF},
	{0x60, 0x60, 0x60, 0xFF},
	{0x00, 0x00, 0x00, 0xFF},
}

var greenShades = [4][4]byte{
	{0xE0, 0xF8, 0xD0, 0xFF},
	{0x88, 0xC0, 0x70, 0xFF},
	{0x34, 0x68, 0x56, 0xFF},
	{0x08, 0x18, 0x20, 0xFF},
}

type App struct {
	cfg    Config
	m      *emu.Machine
	tex    *ebiten.Image
	pix    []byte
	paused bool
	fast   bool
}

func NewApp(cfg Config, m *emu.Machine) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(emu.ScreenWidth*cfg.Scale, emu.ScreenHeight*cfg.Scale)
	return &App{
		cfg: cfg, m: m,
		pix: make([]byte, emu.ScreenWidth*emu.ScreenHeight*4),
	}
}

func (a *App) Run() error { return ebiten.RunGame(a) }

func (a *App) Update() error {
	// Keyboard → Game Boy buttons
	var btn emu.Buttons
	if ebiten.IsKeyPressed(ebiten.KeyRight) {
		btn.Right = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyLeft) {
		btn.Left = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyUp) {
		btn.Up = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyDown) {
		btn.Down = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyZ) {
		btn.A = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyX) {
		btn.B = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyEnter) {
		btn.Start = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyShiftRight) {
		btn.Select = true
	}
	a.m.SetButtons(btn)

	// Pause toggle (P)
	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}

	// Fast-forward (Tab): while held, run multiple frames per update
	a.fast = ebiten.IsKeyPressed(ebiten.KeyTab)

	// Reset (R)
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		if err := a.m.Reset(); err != nil {
			return err
		}
	}

	// Frame-step when paused (N)
	if a.paused && inpututil.IsKeyJustPressed(ebiten.KeyN) {
		if err := a.m.StepFrame(); err != nil {
			return err
		}
	}

	// Save/load state (F5/F9)
	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		_ = a.m.SaveStateToFile(a.stateFile())
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) {
		_ = a.m.LoadStateFromFile(a.stateFile())
	}

	// Screenshot (F12)
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		_ = a.saveScreenshot()
	}

	if !a.paused {
		frames := 1
		if a.fast {
			frames = 5
		}
		for i := 0; i < frames; i++ {
			if err := a.m.StepFrame(); err != nil {
				if err == emu.ErrStopped {
					return ebiten.Termination
				}
				return err
			}
		}
	}
	return nil
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(emu.ScreenWidth, emu.ScreenHeight)
	}
	a.blitFrame()
	a.tex.WritePixels(a.pix)
	screen.DrawImage(a.tex, nil)
}

func (a *App) Layout(outW, outH int) (int, int) {
	return emu.ScreenWidth, emu.ScreenHeight
}

func (a *App) blitFrame() {
	shades := &grayShades
	if a.cfg.GreenLCD {
		shades = &greenShades
	}
	frame := a.m.Frame()
	for i, s := range frame {
		copy(a.pix[i*4:i*4+4], shades[s&3][:])
	}
}

func (a *App) stateFile() string {
	if p := a.m.ROMPath(); p != "" {
		return p + ".state"
	}
	return "dotmatrix.state"
}

func (a *App) saveScreenshot() error {
	a.blitFrame()
	img := &image.RGBA{
		Pix:    make([]byte, len(a.pix)),
		Stride: 4 * emu.ScreenWidth,
		Rect:   image.Rect(0, 0, emu.ScreenWidth, emu.ScreenHeight),
	}
	copy(img.Pix, a.pix)
	name := fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

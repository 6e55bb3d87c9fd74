package ui

// Config contains window and input related settings.
type Config struct {
	Title    string // window title
	Scale    int    // integer upscaling factor
	GreenLCD bool   // tint shades like the original DMG panel instead of gray
	// Later: fullscreen, key mapping.
}

// Defaults fills missing fields with reasonable defaults.
func (c *Config) Defaults() {
	if c.Title == "" {
		c.Title = "dotmatrix"
	}
	if c.Scale <= 0 {
		c.Scale = 3
	}
}

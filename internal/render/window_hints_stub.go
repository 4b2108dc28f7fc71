//go:build !linux

package render

// WindowHints lists the EWMH states requested for the preview window.
type WindowHints struct {
	KeepAbove   bool
	SkipTaskbar bool
}

// ApplyWindowHints is a no-op on non-Linux platforms.
func ApplyWindowHints(title string, hints WindowHints) error {
	return nil
}

// CloseWindowHints is a no-op on non-Linux platforms.
func CloseWindowHints() {
}

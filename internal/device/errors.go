package device

import "errors"

var (
	// ErrNotRunning is returned by motion commands issued while the device is stopped.
	ErrNotRunning = errors.New("device not running")

	// ErrInvalidToolWidth is returned for non-positive tool widths.
	ErrInvalidToolWidth = errors.New("tool width must be positive")

	// ErrPersistenceFailed wraps sink errors reported by Stop. The device is
	// stopped and the canvas released even when this is returned.
	ErrPersistenceFailed = errors.New("failed to persist canvas")

	// ErrNoCanvas is returned by operations that need an allocated canvas.
	ErrNoCanvas = errors.New("canvas not allocated")

	// ErrCanvasLeaked is returned by Close when the device was never stopped.
	ErrCanvasLeaked = errors.New("canvas still allocated at close")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("device closed")
)
